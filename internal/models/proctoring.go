package models

import (
	"time"
)

type ViolationType string

const (
	ViolationFocusLost      ViolationType = "focus_lost"
	ViolationTabSwitch      ViolationType = "tab_switch"
	ViolationWindowBlur     ViolationType = "window_blur"
	ViolationFullscreenExit ViolationType = "fullscreen_exit"
	ViolationCopyPaste      ViolationType = "copy_paste"
	ViolationRightClick     ViolationType = "right_click"
	ViolationOther          ViolationType = "other"
)

var ViolationTypes = []ViolationType{
	ViolationFocusLost,
	ViolationTabSwitch,
	ViolationWindowBlur,
	ViolationFullscreenExit,
	ViolationCopyPaste,
	ViolationRightClick,
	ViolationOther,
}

func (t ViolationType) IsValid() bool {
	for _, v := range ViolationTypes {
		if v == t {
			return true
		}
	}
	return false
}

// Violation is an anti-cheat signal recorded during a session. Append-only.
type Violation struct {
	Type            ViolationType `json:"type"`
	QuestionID      *string       `json:"question_id,omitempty"`
	DurationSeconds int           `json:"duration_seconds"`
	OccurredAt      time.Time     `json:"occurred_at"`
}

func copyViolation(v Violation) Violation {
	if v.QuestionID != nil {
		id := *v.QuestionID
		v.QuestionID = &id
	}
	return v
}

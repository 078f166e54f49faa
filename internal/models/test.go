package models

import (
	"time"
)

type TestStatus string

const (
	TestDraft     TestStatus = "draft"
	TestPublished TestStatus = "published"
	TestArchived  TestStatus = "archived"
)

type QuestionType string

const (
	SingleChoice   QuestionType = "single_choice"
	MultipleChoice QuestionType = "multiple_choice"
	ShortAnswer    QuestionType = "short_answer"
	OpenEssay      QuestionType = "open_essay"
)

type ResultDisplayPolicy string

const (
	ResultDisplayImmediate   ResultDisplayPolicy = "immediate"
	ResultDisplayAfterWindow ResultDisplayPolicy = "after_window"
	ResultDisplayHidden      ResultDisplayPolicy = "hidden"
)

// TestDefinition is the read-only view of a test owned by the catalog.
type TestDefinition struct {
	ID        string        `json:"id" gorm:"primaryKey;type:uuid"`
	SubjectID string        `json:"subject_id" gorm:"type:uuid;not null;index"`
	Title     string        `json:"title" gorm:"size:200;not null"`
	Status    TestStatus    `json:"status" gorm:"size:20;not null;default:draft"`
	Settings  TestSettings  `json:"settings" gorm:"embedded;embeddedPrefix:setting_"`
	Sections  []TestSection `json:"sections" gorm:"foreignKey:TestID"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (TestDefinition) TableName() string { return "tests" }

type TestSettings struct {
	StartDate   *time.Time `json:"start_date"`
	EndDate     *time.Time `json:"end_date"`
	MaxAttempts int        `json:"max_attempts" gorm:"not null;default:1"`
	// BankQuestionCount limits the scored questions to the first N. Zero means all.
	BankQuestionCount int                 `json:"bank_question_count" gorm:"not null;default:0"`
	ShuffleQuestions  bool                `json:"shuffle_questions"`
	ResultDisplay     ResultDisplayPolicy `json:"result_display" gorm:"size:20;default:immediate"`
}

type TestSection struct {
	ID        string     `json:"id" gorm:"primaryKey;type:uuid"`
	TestID    string     `json:"test_id" gorm:"type:uuid;not null;index"`
	Title     string     `json:"title" gorm:"size:200"`
	Position  int        `json:"position" gorm:"not null"`
	Questions []Question `json:"questions" gorm:"foreignKey:SectionID"`
}

func (TestSection) TableName() string { return "test_sections" }

type Question struct {
	ID        string         `json:"id" gorm:"primaryKey;type:uuid"`
	SectionID string         `json:"section_id" gorm:"type:uuid;not null;index"`
	Text      string         `json:"text" gorm:"type:text;not null"`
	Type      QuestionType   `json:"type" gorm:"size:20;not null"`
	Points    int            `json:"points" gorm:"not null"`
	Position  int            `json:"position" gorm:"not null"`
	Options   []AnswerOption `json:"options" gorm:"foreignKey:QuestionID"`
}

func (Question) TableName() string { return "questions" }

// CorrectOptionIDs returns the ids of options flagged correct, in option order.
func (q *Question) CorrectOptionIDs() []string {
	ids := make([]string, 0, len(q.Options))
	for _, opt := range q.Options {
		if opt.IsCorrect {
			ids = append(ids, opt.ID)
		}
	}
	return ids
}

type AnswerOption struct {
	ID         string `json:"id" gorm:"primaryKey;type:uuid"`
	QuestionID string `json:"question_id" gorm:"type:uuid;not null;index"`
	Text       string `json:"text" gorm:"type:text"`
	IsCorrect  bool   `json:"is_correct" gorm:"not null;default:false"`
	Position   int    `json:"position" gorm:"not null"`
}

func (AnswerOption) TableName() string { return "answer_options" }

// Enrollment links a student to a subject.
type Enrollment struct {
	SubjectID string    `json:"subject_id" gorm:"primaryKey;type:uuid"`
	StudentID string    `json:"student_id" gorm:"primaryKey;size:255"`
	Active    bool      `json:"active" gorm:"not null;default:true"`
	CreatedAt time.Time `json:"created_at"`
}

func (Enrollment) TableName() string { return "enrollments" }

func (t *TestDefinition) IsPublished() bool {
	return t.Status == TestPublished
}

// Questions returns every question in section order.
func (t *TestDefinition) Questions() []*Question {
	var questions []*Question
	for i := range t.Sections {
		for j := range t.Sections[i].Questions {
			questions = append(questions, &t.Sections[i].Questions[j])
		}
	}
	return questions
}

// ScoredQuestions returns the questions that count toward the score. In bank
// mode this is the first BankQuestionCount questions.
func (t *TestDefinition) ScoredQuestions() []*Question {
	questions := t.Questions()
	if n := t.Settings.BankQuestionCount; n > 0 && n < len(questions) {
		return questions[:n]
	}
	return questions
}

// MaxScore sums the points of the scored questions.
func (t *TestDefinition) MaxScore() int {
	total := 0
	for _, q := range t.ScoredQuestions() {
		total += q.Points
	}
	return total
}

// QuestionSet indexes the scored questions by id.
func (t *TestDefinition) QuestionSet() QuestionSet {
	scored := t.ScoredQuestions()
	set := make(QuestionSet, len(scored))
	for _, q := range scored {
		set[q.ID] = q
	}
	return set
}

// WindowState reports where now falls relative to the test window.
func (t *TestDefinition) WindowState(now time.Time) WindowState {
	if t.Settings.StartDate != nil && now.Before(*t.Settings.StartDate) {
		return WindowNotYetOpen
	}
	if t.Settings.EndDate != nil && now.After(*t.Settings.EndDate) {
		return WindowClosed
	}
	return WindowOpen
}

type WindowState int

const (
	WindowOpen WindowState = iota
	WindowNotYetOpen
	WindowClosed
)

// QuestionSet maps question id to question.
type QuestionSet map[string]*Question

func (s QuestionSet) Get(id string) (*Question, bool) {
	q, ok := s[id]
	return q, ok
}

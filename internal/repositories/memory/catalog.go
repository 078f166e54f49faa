package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/SAP-F-2025/test-session-service/internal/models"
	"github.com/SAP-F-2025/test-session-service/internal/repositories"
)

type Catalog struct {
	mu          sync.RWMutex
	tests       map[string][]byte
	enrollments map[string]map[string]bool
}

func NewCatalog() *Catalog {
	return &Catalog{
		tests:       make(map[string][]byte),
		enrollments: make(map[string]map[string]bool),
	}
}

var _ repositories.TestCatalog = (*Catalog)(nil)

// PutTest stores a copy of the definition, replacing any earlier one.
func (c *Catalog) PutTest(test *models.TestDefinition) error {
	data, err := json.Marshal(test)
	if err != nil {
		return fmt.Errorf("failed to encode test %s: %w", test.ID, err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tests[test.ID] = data
	return nil
}

// CatalogSeed is the file format accepted by Seed.
type CatalogSeed struct {
	Tests       []models.TestDefinition `json:"tests"`
	Enrollments []struct {
		SubjectID  string   `json:"subject_id"`
		StudentIDs []string `json:"student_ids"`
	} `json:"enrollments"`
}

// Seed loads tests and enrollments from a JSON document and returns how many
// tests it stored.
func (c *Catalog) Seed(r io.Reader) (int, error) {
	var seed CatalogSeed
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&seed); err != nil {
		return 0, fmt.Errorf("failed to decode catalog seed: %w", err)
	}

	for i := range seed.Tests {
		if seed.Tests[i].ID == "" {
			return i, fmt.Errorf("catalog seed test %d has no id", i)
		}
		if err := c.PutTest(&seed.Tests[i]); err != nil {
			return i, err
		}
	}
	for _, e := range seed.Enrollments {
		for _, studentID := range e.StudentIDs {
			c.Enroll(e.SubjectID, studentID)
		}
	}
	return len(seed.Tests), nil
}

// SeedFile is Seed over the file at path.
func (c *Catalog) SeedFile(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open catalog seed: %w", err)
	}
	defer f.Close()
	return c.Seed(f)
}

func (c *Catalog) Enroll(subjectID, studentID string) {
	c.setEnrollment(subjectID, studentID, true)
}

func (c *Catalog) Unenroll(subjectID, studentID string) {
	c.setEnrollment(subjectID, studentID, false)
}

func (c *Catalog) GetTestDefinition(ctx context.Context, testID string) (*models.TestDefinition, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.RLock()
	data, ok := c.tests[testID]
	c.mu.RUnlock()
	if !ok {
		return nil, repositories.ErrNotFound
	}

	var test models.TestDefinition
	if err := json.Unmarshal(data, &test); err != nil {
		return nil, fmt.Errorf("failed to decode test %s: %w", testID, err)
	}
	return &test, nil
}

func (c *Catalog) IsEnrolled(ctx context.Context, subjectID, studentID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.enrollments[subjectID][studentID], nil
}

func (c *Catalog) setEnrollment(subjectID, studentID string, active bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.enrollments[subjectID] == nil {
		c.enrollments[subjectID] = make(map[string]bool)
	}
	c.enrollments[subjectID][studentID] = active
}

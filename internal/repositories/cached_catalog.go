package repositories

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/SAP-F-2025/test-session-service/internal/cache"
	"github.com/SAP-F-2025/test-session-service/internal/models"
)

const testDefinitionKeyPrefix = "test:definition:"

// CachedCatalog keeps test definitions in the cache for ttl. Enrollment is
// always read through, since it changes independently of the test.
type CachedCatalog struct {
	inner  TestCatalog
	cache  cache.CacheService
	ttl    time.Duration
	logger *slog.Logger
}

func NewCachedCatalog(inner TestCatalog, cacheService cache.CacheService, ttl time.Duration, logger *slog.Logger) *CachedCatalog {
	return &CachedCatalog{
		inner:  inner,
		cache:  cacheService,
		ttl:    ttl,
		logger: logger,
	}
}

func TestDefinitionKey(testID string) string {
	return testDefinitionKeyPrefix + testID
}

func (c *CachedCatalog) GetTestDefinition(ctx context.Context, testID string) (*models.TestDefinition, error) {
	key := TestDefinitionKey(testID)

	var cached models.TestDefinition
	err := c.cache.Get(ctx, key, &cached)
	if err == nil {
		return &cached, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		c.logger.Warn("Test definition cache read failed, falling back to catalog",
			"test_id", testID, "error", err)
	}

	test, err := c.inner.GetTestDefinition(ctx, testID)
	if err != nil {
		return nil, err
	}

	if err := c.cache.Set(ctx, key, test, c.ttl); err != nil {
		c.logger.Warn("Failed to cache test definition", "test_id", testID, "error", err)
	}
	return test, nil
}

func (c *CachedCatalog) IsEnrolled(ctx context.Context, subjectID, studentID string) (bool, error) {
	return c.inner.IsEnrolled(ctx, subjectID, studentID)
}

// Invalidate drops one cached definition.
func (c *CachedCatalog) Invalidate(ctx context.Context, testID string) error {
	if err := c.cache.Delete(ctx, TestDefinitionKey(testID)); err != nil {
		return fmt.Errorf("failed to invalidate test %s: %w", testID, err)
	}
	return nil
}

// InvalidateAll drops every cached definition.
func (c *CachedCatalog) InvalidateAll(ctx context.Context) error {
	return c.cache.DeletePattern(ctx, testDefinitionKeyPrefix+"*")
}

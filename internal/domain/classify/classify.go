// Package classify assigns spending categories to transactions through an
// external classifier service. The classifier is cold-start sensitive and
// priced per call, so descriptions are normalized and grouped first: one
// call per distinct template, fanned back out to every original row.
package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/hassang371/spendsmart-dashboard-sub002/internal/domain/import/textnorm"
	"github.com/hassang371/spendsmart-dashboard-sub002/pkg/observability"
)

// Classifier labels a single normalized description.
type Classifier interface {
	Classify(ctx context.Context, description string) (string, error)
}

// HTTPClassifier calls an external classification endpoint.
type HTTPClassifier struct {
	endpoint string
	client   *http.Client
}

// NewHTTPClassifier builds a classifier client for the given endpoint.
func NewHTTPClassifier(endpoint string, timeout time.Duration) *HTTPClassifier {
	return &HTTPClassifier{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

type classifyRequest struct {
	Description string `json:"description"`
}

type classifyResponse struct {
	Category string `json:"category"`
}

// Classify posts one description and returns the category label.
func (c *HTTPClassifier) Classify(ctx context.Context, description string) (string, error) {
	body, err := json.Marshal(classifyRequest{Description: description})
	if err != nil {
		return "", fmt.Errorf("failed to encode classify request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build classify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("classify call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("classify call returned status %d", resp.StatusCode)
	}

	var out classifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode classify response: %w", err)
	}
	return out.Category, nil
}

// Categorizer memoizes classifier results by normalized description, so a
// template is classified once per process regardless of how many rows or
// batches produce it.
type Categorizer struct {
	classifier Classifier
	logger     *slog.Logger

	mu    sync.Mutex
	cache map[string]string
}

// NewCategorizer wraps a classifier with the normalization cache.
func NewCategorizer(classifier Classifier, logger *slog.Logger) *Categorizer {
	return &Categorizer{
		classifier: classifier,
		logger:     logger,
		cache:      make(map[string]string),
	}
}

// CategorizeBatch labels a batch of raw descriptions. The result maps each
// original description to its category; descriptions whose classification
// failed are absent from the map (the caller keeps its default label).
// Classifier failures are logged, never propagated: categorization is an
// enrichment, not a condition for ingesting the rows.
func (c *Categorizer) CategorizeBatch(ctx context.Context, descriptions []string) map[string]string {
	labels := make(map[string]string, len(descriptions))

	for _, group := range textnorm.NormalizeBatch(descriptions) {
		category, ok := c.cached(group.Normalized)
		observability.RecordClassifierLookup(ok)
		if !ok {
			var err error
			category, err = c.classifier.Classify(ctx, group.Normalized)
			if err != nil {
				c.logger.Warn("classifier call failed",
					"normalized", group.Normalized, "error", err)
				continue
			}
			c.store(group.Normalized, category)
		}
		for _, original := range group.Originals {
			labels[original] = category
		}
	}

	return labels
}

func (c *Categorizer) cached(normalized string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	category, ok := c.cache[normalized]
	return category, ok
}

func (c *Categorizer) store(normalized, category string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache[normalized] = category
}

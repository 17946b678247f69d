// Package classifier assigns procurement categories to requisition item names.
// It chains three strategies: vector similarity against a category collection,
// a structured LLM completion, and local keyword rules as the last resort.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"procurement_backend/platform/logger"
	"procurement_backend/platform/qdrant"
)

// Method identifies which strategy produced a classification.
type Method string

const (
	MethodVector   Method = "vector"
	MethodAI       Method = "ai"
	MethodFallback Method = "fallback"
)

// Uncategorized is the sentinel major category assigned when no strategy
// produced a usable result.
const Uncategorized = "uncategorized"

// ErrUnavailable marks a classification that fell back because the remote
// strategies were unreachable, as opposed to reachable-but-unconfident.
// Callers use it to tell "classifier down" apart from "item has no good category".
var ErrUnavailable = errors.New("classifier unavailable")

// Classification is a category assignment for one item.
type Classification struct {
	Major      string
	Minor      string
	Confidence float64
	Method     Method
	Scores     map[string]float64
}

// Category returns the major/minor path used to group line items.
func (c Classification) Category() string {
	if c.Minor == "" {
		return c.Major
	}
	return c.Major + "/" + c.Minor
}

// Embedder turns text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// VectorSearcher searches the category collection.
type VectorSearcher interface {
	Search(ctx context.Context, vector []float32, limit int) ([]qdrant.SearchResult, error)
}

// Generator produces a category via an LLM completion.
type Generator interface {
	ClassifyItem(ctx context.Context, name, spec string) (major, minor string, err error)
}

// Adapter is the classification capability consumed by the materializer.
// Every strategy is optional; a fully unconfigured adapter still answers
// via the keyword rules.
type Adapter struct {
	embedder  Embedder
	searcher  VectorSearcher
	generator Generator
	rules     *Rules
	threshold float64
	timeout   time.Duration
	log       *logger.Logger
}

// Config configures the adapter chain.
type Config struct {
	Embedder  Embedder
	Searcher  VectorSearcher
	Generator Generator
	Rules     *Rules
	Threshold float64
	Timeout   time.Duration
}

// New creates a classifier adapter.
func New(cfg Config, log *logger.Logger) *Adapter {
	threshold := cfg.Threshold
	if threshold <= 0 {
		threshold = 0.78
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	rules := cfg.Rules
	if rules == nil {
		rules = &Rules{}
	}

	return &Adapter{
		embedder:  cfg.Embedder,
		searcher:  cfg.Searcher,
		generator: cfg.Generator,
		rules:     rules,
		threshold: threshold,
		timeout:   timeout,
		log:       log,
	}
}

// Classify assigns a category to an item. It never fails outright: when the
// remote strategies are unreachable it returns the keyword-rules result (or
// the uncategorized sentinel) together with ErrUnavailable so callers can
// count infrastructure outages separately.
func (a *Adapter) Classify(ctx context.Context, name, spec string) (Classification, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	text := strings.TrimSpace(name)
	if spec != "" {
		text = text + " " + strings.TrimSpace(spec)
	}

	remoteTried := false
	remoteDown := true

	if a.embedder != nil && a.searcher != nil {
		remoteTried = true
		cls, err := a.classifyVector(ctx, text)
		if err == nil {
			remoteDown = false
			if cls.Confidence >= a.threshold {
				return cls, nil
			}
		} else if a.log != nil {
			a.log.Debug("vector classification failed", "item", name, "error", err)
		}
	}

	if a.generator != nil {
		remoteTried = true
		major, minor, err := a.generator.ClassifyItem(ctx, name, spec)
		if err == nil {
			remoteDown = false
			if major != "" {
				return Classification{
					Major:      major,
					Minor:      minor,
					Confidence: 0.8,
					Method:     MethodAI,
				}, nil
			}
		} else if a.log != nil {
			a.log.Debug("ai classification failed", "item", name, "error", err)
		}
	}

	cls := a.rules.Match(text)

	if remoteTried && remoteDown {
		return cls, fmt.Errorf("%w: all remote strategies failed for %q", ErrUnavailable, name)
	}
	return cls, nil
}

func (a *Adapter) classifyVector(ctx context.Context, text string) (Classification, error) {
	vector, err := a.embedder.Embed(ctx, text)
	if err != nil {
		return Classification{}, fmt.Errorf("embed: %w", err)
	}

	results, err := a.searcher.Search(ctx, vector, 3)
	if err != nil {
		return Classification{}, fmt.Errorf("search: %w", err)
	}
	if len(results) == 0 {
		return Classification{}, fmt.Errorf("category collection returned no candidates")
	}

	scores := make(map[string]float64, len(results))
	for _, r := range results {
		scores[payloadString(r.Payload, "major")+"/"+payloadString(r.Payload, "minor")] = r.Score
	}

	top := results[0]
	return Classification{
		Major:      payloadString(top.Payload, "major"),
		Minor:      payloadString(top.Payload, "minor"),
		Confidence: top.Score,
		Method:     MethodVector,
		Scores:     scores,
	}, nil
}

func payloadString(payload map[string]interface{}, key string) string {
	if payload == nil {
		return ""
	}
	if s, ok := payload[key].(string); ok {
		return s
	}
	return ""
}

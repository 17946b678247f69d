package classifier

import (
	"context"
	"errors"
	"testing"

	"procurement_backend/platform/logger"
	"procurement_backend/platform/qdrant"
)

type fakeEmbedder struct {
	vector []float32
	err    error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return f.vector, f.err
}

type fakeSearcher struct {
	results []qdrant.SearchResult
	err     error
}

func (f *fakeSearcher) Search(ctx context.Context, vector []float32, limit int) ([]qdrant.SearchResult, error) {
	return f.results, f.err
}

type fakeGenerator struct {
	major, minor string
	err          error
	calls        int
}

func (f *fakeGenerator) ClassifyItem(ctx context.Context, name, spec string) (string, string, error) {
	f.calls++
	return f.major, f.minor, f.err
}

func testRules() *Rules {
	return &Rules{
		Rules: []Rule{
			{Keywords: []string{"bolt", "screw"}, Major: "fasteners", Minor: "standard"},
		},
		DefaultConfidence: 0.3,
	}
}

func TestClassifyVectorWinsAboveThreshold(t *testing.T) {
	a := New(Config{
		Embedder: &fakeEmbedder{vector: []float32{0.1}},
		Searcher: &fakeSearcher{results: []qdrant.SearchResult{
			{Score: 0.91, Payload: map[string]interface{}{"major": "metals", "minor": "steel"}},
		}},
		Generator: &fakeGenerator{major: "wrong"},
		Rules:     testRules(),
		Threshold: 0.78,
	}, logger.New("development"))

	cls, err := a.Classify(context.Background(), "steel rod", "")
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if cls.Method != MethodVector || cls.Category() != "metals/steel" {
		t.Fatalf("expected vector result metals/steel, got %s via %s", cls.Category(), cls.Method)
	}
}

func TestClassifyFallsThroughToAIBelowThreshold(t *testing.T) {
	gen := &fakeGenerator{major: "metals", minor: "copper"}
	a := New(Config{
		Embedder: &fakeEmbedder{vector: []float32{0.1}},
		Searcher: &fakeSearcher{results: []qdrant.SearchResult{
			{Score: 0.42, Payload: map[string]interface{}{"major": "metals", "minor": "steel"}},
		}},
		Generator: gen,
		Rules:     testRules(),
		Threshold: 0.78,
	}, logger.New("development"))

	cls, err := a.Classify(context.Background(), "copper wire", "")
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if cls.Method != MethodAI || cls.Category() != "metals/copper" {
		t.Fatalf("expected ai result metals/copper, got %s via %s", cls.Category(), cls.Method)
	}
	if gen.calls != 1 {
		t.Fatalf("expected one generator call, got %d", gen.calls)
	}
}

func TestClassifyRulesWhenRemoteUnavailable(t *testing.T) {
	a := New(Config{
		Embedder:  &fakeEmbedder{err: errors.New("connection refused")},
		Searcher:  &fakeSearcher{},
		Generator: &fakeGenerator{err: errors.New("quota exceeded")},
		Rules:     testRules(),
	}, logger.New("development"))

	cls, err := a.Classify(context.Background(), "hex bolt M8", "")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if cls.Method != MethodFallback || cls.Category() != "fasteners/standard" {
		t.Fatalf("expected rules fallback fasteners/standard, got %s via %s", cls.Category(), cls.Method)
	}
}

func TestClassifyUncategorizedWithoutMatchOrRemotes(t *testing.T) {
	a := New(Config{Rules: testRules()}, logger.New("development"))

	cls, err := a.Classify(context.Background(), "mystery gadget", "")
	if err != nil {
		t.Fatalf("no remote strategies configured means no outage: %v", err)
	}
	if cls.Major != Uncategorized || cls.Confidence != 0 {
		t.Fatalf("expected uncategorized sentinel, got %+v", cls)
	}
}

func TestClassifyLowConfidenceRemoteIsNotAnOutage(t *testing.T) {
	a := New(Config{
		Embedder: &fakeEmbedder{vector: []float32{0.1}},
		Searcher: &fakeSearcher{results: []qdrant.SearchResult{
			{Score: 0.1, Payload: map[string]interface{}{"major": "metals"}},
		}},
		Rules:     testRules(),
		Threshold: 0.78,
	}, logger.New("development"))

	_, err := a.Classify(context.Background(), "mystery gadget", "")
	if err != nil {
		t.Fatalf("reachable-but-unconfident must not report unavailable, got %v", err)
	}
}

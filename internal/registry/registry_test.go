package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/rowan/parcelbase/internal/adapter"
	"github.com/rowan/parcelbase/internal/domain"
)

type stubAdapter struct{ key string }

func (s *stubAdapter) Key() string           { return s.key }
func (s *stubAdapter) ParserVersion() string { return "stub-v1" }
func (s *stubAdapter) Resolve(ctx context.Context, in adapter.Input) (*adapter.Target, error) {
	return nil, adapter.NotFound("stub")
}
func (s *stubAdapter) Fetch(ctx context.Context, t *adapter.Target) (*adapter.FetchResult, error) {
	return nil, adapter.Fatal(nil, "stub")
}
func (s *stubAdapter) Extract(p []adapter.RawPayload) *adapter.Extraction {
	return &adapter.Extraction{}
}
func (s *stubAdapter) Normalize(rec *adapter.Record) (*adapter.NormalizedResult, error) {
	return nil, errors.New("stub")
}

func stubFactory(cfg Config) adapter.Adapter {
	return &stubAdapter{key: cfg.Key}
}

func testConfig(name string) Config {
	return Config{
		DisplayName: name,
		StateFips:   "53",
		CountyFips:  []string{"033"},
		SourceType:  domain.SourceTypeAssessor,
		Platform:    domain.PlatformAPI,
		RateLimit:   RatePolicy{RequestsPerSecond: 2, Burst: 2},
	}
}

func TestRegisterDuplicate(t *testing.T) {
	r := New()
	if err := r.Register("king-wa", testConfig("King County"), stubFactory); err != nil {
		t.Fatalf("first Register failed: %v", err)
	}
	err := r.Register("king-wa", testConfig("King County"), stubFactory)
	if !errors.Is(err, ErrDuplicateSource) {
		t.Errorf("expected ErrDuplicateSource, got %v", err)
	}
}

func TestGetUnknown(t *testing.T) {
	r := New()
	if _, err := r.Get("nope"); !errors.Is(err, ErrUnknownSource) {
		t.Errorf("expected ErrUnknownSource, got %v", err)
	}
	if _, err := r.Adapter("nope"); !errors.Is(err, ErrUnknownSource) {
		t.Errorf("Adapter: expected ErrUnknownSource, got %v", err)
	}
	if _, err := r.Limiter("nope"); !errors.Is(err, ErrUnknownSource) {
		t.Errorf("Limiter: expected ErrUnknownSource, got %v", err)
	}
}

func TestListInsertionOrder(t *testing.T) {
	r := New()
	keys := []string{"king-wa", "pierce-wa", "mls-haven"}
	for _, k := range keys {
		if err := r.Register(k, testConfig(k), stubFactory); err != nil {
			t.Fatalf("Register(%s) failed: %v", k, err)
		}
	}

	got := r.List()
	if len(got) != len(keys) {
		t.Fatalf("List returned %d entries, want %d", len(got), len(keys))
	}
	for i, k := range keys {
		if got[i].Key != k {
			t.Errorf("List()[%d].Key = %s, want %s", i, got[i].Key, k)
		}
	}
}

func TestAdapterAndLimiterShared(t *testing.T) {
	r := New()
	if err := r.Register("king-wa", testConfig("King County"), stubFactory); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	a1, err := r.Adapter("king-wa")
	if err != nil {
		t.Fatalf("Adapter failed: %v", err)
	}
	a2, _ := r.Adapter("king-wa")
	if a1 != a2 {
		t.Errorf("Adapter should return the same shared instance")
	}

	l1, err := r.Limiter("king-wa")
	if err != nil {
		t.Fatalf("Limiter failed: %v", err)
	}
	l2, _ := r.Limiter("king-wa")
	if l1 != l2 {
		t.Errorf("Limiter should return the same shared instance")
	}
	if l1.Burst() != 2 {
		t.Errorf("limiter burst = %d, want 2", l1.Burst())
	}
}

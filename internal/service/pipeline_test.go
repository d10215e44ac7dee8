package service

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/rowan/parcelbase/internal/adapter"
	"github.com/rowan/parcelbase/internal/config"
	"github.com/rowan/parcelbase/internal/domain"
	"github.com/rowan/parcelbase/internal/identity"
	"github.com/rowan/parcelbase/internal/registry"
	"github.com/rowan/parcelbase/internal/repository"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// fakeAdapter is a scripted adapter: queued failures are consumed first,
// then calls succeed against the configured record body.
type fakeAdapter struct {
	key             string
	resolveFailures []error
	fetchFailures   []error
	body            []byte
	sessionReused   bool

	resolveCalls int
	fetchCalls   int
}

func (f *fakeAdapter) Key() string           { return f.key }
func (f *fakeAdapter) ParserVersion() string { return "fake/1.0.0" }

func (f *fakeAdapter) Resolve(_ context.Context, input adapter.Input) (*adapter.Target, error) {
	f.resolveCalls++
	if len(f.resolveFailures) > 0 {
		err := f.resolveFailures[0]
		f.resolveFailures = f.resolveFailures[1:]
		return nil, err
	}
	return &adapter.Target{URL: "https://src.test/parcel/1", SourceRef: input.Describe()}, nil
}

func (f *fakeAdapter) Fetch(_ context.Context, target *adapter.Target) (*adapter.FetchResult, error) {
	f.fetchCalls++
	if len(f.fetchFailures) > 0 {
		err := f.fetchFailures[0]
		f.fetchFailures = f.fetchFailures[1:]
		return nil, err
	}
	return &adapter.FetchResult{
		Payloads: []adapter.RawPayload{{
			URL: target.URL, StatusCode: 200, Body: f.body, Kind: domain.FetchKindAPI,
		}},
		SessionReused: f.sessionReused,
	}, nil
}

func (f *fakeAdapter) Extract(payloads []adapter.RawPayload) *adapter.Extraction {
	rec := &adapter.GISRecord{}
	var warnings []string
	if err := json.Unmarshal(payloads[0].Body, rec); err != nil {
		warnings = append(warnings, "malformed body")
	}
	return &adapter.Extraction{
		Record:   &adapter.Record{Kind: adapter.RecordKindGIS, GIS: rec},
		Warnings: warnings,
	}
}

func (f *fakeAdapter) Normalize(rec *adapter.Record) (*adapter.NormalizedResult, error) {
	g := rec.GIS
	res := &adapter.NormalizedResult{
		Parcel: &domain.NormalizedParcel{
			StateFips:        "53",
			CountyFips:       "033",
			ParcelIDNorm:     identity.NormalizeParcelID(g.ParcelID),
			ParcelIDRaw:      g.ParcelID,
			SitusFullAddress: identity.NormalizeAddress(g.SitusStreet + " " + g.SitusCity),
			SitusStreet:      identity.NormalizeAddress(g.SitusStreet),
			SitusCity:        identity.NormalizeAddress(g.SitusCity),
			OwnerName:        identity.NormalizeAddress(g.Owner),
			YearBuilt:        g.YearBuilt,
			Bedrooms:         g.Bedrooms,
		},
	}
	for _, v := range g.Assessments {
		res.Assessments = append(res.Assessments, domain.Assessment{
			TaxYear: v.TaxYear, AssessedValue: v.AssessedValue,
		})
	}
	for _, s := range g.Sales {
		res.Sales = append(res.Sales, domain.Sale{SaleDate: s.Date, Price: s.Price})
	}
	res.Confidence = adapter.ScoreConfidence(res, adapter.DefaultConfidenceRules())
	res.Parcel.Confidence = res.Confidence
	return res, nil
}

func fixtureBody(t *testing.T) []byte {
	t.Helper()
	year := 1985
	beds := 3
	assessed := int64(450000)
	rec := adapter.GISRecord{
		ParcelID:    "064-22-003A",
		SitusStreet: "123 Main St",
		SitusCity:   "Seattle",
		Owner:       "Doe, John",
		YearBuilt:   &year,
		Bedrooms:    &beds,
		Assessments: []adapter.YearValue{{TaxYear: 2024, AssessedValue: &assessed}},
		Sales:       []adapter.SaleEvent{{Date: "2020-01-15", Price: 400000}},
	}
	b, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("failed to marshal fixture: %v", err)
	}
	return b
}

type pipelineHarness struct {
	db       *gorm.DB
	pipeline *Pipeline
	adapter  *fakeAdapter
}

func newHarness(t *testing.T, fake *fakeAdapter) *pipelineHarness {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := repository.Migrate(db); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	reg := registry.New()
	err = reg.Register(fake.key, registry.Config{
		DisplayName: "Scripted Test Source",
		StateFips:   "53",
		CountyFips:  []string{"033"},
		SourceType:  domain.SourceTypeAssessor,
		Platform:    domain.PlatformAPI,
		BaseURL:     "https://src.test",
		RateLimit:   registry.RatePolicy{RequestsPerSecond: 1000, Burst: 1000},
	}, func(registry.Config) adapter.Adapter { return fake })
	if err != nil {
		t.Fatalf("failed to register source: %v", err)
	}

	p := NewPipeline(PipelineDeps{
		Registry:     reg,
		RunRepo:      repository.NewRunRepository(db),
		JobRepo:      repository.NewJobRepository(db),
		SourceRepo:   repository.NewSourceRepository(db),
		FetchRepo:    repository.NewFetchRepository(db),
		ArtifactRepo: repository.NewArtifactRepository(db),
		ParcelRepo:   repository.NewParcelRepository(db),
		Config: config.IngestConfig{
			MaxFetchAttempts: 3,
			RetryBaseDelay:   time.Millisecond,
			FreshnessWindow:  24 * time.Hour,
			FetchTimeout:     5 * time.Second,
		},
	})
	return &pipelineHarness{db: db, pipeline: p, adapter: fake}
}

func (h *pipelineHarness) count(t *testing.T, model interface{}) int64 {
	t.Helper()
	var n int64
	if err := h.db.Model(model).Count(&n).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	return n
}

func (h *pipelineHarness) job(t *testing.T, id string) *domain.IngestJob {
	t.Helper()
	var job domain.IngestJob
	if err := h.db.First(&job, "id = ?", id).Error; err != nil {
		t.Fatalf("job lookup failed: %v", err)
	}
	return &job
}

func TestIngestHappyPath(t *testing.T) {
	h := newHarness(t, &fakeAdapter{key: "test-src", body: fixtureBody(t)})
	ctx := context.Background()

	res, err := h.pipeline.Ingest(ctx, "test-src", adapter.Input{Address: "123 Main St"}, nil)
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if res.Status != IngestSuccess {
		t.Fatalf("expected success, got %s (%s)", res.Status, res.Reason)
	}
	if res.ParcelKey != "53-033-06422003a" {
		t.Errorf("unexpected parcel key: %s", res.ParcelKey)
	}
	if res.Parcel == nil || res.Parcel.OwnerName != "DOE JOHN" {
		t.Errorf("parcel not normalized: %+v", res.Parcel)
	}
	if res.Provenance == nil {
		t.Fatal("missing provenance")
	}
	if res.Provenance.Confidence < 0.8 {
		t.Errorf("well-populated record scored %f, want >= 0.8", res.Provenance.Confidence)
	}
	if res.Provenance.SourceURL != "https://src.test/parcel/1" {
		t.Errorf("unexpected source URL: %s", res.Provenance.SourceURL)
	}

	if got := h.job(t, res.JobID).Status; got != domain.JobStatusNormalized {
		t.Errorf("job ended in %s, want normalized", got)
	}
	if n := h.count(t, &domain.RawFetch{}); n != 1 {
		t.Errorf("expected 1 snapshot, got %d", n)
	}
	if n := h.count(t, &domain.ParseArtifact{}); n != 1 {
		t.Errorf("expected 1 artifact, got %d", n)
	}

	var run domain.IngestRun
	if err := h.db.First(&run, "id = ?", res.RunID).Error; err != nil {
		t.Fatalf("run lookup failed: %v", err)
	}
	if run.Status != domain.RunStatusSucceeded {
		t.Errorf("run ended in %s, want succeeded", run.Status)
	}
}

func TestIngestNotFoundIsSkipped(t *testing.T) {
	h := newHarness(t, &fakeAdapter{
		key:             "test-src",
		resolveFailures: []error{adapter.NotFound("no such parcel")},
	})

	res, err := h.pipeline.Ingest(context.Background(), "test-src", adapter.Input{ParcelID: "nope"}, nil)
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if res.Status != IngestSkipped {
		t.Errorf("expected skipped, got %s", res.Status)
	}
	if h.adapter.resolveCalls != 1 {
		t.Errorf("not_found was retried: %d resolve calls", h.adapter.resolveCalls)
	}
	if got := h.job(t, res.JobID).Status; got != domain.JobStatusFailed {
		t.Errorf("job ended in %s, want failed", got)
	}
	if n := h.count(t, &domain.NormalizedParcel{}); n != 0 {
		t.Errorf("skipped ingest wrote %d parcels", n)
	}
}

func TestIngestConfigMissingIsSkippedWithoutRetry(t *testing.T) {
	h := newHarness(t, &fakeAdapter{
		key:           "test-src",
		body:          fixtureBody(t),
		fetchFailures: []error{adapter.ConfigMissing("no browser runtime")},
	})

	res, err := h.pipeline.Ingest(context.Background(), "test-src", adapter.Input{Address: "x"}, nil)
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if res.Status != IngestSkipped {
		t.Errorf("expected skipped, got %s", res.Status)
	}
	if h.adapter.fetchCalls != 1 {
		t.Errorf("config_missing was retried: %d fetch calls", h.adapter.fetchCalls)
	}
}

func TestIngestRetriesTransientFetch(t *testing.T) {
	h := newHarness(t, &fakeAdapter{
		key:  "test-src",
		body: fixtureBody(t),
		fetchFailures: []error{
			adapter.Transient(nil, "connection reset"),
			adapter.Transient(nil, "connection reset"),
		},
	})

	res, err := h.pipeline.Ingest(context.Background(), "test-src", adapter.Input{Address: "x"}, nil)
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if res.Status != IngestSuccess {
		t.Fatalf("expected success after retries, got %s (%s)", res.Status, res.Reason)
	}
	if h.adapter.fetchCalls != 3 {
		t.Errorf("expected 3 fetch attempts, got %d", h.adapter.fetchCalls)
	}
}

func TestIngestTransientExhaustionFails(t *testing.T) {
	h := newHarness(t, &fakeAdapter{
		key:  "test-src",
		body: fixtureBody(t),
		fetchFailures: []error{
			adapter.Transient(nil, "timeout"),
			adapter.Transient(nil, "timeout"),
			adapter.Transient(nil, "timeout"),
		},
	})

	res, err := h.pipeline.Ingest(context.Background(), "test-src", adapter.Input{Address: "x"}, nil)
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if res.Status != IngestFailed {
		t.Errorf("expected failed, got %s", res.Status)
	}
	if h.adapter.fetchCalls != 3 {
		t.Errorf("expected exactly 3 attempts, got %d", h.adapter.fetchCalls)
	}

	var run domain.IngestRun
	if err := h.db.First(&run, "id = ?", res.RunID).Error; err != nil {
		t.Fatalf("run lookup failed: %v", err)
	}
	if run.Status != domain.RunStatusFailed {
		t.Errorf("run ended in %s, want failed", run.Status)
	}
}

func TestIngestFatalFails(t *testing.T) {
	h := newHarness(t, &fakeAdapter{
		key:             "test-src",
		resolveFailures: []error{adapter.Fatal(nil, "schema changed")},
	})

	res, err := h.pipeline.Ingest(context.Background(), "test-src", adapter.Input{Address: "x"}, nil)
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if res.Status != IngestFailed {
		t.Errorf("expected failed, got %s", res.Status)
	}
	if h.adapter.resolveCalls != 1 {
		t.Errorf("fatal failure was retried: %d resolve calls", h.adapter.resolveCalls)
	}
}

func TestIngestUnknownSource(t *testing.T) {
	h := newHarness(t, &fakeAdapter{key: "test-src", body: fixtureBody(t)})

	_, err := h.pipeline.Ingest(context.Background(), "nope", adapter.Input{Address: "x"}, nil)
	if err == nil {
		t.Fatal("expected error for unknown source")
	}
}

func TestIngestDedupReusesSnapshotAndArtifact(t *testing.T) {
	h := newHarness(t, &fakeAdapter{key: "test-src", body: fixtureBody(t)})
	ctx := context.Background()
	input := adapter.Input{Address: "123 Main St"}

	first, err := h.pipeline.Ingest(ctx, "test-src", input, nil)
	if err != nil {
		t.Fatalf("first ingest failed: %v", err)
	}
	second, err := h.pipeline.Ingest(ctx, "test-src", input, nil)
	if err != nil {
		t.Fatalf("second ingest failed: %v", err)
	}

	if second.Status != IngestSuccess {
		t.Fatalf("re-ingest not successful: %s (%s)", second.Status, second.Reason)
	}
	if !second.Provenance.Deduplicated {
		t.Errorf("second ingest did not report dedup")
	}
	if first.Provenance.Deduplicated {
		t.Errorf("first ingest reported dedup")
	}
	if n := h.count(t, &domain.RawFetch{}); n != 1 {
		t.Errorf("duplicate snapshot stored: %d rows", n)
	}
	if n := h.count(t, &domain.ParseArtifact{}); n != 1 {
		t.Errorf("duplicate artifact stored: %d rows", n)
	}
	if n := h.count(t, &domain.NormalizedParcel{}); n != 1 {
		t.Errorf("re-ingest duplicated the parcel: %d rows", n)
	}
	if second.ParcelKey != first.ParcelKey {
		t.Errorf("re-ingest changed the parcel key: %s != %s", second.ParcelKey, first.ParcelKey)
	}
}

func TestIngestForceBypassesDedup(t *testing.T) {
	h := newHarness(t, &fakeAdapter{key: "test-src", body: fixtureBody(t)})
	ctx := context.Background()
	input := adapter.Input{Address: "123 Main St"}

	if _, err := h.pipeline.Ingest(ctx, "test-src", input, nil); err != nil {
		t.Fatalf("first ingest failed: %v", err)
	}
	res, err := h.pipeline.Ingest(ctx, "test-src", input, &IngestOptions{Force: true})
	if err != nil {
		t.Fatalf("forced ingest failed: %v", err)
	}

	if res.Provenance.Deduplicated {
		t.Errorf("forced ingest reported dedup")
	}
	if n := h.count(t, &domain.RawFetch{}); n != 2 {
		t.Errorf("forced ingest did not store a new snapshot: %d rows", n)
	}
	if n := h.count(t, &domain.NormalizedParcel{}); n != 1 {
		t.Errorf("forced ingest duplicated the parcel: %d rows", n)
	}
}

func TestIngestSharedRun(t *testing.T) {
	h := newHarness(t, &fakeAdapter{key: "test-src", body: fixtureBody(t)})
	ctx := context.Background()

	run, err := h.pipeline.StartRun(ctx, domain.RunTriggerScheduled, "county sweep")
	if err != nil {
		t.Fatalf("StartRun failed: %v", err)
	}

	var results []*IngestResult
	for _, addr := range []string{"123 Main St", "125 Main St"} {
		res, err := h.pipeline.Ingest(ctx, "test-src", adapter.Input{Address: addr}, &IngestOptions{RunID: run.ID})
		if err != nil {
			t.Fatalf("ingest failed: %v", err)
		}
		results = append(results, res)
	}
	if err := h.pipeline.FinishRun(ctx, run, results); err != nil {
		t.Fatalf("FinishRun failed: %v", err)
	}

	jobs, err := repository.NewRunRepository(h.db).ListJobs(ctx, run.ID)
	if err != nil {
		t.Fatalf("ListJobs failed: %v", err)
	}
	if len(jobs) != 2 {
		t.Errorf("expected 2 jobs on the run, got %d", len(jobs))
	}

	var stored domain.IngestRun
	if err := h.db.First(&stored, "id = ?", run.ID).Error; err != nil {
		t.Fatalf("run lookup failed: %v", err)
	}
	if stored.Status != domain.RunStatusSucceeded {
		t.Errorf("run ended in %s, want succeeded", stored.Status)
	}
	if n := h.count(t, &domain.IngestRun{}); n != 1 {
		t.Errorf("ingest with an attached run opened extra runs: %d rows", n)
	}
}

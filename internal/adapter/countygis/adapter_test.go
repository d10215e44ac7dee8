package countygis

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rowan/parcelbase/internal/adapter"
	"github.com/rowan/parcelbase/internal/domain"
	"github.com/rowan/parcelbase/internal/identity"
)

const detailFixture = `{
	"apn": "064-22-003A",
	"situs": {"street": "123 Main St.", "city": "Seattle", "state": "WA", "zip": "98101"},
	"owner": "Doe, John",
	"building": {"yearBuilt": 1985, "bedrooms": 3, "bathrooms": 2, "livingArea": 1820},
	"valuations": [
		{"taxYear": 2023, "assessed": 450000, "market": 500000},
		{"taxYear": 2024, "assessed": 480000, "market": 520000}
	]
}`

const salesFixture = `{
	"sales": [
		{"date": "2020-01-15", "price": 400000, "buyer": "DOE JOHN", "seller": "SMITH ALICE"}
	]
}`

func fixturePayloads() []adapter.RawPayload {
	return []adapter.RawPayload{
		{URL: "/api/parcels/06422003a", StatusCode: 200, Body: []byte(detailFixture), Kind: domain.FetchKindAPI},
		{URL: "/api/parcels/06422003a/sales", StatusCode: 200, Body: []byte(salesFixture), Kind: domain.FetchKindAPI},
	}
}

func newTestAdapter(baseURL string) *Adapter {
	return New(Options{
		Key:        "king-wa-assessor",
		BaseURL:    baseURL,
		StateFips:  "53",
		CountyFips: "033",
	})
}

func TestResolveFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/parcels/search" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"results":[{"apn":"064-22-003A","detailUrl":"/api/parcels/06422003a"}]}`))
	}))
	defer srv.Close()

	a := newTestAdapter(srv.URL)
	target, err := a.Resolve(context.Background(), adapter.Input{Address: "123 Main St"})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if target.SourceRef != "064-22-003A" {
		t.Errorf("unexpected source ref: %s", target.SourceRef)
	}
}

func TestResolveNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results":[]}`))
	}))
	defer srv.Close()

	a := newTestAdapter(srv.URL)
	_, err := a.Resolve(context.Background(), adapter.Input{Address: "1 Nowhere Ln"})
	if !adapter.IsKind(err, adapter.FailureNotFound) {
		t.Errorf("expected not_found, got %v", err)
	}
}

func TestResolveServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	a := newTestAdapter(srv.URL)
	_, err := a.Resolve(context.Background(), adapter.Input{ParcelID: "064-22-003A"})
	if !adapter.IsKind(err, adapter.FailureTransient) {
		t.Errorf("expected transient, got %v", err)
	}
}

func TestFetchCollectsDetailAndSales(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/parcels/06422003a":
			w.Write([]byte(detailFixture))
		case "/api/parcels/06422003a/sales":
			w.Write([]byte(salesFixture))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	a := newTestAdapter(srv.URL)
	res, err := a.Fetch(context.Background(), &adapter.Target{URL: "/api/parcels/06422003a"})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(res.Payloads) != 2 {
		t.Fatalf("expected 2 payloads, got %d", len(res.Payloads))
	}
	if res.SessionReused {
		t.Errorf("api adapter should never report session reuse")
	}
}

func TestFetchMissingSalesIsNotFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/parcels/06422003a" {
			w.Write([]byte(detailFixture))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	a := newTestAdapter(srv.URL)
	res, err := a.Fetch(context.Background(), &adapter.Target{URL: "/api/parcels/06422003a"})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(res.Payloads) != 1 {
		t.Errorf("expected detail payload only, got %d payloads", len(res.Payloads))
	}
}

func TestExtractFixture(t *testing.T) {
	a := newTestAdapter("http://unused")
	ex := a.Extract(fixturePayloads())

	if len(ex.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", ex.Warnings)
	}
	g := ex.Record.GIS
	if g == nil {
		t.Fatal("nil GIS record")
	}
	if g.ParcelID != "064-22-003A" || g.Owner != "Doe, John" {
		t.Errorf("unexpected identity fields: %+v", g)
	}
	if g.YearBuilt == nil || *g.YearBuilt != 1985 {
		t.Errorf("yearBuilt not extracted")
	}
	if len(g.Assessments) != 2 || len(g.Sales) != 1 {
		t.Errorf("children not extracted: %d assessments, %d sales", len(g.Assessments), len(g.Sales))
	}
}

func TestExtractMalformedBecomesWarning(t *testing.T) {
	a := newTestAdapter("http://unused")
	ex := a.Extract([]adapter.RawPayload{
		{Body: []byte("<html>not json</html>"), Kind: domain.FetchKindAPI},
		{Body: []byte(`{"apn":"1","bogusField":true}`), Kind: domain.FetchKindAPI},
	})
	if len(ex.Warnings) < 2 {
		t.Errorf("expected warnings for malformed and unrecognized input, got %v", ex.Warnings)
	}
	if ex.Record == nil || ex.Record.GIS == nil {
		t.Fatal("extract must still produce a record")
	}
}

// TestExtractReproducible verifies the artifact reproducibility contract:
// the same parser version against the same raw input yields an identical
// content signature.
func TestExtractReproducible(t *testing.T) {
	a := newTestAdapter("http://unused")

	sig1, err := identity.Signature(a.Extract(fixturePayloads()).Record)
	if err != nil {
		t.Fatalf("Signature failed: %v", err)
	}
	sig2, err := identity.Signature(a.Extract(fixturePayloads()).Record)
	if err != nil {
		t.Fatalf("Signature failed: %v", err)
	}
	if sig1 != sig2 {
		t.Errorf("re-extraction changed the content signature: %s != %s", sig1, sig2)
	}
}

func TestNormalizeFixture(t *testing.T) {
	a := newTestAdapter("http://unused")
	ex := a.Extract(fixturePayloads())

	res, err := a.Normalize(ex.Record)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}

	p := res.Parcel
	if p.StateFips != "53" || p.CountyFips != "033" {
		t.Errorf("jurisdiction not applied: %s/%s", p.StateFips, p.CountyFips)
	}
	if p.ParcelIDNorm != "06422003a" {
		t.Errorf("parcel id not normalized: %s", p.ParcelIDNorm)
	}
	if p.SitusFullAddress != "123 MAIN ST SEATTLE WA 98101" {
		t.Errorf("unexpected full address: %q", p.SitusFullAddress)
	}
	if len(res.Sales) != 1 {
		t.Errorf("expected 1 sale, got %d", len(res.Sales))
	}
	if res.Confidence < 0.8 || res.Confidence > 1.0 {
		t.Errorf("confidence out of expected range: %f", res.Confidence)
	}
}

func TestNormalizeWrongKind(t *testing.T) {
	a := newTestAdapter("http://unused")
	if _, err := a.Normalize(&adapter.Record{Kind: adapter.RecordKindMLS}); err == nil {
		t.Errorf("expected error for wrong record kind")
	}
	if _, err := a.Normalize(nil); err == nil {
		t.Errorf("expected error for nil record")
	}
}

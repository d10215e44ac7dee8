// Package countygis implements the adapter contract for county GIS/assessor
// portals that expose an ArcGIS-style JSON REST surface. It is the reference
// api-platform adapter: resolve and fetch are plain HTTP, extract and
// normalize are pure transforms.
package countygis

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rowan/parcelbase/internal/adapter"
	"github.com/rowan/parcelbase/internal/domain"
	"github.com/rowan/parcelbase/internal/identity"
)

// ParserVersion tags artifacts produced by this package's extract logic.
// Bump on any change that can alter extraction output.
const ParserVersion = "countygis/1.2.0"

// Options configures one county portal instance.
type Options struct {
	Key         string
	BaseURL     string
	StateFips   string
	CountyFips  string
	HTTPTimeout time.Duration
}

// Adapter is a county GIS portal adapter. One instance per registered source,
// shared across concurrent jobs.
type Adapter struct {
	opts   Options
	client *resty.Client
}

// New creates a county GIS adapter.
func New(opts Options) *Adapter {
	if opts.HTTPTimeout == 0 {
		opts.HTTPTimeout = 30 * time.Second
	}
	client := resty.New().
		SetBaseURL(opts.BaseURL).
		SetTimeout(opts.HTTPTimeout).
		SetHeader("Accept", "application/json")
	return &Adapter{opts: opts, client: client}
}

// Key returns the source key this adapter serves.
func (a *Adapter) Key() string {
	return a.opts.Key
}

// ParserVersion identifies the extract logic version.
func (a *Adapter) ParserVersion() string {
	return ParserVersion
}

// searchResponse is the portal's parcel search result shape.
type searchResponse struct {
	Results []struct {
		APN       string `json:"apn"`
		DetailURL string `json:"detailUrl"`
	} `json:"results"`
}

// Resolve locates the parcel detail resource via the portal search endpoint.
// Deterministic for identical input given stable portal state.
func (a *Adapter) Resolve(ctx context.Context, input adapter.Input) (*adapter.Target, error) {
	if input.Empty() {
		return nil, adapter.Fatal(nil, "empty input")
	}

	req := a.client.R().SetContext(ctx)
	if input.ParcelID != "" {
		req.SetQueryParam("apn", identity.NormalizeParcelID(input.ParcelID))
	} else {
		req.SetQueryParam("address", input.Address)
	}

	resp, err := req.Get("/api/parcels/search")
	if err != nil {
		return nil, adapter.Transient(err, "parcel search request failed")
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, adapter.NotFound("no parcel matches %s", input.Describe())
	}
	if resp.StatusCode() >= 500 {
		return nil, adapter.Transient(nil, "parcel search returned %d", resp.StatusCode())
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, adapter.Fatal(nil, "parcel search returned %d", resp.StatusCode())
	}

	var sr searchResponse
	if err := json.Unmarshal(resp.Body(), &sr); err != nil {
		return nil, adapter.Fatal(err, "malformed search response")
	}
	if len(sr.Results) == 0 {
		return nil, adapter.NotFound("no parcel matches %s", input.Describe())
	}

	hit := sr.Results[0]
	return &adapter.Target{
		URL:       hit.DetailURL,
		SourceRef: hit.APN,
	}, nil
}

// Fetch retrieves the parcel detail document and its sales history, one raw
// payload per request. Portal API calls are stateless, so no session is ever
// reused.
func (a *Adapter) Fetch(ctx context.Context, target *adapter.Target) (*adapter.FetchResult, error) {
	detail, err := a.getJSON(ctx, target.URL)
	if err != nil {
		return nil, err
	}

	payloads := []adapter.RawPayload{*detail}

	// Sales history is a separate resource; its absence is not an error.
	sales, err := a.getJSON(ctx, target.URL+"/sales")
	if err == nil {
		payloads = append(payloads, *sales)
	} else if !adapter.IsKind(err, adapter.FailureNotFound) {
		return nil, err
	}

	return &adapter.FetchResult{Payloads: payloads, SessionReused: false}, nil
}

func (a *Adapter) getJSON(ctx context.Context, url string) (*adapter.RawPayload, error) {
	resp, err := a.client.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, adapter.Transient(err, "fetch failed for %s", url)
	}
	switch {
	case resp.StatusCode() == http.StatusNotFound:
		return nil, adapter.NotFound("resource absent: %s", url)
	case resp.StatusCode() >= 500:
		return nil, adapter.Transient(nil, "fetch returned %d for %s", resp.StatusCode(), url)
	case resp.StatusCode() != http.StatusOK:
		return nil, adapter.Fatal(nil, "fetch returned %d for %s", resp.StatusCode(), url)
	}

	return &adapter.RawPayload{
		URL:        url,
		StatusCode: resp.StatusCode(),
		Body:       resp.Body(),
		Kind:       domain.FetchKindAPI,
	}, nil
}

// detailDocument is the recognized shape of the parcel detail payload.
type detailDocument struct {
	APN   string `json:"apn"`
	Situs struct {
		Street string `json:"street"`
		City   string `json:"city"`
		State  string `json:"state"`
		Zip    string `json:"zip"`
	} `json:"situs"`
	Owner    string `json:"owner"`
	Building struct {
		YearBuilt  *int     `json:"yearBuilt"`
		Bedrooms   *int     `json:"bedrooms"`
		Bathrooms  *float64 `json:"bathrooms"`
		LivingArea *int     `json:"livingArea"`
	} `json:"building"`
	Valuations []struct {
		TaxYear     int    `json:"taxYear"`
		Assessed    *int64 `json:"assessed"`
		Market      *int64 `json:"market"`
		Land        *int64 `json:"land"`
		Improvement *int64 `json:"improvement"`
	} `json:"valuations"`
}

// salesDocument is the recognized shape of the sales history payload.
type salesDocument struct {
	Sales []struct {
		Date   string `json:"date"`
		Price  int64  `json:"price"`
		Buyer  string `json:"buyer"`
		Seller string `json:"seller"`
	} `json:"sales"`
}

var detailKnownFields = map[string]bool{
	"apn": true, "situs": true, "owner": true, "building": true, "valuations": true,
}

// Extract parses the raw payloads into a GIS record. Pure; malformed input
// and unrecognized fields surface as warnings, never as failures.
func (a *Adapter) Extract(payloads []adapter.RawPayload) *adapter.Extraction {
	rec := &adapter.GISRecord{}
	var warnings []string

	for i, p := range payloads {
		if p.Kind != domain.FetchKindAPI && p.Kind != domain.FetchKindJSON {
			warnings = append(warnings, fmt.Sprintf("payload %d: unsupported kind %q", i, p.Kind))
			continue
		}

		// Sales payloads and detail payloads are distinguished by shape.
		var probe map[string]json.RawMessage
		if err := json.Unmarshal(p.Body, &probe); err != nil {
			warnings = append(warnings, fmt.Sprintf("payload %d: malformed JSON: %v", i, err))
			continue
		}

		if _, ok := probe["sales"]; ok {
			var doc salesDocument
			if err := json.Unmarshal(p.Body, &doc); err != nil {
				warnings = append(warnings, fmt.Sprintf("payload %d: malformed sales document: %v", i, err))
				continue
			}
			for _, s := range doc.Sales {
				rec.Sales = append(rec.Sales, adapter.SaleEvent{
					Date: s.Date, Price: s.Price, Buyer: s.Buyer, Seller: s.Seller,
				})
			}
			continue
		}

		unknown := make([]string, 0)
		for k := range probe {
			if !detailKnownFields[k] {
				unknown = append(unknown, k)
			}
		}
		sort.Strings(unknown)
		for _, k := range unknown {
			warnings = append(warnings, fmt.Sprintf("payload %d: unrecognized field %q", i, k))
		}

		var doc detailDocument
		if err := json.Unmarshal(p.Body, &doc); err != nil {
			warnings = append(warnings, fmt.Sprintf("payload %d: malformed detail document: %v", i, err))
			continue
		}

		rec.ParcelID = doc.APN
		rec.SitusStreet = doc.Situs.Street
		rec.SitusCity = doc.Situs.City
		rec.SitusState = doc.Situs.State
		rec.SitusZip = doc.Situs.Zip
		rec.Owner = doc.Owner
		rec.YearBuilt = doc.Building.YearBuilt
		rec.Bedrooms = doc.Building.Bedrooms
		rec.Bathrooms = doc.Building.Bathrooms
		rec.LivingAreaSqFt = doc.Building.LivingArea
		for _, v := range doc.Valuations {
			rec.Assessments = append(rec.Assessments, adapter.YearValue{
				TaxYear:          v.TaxYear,
				AssessedValue:    v.Assessed,
				MarketValue:      v.Market,
				LandValue:        v.Land,
				ImprovementValue: v.Improvement,
			})
		}
	}

	return &adapter.Extraction{
		Record:   &adapter.Record{Kind: adapter.RecordKindGIS, GIS: rec},
		Warnings: warnings,
	}
}

// Normalize maps the GIS record onto the canonical schema and scores
// confidence from the fixed weight table.
func (a *Adapter) Normalize(rec *adapter.Record) (*adapter.NormalizedResult, error) {
	if rec == nil || rec.Kind != adapter.RecordKindGIS || rec.GIS == nil {
		return nil, fmt.Errorf("countygis: cannot normalize record kind %q", recKind(rec))
	}
	g := rec.GIS

	parcel := &domain.NormalizedParcel{
		StateFips:    a.opts.StateFips,
		CountyFips:   a.opts.CountyFips,
		ParcelIDNorm: identity.NormalizeParcelID(g.ParcelID),
		ParcelIDRaw:  g.ParcelID,

		SitusStreet:    identity.NormalizeAddress(g.SitusStreet),
		SitusCity:      identity.NormalizeAddress(g.SitusCity),
		SitusState:     identity.NormalizeAddress(g.SitusState),
		SitusZip:       g.SitusZip,
		OwnerName:      identity.NormalizeAddress(g.Owner),
		YearBuilt:      g.YearBuilt,
		Bedrooms:       g.Bedrooms,
		Bathrooms:      g.Bathrooms,
		LivingAreaSqFt: g.LivingAreaSqFt,
	}
	if g.SitusStreet != "" {
		parcel.SitusFullAddress = identity.NormalizeAddress(
			g.SitusStreet + " " + g.SitusCity + " " + g.SitusState + " " + g.SitusZip)
	}
	if parcel.ParcelIDNorm == "" {
		return nil, fmt.Errorf("countygis: record has no parcel id")
	}

	res := &adapter.NormalizedResult{Parcel: parcel}

	for _, v := range g.Assessments {
		res.Assessments = append(res.Assessments, domain.Assessment{
			TaxYear:          v.TaxYear,
			AssessedValue:    v.AssessedValue,
			MarketValue:      v.MarketValue,
			LandValue:        v.LandValue,
			ImprovementValue: v.ImprovementValue,
		})
	}
	sort.Slice(res.Assessments, func(i, j int) bool {
		return res.Assessments[i].TaxYear < res.Assessments[j].TaxYear
	})

	for _, s := range g.Sales {
		res.Sales = append(res.Sales, domain.Sale{
			SaleDate: s.Date,
			Price:    s.Price,
			Buyer:    s.Buyer,
			Seller:   s.Seller,
		})
	}
	sort.Slice(res.Sales, func(i, j int) bool {
		return res.Sales[i].SaleDate < res.Sales[j].SaleDate
	})

	res.Confidence = adapter.ScoreConfidence(res, adapter.DefaultConfidenceRules())
	parcel.Confidence = res.Confidence
	return res, nil
}

func recKind(rec *adapter.Record) adapter.RecordKind {
	if rec == nil {
		return ""
	}
	return rec.Kind
}

// Package mlshaven implements the adapter contract for the MLSHaven listing
// portal. It is the reference scrape-platform adapter: resolve and fetch run
// through a headless browser session, extract parses the rendered DOM with
// goquery.
package mlshaven

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rowan/parcelbase/internal/adapter"
	"github.com/rowan/parcelbase/internal/browser"
	"github.com/rowan/parcelbase/internal/domain"
	"github.com/rowan/parcelbase/internal/identity"
)

// ParserVersion tags artifacts produced by this package's extract logic.
// Bump on any change that can alter extraction output.
const ParserVersion = "mlshaven/2.0.1"

// Options configures one listing portal instance.
type Options struct {
	Key               string
	BaseURL           string
	StateFips         string
	CountyFips        string
	NavigationTimeout time.Duration
}

// Adapter is a browser-driven MLS listing adapter. One instance per
// registered source, shared across concurrent jobs; the browser session
// warms up on first use and stays warm for the lifetime of the instance.
type Adapter struct {
	opts Options
	nav  browser.Navigator

	mu   sync.Mutex
	warm bool
}

// New creates an MLS adapter backed by the given navigator.
func New(opts Options, nav browser.Navigator) *Adapter {
	if opts.NavigationTimeout == 0 {
		opts.NavigationTimeout = 60 * time.Second
	}
	return &Adapter{opts: opts, nav: nav}
}

// Key returns the source key this adapter serves.
func (a *Adapter) Key() string {
	return a.opts.Key
}

// ParserVersion identifies the extract logic version.
func (a *Adapter) ParserVersion() string {
	return ParserVersion
}

// Resolve locates a listing through the portal's address search page. The
// portal has no parcel-number search, so parcel-id-only input cannot match.
func (a *Adapter) Resolve(ctx context.Context, input adapter.Input) (*adapter.Target, error) {
	if input.Address == "" {
		return nil, adapter.NotFound("listing search requires an address, got %s", input.Describe())
	}

	searchURL := a.opts.BaseURL + "/search?q=" + url.QueryEscape(input.Address)
	capture, err := a.navigate(ctx, searchURL)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(capture.HTML))
	if err != nil {
		return nil, adapter.Fatal(err, "unparsable search page")
	}

	hit := doc.Find(".listing-result a[href]").First()
	if hit.Length() == 0 {
		return nil, adapter.NotFound("no listing matches %s", input.Describe())
	}

	href, _ := hit.Attr("href")
	listingID, _ := hit.Attr("data-listing-id")
	return &adapter.Target{
		URL:       a.absoluteURL(href),
		SourceRef: listingID,
	}, nil
}

// Fetch renders the listing detail page and captures its DOM as a single
// html payload. SessionReused reports whether the browser session was
// already warm when this fetch started.
func (a *Adapter) Fetch(ctx context.Context, target *adapter.Target) (*adapter.FetchResult, error) {
	a.mu.Lock()
	reused := a.warm
	a.mu.Unlock()

	capture, err := a.navigate(ctx, target.URL)
	if err != nil {
		return nil, err
	}

	return &adapter.FetchResult{
		Payloads: []adapter.RawPayload{{
			URL:        capture.URL,
			StatusCode: 200,
			Body:       []byte(capture.HTML),
			Kind:       domain.FetchKindHTML,
		}},
		SessionReused: reused,
	}, nil
}

func (a *Adapter) navigate(ctx context.Context, u string) (*browser.Capture, error) {
	capture, err := a.nav.Navigate(ctx, u, a.opts.NavigationTimeout)
	if err != nil {
		return nil, err
	}
	a.mu.Lock()
	a.warm = true
	a.mu.Unlock()
	return capture, nil
}

func (a *Adapter) absoluteURL(href string) string {
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	return a.opts.BaseURL + href
}

// Extract parses a rendered listing page into an MLS record. Pure; missing
// or unparsable page elements surface as warnings, never as failures.
func (a *Adapter) Extract(payloads []adapter.RawPayload) *adapter.Extraction {
	rec := &adapter.MLSRecord{}
	var warnings []string

	for i, p := range payloads {
		if p.Kind != domain.FetchKindHTML {
			warnings = append(warnings, fmt.Sprintf("payload %d: unsupported kind %q", i, p.Kind))
			continue
		}

		doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(p.Body)))
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("payload %d: unparsable HTML: %v", i, err))
			continue
		}

		listing := doc.Find("[data-listing-id]").First()
		if listing.Length() == 0 {
			warnings = append(warnings, fmt.Sprintf("payload %d: no listing element found", i))
			continue
		}
		rec.ListingID, _ = listing.Attr("data-listing-id")

		rec.SitusStreet = text(doc, ".listing-address .street")
		rec.SitusCity = text(doc, ".listing-address .city")
		rec.SitusState = text(doc, ".listing-address .state")
		rec.SitusZip = text(doc, ".listing-address .zip")
		rec.ParcelID = text(doc, "[data-fact='apn']")

		if raw := text(doc, ".list-price"); raw != "" {
			if v, err := parseMoney(raw); err != nil {
				warnings = append(warnings, fmt.Sprintf("payload %d: unparsable list price %q", i, raw))
			} else {
				rec.ListPrice = &v
			}
		}

		rec.YearBuilt = intFact(doc, "year-built", &warnings, i)
		rec.Bedrooms = intFact(doc, "beds", &warnings, i)
		rec.LivingAreaSqFt = intFact(doc, "sqft", &warnings, i)
		if raw := text(doc, "[data-fact='baths']"); raw != "" {
			if v, err := strconv.ParseFloat(raw, 64); err != nil {
				warnings = append(warnings, fmt.Sprintf("payload %d: unparsable baths %q", i, raw))
			} else {
				rec.Bathrooms = &v
			}
		}

		doc.Find(".sale-history tbody tr").Each(func(_ int, row *goquery.Selection) {
			cells := row.Find("td")
			if cells.Length() < 2 {
				warnings = append(warnings, fmt.Sprintf("payload %d: short sale-history row", i))
				return
			}
			date := strings.TrimSpace(cells.Eq(0).Text())
			price, err := parseMoney(cells.Eq(1).Text())
			if err != nil {
				warnings = append(warnings, fmt.Sprintf("payload %d: unparsable sale price %q", i, cells.Eq(1).Text()))
				return
			}
			rec.Sales = append(rec.Sales, adapter.SaleEvent{Date: date, Price: price})
		})
	}

	return &adapter.Extraction{
		Record:   &adapter.Record{Kind: adapter.RecordKindMLS, MLS: rec},
		Warnings: warnings,
	}
}

func text(doc *goquery.Document, selector string) string {
	return strings.TrimSpace(doc.Find(selector).First().Text())
}

func intFact(doc *goquery.Document, fact string, warnings *[]string, payload int) *int {
	raw := text(doc, fmt.Sprintf("[data-fact='%s']", fact))
	if raw == "" {
		return nil
	}
	v, err := strconv.Atoi(strings.ReplaceAll(raw, ",", ""))
	if err != nil {
		*warnings = append(*warnings, fmt.Sprintf("payload %d: unparsable %s %q", payload, fact, raw))
		return nil
	}
	return &v
}

// parseMoney parses a display amount like "$450,000" into an integer dollar
// value.
func parseMoney(raw string) (int64, error) {
	cleaned := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, raw)
	if cleaned == "" {
		return 0, fmt.Errorf("no digits in %q", raw)
	}
	return strconv.ParseInt(cleaned, 10, 64)
}

// Normalize maps the MLS record onto the canonical schema and scores
// confidence from the fixed weight table. Listings that expose no county
// parcel number cannot be keyed and are rejected here.
func (a *Adapter) Normalize(rec *adapter.Record) (*adapter.NormalizedResult, error) {
	if rec == nil || rec.Kind != adapter.RecordKindMLS || rec.MLS == nil {
		return nil, fmt.Errorf("mlshaven: cannot normalize record kind %q", recKind(rec))
	}
	m := rec.MLS

	parcel := &domain.NormalizedParcel{
		StateFips:    a.opts.StateFips,
		CountyFips:   a.opts.CountyFips,
		ParcelIDNorm: identity.NormalizeParcelID(m.ParcelID),
		ParcelIDRaw:  m.ParcelID,

		SitusStreet:    identity.NormalizeAddress(m.SitusStreet),
		SitusCity:      identity.NormalizeAddress(m.SitusCity),
		SitusState:     identity.NormalizeAddress(m.SitusState),
		SitusZip:       m.SitusZip,
		YearBuilt:      m.YearBuilt,
		Bedrooms:       m.Bedrooms,
		Bathrooms:      m.Bathrooms,
		LivingAreaSqFt: m.LivingAreaSqFt,
	}
	if m.SitusStreet != "" {
		parcel.SitusFullAddress = identity.NormalizeAddress(
			m.SitusStreet + " " + m.SitusCity + " " + m.SitusState + " " + m.SitusZip)
	}
	if parcel.ParcelIDNorm == "" {
		return nil, fmt.Errorf("mlshaven: listing %s exposes no parcel number", m.ListingID)
	}

	res := &adapter.NormalizedResult{Parcel: parcel}

	for _, s := range m.Sales {
		res.Sales = append(res.Sales, domain.Sale{
			SaleDate: s.Date,
			Price:    s.Price,
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

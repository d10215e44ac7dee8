// Package sources wires the built-in source catalog into a registry. Each
// entry pairs the static source configuration with the factory that builds
// its adapter on first use.
package sources

import (
	"fmt"

	"github.com/rowan/parcelbase/internal/adapter"
	"github.com/rowan/parcelbase/internal/adapter/countygis"
	"github.com/rowan/parcelbase/internal/adapter/mlshaven"
	"github.com/rowan/parcelbase/internal/browser"
	"github.com/rowan/parcelbase/internal/config"
	"github.com/rowan/parcelbase/internal/registry"
)

// RegisterBuiltin registers every built-in source into reg.
func RegisterBuiltin(reg *registry.Registry, cfg *config.Config) error {
	nav := &browser.ChromeNavigator{RenderWait: cfg.Browser.RenderWait}

	entries := []struct {
		key     string
		cfg     registry.Config
		factory registry.Factory
	}{
		{
			key: "king-wa-assessor",
			cfg: registry.Config{
				DisplayName: "King County Assessor GIS Portal",
				StateFips:   "53",
				CountyFips:  []string{"033"},
				SourceType:  "assessor",
				Platform:    "api",
				BaseURL:     "https://gisdata.kingcounty.gov",
				Capabilities: []string{
					"addressSearch",
					"salesHistory",
				},
				RateLimit: registry.RatePolicy{RequestsPerSecond: 4, Burst: 8},
			},
			factory: gisFactory,
		},
		{
			key: "maricopa-az-assessor",
			cfg: registry.Config{
				DisplayName: "Maricopa County Assessor Portal",
				StateFips:   "04",
				CountyFips:  []string{"013"},
				SourceType:  "assessor",
				Platform:    "api",
				BaseURL:     "https://mcassessor.maricopa.gov",
				Capabilities: []string{
					"addressSearch",
					"salesHistory",
				},
				RateLimit: registry.RatePolicy{RequestsPerSecond: 2, Burst: 4},
			},
			factory: gisFactory,
		},
		{
			key: "mlshaven-pdx",
			cfg: registry.Config{
				DisplayName: "MLSHaven Portland Metro",
				StateFips:   "41",
				CountyFips:  []string{"051", "005", "067"},
				SourceType:  "mls",
				Platform:    "playwright",
				BaseURL:     "https://www.mlshaven.com",
				Capabilities: []string{
					"addressSearch",
					"listings",
					"salesHistory",
				},
				RateLimit: registry.RatePolicy{RequestsPerSecond: 0.5, Burst: 1},
			},
			factory: mlsFactory(nav, cfg),
		},
	}

	for _, e := range entries {
		if err := reg.Register(e.key, e.cfg, e.factory); err != nil {
			return fmt.Errorf("register %s: %w", e.key, err)
		}
	}
	return nil
}

func gisFactory(cfg registry.Config) adapter.Adapter {
	county := ""
	if len(cfg.CountyFips) > 0 {
		county = cfg.CountyFips[0]
	}
	return countygis.New(countygis.Options{
		Key:        cfg.Key,
		BaseURL:    cfg.BaseURL,
		StateFips:  cfg.StateFips,
		CountyFips: county,
	})
}

func mlsFactory(nav browser.Navigator, appCfg *config.Config) registry.Factory {
	return func(cfg registry.Config) adapter.Adapter {
		county := ""
		if len(cfg.CountyFips) > 0 {
			county = cfg.CountyFips[0]
		}
		return mlshaven.New(mlshaven.Options{
			Key:               cfg.Key,
			BaseURL:           cfg.BaseURL,
			StateFips:         cfg.StateFips,
			CountyFips:        county,
			NavigationTimeout: appCfg.Browser.NavigationTimeout,
		}, nav)
	}
}

package main

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/froth-ops/froth/pkg/audit"
	"github.com/froth-ops/froth/pkg/cache"
	"github.com/froth-ops/froth/pkg/config"
	"github.com/froth-ops/froth/pkg/engine"
	"github.com/froth-ops/froth/pkg/metrics"
	"github.com/froth-ops/froth/pkg/provider"
	"github.com/froth-ops/froth/pkg/quota"
	"github.com/froth-ops/froth/pkg/vectorindex"
)

// app holds the wired pipeline and its stores. All stores share cfg.DBPath;
// each subsystem owns its own tables.
type app struct {
	cfg      *config.Config
	store    *cache.Store
	index    *vectorindex.Index
	ledger   *quota.Ledger
	auditor  *audit.Log
	engine   *engine.Engine
	registry *prometheus.Registry
}

// newApp opens the stores and wires the engine. When withProvider is false
// the engine has no generator or embedder, so only cache hits resolve; read
// commands use this to avoid requiring an API key.
func newApp(configPath string, withProvider bool) (*app, error) {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	a := &app{cfg: cfg, registry: prometheus.NewRegistry()}

	a.store, err = cache.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("init cache: %w", err)
	}
	a.index, err = vectorindex.New(cfg.DBPath)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init index: %w", err)
	}
	a.ledger, err = quota.New(cfg.DBPath, cfg.Quota.Limits)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init quota ledger: %w", err)
	}
	a.auditor, err = audit.New(cfg.DBPath, audit.Config{
		RetentionDays: cfg.Audit.RetentionDays,
		Buffer:        cfg.Audit.Buffer,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init audit log: %w", err)
	}

	var gen provider.Generator
	var emb provider.Embedder
	if withProvider {
		client := provider.NewClient(cfg.Provider)
		gen = client
		if cfg.Similarity.Enabled {
			emb = client
		}
	}

	threshold := cfg.Similarity.Threshold
	if !cfg.Similarity.Enabled {
		threshold = 0
	}

	a.engine = engine.New(engine.Options{
		Cache:      a.store,
		Index:      a.index,
		Ledger:     a.ledger,
		Auditor:    a.auditor,
		Generator:  gen,
		Embedder:   emb,
		Estimator:  provider.NewEstimator(),
		Pricing:    cfg.Pricing,
		Model:      cfg.Provider.Model,
		Threshold:  threshold,
		TopK:       cfg.Similarity.TopK,
		GenTimeout: cfg.Provider.Timeout,
		Metrics:    metrics.New(a.registry),
	})
	return a, nil
}

func (a *app) Close() {
	if a.auditor != nil {
		_ = a.auditor.Close()
	}
	if a.ledger != nil {
		_ = a.ledger.Close()
	}
	if a.index != nil {
		_ = a.index.Close()
	}
	if a.store != nil {
		_ = a.store.Close()
	}
}

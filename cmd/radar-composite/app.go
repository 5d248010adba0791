package main

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/i474232898/radar-composite/internal/config"
	"github.com/i474232898/radar-composite/internal/ingest"
	"github.com/i474232898/radar-composite/internal/metrics"
	"github.com/i474232898/radar-composite/internal/radar"
	"github.com/i474232898/radar-composite/internal/raster"
	"github.com/i474232898/radar-composite/internal/remote"
	"github.com/i474232898/radar-composite/internal/retention"
	"github.com/i474232898/radar-composite/internal/sample"
	"github.com/i474232898/radar-composite/internal/store"
)

// build wires the stores, remote source and workers behind one service.
// Metrics are recorded only when reg is set.
func build(cfg *config.AppConfig, reg prometheus.Registerer, log *zap.SugaredLogger) (*radar.Service, error) {
	codec, err := raster.CodecByName(cfg.Codec)
	if err != nil {
		return nil, err
	}
	payload, err := raster.CodecByName(cfg.PayloadFormat)
	if err != nil {
		return nil, err
	}

	var m metrics.Metrics = metrics.Noop{}
	if reg != nil {
		m = metrics.NewProm("radar", reg)
	}

	// Grid store holding the point-ready artifacts.
	grids, err := store.New(cfg.GridDir, "output"+codec.Ext(), log.Named("grids"))
	if err != nil {
		return nil, fmt.Errorf("grid store: %w", err)
	}

	// Optional store keeping the decompressed remote payloads.
	var raw *store.Artifacts
	roots := []*store.Artifacts{grids}
	if cfg.RawDir != "" {
		raw, err = store.New(cfg.RawDir, cfg.RawFile(), log.Named("raw"))
		if err != nil {
			return nil, fmt.Errorf("raw store: %w", err)
		}
		roots = append(roots, raw)
	}

	// Remote directory index with resilience (backoff + circuit breaker).
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	source, err := remote.NewHTTPSource(httpClient, cfg.BaseURL, cfg.RemoteSuffix, remote.BackoffConfig{
		MaxRetries:      cfg.HTTPMaxRetries,
		InitialInterval: remote.DefaultInitialInterval,
		MaxInterval:     remote.DefaultMaxInterval,
	})
	if err != nil {
		return nil, err
	}

	ingestor := ingest.New(source, grids, codec, ingest.Options{
		Suffix:   cfg.RemoteSuffix,
		Decoder:  payload,
		Raw:      raw,
		Sidecars: cfg.SidecarPatterns,
	}, m, log.Named("ingest"))
	sweeper := retention.New(cfg.Retention, roots, m, log.Named("retention"))
	sampler := sample.New(grids, codec, cfg.SampleWorkers, m, log.Named("sample"))

	return radar.NewService(ingestor, sweeper, sampler, grids, log), nil
}

// Package runtime assembles the agent's components. All wiring is explicit
// constructor injection; nothing here is a singleton.
package runtime

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tphakala/fieldsync-go/internal/centralstore"
	"github.com/tphakala/fieldsync-go/internal/conf"
	"github.com/tphakala/fieldsync-go/internal/connectivity"
	"github.com/tphakala/fieldsync-go/internal/fieldops"
	"github.com/tphakala/fieldsync-go/internal/localstore"
	"github.com/tphakala/fieldsync-go/internal/logging"
	"github.com/tphakala/fieldsync-go/internal/media"
	"github.com/tphakala/fieldsync-go/internal/observability"
	"github.com/tphakala/fieldsync-go/internal/syncengine"
	"github.com/tphakala/fieldsync-go/internal/voice"
)

// Context carries build metadata injected at startup.
type Context struct {
	Version   string
	BuildDate string
}

// Container holds the wired agent components.
type Container struct {
	Settings    *conf.Settings
	Store       *localstore.Store
	Adapter     *centralstore.MySQLAdapter
	Probe       *connectivity.Probe
	Engine      *syncengine.Engine
	Coordinator *fieldops.Coordinator
	Registry    *prometheus.Registry
	Metrics     *observability.SyncMetrics
}

// Build constructs the full component graph from settings. The caller owns
// the container and must Close it.
func Build(settings *conf.Settings) (*Container, error) {
	store, err := localstore.Open(localstore.Config{
		Path:           settings.Store.Path,
		AttemptCeiling: settings.Sync.AttemptCeiling,
		Debug:          settings.Debug,
	})
	if err != nil {
		return nil, err
	}

	adapter, err := centralstore.NewMySQLAdapter(&settings.Central, settings.Timeouts.Adapter)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	registry := prometheus.NewRegistry()
	metrics, err := observability.NewSyncMetrics(registry)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	// Probe results are cached for one base interval so repeated status
	// calls do not hammer an unreachable network.
	probe := connectivity.NewProbe(adapter, settings.Timeouts.Probe, settings.Sync.BaseInterval)

	engine := syncengine.New(store, adapter, probe, syncengine.Config{
		BaseInterval:     settings.Sync.BaseInterval,
		BatchCap:         settings.Sync.BatchCap,
		MinRetryInterval: settings.Sync.MinRetryInterval,
		RetentionWindow:  settings.Sync.RetentionWindow,
	}, metrics)

	blobs, err := media.NewLocalBlobStore(settings.Media.BlobDir)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	patterns := make([]voice.Pattern, 0, len(settings.Voice.Patterns))
	for _, p := range settings.Voice.Patterns {
		patterns = append(patterns, voice.Pattern{
			Kind:   voice.CommandKind(p.Kind),
			Phrase: p.Phrase,
		})
	}
	interp := voice.NewInterpreter(settings.Voice.Thresholds, patterns)

	// Transcriber and translator are external providers plugged in by the
	// build that embeds them; the base agent runs without annotation.
	coordinator := fieldops.New(store, engine, probe, blobs, nil, nil, interp, fieldops.Config{
		TechnicianID:       settings.Main.DeviceID,
		QueueSoftLimit:     settings.Sync.QueueSoftLimit,
		MinDiskFree:        settings.Media.MinDiskFree,
		TranscriberTimeout: settings.Timeouts.Transcriber,
		TranslatorTimeout:  settings.Timeouts.Translator,
		BlobTimeout:        settings.Timeouts.Blob,
		TranslateTo:        settings.Voice.TranslateTo,
	})

	// Captures whose blob upload failed offline are retried ahead of each
	// drain cycle so they release once connectivity returns.
	engine.SetPrepare(func(ctx context.Context) {
		if _, err := coordinator.RecoverPendingUploads(ctx); err != nil {
			logging.Warn("media upload recovery failed", "error", err)
		}
	})

	return &Container{
		Settings:    settings,
		Store:       store,
		Adapter:     adapter,
		Probe:       probe,
		Engine:      engine,
		Coordinator: coordinator,
		Registry:    registry,
		Metrics:     metrics,
	}, nil
}

// Close releases the container's resources.
func (c *Container) Close() error {
	return c.Store.Close()
}

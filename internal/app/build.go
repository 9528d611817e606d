package app

import (
	"context"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/ent0n29/anuva/internal/config"
	"github.com/ent0n29/anuva/internal/conversation"
	"github.com/ent0n29/anuva/internal/fallback"
	"github.com/ent0n29/anuva/internal/httpapi"
	"github.com/ent0n29/anuva/internal/memory"
	"github.com/ent0n29/anuva/internal/observability"
	"github.com/ent0n29/anuva/internal/policy"
	"github.com/ent0n29/anuva/internal/session"
	"github.com/ent0n29/anuva/internal/speech"
)

type BuildResult struct {
	Config       config.Config
	API          *httpapi.Server
	Sessions     *session.Manager
	Orchestrator *conversation.Orchestrator
	Speech       *speech.Service
	Metrics      *observability.Metrics
	Backends     httpapi.Backends

	// Cleanup should be called on shutdown to release external resources (Redis, DB).
	Cleanup func() error
}

func Build(ctx context.Context, cfg config.Config) (*BuildResult, error) {
	metrics := observability.NewMetrics(cfg.MetricsNamespace)
	backends := httpapi.Backends{ShortTerm: "in-process", Facts: "in-memory"}

	redisList, err := memory.NewListBackend(ctx, cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("short-term store init failed: %w", err)
	}
	// A nil *RedisList must not become a non-nil ListBackend.
	var remote memory.ListBackend
	if redisList != nil {
		remote = redisList
		backends.ShortTerm = "redis"
	}

	factStore, err := memory.NewFactStore(ctx, cfg.DatabaseURL)
	if err != nil {
		closeQuietly(redisList)
		return nil, fmt.Errorf("fact store init failed: %w", err)
	}
	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		backends.Facts = "postgres"
	}

	gen, providerName, err := resolveProvider(cfg)
	if err != nil {
		closeQuietly(redisList)
		_ = factStore.Close()
		return nil, fmt.Errorf("provider init failed: %w", err)
	}
	backends.Provider = providerName

	synth, speechName := resolveSynthesizer(cfg)
	backends.Speech = speechName
	speechSvc := speech.NewService(synth, speech.ServiceOptions{
		DefaultVoiceID: cfg.ElevenLabsVoiceID,
		Timeout:        cfg.TTSTimeout,
		CacheSize:      cfg.TTSCacheSize,
		Metrics:        metrics,
	})

	turns := memory.NewShortTermStore(remote, memory.ShortTermOptions{
		OpTimeout: cfg.StoreOpTimeout,
		Metrics:   metrics,
	})
	sessions := session.NewManager(cfg.SessionInactivityTimeout)

	orchestrator := conversation.NewOrchestrator(turns, factStore, conversation.Options{
		Provider:          gen,
		Fallback:          fallback.NewScriptedResponder(),
		Safety:            policy.NewSafetyFilter(),
		Sessions:          sessions,
		Metrics:           metrics,
		ProviderTimeout:   cfg.ProviderTimeout,
		FactLookupTimeout: cfg.FactLookupTimeout,
	})
	sessions.SetExpireHook(orchestrator.OnSessionExpired)

	api := httpapi.New(cfg, orchestrator, factStore, speechSvc, metrics, backends)

	log.WithFields(log.Fields{
		"short_term": backends.ShortTerm,
		"facts":      backends.Facts,
		"provider":   backends.Provider,
		"speech":     backends.Speech,
	}).Info("backends resolved")

	cleanup := func() error {
		var errs []string
		if redisList != nil {
			if err := redisList.Close(); err != nil {
				errs = append(errs, err.Error())
			}
		}
		if err := factStore.Close(); err != nil {
			errs = append(errs, err.Error())
		}
		if len(errs) > 0 {
			return fmt.Errorf("%s", strings.Join(errs, "; "))
		}
		return nil
	}

	return &BuildResult{
		Config:       cfg,
		API:          api,
		Sessions:     sessions,
		Orchestrator: orchestrator,
		Speech:       speechSvc,
		Metrics:      metrics,
		Backends:     backends,
		Cleanup:      cleanup,
	}, nil
}

func closeQuietly(r *memory.RedisList) {
	if r != nil {
		_ = r.Close()
	}
}

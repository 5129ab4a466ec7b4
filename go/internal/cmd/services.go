package main

import (
	"context"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/ratethis/go/internal/appconfig"
	"github.com/mcdev12/ratethis/go/internal/catalog"
	"github.com/mcdev12/ratethis/go/internal/eventbus"
	"github.com/mcdev12/ratethis/go/internal/game"
	"github.com/mcdev12/ratethis/go/internal/gateway"
	"github.com/mcdev12/ratethis/go/internal/lobby"
)

type Services struct {
	Catalog *catalog.Catalog
	Game    *game.App
	Gateway *gateway.Service

	// Mirror is nil when NATS is not configured
	Mirror        *eventbus.Mirror
	MirrorMetrics *eventbus.Counters
	publisher     *eventbus.JetStreamPublisher
}

func setupServices(ctx context.Context, cfg appconfig.Config) (*Services, error) {
	// Wire up dependency injection chain
	// Catalog → Gateway (broadcaster) → [Mirror] → Game → Gateway handlers
	clock := clockwork.NewRealClock()

	imageCatalog := catalog.New(cfg.Catalog, clock)
	if err := imageCatalog.Refresh(); err != nil {
		log.Warn().Err(err).Str("dir", cfg.Catalog.Dir).Msg("initial catalog scan failed")
	}

	gatewayConfig := gateway.DefaultConfig()
	gatewayConfig.ConnectionConfig.CheckOrigin = originChecker(cfg.AllowedOrigins)
	gatewayService := gateway.NewService(gatewayConfig)

	services := &Services{
		Catalog:       imageCatalog,
		Gateway:       gatewayService,
		MirrorMetrics: &eventbus.Counters{},
	}

	var broadcaster game.Broadcaster = gatewayService.ConnectionManager()
	if cfg.NATS.Enabled() {
		jsConfig := eventbus.DefaultJetStreamConfig()
		jsConfig.URL = cfg.NATS.URL
		jsConfig.SubjectPrefix = cfg.NATS.SubjectPrefix
		jsConfig.StreamName = cfg.NATS.StreamName

		publisher, err := eventbus.NewJetStreamPublisher(ctx, jsConfig)
		if err != nil {
			// The game does not depend on the mirror
			log.Error().Err(err).Str("url", cfg.NATS.URL).Msg("NATS unavailable, event mirror disabled")
		} else {
			services.publisher = publisher
			services.Mirror = eventbus.NewMirror(broadcaster, publisher, services.MirrorMetrics, eventbus.DefaultMirrorConfig())
			broadcaster = services.Mirror
		}
	}

	services.Game = game.NewApp(lobby.NewDirectory(clock), imageCatalog, broadcaster, clock, cfg.Game)
	gatewayService.Attach(services.Game)

	return services, nil
}

// Start launches the background loops. The returned channel is closed once
// all of them have returned after ctx is cancelled.
func (s *Services) Start(ctx context.Context) <-chan struct{} {
	var wg sync.WaitGroup
	run := func(name string, fn func(ctx context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(ctx)
			log.Debug().Str("loop", name).Msg("background loop exited")
		}()
	}

	run("gateway", func(ctx context.Context) {
		if err := s.Gateway.Start(ctx); err != nil {
			log.Error().Err(err).Msg("gateway service failed")
		}
	})
	run("catalog", s.Catalog.Run)
	run("presence", s.Game.RunPresenceSweeper)
	if s.Mirror != nil {
		run("mirror", s.Mirror.Run)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	return done
}

func (s *Services) Close() {
	s.Game.Shutdown()
	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close NATS connection")
		}
	}
}

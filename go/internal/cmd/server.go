package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/mcdev12/ratethis/go/internal/appconfig"
	"github.com/mcdev12/ratethis/go/internal/eventbus"
	"github.com/mcdev12/ratethis/go/internal/game"
	"github.com/mcdev12/ratethis/go/internal/gateway"
)

const (
	serviceName    = "ratethis"
	serviceVersion = "1.0.0"
)

func setupServer(cfg appconfig.Config, services *Services) *http.Server {
	mux := http.NewServeMux()

	// Setup CORS middleware
	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
		},
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedHeaders: []string{"*"},
	})

	services.Gateway.RegisterRoutes(mux)
	setupMedia(mux, cfg)
	setupHealthCheck(mux)
	setupInfo(mux, services)

	handler := c.Handler(mux)

	return &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      h2c.NewHandler(handler, &http2.Server{}),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
}

func setupMedia(mux *http.ServeMux, cfg appconfig.Config) {
	prefix := cfg.Catalog.URLPrefix
	mux.Handle("GET "+prefix, http.StripPrefix(prefix, http.FileServer(http.Dir(cfg.Catalog.Dir))))
}

func setupHealthCheck(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			log.Error().Err(err).Msg("failed to write health check response")
		}
	})
}

type catalogInfo struct {
	Images   int       `json:"images"`
	LastScan time.Time `json:"last_scan"`
}

type serviceInfo struct {
	Service     string                    `json:"service"`
	Version     string                    `json:"version"`
	Connections gateway.ConnectionStats   `json:"connections"`
	Game        game.Stats                `json:"game"`
	Catalog     catalogInfo               `json:"catalog"`
	Mirror      *eventbus.CounterSnapshot `json:"mirror,omitempty"`
}

func setupInfo(mux *http.ServeMux, services *Services) {
	mux.HandleFunc("GET /info", func(w http.ResponseWriter, r *http.Request) {
		info := serviceInfo{
			Service:     serviceName,
			Version:     serviceVersion,
			Connections: services.Gateway.GetStats(),
			Game:        services.Game.Stats(),
			Catalog: catalogInfo{
				Images:   services.Catalog.Len(),
				LastScan: services.Catalog.LastScan(),
			},
		}
		if services.Mirror != nil {
			snap := services.MirrorMetrics.Snapshot()
			info.Mirror = &snap
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(info); err != nil {
			log.Error().Err(err).Msg("failed to encode service info")
		}
	})
}

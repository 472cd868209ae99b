package cmd

import (
	"context"
	"net/http"

	"github.com/xiaot623/gogo/livesession/internal/adapter/backend"
	"github.com/xiaot623/gogo/livesession/internal/adapter/sse"
	"github.com/xiaot623/gogo/livesession/internal/adapter/stream"
	"github.com/xiaot623/gogo/livesession/internal/adapter/wsstream"
	"github.com/xiaot623/gogo/livesession/internal/config"
	"github.com/xiaot623/gogo/livesession/internal/domain"
	"github.com/xiaot623/gogo/livesession/internal/policy"
	"github.com/xiaot623/gogo/livesession/internal/repository"
	"github.com/xiaot623/gogo/livesession/internal/service"
)

func newBackend(cfg *config.Config) *backend.Client {
	opts := []backend.Option{
		backend.WithHTTPClient(&http.Client{Timeout: cfg.RequestTimeout()}),
		backend.WithRosterURL(cfg.RosterURL),
	}
	if cfg.Transport == config.TransportWebSocket {
		opts = append(opts, backend.WithWebSocketStreams())
	}
	return backend.NewClient(cfg.BackendURL, opts...)
}

func newConnector(cfg *config.Config) stream.Connector {
	if cfg.Transport == config.TransportWebSocket {
		return wsstream.NewConnector(nil)
	}
	return sse.NewConnector(nil)
}

// newOpener always uses SSE for rosters: the WebSocket endpoint only
// serves agent streams.
func newOpener(cfg *config.Config, variant domain.Variant) *stream.Opener {
	if variant == domain.VariantRoster {
		return stream.NewOpener(sse.NewConnector(nil), cfg.RosterPolicy())
	}
	return stream.NewOpener(newConnector(cfg), cfg.AgentPolicy())
}

// openJournal returns the journal options and a closer. With no
// DATABASE_URL the journal is off.
func openJournal(cfg *config.Config) ([]service.Option, func(), error) {
	if cfg.DatabaseURL == "" {
		return nil, func() {}, nil
	}
	store, err := repository.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	return []service.Option{service.WithRecorder(store)}, func() { _ = store.Close() }, nil
}

func newDecider(ctx context.Context, cfg *config.Config) (policy.Decider, error) {
	return policy.LoadFile(ctx, cfg.PolicyFile)
}

package eventbus

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/ratethis/go/internal/game/events"
)

// Publisher sends an event to the message bus
type Publisher interface {
	Publish(ctx context.Context, event *events.Event) error
}

// Broadcaster delivers events to connected clients
type Broadcaster interface {
	BroadcastToLobby(code string, event *events.Event)
	BroadcastToUser(code, username string, event *events.Event)
}

// MirrorConfig controls the mirror queue
type MirrorConfig struct {
	QueueSize      int
	PublishTimeout time.Duration
}

func DefaultMirrorConfig() MirrorConfig {
	return MirrorConfig{
		QueueSize:      1024,
		PublishTimeout: 5 * time.Second,
	}
}

// Mirror is a Broadcaster that forwards everything to the next broadcaster
// and also queues lobby-wide events for publication. Targeted events are
// private to one client and are not mirrored.
type Mirror struct {
	next      Broadcaster
	publisher Publisher
	metrics   MetricsCollector
	config    MirrorConfig
	queue     chan *events.Event
}

func NewMirror(next Broadcaster, publisher Publisher, metrics MetricsCollector, config MirrorConfig) *Mirror {
	if metrics == nil {
		metrics = NoOpMetricsCollector{}
	}
	return &Mirror{
		next:      next,
		publisher: publisher,
		metrics:   metrics,
		config:    config,
		queue:     make(chan *events.Event, config.QueueSize),
	}
}

// BroadcastToLobby delivers the event and queues it for publication.
// It never blocks: a full queue drops the mirror copy.
func (m *Mirror) BroadcastToLobby(code string, event *events.Event) {
	m.next.BroadcastToLobby(code, event)

	select {
	case m.queue <- event:
	default:
		m.metrics.RecordDropped(string(event.Type))
		log.Warn().
			Str("lobby_code", code).
			Str("event_type", string(event.Type)).
			Msg("mirror queue full, dropping event")
	}
}

// BroadcastToUser delivers a targeted event without mirroring it
func (m *Mirror) BroadcastToUser(code, username string, event *events.Event) {
	m.next.BroadcastToUser(code, username, event)
}

// Run publishes queued events until ctx is cancelled, then flushes what is
// already queued
func (m *Mirror) Run(ctx context.Context) {
	log.Info().Int("queue_size", m.config.QueueSize).Msg("event mirror started")

	for {
		select {
		case <-ctx.Done():
			m.flush()
			log.Info().Msg("event mirror stopped")
			return
		case event := <-m.queue:
			m.publish(context.Background(), event)
		}
	}
}

func (m *Mirror) flush() {
	for {
		select {
		case event := <-m.queue:
			m.publish(context.Background(), event)
		default:
			return
		}
	}
}

func (m *Mirror) publish(ctx context.Context, event *events.Event) {
	ctx, cancel := context.WithTimeout(ctx, m.config.PublishTimeout)
	defer cancel()

	start := time.Now()
	err := m.publisher.Publish(ctx, event)
	m.metrics.RecordPublish(string(event.Type), err == nil, time.Since(start))
	if err != nil {
		log.Error().
			Err(err).
			Str("event_id", event.ID).
			Str("lobby_code", event.LobbyCode).
			Str("event_type", string(event.Type)).
			Msg("failed to mirror event")
	}
}

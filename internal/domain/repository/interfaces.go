package repository

import (
	"context"
	"time"

	"SpectreGate/internal/domain/models"
)

// InferenceLink is the persistent request/response socket to the inference
// service. Exchange never blocks past one bounded read attempt; a missing
// response is (_, false), not an error.
type InferenceLink interface {
	ConnectIfNeeded(ctx context.Context)
	Exchange(msg string) (string, bool)
	IsConnected() bool
	Close() error
}

// BarStream delivers bar/tick events from the trading host.
type BarStream interface {
	Connect(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.BarSnapshot, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// OrderRouter submits entries and flattens through the trading host.
type OrderRouter interface {
	EnterLong(ctx context.Context, qty int, label string) error
	EnterShort(ctx context.Context, qty int, label string) error
	FlattenAll(ctx context.Context, label string) error
}

// PositionSource exposes the host's current market position.
type PositionSource interface {
	Position() models.PositionState
}

// SessionCalendar resolves the trading session containing a timestamp.
type SessionCalendar interface {
	SessionFor(t time.Time) (models.SessionWindow, error)
}

// DrawSurface is the host's drawing/annotation collaborator.
type DrawSurface interface {
	DrawLevel(tag string, price float64, fromBar, toBar int, kind string)
	Remove(tag string)
}

// Journal persists per-bar decision records for audit.
type Journal interface {
	Init(ctx context.Context) error
	Record(ctx context.Context, ev *models.DecisionEvent) error
	Recent(ctx context.Context, symbol string, limit int) ([]*models.DecisionEvent, error)
	Health(ctx context.Context) error
	Close() error
}

// Publisher emits decision events to the event bus.
type Publisher interface {
	Publish(ctx context.Context, ev *models.DecisionEvent) error
	PublishMessage(ctx context.Context, topic string, payload interface{}) error
	Close() error
}

// RiskStore persists risk tracker snapshots across restarts.
type RiskStore interface {
	Load(ctx context.Context, symbol string) (*models.RiskSnapshot, error)
	Save(ctx context.Context, symbol string, snap *models.RiskSnapshot) error
	Close() error
}

// Metrics records operational metrics.
type Metrics interface {
	RecordDecision(symbol, outcome string)
	RecordOrder(symbol, direction string)
	RecordRegime(symbol, regime string, confidence float64)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}

package host

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"SpectreGate/internal/domain/models"
)

// Bridge is the WebSocket session to the trading host. One connection
// carries bar and position frames inbound, and order and drawing frames
// outbound. It backs the BarStream, OrderRouter, PositionSource and
// DrawSurface collaborators.
type Bridge struct {
	url            string
	reconnectDelay time.Duration
	pingInterval   time.Duration

	writeMu   sync.Mutex // gorilla conns allow one concurrent writer
	conn      *websocket.Conn
	connected bool

	posMu    sync.RWMutex
	position models.PositionState
}

// New creates a Bridge for the given host endpoint.
func New(url string, reconnectDelay, pingInterval time.Duration) *Bridge {
	return &Bridge{
		url:            url,
		reconnectDelay: reconnectDelay,
		pingInterval:   pingInterval,
		position:       models.PositionFlat,
	}
}

// Connect establishes the WebSocket connection.
func (b *Bridge) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, b.url, nil)
	if err != nil {
		return fmt.Errorf("host connect: %w", err)
	}
	b.writeMu.Lock()
	b.conn = conn
	b.connected = true
	b.writeMu.Unlock()
	log.Printf("host: connected %s", b.url)
	return nil
}

type hostBar struct {
	Symbol    string  `json:"symbol"`
	Time      string  `json:"time"` // RFC3339
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    int64   `json:"volume"`
	Bid       float64 `json:"bid"`
	Ask       float64 `json:"ask"`
	Index     int     `json:"index"`
	FirstTick bool    `json:"first_tick"`
}

type hostFrame struct {
	Type     string   `json:"type"`
	Bar      *hostBar `json:"bar,omitempty"`
	Position string   `json:"position,omitempty"`
}

// Read streams bar events and errors until the connection drops or the
// context ends. Position frames are folded into the bridge state in-line.
// Each call binds to the connection current at call time; after Reconnect
// the caller invokes Read again for fresh channels.
func (b *Bridge) Read(ctx context.Context) (<-chan *models.BarSnapshot, <-chan error) {
	bars := make(chan *models.BarSnapshot, 256)
	errs := make(chan error, 1)
	done := make(chan struct{})

	b.writeMu.Lock()
	conn := b.conn
	b.writeMu.Unlock()

	// ping loop, stops with the read loop
	go func() {
		ticker := time.NewTicker(b.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-ticker.C:
				b.writeMu.Lock()
				if b.conn == conn && conn != nil {
					_ = conn.WriteMessage(websocket.PingMessage, nil)
				}
				b.writeMu.Unlock()
			}
		}
	}()

	// read loop
	go func() {
		defer close(bars)
		defer close(errs)
		defer close(done)
		if conn == nil {
			errs <- fmt.Errorf("host conn nil")
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}
			_, raw, err := conn.ReadMessage()
			if err != nil {
				errs <- fmt.Errorf("host read: %w", err)
				return
			}
			var frame hostFrame
			if err := json.Unmarshal(raw, &frame); err != nil {
				// ignore unknown frames
				continue
			}
			switch frame.Type {
			case "bar":
				bar := decodeBar(frame.Bar)
				if bar == nil {
					continue
				}
				select {
				case bars <- bar:
				default:
					// drop on backpressure
				}
			case "position":
				b.setPosition(frame.Position)
			}
		}
	}()

	return bars, errs
}

func decodeBar(hb *hostBar) *models.BarSnapshot {
	if hb == nil {
		return nil
	}
	ts, err := time.Parse(time.RFC3339Nano, hb.Time)
	if err != nil {
		return nil
	}
	return &models.BarSnapshot{
		Symbol:    hb.Symbol,
		Time:      ts,
		Open:      hb.Open,
		High:      hb.High,
		Low:       hb.Low,
		Close:     hb.Close,
		Volume:    hb.Volume,
		Bid:       hb.Bid,
		Ask:       hb.Ask,
		Index:     hb.Index,
		FirstTick: hb.FirstTick,
	}
}

func (b *Bridge) setPosition(state string) {
	b.posMu.Lock()
	defer b.posMu.Unlock()
	switch models.PositionState(state) {
	case models.PositionLong:
		b.position = models.PositionLong
	case models.PositionShort:
		b.position = models.PositionShort
	default:
		b.position = models.PositionFlat
	}
}

// Position returns the host's last reported market position.
func (b *Bridge) Position() models.PositionState {
	b.posMu.RLock()
	defer b.posMu.RUnlock()
	return b.position
}

type orderFrame struct {
	Type   string `json:"type"`
	Action string `json:"action"`
	Qty    int    `json:"qty,omitempty"`
	Label  string `json:"label"`
}

// EnterLong routes a long market entry to the host.
func (b *Bridge) EnterLong(ctx context.Context, qty int, label string) error {
	return b.writeJSON(ctx, orderFrame{Type: "order", Action: "enter_long", Qty: qty, Label: label})
}

// EnterShort routes a short market entry to the host.
func (b *Bridge) EnterShort(ctx context.Context, qty int, label string) error {
	return b.writeJSON(ctx, orderFrame{Type: "order", Action: "enter_short", Qty: qty, Label: label})
}

// FlattenAll closes any open position on the host.
func (b *Bridge) FlattenAll(ctx context.Context, label string) error {
	return b.writeJSON(ctx, orderFrame{Type: "order", Action: "flatten", Label: label})
}

type drawFrame struct {
	Type    string  `json:"type"`
	Tag     string  `json:"tag"`
	Price   float64 `json:"price,omitempty"`
	FromBar int     `json:"from_bar,omitempty"`
	ToBar   int     `json:"to_bar,omitempty"`
	Kind    string  `json:"kind,omitempty"`
}

// DrawLevel asks the host to render a horizontal level line.
func (b *Bridge) DrawLevel(tag string, price float64, fromBar, toBar int, kind string) {
	_ = b.writeJSON(context.Background(), drawFrame{
		Type: "draw", Tag: tag, Price: price, FromBar: fromBar, ToBar: toBar, Kind: kind,
	})
}

// Remove erases a previously drawn level.
func (b *Bridge) Remove(tag string) {
	_ = b.writeJSON(context.Background(), drawFrame{Type: "erase", Tag: tag})
}

func (b *Bridge) writeJSON(_ context.Context, v interface{}) error {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	if b.conn == nil || !b.connected {
		return fmt.Errorf("host not connected")
	}
	return b.conn.WriteJSON(v)
}

// Reconnect closes and reconnects after the configured delay.
func (b *Bridge) Reconnect(ctx context.Context) error {
	_ = b.Close()
	time.Sleep(b.reconnectDelay)
	return b.Connect(ctx)
}

// Close closes the WebSocket connection.
func (b *Bridge) Close() error {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	b.connected = false
	if b.conn != nil {
		return b.conn.Close()
	}
	return nil
}

// IsConnected indicates status.
func (b *Bridge) IsConnected() bool {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	return b.connected
}

package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"SpectreGate/internal/domain/models"
	"SpectreGate/internal/domain/repository"
)

// ClickHouseJournal persists per-bar decision events for audit queries.
type ClickHouseJournal struct {
	db    *sql.DB
	table string
}

// NewClickHouseJournal creates a ClickHouse-backed journal.
func NewClickHouseJournal(db *sql.DB, table string) repository.Journal {
	return &ClickHouseJournal{db: db, table: table}
}

func (j *ClickHouseJournal) Init(ctx context.Context) error {
	q := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts DateTime64(3),
		symbol LowCardinality(String),
		bar_index Int64,
		regime LowCardinality(String),
		confidence Float64,
		reject UInt8,
		secondary_pass UInt8,
		secondary_prob Float64,
		intent LowCardinality(String),
		permitted UInt8,
		submitted UInt8,
		qty Int32,
		reason String
	) ENGINE = MergeTree()
	PARTITION BY toYYYYMM(ts)
	ORDER BY (symbol, ts)`, j.table)
	_, err := j.db.ExecContext(ctx, q)
	return err
}

func (j *ClickHouseJournal) Record(ctx context.Context, ev *models.DecisionEvent) error {
	q := fmt.Sprintf("INSERT INTO %s (ts, symbol, bar_index, regime, confidence, reject, secondary_pass, secondary_prob, intent, permitted, submitted, qty, reason) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)", j.table)
	_, err := j.db.ExecContext(ctx, q,
		ev.BarTime,
		ev.Symbol,
		int64(ev.BarIndex),
		ev.Regime,
		ev.Confidence,
		boolToUInt8(ev.Reject),
		boolToUInt8(ev.SecondaryPass),
		ev.SecondaryProb,
		ev.Intent,
		boolToUInt8(ev.Permitted),
		boolToUInt8(ev.Submitted),
		int32(ev.Qty),
		ev.Reason,
	)
	return err
}

func (j *ClickHouseJournal) Recent(ctx context.Context, symbol string, limit int) ([]*models.DecisionEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	q := fmt.Sprintf("SELECT ts, symbol, bar_index, regime, confidence, reject, secondary_pass, secondary_prob, intent, permitted, submitted, qty, reason FROM %s WHERE symbol = ? ORDER BY ts DESC LIMIT ?", j.table)
	rows, err := j.db.QueryContext(ctx, q, symbol, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*models.DecisionEvent
	for rows.Next() {
		var ev models.DecisionEvent
		var ts time.Time
		var barIndex int64
		var reject, secondaryPass, permitted, submitted uint8
		var qty int32
		if err := rows.Scan(&ts, &ev.Symbol, &barIndex, &ev.Regime, &ev.Confidence,
			&reject, &secondaryPass, &ev.SecondaryProb, &ev.Intent,
			&permitted, &submitted, &qty, &ev.Reason); err != nil {
			return nil, err
		}
		ev.BarTime = ts
		ev.BarIndex = int(barIndex)
		ev.Reject = reject != 0
		ev.SecondaryPass = secondaryPass != 0
		ev.Permitted = permitted != 0
		ev.Submitted = submitted != 0
		ev.Qty = int(qty)
		events = append(events, &ev)
	}
	return events, rows.Err()
}

func (j *ClickHouseJournal) Health(ctx context.Context) error {
	return j.db.PingContext(ctx)
}

func (j *ClickHouseJournal) Close() error {
	return nil // pool is owned by pkg/clickhouse
}

func boolToUInt8(v bool) uint8 {
	if v {
		return 1
	}
	return 0
}

package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/acsvalentinacs/HOPE-Minibot-sub001/internal/domain/models"
	domrepo "github.com/acsvalentinacs/HOPE-Minibot-sub001/internal/domain/repository"
	pkgch "github.com/acsvalentinacs/HOPE-Minibot-sub001/pkg/clickhouse"
	applogger "github.com/acsvalentinacs/HOPE-Minibot-sub001/pkg/logger"
)

// decisionsSchema keeps the full decision record queryable: scalar
// columns for the hot filters, JSON blobs for check details.
var decisionsSchema = []string{
	`CREATE TABLE IF NOT EXISTS decisions (
        ts              DateTime64(6),
        signal_id       String,
        symbol          String,
        action          String,
        confidence      Float64,
        reasons         Array(String),
        checks_passed   String,
        checks_values   String,
        position_size   Float64,
        entry_price     Float64,
        stop_loss_pct   Float64,
        take_profit_pct Float64,
        checksum        String
    ) ENGINE = MergeTree()
    PARTITION BY toYYYYMM(ts)
    ORDER BY (symbol, ts)`,
}

// CHDecisionArchive implements DecisionArchive backed by ClickHouse.
type CHDecisionArchive struct {
	ch *pkgch.Client
	db *sql.DB
	l  *applogger.Logger
}

func NewCHDecisionArchive(ch *pkgch.Client, l *applogger.Logger) *CHDecisionArchive {
	return &CHDecisionArchive{ch: ch, db: ch.DB(), l: l}
}

func (a *CHDecisionArchive) Init(ctx context.Context) error {
	if err := a.ch.Health(ctx); err != nil {
		return fmt.Errorf("clickhouse health: %w", err)
	}
	if err := a.ch.InitSchema(ctx, decisionsSchema); err != nil {
		return fmt.Errorf("init decisions schema: %w", err)
	}
	return nil
}

func (a *CHDecisionArchive) Store(ctx context.Context, d *models.Decision) error {
	start := time.Now()

	checks, err := json.Marshal(d.Checks)
	if err != nil {
		return fmt.Errorf("marshal checks: %w", err)
	}
	values, err := json.Marshal(d.Values)
	if err != nil {
		return fmt.Errorf("marshal values: %w", err)
	}
	ts, err := time.Parse(models.EventTimeFormat, d.Timestamp)
	if err != nil {
		ts = time.Now().UTC()
	}
	reasons := make([]string, len(d.Reasons))
	for i, r := range d.Reasons {
		reasons[i] = string(r)
	}

	const q = `INSERT INTO decisions
        (ts, signal_id, symbol, action, confidence, reasons, checks_passed, checks_values,
         position_size, entry_price, stop_loss_pct, take_profit_pct, checksum)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = a.db.ExecContext(ctx, q,
		ts,
		d.SignalID,
		d.Symbol,
		string(d.Action),
		d.Confidence,
		reasons,
		string(checks),
		string(values),
		d.PositionSizeModifier,
		d.EntryPrice,
		d.StopLossPct,
		d.TakeProfitPct,
		d.Checksum,
	)
	if err != nil {
		a.l.Error("clickhouse decision insert error",
			applogger.String("signal_id", d.SignalID),
			applogger.String("symbol", d.Symbol),
			applogger.Error(err),
		)
		return fmt.Errorf("store decision: %w", err)
	}

	a.l.Debug("clickhouse decision stored",
		applogger.String("signal_id", d.SignalID),
		applogger.String("action", string(d.Action)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return nil
}

func (a *CHDecisionArchive) Close() error {
	return a.ch.Close()
}

var _ domrepo.DecisionArchive = (*CHDecisionArchive)(nil)

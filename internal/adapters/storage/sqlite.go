package storage

// sqlite.go: diario de ventanas.
//
// Tablas:
//   windows       : una fila por ventana: mercado, horario, estado final, mitigación y merge
//   window_orders : las órdenes de la ventana (UP, DOWN y hedge) con su fill y su cancelación
//   window_events : transiciones de estado en orden
//
// Los instantes se guardan como unix millis para poder filtrar por rango en SQL.

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/alejandrodnm/pairbot/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS windows (
    id                 TEXT PRIMARY KEY,
    idx                INTEGER NOT NULL DEFAULT 0,
    slug               TEXT    NOT NULL DEFAULT '',
    condition_id       TEXT    NOT NULL DEFAULT '',
    question           TEXT    NOT NULL DEFAULT '',
    start_ms           INTEGER NOT NULL,
    deadline_ms        INTEGER NOT NULL,
    closed_ms          INTEGER NOT NULL DEFAULT 0,
    final_state        TEXT    NOT NULL,
    interrupted        INTEGER NOT NULL DEFAULT 0,
    first_single_ms    INTEGER,
    policy             TEXT,
    action             TEXT,
    filled_leg         TEXT,
    mitigation_reason  TEXT,
    hedge_max          REAL,
    mitigated_ms       INTEGER,
    merge_shares       REAL,
    merge_tx           TEXT,
    merge_gas          INTEGER,
    merge_err          TEXT,
    merged_ms          INTEGER,
    err                TEXT    NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_windows_start ON windows(start_ms);

CREATE TABLE IF NOT EXISTS window_orders (
    window_id     TEXT    NOT NULL,
    role          TEXT    NOT NULL,   -- UP / DOWN / HEDGE
    outcome       TEXT    NOT NULL,
    token_id      TEXT    NOT NULL,
    order_id      TEXT    NOT NULL DEFAULT '',
    price         REAL    NOT NULL,
    size          REAL    NOT NULL,
    matched       REAL    NOT NULL DEFAULT 0,
    original      REAL    NOT NULL DEFAULT 0,
    cancel_ok     INTEGER,
    cancel_reason TEXT,
    cancelled_ms  INTEGER,
    PRIMARY KEY (window_id, role)
);

CREATE TABLE IF NOT EXISTS window_events (
    window_id  TEXT    NOT NULL,
    seq        INTEGER NOT NULL,
    from_state TEXT    NOT NULL,
    to_state   TEXT    NOT NULL,
    at_ms      INTEGER NOT NULL,
    PRIMARY KEY (window_id, seq)
);
`

const (
	retentionWindows = 90 * 24 * time.Hour
	roleHedge        = "HEDGE"
)

// SQLiteJournal implementa ports.WindowJournal usando SQLite (pure Go, sin CGo).
type SQLiteJournal struct {
	db *sql.DB
}

// NewSQLiteJournal abre (o crea) el diario en la ruta dada y aplica el schema.
func NewSQLiteJournal(path string) (*SQLiteJournal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteJournal: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteJournal: apply schema: %w", err)
	}

	j := &SQLiteJournal{db: db}
	j.pruneOld(context.Background())
	return j, nil
}

// SaveWindow guarda (o reemplaza) una ventana con sus órdenes y transiciones en una transacción.
func (j *SQLiteJournal) SaveWindow(ctx context.Context, o domain.WindowOutcome) error {
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.SaveWindow: begin tx: %w", err)
	}
	defer tx.Rollback()

	w := o.Window
	var (
		policy, action, filledLeg, reason sql.NullString
		hedgeMax                          sql.NullFloat64
		mitigatedMs                       sql.NullInt64
	)
	if m := o.Mitigation; m != nil {
		policy = nullString(string(m.Policy))
		action = nullString(string(m.Action))
		filledLeg = nullString(string(m.Filled))
		reason = nullString(m.Reason)
		hedgeMax = sql.NullFloat64{Float64: m.HedgeMax, Valid: true}
		mitigatedMs = nullMillis(&m.At)
	}

	var (
		mergeShares       sql.NullFloat64
		mergeTx, mergeErr sql.NullString
		mergeGas          sql.NullInt64
		mergedMs          sql.NullInt64
	)
	if m := o.Merge; m != nil {
		mergeShares = sql.NullFloat64{Float64: m.Shares, Valid: true}
		mergeTx = nullString(m.TxHash)
		mergeErr = nullString(m.Err)
		mergeGas = sql.NullInt64{Int64: int64(m.GasUsed), Valid: true}
		mergedMs = nullMillis(&m.MergedAt)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO windows
			(id, idx, slug, condition_id, question, start_ms, deadline_ms, closed_ms,
			 final_state, interrupted, first_single_ms,
			 policy, action, filled_leg, mitigation_reason, hedge_max, mitigated_ms,
			 merge_shares, merge_tx, merge_gas, merge_err, merged_ms, err)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		w.ID, w.Index, w.Market.Slug, w.Market.ConditionID, w.Market.Question,
		millis(w.Start), millis(w.Deadline), millis(o.ClosedAt),
		string(o.Final), boolInt(o.Interrupted), nullMillis(o.FirstSingleFillAt),
		policy, action, filledLeg, reason, hedgeMax, mitigatedMs,
		mergeShares, mergeTx, mergeGas, mergeErr, mergedMs, o.Err,
	); err != nil {
		return fmt.Errorf("storage.SaveWindow: insert window %s: %w", w.ID, err)
	}

	for _, q := range []string{
		`DELETE FROM window_orders WHERE window_id = ?`,
		`DELETE FROM window_events WHERE window_id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, w.ID); err != nil {
			return fmt.Errorf("storage.SaveWindow: clear %s: %w", w.ID, err)
		}
	}

	cancels := make(map[string]domain.CancelResult, len(o.Cancels))
	for _, c := range o.Cancels {
		cancels[c.OrderID] = c
	}
	legs := []struct {
		role string
		leg  domain.Leg
	}{
		{string(domain.OutcomeUp), o.Pair.Up},
		{string(domain.OutcomeDown), o.Pair.Down},
	}
	if o.Hedge != nil {
		legs = append(legs, struct {
			role string
			leg  domain.Leg
		}{roleHedge, *o.Hedge})
	}

	for _, l := range legs {
		var (
			cancelOK     sql.NullInt64
			cancelReason sql.NullString
			cancelledMs  sql.NullInt64
		)
		if c, ok := cancels[l.leg.OrderID]; ok && l.leg.OrderID != "" {
			cancelOK = sql.NullInt64{Int64: int64(boolInt(c.OK)), Valid: true}
			cancelReason = nullString(c.Reason)
			cancelledMs = nullMillis(&c.At)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO window_orders
				(window_id, role, outcome, token_id, order_id, price, size, matched, original,
				 cancel_ok, cancel_reason, cancelled_ms)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			w.ID, l.role, string(l.leg.Outcome), l.leg.TokenID, l.leg.OrderID,
			l.leg.Price, l.leg.Size, l.leg.Matched, l.leg.Original,
			cancelOK, cancelReason, cancelledMs,
		); err != nil {
			return fmt.Errorf("storage.SaveWindow: insert order %s/%s: %w", w.ID, l.role, err)
		}
	}

	for i, t := range o.Transitions {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO window_events (window_id, seq, from_state, to_state, at_ms) VALUES (?, ?, ?, ?, ?)`,
			w.ID, i, string(t.From), string(t.To), millis(t.At),
		); err != nil {
			return fmt.Errorf("storage.SaveWindow: insert event %s/%d: %w", w.ID, i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.SaveWindow: commit: %w", err)
	}
	return nil
}

// ListWindows devuelve las ventanas que empezaron en [from, to), de la más antigua a la más reciente.
func (j *SQLiteJournal) ListWindows(ctx context.Context, from, to time.Time) ([]domain.WindowOutcome, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, idx, slug, condition_id, question, start_ms, deadline_ms, closed_ms,
		       final_state, interrupted, first_single_ms,
		       policy, action, filled_leg, mitigation_reason, hedge_max, mitigated_ms,
		       merge_shares, merge_tx, merge_gas, merge_err, merged_ms, err
		FROM windows
		WHERE start_ms >= ? AND start_ms < ?
		ORDER BY start_ms ASC, idx ASC
	`, millis(from), millis(to))
	if err != nil {
		return nil, fmt.Errorf("storage.ListWindows: query: %w", err)
	}

	var outs []domain.WindowOutcome
	index := make(map[string]int)
	for rows.Next() {
		var (
			o                                  domain.WindowOutcome
			final                              string
			startMs, deadlineMs, closedMs      int64
			interrupted                        int
			firstSingle, mitigatedMs, mergedMs sql.NullInt64
			policy, action, filledLeg, reason  sql.NullString
			hedgeMax, mergeShares              sql.NullFloat64
			mergeTx, mergeErr                  sql.NullString
			mergeGas                           sql.NullInt64
		)
		if err := rows.Scan(
			&o.Window.ID, &o.Window.Index, &o.Window.Market.Slug, &o.Window.Market.ConditionID,
			&o.Window.Market.Question, &startMs, &deadlineMs, &closedMs,
			&final, &interrupted, &firstSingle,
			&policy, &action, &filledLeg, &reason, &hedgeMax, &mitigatedMs,
			&mergeShares, &mergeTx, &mergeGas, &mergeErr, &mergedMs, &o.Err,
		); err != nil {
			rows.Close()
			return nil, fmt.Errorf("storage.ListWindows: scan row: %w", err)
		}

		o.Window.Start = fromMillis(startMs)
		o.Window.Deadline = fromMillis(deadlineMs)
		o.ClosedAt = fromMillis(closedMs)
		o.Final = domain.State(final)
		o.Interrupted = interrupted == 1
		if firstSingle.Valid {
			t := fromMillis(firstSingle.Int64)
			o.FirstSingleFillAt = &t
		}
		if action.Valid {
			o.Mitigation = &domain.Mitigation{
				Policy:   domain.Policy(policy.String),
				Action:   domain.MitigationAction(action.String),
				Filled:   domain.Outcome(filledLeg.String),
				Reason:   reason.String,
				HedgeMax: hedgeMax.Float64,
				At:       fromMillis(mitigatedMs.Int64),
			}
		}
		if mergeShares.Valid {
			o.Merge = &domain.MergeResult{
				ConditionID: o.Window.Market.ConditionID,
				Shares:      mergeShares.Float64,
				TxHash:      mergeTx.String,
				GasUsed:     uint64(mergeGas.Int64),
				Err:         mergeErr.String,
				MergedAt:    fromMillis(mergedMs.Int64),
			}
		}

		index[o.Window.ID] = len(outs)
		outs = append(outs, o)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("storage.ListWindows: rows: %w", err)
	}
	rows.Close() // una sola conexión: cerrar antes de la siguiente query

	if len(outs) == 0 {
		return nil, nil
	}
	if err := j.loadOrders(ctx, from, to, outs, index); err != nil {
		return nil, err
	}
	if err := j.loadEvents(ctx, from, to, outs, index); err != nil {
		return nil, err
	}
	return outs, nil
}

// Close cierra la conexión a la base de datos.
func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}

// --- helpers internos ---

func (j *SQLiteJournal) loadOrders(ctx context.Context, from, to time.Time, outs []domain.WindowOutcome, index map[string]int) error {
	rows, err := j.db.QueryContext(ctx, `
		SELECT o.window_id, o.role, o.outcome, o.token_id, o.order_id, o.price, o.size,
		       o.matched, o.original, o.cancel_ok, o.cancel_reason, o.cancelled_ms
		FROM window_orders o
		JOIN windows w ON w.id = o.window_id
		WHERE w.start_ms >= ? AND w.start_ms < ?
		ORDER BY o.window_id, CASE o.role WHEN 'UP' THEN 0 WHEN 'DOWN' THEN 1 ELSE 2 END
	`, millis(from), millis(to))
	if err != nil {
		return fmt.Errorf("storage.ListWindows: query orders: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			windowID, role, outcome string
			leg                     domain.Leg
			cancelOK, cancelledMs   sql.NullInt64
			cancelReason            sql.NullString
		)
		if err := rows.Scan(&windowID, &role, &outcome, &leg.TokenID, &leg.OrderID, &leg.Price, &leg.Size,
			&leg.Matched, &leg.Original, &cancelOK, &cancelReason, &cancelledMs); err != nil {
			return fmt.Errorf("storage.ListWindows: scan order: %w", err)
		}
		i, ok := index[windowID]
		if !ok {
			continue
		}
		o := &outs[i]
		leg.Outcome = domain.Outcome(outcome)

		switch role {
		case roleHedge:
			leg.Hedge = true
			h := leg
			o.Hedge = &h
		default:
			*o.Pair.Leg(leg.Outcome) = leg
		}

		if cancelOK.Valid {
			o.Cancels = append(o.Cancels, domain.CancelResult{
				OrderID: leg.OrderID,
				OK:      cancelOK.Int64 == 1,
				Reason:  cancelReason.String,
				At:      fromMillis(cancelledMs.Int64),
			})
		}
	}
	return rows.Err()
}

func (j *SQLiteJournal) loadEvents(ctx context.Context, from, to time.Time, outs []domain.WindowOutcome, index map[string]int) error {
	rows, err := j.db.QueryContext(ctx, `
		SELECT e.window_id, e.from_state, e.to_state, e.at_ms
		FROM window_events e
		JOIN windows w ON w.id = e.window_id
		WHERE w.start_ms >= ? AND w.start_ms < ?
		ORDER BY e.window_id, e.seq
	`, millis(from), millis(to))
	if err != nil {
		return fmt.Errorf("storage.ListWindows: query events: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			windowID, fromState, toState string
			atMs                         int64
		)
		if err := rows.Scan(&windowID, &fromState, &toState, &atMs); err != nil {
			return fmt.Errorf("storage.ListWindows: scan event: %w", err)
		}
		if i, ok := index[windowID]; ok {
			outs[i].Transitions = append(outs[i].Transitions, domain.Transition{
				From: domain.State(fromState),
				To:   domain.State(toState),
				At:   fromMillis(atMs),
			})
		}
	}
	return rows.Err()
}

// pruneOld elimina ventanas antiguas para mantener la DB ligera.
func (j *SQLiteJournal) pruneOld(ctx context.Context) {
	cutoff := millis(time.Now().UTC().Add(-retentionWindows))
	j.db.ExecContext(ctx, `DELETE FROM window_orders WHERE window_id IN (SELECT id FROM windows WHERE start_ms < ?)`, cutoff)
	j.db.ExecContext(ctx, `DELETE FROM window_events WHERE window_id IN (SELECT id FROM windows WHERE start_ms < ?)`, cutoff)
	j.db.ExecContext(ctx, `DELETE FROM windows WHERE start_ms < ?`, cutoff)
}

func millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil || t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

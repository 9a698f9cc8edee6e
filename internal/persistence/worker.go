package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"mm-engine/internal/domain"
	"mm-engine/internal/logging"
)

const writeTimeout = 3 * time.Second

// job is the fire-and-forget unit the worker applies against the pool.
// Every implementation must be idempotent or UPSERT-safe: a failed apply
// is logged and dropped, never retried, because the in-memory tracker
// remains the source of truth while the process is up.
type job interface {
	apply(ctx context.Context, db *sql.DB) error
}

// Worker drains a bounded queue of persistence jobs against the shared
// pool. Queue-full drops are counted and warned once rather than
// blocking the caller.
type Worker struct {
	db      *DB
	log     *logging.Logger
	jobs    chan job
	started atomic.Bool
	dropped atomic.Uint64
}

func NewWorker(db *DB, log *logging.Logger, queueSize int) *Worker {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Worker{db: db, log: log, jobs: make(chan job, queueSize)}
}

func (w *Worker) Start(ctx context.Context) {
	if !w.started.CompareAndSwap(false, true) {
		return
	}
	go w.run(ctx)
}

func (w *Worker) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-w.jobs:
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := j.apply(writeCtx, w.db.sql)
			cancel()
			if err != nil {
				w.log.LogError(err, map[string]any{"component": "persistence_worker"})
			}
		}
	}
}

func (w *Worker) enqueue(j job) {
	select {
	case w.jobs <- j:
	default:
		if w.dropped.Add(1) == 1 {
			w.log.Warn("persistence queue full, dropping job", zap.String("job", "dropped"))
		}
	}
}

// PersistNewOrder enqueues an INSERT ... ON CONFLICT DO NOTHING for a
// freshly placed order.
func (w *Worker) PersistNewOrder(o domain.TrackedOrder, symbol, venueCode, marginCoin string) {
	w.enqueue(newOrderJob{order: o, symbol: symbol, venueCode: venueCode, marginCoin: marginCoin})
}

// PersistOrderStatusChange enqueues a status UPDATE with optional
// filledAt/linkedOrderId columns.
func (w *Worker) PersistOrderStatusChange(orderID string, status domain.OrderStatus, filledAt *int64, linkedOrderID *string) {
	w.enqueue(statusChangeJob{orderID: orderID, status: status, filledAt: filledAt, linkedOrderID: linkedOrderID})
}

// PersistRealizedPnl enqueues an UPSERT accumulating the daily aggregate
// keyed by (utcDate, strategyKind).
func (w *Worker) PersistRealizedPnl(net, fee float64, isWin bool, strategyKind domain.StrategyType) {
	w.enqueue(realizedPnlJob{net: net, fee: fee, isWin: isWin, strategyKind: strategyKind, utcDate: time.Now().UTC().Format("2006-01-02")})
}

// SaveActiveConfig enqueues an UPSERT of the single "default" config row.
func (w *Worker) SaveActiveConfig(name string, cfg any) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	w.enqueue(saveConfigJob{name: name, configJSON: raw})
	return nil
}

// LoadActiveConfig is a synchronous read used on startup to recover the
// last active config row.
func (w *Worker) LoadActiveConfig(ctx context.Context) (name string, configJSON []byte, found bool, err error) {
	row := w.db.sql.QueryRowContext(ctx, `SELECT name, config FROM strategy_configs WHERE is_active = true LIMIT 1`)
	if err := row.Scan(&name, &configJSON); err != nil {
		if err == sql.ErrNoRows {
			return "", nil, false, nil
		}
		return "", nil, false, err
	}
	return name, configJSON, true, nil
}

// LoadPendingOrders is a synchronous read used on startup to rebuild the
// tracker from whatever was still pending when the process last exited.
func (w *Worker) LoadPendingOrders(ctx context.Context, symbol, venueCode string) ([]domain.TrackedOrder, error) {
	rows, err := w.db.sql.QueryContext(ctx, `SELECT order_id, client_oid, side, price, size, status,
		linked_order_id, direction, created_at, filled_at FROM strategy_orders
		WHERE symbol = $1 AND product_type = $2 AND status = 'pending'`, symbol, venueCode)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.TrackedOrder
	for rows.Next() {
		var o domain.TrackedOrder
		var linkedOrderID sql.NullString
		var filledAt sql.NullInt64
		if err := rows.Scan(&o.OrderID, &o.ClientOID, &o.Side, &o.Price, &o.Size, &o.Status,
			&linkedOrderID, &o.Direction, &o.CreatedAt, &filledAt); err != nil {
			return nil, err
		}
		if linkedOrderID.Valid {
			o.LinkedOrderID = linkedOrderID.String
		}
		if filledAt.Valid {
			v := filledAt.Int64
			o.FilledAt = &v
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

type newOrderJob struct {
	order      domain.TrackedOrder
	symbol     string
	venueCode  string
	marginCoin string
}

func (j newOrderJob) apply(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `INSERT INTO strategy_orders (
		order_id, client_oid, side, price, size, status, linked_order_id, direction,
		symbol, product_type, margin_coin, created_at
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	ON CONFLICT (order_id) DO NOTHING`,
		j.order.OrderID, j.order.ClientOID, j.order.Side, j.order.Price, j.order.Size, j.order.Status,
		nullIfEmpty(j.order.LinkedOrderID), j.order.Direction, j.symbol, j.venueCode, j.marginCoin, j.order.CreatedAt)
	return err
}

type statusChangeJob struct {
	orderID       string
	status        domain.OrderStatus
	filledAt      *int64
	linkedOrderID *string
}

func (j statusChangeJob) apply(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `UPDATE strategy_orders SET status = $1,
		filled_at = COALESCE($2, filled_at),
		linked_order_id = COALESCE($3, linked_order_id),
		updated_at = now()
	WHERE order_id = $4`, j.status, j.filledAt, j.linkedOrderID, j.orderID)
	return err
}

type realizedPnlJob struct {
	net          float64
	fee          float64
	isWin        bool
	strategyKind domain.StrategyType
	utcDate      string
}

func (j realizedPnlJob) apply(ctx context.Context, db *sql.DB) error {
	winInc, lossInc := 0, 0
	if j.isWin {
		winInc = 1
	} else {
		lossInc = 1
	}
	_, err := db.ExecContext(ctx, `INSERT INTO strategy_daily_pnl (
		date, strategy_type, realized_pnl, total_trades, win_trades, loss_trades, fees, updated_at
	) VALUES ($1,$2,$3,1,$4,$5,$6,now())
	ON CONFLICT (date, strategy_type) DO UPDATE SET
		realized_pnl = strategy_daily_pnl.realized_pnl + EXCLUDED.realized_pnl,
		total_trades = strategy_daily_pnl.total_trades + 1,
		win_trades = strategy_daily_pnl.win_trades + EXCLUDED.win_trades,
		loss_trades = strategy_daily_pnl.loss_trades + EXCLUDED.loss_trades,
		fees = strategy_daily_pnl.fees + EXCLUDED.fees,
		updated_at = now()`,
		j.utcDate, j.strategyKind, j.net, winInc, lossInc, j.fee)
	return err
}

type saveConfigJob struct {
	name       string
	configJSON []byte
}

func (j saveConfigJob) apply(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `INSERT INTO strategy_configs (name, config, is_active, updated_at)
		VALUES ($1, $2, true, now())
	ON CONFLICT (name) DO UPDATE SET config = EXCLUDED.config, is_active = true, updated_at = now()`,
		j.name, j.configJSON)
	return err
}

// PersistGridLevel enqueues an UPSERT of one grid level's current state,
// keyed by (instanceID, levelIndex).
func (w *Worker) PersistGridLevel(instanceID string, lvl domain.GridLevel) {
	w.enqueue(gridLevelJob{instanceID: instanceID, level: lvl})
}

// LoadGridLevels is a synchronous read used on startup to recover a grid
// instance's ladder state from whatever was persisted when the process
// last exited.
func (w *Worker) LoadGridLevels(ctx context.Context, instanceID string) ([]domain.GridLevel, error) {
	rows, err := w.db.sql.QueryContext(ctx, `SELECT level_index, price, state, buy_order_id, sell_order_id, size
		FROM grid_levels WHERE strategy_instance_id = $1 ORDER BY level_index`, instanceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.GridLevel
	for rows.Next() {
		var lvl domain.GridLevel
		var buyOrderID, sellOrderID sql.NullString
		if err := rows.Scan(&lvl.Index, &lvl.Price, &lvl.State, &buyOrderID, &sellOrderID, &lvl.Size); err != nil {
			return nil, err
		}
		lvl.BuyOrderID = buyOrderID.String
		lvl.SellOrderID = sellOrderID.String
		out = append(out, lvl)
	}
	return out, rows.Err()
}

type gridLevelJob struct {
	instanceID string
	level      domain.GridLevel
}

func (j gridLevelJob) apply(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `INSERT INTO grid_levels (
		strategy_instance_id, level_index, price, state, buy_order_id, sell_order_id, size, updated_at
	) VALUES ($1,$2,$3,$4,$5,$6,$7,now())
	ON CONFLICT (strategy_instance_id, level_index) DO UPDATE SET
		price = EXCLUDED.price, state = EXCLUDED.state,
		buy_order_id = EXCLUDED.buy_order_id, sell_order_id = EXCLUDED.sell_order_id,
		size = EXCLUDED.size, updated_at = now()`,
		j.instanceID, j.level.Index, j.level.Price, j.level.State,
		nullIfEmpty(j.level.BuyOrderID), nullIfEmpty(j.level.SellOrderID), j.level.Size)
	return err
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

package backtest

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"tickmill/internal/ledger"
	"tickmill/internal/logger"
	"tickmill/internal/scorer"

	_ "modernc.org/sqlite"
)

// ResultStore 管理 backtest_runs / backtest_trades 两张表。
type ResultStore struct {
	db *sql.DB
}

func NewResultStore(path string) (*ResultStore, error) {
	if path == "" {
		return nil, fmt.Errorf("结果库路径不能为空")
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := ensureSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &ResultStore{db: db}, nil
}

func (s *ResultStore) Close() error {
	return s.db.Close()
}

func ensureSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS backtest_runs (
			id           TEXT PRIMARY KEY,
			status       TEXT NOT NULL,
			message      TEXT NOT NULL DEFAULT '',
			config_json  TEXT NOT NULL DEFAULT '{}',
			stats_json   TEXT NOT NULL DEFAULT '{}',
			created_at   INTEGER NOT NULL,
			updated_at   INTEGER NOT NULL,
			completed_at INTEGER NOT NULL DEFAULT 0
		);
		CREATE TABLE IF NOT EXISTS backtest_trades (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id         TEXT NOT NULL,
			ts             INTEGER NOT NULL,
			strategy       TEXT NOT NULL,
			symbol         TEXT NOT NULL,
			side           TEXT NOT NULL,
			qty            INTEGER NOT NULL,
			price          REAL NOT NULL,
			cash_after     REAL NOT NULL,
			position_after INTEGER NOT NULL,
			label          INTEGER NOT NULL,
			score          REAL NOT NULL,
			prob_buy       REAL NOT NULL,
			model_version  TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_backtest_trades_run ON backtest_trades(run_id, id);
	`)
	return err
}

// InsertRun 写入新任务。
func (s *ResultStore) InsertRun(ctx context.Context, run Run) error {
	cfg, err := run.MarshalConfig()
	if err != nil {
		return err
	}
	stats, err := run.MarshalStats()
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO backtest_runs (id, status, message, config_json, stats_json, created_at, updated_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Status, run.Message, string(cfg), string(stats),
		run.CreatedAt.UnixMilli(), run.UpdatedAt.UnixMilli(), completedMilli(run))
	return err
}

// UpdateRun 覆盖状态与统计。
func (s *ResultStore) UpdateRun(ctx context.Context, run Run) error {
	stats, err := run.MarshalStats()
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE backtest_runs SET status=?, message=?, stats_json=?, updated_at=?, completed_at=?
		WHERE id=?`,
		run.Status, run.Message, string(stats),
		run.UpdatedAt.UnixMilli(), completedMilli(run), run.ID)
	return err
}

func completedMilli(run Run) int64 {
	if run.CompletedAt.IsZero() {
		return 0
	}
	return run.CompletedAt.UnixMilli()
}

// GetRun 按 ID 查询，未找到时返回 (Run{}, false, nil)。
func (s *ResultStore) GetRun(ctx context.Context, id string) (Run, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, status, message, config_json, stats_json, created_at, updated_at, completed_at
		FROM backtest_runs WHERE id=?`, id)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return Run{}, false, nil
	}
	if err != nil {
		return Run{}, false, err
	}
	return run, true, nil
}

// ListRuns 按创建时间倒序返回全部任务。
func (s *ResultStore) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, status, message, config_json, stats_json, created_at, updated_at, completed_at
		FROM backtest_runs ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var run Run
	var cfgJSON, statsJSON string
	var created, updated, completed int64
	if err := row.Scan(&run.ID, &run.Status, &run.Message, &cfgJSON, &statsJSON,
		&created, &updated, &completed); err != nil {
		return Run{}, err
	}
	if err := json.Unmarshal([]byte(cfgJSON), &run.Config); err != nil {
		return Run{}, fmt.Errorf("解析 run %s config 失败: %w", run.ID, err)
	}
	if err := json.Unmarshal([]byte(statsJSON), &run.Stats); err != nil {
		return Run{}, fmt.Errorf("解析 run %s stats 失败: %w", run.ID, err)
	}
	run.CreatedAt = time.UnixMilli(created)
	run.UpdatedAt = time.UnixMilli(updated)
	if completed > 0 {
		run.CompletedAt = time.UnixMilli(completed)
	}
	return run, nil
}

// InsertTrade 追加一条成交记录。
func (s *ResultStore) InsertTrade(ctx context.Context, runID string, rec ledger.TradeRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO backtest_trades
			(run_id, ts, strategy, symbol, side, qty, price, cash_after, position_after, label, score, prob_buy, model_version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, rec.Timestamp.UnixMilli(), rec.Strategy, rec.Symbol, rec.Side,
		rec.Quantity, rec.Price, rec.CashAfter, rec.PositionAfter,
		int(rec.Label), rec.Score, rec.ProbBuy, rec.ModelVersion)
	return err
}

// ListTrades 按成交顺序返回一次 run 的全部交易。
func (s *ResultStore) ListTrades(ctx context.Context, runID string) ([]ledger.TradeRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ts, strategy, symbol, side, qty, price, cash_after, position_after, label, score, prob_buy, model_version
		FROM backtest_trades WHERE run_id=? ORDER BY id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ledger.TradeRecord
	for rows.Next() {
		var rec ledger.TradeRecord
		var ts int64
		var label int
		if err := rows.Scan(&ts, &rec.Strategy, &rec.Symbol, &rec.Side, &rec.Quantity,
			&rec.Price, &rec.CashAfter, &rec.PositionAfter, &label, &rec.Score,
			&rec.ProbBuy, &rec.ModelVersion); err != nil {
			return nil, err
		}
		rec.Timestamp = time.UnixMilli(ts)
		rec.Label = scorer.Label(label)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// CountTrades 返回一次 run 的成交笔数。
func (s *ResultStore) CountTrades(ctx context.Context, runID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM backtest_trades WHERE run_id=?`, runID).Scan(&n)
	return n, err
}

// TradeRecorder 返回把成交写入本库的 Recorder，落库失败只告警不回传。
func (s *ResultStore) TradeRecorder(runID string) ledger.Recorder {
	return &storeRecorder{store: s, runID: runID}
}

type storeRecorder struct {
	store *ResultStore
	runID string
}

func (r *storeRecorder) Record(rec ledger.TradeRecord) {
	if err := r.store.InsertTrade(context.Background(), r.runID, rec); err != nil {
		logger.Warnf("[backtest] run %s 记录成交失败: %v", r.runID, err)
	}
}

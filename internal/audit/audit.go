// Package audit 把每次扫描的批次摘要与逐条过滤结果写入本地 SQLite，
// 便于事后查询某个饰品为什么被拒绝。
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/betbot/skinscan/internal/domain"
)

// Batch 一次扫描的摘要
type Batch struct {
	BatchID    string    `json:"batch_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Total      int       `json:"total"`
	Accepted   int       `json:"accepted"`
	Baseline   float64   `json:"baseline"`
	Error      string    `json:"error,omitempty"`
}

// Outcome 单个候选在某批次中的结果
type Outcome struct {
	BatchID      string   `json:"batch_id"`
	ItemID       string   `json:"item_id"`
	Name         string   `json:"name"`
	Outcome      string   `json:"outcome"`
	Stage        string   `json:"stage,omitempty"`
	Reason       string   `json:"reason,omitempty"`
	Tier         string   `json:"tier,omitempty"`
	AnnualYield  float64  `json:"annual_yield"`
	LeaseRatio   float64  `json:"lease_ratio"`
	Volatility   *float64 `json:"volatility"`
	RelativeHeat float64  `json:"relative_heat"`
}

// Store SQLite 审计库
type Store struct {
	db   *sql.DB
	path string
}

// Open 打开（必要时创建）审计库并建表
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("mkdir audit dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite 单写者
	db.SetMaxOpenConns(1)

	s := &Store{db: db, path: path}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Path() string { return s.path }

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) migrate() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA foreign_keys=ON;`,
		`
CREATE TABLE IF NOT EXISTS scan_batches (
  batch_id TEXT PRIMARY KEY,
  started_at TEXT NOT NULL,
  finished_at TEXT NOT NULL,
  total INTEGER NOT NULL,
  accepted INTEGER NOT NULL,
  baseline REAL NOT NULL,
  error TEXT
);`,
		`CREATE INDEX IF NOT EXISTS idx_scan_batches_started_at ON scan_batches(started_at DESC);`,
		`
CREATE TABLE IF NOT EXISTS candidate_outcomes (
  batch_id TEXT NOT NULL REFERENCES scan_batches(batch_id) ON DELETE CASCADE,
  item_id TEXT NOT NULL,
  name TEXT NOT NULL,
  outcome TEXT NOT NULL,
  stage TEXT,
  reason TEXT,
  tier TEXT,
  annual_yield REAL NOT NULL DEFAULT 0,
  lease_ratio REAL NOT NULL DEFAULT 0,
  volatility REAL,
  relative_heat REAL NOT NULL DEFAULT 0,
  PRIMARY KEY (batch_id, item_id)
);`,
		`CREATE INDEX IF NOT EXISTS idx_candidate_outcomes_stage ON candidate_outcomes(batch_id, stage);`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("migrate exec failed: %w", err)
		}
	}
	return nil
}

// RecordBatch 在一个事务里写入批次摘要和全部候选结果
func (s *Store) RecordBatch(ctx context.Context, b Batch, candidates []domain.Candidate) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var errStr *string
	if b.Error != "" {
		errStr = &b.Error
	}
	if _, err := tx.ExecContext(ctx, `
INSERT INTO scan_batches (batch_id, started_at, finished_at, total, accepted, baseline, error)
VALUES (?,?,?,?,?,?,?)
ON CONFLICT(batch_id) DO UPDATE SET
  finished_at=excluded.finished_at, total=excluded.total, accepted=excluded.accepted,
  baseline=excluded.baseline, error=excluded.error
`, b.BatchID, b.StartedAt.UTC().Format(time.RFC3339Nano), b.FinishedAt.UTC().Format(time.RFC3339Nano),
		b.Total, b.Accepted, b.Baseline, errStr); err != nil {
		return fmt.Errorf("insert batch: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
INSERT OR REPLACE INTO candidate_outcomes
  (batch_id, item_id, name, outcome, stage, reason, tier, annual_yield, lease_ratio, volatility, relative_heat)
VALUES (?,?,?,?,?,?,?,?,?,?,?)
`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, c := range candidates {
		o := outcomeOf(b.BatchID, c)
		if _, err := stmt.ExecContext(ctx, o.BatchID, o.ItemID, o.Name, o.Outcome,
			nullIfEmpty(o.Stage), nullIfEmpty(o.Reason), nullIfEmpty(o.Tier),
			o.AnnualYield, o.LeaseRatio, o.Volatility, o.RelativeHeat); err != nil {
			return fmt.Errorf("insert outcome %s: %w", o.ItemID, err)
		}
	}
	return tx.Commit()
}

func outcomeOf(batchID string, c domain.Candidate) Outcome {
	o := Outcome{
		BatchID:      batchID,
		ItemID:       c.Record.ID,
		Name:         c.Record.Name,
		Outcome:      c.Outcome.Kind.String(),
		Stage:        c.Outcome.Stage,
		Reason:       c.Outcome.Reason,
		AnnualYield:  c.Metrics.AnnualYield,
		LeaseRatio:   c.Metrics.LeaseRatio,
		RelativeHeat: c.Metrics.RelativeHeat,
	}
	if c.Accepted() {
		o.Tier = c.Outcome.Tier.String()
	}
	if c.Metrics.VolatilityKnown {
		v := c.Metrics.Volatility
		o.Volatility = &v
	}
	return o
}

func nullIfEmpty(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}

// ListBatches 最近的批次，按开始时间倒序
func (s *Store) ListBatches(ctx context.Context, limit int) ([]Batch, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT batch_id, started_at, finished_at, total, accepted, baseline, error
FROM scan_batches
ORDER BY started_at DESC
LIMIT ?
`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Batch
	for rows.Next() {
		var (
			b          Batch
			startedAt  string
			finishedAt string
			errStr     sql.NullString
		)
		if err := rows.Scan(&b.BatchID, &startedAt, &finishedAt, &b.Total, &b.Accepted, &b.Baseline, &errStr); err != nil {
			return nil, err
		}
		b.StartedAt, _ = time.Parse(time.RFC3339Nano, startedAt)
		b.FinishedAt, _ = time.Parse(time.RFC3339Nano, finishedAt)
		if errStr.Valid {
			b.Error = errStr.String
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// ListOutcomes 某批次的全部候选结果：先通过的，再按阶段和饰品 ID 排序
func (s *Store) ListOutcomes(ctx context.Context, batchID string) ([]Outcome, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT batch_id, item_id, name, outcome, stage, reason, tier, annual_yield, lease_ratio, volatility, relative_heat
FROM candidate_outcomes
WHERE batch_id=?
ORDER BY CASE outcome WHEN 'accepted' THEN 0 ELSE 1 END, stage, item_id
`, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Outcome
	for rows.Next() {
		var (
			o                   Outcome
			stage, reason, tier sql.NullString
			vol                 sql.NullFloat64
		)
		if err := rows.Scan(&o.BatchID, &o.ItemID, &o.Name, &o.Outcome, &stage, &reason, &tier,
			&o.AnnualYield, &o.LeaseRatio, &vol, &o.RelativeHeat); err != nil {
			return nil, err
		}
		o.Stage, o.Reason, o.Tier = stage.String, reason.String, tier.String
		if vol.Valid {
			v := vol.Float64
			o.Volatility = &v
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// RejectionsByStage 某批次各阶段的拒绝数
func (s *Store) RejectionsByStage(ctx context.Context, batchID string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT stage, COUNT(*) FROM candidate_outcomes
WHERE batch_id=? AND outcome='rejected'
GROUP BY stage
`, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]int)
	for rows.Next() {
		var (
			stage sql.NullString
			n     int
		)
		if err := rows.Scan(&stage, &n); err != nil {
			return nil, err
		}
		out[stage.String] = n
	}
	return out, rows.Err()
}

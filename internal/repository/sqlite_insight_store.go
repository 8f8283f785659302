package repository

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"FinSight/internal/domain/models"
	domrepo "FinSight/internal/domain/repository"
	applogger "FinSight/pkg/logger"
)

// SQLiteInsightStore keeps insight history in a local SQLite file. Writes are
// serialised through a single connection; WAL lets readers run alongside.
type SQLiteInsightStore struct {
	db *sql.DB
	l  *applogger.Logger
}

var _ domrepo.InsightStore = (*SQLiteInsightStore)(nil)

// NewSQLiteInsightStore opens (or creates) the database at path. ":memory:"
// gives a private in-memory database.
func NewSQLiteInsightStore(path string, l *applogger.Logger) (*SQLiteInsightStore, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create sqlite dir: %w", err)
			}
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if path != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set WAL mode: %w", err)
		}
	}
	if l == nil {
		l = applogger.Nop()
	}
	return &SQLiteInsightStore{db: db, l: l.With("sqlite-store")}, nil
}

func (s *SQLiteInsightStore) Init(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS insight_history (
			id              TEXT PRIMARY KEY,
			symbol          TEXT NOT NULL,
			asset_class     TEXT NOT NULL,
			price           REAL NOT NULL,
			change_percent  REAL NOT NULL,
			volume          INTEGER NOT NULL,
			sentiment       TEXT NOT NULL,
			sentiment_score REAL NOT NULL,
			recommendation  TEXT NOT NULL,
			risk_level      TEXT NOT NULL,
			provider        TEXT NOT NULL,
			recorded_at     INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_insight_symbol_ts ON insight_history(symbol, recorded_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate insight_history: %w", err)
		}
	}
	return nil
}

const sqliteInsert = `INSERT OR IGNORE INTO insight_history
	(id, symbol, asset_class, price, change_percent, volume, sentiment, sentiment_score,
	 recommendation, risk_level, provider, recorded_at)
	VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`

func (s *SQLiteInsightStore) Save(ctx context.Context, rec *models.InsightRecord) error {
	return s.SaveBatch(ctx, []*models.InsightRecord{rec})
}

// SaveBatch inserts the records in one transaction. Records already stored
// (same id) are skipped so redelivered messages are harmless.
func (s *SQLiteInsightStore) SaveBatch(ctx context.Context, recs []*models.InsightRecord) error {
	if len(recs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, sqliteInsert)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range recs {
		if r == nil || r.ID == "" || r.Symbol == "" {
			continue
		}
		if _, err := stmt.ExecContext(ctx,
			r.ID, r.Symbol, string(r.AssetClass), r.Price, r.ChangePercent, r.Volume,
			string(r.Sentiment), r.SentimentScore, string(r.Recommendation), string(r.RiskLevel),
			r.Provider, r.RecordedAt.UTC().UnixMilli(),
		); err != nil {
			return fmt.Errorf("insert %s: %w", r.Symbol, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Recent returns up to limit records for symbol within [from, to], newest first.
func (s *SQLiteInsightStore) Recent(ctx context.Context, symbol string, from, to time.Time, limit int) ([]*models.InsightRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, symbol, asset_class, price, change_percent, volume,
			sentiment, sentiment_score, recommendation, risk_level, provider, recorded_at
		FROM insight_history
		WHERE symbol = ? AND recorded_at >= ? AND recorded_at <= ?
		ORDER BY recorded_at DESC
		LIMIT ?`,
		symbol, from.UTC().UnixMilli(), to.UTC().UnixMilli(), limit)
	if err != nil {
		s.l.Error("recent query failed", applogger.String("symbol", symbol), applogger.Error(err))
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	out := make([]*models.InsightRecord, 0, limit)
	for rows.Next() {
		var (
			r                      models.InsightRecord
			class, sent, rec, risk string
			ts                     int64
		)
		if err := rows.Scan(&r.ID, &r.Symbol, &class, &r.Price, &r.ChangePercent, &r.Volume,
			&sent, &r.SentimentScore, &rec, &risk, &r.Provider, &ts); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		r.AssetClass = models.AssetClass(class)
		r.Sentiment = models.Sentiment(sent)
		r.Recommendation = models.Recommendation(rec)
		r.RiskLevel = models.RiskLevel(risk)
		r.RecordedAt = time.UnixMilli(ts).UTC()
		out = append(out, &r)
	}
	return out, rows.Err()
}

func (s *SQLiteInsightStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteInsightStore) Close() error {
	return s.db.Close()
}

package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"FinSight/internal/domain/models"
	domrepo "FinSight/internal/domain/repository"
	pkgch "FinSight/pkg/clickhouse"
	applogger "FinSight/pkg/logger"
)

const chInsightTable = "insight_history"

// CHInsightStore keeps insight history in ClickHouse. The table is a
// ReplacingMergeTree on id so redelivered records collapse on merge.
type CHInsightStore struct {
	client *pkgch.Client
	db     *sql.DB
	l      *applogger.Logger
}

var _ domrepo.InsightStore = (*CHInsightStore)(nil)

func NewCHInsightStore(client *pkgch.Client, l *applogger.Logger) *CHInsightStore {
	if l == nil {
		l = applogger.Nop()
	}
	return &CHInsightStore{client: client, db: client.DB(), l: l.With("clickhouse-store")}
}

func (s *CHInsightStore) Init(ctx context.Context) error {
	return s.client.Exec(ctx, `CREATE TABLE IF NOT EXISTS `+chInsightTable+` (
		id              String,
		symbol          LowCardinality(String),
		asset_class     LowCardinality(String),
		price           Float64,
		change_percent  Float64,
		volume          Int64,
		sentiment       LowCardinality(String),
		sentiment_score Float64,
		recommendation  LowCardinality(String),
		risk_level      LowCardinality(String),
		provider        LowCardinality(String),
		recorded_at     DateTime64(3, 'UTC')
	)
	ENGINE = ReplacingMergeTree
	PARTITION BY toYYYYMM(recorded_at)
	ORDER BY (symbol, recorded_at, id)`)
}

func (s *CHInsightStore) Save(ctx context.Context, rec *models.InsightRecord) error {
	return s.SaveBatch(ctx, []*models.InsightRecord{rec})
}

// SaveBatch sends the records as a single driver batch.
func (s *CHInsightStore) SaveBatch(ctx context.Context, recs []*models.InsightRecord) error {
	if len(recs) == 0 {
		return nil
	}
	start := time.Now()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("clickhouse begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO `+chInsightTable+`
		(id, symbol, asset_class, price, change_percent, volume, sentiment, sentiment_score,
		 recommendation, risk_level, provider, recorded_at)`)
	if err != nil {
		return fmt.Errorf("clickhouse prepare: %w", err)
	}
	defer stmt.Close()

	n := 0
	for _, r := range recs {
		if r == nil || r.ID == "" || r.Symbol == "" {
			continue
		}
		if _, err := stmt.ExecContext(ctx,
			r.ID, r.Symbol, string(r.AssetClass), r.Price, r.ChangePercent, r.Volume,
			string(r.Sentiment), r.SentimentScore, string(r.Recommendation), string(r.RiskLevel),
			r.Provider, r.RecordedAt.UTC(),
		); err != nil {
			return fmt.Errorf("clickhouse append %s: %w", r.Symbol, err)
		}
		n++
	}
	if err := tx.Commit(); err != nil {
		s.l.Error("batch insert failed", applogger.Int("rows", n), applogger.Error(err))
		return fmt.Errorf("clickhouse commit: %w", err)
	}
	s.l.Debug("batch inserted", applogger.Int("rows", n), applogger.Duration("took_ms", time.Since(start)))
	return nil
}

func (s *CHInsightStore) Recent(ctx context.Context, symbol string, from, to time.Time, limit int) ([]*models.InsightRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, symbol, asset_class, price, change_percent, volume,
			sentiment, sentiment_score, recommendation, risk_level, provider, recorded_at
		FROM `+chInsightTable+` FINAL
		WHERE symbol = ? AND recorded_at >= ? AND recorded_at <= ?
		ORDER BY recorded_at DESC
		LIMIT ?`,
		symbol, from.UTC(), to.UTC(), limit)
	if err != nil {
		s.l.Error("recent query failed", applogger.String("symbol", symbol), applogger.Error(err))
		return nil, fmt.Errorf("clickhouse recent: %w", err)
	}
	defer rows.Close()

	out := make([]*models.InsightRecord, 0, limit)
	for rows.Next() {
		var (
			r                      models.InsightRecord
			class, sent, rec, risk string
		)
		if err := rows.Scan(&r.ID, &r.Symbol, &class, &r.Price, &r.ChangePercent, &r.Volume,
			&sent, &r.SentimentScore, &rec, &risk, &r.Provider, &r.RecordedAt); err != nil {
			return nil, fmt.Errorf("clickhouse scan: %w", err)
		}
		r.AssetClass = models.AssetClass(class)
		r.Sentiment = models.Sentiment(sent)
		r.Recommendation = models.Recommendation(rec)
		r.RiskLevel = models.RiskLevel(risk)
		r.RecordedAt = r.RecordedAt.UTC()
		out = append(out, &r)
	}
	return out, rows.Err()
}

func (s *CHInsightStore) Health(ctx context.Context) error {
	return s.client.Health(ctx)
}

// Close releases the underlying client. The store owns it.
func (s *CHInsightStore) Close() error { return s.client.Close() }

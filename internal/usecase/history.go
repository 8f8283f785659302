package usecase

import (
	"context"
	"fmt"
	"time"

	"FinSight/internal/domain/models"
	drepo "FinSight/internal/domain/repository"
)

const (
	DefaultHistoryLimit  = 100
	MaxHistoryLimit      = 1000
	DefaultHistoryWindow = 7 * 24 * time.Hour
)

// HistoryUseCase reads recorded insights back.
type HistoryUseCase struct {
	store drepo.InsightStore // nil when history is disabled
	now   func() time.Time
}

func NewHistoryUseCase(store drepo.InsightStore) *HistoryUseCase {
	return &HistoryUseCase{store: store, now: time.Now}
}

type HistoryParams struct {
	Symbol string
	From   time.Time // zero: To minus DefaultHistoryWindow
	To     time.Time // zero: now
	Limit  int       // <=0: DefaultHistoryLimit, capped at MaxHistoryLimit
}

type HistoryPage struct {
	Records []*models.InsightRecord
	From    time.Time
	To      time.Time
}

func (uc *HistoryUseCase) Recent(ctx context.Context, p HistoryParams) (*HistoryPage, error) {
	if uc.store == nil {
		return nil, models.ErrHistoryDisabled
	}
	symbol := models.NormalizeSymbol(p.Symbol)
	if symbol == "" {
		return nil, fmt.Errorf("%w: symbol is required", models.ErrInvalidInput)
	}

	to := p.To
	if to.IsZero() {
		to = uc.now()
	}
	from := p.From
	if from.IsZero() {
		from = to.Add(-DefaultHistoryWindow)
	}
	if from.After(to) {
		return nil, fmt.Errorf("%w: from is after to", models.ErrInvalidInput)
	}

	limit := p.Limit
	switch {
	case limit <= 0:
		limit = DefaultHistoryLimit
	case limit > MaxHistoryLimit:
		limit = MaxHistoryLimit
	}

	recs, err := uc.store.Recent(ctx, symbol, from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("history %s: %w", symbol, err)
	}
	return &HistoryPage{Records: recs, From: from.UTC(), To: to.UTC()}, nil
}

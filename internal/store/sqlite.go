package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/mixh8/Truth-Bench/internal/model"
)

type portfolioRow struct {
	ModelID      string          `gorm:"primaryKey"`
	TotalValue   decimal.Decimal `gorm:"type:decimal(20,6)"`
	ValueHistory string
	UpdatedAt    time.Time
}

func (portfolioRow) TableName() string { return "model_portfolios" }

type eventRow struct {
	ID             string `gorm:"primaryKey"`
	ModelID        string `gorm:"index"`
	Ticker         string
	MarketTitle    string
	Action         string
	Side           string
	Contracts      int
	PriceCents     int
	Confidence     float64
	Reason         string
	Reasoning      string
	RealizedProfit *decimal.Decimal `gorm:"type:decimal(20,6)"`
	Timestamp      time.Time        `gorm:"index"`
}

func (eventRow) TableName() string { return "trade_events" }

// SQLiteStore implements Store on an embedded SQLite file via gorm.
type SQLiteStore struct {
	db *gorm.DB
}

// NewSQLiteStore opens (or creates) the database at path and migrates it.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if err := db.AutoMigrate(&portfolioRow{}, &eventRow{}); err != nil {
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the underlying connection.
func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *SQLiteStore) UpsertPortfolioSnapshot(ctx context.Context, modelID string, totalValue decimal.Decimal, history []model.ValuePoint) error {
	if history == nil {
		history = []model.ValuePoint{}
	}
	data, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}

	row := portfolioRow{
		ModelID:      modelID,
		TotalValue:   totalValue,
		ValueHistory: string(data),
		UpdatedAt:    time.Now().UTC(),
	}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("upsert portfolio %s: %w", modelID, err)
	}
	return nil
}

func (s *SQLiteStore) AppendTradeEvent(ctx context.Context, e *model.TradeEvent) error {
	row := eventRow{
		ID:             e.ID,
		ModelID:        e.ModelID,
		Ticker:         e.Ticker,
		MarketTitle:    e.MarketTitle,
		Action:         string(e.Action),
		Side:           string(e.Side),
		Contracts:      e.Contracts,
		PriceCents:     e.PriceCents,
		Confidence:     e.Confidence,
		Reason:         e.Reason,
		Reasoning:      e.Reasoning,
		RealizedProfit: e.RealizedProfit,
		Timestamp:      e.Timestamp,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("append event %s: %w", e.ID, err)
	}
	return nil
}

func (s *SQLiteStore) ReadAllModels(ctx context.Context) ([]model.ModelRecord, error) {
	var rows []portfolioRow
	if err := s.db.WithContext(ctx).Order("model_id").Find(&rows).Error; err != nil {
		return nil, err
	}

	records := make([]model.ModelRecord, 0, len(rows))
	for _, r := range rows {
		rec := model.ModelRecord{ModelID: r.ModelID, TotalValue: r.TotalValue, UpdatedAt: r.UpdatedAt}
		if err := json.Unmarshal([]byte(r.ValueHistory), &rec.ValueHistory); err != nil {
			return nil, fmt.Errorf("decode history for %s: %w", r.ModelID, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func (s *SQLiteStore) ReadRecentEvents(ctx context.Context, limit int) ([]model.TradeEvent, error) {
	limit, err := clampLimit(limit)
	if err != nil {
		return nil, err
	}

	var rows []eventRow
	if err := s.db.WithContext(ctx).Order("timestamp DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}

	events := make([]model.TradeEvent, 0, len(rows))
	for _, r := range rows {
		events = append(events, model.TradeEvent{
			ID:             r.ID,
			ModelID:        r.ModelID,
			Ticker:         r.Ticker,
			MarketTitle:    r.MarketTitle,
			Action:         model.Action(r.Action),
			Side:           model.Side(r.Side),
			Contracts:      r.Contracts,
			PriceCents:     r.PriceCents,
			Confidence:     r.Confidence,
			Reason:         r.Reason,
			Reasoning:      r.Reasoning,
			RealizedProfit: r.RealizedProfit,
			Timestamp:      r.Timestamp,
		})
	}
	return events, nil
}

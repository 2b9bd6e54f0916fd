// Package api provides the read-only HTTP boundary the dashboard polls:
// live portfolios, the persisted model summaries, the audit trail and the
// leaderboard.
//
// All monetary values use shopspring/decimal, never float64.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/mixh8/Truth-Bench/internal/model"
	"github.com/mixh8/Truth-Bench/internal/portfolio"
	"github.com/mixh8/Truth-Bench/internal/risk"
	"github.com/mixh8/Truth-Bench/internal/scoring"
	"github.com/mixh8/Truth-Bench/internal/store"
)

const defaultEventLimit = 50

// Service serves read-only views. The in-memory portfolio store is the
// live source; the storage collaborator serves history and events.
type Service struct {
	portfolios     *portfolio.Store
	store          store.Store
	forecasts      *scoring.ForecastBook
	periodsPerYear float64
}

// NewService creates a new status service. periodsPerYear annualises the
// Sharpe ratio and should match the tick interval. forecasts may be nil.
func NewService(portfolios *portfolio.Store, st store.Store, forecasts *scoring.ForecastBook, periodsPerYear float64) *Service {
	if periodsPerYear <= 0 {
		periodsPerYear = scoring.HourlyPeriods
	}
	return &Service{
		portfolios:     portfolios,
		store:          st,
		forecasts:      forecasts,
		periodsPerYear: periodsPerYear,
	}
}

// Routes mounts the service's handlers under r. hub may be nil.
func (s *Service) Routes(r chi.Router, hub *WSHub) {
	r.Get("/portfolios", s.ListPortfolios)
	r.Get("/portfolios/{modelID}", s.GetPortfolio)
	r.Get("/models", s.ListModels)
	r.Get("/events", s.ListEvents)
	r.Get("/leaderboard", s.Leaderboard)
	if hub != nil {
		r.Get("/ws", hub.HandleWS)
	}
}

// --- Response types ---

// PositionView is an open position as served to the dashboard.
type PositionView struct {
	model.Position
	Notional decimal.Decimal `json:"notional"` // at entry price, before fees
}

// PortfolioResponse is the JSON body for portfolio endpoints.
type PortfolioResponse struct {
	ModelID           string             `json:"model_id"`
	Cash              decimal.Decimal    `json:"cash"`
	TotalValue        decimal.Decimal    `json:"total_value"`
	PeakValue         decimal.Decimal    `json:"peak_value"`
	InitialCapital    decimal.Decimal    `json:"initial_capital"`
	Drawdown          decimal.Decimal    `json:"drawdown"`
	ROI               decimal.Decimal    `json:"roi"`
	RealizedProfit    decimal.Decimal    `json:"realized_profit"`
	TradesThisSession int                `json:"trades_this_session"`
	ClosedTrades      int                `json:"closed_trades"`
	WinningTrades     int                `json:"winning_trades"`
	Positions         []PositionView     `json:"positions"`
	ValueHistory      []model.ValuePoint `json:"value_history,omitempty"`
}

func toResponse(pf model.Portfolio, withHistory bool) PortfolioResponse {
	resp := PortfolioResponse{
		ModelID:           pf.ModelID,
		Cash:              pf.Cash,
		TotalValue:        pf.TotalValue,
		PeakValue:         pf.PeakValue,
		InitialCapital:    pf.InitialCapital,
		Drawdown:          risk.Drawdown(pf.PeakValue, pf.TotalValue),
		ROI:               scoring.ROI(pf),
		RealizedProfit:    pf.RealizedProfit,
		TradesThisSession: pf.TradesThisSession,
		ClosedTrades:      pf.ClosedTrades,
		WinningTrades:     pf.WinningTrades,
		Positions:         make([]PositionView, 0, len(pf.Positions)),
	}
	for _, pos := range pf.Positions {
		resp.Positions = append(resp.Positions, PositionView{
			Position: *pos,
			Notional: pos.MarketValue(pos.EntryPrice),
		})
	}
	sort.Slice(resp.Positions, func(i, j int) bool {
		return resp.Positions[i].Ticker < resp.Positions[j].Ticker
	})
	if withHistory {
		resp.ValueHistory = pf.ValueHistory
	}
	return resp
}

// --- Handlers ---

// ListPortfolios handles GET /api/v1/portfolios.
func (s *Service) ListPortfolios(w http.ResponseWriter, r *http.Request) {
	snaps := s.portfolios.Snapshots()
	resp := make([]PortfolioResponse, 0, len(snaps))
	for _, pf := range snaps {
		resp = append(resp, toResponse(pf, false))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetPortfolio handles GET /api/v1/portfolios/{modelID}.
func (s *Service) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	modelID := chi.URLParam(r, "modelID")
	pf, err := s.portfolios.Snapshot(modelID)
	if errors.Is(err, portfolio.ErrUnknownModel) {
		writeError(w, "model not found: "+modelID, http.StatusNotFound)
		return
	}
	if err != nil {
		writeError(w, "failed to read portfolio", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(pf, true))
}

// ListModels handles GET /api/v1/models: the persisted summaries.
func (s *Service) ListModels(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.ReadAllModels(r.Context())
	if err != nil {
		slog.Error("read models failed", "err", err)
		writeError(w, "failed to read models", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []model.ModelRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

// ListEvents handles GET /api/v1/events?limit=N, newest first.
func (s *Service) ListEvents(w http.ResponseWriter, r *http.Request) {
	limit := defaultEventLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(n, store.MaxRecentEvents)
	}

	events, err := s.store.ReadRecentEvents(r.Context(), limit)
	if err != nil {
		slog.Error("read events failed", "err", err)
		writeError(w, "failed to read events", http.StatusInternalServerError)
		return
	}
	if events == nil {
		events = []model.TradeEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

// Leaderboard handles GET /api/v1/leaderboard.
func (s *Service) Leaderboard(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scoring.Leaderboard(s.portfolios.Snapshots(), s.periodsPerYear, s.forecasts))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}

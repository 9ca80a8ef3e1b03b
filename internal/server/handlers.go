package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/quantrank/quantrank/internal/modules/pending"
	"github.com/quantrank/quantrank/internal/modules/pipeline"
	"github.com/quantrank/quantrank/internal/modules/scoring"
	"github.com/quantrank/quantrank/internal/modules/universe"
)

const (
	defaultStockLimit    = 100
	defaultScoreLimit    = 500
	maxScoreLimit        = 2500
	defaultTopN          = 50
	defaultPriceDays     = 365
	maxPriceDays         = 2000
)

// handleListStocks returns metadata rows ordered by market cap rank
func (s *Server) handleListStocks(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultStockLimit)
	if err != nil || limit < 1 {
		s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
		return
	}

	stocks, err := s.metaRepo.List(universe.MetadataFilter{
		Industry: r.URL.Query().Get("industry"),
		Sector:   r.URL.Query().Get("sector"),
		Limit:    limit,
	})
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to list stocks")
		s.writeError(w, http.StatusInternalServerError, "failed to list stocks")
		return
	}

	if stocks == nil {
		stocks = []universe.StockMetadata{}
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":  len(stocks),
		"stocks": stocks,
	})
}

// handleGetStock returns one metadata row
func (s *Server) handleGetStock(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")

	meta, err := s.metaRepo.GetBySymbol(symbol)
	if err != nil {
		s.log.Error().Err(err).Str("symbol", symbol).Msg("Failed to get stock")
		s.writeError(w, http.StatusInternalServerError, "failed to get stock")
		return
	}
	if meta == nil {
		s.writeError(w, http.StatusNotFound, "unknown symbol: "+symbol)
		return
	}

	s.writeJSON(w, http.StatusOK, meta)
}

// handleGetPrices returns the last N days of bars for a symbol
func (s *Server) handleGetPrices(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")

	days, err := queryInt(r, "days", defaultPriceDays)
	if err != nil || days < 1 || days > maxPriceDays {
		s.writeError(w, http.StatusBadRequest, "days must be between 1 and 2000")
		return
	}

	bars, err := s.priceRepo.GetHistory(symbol, days)
	if err != nil {
		s.log.Error().Err(err).Str("symbol", symbol).Msg("Failed to get price history")
		s.writeError(w, http.StatusInternalServerError, "failed to get price history")
		return
	}

	if bars == nil {
		bars = []universe.PriceBar{}
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"symbol": strings.ToUpper(strings.TrimSpace(symbol)),
		"count":  len(bars),
		"bars":   bars,
	})
}

// handleListStrategies lists the available scoring strategies
func (s *Server) handleListStrategies(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"strategies": scoring.AllStrategies,
	})
}

// handleStrategyScores scores the top-limit universe for one strategy
func (s *Server) handleStrategyScores(w http.ResponseWriter, r *http.Request) {
	strategy, err := scoring.ParseStrategy(chi.URLParam(r, "strategy"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	limit, err := queryInt(r, "limit", defaultScoreLimit)
	if err != nil || limit < 1 || limit > maxScoreLimit {
		s.writeError(w, http.StatusBadRequest, "limit must be between 1 and 2500")
		return
	}

	topN, err := queryInt(r, "top_n", defaultTopN)
	if err != nil || topN < 1 {
		s.writeError(w, http.StatusBadRequest, "top_n must be a positive integer")
		return
	}

	date, err := s.resolveScoreDate(r.URL.Query().Get("date"))
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to resolve score date")
		s.writeError(w, http.StatusInternalServerError, "failed to resolve score date")
		return
	}

	result, err := s.scorer.ComputeStrategyScores(
		strategy, date, limit,
		r.URL.Query().Get("industry"),
		r.URL.Query().Get("sector"),
		topN,
	)
	if err != nil {
		s.log.Error().Err(err).Str("strategy", string(strategy)).Msg("Failed to compute scores")
		s.writeError(w, http.StatusInternalServerError, "failed to compute scores")
		return
	}

	s.writeJSON(w, http.StatusOK, result)
}

// handleSectorMomentum aggregates momentum scores by sector
func (s *Server) handleSectorMomentum(w http.ResponseWriter, r *http.Request) {
	date, err := s.resolveScoreDate(r.URL.Query().Get("date"))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to resolve score date")
		return
	}

	sectors, err := s.scoreRepo.GetSectorMomentum(date)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to aggregate sector momentum")
		s.writeError(w, http.StatusInternalServerError, "failed to aggregate sector momentum")
		return
	}

	if sectors == nil {
		sectors = []scoring.SectorMomentum{}
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"calculation_date": date,
		"sectors":          sectors,
	})
}

// resolveScoreDate picks the score date: an explicit date wins, then the
// densest persisted date, then today's trading date.
func (s *Server) resolveScoreDate(requested string) (string, error) {
	if requested != "" {
		return requested, nil
	}

	best, err := s.scoreRepo.GetBestScoreDate()
	if err != nil {
		return "", err
	}
	if best != nil {
		return *best, nil
	}

	return s.calendar.TradingDate().Format("2006-01-02"), nil
}

// pipelineRequest is the POST /api/pipelines/run body
type pipelineRequest struct {
	Stages []pipeline.StageSpec `json:"stages"`
	Date   string               `json:"calculation_date,omitempty"`
}

// handleRunPipeline executes a multi-stage strategy pipeline
func (s *Server) handleRunPipeline(w http.ResponseWriter, r *http.Request) {
	var req pipelineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := pipeline.Validate(req.Stages); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	date, err := s.resolveScoreDate(req.Date)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to resolve score date")
		return
	}

	result, err := s.executor.Run(req.Stages, date)
	if err != nil {
		s.log.Error().Err(err).Msg("Pipeline execution failed")
		s.writeError(w, http.StatusInternalServerError, "pipeline execution failed")
		return
	}

	s.writeJSON(w, http.StatusOK, result)
}

// handleMarketStatus returns the trading-calendar snapshot
func (s *Server) handleMarketStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.calendar.CurrentStatus())
}

// handleGetWeights returns the active momentum weights
func (s *Server) handleGetWeights(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.scorer.Weights().Get())
}

// handleUpdateWeights replaces the momentum weights. Weights that do not
// sum to 1 are re-normalized; out-of-range values are rejected.
func (s *Server) handleUpdateWeights(w http.ResponseWriter, r *http.Request) {
	var weights scoring.Weights
	if err := json.NewDecoder(r.Body).Decode(&weights); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	applied, err := s.scorer.Weights().Update(weights)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, applied)
}

// handleResetWeights restores the default momentum weights
func (s *Server) handleResetWeights(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.scorer.Weights().Reset())
}

// handleTriggerPriceUpdate starts a price update cycle, bypassing the
// post-close gate. Returns immediately; the cycle runs in background.
func (s *Server) handleTriggerPriceUpdate(w http.ResponseWriter, r *http.Request) {
	go func() {
		if err := s.pricePoller.RunCycle(context.Background()); err != nil {
			s.log.Error().Err(err).Msg("Manual price update cycle failed")
		}
	}()

	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "price update started"})
}

// handleTriggerAttributeUpdate enqueues symbols for attribute backfill
// and kicks the poller. With no symbols, just runs a discovery cycle.
func (s *Server) handleTriggerAttributeUpdate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Symbols []string `json:"symbols"`
	}
	if r.Body != nil && r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	if len(req.Symbols) > 0 {
		if err := s.attributePoller.TriggerUpdate(req.Symbols); err != nil {
			s.log.Error().Err(err).Msg("Failed to enqueue attribute updates")
			s.writeError(w, http.StatusInternalServerError, "failed to enqueue attribute updates")
			return
		}
	}

	go func() {
		if err := s.attributePoller.Run(); err != nil {
			s.log.Error().Err(err).Msg("Manual attribute update cycle failed")
		}
	}()

	s.writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"status":   "attribute update started",
		"enqueued": len(req.Symbols),
	})
}

// handleResetPending resets retry counts for exhausted backlog rows
func (s *Server) handleResetPending(w http.ResponseWriter, r *http.Request) {
	kindParam := r.URL.Query().Get("kind")
	if kindParam == "" {
		kindParam = string(pending.OpAttributes)
	}

	var kind pending.OpKind
	switch kindParam {
	case string(pending.OpPrices):
		kind = pending.OpPrices
	case string(pending.OpAttributes):
		kind = pending.OpAttributes
	default:
		s.writeError(w, http.StatusBadRequest, "kind must be 'prices' or 'attributes'")
		return
	}

	affected, err := s.ledger.ResetRetries(kind)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to reset pending retries")
		s.writeError(w, http.StatusInternalServerError, "failed to reset pending retries")
		return
	}

	cleared, err := s.tracker.ClearFailed()
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to clear failed update statuses")
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"kind":           kind,
		"reset":          affected,
		"cleared_failed": cleared,
	})
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

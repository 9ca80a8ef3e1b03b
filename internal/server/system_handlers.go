package server

import (
	"net/http"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/quantrank/quantrank/internal/modules/market"
	"github.com/quantrank/quantrank/internal/modules/pending"
	"github.com/quantrank/quantrank/internal/poller"
)

// SystemStatusResponse is the /api/system/status payload
type SystemStatusResponse struct {
	Status        string                       `json:"status"`
	UptimeSeconds int64                        `json:"uptime_seconds"`
	CPUPercent    float64                      `json:"cpu_percent"`
	MemoryPercent float64                      `json:"memory_percent"`
	Database      DatabaseStatsResponse        `json:"database"`
	Universe      UniverseStatsResponse        `json:"universe"`
	Updates       *pending.Statistics          `json:"updates"`
	Backlog       BacklogStatsResponse         `json:"backlog"`
	PricePoller   poller.PricePollerStatus     `json:"price_poller"`
	AttrPoller    poller.AttributePollerStatus `json:"attribute_poller"`
	Market        market.Status                `json:"market"`
}

// DatabaseStatsResponse summarizes the SQLite file
type DatabaseStatsResponse struct {
	SizeMB    float64 `json:"size_mb"`
	WALSizeMB float64 `json:"wal_size_mb"`
	PageCount int64   `json:"page_count"`
}

// UniverseStatsResponse summarizes universe coverage
type UniverseStatsResponse struct {
	StockCount int `json:"stock_count"`
}

// BacklogStatsResponse summarizes the pending-ops ledger
type BacklogStatsResponse struct {
	PendingPrices       int `json:"pending_prices"`
	PendingAttributes   int `json:"pending_attributes"`
	ExhaustedPrices     int `json:"exhausted_prices"`
	ExhaustedAttributes int `json:"exhausted_attributes"`
}

// buildSystemStatus collects the full system snapshot. Collection errors
// degrade individual sections instead of failing the whole response.
func (s *Server) buildSystemStatus() SystemStatusResponse {
	response := SystemStatusResponse{
		Status:        "healthy",
		UptimeSeconds: int64(time.Since(s.startupTime).Seconds()),
		PricePoller:   s.pricePoller.Status(),
		AttrPoller:    s.attributePoller.Status(),
		Market:        s.calendar.CurrentStatus(),
	}

	if cpuPercent, err := cpu.Percent(100*time.Millisecond, false); err == nil && len(cpuPercent) > 0 {
		response.CPUPercent = cpuPercent[0]
	}
	if memStat, err := mem.VirtualMemory(); err == nil {
		response.MemoryPercent = memStat.UsedPercent
	}

	if stats, err := s.db.GetStats(); err == nil {
		response.Database = DatabaseStatsResponse{
			SizeMB:    float64(stats.SizeBytes) / 1024 / 1024,
			WALSizeMB: float64(stats.WALSizeBytes) / 1024 / 1024,
			PageCount: stats.PageCount,
		}
	} else {
		s.log.Warn().Err(err).Msg("Failed to collect database stats")
	}

	if count, err := s.metaRepo.Count(); err == nil {
		response.Universe.StockCount = count
	}

	if stats, err := s.tracker.GetStatistics(); err == nil {
		response.Updates = stats
	} else {
		s.log.Warn().Err(err).Msg("Failed to collect update statistics")
	}

	response.Backlog = s.collectBacklogStats()

	return response
}

func (s *Server) collectBacklogStats() BacklogStatsResponse {
	var stats BacklogStatsResponse

	if n, err := s.ledger.Count(pending.OpPrices); err == nil {
		stats.PendingPrices = n
	}
	if n, err := s.ledger.Count(pending.OpAttributes); err == nil {
		stats.PendingAttributes = n
	}
	if symbols, err := s.ledger.Exhausted(pending.OpPrices); err == nil {
		stats.ExhaustedPrices = len(symbols)
	}
	if symbols, err := s.ledger.Exhausted(pending.OpAttributes); err == nil {
		stats.ExhaustedAttributes = len(symbols)
	}

	return stats
}

// handleSystemStatus returns process, database, and poller state
func (s *Server) handleSystemStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.buildSystemStatus())
}

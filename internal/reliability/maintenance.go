package reliability

import (
	"context"
	"fmt"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/quantrank/quantrank/internal/database"
	"github.com/quantrank/quantrank/internal/modules/pending"
)

// NightlyMaintenanceJob keeps the database healthy: integrity check,
// WAL checkpoint, incremental vacuum, statistics refresh, and cleanup
// of attribute backlog rows that completed behind the ledger's back.
type NightlyMaintenanceJob struct {
	db     *database.DB
	ledger *pending.LedgerRepository
	log    zerolog.Logger
}

// NewNightlyMaintenanceJob creates the nightly maintenance job
func NewNightlyMaintenanceJob(db *database.DB, ledger *pending.LedgerRepository, log zerolog.Logger) *NightlyMaintenanceJob {
	return &NightlyMaintenanceJob{
		db:     db,
		ledger: ledger,
		log:    log.With().Str("job", "nightly_maintenance").Logger(),
	}
}

// Name implements scheduler.Job
func (j *NightlyMaintenanceJob) Name() string {
	return "nightly_maintenance"
}

// Run executes the nightly maintenance pass
func (j *NightlyMaintenanceJob) Run() error {
	j.log.Info().Msg("Starting nightly maintenance")
	startTime := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	if err := j.db.HealthCheck(ctx); err != nil {
		j.log.Error().Err(err).Msg("CRITICAL: Database integrity check failed")
		return fmt.Errorf("integrity check failed: %w", err)
	}

	if err := j.db.WALCheckpoint("TRUNCATE"); err != nil {
		// Not fatal, the autocheckpoint will catch up
		j.log.Warn().Err(err).Msg("WAL checkpoint failed")
	}

	if _, err := j.db.Exec("PRAGMA incremental_vacuum"); err != nil {
		j.log.Warn().Err(err).Msg("Incremental vacuum failed")
	}

	if _, err := j.db.Exec("ANALYZE"); err != nil {
		j.log.Warn().Err(err).Msg("ANALYZE failed")
	}

	removed, err := j.ledger.CleanupCompleted()
	if err != nil {
		j.log.Warn().Err(err).Msg("Backlog cleanup failed")
	} else if removed > 0 {
		j.log.Info().Int64("rows", removed).Msg("Removed completed backlog rows")
	}

	if err := j.checkDiskSpace(); err != nil {
		return err
	}

	if stats, err := j.db.GetStats(); err == nil {
		j.log.Info().
			Float64("size_mb", float64(stats.SizeBytes)/1024/1024).
			Float64("wal_size_mb", float64(stats.WALSizeBytes)/1024/1024).
			Int64("freelist_pages", stats.FreelistCount).
			Msg("Database metrics")
	}

	j.log.Info().
		Dur("duration_ms", time.Since(startTime)).
		Msg("Nightly maintenance completed successfully")

	return nil
}

// checkDiskSpace halts maintenance when the data volume is nearly full
func (j *NightlyMaintenanceJob) checkDiskSpace() error {
	stat := syscall.Statfs_t{}
	dataDir := filepath.Dir(j.db.Path())
	if err := syscall.Statfs(dataDir, &stat); err != nil {
		return fmt.Errorf("failed to stat filesystem: %w", err)
	}

	availableBytes := stat.Bavail * uint64(stat.Bsize)
	availableGB := float64(availableBytes) / 1e9

	j.log.Debug().Float64("available_gb", availableGB).Msg("Disk space check")

	if availableGB < 0.5 {
		j.log.Error().Float64("available_gb", availableGB).Msg("CRITICAL: Insufficient disk space")
		return fmt.Errorf("only %.2f GB free on data volume", availableGB)
	}

	if availableGB < 5.0 {
		j.log.Warn().Float64("available_gb", availableGB).Msg("Disk space running low")
	}

	return nil
}

package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/peerprep/matching-server-go/internal/metrics"
	"github.com/peerprep/matching-server-go/internal/pool"
	"github.com/peerprep/matching-server-go/internal/repository"
)

// PoolSweeper purges invalid pending requests and reports partition sizes.
type PoolSweeper interface {
	Sweep() int
	Stats() []pool.PartitionStats
}

type UserCounter interface {
	Count() int
}

type CleanupJob struct {
	pools       PoolSweeper
	users       UserCounter
	historyRepo repository.MatchHistoryRepository
	metrics     *metrics.Metrics
	retention   time.Duration
	interval    time.Duration
	now         func() time.Time
	done        chan struct{}
}

// NewCleanupJob builds the periodic maintenance job. historyRepo may be nil
// when no database is configured.
func NewCleanupJob(
	pools PoolSweeper,
	users UserCounter,
	historyRepo repository.MatchHistoryRepository,
	m *metrics.Metrics,
	retention time.Duration,
	interval time.Duration,
) *CleanupJob {
	return &CleanupJob{
		pools:       pools,
		users:       users,
		historyRepo: historyRepo,
		metrics:     m,
		retention:   retention,
		interval:    interval,
		now:         time.Now,
		done:        make(chan struct{}),
	}
}

func (j *CleanupJob) Start() {
	go j.run()
	log.Info().Dur("interval", j.interval).Msg("cleanup job started")
}

func (j *CleanupJob) Stop() {
	close(j.done)
	log.Info().Msg("cleanup job stopped")
}

func (j *CleanupJob) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.cleanup()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.cleanup()
		}
	}
}

func (j *CleanupJob) cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	j.runCleanup(ctx, "pending requests", func(context.Context) (int64, error) {
		return int64(j.pools.Sweep()), nil
	})
	if j.historyRepo != nil && j.retention > 0 {
		j.runCleanup(ctx, "match history", func(ctx context.Context) (int64, error) {
			return j.historyRepo.DeleteOlderThan(ctx, j.now().Add(-j.retention))
		})
	}

	j.refreshGauges()
}

func (j *CleanupJob) refreshGauges() {
	stats := j.pools.Stats()
	counts := make(map[string]int, len(stats))
	for _, s := range stats {
		counts[s.Key.String()] = s.Pending
	}
	j.metrics.SetPending(counts)

	if j.users != nil {
		j.metrics.SetConnected(j.users.Count())
	}
}

func (j *CleanupJob) runCleanup(ctx context.Context, name string, fn func(context.Context) (int64, error)) {
	count, err := fn(ctx)
	if err != nil {
		log.Error().Err(err).Msgf("failed to cleanup %s", name)
	} else if count > 0 {
		log.Info().Int64("count", count).Msgf("cleaned up %s", name)
	}
}

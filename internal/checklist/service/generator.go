package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/kitchensafe/kitchensafe-backend/internal/checklist/domain"
	"github.com/kitchensafe/kitchensafe-backend/pkg/logger"
	"github.com/kitchensafe/kitchensafe-backend/pkg/metrics"
	"github.com/kitchensafe/kitchensafe-backend/pkg/tenant"
)

// cronParser accepts standard 5-field expressions (minute, hour, dom, month, dow).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// DailyGenerator runs the scheduler once a day under the system scope and
// then sweeps overdue checklists.
type DailyGenerator struct {
	scheduler *Scheduler
	cron      *cron.Cron
	metrics   *metrics.Metrics
	logger    *logger.Logger

	// serialises ticks and manual runs
	mu sync.Mutex
}

// NewDailyGenerator schedules the generator on expr, evaluated in the
// scheduler calendar's location.
func NewDailyGenerator(s *Scheduler, expr string, m *metrics.Metrics, log *logger.Logger) (*DailyGenerator, error) {
	g := &DailyGenerator{
		scheduler: s,
		metrics:   m,
		logger:    log.WithComponent("generator"),
	}

	loc := s.cal.Location
	if loc == nil {
		loc = time.UTC
	}
	cronLog := cron.PrintfLogger(g.logger)
	g.cron = cron.New(
		cron.WithParser(cronParser),
		cron.WithLocation(loc),
		cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
	)
	if _, err := g.cron.AddFunc(expr, g.tick); err != nil {
		return nil, fmt.Errorf("invalid generator schedule %q: %w", expr, err)
	}
	return g, nil
}

func (g *DailyGenerator) Start() {
	g.cron.Start()
	g.logger.Info().Msg("daily generator started")
}

// Stop halts the schedule and waits for a running tick to finish or ctx to end.
func (g *DailyGenerator) Stop(ctx context.Context) {
	done := g.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		g.logger.Warn().Msg("daily generator did not stop in time")
	}
}

func (g *DailyGenerator) tick() {
	ctx := context.Background()
	_, err := g.run(ctx, g.scheduler.cal.Today(), TriggerCron)
	g.metrics.RecordGeneratorRun(err)
	if err != nil {
		g.logger.WithError(err).Error().Msg("daily generation failed")
	}
}

// RunNow generates checklists for date and sweeps overdue ones immediately.
func (g *DailyGenerator) RunNow(ctx context.Context, date domain.Date) (*GenerationResult, error) {
	return g.run(ctx, date, TriggerCLI)
}

func (g *DailyGenerator) run(ctx context.Context, date domain.Date, trigger string) (*GenerationResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	res, err := g.scheduler.run(ctx, tenant.SystemScope(), date, nil, nil, trigger)
	if err != nil {
		return nil, err
	}
	if _, err := g.scheduler.MarkOverdue(ctx, g.scheduler.cal.Today()); err != nil {
		return res, err
	}
	return res, nil
}

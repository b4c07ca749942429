package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/berfenger/spotcharge2mqtt/internal/core/domain"
	"github.com/berfenger/spotcharge2mqtt/internal/core/port"

	"github.com/reugn/go-quartz/job"
	"github.com/reugn/go-quartz/quartz"
	"go.uber.org/zap"
)

const (
	MIDNIGHT_CRON                  = "0 0 0 * * *"
	DEFAULT_PRICE_PUBLICATION_CRON = "0 15 13 * * *"

	REASON_MIDNIGHT          = "midnight"
	REASON_PRICE_PUBLICATION = "price publication"
	REASON_NEW_PRICE_DATA    = "new price data"
)

// TriggerScheduler fires optimization requests from cron jobs and from a price watcher that
// polls the price provider for changed data. Cron expressions are evaluated in the plan
// location, local time unless set with WithLocation.
type TriggerScheduler struct {
	scheduler          quartz.Scheduler
	trigger            port.OptimizationTrigger
	prices             port.PriceProvider
	publicationCron    string
	priceWatchInterval time.Duration
	location           *time.Location
	cancel             context.CancelFunc

	mu       sync.Mutex
	lastSeen *domain.PriceSeries
	logger   *zap.Logger
}

func NewTriggerScheduler(trigger port.OptimizationTrigger, prices port.PriceProvider, publicationCron string,
	priceWatchInterval time.Duration, logger *zap.Logger) *TriggerScheduler {
	if publicationCron == "" {
		publicationCron = DEFAULT_PRICE_PUBLICATION_CRON
	}
	return &TriggerScheduler{
		scheduler:          quartz.NewStdScheduler(),
		trigger:            trigger,
		prices:             prices,
		publicationCron:    publicationCron,
		priceWatchInterval: priceWatchInterval,
		location:           time.Local,
		logger:             logger.With(zap.String("component", "scheduler")),
	}
}

func (s *TriggerScheduler) WithLocation(location *time.Location) *TriggerScheduler {
	if location != nil {
		s.location = location
	}
	return s
}

func (s *TriggerScheduler) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.scheduler.Start(ctx)

	if err := s.scheduleCron("midnight", MIDNIGHT_CRON, REASON_MIDNIGHT); err != nil {
		cancel()
		return err
	}
	if err := s.scheduleCron("price-publication", s.publicationCron, REASON_PRICE_PUBLICATION); err != nil {
		cancel()
		return err
	}
	if s.priceWatchInterval > 0 && s.prices != nil {
		watcher := job.NewFunctionJob(s.watchPrices)
		detail := quartz.NewJobDetail(watcher, quartz.NewJobKey("price-watcher"))
		if err := s.scheduler.ScheduleJob(detail, quartz.NewSimpleTrigger(s.priceWatchInterval)); err != nil {
			cancel()
			return fmt.Errorf("schedule price watcher: %w", err)
		}
	}
	s.logger.Info("scheduler: started", zap.String("price_publication", s.publicationCron),
		zap.Duration("price_watch_interval", s.priceWatchInterval))
	return nil
}

func (s *TriggerScheduler) Stop() {
	if s.cancel == nil {
		return
	}
	s.scheduler.Stop()
	waitCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.scheduler.Wait(waitCtx)
	s.cancel()
}

func (s *TriggerScheduler) scheduleCron(name, expression, reason string) error {
	cronTrigger, err := s.cronTrigger(expression)
	if err != nil {
		return fmt.Errorf("invalid cron expression %q for %s: %w", expression, name, err)
	}
	fire := job.NewFunctionJob(func(_ context.Context) (string, error) {
		s.trigger.RequestOptimization(reason)
		return reason, nil
	})
	if err := s.scheduler.ScheduleJob(quartz.NewJobDetail(fire, quartz.NewJobKey(name)), cronTrigger); err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}
	return nil
}

// cronTrigger builds a trigger for expression in the plan location. Plans cover local days, so
// midnight has to be local midnight.
func (s *TriggerScheduler) cronTrigger(expression string) (*quartz.CronTrigger, error) {
	return quartz.NewCronTriggerWithLoc(expression, s.location)
}

// watchPrices requests an optimization when the provider returns data different from the last
// observation. The first observation only records the baseline.
func (s *TriggerScheduler) watchPrices(ctx context.Context) (bool, error) {
	series, err := s.prices.GetPrices(ctx)
	if err != nil {
		s.logger.Warn("scheduler: price watch failed", zap.Error(err))
		return false, err
	}
	s.mu.Lock()
	changed := s.lastSeen != nil && !s.lastSeen.Equal(series)
	s.lastSeen = &series
	s.mu.Unlock()

	if changed {
		s.logger.Info("scheduler: price data changed", zap.Int("valid", series.ValidCount()))
		s.trigger.RequestOptimization(REASON_NEW_PRICE_DATA)
	}
	return changed, nil
}

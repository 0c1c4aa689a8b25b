package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"asset-lending-api/internal/models"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// OverdueLister reports loans past their return date
type OverdueLister interface {
	Overdue(ctx context.Context) ([]models.BorrowRequest, error)
}

// OverdueGauge receives the number of overdue loans after each sweep
type OverdueGauge interface {
	SetOverdue(n int)
}

// OverdueSweeper periodically counts overdue loans
type OverdueSweeper struct {
	lister  OverdueLister
	gauge   OverdueGauge
	log     *zap.Logger
	timeout time.Duration

	mu   sync.Mutex
	cron *cron.Cron
}

// NewOverdueSweeper creates a sweeper. gauge may be nil.
func NewOverdueSweeper(lister OverdueLister, gauge OverdueGauge, log *zap.Logger, timeout time.Duration) *OverdueSweeper {
	if log == nil {
		log = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &OverdueSweeper{
		lister:  lister,
		gauge:   gauge,
		log:     log.Named("overdue"),
		timeout: timeout,
	}
}

// Sweep runs one pass and returns the number of overdue loans
func (s *OverdueSweeper) Sweep(ctx context.Context) (int, error) {
	reqs, err := s.lister.Overdue(ctx)
	if err != nil {
		return 0, err
	}
	if s.gauge != nil {
		s.gauge.SetOverdue(len(reqs))
	}
	return len(reqs), nil
}

// Start schedules Sweep on a standard five-field cron spec evaluated in loc
func (s *OverdueSweeper) Start(spec string, loc *time.Location) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return errors.New("overdue sweeper already started")
	}
	if loc == nil {
		loc = time.Local
	}

	c := cron.New(
		cron.WithLocation(loc),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	_, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		n, err := s.Sweep(ctx)
		if err != nil {
			s.log.Error("overdue sweep failed", zap.Error(err))
			return
		}
		s.log.Info("overdue sweep finished", zap.Int("overdue", n))
	})
	if err != nil {
		return err
	}
	c.Start()
	s.cron = c
	s.log.Info("overdue sweeper started", zap.String("schedule", spec), zap.String("location", loc.String()))
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish
func (s *OverdueSweeper) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	<-c.Stop().Done()
}

package lending

import (
	"context"
	"time"

	"asset-lending-api/internal/models"
)

// LoanDays is the length of a loan. The due date is the borrow date plus LoanDays.
const LoanDays = 1

// DefaultTimeout bounds a single unit of work when no timeout is configured.
const DefaultTimeout = 5 * time.Second

type settings struct {
	now      func() time.Time
	location *time.Location
	timeout  time.Duration
	observer Observer
}

func newSettings(opts []Option) settings {
	s := settings{
		now:      time.Now,
		location: time.Local,
		timeout:  DefaultTimeout,
		observer: NopObserver{},
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// Option configures an Engine, Registry or History
type Option func(*settings)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLocation sets the time zone used to compute the current calendar date
func WithLocation(loc *time.Location) Option {
	return func(s *settings) {
		if loc != nil {
			s.location = loc
		}
	}
}

// WithTimeout bounds every unit of work
func WithTimeout(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithObserver sets the event observer
func WithObserver(obs Observer) Option {
	return func(s *settings) {
		if obs != nil {
			s.observer = obs
		}
	}
}

func (s settings) today() models.Date {
	return models.DateOf(s.now().In(s.location))
}

// detach runs the unit of work to completion even if the caller goes away,
// bounded only by the configured timeout.
func (s settings) detach(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
}

func (s settings) emit(ctx context.Context, e Event, err error) {
	e.Outcome = OutcomeOf(err)
	e.Err = err
	if e.At.IsZero() {
		e.At = s.now()
	}
	s.observer.Observe(ctx, e)
}

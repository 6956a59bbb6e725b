// Package enrich implements the report enrichment pipeline: an Extractor
// that reduces a scan report to an image ID -> attribute lookup table, and
// a Merger that joins the table back onto the report. The two stages
// communicate only through the intermediate lookup file so they can run as
// independent, restartable operations.
package enrich

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/openctemio/report-enricher/pkg/logger"
)

// DefaultProgressInterval is the row cadence of progress diagnostics.
// Reports regularly run to millions of rows, so operators need a liveness
// signal during a pass.
const DefaultProgressInterval = 10000

// ProgressEvent describes pipeline progress at a point in time.
type ProgressEvent struct {
	Stage   string
	Rows    int64
	Matches int64
	Elapsed time.Duration
	Final   bool
}

// ProgressFunc receives progress events. Implementations must not block.
type ProgressFunc func(ProgressEvent)

// Service runs the extraction and merge stages.
type Service struct {
	logger   *logger.Logger
	validate *validator.Validate
	interval int64
	progress ProgressFunc
}

// Option configures a Service.
type Option func(*Service)

// WithProgressInterval overrides the progress diagnostic cadence.
func WithProgressInterval(rows int64) Option {
	return func(s *Service) {
		if rows > 0 {
			s.interval = rows
		}
	}
}

// WithProgressFunc replaces the default log-based progress observer.
func WithProgressFunc(fn ProgressFunc) Option {
	return func(s *Service) {
		if fn != nil {
			s.progress = fn
		}
	}
}

// NewService creates a new enrichment service.
func NewService(log *logger.Logger, opts ...Option) *Service {
	s := &Service{
		logger:   log.With("service", "enrich"),
		validate: validator.New(validator.WithRequiredStructEnabled()),
		interval: DefaultProgressInterval,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.progress == nil {
		s.progress = s.logProgress
	}
	return s
}

func (s *Service) logProgress(ev ProgressEvent) {
	if ev.Final {
		s.logger.Info("stage completed",
			"stage", ev.Stage,
			"rows", ev.Rows,
			"matches", ev.Matches,
			"elapsed", ev.Elapsed.Round(100*time.Millisecond).String(),
		)
		return
	}
	s.logger.Info("processing",
		"stage", ev.Stage,
		"rows", ev.Rows,
		"matches", ev.Matches,
		"elapsed", ev.Elapsed.Round(100*time.Millisecond).String(),
	)
}

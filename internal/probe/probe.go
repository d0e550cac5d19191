// Package probe checks that the configured database answers a liveness command
// and reports the outcome through a Reporter.
package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/real-estate-etl/pscprobe/internal/config"
	"github.com/real-estate-etl/pscprobe/internal/logging"
	"github.com/real-estate-etl/pscprobe/internal/metrics"
	"github.com/real-estate-etl/pscprobe/internal/models"
	"github.com/real-estate-etl/pscprobe/internal/sink"
	"github.com/real-estate-etl/pscprobe/pkg/output"
)

// Outcome is the terminal state of a probe run.
type Outcome string

const (
	OutcomeSuccess           Outcome = "success"
	OutcomeConfigMissing     Outcome = "config_missing"
	OutcomeConnectionFailure Outcome = "connection_failure"
	OutcomeUnexpectedFailure Outcome = "unexpected_failure"
)

// ExitCode maps the outcome to the process exit status.
func (o Outcome) ExitCode() int {
	if o == OutcomeSuccess {
		return 0
	}
	return 1
}

// Messages handed to the Reporter.
const (
	MsgConfigMissing     = "Test Aborted: MONGO_URI is missing."
	HintConfigMissing    = "Set MONGO_URI environment variable."
	MsgSuccess           = "PSC Connection Test successful and verified."
	MsgConnectionFailure = "PSC Connection Test FAILED"
	MsgUnexpectedFailure = "An unexpected critical error occurred during test"
)

// Reporter records the probe outcome. *reporter.Reporter satisfies it.
type Reporter interface {
	Report(ctx context.Context, level models.Level, message string, details models.Details)
}

// Prober runs a single connectivity check.
type Prober struct {
	cfg      *config.Config
	reporter Reporter
	open     sink.Opener
	out      io.Writer
	logger   *logging.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

// Option configures a Prober.
type Option func(*Prober)

// WithOpener replaces sink.Open.
func WithOpener(open sink.Opener) Option {
	return func(p *Prober) { p.open = open }
}

// WithOutput replaces os.Stdout for banners.
func WithOutput(w io.Writer) Option {
	return func(p *Prober) { p.out = w }
}

// WithLogger sets the diagnostics logger.
func WithLogger(l *logging.Logger) Option {
	return func(p *Prober) { p.logger = l }
}

// WithMetrics records the outcome and duration of the run.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Prober) { p.metrics = m }
}

// New creates a Prober.
func New(cfg *config.Config, reporter Reporter, opts ...Option) *Prober {
	p := &Prober{
		cfg:      cfg,
		reporter: reporter,
		open:     sink.Open,
		out:      os.Stdout,
		logger:   logging.Discard(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run performs the check once and reports exactly one outcome.
func (p *Prober) Run(ctx context.Context) Outcome {
	start := p.now()
	outcome := p.run(ctx)
	elapsed := p.now().Sub(start)

	p.metrics.ObserveProbe(string(outcome), outcome == OutcomeSuccess, elapsed, p.now())
	p.logger.InfoContext(ctx, "probe finished",
		logging.Outcome(string(outcome)),
		logging.Duration(elapsed))
	return outcome
}

func (p *Prober) run(ctx context.Context) Outcome {
	if !p.cfg.HasSinkURI() {
		p.reporter.Report(ctx, models.LevelCritical, MsgConfigMissing,
			models.Details{"hint": HintConfigMissing})
		return OutcomeConfigMissing
	}

	backend, _ := sink.BackendFor(p.cfg.Sink.URI)
	output.Fprintf(p.out, "Attempting to connect to %s via PSC...\n", backend.DisplayName())
	p.logger.DebugContext(ctx, "probing sink",
		logging.Backend(string(backend)),
		logging.Target(p.cfg.RedactedURI()))

	err := p.ping(ctx)
	switch {
	case err == nil:
		p.reporter.Report(ctx, models.LevelSuccess, MsgSuccess,
			models.Details{"status": fmt.Sprintf("%s Ping successful", backend.DisplayName())})
		output.SuccessBanner(p.out, fmt.Sprintf("Connection verified and log written to %s.", backend.DisplayName()))
		return OutcomeSuccess

	case errors.Is(err, sink.ErrUnreachable):
		p.reporter.Report(ctx, models.LevelError, MsgConnectionFailure,
			models.Details{models.DetailErrorMessage: fmt.Sprintf("Connection Error: %v", err)})
		return OutcomeConnectionFailure

	default:
		p.reporter.Report(ctx, models.LevelCritical, MsgUnexpectedFailure,
			models.Details{models.DetailErrorMessage: err.Error()})
		return OutcomeUnexpectedFailure
	}
}

// ping opens a dedicated acknowledged connection and releases it before
// returning, including when the driver panics.
func (p *Prober) ping(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during probe: %v", r)
		}
	}()

	s, err := p.open(ctx, p.cfg.Sink.URI, sink.Options{
		Database:   p.cfg.Sink.Database,
		Collection: p.cfg.Sink.Collection,
		Timeout:    p.cfg.Sink.Timeout,
	})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(ctx); cerr != nil {
			p.logger.DebugContext(ctx, "failed to close probe connection", logging.Error(cerr))
		}
	}()

	return s.Ping(ctx)
}

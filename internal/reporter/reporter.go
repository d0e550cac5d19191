// Package reporter records LogEntry documents in the configured sink and falls
// back to a local text stream whenever the sink cannot be used.
package reporter

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/real-estate-etl/pscprobe/internal/config"
	"github.com/real-estate-etl/pscprobe/internal/logging"
	"github.com/real-estate-etl/pscprobe/internal/metrics"
	"github.com/real-estate-etl/pscprobe/internal/models"
	"github.com/real-estate-etl/pscprobe/internal/sink"
)

// Fallback line prefixes.
const (
	noURIPrefix        = "[Fallback Log - No URI]"
	invalidEntryPrefix = "[Fallback Log - Invalid Entry]"
)

// FailureHook is called after every failed sink write, before the fallback
// line is written.
type FailureHook func(backend sink.Backend, entry *models.LogEntry, err error)

// Reporter writes one LogEntry per call. It never returns an error and never
// panics on sink failures.
type Reporter struct {
	cfg      *config.Config
	open     sink.Opener
	fallback io.Writer
	logger   *logging.Logger
	metrics  *metrics.Metrics
	onFail   FailureHook
	now      func() time.Time
	runID    string

	mu sync.Mutex // serializes fallback writes
}

// Option configures a Reporter.
type Option func(*Reporter)

// WithOpener replaces sink.Open.
func WithOpener(open sink.Opener) Option {
	return func(r *Reporter) { r.open = open }
}

// WithFallback replaces os.Stderr as the fallback stream.
func WithFallback(w io.Writer) Option {
	return func(r *Reporter) { r.fallback = w }
}

// WithLogger sets the diagnostics logger.
func WithLogger(l *logging.Logger) Option {
	return func(r *Reporter) { r.logger = l }
}

// WithMetrics records sink writes and fallback lines.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Reporter) { r.metrics = m }
}

// WithFailureHook registers a hook for failed sink writes.
func WithFailureHook(h FailureHook) Option {
	return func(r *Reporter) { r.onFail = h }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Reporter) { r.now = now }
}

// WithRunID stamps every entry with the given run ID.
func WithRunID(id string) Option {
	return func(r *Reporter) { r.runID = id }
}

// New creates a Reporter for cfg.
func New(cfg *config.Config, opts ...Option) *Reporter {
	r := &Reporter{
		cfg:      cfg,
		open:     sink.Open,
		fallback: os.Stderr,
		logger:   logging.Discard(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Report records one event. details may be nil. An entry with an empty level
// or message is never sent to the sink; like every other failure it is
// redirected to the fallback stream.
func (r *Reporter) Report(ctx context.Context, level models.Level, message string, details models.Details) {
	entry := models.NewLogEntry(r.now(), level, message, details, models.Identity{
		Author:   r.cfg.Identity.Author,
		Service:  r.cfg.Identity.Service,
		ImageTag: r.cfg.Identity.ImageTag,
	})
	entry.RunID = r.runID
	line := entry.FallbackLine()

	if err := entry.Validate(); err != nil {
		r.logger.ErrorContext(ctx, "rejected log entry", logging.Error(err))
		r.writeFallback(fmt.Sprintf("%s %s (%v)", invalidEntryPrefix, line, err))
		r.metrics.ObserveFallback(metrics.ReasonInvalidEntry)
		return
	}

	if !r.cfg.HasSinkURI() {
		r.writeFallback(fmt.Sprintf("%s %s", noURIPrefix, line))
		r.metrics.ObserveFallback(metrics.ReasonNoURI)
		return
	}

	backend, err := r.write(ctx, entry)
	r.metrics.ObserveSinkWrite(string(backend), err)
	if err == nil {
		r.logger.DebugContext(ctx, "log entry written",
			logging.Backend(string(backend)),
			logging.Level(string(entry.Level)))
		return
	}

	if r.onFail != nil {
		r.onFail(backend, entry, err)
	}
	r.writeFallback(fmt.Sprintf("[%s_FAILOVER - %s] %s (%s Write Error: %v)",
		backend.Tag(), entry.Level, line, backend.Short(), err))
	r.metrics.ObserveFallback(metrics.ReasonWriteFailed)
}

// write opens a dedicated connection, inserts entry and closes the connection
// on every path. The returned backend is known even when Open fails, as long
// as the scheme is recognized.
func (r *Reporter) write(ctx context.Context, entry *models.LogEntry) (backend sink.Backend, err error) {
	backend, _ = sink.BackendFor(r.cfg.Sink.URI)

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic during sink write: %v", p)
		}
	}()

	s, err := r.open(ctx, r.cfg.Sink.URI, sink.Options{
		Database:       r.cfg.Sink.Database,
		Collection:     r.cfg.Sink.Collection,
		Timeout:        r.cfg.Sink.Timeout,
		Unacknowledged: true,
	})
	if err != nil {
		return backend, err
	}
	backend = s.Backend()
	defer func() {
		if cerr := s.Close(ctx); cerr != nil {
			r.logger.DebugContext(ctx, "failed to close sink connection",
				logging.Backend(string(backend)),
				logging.Error(cerr))
		}
	}()

	return backend, s.Insert(ctx, entry)
}

func (r *Reporter) writeFallback(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	// Nothing is left to report a failed write of the fallback stream to.
	_, _ = fmt.Fprintln(r.fallback, line)
}

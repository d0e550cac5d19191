package reporter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/real-estate-etl/pscprobe/internal/config"
	"github.com/real-estate-etl/pscprobe/internal/metrics"
	"github.com/real-estate-etl/pscprobe/internal/models"
	"github.com/real-estate-etl/pscprobe/internal/sink"
)

// MockSink is a mock implementation of sink.Sink
type MockSink struct {
	mock.Mock
}

func (m *MockSink) Backend() sink.Backend {
	args := m.Called()
	return args.Get(0).(sink.Backend)
}

func (m *MockSink) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockSink) Insert(ctx context.Context, entry *models.LogEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockSink) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// recordingSink keeps every inserted entry.
type recordingSink struct {
	backend   sink.Backend
	inserted  []*models.LogEntry
	insertErr error
	closed    int
}

func (s *recordingSink) Backend() sink.Backend          { return s.backend }
func (s *recordingSink) Ping(ctx context.Context) error { return nil }
func (s *recordingSink) Close(ctx context.Context) error {
	s.closed++
	return nil
}
func (s *recordingSink) Insert(ctx context.Context, entry *models.LogEntry) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	s.inserted = append(s.inserted, entry)
	return nil
}

type openCall struct {
	uri  string
	opts sink.Options
}

func openerFor(s sink.Sink, err error, calls *[]openCall) sink.Opener {
	return func(ctx context.Context, uri string, opts sink.Options) (sink.Sink, error) {
		*calls = append(*calls, openCall{uri: uri, opts: opts})
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

func testConfig(uri string) *config.Config {
	cfg := config.Default()
	cfg.Sink.URI = uri
	cfg.Identity.Author = "data-team"
	cfg.Identity.Service = "psc-mvp-job"
	cfg.Identity.ImageTag = "v1.4.2"
	return cfg
}

func nonEmptyLines(s string) []string {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func TestReport_NoURI(t *testing.T) {
	var fallback bytes.Buffer
	var calls []openCall
	m := metrics.New()

	r := New(testConfig(""),
		WithFallback(&fallback),
		WithOpener(openerFor(nil, nil, &calls)),
		WithMetrics(m))

	r.Report(context.Background(), models.LevelCritical, "Test Aborted: MONGO_URI is missing.",
		models.Details{"hint": "Set MONGO_URI environment variable."})

	lines := nonEmptyLines(fallback.String())
	require.Len(t, lines, 1)
	assert.Equal(t,
		"[Fallback Log - No URI] [CRITICAL][psc-mvp-job@v1.4.2] Test Aborted: MONGO_URI is missing. | Details: N/A",
		lines[0])
	assert.Empty(t, calls, "no network call without a sink URI")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FallbackLines.WithLabelValues(metrics.ReasonNoURI)))
}

func TestReport_NoURI_DefaultIdentity(t *testing.T) {
	var fallback bytes.Buffer

	r := New(config.Default(), WithFallback(&fallback))
	r.Report(context.Background(), models.LevelError, "failed", nil)

	assert.Equal(t, "[Fallback Log - No URI] [ERROR][local-run@unknown_tag] failed\n", fallback.String())
}

func TestReport_Success(t *testing.T) {
	var fallback bytes.Buffer
	var calls []openCall
	s := &recordingSink{backend: sink.BackendMongo}
	m := metrics.New()

	cfg := testConfig("mongodb://localhost:27017")
	r := New(cfg,
		WithFallback(&fallback),
		WithOpener(openerFor(s, nil, &calls)),
		WithMetrics(m),
		WithRunID("run-42"))

	before := time.Now().UTC()
	r.Report(context.Background(), models.LevelSuccess, "PSC Connection Test successful and verified.",
		models.Details{"status": "MongoDB Ping successful"})
	after := time.Now().UTC()

	assert.Empty(t, fallback.String())
	require.Len(t, calls, 1)
	assert.Equal(t, "mongodb://localhost:27017", calls[0].uri)
	assert.Equal(t, sink.Options{
		Database:       "etl_monitoring",
		Collection:     "pipeline_logs",
		Timeout:        5 * time.Second,
		Unacknowledged: true,
	}, calls[0].opts)

	require.Len(t, s.inserted, 1)
	entry := s.inserted[0]
	assert.WithinRange(t, entry.Timestamp, before, after)
	assert.Equal(t, models.LevelSuccess, entry.Level)
	assert.Equal(t, "real_estate_etl", entry.PipelineName)
	assert.Equal(t, "data-team", entry.Author)
	assert.Equal(t, models.ImageInfo{Service: "psc-mvp-job", Tag: "v1.4.2"}, entry.ImageInfo)
	assert.Equal(t, "run-42", entry.RunID)
	assert.Equal(t, 1, s.closed)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.SinkWrites.WithLabelValues("mongodb", "ok")))
}

func TestReport_NilDetailsStoredAsEmptyMap(t *testing.T) {
	var calls []openCall
	s := &recordingSink{backend: sink.BackendMongo}

	r := New(testConfig("mongodb://localhost"), WithOpener(openerFor(s, nil, &calls)), WithFallback(&bytes.Buffer{}))
	r.Report(context.Background(), models.LevelSuccess, "ok", nil)

	require.Len(t, s.inserted, 1)
	require.NotNil(t, s.inserted[0].Details)
	assert.Empty(t, s.inserted[0].Details)
}

func TestReport_TwiceProducesTwoEntries(t *testing.T) {
	var calls []openCall
	s := &recordingSink{backend: sink.BackendMongo}

	clock := time.Date(2026, 10, 19, 1, 0, 0, 0, time.UTC)
	tick := func() time.Time {
		clock = clock.Add(time.Millisecond)
		return clock
	}

	r := New(testConfig("mongodb://localhost"),
		WithOpener(openerFor(s, nil, &calls)),
		WithFallback(&bytes.Buffer{}),
		WithClock(tick))

	r.Report(context.Background(), models.LevelSuccess, "same", models.Details{"k": "v"})
	r.Report(context.Background(), models.LevelSuccess, "same", models.Details{"k": "v"})

	require.Len(t, s.inserted, 2)
	assert.NotSame(t, s.inserted[0], s.inserted[1])
	assert.True(t, s.inserted[1].Timestamp.After(s.inserted[0].Timestamp))
	assert.Len(t, calls, 2, "each report opens its own connection")
	assert.Equal(t, 2, s.closed)
}

func TestReport_OpenFailure(t *testing.T) {
	var fallback bytes.Buffer
	var calls []openCall
	m := metrics.New()
	openErr := fmt.Errorf("%w: server selection error: context deadline exceeded", sink.ErrUnreachable)

	r := New(testConfig("mongodb+srv://etl:pw@cluster0.example.net"),
		WithFallback(&fallback),
		WithOpener(openerFor(nil, openErr, &calls)),
		WithMetrics(m))

	assert.NotPanics(t, func() {
		r.Report(context.Background(), models.LevelError, "PSC Connection Test FAILED",
			models.Details{"error_message": "Connection Error: refused"})
	})

	lines := nonEmptyLines(fallback.String())
	require.Len(t, lines, 1)
	assert.Equal(t,
		"[MONGO_FAILOVER - ERROR] [ERROR][psc-mvp-job@v1.4.2] PSC Connection Test FAILED | Details: Connection Error: refused "+
			"(Mongo Write Error: sink unreachable: server selection error: context deadline exceeded)",
		lines[0])
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SinkFailures.WithLabelValues("mongodb")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FallbackLines.WithLabelValues(metrics.ReasonWriteFailed)))
}

func TestReport_InsertFailureClosesConnection(t *testing.T) {
	var fallback bytes.Buffer
	var calls []openCall
	s := &MockSink{}
	insertErr := errors.New("relation \"etl_monitoring.pipeline_logs\" does not exist")

	s.On("Backend").Return(sink.BackendPostgres)
	s.On("Insert", mock.Anything, mock.AnythingOfType("*models.LogEntry")).Return(insertErr)
	s.On("Close", mock.Anything).Return(nil)

	r := New(testConfig("postgres://etl@db:5432/etl"),
		WithFallback(&fallback),
		WithOpener(openerFor(s, nil, &calls)))

	r.Report(context.Background(), models.LevelCritical, "An unexpected critical error occurred during test",
		models.Details{"error_message": "boom"})

	s.AssertExpectations(t)
	s.AssertNumberOfCalls(t, "Close", 1)

	line := fallback.String()
	assert.True(t, strings.HasPrefix(line, "[POSTGRES_FAILOVER - CRITICAL] "))
	assert.Contains(t, line, "An unexpected critical error occurred during test")
	assert.Contains(t, line, "(Postgres Write Error: relation \"etl_monitoring.pipeline_logs\" does not exist)")
}

func TestReport_CloseFailureIsNotAWriteFailure(t *testing.T) {
	var fallback bytes.Buffer
	var calls []openCall
	s := &MockSink{}

	s.On("Backend").Return(sink.BackendMongo)
	s.On("Insert", mock.Anything, mock.Anything).Return(nil)
	s.On("Close", mock.Anything).Return(errors.New("disconnect timeout"))

	r := New(testConfig("mongodb://localhost"), WithFallback(&fallback), WithOpener(openerFor(s, nil, &calls)))
	r.Report(context.Background(), models.LevelSuccess, "ok", nil)

	s.AssertExpectations(t)
	assert.Empty(t, fallback.String())
}

func TestReport_UnsupportedScheme(t *testing.T) {
	var fallback bytes.Buffer

	r := New(testConfig("mysql://root@localhost/etl"), WithFallback(&fallback))
	r.Report(context.Background(), models.LevelError, "failed", nil)

	line := fallback.String()
	assert.True(t, strings.HasPrefix(line, "[SINK_FAILOVER - ERROR] [ERROR][psc-mvp-job@v1.4.2] failed (Sink Write Error: "))
	assert.Contains(t, line, "unsupported connection string scheme")
}

func TestReport_PanickingSinkIsAbsorbed(t *testing.T) {
	var fallback bytes.Buffer
	opener := func(ctx context.Context, uri string, opts sink.Options) (sink.Sink, error) {
		panic("driver bug")
	}

	r := New(testConfig("mongodb://localhost"), WithFallback(&fallback), WithOpener(opener))

	assert.NotPanics(t, func() {
		r.Report(context.Background(), models.LevelError, "failed", nil)
	})
	assert.Contains(t, fallback.String(), "panic during sink write: driver bug")
}

func TestReport_FailureHook(t *testing.T) {
	var calls []openCall
	var hooked []error
	var hookedEntry *models.LogEntry
	writeErr := errors.New("write failed")

	r := New(testConfig("mongodb://localhost"),
		WithFallback(&bytes.Buffer{}),
		WithOpener(openerFor(&recordingSink{backend: sink.BackendMongo, insertErr: writeErr}, nil, &calls)),
		WithFailureHook(func(backend sink.Backend, entry *models.LogEntry, err error) {
			assert.Equal(t, sink.BackendMongo, backend)
			hookedEntry = entry
			hooked = append(hooked, err)
		}))

	message := gofakeit.Sentence(6)
	r.Report(context.Background(), models.LevelError, message, nil)

	require.Len(t, hooked, 1)
	assert.ErrorIs(t, hooked[0], writeErr)
	assert.Equal(t, message, hookedEntry.Message)
}

func TestReport_GeneratedIdentity(t *testing.T) {
	var fallback bytes.Buffer
	cfg := config.Default()
	cfg.Identity.Author = gofakeit.Username()
	cfg.Identity.Service = gofakeit.AppName()
	cfg.Identity.ImageTag = gofakeit.AppVersion()
	message := gofakeit.Sentence(4)

	New(cfg, WithFallback(&fallback)).Report(context.Background(), models.LevelSuccess, message, nil)

	want := fmt.Sprintf("[Fallback Log - No URI] [SUCCESS][%s@%s] %s\n", cfg.Identity.Service, cfg.Identity.ImageTag, message)
	assert.Equal(t, want, fallback.String())
}

func TestReport_InvalidEntry(t *testing.T) {
	tests := []struct {
		name    string
		uri     string
		level   models.Level
		message string
		wantErr error
	}{
		{"empty level with sink", "mongodb://10.0.0.5:27017", "", "load finished", models.ErrEmptyLevel},
		{"empty message with sink", "mongodb://10.0.0.5:27017", models.LevelSuccess, "", models.ErrEmptyMessage},
		{"blank message without sink", "", models.LevelError, "   ", models.ErrEmptyMessage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var fallback bytes.Buffer
			var calls []openCall
			m := metrics.New()

			r := New(testConfig(tt.uri),
				WithFallback(&fallback),
				WithOpener(openerFor(&recordingSink{backend: sink.BackendMongo}, nil, &calls)),
				WithMetrics(m))

			assert.NotPanics(t, func() {
				r.Report(context.Background(), tt.level, tt.message, nil)
			})

			lines := nonEmptyLines(fallback.String())
			require.Len(t, lines, 1)
			assert.True(t, strings.HasPrefix(lines[0], "[Fallback Log - Invalid Entry] "), lines[0])
			assert.Contains(t, lines[0], tt.wantErr.Error())
			assert.Empty(t, calls, "an invalid entry never reaches the sink")
			assert.Equal(t, 1.0, testutil.ToFloat64(m.FallbackLines.WithLabelValues(metrics.ReasonInvalidEntry)))
		})
	}
}

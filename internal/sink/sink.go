// Package sink connects to the database that pscprobe both probes and logs into.
// The backend is selected by the connection string scheme.
package sink

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/real-estate-etl/pscprobe/internal/models"
)

var (
	// ErrUnreachable marks connection-class failures: the target could not be
	// reached or did not answer in time.
	ErrUnreachable = errors.New("sink unreachable")

	// ErrUnsupportedScheme is returned for connection strings no backend handles.
	ErrUnsupportedScheme = errors.New("unsupported connection string scheme")
)

// Backend identifies a sink implementation.
type Backend string

const (
	BackendUnknown  Backend = ""
	BackendMongo    Backend = "mongodb"
	BackendPostgres Backend = "postgres"
)

// DisplayName is the human-readable backend name used in banners and details.
func (b Backend) DisplayName() string {
	switch b {
	case BackendMongo:
		return "MongoDB"
	case BackendPostgres:
		return "PostgreSQL"
	default:
		return "database"
	}
}

// Tag is the upper-case prefix used in failover lines.
func (b Backend) Tag() string {
	switch b {
	case BackendMongo:
		return "MONGO"
	case BackendPostgres:
		return "POSTGRES"
	default:
		return "SINK"
	}
}

// Short is the title-case name used in "<Short> Write Error" suffixes.
func (b Backend) Short() string {
	switch b {
	case BackendMongo:
		return "Mongo"
	case BackendPostgres:
		return "Postgres"
	default:
		return "Sink"
	}
}

// BackendFor returns the backend that handles uri.
func BackendFor(uri string) (Backend, error) {
	scheme, _, ok := strings.Cut(strings.TrimSpace(uri), "://")
	if !ok {
		return BackendUnknown, fmt.Errorf("%w: missing scheme", ErrUnsupportedScheme)
	}

	switch strings.ToLower(scheme) {
	case "mongodb", "mongodb+srv":
		return BackendMongo, nil
	case "postgres", "postgresql":
		return BackendPostgres, nil
	default:
		return BackendUnknown, fmt.Errorf("%w: %q", ErrUnsupportedScheme, scheme)
	}
}

// Options configures a single sink connection.
type Options struct {
	// Database is the MongoDB database or the PostgreSQL schema.
	Database string
	// Collection is the MongoDB collection or the PostgreSQL table.
	Collection string
	// Timeout bounds connect, server selection and every operation.
	Timeout time.Duration
	// Unacknowledged requests fire-and-forget writes: w:0 on MongoDB,
	// synchronous_commit=off on PostgreSQL.
	Unacknowledged bool
}

// Sink is one open connection. It is not safe for concurrent use and is
// never reused across reports.
type Sink interface {
	Backend() Backend
	// Ping issues the backend's liveness command.
	Ping(ctx context.Context) error
	// Insert writes one entry into the configured namespace.
	Insert(ctx context.Context, entry *models.LogEntry) error
	// Close releases the connection.
	Close(ctx context.Context) error
}

// Opener opens a sink connection. Open is the production implementation;
// tests substitute fakes.
type Opener func(ctx context.Context, uri string, opts Options) (Sink, error)

// Open dispatches on the connection string scheme.
func Open(ctx context.Context, uri string, opts Options) (Sink, error) {
	backend, err := BackendFor(uri)
	if err != nil {
		return nil, err
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}

	switch backend {
	case BackendMongo:
		return openMongo(ctx, uri, opts)
	case BackendPostgres:
		return openPostgres(ctx, uri, opts)
	default:
		return nil, ErrUnsupportedScheme
	}
}

func unreachable(err error) error {
	if err == nil || errors.Is(err, ErrUnreachable) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrUnreachable, err)
}

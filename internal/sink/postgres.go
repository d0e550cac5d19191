package sink

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/real-estate-etl/pscprobe/internal/models"
)

type postgresSink struct {
	conn  *pgx.Conn
	table string
	opts  Options
}

// openPostgres opens a single connection. Database names the schema and
// Collection the table, matching the layout created by the migrations.
func openPostgres(ctx context.Context, uri string, opts Options) (Sink, error) {
	config, err := pgx.ParseConfig(uri)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	config.ConnectTimeout = opts.Timeout
	if config.RuntimeParams == nil {
		config.RuntimeParams = map[string]string{}
	}
	config.RuntimeParams["application_name"] = appName
	if opts.Unacknowledged {
		config.RuntimeParams["synchronous_commit"] = "off"
	}

	ctx, cancel := OperationContext(ctx, opts.Timeout)
	defer cancel()

	conn, err := pgx.ConnectConfig(ctx, config)
	if err != nil {
		return nil, classifyPostgres(fmt.Errorf("failed to connect to postgres: %w", err))
	}

	return &postgresSink{
		conn:  conn,
		table: pgx.Identifier{opts.Database, opts.Collection}.Sanitize(),
		opts:  opts,
	}, nil
}

func (s *postgresSink) Backend() Backend {
	return BackendPostgres
}

func (s *postgresSink) Ping(ctx context.Context) error {
	ctx, cancel := OperationContext(ctx, s.opts.Timeout)
	defer cancel()

	if err := s.conn.Ping(ctx); err != nil {
		return classifyPostgres(fmt.Errorf("ping failed: %w", err))
	}
	return nil
}

func (s *postgresSink) Insert(ctx context.Context, entry *models.LogEntry) error {
	ctx, cancel := OperationContext(ctx, s.opts.Timeout)
	defer cancel()

	query := `
		INSERT INTO ` + s.table + ` ("timestamp", level, message, pipeline_name, author, image_info, details, run_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	var runID *string
	if entry.RunID != "" {
		runID = &entry.RunID
	}

	_, err := s.conn.Exec(ctx, query,
		entry.Timestamp,
		string(entry.Level),
		entry.Message,
		entry.PipelineName,
		entry.Author,
		entry.ImageInfo,
		entry.Details,
		runID,
	)
	if err != nil {
		return classifyPostgres(fmt.Errorf("insert into %s failed: %w", s.table, err))
	}
	return nil
}

func (s *postgresSink) Close(ctx context.Context) error {
	ctx, cancel := CloseContext(ctx, s.opts.Timeout)
	defer cancel()

	if err := s.conn.Close(ctx); err != nil {
		return fmt.Errorf("failed to close postgres connection: %w", err)
	}
	return nil
}

// classifyPostgres wraps connection-class errors with ErrUnreachable. An
// error the server itself returned (bad password, missing table) is not one.
func classifyPostgres(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return err
	}

	var connectErr *pgconn.ConnectError
	var netErr net.Error
	switch {
	case errors.As(err, &connectErr):
		return unreachable(err)
	case errors.As(err, &netErr):
		return unreachable(err)
	case errors.Is(err, context.DeadlineExceeded):
		return unreachable(err)
	case pgconn.Timeout(err):
		return unreachable(err)
	}
	return err
}

package sink

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/writeconcern"
	"go.mongodb.org/mongo-driver/v2/x/mongo/driver/topology"

	"github.com/real-estate-etl/pscprobe/internal/models"
)

const appName = "pscprobe"

type mongoSink struct {
	client     *mongo.Client
	collection *mongo.Collection
	opts       Options
}

// openMongo builds a client; the driver connects lazily, so the first Ping or
// Insert performs server selection within opts.Timeout.
func openMongo(_ context.Context, uri string, opts Options) (Sink, error) {
	clientOpts := options.Client().
		ApplyURI(uri).
		SetAppName(appName).
		SetServerSelectionTimeout(opts.Timeout).
		SetConnectTimeout(opts.Timeout)
	if opts.Unacknowledged {
		clientOpts.SetWriteConcern(writeconcern.Unacknowledged())
	}

	client, err := mongo.Connect(clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to create mongo client: %w", err)
	}

	return &mongoSink{
		client:     client,
		collection: client.Database(opts.Database).Collection(opts.Collection),
		opts:       opts,
	}, nil
}

func (s *mongoSink) Backend() Backend {
	return BackendMongo
}

func (s *mongoSink) Ping(ctx context.Context) error {
	ctx, cancel := OperationContext(ctx, s.opts.Timeout)
	defer cancel()

	err := s.client.Database("admin").RunCommand(ctx, bson.D{{Key: "ping", Value: 1}}).Err()
	if err != nil {
		return classifyMongo(fmt.Errorf("ping failed: %w", err))
	}
	return nil
}

func (s *mongoSink) Insert(ctx context.Context, entry *models.LogEntry) error {
	ctx, cancel := OperationContext(ctx, s.opts.Timeout)
	defer cancel()

	_, err := s.collection.InsertOne(ctx, entry)
	if err != nil {
		return classifyMongo(fmt.Errorf("insert into %s.%s failed: %w", s.opts.Database, s.opts.Collection, err))
	}
	return nil
}

func (s *mongoSink) Close(ctx context.Context) error {
	ctx, cancel := CloseContext(ctx, s.opts.Timeout)
	defer cancel()

	if err := s.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("failed to disconnect mongo client: %w", err)
	}
	return nil
}

// classifyMongo wraps connection-class driver errors with ErrUnreachable.
func classifyMongo(err error) error {
	var sse topology.ServerSelectionError
	var ssePtr *topology.ServerSelectionError
	switch {
	case errors.As(err, &sse), errors.As(err, &ssePtr):
		return unreachable(err)
	case errors.Is(err, context.DeadlineExceeded):
		return unreachable(err)
	case mongo.IsNetworkError(err), mongo.IsTimeout(err):
		return unreachable(err)
	}
	return err
}

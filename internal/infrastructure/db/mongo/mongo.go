package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const defaultTimeout = 10 * time.Second

type Config struct {
	URI      string
	Database string
	// AppName is reported to the server and shows up in its logs.
	AppName string
	Timeout time.Duration
}

// Store owns the client and the repositories built on its database.
type Store struct {
	client *mongo.Client
	Users  *UserRepository
}

// Open connects, waits for a reachable primary and makes sure the users
// collection is indexed before the store is handed out.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	opts := options.Client().
		ApplyURI(cfg.URI).
		SetConnectTimeout(timeout).
		SetServerSelectionTimeout(timeout)
	if cfg.AppName != "" {
		opts.SetAppName(cfg.AppName)
	}

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	users := NewUserRepository(client.Database(cfg.Database))
	if err := users.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	return &Store{client: client, Users: users}, nil
}

// Close disconnects the client, waiting for in-flight operations up to ctx.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

package main

import (
	"context"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
	"go.mongodb.org/mongo-driver/mongo"

	"studentauth/internal/auth"
	"studentauth/internal/config"
	"studentauth/internal/database"
	"studentauth/internal/notify"
)

// storeHandle is an account store plus its teardown and readiness probe.
type storeHandle struct {
	store auth.AccountStore
	ready func(ctx context.Context) error
	close func(ctx context.Context) error
}

func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*storeHandle, error) {
	switch cfg.Store {
	case config.StoreMemory:
		logger.Warn("using in-memory account store, data is lost on exit")
		return &storeHandle{
			store: database.NewMemoryAccountStore(),
			ready: func(context.Context) error { return nil },
			close: func(context.Context) error { return nil },
		}, nil
	case config.StoreMongo:
		client, coll, err := openMongoCollection(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		if _, err := database.EnsureIndexes(ctx, coll); err != nil {
			_ = client.Disconnect(ctx)
			return nil, oops.Wrapf(err, "ensure indexes")
		}
		return &storeHandle{
			store: database.NewMongoAccountStore(coll, cfg.Mongo.Timeout),
			ready: func(ctx context.Context) error { return client.Ping(ctx, nil) },
			close: client.Disconnect,
		}, nil
	default:
		return nil, oops.Errorf("unknown store %q", cfg.Store)
	}
}

func openMongoCollection(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*mongo.Client, *mongo.Collection, error) {
	client, err := database.ConnectMongoDB(ctx, cfg.Mongo.URI, logger)
	if err != nil {
		return nil, nil, oops.Wrapf(err, "connect to MongoDB")
	}
	return client, database.GetAccountCollection(client, cfg.Mongo.Database), nil
}

func newMailer(cfg config.MailConfig, logger *slog.Logger) (notify.Mailer, error) {
	switch cfg.Driver {
	case config.MailSMTP:
		return notify.NewSMTPMailer(notify.SMTPConfig{
			Server:   cfg.SMTPServer,
			User:     cfg.SMTPUser,
			Password: cfg.SMTPPassword,
			From:     cfg.From,
		})
	case config.MailResend:
		return notify.NewResendMailer(cfg.ResendAPIKey, cfg.From, cfg.ResendURL)
	case config.MailLog:
		return notify.NewLogMailer(logger), nil
	default:
		return nil, oops.Errorf("unknown mail driver %q", cfg.Driver)
	}
}

// newQueue returns the notification queue and a function releasing it. A
// Redis queue first requeues jobs a previous run left unacknowledged.
func newQueue(ctx context.Context, cfg config.QueueConfig, logger *slog.Logger) (notify.Queue, func() error, error) {
	switch cfg.Driver {
	case config.QueueMemory:
		q := notify.NewMemoryQueue(cfg.Size, cfg.Poll)
		return q, func() error { q.Close(); return nil }, nil
	case config.QueueRedis:
		client, err := notify.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		q := notify.NewRedisQueue(client, cfg.Key, cfg.Poll)
		n, err := q.Recover(ctx)
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		if n > 0 {
			logger.Info("requeued unacknowledged notifications", "count", n)
		}
		return q, closeRedis(client), nil
	default:
		return nil, nil, oops.Errorf("unknown queue driver %q", cfg.Driver)
	}
}

func closeRedis(client *redis.Client) func() error {
	return func() error { return client.Close() }
}

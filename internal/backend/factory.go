package backend

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"gestionale/internal/activity"
	"gestionale/internal/amqp"
	"gestionale/internal/log"
	"gestionale/internal/session"
	"gestionale/internal/storage"
)

// CleanupFunc releases the resources opened by the factory.
type CleanupFunc func() error

// Pinger is a dependency checked by the readiness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ActivityReader lists journaled activity, newest first.
type ActivityReader interface {
	RecentActivity(ctx context.Context, resource string, limit int) ([]activity.Event, error)
}

// Purger drops expired sessions from a store.
type Purger interface {
	Purge(ctx context.Context) (int, error)
}

// Result is everything the console needs from its local infrastructure.
type Result struct {
	Sessions session.Store
	Recorder activity.Recorder
	// Activity is set when the sqlite journal is open.
	Activity ActivityReader
	// Checks maps a dependency name to its probe.
	Checks  map[string]Pinger
	Cleanup CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*Result, error)
}

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.FromContext(context.Background())
	}
	return &DefaultFactory{logger: logger.WithComponent(log.ComponentBackend)}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*Result, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	res := &Result{Checks: map[string]Pinger{}}
	var closers []func() error
	res.Cleanup = func() error {
		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			errs = append(errs, closers[i]())
		}
		return errors.Join(errs...)
	}

	var repo *storage.SQLiteRepository
	switch config.Type {
	case MemoryBackend:
		res.Sessions = session.NewMemoryStore()
		f.logger.Info("Initialized memory session store")

	case SQLiteBackend:
		r, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		repo = r
		closers = append(closers, r.Close)
		res.Sessions = r
		res.Activity = r
		res.Checks["sqlite"] = r
		f.logger.Info("Initialized SQLite session store", "db_path", config.SQLiteDBPath)

	case RedisBackend:
		client := redis.NewClient(&redis.Options{
			Addr:     config.RedisAddr,
			Password: config.RedisPassword,
			DB:       config.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to connect to redis at %s: %w", config.RedisAddr, err)
		}
		closers = append(closers, client.Close)
		store := session.NewRedisStore(client)
		res.Sessions = store
		res.Checks["redis"] = store
		f.logger.Info("Initialized Redis session store", "addr", config.RedisAddr, "db", config.RedisDB)

	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}

	res.Recorder = f.createRecorder(config, repo, &closers)
	return res, nil
}

// createRecorder prefers AMQP, then the sqlite journal, then logging.
func (f *DefaultFactory) createRecorder(config Config, repo *storage.SQLiteRepository, closers *[]func() error) activity.Recorder {
	if config.AMQPURL != "" {
		client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue, f.logger)
		if err != nil {
			f.logger.Warn("Failed to initialize AMQP client, continuing without activity events", log.FieldError, err)
		} else {
			*closers = append(*closers, client.Close)
			f.logger.Info("Initialized AMQP activity publisher",
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue)
			return client
		}
	}
	if repo != nil {
		f.logger.Info("Journaling activity to SQLite")
		return activity.NewJournalRecorder(repo)
	}
	return activity.NewLogRecorder(f.logger)
}

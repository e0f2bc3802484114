// Command console-activity consumes the activity events the console
// publishes to AMQP and appends them to the sqlite journal shown on the
// dashboard.
package main

import (
	"context"
	"errors"
	"os"

	"gestionale/internal/activity"
	"gestionale/internal/amqp"
	"gestionale/internal/cli"
	"gestionale/internal/log"
)

func main() {
	cfg, logger := cli.LoadAndValidateConfig(log.ComponentActivity)
	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required to consume activity events")
		os.Exit(1)
	}

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err)
		os.Exit(1)
	}
	defer client.Close()

	ctx, cancel := cli.ShutdownContext(logger)
	defer cancel()

	logger.Info("Consuming activity events",
		"exchange", cfg.AMQPExchange,
		"queue", cfg.AMQPQueue,
		"db_path", cfg.SQLiteDBPath)

	err = client.ConsumeActivity(ctx, func(ctx context.Context, ev activity.Event) error {
		if err := repo.AppendActivity(ctx, ev); err != nil {
			return err
		}
		logger.Debug("Journaled activity",
			log.FieldResource, ev.Resource,
			log.FieldOperation, ev.Operation,
			log.FieldRecordID, ev.RecordID)
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Activity consumption failed", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Activity consumer stopped")
}

package server

import (
	"context"
	"os"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	awsclient "github.com/n42group/mailmerge/internal/client/aws"
	"github.com/n42group/mailmerge/internal/config"
	"github.com/n42group/mailmerge/internal/logger"
	"github.com/n42group/mailmerge/internal/queue"
	"github.com/n42group/mailmerge/internal/sendlog"
)

// Bootstrap loads configuration (resolving *_ARN secrets through Secrets
// Manager) and connects the optional SQS queue and Postgres send log.
// The returned cleanup releases the database pool.
func Bootstrap(ctx context.Context) (Dependencies, func(), error) {
	noop := func() {}

	awsCfg, err := awsclient.LoadConfig(ctx, os.Getenv("AWS_ENDPOINT_OVERRIDE"))
	if err != nil {
		return Dependencies{}, noop, err
	}
	secrets := awsclient.NewSecretsManagerClient(awsCfg)

	cfg, err := config.Load(ctx, secrets)
	if err != nil {
		return Dependencies{}, noop, errors.Wrap(err, "load configuration")
	}

	deps := Dependencies{Config: cfg}
	if cfg.AsyncEnabled() {
		deps.Queue = queue.NewPublisher(sqs.NewFromConfig(awsCfg), cfg.SQSQueueURL)
	}

	if !cfg.SendLogEnabled() {
		return deps, noop, nil
	}
	store, cleanup, err := OpenSendLog(ctx, cfg.DatabaseURL)
	if err != nil {
		return Dependencies{}, noop, err
	}
	deps.SendLog = store
	return deps, cleanup, nil
}

// OpenSendLog connects to Postgres and makes sure the send_log table exists.
func OpenSendLog(ctx context.Context, dsn string) (*sendlog.PostgresStore, func(), error) {
	pool, err := sendlog.NewPool(ctx, dsn)
	if err != nil {
		return nil, func() {}, errors.Wrap(err, "connect send log database")
	}
	store := sendlog.NewPostgresStore(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, func() {}, errors.Wrap(err, "create send log schema")
	}
	logger.Info("Send log enabled", zap.String("database", pool.Config().ConnConfig.Database))
	return store, pool.Close, nil
}

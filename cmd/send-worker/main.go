package main

import (
	"context"
	"log"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/n42group/mailmerge/internal/helpers"
	"github.com/n42group/mailmerge/internal/logger"
	"github.com/n42group/mailmerge/internal/server"
	"github.com/n42group/mailmerge/internal/worker"
)

func main() {
	if helpers.StageOrDefault() == helpers.StageLocal {
		if err := godotenv.Load(); err != nil {
			log.Printf("Warning: Error loading .env file: %v", err)
		}
	}

	logger.InitLogger(helpers.StageOrDefault())
	defer logger.Sync()

	deps, cleanup, err := server.Bootstrap(context.Background())
	if err != nil {
		logger.Fatal("Failed to initialize send worker", zap.Error(err))
	}
	defer cleanup()

	var next worker.NextPublisher
	if deps.Queue != nil {
		next = deps.Queue
	} else {
		logger.Warn("SQS_QUEUE_URL is not set; jobs longer than one batch will stop after their first batch")
	}
	processor := worker.NewProcessor(deps.Config, deps.Transports, deps.SendLog, next)
	logger.Info("Send worker starting",
		zap.String("stage", deps.Config.Stage),
		zap.String("provider", deps.Config.MailProvider))

	lambda.Start(processor.HandleSQSEvent)
}

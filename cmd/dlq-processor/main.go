package main

import (
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/n42group/mailmerge/internal/helpers"
	"github.com/n42group/mailmerge/internal/logger"
	"github.com/n42group/mailmerge/internal/worker"
)

func main() {
	logger.InitLogger(helpers.StageOrDefault())
	defer logger.Sync()

	lambda.Start(worker.NewDeadLetterHandler().HandleSQSEvent)
}

//go:build lambda
// +build lambda

package main

import (
	"context"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/davecgh/go-spew/spew"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/n42group/mailmerge/internal/helpers"
	"github.com/n42group/mailmerge/internal/logger"
	"github.com/n42group/mailmerge/internal/server"
)

// @title           N42 Mail Merge API
// @version         1.0
// @description     Bulk personalised mail sending over SMTP, Microsoft Graph or Resend.

// @BasePath  /

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and the send token.

// @securityDefinitions.apikey PanelPassword
// @in header
// @name X-Panel-Password

var ginLambda *ginadapter.GinLambda

func init() {
	logger.InitLogger(helpers.StageOrDefault())
	gin.SetMode(gin.ReleaseMode)

	// The pool lives as long as the container, so cleanup is never called.
	deps, _, err := server.Bootstrap(context.Background())
	if err != nil {
		logger.Fatal("Failed to initialize dependencies", zap.Error(err))
	}

	r := gin.New()
	r.Use(gin.Recovery())
	server.InitializeHandlers(deps)
	server.InitializeRoutes(r)

	ginLambda = ginadapter.New(r)
}

func Handler(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	logger.Debug("Received Lambda request",
		zap.String("path", req.Path),
		zap.String("method", req.HTTPMethod),
		zap.String("request", spew.Sdump(req.RequestContext)),
	)

	return ginLambda.ProxyWithContext(ctx, req)
}

func main() {
	defer logger.Sync()
	lambda.Start(Handler)
}

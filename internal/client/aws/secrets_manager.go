package aws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"go.uber.org/zap"

	"github.com/n42group/mailmerge/internal/logger"
)

// ErrSecretNotFound is returned when neither the ARN nor the plain variable yields a value.
var ErrSecretNotFound = errors.New("secret not found")

// SecretsAPI is the subset of the Secrets Manager client used here.
type SecretsAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// SecretsManagerClient resolves secrets from Secrets Manager with an
// environment variable fallback.
type SecretsManagerClient struct {
	svc SecretsAPI
}

// NewSecretsManagerClient creates a client from the AWS configuration chain.
func NewSecretsManagerClient(cfg aws.Config) *SecretsManagerClient {
	return &SecretsManagerClient{svc: secretsmanager.NewFromConfig(cfg)}
}

// NewSecretsManagerClientWithAPI wraps an existing API implementation.
func NewSecretsManagerClientWithAPI(api SecretsAPI) *SecretsManagerClient {
	return &SecretsManagerClient{svc: api}
}

// GetSecretString reads the ARN named by secretArnEnvVar and fetches it.
// When the ARN is unset or the fetch fails it falls back to fallbackEnvVar.
func (c *SecretsManagerClient) GetSecretString(ctx context.Context, secretArnEnvVar, fallbackEnvVar string) (string, error) {
	if arn := os.Getenv(secretArnEnvVar); arn != "" && c != nil && c.svc != nil {
		value, err := c.fetch(ctx, arn)
		if err == nil && value != "" {
			logger.Debug("Fetched secret from Secrets Manager", zap.String("arnEnvVar", secretArnEnvVar))
			return value, nil
		}
		logger.Warn("Failed to retrieve secret from Secrets Manager, falling back to env var",
			zap.String("arnEnvVar", secretArnEnvVar),
			zap.String("fallbackEnvVar", fallbackEnvVar),
			zap.Error(err),
		)
	}

	if value := os.Getenv(fallbackEnvVar); value != "" {
		return value, nil
	}
	return "", fmt.Errorf("%w: tried %s and %s", ErrSecretNotFound, secretArnEnvVar, fallbackEnvVar)
}

// LookupSecret resolves name via name_ARN then name and returns "" when
// neither is set. Used for optional secrets.
func (c *SecretsManagerClient) LookupSecret(ctx context.Context, name string) string {
	value, err := c.GetSecretString(ctx, name+"_ARN", name)
	if err != nil {
		return ""
	}
	return value
}

// GetSecretJSON fetches the secret referenced by secretArnEnvVar and
// unmarshals it into target. There is no plain env fallback for JSON secrets.
func (c *SecretsManagerClient) GetSecretJSON(ctx context.Context, secretArnEnvVar string, target interface{}) error {
	arn := os.Getenv(secretArnEnvVar)
	if arn == "" {
		return fmt.Errorf("%w: %s is not set", ErrSecretNotFound, secretArnEnvVar)
	}
	if c == nil || c.svc == nil {
		return fmt.Errorf("secrets manager client not configured for %s", secretArnEnvVar)
	}

	value, err := c.fetch(ctx, arn)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(value), target); err != nil {
		return fmt.Errorf("secret %s is not valid JSON: %w", secretArnEnvVar, err)
	}
	return nil
}

func (c *SecretsManagerClient) fetch(ctx context.Context, arn string) (string, error) {
	out, err := c.svc.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(arn),
	})
	if err != nil {
		return "", fmt.Errorf("get secret value: %w", err)
	}
	if out.SecretString == nil {
		return "", fmt.Errorf("secret %s has no string value", arn)
	}
	return *out.SecretString, nil
}

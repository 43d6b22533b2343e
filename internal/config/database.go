package config

import (
	"context"
	"fmt"
	"net/url"

	"github.com/n42group/mailmerge/internal/helpers"
)

// JSONSecretSource fetches structured secrets such as RDS credentials.
type JSONSecretSource interface {
	GetSecretJSON(ctx context.Context, secretArnEnvVar string, target interface{}) error
}

type rdsSecret struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// rdsDSN builds a DSN from DB_HOST, DB_NAME and the RDS secret when all of
// them are present. ok is false when the RDS variables are not in use.
func rdsDSN(ctx context.Context, src JSONSecretSource) (dsn string, ok bool, err error) {
	host := helpers.EnvString("DB_HOST", "")
	name := helpers.EnvString("DB_NAME", "")
	if host == "" || name == "" || helpers.EnvString("RDS_SECRET_ARN", "") == "" || src == nil {
		return "", false, nil
	}

	var secret rdsSecret
	if err := src.GetSecretJSON(ctx, "RDS_SECRET_ARN", &secret); err != nil {
		return "", true, fmt.Errorf("read RDS secret: %w", err)
	}
	if secret.Username == "" || secret.Password == "" {
		return "", true, fmt.Errorf("RDS secret is missing username or password")
	}

	return fmt.Sprintf("postgres://%s:%s@%s/%s?sslmode=%s",
		url.QueryEscape(secret.Username), url.QueryEscape(secret.Password),
		host, name, helpers.EnvString("DB_SSLMODE", "require")), true, nil
}

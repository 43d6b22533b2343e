package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
)

const defaultRegion = "us-east-1"

// LoadConfig loads the default AWS configuration chain. A non-empty
// endpointOverride points every client at a local emulator (LocalStack,
// ElasticMQ) with static test credentials.
func LoadConfig(ctx context.Context, endpointOverride string) (aws.Config, error) {
	var opts []func(*config.LoadOptions) error
	if endpointOverride != "" {
		opts = append(opts,
			config.WithBaseEndpoint(endpointOverride),
			config.WithRegion(defaultRegion),
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("test", "test", "")),
		)
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("unable to load AWS SDK config: %w", err)
	}
	return cfg, nil
}

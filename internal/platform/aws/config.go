// Package aws builds AWS SDK clients for event fan-out and archiving.
package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

// Config holds AWS configuration
type Config struct {
	Region string
	// Endpoint overrides the service endpoint, e.g. LocalStack. Empty uses
	// the AWS default.
	Endpoint string
}

// LoadAWSConfig loads AWS SDK configuration using default credential chain
// (environment variables, shared credentials file, IAM roles, etc.)
func LoadAWSConfig(ctx context.Context, cfg Config) (aws.Config, error) {
	opts := []func(*config.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, err
	}
	if cfg.Endpoint != "" {
		awsCfg.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return awsCfg, nil
}

// NewSNSClient creates an SNS client for pool event fan-out.
func NewSNSClient(ctx context.Context, cfg Config) (*sns.Client, error) {
	awsCfg, err := LoadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return sns.NewFromConfig(awsCfg), nil
}

// NewDynamoDBClient creates a DynamoDB client for the event archive.
func NewDynamoDBClient(ctx context.Context, cfg Config) (*dynamodb.Client, error) {
	awsCfg, err := LoadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return dynamodb.NewFromConfig(awsCfg), nil
}

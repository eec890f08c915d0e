// Package session provides AWS session management and service client
// configuration for scrapemeta.
package session

import (
	"context"
	"fmt"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// configLoadFunc is a variable to allow mocking config.LoadDefaultConfig in tests
var configLoadFunc = config.LoadDefaultConfig

// Config holds the AWS-facing configuration for a run
type Config struct {
	Region           string
	Endpoint         string
	AccessKey        string // static credentials, only for local endpoints
	SecretKey        string
	MaxRetries       int
	AWSConfigOptions []func(*config.LoadOptions) error
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Region:     "ap-southeast-2",
		MaxRetries: 3,
	}
}

// Session manages the AWS configuration and service clients
type Session struct {
	config    *Config
	awsConfig aws.Config
	dynamo    *dynamodb.Client
	blobs     *s3.Client
	identity  *sts.Client
}

// NewSession creates a new session with the given configuration
func NewSession(ctx context.Context, cfg *Config) (*Session, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	options := make([]func(*config.LoadOptions) error, 0, len(cfg.AWSConfigOptions)+4)

	if cfg.Region != "" {
		options = append(options, config.WithRegion(cfg.Region))
	}

	// Static credentials are for local-stack endpoints only; real runs use
	// whatever the host environment provides
	if cfg.AccessKey != "" {
		options = append(options, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}

	maxAttempts := cfg.MaxRetries
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	options = append(options, config.WithRetryMode(aws.RetryModeStandard))
	options = append(options, config.WithRetryMaxAttempts(maxAttempts))
	options = append(options, config.WithHTTPClient(&http.Client{}))

	options = append(options, cfg.AWSConfigOptions...)

	awsConfig, err := configLoadFunc(ctx, options...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	dynamoOptions := func(o *dynamodb.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	}

	return &Session{
		config:    cfg,
		awsConfig: awsConfig,
		dynamo:    dynamodb.NewFromConfig(awsConfig, dynamoOptions),
		blobs:     s3.NewFromConfig(awsConfig),
		identity:  sts.NewFromConfig(awsConfig),
	}, nil
}

// DynamoDB returns the DynamoDB client
func (s *Session) DynamoDB() (*dynamodb.Client, error) {
	if s == nil || s.dynamo == nil {
		return nil, fmt.Errorf("DynamoDB client is nil")
	}
	return s.dynamo, nil
}

// S3 returns the S3 client used for blob cache verification
func (s *Session) S3() (*s3.Client, error) {
	if s == nil || s.blobs == nil {
		return nil, fmt.Errorf("S3 client is nil")
	}
	return s.blobs, nil
}

// Config returns the session configuration
func (s *Session) Config() *Config {
	return s.config
}

// AWSConfig returns the AWS configuration
func (s *Session) AWSConfig() aws.Config {
	return s.awsConfig
}

// CallerIdentity resolves the ARN of the credentials this run executes
// under, so the operator can see which account is about to be touched.
func (s *Session) CallerIdentity(ctx context.Context) (string, error) {
	if s == nil || s.identity == nil {
		return "", fmt.Errorf("STS client is nil")
	}
	out, err := s.identity.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", fmt.Errorf("failed to resolve caller identity: %w", err)
	}
	return aws.ToString(out.Arn), nil
}

// Package aws implements the provider capabilities with the AWS SDK v2.
package aws

import (
	"context"
	"errors"
	"fmt"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/apigateway"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/smithy-go"

	"github.com/animus-labs/apideploy/internal/platform/env"
	"github.com/animus-labs/apideploy/internal/provider"
)

// Config selects credentials and client behaviour.
type Config struct {
	Region          string
	Profile         string
	MaxAttempts     int
	UpdateWaitLimit time.Duration
}

// ConfigFromEnv reads APIDEPLOY_AWS_* variables. Region is set by the caller.
func ConfigFromEnv() (Config, error) {
	attempts, err := env.Int("APIDEPLOY_AWS_MAX_ATTEMPTS", 5)
	if err != nil {
		return Config{}, err
	}
	wait, err := env.Duration("APIDEPLOY_AWS_UPDATE_WAIT", 5*time.Minute)
	if err != nil {
		return Config{}, err
	}
	return Config{
		Profile:         env.String("APIDEPLOY_AWS_PROFILE", ""),
		MaxAttempts:     attempts,
		UpdateWaitLimit: wait,
	}, nil
}

func (c Config) Validate() error {
	if c.Region == "" {
		return errors.New("aws region is required")
	}
	if c.MaxAttempts < 1 {
		return errors.New("APIDEPLOY_AWS_MAX_ATTEMPTS must be >= 1")
	}
	if c.UpdateWaitLimit <= 0 {
		return errors.New("APIDEPLOY_AWS_UPDATE_WAIT must be positive")
	}
	return nil
}

// New loads the default credential chain and returns every capability.
func New(ctx context.Context, cfg Config) (provider.Set, error) {
	if err := cfg.Validate(); err != nil {
		return provider.Set{}, err
	}
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
		config.WithRetryMaxAttempts(cfg.MaxAttempts),
	}
	if cfg.Profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(cfg.Profile))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return provider.Set{}, fmt.Errorf("load aws config: %w", err)
	}
	return provider.Set{
		Name:          "aws",
		Region:        cfg.Region,
		Functions:     &Functions{client: lambda.NewFromConfig(awsCfg), waitLimit: cfg.UpdateWaitLimit},
		AccessControl: &AccessControl{client: iam.NewFromConfig(awsCfg)},
		Gateway:       &Gateway{client: apigateway.NewFromConfig(awsCfg)},
	}, nil
}

// classify converts SDK errors into provider.APIError.
func classify(service, op string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return &provider.APIError{Service: service, Operation: op, Kind: provider.KindOther, Err: err}
	}
	return &provider.APIError{
		Service:   service,
		Operation: op,
		Code:      apiErr.ErrorCode(),
		Message:   apiErr.ErrorMessage(),
		Kind:      kindOf(apiErr.ErrorCode()),
		Err:       err,
	}
}

func kindOf(code string) provider.ErrorKind {
	switch code {
	case "ResourceNotFoundException", "NoSuchEntity", "NotFoundException":
		return provider.KindNotFound
	case "ResourceConflictException", "EntityAlreadyExists", "ConflictException":
		return provider.KindConflict
	case "TooManyRequestsException", "Throttling", "ThrottlingException", "LimitExceededException", "RequestLimitExceeded":
		return provider.KindThrottling
	case "AccessDenied", "AccessDeniedException", "UnauthorizedOperation", "UnrecognizedClientException", "ExpiredToken", "InvalidClientTokenId":
		return provider.KindPermission
	case "BadRequestException", "InvalidParameterValueException", "MalformedPolicyDocument", "ValidationError":
		return provider.KindInvalid
	}
	return provider.KindOther
}

func str(s *string) string {
	return sdkaws.ToString(s)
}

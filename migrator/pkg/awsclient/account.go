package awsclient

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	"github.com/aws/aws-sdk-go-v2/service/elasticache"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/smithy-go"
	"github.com/gopinaath/elasticache-redis-account2account/migrator/pkg/common"
	"github.com/gopinaath/elasticache-redis-account2account/migrator/pkg/config"
	log "github.com/sirupsen/logrus"
)

const roleSessionName = "redis-migrate"

// Account bundles the service clients of one side of the migration.
type Account struct {
	Name   common.Account
	Region string

	ElastiCache    ElastiCacheAPI
	S3             S3API
	CloudFormation CloudFormationAPI
	IAM            IAMAPI
	Lambda         LambdaAPI
	STS            STSAPI
}

func (a *Account) String() string {
	return fmt.Sprintf("Account{Name=%v, Region=%v}", a.Name, a.Region)
}

// NewAccount loads AWS configuration for the given account settings. Static keys
// take precedence over the shared profile; RoleArn, when set, is assumed on top.
func NewAccount(ctx context.Context, name common.Account, conf config.AccountConfig) (*Account, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(conf.Region),
	}
	if conf.AccessKeyId != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(conf.AccessKeyId, conf.SecretAccessKey, conf.SessionToken)))
	} else if conf.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(conf.Profile))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, common.MissingPrerequisite("could not load AWS configuration for %v account (profile %q): %v",
			name, conf.Profile, err)
	}

	if conf.RoleArn != "" {
		log.Debugf("Assuming role %v for %v account.", conf.RoleArn, name)
		provider := stscreds.NewAssumeRoleProvider(sts.NewFromConfig(cfg), conf.RoleArn,
			func(o *stscreds.AssumeRoleOptions) {
				o.RoleSessionName = roleSessionName
			})
		cfg.Credentials = aws.NewCredentialsCache(provider)
	}

	return FromConfig(name, cfg), nil
}

// FromConfig builds every service client from an already loaded aws.Config.
func FromConfig(name common.Account, cfg aws.Config) *Account {
	return &Account{
		Name:           name,
		Region:         cfg.Region,
		ElastiCache:    elasticache.NewFromConfig(cfg),
		S3:             s3.NewFromConfig(cfg),
		CloudFormation: cloudformation.NewFromConfig(cfg),
		IAM:            iam.NewFromConfig(cfg),
		Lambda:         lambda.NewFromConfig(cfg),
		STS:            sts.NewFromConfig(cfg),
	}
}

// AccountId returns the account id behind the account credentials.
func (a *Account) AccountId(ctx context.Context) (string, error) {
	out, err := a.STS.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", common.MissingPrerequisite("credentials for %v account are not usable: %v", a.Name, err)
	}
	return aws.ToString(out.Account), nil
}

// CanonicalUserId returns the S3 canonical user id of the account, taken from
// the owner of its bucket listing.
func (a *Account) CanonicalUserId(ctx context.Context) (string, error) {
	out, err := a.S3.ListBuckets(ctx, &s3.ListBucketsInput{})
	if err != nil {
		return "", fmt.Errorf("could not list buckets of %v account: %w", a.Name, err)
	}
	if out.Owner == nil || aws.ToString(out.Owner.ID) == "" {
		return "", common.NotFound("canonical user id of %v account", a.Name)
	}
	return aws.ToString(out.Owner.ID), nil
}

// ErrorCode returns the AWS error code of err, or "" when err is not an API error.
func ErrorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}

// IsErrorCode reports whether err is an AWS API error with one of the given codes.
func IsErrorCode(err error, codes ...string) bool {
	code := ErrorCode(err)
	if code == "" {
		return false
	}
	for _, c := range codes {
		if strings.EqualFold(code, c) {
			return true
		}
	}
	return false
}

package common

import (
	"errors"
	"fmt"
)

// Errors returned by the migration tooling. Callers use errors.Is to tell the
// categories apart; the wrapped message carries the detail.
var (
	// ErrMissingPrerequisite is returned before any side effect, when a tool input
	// (configuration file, field, credentials, template) is missing.
	ErrMissingPrerequisite = errors.New("missing prerequisite")

	// ErrResourceNotFound is returned when a lookup (stack output, snapshot, export
	// artifact) comes back empty. Completed steps are not rolled back.
	ErrResourceNotFound = errors.New("resource not found")

	// ErrProviderFailure is returned when AWS reports a terminal failure state.
	ErrProviderFailure = errors.New("provider reported failure")

	// ErrCancelled is returned when the operator declines a confirmation prompt.
	ErrCancelled = errors.New("cancelled by operator")

	// ErrValidationFailed is returned when the migrated cluster holds fewer keys
	// than the configured threshold.
	ErrValidationFailed = errors.New("validation failed")
)

// Stack output keys consumed by the tool. A key must exist verbatim in the stack.
const (
	OutputRedisClusterId        = "RedisClusterId"
	OutputExportBucketName      = "ExportBucketName"
	OutputImportBucketName      = "ImportBucketName"
	OutputSecurityGroupId       = "SecurityGroupId"
	OutputCanonicalUserId       = "CanonicalUserId"
	OutputSubnetIds             = "SubnetIds"
	OutputValidatorFunctionName = "ValidatorFunctionName"
	OutputRedisEndpoint         = "RedisEndpoint"
)

// Tags applied to every resource this tool creates. Cleanup looks resources up
// by exact tag value.
const (
	TagRunId   = "redis-migrate:run-id"
	TagPurpose = "redis-migrate:purpose"

	PurposeMigration  = "migration"
	PurposeValidation = "validation"
	PurposeTarget     = "target-cluster"
)

// Account identifies one side of the migration.
type Account string

const (
	SourceAccount = Account("source")
	TargetAccount = Account("target")
)

func (a Account) String() string {
	return string(a)
}

// MissingPrerequisite builds an ErrMissingPrerequisite with a formatted detail.
func MissingPrerequisite(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrMissingPrerequisite, fmt.Sprintf(format, args...))
}

// NotFound builds an ErrResourceNotFound with a formatted detail.
func NotFound(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrResourceNotFound, fmt.Sprintf(format, args...))
}

// ProviderFailure builds an ErrProviderFailure with a formatted detail.
func ProviderFailure(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrProviderFailure, fmt.Sprintf(format, args...))
}

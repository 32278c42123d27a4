// Package templates holds the CloudFormation templates deployed when the
// configuration does not name its own.
package templates

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/gopinaath/elasticache-redis-account2account/migrator/pkg/common"
)

//go:embed target-cluster.yaml
var TargetCluster string

//go:embed validator.yaml
var Validator string

// Load returns the content of path, or fallback when path is empty.
func Load(path string, fallback string) (string, error) {
	if path == "" {
		return fallback, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", common.MissingPrerequisite("template file %v not found", path)
		}
		return "", fmt.Errorf("could not read template %v: %w", path, err)
	}
	return string(data), nil
}

// Package prereq verifies, before anything is changed in either account, that
// the tool has what it needs to run.
package prereq

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/gopinaath/elasticache-redis-account2account/migrator/pkg/awsclient"
	"github.com/gopinaath/elasticache-redis-account2account/migrator/pkg/common"
	"github.com/gopinaath/elasticache-redis-account2account/migrator/pkg/config"
	"github.com/gopinaath/elasticache-redis-account2account/migrator/pkg/templates"
	"github.com/gopinaath/elasticache-redis-account2account/migrator/pkg/validation"
	log "github.com/sirupsen/logrus"
)

// Check is the outcome of one prerequisite.
type Check struct {
	Name    string
	Err     error
	Warning string
}

func (c Check) Passed() bool {
	return c.Err == nil
}

type Report struct {
	Checks          []Check
	SourceAccountId string
	TargetAccountId string
}

func (r *Report) add(name string, err error) {
	r.Checks = append(r.Checks, Check{Name: name, Err: err})
}

func (r *Report) warn(name string, warning string) {
	r.Checks = append(r.Checks, Check{Name: name, Warning: warning})
}

// Failed returns the checks that did not pass.
func (r *Report) Failed() []Check {
	var failed []Check
	for _, c := range r.Checks {
		if !c.Passed() {
			failed = append(failed, c)
		}
	}
	return failed
}

// Run performs every check and logs its outcome. All checks run even after a
// failure so the operator sees the full list; the first failure is returned as
// an ErrMissingPrerequisite.
func Run(ctx context.Context, conf *config.Config, source *awsclient.Account, target *awsclient.Account) (*Report, error) {
	r := &Report{}

	r.add("configuration", conf.Validate())
	r.add("output directory", checkWritable(conf.OutputDir))

	var err error
	r.SourceAccountId, err = source.AccountId(ctx)
	r.add("source credentials", err)
	r.TargetAccountId, err = target.AccountId(ctx)
	r.add("target credentials", err)
	if r.SourceAccountId != "" && r.SourceAccountId == r.TargetAccountId {
		r.warn("distinct accounts", fmt.Sprintf("source and target resolve to the same account %v", r.SourceAccountId))
	}

	r.add("target template", checkFile(conf.Target.TemplateFile))
	if conf.Validation.Deploy {
		r.add("validation template", checkFile(conf.Validation.TemplateFile))
		r.add("validation package", checkValidationCode(conf.Validation))
	}

	var first error
	for _, c := range r.Checks {
		switch {
		case c.Err != nil:
			log.Errorf("Prerequisite %v: FAILED (%v)", c.Name, c.Err)
			if first == nil {
				first = fmt.Errorf("%v: %w", c.Name, c.Err)
			}
		case c.Warning != "":
			log.Warnf("Prerequisite %v: %v", c.Name, c.Warning)
		default:
			log.Infof("Prerequisite %v: OK", c.Name)
		}
	}
	if first != nil {
		if !errors.Is(first, common.ErrMissingPrerequisite) {
			first = fmt.Errorf("%w: %v", common.ErrMissingPrerequisite, first)
		}
		return r, first
	}
	return r, nil
}

func checkWritable(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("could not create %v: %w", dir, err)
	}
	f, err := os.CreateTemp(dir, ".redis-migrate-*")
	if err != nil {
		return fmt.Errorf("%v is not writable: %w", dir, err)
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}

// checkValidationCode fails when the validation template needs the bucket of
// the validator package and the configuration gives none. The remaining
// parameters come from stack outputs at deploy time.
func checkValidationCode(conf config.ValidationConfig) error {
	body, err := templates.Load(conf.TemplateFile, templates.Validator)
	if err != nil {
		// reported by the template check
		return nil
	}
	spec, err := templates.ParseParameters(body)
	if err != nil {
		return err
	}
	values := map[string]string{}
	for k, v := range conf.Parameters {
		values[k] = v
	}
	spec.SetIfDeclared(values, validation.ParameterCodeBucket, conf.CodeBucket)
	for _, name := range spec.Missing(values) {
		if name == validation.ParameterCodeBucket {
			return fmt.Errorf("validation.code_bucket is empty but the validation template needs %v", name)
		}
	}
	return nil
}

// checkFile passes for an empty path, which selects the built-in template.
func checkFile(path string) error {
	if path == "" {
		return nil
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%v not found", path)
		}
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%v is a directory", path)
	}
	return nil
}

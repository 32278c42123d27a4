package main

import (
	"context"
	"fmt"

	"github.com/AlecAivazis/survey/v2"
	"github.com/gopinaath/elasticache-redis-account2account/migrator/pkg/cleanup"
	"github.com/gopinaath/elasticache-redis-account2account/migrator/pkg/migration"
	"github.com/gopinaath/elasticache-redis-account2account/migrator/pkg/prereq"
	"github.com/gopinaath/elasticache-redis-account2account/migrator/pkg/validation"
	"github.com/gopinaath/elasticache-redis-account2account/migrator/pkg/validator"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// newConfirmer returns the interactive prompt used before cleanup deletes
// anything.
var newConfirmer = func() cleanup.Confirmer {
	return cleanup.ConfirmFunc(func(message string) (bool, error) {
		response := false
		prompt := &survey.Confirm{Message: message}
		if err := survey.AskOne(prompt, &response); err != nil {
			return false, err
		}
		return response, nil
	})
}

func newPreflightCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "preflight <config.yaml>",
		Short: "Check configuration, credentials and templates without changing anything.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return launch(v, "preflight", args[0], func(ctx context.Context, env *environment) error {
				return preflight(ctx, env)
			})
		},
	}
}

func newMigrateCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate <config.yaml>",
		Short: "Snapshot the source cluster, copy it to the target account and restore it.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return launch(v, "migrate", args[0], func(ctx context.Context, env *environment) error {
				if err := preflight(ctx, env); err != nil {
					return err
				}
				_, _, err := migrate(ctx, env)
				return err
			})
		},
	}
}

func newValidateCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <config.yaml>",
		Short: "Check the key count of the migrated cluster through the validation function.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return launch(v, "validate", args[0], func(ctx context.Context, env *environment) error {
				_, err := validate(ctx, env)
				return err
			})
		},
	}
}

func newCleanupCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cleanup <config.yaml>",
		Short: "Expire transfer buckets and delete migration and validation resources.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := cleanupOptions(cmd)
			if err != nil {
				return err
			}
			return launch(v, "cleanup", args[0], func(ctx context.Context, env *environment) error {
				return clean(ctx, env, opts)
			})
		},
	}
	addCleanupFlags(cmd)
	return cmd
}

func newRunCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <config.yaml>",
		Short: "Preflight, migrate, validate and clean up in one go.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := cleanupOptions(cmd)
			if err != nil {
				return err
			}
			skipMigration, _ := cmd.Flags().GetBool(flagSkipMigration)
			skipValidation, _ := cmd.Flags().GetBool(flagSkipValidation)
			noCleanup, _ := cmd.Flags().GetBool(flagNoCleanup)

			return launch(v, "run", args[0], func(ctx context.Context, env *environment) error {
				return runAll(ctx, env, runOptions{
					skipMigration:  skipMigration,
					skipValidation: skipValidation,
					noCleanup:      noCleanup,
					cleanup:        opts,
				})
			})
		},
	}
	cmd.Flags().Bool(flagSkipMigration, false, "Do not run the migration, e.g. to validate an earlier one.")
	cmd.Flags().Bool(flagSkipValidation, false, "Do not validate the migrated cluster.")
	cmd.Flags().Bool(flagNoCleanup, false, "Keep migration and validation resources.")
	addCleanupFlags(cmd)
	return cmd
}

func cleanupOptions(cmd *cobra.Command) (cleanup.Options, error) {
	opts := cleanup.Options{}
	var err error
	for _, f := range []struct {
		name  string
		value *bool
	}{
		{flagDryRun, &opts.DryRun},
		{flagForce, &opts.Force},
		{flagSourceOnly, &opts.SourceOnly},
		{flagTargetOnly, &opts.TargetOnly},
	} {
		if *f.value, err = cmd.Flags().GetBool(f.name); err != nil {
			return opts, err
		}
	}
	return opts, nil
}

func preflight(ctx context.Context, env *environment) error {
	env.progress.set("Preflight")
	_, err := prereq.Run(ctx, env.conf, env.source, env.target)
	if err != nil {
		return err
	}
	log.Info("All prerequisites met.")
	return nil
}

func migrate(ctx context.Context, env *environment) (*migration.Migrator, *migration.Run, error) {
	m := migration.NewMigrator(env.conf, env.source, env.target, env.metrics)
	env.progress.track(m)
	run, err := m.Migrate(ctx)
	if err != nil {
		return m, run, err
	}
	log.Infof("Migration %v finished, target cluster %v, report %v.", run.Id, run.TargetClusterId, run.ReportPath)
	return m, run, nil
}

func validate(ctx context.Context, env *environment) (*validator.Summary, error) {
	env.progress.set("Validating")
	return validation.NewValidation(env.conf, env.target).Run(ctx)
}

func clean(ctx context.Context, env *environment, opts cleanup.Options) error {
	env.progress.set("CleaningUp")
	var confirmer cleanup.Confirmer
	if !opts.Force && !opts.DryRun && !env.conf.Cleanup.Force {
		confirmer = newConfirmer()
	}
	_, err := cleanup.NewCleaner(env.conf, env.source, env.target, confirmer, env.metrics, opts).Run(ctx)
	return err
}

type runOptions struct {
	skipMigration  bool
	skipValidation bool
	noCleanup      bool
	cleanup        cleanup.Options
}

// runAll chains the commands. A failed migration or validation stops the
// chain so its resources stay in place for inspection; the first error is
// returned.
func runAll(ctx context.Context, env *environment, opts runOptions) error {
	if err := preflight(ctx, env); err != nil {
		return err
	}

	var (
		m   *migration.Migrator
		run *migration.Run
		err error
	)
	if opts.skipMigration {
		log.Info("Skipping migration.")
	} else if m, run, err = migrate(ctx, env); err != nil {
		return err
	}

	if opts.skipValidation {
		log.Info("Skipping validation.")
	} else {
		summary, err := validate(ctx, env)
		if run != nil && summary != nil {
			if reportErr := m.AttachValidation(run, validation.ReportSection(summary)); reportErr != nil {
				log.Warnf("Could not add validation results to the report: %v", reportErr)
			}
		}
		if err != nil {
			return fmt.Errorf("validation: %w", err)
		}
	}

	if opts.noCleanup {
		log.Info("Skipping cleanup.")
		return nil
	}
	if err = clean(ctx, env, opts.cleanup); err != nil {
		return fmt.Errorf("cleanup: %w", err)
	}
	return nil
}

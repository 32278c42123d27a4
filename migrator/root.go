package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/gopinaath/elasticache-redis-account2account/migrator/pkg/common"
	"github.com/gopinaath/elasticache-redis-account2account/migrator/pkg/logging"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	flagLogLevel       = "log-level"
	flagDebug          = "debug"
	flagNoColor        = "no-color"
	flagDryRun         = "dry-run"
	flagForce          = "force"
	flagSourceOnly     = "source-only"
	flagTargetOnly     = "target-only"
	flagSkipMigration  = "skip-migration"
	flagSkipValidation = "skip-validation"
	flagNoCleanup      = "no-cleanup"
)

func newRootCmd(v *viper.Viper) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "redis-migrate",
		Short: "redis-migrate - move an ElastiCache Redis cluster between AWS accounts.",
		Long: `
	redis-migrate snapshots an ElastiCache Redis cluster in a source account,
	exports the snapshot to S3, copies it to the target account and restores it
	into a new cluster there. It can then validate the restored data and clean
	up the resources used along the way.`,
		Version:       MigratorVersionNumber,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logging.SetFormatter(v.GetBool(flagNoColor))
			return logging.SetLogLevel(v.GetString(flagLogLevel), v.GetBool(flagDebug))
		},
	}
	rootCmd.SetVersionTemplate("redis-migrate version {{.Version}}\n")

	flags := rootCmd.PersistentFlags()
	flags.SortFlags = false
	flags.String(flagLogLevel, "", "Log level: debug, info, warn, error. Overrides log_level from the configuration.")
	flags.Bool(flagDebug, false, "Debug logging with caller locations, same as --log-level debug.")
	flags.Bool(flagNoColor, false, "Disable colors in console output.")

	v.BindPFlag(flagLogLevel, flags.Lookup(flagLogLevel))
	v.BindPFlag(flagDebug, flags.Lookup(flagDebug))
	v.BindPFlag(flagNoColor, flags.Lookup(flagNoColor))
	v.SetEnvPrefix("REDIS_MIGRATE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	rootCmd.AddCommand(
		newPreflightCmd(v),
		newMigrateCmd(v),
		newValidateCmd(v),
		newCleanupCmd(v),
		newRunCmd(v),
	)
	return rootCmd
}

func addCleanupFlags(cmd *cobra.Command) {
	cmd.Flags().Bool(flagDryRun, false, "Log what cleanup would delete without changing anything.")
	cmd.Flags().Bool(flagForce, false, "Delete without asking for confirmation.")
	cmd.Flags().Bool(flagSourceOnly, false, "Only clean up the source account.")
	cmd.Flags().Bool(flagTargetOnly, false, "Only clean up the target account.")
	cmd.MarkFlagsMutuallyExclusive(flagSourceOnly, flagTargetOnly)
}

// Execute runs the command line and returns the process exit code.
func Execute(args []string) int {
	rootCmd := newRootCmd(viper.New())
	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, common.ErrCancelled) {
			log.Warn("Cancelled, nothing was changed.")
		} else {
			log.Error(color.RedString(fmt.Sprintf("%v", err)))
		}
		return 1
	}
	return 0
}

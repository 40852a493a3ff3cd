package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/projecteru2/core/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	cmdapp "github.com/projecteru2/vpcctl/cmd/app"
	cmdcore "github.com/projecteru2/vpcctl/cmd/core"
	cmdvpc "github.com/projecteru2/vpcctl/cmd/vpc"
	"github.com/projecteru2/vpcctl/config"
	"github.com/projecteru2/vpcctl/types"
)

var (
	cfgFile string
	dryRun  bool
	conf    *config.Config
)

var rootCmd = func() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vpcctl",
		Short: "vpcctl - single-host VPC simulator on Linux namespaces and bridges",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return initConfig(cmd.Context())
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")
	cmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "print commands without running them")
	cmd.PersistentFlags().String("data-dir", "", "metadata directory")
	cmd.PersistentFlags().String("log-dir", "", "app log directory")

	_ = viper.BindPFlag("data_dir", cmd.PersistentFlags().Lookup("data-dir"))
	_ = viper.BindPFlag("log_dir", cmd.PersistentFlags().Lookup("log-dir"))

	viper.SetEnvPrefix("VPCCTL")
	viper.AutomaticEnv()

	base := cmdcore.BaseHandler{ConfProvider: func() *config.Config { return conf }}

	for _, c := range cmdvpc.Commands(cmdvpc.Handler{BaseHandler: base}) {
		cmd.AddCommand(c)
	}
	for _, c := range cmdapp.Commands(cmdapp.Handler{BaseHandler: base}) {
		cmd.AddCommand(c)
	}

	return cmd
}()

func initConfig(ctx context.Context) error {
	conf = config.DefaultConfig()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
	_ = viper.ReadInConfig() // optional; missing file is OK

	if err := viper.Unmarshal(conf); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	if v := viper.GetString("data_dir"); v != "" {
		conf.DataDir = v
	}
	if v := viper.GetString("log_dir"); v != "" {
		conf.LogDir = v
	}
	conf.DryRun = conf.DryRun || dryRun
	conf.Normalize()

	return log.SetupLog(ctx, &conf.Log, "")
}

// Execute is the main entry point called from main.go. Interrupt aborts the
// in-flight external command; completed steps are not undone.
func Execute() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	return rootCmd.ExecuteContext(ctx)
}

// ExitCode maps an operation error to the driver exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, types.ErrNotFound):
		return 2
	case errors.Is(err, types.ErrExists):
		return 3
	case errors.Is(err, types.ErrCidrInvalid),
		errors.Is(err, types.ErrCidrOverlap),
		errors.Is(err, types.ErrCidrOutOfRange):
		return 4
	case errors.Is(err, types.ErrPolicyMalformed),
		errors.Is(err, types.ErrNoMatchingSubnet):
		return 5
	case errors.Is(err, types.ErrExec):
		return 6
	case errors.Is(err, types.ErrTimeout):
		return 7
	case errors.Is(err, types.ErrStateCorrupt):
		return 8
	case errors.Is(err, types.ErrPrivilege):
		return 9
	case errors.Is(err, types.ErrSelfPeer),
		errors.Is(err, types.ErrAlreadyPeered):
		return 10
	default:
		return 1
	}
}

package main

import (
	"context"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/awslabs/eksnode/pkg/logger"
)

// Version information variables (set at build time)
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

var verbose bool

// newLogger builds the process logger honoring the --verbose flag.
func newLogger() *logrus.Logger {
	return logger.New(verbose)
}

// NewRootCommand creates the eksnode root command.
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "eksnode",
		Short:         "Bootstrap an EC2 instance into an EKS cluster node",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	cmd.AddCommand(
		NewJoinCommand(),
		NewCalculateMaxPodsCommand(),
		NewPullCommand(),
		NewVersionCommand(),
	)

	return cmd
}

func main() {
	cmd := NewRootCommand()
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		logger.New(verbose).Error(err)
		os.Exit(2)
	}
}

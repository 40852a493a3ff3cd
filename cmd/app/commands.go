package app

import "github.com/spf13/cobra"

// Actions defines workload lifecycle operations.
type Actions interface {
	Deploy(cmd *cobra.Command, args []string) error
	Stop(cmd *cobra.Command, args []string) error
}

// Commands builds the app command set.
func Commands(h Actions) []*cobra.Command {
	deployCmd := &cobra.Command{
		Use:   "deploy-app VPC SUBNET [PORT]",
		Short: "Start a test HTTP listener inside a subnet namespace",
		Args:  cobra.RangeArgs(2, 3),
		RunE:  h.Deploy,
	}
	deployCmd.Flags().Int("port", 0, "listener port (default 8080)")

	stopCmd := &cobra.Command{
		Use:   "stop-app VPC",
		Short: "Stop deployed app(s) by namespace, pid, or all",
		Args:  cobra.ExactArgs(1),
		RunE:  h.Stop,
	}
	stopCmd.Flags().String("ns", "", "stop apps in this namespace")
	stopCmd.Flags().Int("pid", 0, "stop the app with this pid")

	return []*cobra.Command{deployCmd, stopCmd}
}

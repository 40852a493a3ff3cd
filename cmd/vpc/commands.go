package vpc

import "github.com/spf13/cobra"

// Actions defines the VPC lifecycle operations exposed on the command line.
type Actions interface {
	Create(cmd *cobra.Command, args []string) error
	AddSubnet(cmd *cobra.Command, args []string) error
	EnableNAT(cmd *cobra.Command, args []string) error
	Peer(cmd *cobra.Command, args []string) error
	ApplyPolicy(cmd *cobra.Command, args []string) error
	Delete(cmd *cobra.Command, args []string) error
	CleanupAll(cmd *cobra.Command, args []string) error
	List(cmd *cobra.Command, args []string) error
	Inspect(cmd *cobra.Command, args []string) error
	Verify(cmd *cobra.Command, args []string) error
	TestConnectivity(cmd *cobra.Command, args []string) error
}

// Commands builds the VPC command set.
func Commands(h Actions) []*cobra.Command {
	createCmd := &cobra.Command{
		Use:   "create NAME CIDR",
		Short: "Create a VPC (bridge + dedicated filter chain)",
		Args:  cobra.ExactArgs(2),
		RunE:  h.Create,
	}

	addSubnetCmd := &cobra.Command{
		Use:   "add-subnet VPC NAME CIDR",
		Short: "Add a subnet (namespace) to a VPC",
		Args:  cobra.ExactArgs(3),
		RunE:  h.AddSubnet,
	}
	addSubnetCmd.Flags().String("gw", "", "gateway address (default: first usable address)")

	natCmd := &cobra.Command{
		Use:   "enable-nat VPC INTERFACE",
		Short: "Enable NAT for subnets via a host egress interface",
		Args:  cobra.ExactArgs(2),
		RunE:  h.EnableNAT,
	}
	natCmd.Flags().String("subnet", "", "limit NAT to one subnet")
	natCmd.Flags().Bool("all-subnets", false, "enable NAT for every subnet")

	peerCmd := &cobra.Command{
		Use:   "peer VPC1 VPC2",
		Short: "Peer two VPCs with a bridge-to-bridge link",
		Args:  cobra.ExactArgs(2),
		RunE:  h.Peer,
	}
	peerCmd.Flags().String("allow-cidrs", "", "comma-separated CIDRs allowed across the peering (default: both VPC CIDRs)")

	policyCmd := &cobra.Command{
		Use:   "apply-policy VPC POLICY_FILE",
		Short: "Apply a JSON security policy to a subnet",
		Args:  cobra.ExactArgs(2),
		RunE:  h.ApplyPolicy,
	}

	deleteCmd := &cobra.Command{
		Use:     "delete VPC [VPC...]",
		Aliases: []string{"rm"},
		Short:   "Delete VPC(s) and clean up their kernel objects",
		Args:    cobra.MinimumNArgs(1),
		RunE:    h.Delete,
	}

	cleanupCmd := &cobra.Command{
		Use:   "cleanup-all",
		Short: "Delete every VPC recorded in the store",
		Args:  cobra.NoArgs,
		RunE:  h.CleanupAll,
	}

	listCmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List VPCs",
		Args:    cobra.NoArgs,
		RunE:    h.List,
	}

	inspectCmd := &cobra.Command{
		Use:   "inspect VPC",
		Short: "Show the VPC document (JSON)",
		Args:  cobra.ExactArgs(1),
		RunE:  h.Inspect,
	}

	verifyCmd := &cobra.Command{
		Use:   "verify",
		Short: "Cross-check metadata against live kernel state",
		Args:  cobra.NoArgs,
		RunE:  h.Verify,
	}

	testCmd := &cobra.Command{
		Use:   "test-connectivity TARGET [PORT]",
		Short: "Probe an HTTP endpoint from the host or a namespace",
		Args:  cobra.RangeArgs(1, 2),
		RunE:  h.TestConnectivity,
	}
	testCmd.Flags().String("from-ns", "", "namespace to probe from")

	return []*cobra.Command{
		createCmd,
		addSubnetCmd,
		natCmd,
		peerCmd,
		policyCmd,
		deleteCmd,
		cleanupCmd,
		listCmd,
		inspectCmd,
		verifyCmd,
		testCmd,
	}
}

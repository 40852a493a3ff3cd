package vpc

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	units "github.com/docker/go-units"
	"github.com/fatih/color"
	"github.com/projecteru2/core/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	cmdcore "github.com/projecteru2/vpcctl/cmd/core"
	"github.com/projecteru2/vpcctl/types"
	"github.com/projecteru2/vpcctl/vpc"
)

type Handler struct {
	cmdcore.BaseHandler
}

// initManager is the shared init for every VPC subcommand.
func (h Handler) initManager(cmd *cobra.Command) (context.Context, *vpc.Manager, error) {
	ctx, conf, err := h.Init(cmd)
	if err != nil {
		return nil, nil, err
	}
	m, err := cmdcore.InitManager(conf)
	return ctx, m, err
}

func (h Handler) Create(cmd *cobra.Command, args []string) error {
	ctx, m, err := h.initManager(cmd)
	if err != nil {
		return err
	}
	return m.Create(ctx, args[0], args[1])
}

func (h Handler) AddSubnet(cmd *cobra.Command, args []string) error {
	ctx, m, err := h.initManager(cmd)
	if err != nil {
		return err
	}
	gw, _ := cmd.Flags().GetString("gw")
	return m.AddSubnet(ctx, args[0], args[1], args[2], gw)
}

func (h Handler) EnableNAT(cmd *cobra.Command, args []string) error {
	ctx, m, err := h.initManager(cmd)
	if err != nil {
		return err
	}
	subnet, _ := cmd.Flags().GetString("subnet")
	all, _ := cmd.Flags().GetBool("all-subnets")
	if subnet != "" && all {
		return fmt.Errorf("--subnet and --all-subnets are mutually exclusive")
	}
	return m.EnableNAT(ctx, args[0], args[1], vpc.NATScope{Subnet: subnet, All: all})
}

func (h Handler) Peer(cmd *cobra.Command, args []string) error {
	ctx, m, err := h.initManager(cmd)
	if err != nil {
		return err
	}
	var allow []string
	if raw, _ := cmd.Flags().GetString("allow-cidrs"); raw != "" {
		for _, c := range strings.Split(raw, ",") {
			if c = strings.TrimSpace(c); c != "" {
				allow = append(allow, c)
			}
		}
	}
	return m.Peer(ctx, args[0], args[1], allow)
}

func (h Handler) ApplyPolicy(cmd *cobra.Command, args []string) error {
	ctx, m, err := h.initManager(cmd)
	if err != nil {
		return err
	}
	raw, err := os.ReadFile(args[1]) //nolint:gosec // policy path from CLI
	if err != nil {
		return fmt.Errorf("read policy file: %w", err)
	}
	p, err := types.ParsePolicy(raw)
	if err != nil {
		return err
	}
	return m.ApplyPolicy(ctx, args[0], p)
}

// Delete removes VPCs one at a time; teardown inside each is best-effort, so
// a failing VPC does not stop the rest.
func (h Handler) Delete(cmd *cobra.Command, args []string) error {
	ctx, m, err := h.initManager(cmd)
	if err != nil {
		return err
	}
	logger := log.WithFunc("cmd.delete")
	var failed []string
	for _, name := range args {
		if err := m.Delete(ctx, name); err != nil {
			logger.Warnf(ctx, "delete VPC %q: %v", name, err)
			failed = append(failed, name)
			continue
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("failed to delete: %s", strings.Join(failed, ", "))
	}
	return nil
}

func (h Handler) CleanupAll(cmd *cobra.Command, _ []string) error {
	ctx, m, err := h.initManager(cmd)
	if err != nil {
		return err
	}
	return m.CleanupAll(ctx)
}

func (h Handler) List(cmd *cobra.Command, _ []string) error {
	ctx, m, err := h.initManager(cmd)
	if err != nil {
		return err
	}
	vpcs, err := m.List(ctx)
	if err != nil {
		return err
	}

	// Bare names when piped, a table on a terminal.
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		for _, name := range vpcs {
			fmt.Println(name)
		}
		return nil
	}
	if len(vpcs) == 0 {
		fmt.Println("No VPCs found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "NAME\tCIDR\tSUBNETS\tPEERS\tAPPS\tAGE")
	for _, name := range vpcs {
		doc, err := m.Inspect(ctx, name)
		if err != nil {
			_, _ = fmt.Fprintf(w, "%s\t?\t?\t?\t?\t?\n", name)
			continue
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%s\n",
			doc.Name, doc.CIDR, len(doc.Subnets), len(doc.Peers), len(doc.Apps),
			units.HumanDuration(time.Since(doc.CreatedAt)))
	}
	return w.Flush()
}

func (h Handler) Inspect(cmd *cobra.Command, args []string) error {
	ctx, m, err := h.initManager(cmd)
	if err != nil {
		return err
	}
	doc, err := m.Inspect(ctx, args[0])
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

func (h Handler) Verify(cmd *cobra.Command, _ []string) error {
	ctx, m, err := h.initManager(cmd)
	if err != nil {
		return err
	}
	report, err := m.Verify(ctx)
	if err != nil {
		return err
	}

	for _, r := range report.Accounted {
		fmt.Printf("%s %-10s %-16s (vpc %s)\n", color.GreenString("ok"), r.Kind, r.Name, r.VPC)
	}
	for _, r := range report.Orphans {
		state := "unaccounted"
		if r.Missing {
			state = fmt.Sprintf("recorded by vpc %s but missing", r.VPC)
		}
		fmt.Printf("%s %-10s %-16s %s\n", color.RedString("orphan"), r.Kind, r.Name, state)
	}
	if report.Clean() {
		fmt.Println(color.GreenString("no orphans detected"))
		return nil
	}
	return fmt.Errorf("%d orphan(s) detected", len(report.Orphans))
}

func (h Handler) TestConnectivity(cmd *cobra.Command, args []string) error {
	ctx, m, err := h.initManager(cmd)
	if err != nil {
		return err
	}
	port := 80
	if len(args) > 1 {
		if port, err = strconv.Atoi(args[1]); err != nil {
			return fmt.Errorf("invalid port %q: %w", args[1], err)
		}
	}
	fromNS, _ := cmd.Flags().GetString("from-ns")

	body, err := m.TestConnectivity(ctx, args[0], port, fromNS)
	if err != nil {
		return err
	}
	if len(body) > 200 {
		body = body[:200]
	}
	fmt.Printf("Connectivity OK — response snapshot:\n%s\n", body)
	return nil
}

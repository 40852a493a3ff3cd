package app

import (
	"fmt"
	"strconv"

	"github.com/projecteru2/core/log"
	"github.com/spf13/cobra"

	cmdcore "github.com/projecteru2/vpcctl/cmd/core"
)

const defaultPort = 8080

type Handler struct {
	cmdcore.BaseHandler
}

func (h Handler) Deploy(cmd *cobra.Command, args []string) error {
	ctx, conf, err := h.Init(cmd)
	if err != nil {
		return err
	}
	m, err := cmdcore.InitManager(conf)
	if err != nil {
		return err
	}

	port, _ := cmd.Flags().GetInt("port")
	if len(args) > 2 {
		if port, err = strconv.Atoi(args[2]); err != nil {
			return fmt.Errorf("invalid port %q: %w", args[2], err)
		}
	}
	if port == 0 {
		port = defaultPort
	}
	return m.DeployApp(ctx, args[0], args[1], port)
}

func (h Handler) Stop(cmd *cobra.Command, args []string) error {
	ctx, conf, err := h.Init(cmd)
	if err != nil {
		return err
	}
	m, err := cmdcore.InitManager(conf)
	if err != nil {
		return err
	}

	ns, _ := cmd.Flags().GetString("ns")
	pid, _ := cmd.Flags().GetInt("pid")

	stopped, err := m.StopApp(ctx, args[0], ns, pid)
	if err != nil {
		return err
	}
	logger := log.WithFunc("cmd.stop-app")
	for _, app := range stopped {
		logger.Infof(ctx, "stopped app %s (ns %s, port %d)", app.ID, app.NS, app.Port)
	}
	return nil
}

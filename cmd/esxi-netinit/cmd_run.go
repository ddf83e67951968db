package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/kballard/go-shellquote"
	"github.com/spf13/cobra"

	"github.com/glennswest/esxi-netinit/pkg/network"
	"github.com/glennswest/esxi-netinit/pkg/network/nic"
	"github.com/glennswest/esxi-netinit/pkg/network/topology"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [CONFIG_DIR]",
		Short: "Configure host networking from the config drive",
		Long: `Remove the installer's management setup and configure every network
in network_data.json, then the default route, static routes, DNS and the
hostname. The first failed host call aborts the run.

  esxi-netinit run /vmfs/volumes/config-2/openstack/latest
  esxi-netinit run --dry-run --nics-file nics.txt ./openstack/latest`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return runNetinit(ctx)
		},
	}

	cmd.Flags().BoolVar(&dryRunFlag, "dry-run", false, "log host commands instead of executing them")
	cmd.Flags().StringVar(&reportFlag, "report", "", "write a YAML report of the run to this file")
	return cmd
}

func newPlanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plan [CONFIG_DIR]",
		Short: "Print the host actions a run would take",
		Long: `Plan a run against the current NIC inventory without changing the host.

  esxi-netinit plan --nics-file nics.txt ./openstack/latest`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return planNetinit(cmd.Context())
		},
	}
}

func runNetinit(ctx context.Context) error {
	model, b, err := loadAndOpen(ctx, false)
	if err != nil {
		return err
	}
	defer b.Close(ctx)

	mgr := network.NewManager(model, nic.NewInventory(b.nics), b.driver, cfg.Planner(), log)

	started := time.Now()
	runErr := mgr.Run(ctx, cfg.RunOpts())

	report := mgr.Report(runErr)
	report.DryRun = cfg.DryRun
	report.Started = started
	report.Finished = time.Now()
	if err := network.NewReportStore(cfg.ReportPath).Save(report); err != nil {
		log.Warnw("failed to save run report", "path", cfg.ReportPath, "error", err)
	}

	if b.dryRun != nil {
		for _, argv := range b.dryRun.Commands() {
			fmt.Println(shellquote.Join(argv...))
		}
	} else if cfg.DryRun {
		printActions(report.Actions)
	}

	if runErr != nil {
		log.Errorw("network configuration failed", "error", runErr)
	}
	return runErr
}

func planNetinit(ctx context.Context) error {
	model, b, err := loadAndOpen(ctx, true)
	if err != nil {
		return err
	}
	defer b.Close(ctx)

	mgr := network.NewManager(model, nic.NewInventory(b.nics), nil, cfg.Planner(), log)
	runErr := mgr.Run(ctx, cfg.RunOpts())
	printActions(mgr.Actions())
	return runErr
}

// loadAndOpen parses the config drive and opens the host backend, logging
// whichever step fails.
func loadAndOpen(ctx context.Context, journalOnly bool) (*topology.Model, *backend, error) {
	model, err := topology.Load(cfg.ConfigDir)
	if err != nil {
		log.Errorw("loading network descriptors failed", "dir", cfg.ConfigDir, "error", err)
		return nil, nil, err
	}
	b, err := openBackend(ctx, cfg, journalOnly)
	if err != nil {
		log.Errorw("opening host backend failed", "backend", cfg.Backend, "nicSource", cfg.NICSource, "error", err)
		return nil, nil, err
	}
	return model, b, nil
}

func printActions(actions []network.Action) {
	for i, a := range actions {
		fmt.Printf("%3d  %s\n", i+1, a)
	}
}

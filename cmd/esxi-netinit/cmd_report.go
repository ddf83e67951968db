package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/glennswest/esxi-netinit/pkg/network"
)

func newReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print the report saved by the last run",
		Long: `Print the switches, interfaces and host actions recorded by the last
run that was given a report path.

  esxi-netinit report --report /var/log/esxi-netinit.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := network.NewReportStore(cfg.ReportPath).Load()
			if err != nil {
				log.Errorw("loading run report failed", "path", cfg.ReportPath, "error", err)
				return err
			}
			if yamlOutput {
				return yaml.NewEncoder(os.Stdout).Encode(r)
			}
			printReport(os.Stdout, r)
			return nil
		},
	}

	cmd.Flags().StringVar(&reportFlag, "report", "", "report file written by a previous run")
	cmd.Flags().BoolVar(&yamlOutput, "yaml", false, "YAML output")
	return cmd
}

func printReport(w io.Writer, r *network.Report) {
	status := "ok"
	if r.Error != "" {
		status = "failed: " + r.Error
	}
	mode := "applied"
	if r.DryRun {
		mode = "dry run"
	}
	fmt.Fprintf(w, "host %s via %s (%s), %s\n", r.Hostname, r.Driver, mode, status)
	if !r.Started.IsZero() {
		fmt.Fprintf(w, "started %s, took %s\n", r.Started.Format(time.RFC3339), r.Finished.Sub(r.Started).Round(time.Millisecond))
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "%-12s %-20s %s\n", "SWITCH", "UPLINKS", "PORTGROUPS")
	for _, s := range r.Switches {
		fmt.Fprintf(w, "%-12s %-20v %v\n", s.Name, s.Uplinks, s.Portgroups)
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "%-8s %-12s %-12s %s\n", "IFACE", "NETWORK", "SWITCH", "PORTGROUP")
	for _, i := range r.Interfaces {
		fmt.Fprintf(w, "%-8s %-12s %-12s %s\n", i.Interface, i.Network, i.Switch, i.Portgroup)
	}
	fmt.Fprintln(w)

	for n, a := range r.Actions {
		fmt.Fprintf(w, "%3d  %s\n", n+1, a)
	}
}

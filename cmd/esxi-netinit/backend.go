package main

import (
	"context"
	"fmt"

	"github.com/spf13/pflag"

	"github.com/glennswest/esxi-netinit/pkg/config"
	"github.com/glennswest/esxi-netinit/pkg/network"
	"github.com/glennswest/esxi-netinit/pkg/network/driver"
	"github.com/glennswest/esxi-netinit/pkg/network/nic"
)

var (
	backendFlag   string
	nicSourceFlag string
	nicsFileFlag  string
	dryRunFlag    bool
	reportFlag    string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&backendFlag, "backend", "", "host gateway: esxcli or vsphere")
	rootCmd.PersistentFlags().StringVar(&nicSourceFlag, "nic-source", "", "nic inventory: auto, file, esxcli, netlink or vsphere")
	rootCmd.PersistentFlags().StringVar(&nicsFileFlag, "nics-file", "", "saved 'esxcli network nic list' output")
}

// applyRunFlags copies explicitly set flags over the loaded configuration.
func applyRunFlags(flags *pflag.FlagSet) {
	if flags.Changed("backend") {
		cfg.Backend = backendFlag
	}
	if flags.Changed("nic-source") {
		cfg.NICSource = nicSourceFlag
	}
	if flags.Changed("nics-file") {
		cfg.NICsFile = nicsFileFlag
		if !flags.Changed("nic-source") {
			cfg.NICSource = config.NICSourceFile
		}
	}
	if flags.Changed("dry-run") {
		cfg.DryRun = dryRunFlag
	}
	if flags.Changed("report") {
		cfg.ReportPath = reportFlag
	}
}

// backend is the host gateway selected by the configuration.
type backend struct {
	driver network.HostDriver // nil journals without touching the host
	nics   nic.Source
	vs     *driver.VSphere
	dryRun *driver.DryRunRunner
}

func (b *backend) Close(ctx context.Context) {
	if b.vs == nil {
		return
	}
	if err := b.vs.Close(ctx); err != nil {
		log.Warnw("vsphere logout failed", "error", err)
	}
}

// openBackend builds the gateway for c. In dry-run mode writes are logged
// and never reach the host; reads still do.
func openBackend(ctx context.Context, c config.Config, journalOnly bool) (*backend, error) {
	b := &backend{}

	switch c.Backend {
	case config.BackendESXCLI:
		var run driver.Runner = driver.NewExecRunner(log)
		if c.DryRun {
			b.dryRun = driver.NewDryRunRunner(run, log)
			run = b.dryRun
		}
		esx := driver.NewESXCLI(run, log)
		b.nics = esx
		if !journalOnly {
			b.driver = esx
		}

	case config.BackendVSphere:
		vs, err := dialVSphere(ctx, c)
		if err != nil {
			return nil, err
		}
		b.vs, b.nics = vs, vs
		if !c.DryRun && !journalOnly {
			b.driver = vs
		}

	default:
		return nil, fmt.Errorf("unknown backend %q", c.Backend)
	}

	src, err := b.nicSource(ctx, c)
	if err != nil {
		b.Close(ctx)
		return nil, err
	}
	b.nics = src
	return b, nil
}

func (b *backend) nicSource(ctx context.Context, c config.Config) (nic.Source, error) {
	switch c.NICSource {
	case "", config.NICSourceAuto:
		return b.nics, nil
	case config.NICSourceFile:
		return nic.FileSource(c.NICsFile), nil
	case config.NICSourceESXCLI:
		return driver.NewESXCLI(driver.NewExecRunner(log), log), nil
	case config.NICSourceNetlink:
		return driver.NewNetlinkSource(log), nil
	case config.NICSourceVSphere:
		if b.vs == nil {
			vs, err := dialVSphere(ctx, c)
			if err != nil {
				return nil, err
			}
			b.vs = vs
		}
		return b.vs, nil
	default:
		return nil, fmt.Errorf("unknown nic source %q", c.NICSource)
	}
}

func dialVSphere(ctx context.Context, c config.Config) (*driver.VSphere, error) {
	return driver.DialVSphere(ctx, driver.VSphereConfig{
		URL:      c.VSphere.URL,
		User:     c.VSphere.User,
		Password: c.VSphere.Password,
		Insecure: c.VSphere.Insecure,
		Host:     c.VSphere.Host,
	}, log)
}

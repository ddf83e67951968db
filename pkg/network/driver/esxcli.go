package driver

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/glennswest/esxi-netinit/pkg/network"
	"github.com/glennswest/esxi-netinit/pkg/network/ipam"
	"github.com/glennswest/esxi-netinit/pkg/network/nic"
)

const (
	esxcliPath       = "/bin/esxcli"
	esxcfgVMKNICPath = "/bin/esxcfg-vmknic"
)

// ESXCLI implements network.HostDriver by running esxcli on the host. It
// is also the host's NIC source.
type ESXCLI struct {
	run Runner
	log *zap.SugaredLogger
}

var (
	_ network.HostDriver = (*ESXCLI)(nil)
	_ nic.Source         = (*ESXCLI)(nil)
)

// NewESXCLI returns a HostDriver issuing esxcli commands through run.
func NewESXCLI(run Runner, log *zap.SugaredLogger) *ESXCLI {
	return &ESXCLI{
		run: run,
		log: log.Named("esxcli-driver"),
	}
}

func (d *ESXCLI) Name() string { return "esxcli" }

// esxcli runs one esxcli command. Runner errors already carry the command
// line.
func (d *ESXCLI) esxcli(ctx context.Context, args ...string) error {
	return d.run.Run(ctx, append([]string{esxcliPath}, args...))
}

// ListNICs runs `esxcli network nic list` and parses its output.
func (d *ESXCLI) ListNICs(ctx context.Context) ([]nic.NIC, error) {
	out, err := d.run.Output(ctx, nic.ListCommand)
	if err != nil {
		return nil, fmt.Errorf("listing nics: %w", err)
	}
	nics, err := nic.ParseESXCLI(string(out))
	if err != nil {
		return nil, err
	}
	d.log.Debugw("enumerated nics", "count", len(nics))
	return nics, nil
}

// ─── Host ───────────────────────────────────────────────────────────────────

func (d *ESXCLI) SetHostname(ctx context.Context, fqdn string) error {
	return d.esxcli(ctx, "system", "hostname", "set", "--fqdn", fqdn)
}

// ─── vSwitch Operations ─────────────────────────────────────────────────────

func (d *ESXCLI) CreateVSwitch(ctx context.Context, name string, opts network.VSwitchOpts) error {
	args := []string{"network", "vswitch", "standard", "add"}
	if opts.Ports > 0 {
		args = append(args, "--ports", strconv.Itoa(opts.Ports))
	}
	args = append(args, "--vswitch-name", name)
	if err := d.esxcli(ctx, args...); err != nil {
		return err
	}
	d.log.Infow("vswitch created", "name", name)
	return nil
}

func (d *ESXCLI) DestroyVSwitch(ctx context.Context, name string) error {
	return d.esxcli(ctx, "network", "vswitch", "standard", "remove", "--vswitch-name", name)
}

func (d *ESXCLI) AddUplink(ctx context.Context, vswitch, uplink string) error {
	return d.esxcli(ctx, "network", "vswitch", "standard", "uplink", "add",
		"--uplink-name", uplink, "--vswitch-name", vswitch)
}

func (d *ESXCLI) SetFailoverUplinks(ctx context.Context, vswitch string, active, standby []string) error {
	args := []string{"network", "vswitch", "standard", "policy", "failover", "set"}
	if len(active) > 0 {
		args = append(args, "--active-uplinks", strings.Join(active, ","))
	}
	if len(standby) > 0 {
		args = append(args, "--standby-uplinks", strings.Join(standby, ","))
	}
	args = append(args, "--vswitch-name", vswitch)
	return d.esxcli(ctx, args...)
}

func (d *ESXCLI) SetSecurity(ctx context.Context, vswitch string, policy network.SecurityPolicy) error {
	return d.esxcli(ctx, "network", "vswitch", "standard", "policy", "security", "set",
		"--allow-forged-transmits", yesNo(policy.AllowForgedTransmits),
		"--allow-mac-change", yesNo(policy.AllowMACChange),
		"--allow-promiscuous", yesNo(policy.AllowPromiscuous),
		"--vswitch-name", vswitch)
}

func (d *ESXCLI) SetVSwitchSettings(ctx context.Context, vswitch string, settings network.VSwitchSettings) error {
	args := []string{"network", "vswitch", "standard", "set", "--mtu", strconv.Itoa(settings.MTU)}
	if settings.CDPStatus != "" {
		args = append(args, "--cdp-status", settings.CDPStatus)
	}
	args = append(args, "--vswitch-name", vswitch)
	return d.esxcli(ctx, args...)
}

// ─── Portgroup Operations ───────────────────────────────────────────────────

func (d *ESXCLI) AddPortgroup(ctx context.Context, vswitch, portgroup string) error {
	if err := d.esxcli(ctx, "network", "vswitch", "standard", "portgroup", "add",
		"--portgroup-name", portgroup, "--vswitch-name", vswitch); err != nil {
		return err
	}
	d.log.Infow("portgroup added", "portgroup", portgroup, "vswitch", vswitch)
	return nil
}

func (d *ESXCLI) RemovePortgroup(ctx context.Context, vswitch, portgroup string) error {
	return d.esxcli(ctx, "network", "vswitch", "standard", "portgroup", "remove",
		"--portgroup-name", portgroup, "--vswitch-name", vswitch)
}

func (d *ESXCLI) SetPortgroupVLAN(ctx context.Context, portgroup string, vlanID int) error {
	return d.esxcli(ctx, "network", "vswitch", "standard", "portgroup", "set",
		"--portgroup-name", portgroup, "--vlan-id", strconv.Itoa(vlanID))
}

// ─── VMkernel Interfaces ────────────────────────────────────────────────────

func (d *ESXCLI) DeleteVMKNIC(ctx context.Context, portgroup string) error {
	return d.run.Run(ctx, []string{esxcfgVMKNICPath, "-d", portgroup})
}

func (d *ESXCLI) AddIPInterface(ctx context.Context, spec network.IPInterfaceSpec) error {
	args := []string{"network", "ip", "interface", "add", "--interface-name", spec.Name}
	if spec.MAC != network.AutoMAC && spec.MAC != "" {
		args = append(args, "--mac-address", spec.MAC)
	}
	args = append(args, "--mtu", strconv.Itoa(spec.MTU), "--portgroup-name", spec.Portgroup)
	if err := d.esxcli(ctx, args...); err != nil {
		return err
	}
	d.log.Infow("ip interface added", "interface", spec.Name, "portgroup", spec.Portgroup, "mac", spec.MAC)
	return nil
}

func (d *ESXCLI) SetStaticIPv4(ctx context.Context, iface, address, netmask string) error {
	return d.esxcli(ctx, "network", "ip", "interface", "ipv4", "set",
		"--interface-name", iface, "--type=static", "--ipv4", address, "--netmask", netmask)
}

func (d *ESXCLI) SetDHCPIPv4(ctx context.Context, iface string) error {
	return d.esxcli(ctx, "network", "ip", "interface", "ipv4", "set",
		"--interface-name", iface, "--peer-dns=true", "--type=dhcp")
}

// ─── Routing and DNS ────────────────────────────────────────────────────────

// ConfigureStaticRoute adds an IPv4 route. esxcli only accepts CIDR
// destinations, so network/netmask pairs are converted.
func (d *ESXCLI) ConfigureStaticRoute(ctx context.Context, route network.StaticRoute) error {
	dest := route.Network
	if !route.IsDefault() {
		cidr, err := ipam.CIDR(route.Network, route.Netmask)
		if err != nil {
			return fmt.Errorf("route to %s: %w", route.Network, err)
		}
		dest = cidr
	}
	return d.esxcli(ctx, "network", "ip", "route", "ipv4", "add", "-g", route.Gateway, "-n", dest)
}

// ConfigureDNS adds each server and search domain with its own command.
func (d *ESXCLI) ConfigureDNS(ctx context.Context, servers, search []string) error {
	for _, s := range servers {
		if err := d.esxcli(ctx, "network", "ip", "dns", "server", "add", "--server", s); err != nil {
			return err
		}
	}
	for _, domain := range search {
		if err := d.esxcli(ctx, "network", "ip", "dns", "search", "add", "--domain", domain); err != nil {
			return err
		}
	}
	return nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

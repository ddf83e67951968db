package driver

import (
	"context"
	"net/url"
	"strings"
	"sync"

	"github.com/juju/errors"
	"github.com/vmware/govmomi"
	"github.com/vmware/govmomi/find"
	"github.com/vmware/govmomi/vim25/mo"
	"github.com/vmware/govmomi/vim25/soap"
	"github.com/vmware/govmomi/vim25/types"
	"go.uber.org/zap"

	"github.com/glennswest/esxi-netinit/pkg/network"
	"github.com/glennswest/esxi-netinit/pkg/network/ipam"
	"github.com/glennswest/esxi-netinit/pkg/network/nic"
)

// networkSystem is the subset of object.HostNetworkSystem the driver uses.
type networkSystem interface {
	Reference() types.ManagedObjectReference
	Properties(ctx context.Context, r types.ManagedObjectReference, ps []string, dst interface{}) error

	AddVirtualSwitch(ctx context.Context, vswitchName string, spec *types.HostVirtualSwitchSpec) error
	RemoveVirtualSwitch(ctx context.Context, vswitchName string) error
	UpdateVirtualSwitch(ctx context.Context, vswitchName string, spec types.HostVirtualSwitchSpec) error

	AddPortGroup(ctx context.Context, portgrp types.HostPortGroupSpec) error
	RemovePortGroup(ctx context.Context, pgName string) error
	UpdatePortGroup(ctx context.Context, pgName string, portgrp types.HostPortGroupSpec) error

	AddVirtualNic(ctx context.Context, portgroup string, nic types.HostVirtualNicSpec) (string, error)
	RemoveVirtualNic(ctx context.Context, device string) error
	UpdateVirtualNic(ctx context.Context, device string, nic types.HostVirtualNicSpec) error

	UpdateIpRouteConfig(ctx context.Context, config types.BaseHostIpRouteConfig) error
	UpdateIpRouteTableConfig(ctx context.Context, config types.HostIpRouteTableConfig) error
	UpdateDnsConfig(ctx context.Context, config types.BaseHostDnsConfig) error
}

// VSphereConfig locates the host to configure.
type VSphereConfig struct {
	URL      string // e.g. https://esxi01/sdk
	User     string
	Password string
	Insecure bool
	Host     string // inventory path, empty for the only host
}

// VSphere implements network.HostDriver over the vSphere API of a host
// (or of a vCenter managing it). The host assigns VMkernel device names,
// so requested interface names are mapped to the assigned devices.
type VSphere struct {
	client *govmomi.Client
	ns     networkSystem
	log    *zap.SugaredLogger

	mu      sync.Mutex
	devices map[string]string // requested interface name -> host device
}

var (
	_ network.HostDriver = (*VSphere)(nil)
	_ nic.Source         = (*VSphere)(nil)
)

// DialVSphere connects to the vSphere endpoint and resolves the host's
// network system. Close must be called to log out.
func DialVSphere(ctx context.Context, cfg VSphereConfig, log *zap.SugaredLogger) (*VSphere, error) {
	u, err := soap.ParseURL(cfg.URL)
	if err != nil {
		return nil, errors.Annotatef(err, "parsing vsphere url %q", cfg.URL)
	}
	if u == nil {
		return nil, errors.NotValidf("empty vsphere url")
	}
	if cfg.User != "" {
		u.User = url.UserPassword(cfg.User, cfg.Password)
	}

	client, err := govmomi.NewClient(ctx, u, cfg.Insecure)
	if err != nil {
		return nil, errors.Annotatef(err, "connecting to %s", u.Host)
	}

	finder := find.NewFinder(client.Client, true)
	dc, err := finder.DefaultDatacenter(ctx)
	if err != nil {
		_ = client.Logout(ctx)
		return nil, errors.Annotate(err, "finding datacenter")
	}
	finder.SetDatacenter(dc)

	host, err := finder.HostSystemOrDefault(ctx, cfg.Host)
	if err != nil {
		_ = client.Logout(ctx)
		return nil, errors.Annotatef(err, "finding host %q", cfg.Host)
	}
	ns, err := host.ConfigManager().NetworkSystem(ctx)
	if err != nil {
		_ = client.Logout(ctx)
		return nil, errors.Annotate(err, "getting host network system")
	}

	d := newVSphere(ns, log)
	d.client = client
	d.log.Infow("connected", "endpoint", u.Host, "host", host.InventoryPath)
	return d, nil
}

func newVSphere(ns networkSystem, log *zap.SugaredLogger) *VSphere {
	return &VSphere{
		ns:      ns,
		log:     log.Named("vsphere-driver"),
		devices: make(map[string]string),
	}
}

// Close logs out of the vSphere session.
func (d *VSphere) Close(ctx context.Context) error {
	if d.client == nil {
		return nil
	}
	return d.client.Logout(ctx)
}

func (d *VSphere) Name() string { return "vsphere" }

func (d *VSphere) networkInfo(ctx context.Context) (*types.HostNetworkInfo, error) {
	var hns mo.HostNetworkSystem
	if err := d.ns.Properties(ctx, d.ns.Reference(), []string{"networkInfo"}, &hns); err != nil {
		return nil, errors.Annotate(err, "reading host network info")
	}
	if hns.NetworkInfo == nil {
		return nil, errors.NotFoundf("host network info")
	}
	return hns.NetworkInfo, nil
}

func (d *VSphere) dnsConfig(ctx context.Context) (*types.HostDnsConfig, error) {
	var hns mo.HostNetworkSystem
	if err := d.ns.Properties(ctx, d.ns.Reference(), []string{"dnsConfig"}, &hns); err != nil {
		return nil, errors.Annotate(err, "reading host dns config")
	}
	if hns.DnsConfig == nil {
		return &types.HostDnsConfig{}, nil
	}
	return hns.DnsConfig.GetHostDnsConfig(), nil
}

// ListNICs returns the host's physical NICs.
func (d *VSphere) ListNICs(ctx context.Context) ([]nic.NIC, error) {
	info, err := d.networkInfo(ctx)
	if err != nil {
		return nil, err
	}
	return nicsFromPnics(info.Pnic), nil
}

func nicsFromPnics(pnics []types.PhysicalNic) []nic.NIC {
	out := make([]nic.NIC, 0, len(pnics))
	for _, p := range pnics {
		link := "Down"
		if p.LinkSpeed != nil {
			link = "Up"
		}
		out = append(out, nic.NIC{
			Name:        p.Device,
			AdminStatus: "Up",
			LinkStatus:  link,
			MAC:         nic.NormalizeMAC(p.Mac),
		})
	}
	return out
}

// ─── Host ───────────────────────────────────────────────────────────────────

func (d *VSphere) SetHostname(ctx context.Context, fqdn string) error {
	cfg, err := d.dnsConfig(ctx)
	if err != nil {
		return err
	}
	cfg.HostName, cfg.DomainName = splitFQDN(fqdn)
	if err := d.ns.UpdateDnsConfig(ctx, cfg); err != nil {
		return errors.Annotatef(err, "setting hostname %s", fqdn)
	}
	return nil
}

func splitFQDN(fqdn string) (host, domain string) {
	host, domain, _ = strings.Cut(fqdn, ".")
	return host, domain
}

// ─── vSwitch Operations ─────────────────────────────────────────────────────

func (d *VSphere) CreateVSwitch(ctx context.Context, name string, opts network.VSwitchOpts) error {
	spec := &types.HostVirtualSwitchSpec{NumPorts: int32(opts.Ports)}
	if err := d.ns.AddVirtualSwitch(ctx, name, spec); err != nil {
		return errors.Annotatef(err, "adding vswitch %s", name)
	}
	d.log.Infow("vswitch created", "name", name)
	return nil
}

func (d *VSphere) DestroyVSwitch(ctx context.Context, name string) error {
	if err := d.ns.RemoveVirtualSwitch(ctx, name); err != nil {
		return errors.Annotatef(err, "removing vswitch %s", name)
	}
	return nil
}

// updateSwitch reads the current spec of vswitch, applies mutate and
// writes it back.
func (d *VSphere) updateSwitch(ctx context.Context, vswitch string, mutate func(*types.HostVirtualSwitchSpec)) error {
	info, err := d.networkInfo(ctx)
	if err != nil {
		return err
	}
	for _, sw := range info.Vswitch {
		if sw.Name != vswitch {
			continue
		}
		spec := sw.Spec
		mutate(&spec)
		if err := d.ns.UpdateVirtualSwitch(ctx, vswitch, spec); err != nil {
			return errors.Annotatef(err, "updating vswitch %s", vswitch)
		}
		return nil
	}
	return errors.NotFoundf("vswitch %q", vswitch)
}

func (d *VSphere) AddUplink(ctx context.Context, vswitch, uplink string) error {
	return d.updateSwitch(ctx, vswitch, func(spec *types.HostVirtualSwitchSpec) {
		addBondUplink(spec, uplink)
	})
}

func addBondUplink(spec *types.HostVirtualSwitchSpec, uplink string) {
	bond, ok := spec.Bridge.(*types.HostVirtualSwitchBondBridge)
	if !ok || bond == nil {
		bond = &types.HostVirtualSwitchBondBridge{}
	}
	for _, n := range bond.NicDevice {
		if n == uplink {
			spec.Bridge = bond
			return
		}
	}
	bond.NicDevice = append(bond.NicDevice, uplink)
	spec.Bridge = bond
}

func (d *VSphere) SetFailoverUplinks(ctx context.Context, vswitch string, active, standby []string) error {
	return d.updateSwitch(ctx, vswitch, func(spec *types.HostVirtualSwitchSpec) {
		policy := ensurePolicy(spec)
		if policy.NicTeaming == nil {
			policy.NicTeaming = &types.HostNicTeamingPolicy{}
		}
		policy.NicTeaming.NicOrder = &types.HostNicOrderPolicy{
			ActiveNic:  append([]string(nil), active...),
			StandbyNic: append([]string(nil), standby...),
		}
	})
}

func (d *VSphere) SetSecurity(ctx context.Context, vswitch string, sp network.SecurityPolicy) error {
	return d.updateSwitch(ctx, vswitch, func(spec *types.HostVirtualSwitchSpec) {
		ensurePolicy(spec).Security = securityPolicy(sp)
	})
}

func securityPolicy(sp network.SecurityPolicy) *types.HostNetworkSecurityPolicy {
	return &types.HostNetworkSecurityPolicy{
		AllowPromiscuous: types.NewBool(sp.AllowPromiscuous),
		MacChanges:       types.NewBool(sp.AllowMACChange),
		ForgedTransmits:  types.NewBool(sp.AllowForgedTransmits),
	}
}

func ensurePolicy(spec *types.HostVirtualSwitchSpec) *types.HostNetworkPolicy {
	if spec.Policy == nil {
		spec.Policy = &types.HostNetworkPolicy{}
	}
	return spec.Policy
}

func (d *VSphere) SetVSwitchSettings(ctx context.Context, vswitch string, settings network.VSwitchSettings) error {
	return d.updateSwitch(ctx, vswitch, func(spec *types.HostVirtualSwitchSpec) {
		spec.Mtu = int32(settings.MTU)
		if settings.CDPStatus == "" {
			return
		}
		bond, ok := spec.Bridge.(*types.HostVirtualSwitchBondBridge)
		if !ok || bond == nil {
			return
		}
		bond.LinkDiscoveryProtocolConfig = &types.LinkDiscoveryProtocolConfig{
			Protocol:  string(types.LinkDiscoveryProtocolConfigProtocolTypeCdp),
			Operation: settings.CDPStatus,
		}
	})
}

// ─── Portgroup Operations ───────────────────────────────────────────────────

func (d *VSphere) AddPortgroup(ctx context.Context, vswitch, portgroup string) error {
	spec := types.HostPortGroupSpec{Name: portgroup, VswitchName: vswitch}
	if err := d.ns.AddPortGroup(ctx, spec); err != nil {
		return errors.Annotatef(err, "adding portgroup %s to %s", portgroup, vswitch)
	}
	d.log.Infow("portgroup added", "portgroup", portgroup, "vswitch", vswitch)
	return nil
}

func (d *VSphere) RemovePortgroup(ctx context.Context, _ string, portgroup string) error {
	if err := d.ns.RemovePortGroup(ctx, portgroup); err != nil {
		return errors.Annotatef(err, "removing portgroup %s", portgroup)
	}
	return nil
}

func (d *VSphere) SetPortgroupVLAN(ctx context.Context, portgroup string, vlanID int) error {
	info, err := d.networkInfo(ctx)
	if err != nil {
		return err
	}
	for _, pg := range info.Portgroup {
		if pg.Spec.Name != portgroup {
			continue
		}
		spec := pg.Spec
		spec.VlanId = int32(vlanID)
		if err := d.ns.UpdatePortGroup(ctx, portgroup, spec); err != nil {
			return errors.Annotatef(err, "tagging portgroup %s", portgroup)
		}
		return nil
	}
	return errors.NotFoundf("portgroup %q", portgroup)
}

// ─── VMkernel Interfaces ────────────────────────────────────────────────────

func (d *VSphere) DeleteVMKNIC(ctx context.Context, portgroup string) error {
	info, err := d.networkInfo(ctx)
	if err != nil {
		return err
	}
	for _, vnic := range info.Vnic {
		if vnic.Portgroup != portgroup {
			continue
		}
		if err := d.ns.RemoveVirtualNic(ctx, vnic.Device); err != nil {
			return errors.Annotatef(err, "removing vmknic %s", vnic.Device)
		}
		d.log.Infow("vmknic removed", "device", vnic.Device, "portgroup", portgroup)
		return nil
	}
	return errors.NotFoundf("vmknic on portgroup %q", portgroup)
}

func (d *VSphere) AddIPInterface(ctx context.Context, spec network.IPInterfaceSpec) error {
	device, err := d.ns.AddVirtualNic(ctx, spec.Portgroup, virtualNicSpec(spec))
	if err != nil {
		return errors.Annotatef(err, "adding vmknic on %s", spec.Portgroup)
	}

	d.mu.Lock()
	d.devices[spec.Name] = device
	d.mu.Unlock()

	if device != spec.Name {
		d.log.Infow("host assigned a different device", "requested", spec.Name, "device", device)
	}
	return nil
}

func virtualNicSpec(spec network.IPInterfaceSpec) types.HostVirtualNicSpec {
	out := types.HostVirtualNicSpec{
		Ip:  &types.HostIpConfig{Dhcp: true},
		Mtu: int32(spec.MTU),
	}
	if spec.MAC != network.AutoMAC {
		out.Mac = spec.MAC
	}
	return out
}

// device maps a requested interface name to the host device.
func (d *VSphere) device(iface string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if dev, ok := d.devices[iface]; ok {
		return dev
	}
	return iface
}

func (d *VSphere) SetStaticIPv4(ctx context.Context, iface, address, netmask string) error {
	dev := d.device(iface)
	spec := types.HostVirtualNicSpec{Ip: &types.HostIpConfig{IpAddress: address, SubnetMask: netmask}}
	if err := d.ns.UpdateVirtualNic(ctx, dev, spec); err != nil {
		return errors.Annotatef(err, "setting %s on %s", address, dev)
	}
	return nil
}

func (d *VSphere) SetDHCPIPv4(ctx context.Context, iface string) error {
	dev := d.device(iface)
	spec := types.HostVirtualNicSpec{Ip: &types.HostIpConfig{Dhcp: true}}
	if err := d.ns.UpdateVirtualNic(ctx, dev, spec); err != nil {
		return errors.Annotatef(err, "enabling dhcp on %s", dev)
	}
	return nil
}

// ─── Routing and DNS ────────────────────────────────────────────────────────

func (d *VSphere) ConfigureStaticRoute(ctx context.Context, route network.StaticRoute) error {
	if route.IsDefault() {
		if err := d.ns.UpdateIpRouteConfig(ctx, &types.HostIpRouteConfig{DefaultGateway: route.Gateway}); err != nil {
			return errors.Annotatef(err, "setting default gateway %s", route.Gateway)
		}
		return nil
	}

	op, err := routeOp(route)
	if err != nil {
		return err
	}
	cfg := types.HostIpRouteTableConfig{IpRoute: []types.HostIpRouteOp{op}}
	if err := d.ns.UpdateIpRouteTableConfig(ctx, cfg); err != nil {
		return errors.Annotatef(err, "adding route to %s/%s", route.Network, route.Netmask)
	}
	return nil
}

func routeOp(route network.StaticRoute) (types.HostIpRouteOp, error) {
	prefix, err := ipam.PrefixLength(route.Netmask)
	if err != nil {
		return types.HostIpRouteOp{}, errors.Annotatef(err, "route to %s", route.Network)
	}
	return types.HostIpRouteOp{
		ChangeOperation: string(types.HostConfigChangeOperationAdd),
		Route: types.HostIpRouteEntry{
			Network:      route.Network,
			PrefixLength: int32(prefix),
			Gateway:      route.Gateway,
		},
	}, nil
}

func (d *VSphere) ConfigureDNS(ctx context.Context, servers, search []string) error {
	cfg, err := d.dnsConfig(ctx)
	if err != nil {
		return err
	}
	cfg.Dhcp = false
	cfg.Address = append([]string(nil), servers...)
	if len(search) > 0 {
		cfg.SearchDomain = append([]string(nil), search...)
	}
	if err := d.ns.UpdateDnsConfig(ctx, cfg); err != nil {
		return errors.Annotate(err, "updating dns config")
	}
	return nil
}

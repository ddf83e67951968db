package driver

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/juju/errors"
	"github.com/vmware/govmomi/vim25/mo"
	"github.com/vmware/govmomi/vim25/types"
	"go.uber.org/zap"

	"github.com/glennswest/esxi-netinit/pkg/network"
)

// fakeNetworkSystem keeps host network state in memory.
type fakeNetworkSystem struct {
	info  types.HostNetworkInfo
	dns   types.HostDnsConfig
	calls []string

	defaultGateway string
	routes         []types.HostIpRouteOp
	nextVMK        int
}

func (f *fakeNetworkSystem) Reference() types.ManagedObjectReference {
	return types.ManagedObjectReference{Type: "HostNetworkSystem", Value: "networkSystem-1"}
}

func (f *fakeNetworkSystem) Properties(_ context.Context, _ types.ManagedObjectReference, _ []string, dst interface{}) error {
	hns, ok := dst.(*mo.HostNetworkSystem)
	if !ok {
		return fmt.Errorf("unexpected destination %T", dst)
	}
	info := f.info
	dns := f.dns
	hns.NetworkInfo = &info
	hns.DnsConfig = &dns
	return nil
}

func (f *fakeNetworkSystem) AddVirtualSwitch(_ context.Context, name string, spec *types.HostVirtualSwitchSpec) error {
	f.calls = append(f.calls, "AddVirtualSwitch "+name)
	f.info.Vswitch = append(f.info.Vswitch, types.HostVirtualSwitch{Name: name, Spec: *spec})
	return nil
}

func (f *fakeNetworkSystem) RemoveVirtualSwitch(_ context.Context, name string) error {
	f.calls = append(f.calls, "RemoveVirtualSwitch "+name)
	for i, sw := range f.info.Vswitch {
		if sw.Name == name {
			f.info.Vswitch = append(f.info.Vswitch[:i], f.info.Vswitch[i+1:]...)
			return nil
		}
	}
	return errors.NotFoundf("vswitch %q", name)
}

func (f *fakeNetworkSystem) UpdateVirtualSwitch(_ context.Context, name string, spec types.HostVirtualSwitchSpec) error {
	f.calls = append(f.calls, "UpdateVirtualSwitch "+name)
	for i := range f.info.Vswitch {
		if f.info.Vswitch[i].Name == name {
			f.info.Vswitch[i].Spec = spec
			return nil
		}
	}
	return errors.NotFoundf("vswitch %q", name)
}

func (f *fakeNetworkSystem) AddPortGroup(_ context.Context, spec types.HostPortGroupSpec) error {
	f.calls = append(f.calls, "AddPortGroup "+spec.Name)
	f.info.Portgroup = append(f.info.Portgroup, types.HostPortGroup{Spec: spec})
	return nil
}

func (f *fakeNetworkSystem) RemovePortGroup(_ context.Context, name string) error {
	f.calls = append(f.calls, "RemovePortGroup "+name)
	return nil
}

func (f *fakeNetworkSystem) UpdatePortGroup(_ context.Context, name string, spec types.HostPortGroupSpec) error {
	f.calls = append(f.calls, "UpdatePortGroup "+name)
	for i := range f.info.Portgroup {
		if f.info.Portgroup[i].Spec.Name == name {
			f.info.Portgroup[i].Spec = spec
			return nil
		}
	}
	return errors.NotFoundf("portgroup %q", name)
}

func (f *fakeNetworkSystem) AddVirtualNic(_ context.Context, portgroup string, spec types.HostVirtualNicSpec) (string, error) {
	dev := fmt.Sprintf("vmk%d", f.nextVMK)
	f.nextVMK++
	f.calls = append(f.calls, "AddVirtualNic "+portgroup)
	f.info.Vnic = append(f.info.Vnic, types.HostVirtualNic{Device: dev, Portgroup: portgroup, Spec: spec})
	return dev, nil
}

func (f *fakeNetworkSystem) RemoveVirtualNic(_ context.Context, device string) error {
	f.calls = append(f.calls, "RemoveVirtualNic "+device)
	return nil
}

func (f *fakeNetworkSystem) UpdateVirtualNic(_ context.Context, device string, spec types.HostVirtualNicSpec) error {
	f.calls = append(f.calls, "UpdateVirtualNic "+device)
	for i := range f.info.Vnic {
		if f.info.Vnic[i].Device == device {
			f.info.Vnic[i].Spec.Ip = spec.Ip
			return nil
		}
	}
	return errors.NotFoundf("vmknic %q", device)
}

func (f *fakeNetworkSystem) UpdateIpRouteConfig(_ context.Context, cfg types.BaseHostIpRouteConfig) error {
	f.calls = append(f.calls, "UpdateIpRouteConfig")
	f.defaultGateway = cfg.GetHostIpRouteConfig().DefaultGateway
	return nil
}

func (f *fakeNetworkSystem) UpdateIpRouteTableConfig(_ context.Context, cfg types.HostIpRouteTableConfig) error {
	f.calls = append(f.calls, "UpdateIpRouteTableConfig")
	f.routes = append(f.routes, cfg.IpRoute...)
	return nil
}

func (f *fakeNetworkSystem) UpdateDnsConfig(_ context.Context, cfg types.BaseHostDnsConfig) error {
	f.calls = append(f.calls, "UpdateDnsConfig")
	f.dns = *cfg.GetHostDnsConfig()
	return nil
}

func newTestVSphere() (*VSphere, *fakeNetworkSystem) {
	ns := &fakeNetworkSystem{
		info: types.HostNetworkInfo{
			Pnic: []types.PhysicalNic{
				{Device: "vmnic0", Mac: "14:23:F3:F5:3A:D0", LinkSpeed: &types.PhysicalNicLinkInfo{SpeedMb: 10000, Duplex: true}},
				{Device: "vmnic1", Mac: "14:23:f3:f5:3b:d0"},
			},
		},
		dns: types.HostDnsConfig{HostName: "localhost", Address: []string{"127.0.0.1"}},
	}
	return newVSphere(ns, zap.NewNop().Sugar()), ns
}

func TestVSphereListNICs(t *testing.T) {
	d, _ := newTestVSphere()

	nics, err := d.ListNICs(context.Background())
	if err != nil {
		t.Fatalf("ListNICs: %v", err)
	}
	if len(nics) != 2 {
		t.Fatalf("expected 2 nics, got %d", len(nics))
	}
	if nics[0].MAC != "14:23:f3:f5:3a:d0" || nics[0].LinkStatus != "Up" {
		t.Errorf("unexpected first nic %+v", nics[0])
	}
	if nics[1].LinkStatus != "Down" {
		t.Errorf("expected link down for nic without speed, got %+v", nics[1])
	}
}

func TestVSphereSwitchLifecycle(t *testing.T) {
	ctx := context.Background()
	d, ns := newTestVSphere()

	if err := d.CreateVSwitch(ctx, "vSwitch22", network.VSwitchOpts{Ports: 256}); err != nil {
		t.Fatalf("CreateVSwitch: %v", err)
	}
	if err := d.AddUplink(ctx, "vSwitch22", "vmnic0"); err != nil {
		t.Fatalf("AddUplink: %v", err)
	}
	if err := d.AddUplink(ctx, "vSwitch22", "vmnic0"); err != nil {
		t.Fatalf("AddUplink twice: %v", err)
	}
	if err := d.SetFailoverUplinks(ctx, "vSwitch22", []string{"vmnic0"}, nil); err != nil {
		t.Fatalf("SetFailoverUplinks: %v", err)
	}
	if err := d.SetSecurity(ctx, "vSwitch22", network.SecurityPolicy{AllowForgedTransmits: true}); err != nil {
		t.Fatalf("SetSecurity: %v", err)
	}
	if err := d.SetVSwitchSettings(ctx, "vSwitch22", network.VSwitchSettings{MTU: 9000, CDPStatus: "listen"}); err != nil {
		t.Fatalf("SetVSwitchSettings: %v", err)
	}

	spec := ns.info.Vswitch[0].Spec
	if spec.NumPorts != 256 || spec.Mtu != 9000 {
		t.Errorf("unexpected ports/mtu %d/%d", spec.NumPorts, spec.Mtu)
	}
	bond, ok := spec.Bridge.(*types.HostVirtualSwitchBondBridge)
	if !ok {
		t.Fatalf("expected bond bridge, got %T", spec.Bridge)
	}
	if diff := cmp.Diff([]string{"vmnic0"}, bond.NicDevice); diff != "" {
		t.Errorf("uplinks mismatch (-want +got):\n%s", diff)
	}
	if bond.LinkDiscoveryProtocolConfig == nil || bond.LinkDiscoveryProtocolConfig.Operation != "listen" {
		t.Errorf("expected cdp listen, got %+v", bond.LinkDiscoveryProtocolConfig)
	}
	if diff := cmp.Diff([]string{"vmnic0"}, spec.Policy.NicTeaming.NicOrder.ActiveNic); diff != "" {
		t.Errorf("active uplinks mismatch (-want +got):\n%s", diff)
	}
	sec := spec.Policy.Security
	if !*sec.ForgedTransmits || *sec.MacChanges || *sec.AllowPromiscuous {
		t.Errorf("unexpected security policy forged=%v mac=%v promisc=%v",
			*sec.ForgedTransmits, *sec.MacChanges, *sec.AllowPromiscuous)
	}

	if err := d.DestroyVSwitch(ctx, "vSwitch22"); err != nil {
		t.Fatalf("DestroyVSwitch: %v", err)
	}
	if len(ns.info.Vswitch) != 0 {
		t.Errorf("expected switch removed, got %d", len(ns.info.Vswitch))
	}
}

func TestVSphereUpdateUnknownSwitch(t *testing.T) {
	d, _ := newTestVSphere()

	err := d.AddUplink(context.Background(), "vSwitch99", "vmnic0")
	if !errors.Is(err, errors.NotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestVSpherePortgroupVLAN(t *testing.T) {
	ctx := context.Background()
	d, ns := newTestVSphere()

	if err := d.AddPortgroup(ctx, "vSwitch22", "internal_net_vid_111"); err != nil {
		t.Fatalf("AddPortgroup: %v", err)
	}
	if err := d.SetPortgroupVLAN(ctx, "internal_net_vid_111", 111); err != nil {
		t.Fatalf("SetPortgroupVLAN: %v", err)
	}
	pg := ns.info.Portgroup[0].Spec
	if pg.VswitchName != "vSwitch22" || pg.VlanId != 111 {
		t.Errorf("unexpected portgroup %+v", pg)
	}
	if err := d.SetPortgroupVLAN(ctx, "missing", 5); !errors.Is(err, errors.NotFound) {
		t.Errorf("expected not found for missing portgroup, got %v", err)
	}
}

func TestVSphereInterfaceDeviceMapping(t *testing.T) {
	ctx := context.Background()
	d, ns := newTestVSphere()
	ns.nextVMK = 3

	spec := network.IPInterfaceSpec{Name: "vmk0", Portgroup: "mgmt", MAC: "14:23:f3:f5:3a:d0", MTU: 1500}
	if err := d.AddIPInterface(ctx, spec); err != nil {
		t.Fatalf("AddIPInterface: %v", err)
	}
	if err := d.SetStaticIPv4(ctx, "vmk0", "192.168.1.10", "255.255.255.0"); err != nil {
		t.Fatalf("SetStaticIPv4: %v", err)
	}

	want := []string{"AddVirtualNic mgmt", "UpdateVirtualNic vmk3"}
	if diff := cmp.Diff(want, ns.calls); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}
	vnic := ns.info.Vnic[0]
	if vnic.Spec.Mac != "14:23:f3:f5:3a:d0" || vnic.Spec.Mtu != 1500 {
		t.Errorf("unexpected vnic spec %+v", vnic.Spec)
	}
	if vnic.Spec.Ip.IpAddress != "192.168.1.10" || vnic.Spec.Ip.Dhcp {
		t.Errorf("unexpected ip config %+v", vnic.Spec.Ip)
	}
}

func TestVSphereAutoMACLeftToHost(t *testing.T) {
	got := virtualNicSpec(network.IPInterfaceSpec{Name: "vmk1", Portgroup: "pg", MAC: network.AutoMAC, MTU: 9000})
	if got.Mac != "" {
		t.Errorf("expected empty mac for auto, got %q", got.Mac)
	}
	if got.Mtu != 9000 {
		t.Errorf("expected mtu 9000, got %d", got.Mtu)
	}
}

func TestVSphereDeleteVMKNIC(t *testing.T) {
	ctx := context.Background()
	d, ns := newTestVSphere()
	ns.info.Vnic = []types.HostVirtualNic{{Device: "vmk0", Portgroup: "Management Network"}}

	if err := d.DeleteVMKNIC(ctx, "Management Network"); err != nil {
		t.Fatalf("DeleteVMKNIC: %v", err)
	}
	if diff := cmp.Diff([]string{"RemoveVirtualNic vmk0"}, ns.calls); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}
	if err := d.DeleteVMKNIC(ctx, "other"); !errors.Is(err, errors.NotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestVSphereRoutes(t *testing.T) {
	ctx := context.Background()
	d, ns := newTestVSphere()

	if err := d.ConfigureStaticRoute(ctx, network.StaticRoute{Gateway: "192.168.1.1", Network: network.DefaultRouteNetwork}); err != nil {
		t.Fatalf("default route: %v", err)
	}
	if ns.defaultGateway != "192.168.1.1" {
		t.Errorf("expected default gateway 192.168.1.1, got %q", ns.defaultGateway)
	}

	route := network.StaticRoute{Gateway: "10.1.11.1", Network: "10.99.0.0", Netmask: "255.255.0.0"}
	if err := d.ConfigureStaticRoute(ctx, route); err != nil {
		t.Fatalf("static route: %v", err)
	}
	want := []types.HostIpRouteOp{{
		ChangeOperation: "add",
		Route:           types.HostIpRouteEntry{Network: "10.99.0.0", PrefixLength: 16, Gateway: "10.1.11.1"},
	}}
	if diff := cmp.Diff(want, ns.routes); diff != "" {
		t.Errorf("routes mismatch (-want +got):\n%s", diff)
	}

	bad := network.StaticRoute{Gateway: "10.1.11.1", Network: "10.99.0.0", Netmask: "255.0.255.0"}
	if err := d.ConfigureStaticRoute(ctx, bad); err == nil {
		t.Error("expected error for non-contiguous netmask")
	}
}

func TestVSphereDNSAndHostname(t *testing.T) {
	ctx := context.Background()
	d, ns := newTestVSphere()

	if err := d.ConfigureDNS(ctx, []string{"10.0.0.2", "10.0.0.3"}, []string{"example.com"}); err != nil {
		t.Fatalf("ConfigureDNS: %v", err)
	}
	if err := d.SetHostname(ctx, "test.novalocal"); err != nil {
		t.Fatalf("SetHostname: %v", err)
	}

	if ns.dns.HostName != "test" || ns.dns.DomainName != "novalocal" {
		t.Errorf("unexpected hostname %q domain %q", ns.dns.HostName, ns.dns.DomainName)
	}
	if diff := cmp.Diff([]string{"10.0.0.2", "10.0.0.3"}, ns.dns.Address); diff != "" {
		t.Errorf("dns servers mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"example.com"}, ns.dns.SearchDomain); diff != "" {
		t.Errorf("search domains mismatch (-want +got):\n%s", diff)
	}
}

func TestSplitFQDN(t *testing.T) {
	tests := []struct {
		fqdn, host, domain string
	}{
		{"test.novalocal", "test", "novalocal"},
		{"esx01.lab.example.com", "esx01", "lab.example.com"},
		{"standalone", "standalone", ""},
	}
	for _, tt := range tests {
		host, domain := splitFQDN(tt.fqdn)
		if host != tt.host || domain != tt.domain {
			t.Errorf("splitFQDN(%q) = %q, %q; want %q, %q", tt.fqdn, host, domain, tt.host, tt.domain)
		}
	}
}

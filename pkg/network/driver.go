package network

import (
	"context"
)

// HostDriver abstracts the host configuration surface of an ESXi host
// (esxcli commands, the vSphere API, or a recorder). The Manager calls these
// methods instead of talking to a specific backend directly.
//
// Every call either applies the change or fails; drivers never retry and
// never roll back.
type HostDriver interface {
	// Host identity
	SetHostname(ctx context.Context, fqdn string) error

	// Standard vSwitch operations
	CreateVSwitch(ctx context.Context, name string, opts VSwitchOpts) error
	DestroyVSwitch(ctx context.Context, name string) error
	AddUplink(ctx context.Context, vswitch, nic string) error
	SetFailoverUplinks(ctx context.Context, vswitch string, active, standby []string) error
	SetSecurity(ctx context.Context, vswitch string, policy SecurityPolicy) error
	SetVSwitchSettings(ctx context.Context, vswitch string, settings VSwitchSettings) error

	// Portgroup operations
	AddPortgroup(ctx context.Context, vswitch, portgroup string) error
	RemovePortgroup(ctx context.Context, vswitch, portgroup string) error
	SetPortgroupVLAN(ctx context.Context, portgroup string, vlanID int) error

	// VMkernel interface operations
	DeleteVMKNIC(ctx context.Context, portgroup string) error
	AddIPInterface(ctx context.Context, spec IPInterfaceSpec) error
	SetStaticIPv4(ctx context.Context, iface, address, netmask string) error
	SetDHCPIPv4(ctx context.Context, iface string) error

	// Routing and name resolution
	ConfigureStaticRoute(ctx context.Context, route StaticRoute) error
	ConfigureDNS(ctx context.Context, servers, search []string) error

	// Introspection
	Name() string
}

// AutoMAC asks the host to assign the interface hardware address.
const AutoMAC = "auto"

// DefaultRouteNetwork is the StaticRoute.Network value for the default route.
const DefaultRouteNetwork = "default"

// VSwitchOpts are options for CreateVSwitch.
type VSwitchOpts struct {
	Ports int // 0 = driver default
}

// VSwitchSettings are applied to an existing vSwitch.
type VSwitchSettings struct {
	MTU       int
	CDPStatus string // "down", "listen", "advertise" or "both"
}

// SecurityPolicy is a vSwitch layer-2 security policy.
type SecurityPolicy struct {
	AllowForgedTransmits bool
	AllowMACChange       bool
	AllowPromiscuous     bool
}

// IPInterfaceSpec describes a VMkernel interface to create.
type IPInterfaceSpec struct {
	Name      string // e.g. "vmk0"
	Portgroup string
	MAC       string // AutoMAC or lowercase colon hex
	MTU       int
}

// StaticRoute is an IPv4 route as declared in the topology. Network is
// DefaultRouteNetwork for the default route, in which case Netmask is empty.
type StaticRoute struct {
	Gateway string `json:"gateway" yaml:"gateway"`
	Network string `json:"network" yaml:"network"`
	Netmask string `json:"netmask,omitempty" yaml:"netmask,omitempty"`
}

// IsDefault reports whether r is the default route.
func (r StaticRoute) IsDefault() bool {
	return r.Network == DefaultRouteNetwork
}

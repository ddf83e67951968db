package topology

import "github.com/glennswest/esxi-netinit/pkg/network/ipam"

// LinkKind is the OpenStack link "type" field.
type LinkKind string

const (
	KindPhysical        LinkKind = "phy"
	KindVLAN            LinkKind = "vlan"
	KindVIF             LinkKind = "vif"
	KindVirtualFunction LinkKind = "hw_veb"
)

// Network address assignment modes, spelled as in network_data.json.
const (
	TypeStaticIPv4 = "ipv4"
	TypeDHCPIPv4   = "ipv4_dhcp"
)

// ServiceDNS is the service type carrying a DNS server address.
const ServiceDNS = "dns"

// Link is a network attachment point: a physical NIC, a VLAN sub-interface
// or a virtual function.
type Link struct {
	ID      string
	MAC     string
	MTU     int
	Kind    LinkKind
	VIFID   string
	VLANID  int    // 0 when untagged
	VLANMAC string // optional
	Parent  *Link  // set only for KindVLAN, exactly one level deep
}

// IsVLAN reports whether traffic for this link is carried by its parent.
func (l *Link) IsVLAN() bool {
	return l.Kind == KindVLAN
}

// Route is a static route attached to a network.
type Route struct {
	Gateway string `json:"gateway" yaml:"gateway"`
	Network string `json:"network" yaml:"network"`
	Netmask string `json:"netmask" yaml:"netmask"`
}

// IsDefault reports whether the route matches every IPv4 destination.
func (r Route) IsDefault() bool {
	return ipam.IsUnspecified(r.Network) && ipam.IsUnspecified(r.Netmask)
}

// Network is a logical IP configuration bound to one Link.
type Network struct {
	ID        string
	Type      string // TypeStaticIPv4 or TypeDHCPIPv4
	Address   string
	Netmask   string
	NetworkID string // operator-facing, opaque
	Link      *Link
	Routes    []Route
}

// DefaultRoutes returns the default routes of n in declaration order.
func (n *Network) DefaultRoutes() []Route {
	var out []Route
	for _, r := range n.Routes {
		if r.IsDefault() {
			out = append(out, r)
		}
	}
	return out
}

// Service is an auxiliary service declaration. Only DNS is consumed.
type Service struct {
	Type    string
	Address string
}

// Metadata is the host identity record from meta_data.json.
type Metadata struct {
	UUID             string
	Hostname         string
	AdminPass        string
	ProjectID        string
	RandomSeed       string
	LaunchIndex      int
	AvailabilityZone string
	Meta             map[string]string
	PublicKeys       map[string]string
	Devices          []map[string]any
	DedicatedCPUs    []int
}

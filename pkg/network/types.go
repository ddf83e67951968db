package network

import (
	"fmt"
	"sort"
	"strings"
)

// Op names a host gateway operation.
type Op string

const (
	OpSetHostname          Op = "set_hostname"
	OpCreateVSwitch        Op = "create_vswitch"
	OpDestroyVSwitch       Op = "destroy_vswitch"
	OpAddUplink            Op = "uplink_add"
	OpSetFailoverUplinks   Op = "vswitch_failover_uplinks"
	OpSetSecurity          Op = "vswitch_security"
	OpSetVSwitchSettings   Op = "vswitch_settings"
	OpAddPortgroup         Op = "portgroup_add"
	OpRemovePortgroup      Op = "portgroup_remove"
	OpSetPortgroupVLAN     Op = "portgroup_set_vlan"
	OpDeleteVMKNIC         Op = "delete_vmknic"
	OpAddIPInterface       Op = "add_ip_interface"
	OpSetStaticIPv4        Op = "set_static_ipv4"
	OpSetDHCPIPv4          Op = "set_dhcp_ipv4"
	OpConfigureStaticRoute Op = "configure_static_route"
	OpConfigureDNS         Op = "configure_dns"
)

// Action is one host gateway call, as journaled by the Manager and the
// Recorder.
type Action struct {
	Op     Op                `json:"op" yaml:"op"`
	Target string            `json:"target,omitempty" yaml:"target,omitempty"` // switch, portgroup, interface or host name
	Params map[string]string `json:"params,omitempty" yaml:"params,omitempty"`
}

func (a Action) String() string {
	var b strings.Builder
	b.WriteString(string(a.Op))
	if a.Target != "" {
		fmt.Fprintf(&b, " %s", a.Target)
	}
	keys := make([]string, 0, len(a.Params))
	for k := range a.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%s", k, a.Params[k])
	}
	return b.String()
}

// SwitchAllocation records a vSwitch created for a set of uplinks.
type SwitchAllocation struct {
	Name       string   `json:"name" yaml:"name"`
	Uplinks    []string `json:"uplinks" yaml:"uplinks"`
	Portgroups []string `json:"portgroups,omitempty" yaml:"portgroups,omitempty"`
}

// InterfaceOpts override the names ConfigureInterface would derive.
type InterfaceOpts struct {
	Switch    string
	Portgroup string
}

// InterfaceResult describes the VMkernel interface created for one network.
type InterfaceResult struct {
	Network   string `json:"network" yaml:"network"`
	Interface string `json:"interface" yaml:"interface"`
	Switch    string `json:"switch" yaml:"switch"`
	Portgroup string `json:"portgroup" yaml:"portgroup"`
	MAC       string `json:"mac" yaml:"mac"`
	Mode      string `json:"mode" yaml:"mode"`
	Address   string `json:"address,omitempty" yaml:"address,omitempty"`
}

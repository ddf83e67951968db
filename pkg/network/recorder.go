package network

import (
	"context"
	"strconv"
	"strings"
	"sync"
)

// Recorder is a HostDriver that journals every call as an Action and
// forwards it to an inner driver. With a nil inner driver nothing is
// applied, which makes it a lossless dry run for any backend.
//
// A call is journaled before it is forwarded, so a failing call is the last
// entry of the journal.
type Recorder struct {
	inner HostDriver

	mu      sync.Mutex
	actions []Action
}

var _ HostDriver = (*Recorder)(nil)

// NewRecorder returns a Recorder forwarding to inner, which may be nil.
func NewRecorder(inner HostDriver) *Recorder {
	return &Recorder{inner: inner}
}

// Actions returns a copy of the journal.
func (r *Recorder) Actions() []Action {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Action, len(r.actions))
	copy(out, r.actions)
	return out
}

// Len returns the number of journaled actions.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.actions)
}

// Since returns the actions journaled after the first n.
func (r *Recorder) Since(n int) []Action {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n >= len(r.actions) {
		return nil
	}
	out := make([]Action, len(r.actions)-n)
	copy(out, r.actions[n:])
	return out
}

func (r *Recorder) record(a Action) {
	r.mu.Lock()
	r.actions = append(r.actions, a)
	r.mu.Unlock()
}

func (r *Recorder) Name() string {
	if r.inner == nil {
		return "recorder"
	}
	return r.inner.Name()
}

// ─── Host ───────────────────────────────────────────────────────────────────

func (r *Recorder) SetHostname(ctx context.Context, fqdn string) error {
	r.record(Action{Op: OpSetHostname, Target: fqdn})
	if r.inner == nil {
		return nil
	}
	return r.inner.SetHostname(ctx, fqdn)
}

// ─── vSwitch ────────────────────────────────────────────────────────────────

func (r *Recorder) CreateVSwitch(ctx context.Context, name string, opts VSwitchOpts) error {
	a := Action{Op: OpCreateVSwitch, Target: name}
	if opts.Ports > 0 {
		a.Params = map[string]string{"ports": strconv.Itoa(opts.Ports)}
	}
	r.record(a)
	if r.inner == nil {
		return nil
	}
	return r.inner.CreateVSwitch(ctx, name, opts)
}

func (r *Recorder) DestroyVSwitch(ctx context.Context, name string) error {
	r.record(Action{Op: OpDestroyVSwitch, Target: name})
	if r.inner == nil {
		return nil
	}
	return r.inner.DestroyVSwitch(ctx, name)
}

func (r *Recorder) AddUplink(ctx context.Context, vswitch, nic string) error {
	r.record(Action{Op: OpAddUplink, Target: vswitch, Params: map[string]string{"uplink": nic}})
	if r.inner == nil {
		return nil
	}
	return r.inner.AddUplink(ctx, vswitch, nic)
}

func (r *Recorder) SetFailoverUplinks(ctx context.Context, vswitch string, active, standby []string) error {
	params := map[string]string{"active": strings.Join(active, ",")}
	if len(standby) > 0 {
		params["standby"] = strings.Join(standby, ",")
	}
	r.record(Action{Op: OpSetFailoverUplinks, Target: vswitch, Params: params})
	if r.inner == nil {
		return nil
	}
	return r.inner.SetFailoverUplinks(ctx, vswitch, active, standby)
}

func (r *Recorder) SetSecurity(ctx context.Context, vswitch string, policy SecurityPolicy) error {
	r.record(Action{Op: OpSetSecurity, Target: vswitch, Params: map[string]string{
		"forgedTransmits": strconv.FormatBool(policy.AllowForgedTransmits),
		"macChange":       strconv.FormatBool(policy.AllowMACChange),
		"promiscuous":     strconv.FormatBool(policy.AllowPromiscuous),
	}})
	if r.inner == nil {
		return nil
	}
	return r.inner.SetSecurity(ctx, vswitch, policy)
}

func (r *Recorder) SetVSwitchSettings(ctx context.Context, vswitch string, settings VSwitchSettings) error {
	r.record(Action{Op: OpSetVSwitchSettings, Target: vswitch, Params: map[string]string{
		"mtu": strconv.Itoa(settings.MTU),
		"cdp": settings.CDPStatus,
	}})
	if r.inner == nil {
		return nil
	}
	return r.inner.SetVSwitchSettings(ctx, vswitch, settings)
}

// ─── Portgroups ─────────────────────────────────────────────────────────────

func (r *Recorder) AddPortgroup(ctx context.Context, vswitch, portgroup string) error {
	r.record(Action{Op: OpAddPortgroup, Target: portgroup, Params: map[string]string{"vswitch": vswitch}})
	if r.inner == nil {
		return nil
	}
	return r.inner.AddPortgroup(ctx, vswitch, portgroup)
}

func (r *Recorder) RemovePortgroup(ctx context.Context, vswitch, portgroup string) error {
	r.record(Action{Op: OpRemovePortgroup, Target: portgroup, Params: map[string]string{"vswitch": vswitch}})
	if r.inner == nil {
		return nil
	}
	return r.inner.RemovePortgroup(ctx, vswitch, portgroup)
}

func (r *Recorder) SetPortgroupVLAN(ctx context.Context, portgroup string, vlanID int) error {
	r.record(Action{Op: OpSetPortgroupVLAN, Target: portgroup, Params: map[string]string{"vlan": strconv.Itoa(vlanID)}})
	if r.inner == nil {
		return nil
	}
	return r.inner.SetPortgroupVLAN(ctx, portgroup, vlanID)
}

// ─── VMkernel interfaces ────────────────────────────────────────────────────

func (r *Recorder) DeleteVMKNIC(ctx context.Context, portgroup string) error {
	r.record(Action{Op: OpDeleteVMKNIC, Target: portgroup})
	if r.inner == nil {
		return nil
	}
	return r.inner.DeleteVMKNIC(ctx, portgroup)
}

func (r *Recorder) AddIPInterface(ctx context.Context, spec IPInterfaceSpec) error {
	r.record(Action{Op: OpAddIPInterface, Target: spec.Name, Params: map[string]string{
		"portgroup": spec.Portgroup,
		"mac":       spec.MAC,
		"mtu":       strconv.Itoa(spec.MTU),
	}})
	if r.inner == nil {
		return nil
	}
	return r.inner.AddIPInterface(ctx, spec)
}

func (r *Recorder) SetStaticIPv4(ctx context.Context, iface, address, netmask string) error {
	r.record(Action{Op: OpSetStaticIPv4, Target: iface, Params: map[string]string{
		"address": address,
		"netmask": netmask,
	}})
	if r.inner == nil {
		return nil
	}
	return r.inner.SetStaticIPv4(ctx, iface, address, netmask)
}

func (r *Recorder) SetDHCPIPv4(ctx context.Context, iface string) error {
	r.record(Action{Op: OpSetDHCPIPv4, Target: iface})
	if r.inner == nil {
		return nil
	}
	return r.inner.SetDHCPIPv4(ctx, iface)
}

// ─── Routing and DNS ────────────────────────────────────────────────────────

func (r *Recorder) ConfigureStaticRoute(ctx context.Context, route StaticRoute) error {
	params := map[string]string{"gateway": route.Gateway}
	if route.Netmask != "" {
		params["netmask"] = route.Netmask
	}
	r.record(Action{Op: OpConfigureStaticRoute, Target: route.Network, Params: params})
	if r.inner == nil {
		return nil
	}
	return r.inner.ConfigureStaticRoute(ctx, route)
}

func (r *Recorder) ConfigureDNS(ctx context.Context, servers, search []string) error {
	params := map[string]string{"servers": strings.Join(servers, ",")}
	if len(search) > 0 {
		params["search"] = strings.Join(search, ",")
	}
	r.record(Action{Op: OpConfigureDNS, Params: params})
	if r.inner == nil {
		return nil
	}
	return r.inner.ConfigureDNS(ctx, servers, search)
}

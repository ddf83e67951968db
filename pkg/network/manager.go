package network

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/juju/errors"
	"go.uber.org/zap"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/glennswest/esxi-netinit/pkg/network/nic"
	"github.com/glennswest/esxi-netinit/pkg/network/topology"
)

// Names left behind by the ESXi installer, and the portgroup the
// management interface moves to.
const (
	InstallerPortgroup  = "Management Network"
	InstallerSwitch     = "vSwitch0"
	ManagementPortgroup = "mgmt"
)

// DefaultMTU is used when a link does not declare one.
const DefaultMTU = 1500

// vlanPortgroupPrefix names portgroups derived from a VLAN tag.
const vlanPortgroupPrefix = "internal_net_vid_"

// Config tunes how the Manager names and sizes what it creates.
type Config struct {
	SwitchPrefix string   // auto-named switches are <prefix><n>
	SwitchBase   int      // first n
	SwitchPorts  int      // ports per new vSwitch, 0 = host default
	CDPStatus    string   // CDP mode applied with the switch MTU
	DNSSearch    []string // search domains sent with the DNS servers
}

// DefaultConfig returns the naming used on freshly installed hosts.
func DefaultConfig() Config {
	return Config{
		SwitchPrefix: "vSwitch",
		SwitchBase:   22,
		SwitchPorts:  256,
		CDPStatus:    "listen",
	}
}

// Manager plans and applies the network configuration of one host for one
// run. It owns the uplink-set to switch table; the table only grows and is
// discarded with the Manager.
type Manager struct {
	cfg     Config
	model   *topology.Model
	uplinks *Resolver
	drv     *Recorder
	log     *zap.SugaredLogger

	mu         sync.Mutex
	switches   map[string]*SwitchAllocation // canonical uplink set -> switch
	order      []string                     // keys of switches in creation order
	taken      sets.Set[string]             // switch names allocated this run
	portgroups map[string]string            // portgroup -> owning switch, host-wide
	nextSwitch int
	nextVMK    int
	interfaces []InterfaceResult
}

// NewManager returns a Manager applying model to the host behind drv. Every
// gateway call is journaled.
func NewManager(model *topology.Model, inv *nic.Inventory, drv HostDriver, cfg Config, log *zap.SugaredLogger) *Manager {
	if cfg.SwitchPrefix == "" {
		cfg.SwitchPrefix = DefaultConfig().SwitchPrefix
	}
	if cfg.CDPStatus == "" {
		cfg.CDPStatus = DefaultConfig().CDPStatus
	}
	return &Manager{
		cfg:        cfg,
		model:      model,
		uplinks:    NewResolver(inv),
		drv:        NewRecorder(drv),
		log:        log.Named("planner"),
		switches:   make(map[string]*SwitchAllocation),
		taken:      sets.New[string](),
		portgroups: make(map[string]string),
		nextSwitch: cfg.SwitchBase,
	}
}

// Actions returns every gateway call issued so far, in order.
func (m *Manager) Actions() []Action {
	return m.drv.Actions()
}

// Switches returns the switches created so far, in creation order.
func (m *Manager) Switches() []SwitchAllocation {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]SwitchAllocation, 0, len(m.order))
	for _, key := range m.order {
		a := m.switches[key]
		out = append(out, SwitchAllocation{
			Name:       a.Name,
			Uplinks:    append([]string(nil), a.Uplinks...),
			Portgroups: append([]string(nil), a.Portgroups...),
		})
	}
	return out
}

// Interfaces returns the VMkernel interfaces created so far.
func (m *Manager) Interfaces() []InterfaceResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]InterfaceResult, len(m.interfaces))
	copy(out, m.interfaces)
	return out
}

// ─── Interfaces ─────────────────────────────────────────────────────────────

// ConfigureInterface attaches n to the host: it finds or creates the
// vSwitch for n's uplinks, creates the portgroup, the VMkernel interface
// and its addressing. It returns the gateway calls it issued.
//
// Networks whose uplink sets are equal share one vSwitch. The first
// failing gateway call aborts; nothing already applied is undone.
func (m *Manager) ConfigureInterface(ctx context.Context, n *topology.Network, opts InterfaceOpts) ([]Action, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	start := m.drv.Len()

	uplinks, err := m.uplinks.ResolveUplinks(ctx, n)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(uplinks))
	for _, u := range uplinks {
		names = append(names, u.Name)
	}
	uplinkSet := sets.List(sets.New(names...))
	key := strings.Join(uplinkSet, ",")

	mtu := n.Link.MTU
	if mtu == 0 {
		mtu = DefaultMTU
	}

	pg := opts.Portgroup
	if pg == "" {
		pg = portgroupName(n.Link)
	}

	alloc, seen := m.switches[key]
	// Portgroup names are unique per host, not per switch.
	owner, owned := m.portgroups[pg]
	if owned && (!seen || owner != alloc.Name) {
		return nil, fmt.Errorf("%w: portgroup %q already exists on %s, network %q is on uplinks %s",
			topology.ErrConfiguration, pg, owner, n.ID, key)
	}
	if !seen {
		name, err := m.switchName(opts.Switch, key)
		if err != nil {
			return nil, err
		}
		if err := m.createSwitch(ctx, name, uplinkSet, mtu); err != nil {
			return nil, err
		}
		alloc = &SwitchAllocation{Name: name, Uplinks: uplinkSet}
		m.switches[key] = alloc
		m.order = append(m.order, key)
		m.taken.Insert(name)
	} else if opts.Switch != "" && opts.Switch != alloc.Name {
		m.log.Warnw("uplinks already bound to another switch, reusing it",
			"network", n.ID, "requested", opts.Switch, "switch", alloc.Name, "uplinks", key)
	}

	if owned {
		m.log.Debugw("portgroup already created", "portgroup", pg, "switch", alloc.Name)
	} else {
		if err := m.drv.AddPortgroup(ctx, alloc.Name, pg); err != nil {
			return nil, fmt.Errorf("adding portgroup %s to %s: %w", pg, alloc.Name, err)
		}
		if n.Link.IsVLAN() {
			if err := m.drv.SetPortgroupVLAN(ctx, pg, n.Link.VLANID); err != nil {
				return nil, fmt.Errorf("tagging portgroup %s with vlan %d: %w", pg, n.Link.VLANID, err)
			}
		}
		m.portgroups[pg] = alloc.Name
		alloc.Portgroups = append(alloc.Portgroups, pg)
	}

	iface := fmt.Sprintf("vmk%d", m.nextVMK)
	m.nextVMK++

	mac := AutoMAC
	if !n.Link.IsVLAN() {
		mac = strings.ToLower(n.Link.MAC)
	}

	m.log.Infow("creating ip interface",
		"network", n.ID, "networkID", n.NetworkID, "interface", iface, "portgroup", pg, "mac", mac)
	spec := IPInterfaceSpec{Name: iface, Portgroup: pg, MAC: mac, MTU: mtu}
	if err := m.drv.AddIPInterface(ctx, spec); err != nil {
		return nil, fmt.Errorf("adding ip interface %s: %w", iface, err)
	}

	result := InterfaceResult{
		Network:   n.ID,
		Interface: iface,
		Switch:    alloc.Name,
		Portgroup: pg,
		MAC:       mac,
		Mode:      n.Type,
	}

	switch n.Type {
	case topology.TypeStaticIPv4:
		if err := m.drv.SetStaticIPv4(ctx, iface, n.Address, n.Netmask); err != nil {
			return nil, fmt.Errorf("setting static ipv4 on %s: %w", iface, err)
		}
		result.Address = n.Address
	case topology.TypeDHCPIPv4:
		if err := m.drv.SetDHCPIPv4(ctx, iface); err != nil {
			return nil, fmt.Errorf("setting dhcp on %s: %w", iface, err)
		}
	default:
		return nil, errors.NotSupportedf("network %q address mode %q", n.ID, n.Type)
	}

	m.interfaces = append(m.interfaces, result)
	return m.drv.Since(start), nil
}

// switchName returns the name for a new switch. Must be called with m.mu
// held.
func (m *Manager) switchName(explicit, key string) (string, error) {
	if explicit != "" {
		if m.taken.Has(explicit) {
			return "", fmt.Errorf("%w: switch %q already serves other uplinks than %s",
				topology.ErrConfiguration, explicit, key)
		}
		return explicit, nil
	}
	for {
		name := fmt.Sprintf("%s%d", m.cfg.SwitchPrefix, m.nextSwitch)
		m.nextSwitch++
		if !m.taken.Has(name) {
			return name, nil
		}
	}
}

func (m *Manager) createSwitch(ctx context.Context, name string, uplinks []string, mtu int) error {
	m.log.Infow("creating vswitch", "switch", name, "uplinks", uplinks, "mtu", mtu)

	if err := m.drv.CreateVSwitch(ctx, name, VSwitchOpts{Ports: m.cfg.SwitchPorts}); err != nil {
		return fmt.Errorf("creating vswitch %s: %w", name, err)
	}
	for _, u := range uplinks {
		if err := m.drv.AddUplink(ctx, name, u); err != nil {
			return fmt.Errorf("adding uplink %s to %s: %w", u, name, err)
		}
	}
	if err := m.drv.SetFailoverUplinks(ctx, name, uplinks, nil); err != nil {
		return fmt.Errorf("setting failover uplinks on %s: %w", name, err)
	}
	if err := m.drv.SetSecurity(ctx, name, SecurityPolicy{}); err != nil {
		return fmt.Errorf("setting security policy on %s: %w", name, err)
	}
	if err := m.drv.SetVSwitchSettings(ctx, name, VSwitchSettings{MTU: mtu, CDPStatus: m.cfg.CDPStatus}); err != nil {
		return fmt.Errorf("setting mtu on %s: %w", name, err)
	}
	return nil
}

func portgroupName(l *topology.Link) string {
	if l.IsVLAN() {
		return fmt.Sprintf("%s%d", vlanPortgroupPrefix, l.VLANID)
	}
	return l.ID
}

// ─── Routes, DNS, hostname ──────────────────────────────────────────────────

// ConfigureDefaultRoute installs the model's default route. It fails with
// errors.NotFound when the model has none.
func (m *Manager) ConfigureDefaultRoute(ctx context.Context) error {
	r, err := m.model.DefaultRoute()
	if err != nil {
		return err
	}
	m.log.Infow("configuring default route", "gateway", r.Gateway)
	if err := m.drv.ConfigureStaticRoute(ctx, StaticRoute{Gateway: r.Gateway, Network: DefaultRouteNetwork}); err != nil {
		return fmt.Errorf("configuring default route via %s: %w", r.Gateway, err)
	}
	return nil
}

// ConfigureStaticRoutes installs every non-default route, network by
// network, in declaration order.
func (m *Manager) ConfigureStaticRoutes(ctx context.Context) error {
	for _, n := range m.model.Networks() {
		for _, r := range n.Routes {
			if r.IsDefault() {
				continue
			}
			m.log.Infow("configuring static route",
				"network", n.ID, "destination", r.Network, "netmask", r.Netmask, "gateway", r.Gateway)
			route := StaticRoute{Gateway: r.Gateway, Network: r.Network, Netmask: r.Netmask}
			if err := m.drv.ConfigureStaticRoute(ctx, route); err != nil {
				return fmt.Errorf("configuring route %s/%s via %s: %w", r.Network, r.Netmask, r.Gateway, err)
			}
		}
	}
	return nil
}

// ConfigureRequestedDNS sends all declared DNS servers in one call. It does
// nothing when none are declared.
func (m *Manager) ConfigureRequestedDNS(ctx context.Context) error {
	servers := m.model.DNSServers()
	if len(servers) == 0 {
		m.log.Debug("no dns servers requested")
		return nil
	}
	m.log.Infow("configuring dns", "servers", servers, "search", m.cfg.DNSSearch)
	if err := m.drv.ConfigureDNS(ctx, servers, m.cfg.DNSSearch); err != nil {
		return fmt.Errorf("configuring dns: %w", err)
	}
	return nil
}

// ConfigureHostname sets the host name from the metadata.
func (m *Manager) ConfigureHostname(ctx context.Context) error {
	hostname := m.model.Metadata().Hostname
	m.log.Infow("configuring hostname", "hostname", hostname)
	if err := m.drv.SetHostname(ctx, hostname); err != nil {
		return fmt.Errorf("setting hostname %s: %w", hostname, err)
	}
	return nil
}

// CleanDefaultNetworkSetup removes the vmknic, portgroup and switch the
// installer created, in that order.
func (m *Manager) CleanDefaultNetworkSetup(ctx context.Context, portgroup, vswitch string) error {
	m.log.Infow("removing installer network setup", "portgroup", portgroup, "switch", vswitch)
	if err := m.drv.DeleteVMKNIC(ctx, portgroup); err != nil {
		return fmt.Errorf("deleting vmknic on %s: %w", portgroup, err)
	}
	if err := m.drv.RemovePortgroup(ctx, vswitch, portgroup); err != nil {
		return fmt.Errorf("removing portgroup %s from %s: %w", portgroup, vswitch, err)
	}
	if err := m.drv.DestroyVSwitch(ctx, vswitch); err != nil {
		return fmt.Errorf("destroying vswitch %s: %w", vswitch, err)
	}
	return nil
}

// ─── Run ────────────────────────────────────────────────────────────────────

// RunOpts controls a full configuration run.
type RunOpts struct {
	SkipClean           bool
	InstallerPortgroup  string // default InstallerPortgroup
	InstallerSwitch     string // default InstallerSwitch
	ManagementSwitch    string // default auto-named
	ManagementPortgroup string // default ManagementPortgroup
}

// Run applies the whole model: it removes the installer setup, configures
// the management network and then every other network, the routes, DNS and
// the hostname. The first failure aborts the run.
func (m *Manager) Run(ctx context.Context, opts RunOpts) error {
	if opts.InstallerPortgroup == "" {
		opts.InstallerPortgroup = InstallerPortgroup
	}
	if opts.InstallerSwitch == "" {
		opts.InstallerSwitch = InstallerSwitch
	}
	if opts.ManagementPortgroup == "" {
		opts.ManagementPortgroup = ManagementPortgroup
	}

	m.log.Infow("starting network configuration", "driver", m.drv.Name())

	if !opts.SkipClean {
		if err := m.CleanDefaultNetworkSetup(ctx, opts.InstallerPortgroup, opts.InstallerSwitch); err != nil {
			return err
		}
	}

	mgmt, err := m.model.ManagementNetwork()
	if err != nil {
		return err
	}
	mgmtOpts := InterfaceOpts{Switch: opts.ManagementSwitch, Portgroup: opts.ManagementPortgroup}
	if _, err := m.ConfigureInterface(ctx, mgmt, mgmtOpts); err != nil {
		return fmt.Errorf("configuring management network %s: %w", mgmt.ID, err)
	}

	others, err := m.model.OtherNetworks()
	if err != nil {
		return err
	}
	for _, n := range others {
		if _, err := m.ConfigureInterface(ctx, n, InterfaceOpts{}); err != nil {
			return fmt.Errorf("configuring network %s: %w", n.ID, err)
		}
	}

	if err := m.ConfigureDefaultRoute(ctx); errors.Is(err, errors.NotFound) {
		m.log.Warnw("no default route declared, skipping", "error", err)
	} else if err != nil {
		return err
	}
	if err := m.ConfigureStaticRoutes(ctx); err != nil {
		return err
	}
	if err := m.ConfigureRequestedDNS(ctx); err != nil {
		return err
	}
	if err := m.ConfigureHostname(ctx); err != nil {
		return err
	}

	m.log.Infow("network configuration complete",
		"switches", len(m.Switches()), "interfaces", len(m.Interfaces()), "actions", m.drv.Len())
	return nil
}

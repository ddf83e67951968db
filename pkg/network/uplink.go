package network

import (
	"context"
	"fmt"

	"github.com/juju/errors"

	"github.com/glennswest/esxi-netinit/pkg/network/nic"
	"github.com/glennswest/esxi-netinit/pkg/network/topology"
)

// Resolver maps a network to the physical NICs that carry its traffic.
type Resolver struct {
	inv *nic.Inventory
}

// NewResolver returns a Resolver backed by inv.
func NewResolver(inv *nic.Inventory) *Resolver {
	return &Resolver{inv: inv}
}

// ResolveUplinks returns the uplinks of n. A VLAN link is resolved through
// its parent's hardware address, never its own. The result holds exactly
// one NIC today; it is a slice so that teamed links fit later.
func (r *Resolver) ResolveUplinks(ctx context.Context, n *topology.Network) ([]nic.NIC, error) {
	if n.Link == nil {
		return nil, fmt.Errorf("%w: network %q has no link", topology.ErrConfiguration, n.ID)
	}

	link := n.Link
	if link.IsVLAN() {
		if link.Parent == nil {
			return nil, fmt.Errorf("%w: vlan link %q has no parent", topology.ErrConfiguration, link.ID)
		}
		link = link.Parent
	}

	found, err := r.inv.FindByHardwareAddress(ctx, link.MAC)
	if errors.Is(err, errors.NotFound) {
		return nil, fmt.Errorf("%w: no uplink for network %q: %w", topology.ErrConfiguration, n.ID, err)
	}
	if err != nil {
		return nil, fmt.Errorf("resolving uplinks for network %q: %w", n.ID, err)
	}
	return []nic.NIC{found}, nil
}

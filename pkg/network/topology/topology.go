// Package topology is the parsed, read-only view of an OpenStack config
// drive: links, networks, routes and services from network_data.json plus
// the host identity from meta_data.json.
package topology

import (
	"fmt"

	"github.com/juju/errors"
)

const (
	// ErrParse marks a malformed or cross-referentially inconsistent
	// descriptor.
	ErrParse = errors.ConstError("invalid descriptor")

	// ErrConfiguration marks a topology that cannot be applied to the host,
	// such as a network without uplinks or a descriptor without networks.
	ErrConfiguration = errors.ConstError("invalid network configuration")
)

// Model is built once from the two descriptors and never mutated.
// Declaration order of links and networks is preserved and significant.
type Model struct {
	links    []*Link
	networks []*Network
	services []Service
	metadata Metadata
}

// Links returns the declared links in order.
func (m *Model) Links() []*Link {
	out := make([]*Link, len(m.links))
	copy(out, m.links)
	return out
}

// Networks returns the declared networks in order.
func (m *Model) Networks() []*Network {
	out := make([]*Network, len(m.networks))
	copy(out, m.networks)
	return out
}

// Services returns the declared services in order.
func (m *Model) Services() []Service {
	out := make([]Service, len(m.services))
	copy(out, m.services)
	return out
}

// Metadata returns the host identity record.
func (m *Model) Metadata() Metadata {
	return m.metadata
}

// LinkByID returns the link with the given id.
func (m *Model) LinkByID(id string) (*Link, error) {
	for _, l := range m.links {
		if l.ID == id {
			return l, nil
		}
	}
	return nil, errors.NotFoundf("link %q", id)
}

// DefaultRoute returns the first default route in network declaration
// order. Default routes on later networks are ignored: the host gets at
// most one management default route.
func (m *Model) DefaultRoute() (Route, error) {
	for _, n := range m.networks {
		if routes := n.DefaultRoutes(); len(routes) > 0 {
			return routes[0], nil
		}
	}
	return Route{}, errors.NotFoundf("default route")
}

// ManagementNetwork returns the first network carrying a default route,
// falling back to the first declared network.
func (m *Model) ManagementNetwork() (*Network, error) {
	if len(m.networks) == 0 {
		return nil, fmt.Errorf("%w: no networks declared", ErrConfiguration)
	}
	for _, n := range m.networks {
		if len(n.DefaultRoutes()) > 0 {
			return n, nil
		}
	}
	return m.networks[0], nil
}

// OtherNetworks returns every network except the management network, in
// declaration order.
func (m *Model) OtherNetworks() ([]*Network, error) {
	mgmt, err := m.ManagementNetwork()
	if err != nil {
		return nil, err
	}
	out := make([]*Network, 0, len(m.networks)-1)
	for _, n := range m.networks {
		if n != mgmt {
			out = append(out, n)
		}
	}
	return out, nil
}

// DNSServers returns the addresses of all dns services in declaration order.
func (m *Model) DNSServers() []string {
	var out []string
	for _, s := range m.services {
		if s.Type == ServiceDNS {
			out = append(out, s.Address)
		}
	}
	return out
}

// Package nic enumerates the physical network interfaces of the host and
// looks them up by hardware address.
package nic

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/juju/errors"
)

// NIC is a physical network interface as reported by the host.
type NIC struct {
	Name        string `json:"name" yaml:"name"`               // e.g. "vmnic0"
	AdminStatus string `json:"adminStatus" yaml:"adminStatus"` // "Up" or "Down"
	LinkStatus  string `json:"linkStatus" yaml:"linkStatus"`
	MAC         string `json:"mac" yaml:"mac"`
}

// Source enumerates the host's NICs in host order.
type Source interface {
	ListNICs(ctx context.Context) ([]NIC, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) ([]NIC, error)

// ListNICs calls f.
func (f SourceFunc) ListNICs(ctx context.Context) ([]NIC, error) {
	return f(ctx)
}

// StaticSource returns a Source that always yields nics.
func StaticSource(nics []NIC) Source {
	return SourceFunc(func(context.Context) ([]NIC, error) {
		out := make([]NIC, len(nics))
		copy(out, nics)
		return out, nil
	})
}

// NormalizeMAC returns mac as lowercase colon-separated hex. Addresses that
// do not parse are only lowercased so that they can still be compared.
func NormalizeMAC(mac string) string {
	mac = strings.TrimSpace(mac)
	hw, err := net.ParseMAC(mac)
	if err != nil {
		return strings.ToLower(mac)
	}
	return hw.String()
}

// Inventory is the lazily populated NIC list of one host. The first
// enumeration, successful or not, is cached for the lifetime of the
// Inventory.
type Inventory struct {
	src Source

	mu     sync.Mutex
	loaded bool
	nics   []NIC
	err    error
}

// NewInventory returns an Inventory backed by src.
func NewInventory(src Source) *Inventory {
	return &Inventory{src: src}
}

func (inv *Inventory) load(ctx context.Context) ([]NIC, error) {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	if !inv.loaded {
		nics, err := inv.src.ListNICs(ctx)
		if err != nil {
			err = fmt.Errorf("enumerating nics: %w", err)
		}
		inv.nics, inv.err, inv.loaded = nics, err, true
	}
	return inv.nics, inv.err
}

// List returns the enumerated NICs in host order.
func (inv *Inventory) List(ctx context.Context) ([]NIC, error) {
	nics, err := inv.load(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]NIC, len(nics))
	copy(out, nics)
	return out, nil
}

// FindByHardwareAddress returns the first NIC whose MAC matches mac after
// normalization.
func (inv *Inventory) FindByHardwareAddress(ctx context.Context, mac string) (NIC, error) {
	nics, err := inv.load(ctx)
	if err != nil {
		return NIC{}, err
	}
	want := NormalizeMAC(mac)
	for _, n := range nics {
		if NormalizeMAC(n.MAC) == want {
			return n, nil
		}
	}
	return NIC{}, errors.NotFoundf("nic with hardware address %s", want)
}

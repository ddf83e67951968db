//go:build linux

package driver

import (
	"context"
	"fmt"
	"net"

	"github.com/vishvananda/netlink"
	"go.uber.org/zap"

	"github.com/glennswest/esxi-netinit/pkg/network/nic"
)

// NetlinkSource enumerates physical NICs of a Linux host with netlink. It
// lets the planner be exercised against real hardware addresses on a
// workstation before it runs on ESXi.
type NetlinkSource struct {
	log *zap.SugaredLogger
}

var _ nic.Source = (*NetlinkSource)(nil)

// NewNetlinkSource returns a NIC source backed by Linux netlink.
func NewNetlinkSource(log *zap.SugaredLogger) *NetlinkSource {
	return &NetlinkSource{log: log.Named("netlink-nics")}
}

// ListNICs returns every physical ethernet device in kernel index order.
func (s *NetlinkSource) ListNICs(_ context.Context) ([]nic.NIC, error) {
	links, err := netlink.LinkList()
	if err != nil {
		return nil, fmt.Errorf("netlink link list: %w", err)
	}

	var out []nic.NIC
	for _, l := range links {
		if n, ok := nicFromLink(l); ok {
			out = append(out, n)
		}
	}
	s.log.Debugw("enumerated nics", "count", len(out))
	return out, nil
}

// nicFromLink maps a netlink device to a NIC. Bridges, veths, VLANs and
// loopback are skipped.
func nicFromLink(l netlink.Link) (nic.NIC, bool) {
	attrs := l.Attrs()
	if l.Type() != "device" || attrs.Flags&net.FlagLoopback != 0 || len(attrs.HardwareAddr) == 0 {
		return nic.NIC{}, false
	}

	admin := "Down"
	if attrs.Flags&net.FlagUp != 0 {
		admin = "Up"
	}
	link := "Down"
	if attrs.OperState == netlink.OperUp {
		link = "Up"
	}
	return nic.NIC{
		Name:        attrs.Name,
		AdminStatus: admin,
		LinkStatus:  link,
		MAC:         attrs.HardwareAddr.String(),
	}, true
}

//go:build !linux

package driver

import (
	"context"

	"github.com/juju/errors"
	"go.uber.org/zap"

	"github.com/glennswest/esxi-netinit/pkg/network/nic"
)

// NetlinkSource is only available on Linux.
type NetlinkSource struct{}

var _ nic.Source = (*NetlinkSource)(nil)

// NewNetlinkSource returns a source that always fails on this platform.
func NewNetlinkSource(*zap.SugaredLogger) *NetlinkSource {
	return &NetlinkSource{}
}

func (s *NetlinkSource) ListNICs(context.Context) ([]nic.NIC, error) {
	return nil, errors.NotSupportedf("netlink nic enumeration on this platform")
}

package topology_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	jujuerrors "github.com/juju/errors"

	"github.com/glennswest/esxi-netinit/internal/testutil"
	"github.com/glennswest/esxi-netinit/pkg/network/topology"
)

func TestParseSingleNetwork(t *testing.T) {
	m := testutil.Model(t, testutil.SingleNetwork)

	links := m.Links()
	if len(links) != 1 {
		t.Fatalf("expected 1 link, got %d", len(links))
	}
	if links[0].MAC != "14:23:f3:f5:3a:d0" {
		t.Errorf("unexpected link mac %q", links[0].MAC)
	}
	if links[0].MTU != 1450 {
		t.Errorf("expected mtu 1450, got %d", links[0].MTU)
	}
	if links[0].Kind != topology.KindPhysical {
		t.Errorf("expected phy link, got %q", links[0].Kind)
	}

	nets := m.Networks()
	if len(nets) != 1 {
		t.Fatalf("expected 1 network, got %d", len(nets))
	}
	if nets[0].Link != links[0] {
		t.Error("network does not reference the parsed link")
	}
	if nets[0].Type != topology.TypeStaticIPv4 {
		t.Errorf("expected type ipv4, got %q", nets[0].Type)
	}

	if md := m.Metadata(); md.Hostname != "test.novalocal" {
		t.Errorf("expected hostname test.novalocal, got %q", md.Hostname)
	}
}

func TestParseVLANParent(t *testing.T) {
	m := testutil.Model(t, testutil.MultiNetwork)

	vlan, err := m.LinkByID("vlan222")
	if err != nil {
		t.Fatalf("LinkByID: %v", err)
	}
	if !vlan.IsVLAN() {
		t.Fatal("expected vlan222 to be a VLAN link")
	}
	if vlan.VLANID != 222 {
		t.Errorf("expected vlan id 222, got %d", vlan.VLANID)
	}
	if vlan.Parent == nil || vlan.Parent.ID != "tap-phy0" {
		t.Fatalf("expected parent tap-phy0, got %+v", vlan.Parent)
	}
	if vlan.Parent.MAC != "14:23:f3:f5:3a:d0" {
		t.Errorf("unexpected parent mac %q", vlan.Parent.MAC)
	}

	if _, err := m.LinkByID("missing"); !errors.Is(err, jujuerrors.NotFound) {
		t.Errorf("expected NotFound for unknown link, got %v", err)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"malformed json", `{"links": [`},
		{"vlan without parent field", `{"links":[{"id":"v","type":"vlan","vlan_id":5}],"networks":[]}`},
		{"vlan parent declared later", `{"links":[
			{"id":"v","type":"vlan","vlan_id":5,"vlan_link":"p"},
			{"id":"p","type":"phy","ethernet_mac_address":"aa:bb:cc:dd:ee:ff"}],"networks":[]}`},
		{"vlan parent is a vlan", `{"links":[
			{"id":"p","type":"phy","ethernet_mac_address":"aa:bb:cc:dd:ee:ff"},
			{"id":"v0","type":"vlan","vlan_id":5,"vlan_link":"p"},
			{"id":"vv","type":"vlan","vlan_id":6,"vlan_link":"v0","ethernet_mac_address":"fa:16:3e:00:00:06"}],"networks":[]}`},
		{"network on unknown link", `{"links":[],"networks":[{"id":"n","type":"ipv4","link":"nope"}]}`},
		{"duplicate link id", `{"links":[{"id":"a","type":"phy"},{"id":"a","type":"phy"}],"networks":[]}`},
		{"link without id", `{"links":[{"type":"phy"}],"networks":[]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := topology.Parse([]byte(tt.data), []byte(testutil.MetaData))
			if !errors.Is(err, topology.ErrParse) {
				t.Fatalf("expected ErrParse, got %v", err)
			}
			if m != nil {
				t.Error("expected no partial model")
			}
		})
	}
}

func TestParseMetadataErrors(t *testing.T) {
	for _, field := range []string{"uuid", "hostname", "admin_pass", "project_id", "random_seed", "launch_index"} {
		t.Run(field, func(t *testing.T) {
			md := dropField(t, testutil.MetaData, field)
			_, err := topology.Parse([]byte(testutil.SingleNetwork), []byte(md))
			if !errors.Is(err, topology.ErrParse) {
				t.Fatalf("expected ErrParse without %q, got %v", field, err)
			}
			if !strings.Contains(err.Error(), field) {
				t.Errorf("error %q does not name %q", err, field)
			}
		})
	}

	bad := strings.Replace(testutil.MetaData, "1bb8f9c5-7f4c-4b0b-9a4f-4c0a1f8a5b7e", "not-a-uuid", 1)
	if _, err := topology.Parse([]byte(testutil.SingleNetwork), []byte(bad)); !errors.Is(err, topology.ErrParse) {
		t.Errorf("expected ErrParse for invalid uuid, got %v", err)
	}

	if _, err := topology.Parse([]byte(testutil.SingleNetwork), []byte("{")); !errors.Is(err, topology.ErrParse) {
		t.Errorf("expected ErrParse for malformed meta data, got %v", err)
	}
}

// dropField removes the line declaring field from a pretty-printed document.
func dropField(t *testing.T, doc, field string) string {
	t.Helper()
	var out []string
	dropped := false
	for _, line := range strings.Split(doc, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), `"`+field+`"`) {
			dropped = true
			continue
		}
		out = append(out, line)
	}
	if !dropped {
		t.Fatalf("field %q not in document", field)
	}
	return strings.Join(out, "\n")
}

func TestDefaultRoute(t *testing.T) {
	m := testutil.Model(t, testutil.SingleNetwork)

	r, err := m.DefaultRoute()
	if err != nil {
		t.Fatalf("DefaultRoute: %v", err)
	}
	if r.Gateway != "192.168.1.1" {
		t.Errorf("expected gateway 192.168.1.1, got %q", r.Gateway)
	}

	noRoute := `{"links":[{"id":"a","type":"phy","ethernet_mac_address":"aa:bb:cc:dd:ee:ff"}],
		"networks":[{"id":"n","type":"ipv4","link":"a","routes":[
			{"network":"10.0.0.0","netmask":"255.0.0.0","gateway":"10.0.0.1"}]}]}`
	m = testutil.Model(t, noRoute)
	if _, err := m.DefaultRoute(); !errors.Is(err, jujuerrors.NotFound) {
		t.Errorf("expected NotFound, got %v", err)
	}
}

func TestDefaultRouteFirstNetworkWins(t *testing.T) {
	data := `{"links":[
			{"id":"a","type":"phy","ethernet_mac_address":"aa:bb:cc:dd:ee:01"},
			{"id":"b","type":"phy","ethernet_mac_address":"aa:bb:cc:dd:ee:02"}],
		"networks":[
			{"id":"first","type":"ipv4","link":"a","routes":[{"network":"0.0.0.0","netmask":"0.0.0.0","gateway":"10.0.0.1"}]},
			{"id":"second","type":"ipv4","link":"b","routes":[{"network":"0.0.0.0","netmask":"0.0.0.0","gateway":"10.0.1.1"}]}]}`
	m := testutil.Model(t, data)

	r, err := m.DefaultRoute()
	if err != nil {
		t.Fatalf("DefaultRoute: %v", err)
	}
	if r.Gateway != "10.0.0.1" {
		t.Errorf("expected first network's gateway, got %q", r.Gateway)
	}
}

func TestManagementNetwork(t *testing.T) {
	m := testutil.Model(t, testutil.TwoNICs)

	mgmt, err := m.ManagementNetwork()
	if err != nil {
		t.Fatalf("ManagementNetwork: %v", err)
	}
	if mgmt.ID != "public" {
		t.Errorf("expected network with default route, got %q", mgmt.ID)
	}

	others, err := m.OtherNetworks()
	if err != nil {
		t.Fatalf("OtherNetworks: %v", err)
	}
	if len(others) != 1 || others[0].ID != "storage" {
		t.Errorf("unexpected other networks: %+v", others)
	}
}

func TestManagementNetworkFallsBackToFirst(t *testing.T) {
	data := `{"links":[{"id":"a","type":"phy","ethernet_mac_address":"aa:bb:cc:dd:ee:01"}],
		"networks":[
			{"id":"first","type":"ipv4_dhcp","link":"a"},
			{"id":"second","type":"ipv4_dhcp","link":"a"}]}`
	m := testutil.Model(t, data)

	mgmt, err := m.ManagementNetwork()
	if err != nil {
		t.Fatalf("ManagementNetwork: %v", err)
	}
	if mgmt.ID != "first" {
		t.Errorf("expected first network, got %q", mgmt.ID)
	}
}

func TestManagementNetworkNone(t *testing.T) {
	m := testutil.Model(t, `{"links":[],"networks":[]}`)

	if _, err := m.ManagementNetwork(); !errors.Is(err, topology.ErrConfiguration) {
		t.Errorf("expected ErrConfiguration, got %v", err)
	}
	if _, err := m.OtherNetworks(); !errors.Is(err, topology.ErrConfiguration) {
		t.Errorf("expected ErrConfiguration, got %v", err)
	}
}

func TestOtherNetworksPreservesOrder(t *testing.T) {
	m := testutil.Model(t, testutil.MultiNetwork)

	others, err := m.OtherNetworks()
	if err != nil {
		t.Fatalf("OtherNetworks: %v", err)
	}
	var ids []string
	for _, n := range others {
		ids = append(ids, n.ID)
	}
	if got := strings.Join(ids, ","); got != "network1,network2,network3" {
		t.Errorf("unexpected order %q", got)
	}
}

func TestDNSServers(t *testing.T) {
	m := testutil.Model(t, testutil.MultiNetwork)

	got := m.DNSServers()
	if len(got) != 2 || got[0] != "10.0.0.2" || got[1] != "10.0.0.3" {
		t.Errorf("unexpected dns servers %v", got)
	}
}

func TestAccessorsReturnCopies(t *testing.T) {
	m := testutil.Model(t, testutil.MultiNetwork)

	nets := m.Networks()
	nets[0] = nil
	if m.Networks()[0] == nil {
		t.Error("mutating returned slice changed the model")
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, topology.NetworkDataFile), []byte(testutil.SingleNetwork), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, topology.MetaDataFile), []byte(testutil.MetaData), 0o644); err != nil {
		t.Fatal(err)
	}

	m, err := topology.Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(m.Networks()) != 1 {
		t.Errorf("expected 1 network, got %d", len(m.Networks()))
	}

	if _, err := topology.Load(t.TempDir()); err == nil {
		t.Error("expected error for empty directory")
	}
}

func TestRouteIsDefault(t *testing.T) {
	tests := []struct {
		network, netmask string
		want             bool
	}{
		{"0.0.0.0", "0.0.0.0", true},
		{"0.0.0.0", "255.0.0.0", false},
		{"10.0.0.0", "0.0.0.0", false},
		{"::", "::", false},
		{"", "", false},
		{"default", "0.0.0.0", false},
	}
	for _, tt := range tests {
		r := topology.Route{Network: tt.network, Netmask: tt.netmask, Gateway: "10.0.0.1"}
		if got := r.IsDefault(); got != tt.want {
			t.Errorf("%s/%s: IsDefault() = %v, want %v", tt.network, tt.netmask, got, tt.want)
		}
	}
}

func TestParseUnknownNetworkLinkNamesLink(t *testing.T) {
	data := `{"links":[{"id":"a","type":"phy","ethernet_mac_address":"aa:bb:cc:dd:ee:ff"}],
		"networks":[{"id":"n","type":"ipv4","link":"nope"}]}`
	_, err := topology.Parse([]byte(data), []byte(testutil.MetaData))
	if !errors.Is(err, topology.ErrParse) {
		t.Fatalf("expected ErrParse, got %v", err)
	}
	if !strings.Contains(err.Error(), `"nope"`) {
		t.Errorf("error %q does not name the missing link", err)
	}
}

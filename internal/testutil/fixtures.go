// Package testutil holds config-drive fixtures shared by package tests.
package testutil

import (
	"testing"

	"github.com/glennswest/esxi-netinit/pkg/network/nic"
	"github.com/glennswest/esxi-netinit/pkg/network/topology"
)

// MetaData is a complete meta_data.json for host test.novalocal.
const MetaData = `{
  "uuid": "1bb8f9c5-7f4c-4b0b-9a4f-4c0a1f8a5b7e",
  "admin_pass": "secret",
  "hostname": "test.novalocal",
  "name": "test",
  "launch_index": 0,
  "availability_zone": "nova",
  "random_seed": "Zm9vYmFy",
  "project_id": "5f4b9a3c2d1e",
  "meta": {"role": "compute"},
  "public_keys": {"mykey": "ssh-ed25519 AAAA test"},
  "devices": [],
  "dedicated_cpus": []
}`

// SingleNetwork is one physical link with one static network, a default
// route and a DNS server.
const SingleNetwork = `{
  "links": [
    {
      "id": "tap47bb4c37-f6",
      "type": "phy",
      "ethernet_mac_address": "14:23:f3:f5:3a:d0",
      "mtu": 1450,
      "vif_id": "47bb4c37-f60d-474f-8ce5-c7c1d9982585"
    }
  ],
  "networks": [
    {
      "id": "network0",
      "type": "ipv4",
      "link": "tap47bb4c37-f6",
      "ip_address": "192.168.1.10",
      "netmask": "255.255.255.0",
      "network_id": "7ee08c00-8f6c-4fba-9a6f-0a3b5d1e6a6d",
      "routes": [
        {"network": "0.0.0.0", "netmask": "0.0.0.0", "gateway": "192.168.1.1"}
      ]
    }
  ],
  "services": [
    {"type": "dns", "address": "8.8.4.4"}
  ]
}`

// MultiNetwork is one physical link carrying an untagged management
// network plus three VLAN networks (111, 222, 444).
const MultiNetwork = `{
  "links": [
    {"id": "tap-phy0", "type": "phy", "ethernet_mac_address": "14:23:f3:f5:3a:d0", "mtu": 9000, "vif_id": "vif-0"},
    {"id": "vlan111", "type": "vlan", "vlan_id": 111, "vlan_link": "tap-phy0", "vlan_mac_address": "fa:16:3e:00:01:11", "mtu": 1500, "vif_id": "vif-111"},
    {"id": "vlan222", "type": "vlan", "vlan_id": 222, "vlan_link": "tap-phy0", "vlan_mac_address": "fa:16:3e:00:02:22", "mtu": 1500, "vif_id": "vif-222"},
    {"id": "vlan444", "type": "vlan", "vlan_id": 444, "vlan_link": "tap-phy0", "vlan_mac_address": "fa:16:3e:00:04:44", "mtu": 1500, "vif_id": "vif-444"}
  ],
  "networks": [
    {
      "id": "network0", "type": "ipv4", "link": "tap-phy0",
      "ip_address": "10.0.0.10", "netmask": "255.255.255.0", "network_id": "n0",
      "routes": [{"network": "0.0.0.0", "netmask": "0.0.0.0", "gateway": "10.0.0.1"}]
    },
    {
      "id": "network1", "type": "ipv4", "link": "vlan111",
      "ip_address": "10.1.11.10", "netmask": "255.255.255.0", "network_id": "n1",
      "routes": [{"network": "10.99.0.0", "netmask": "255.255.0.0", "gateway": "10.1.11.1"}]
    },
    {
      "id": "network2", "type": "ipv4_dhcp", "link": "vlan222", "network_id": "n2", "routes": []
    },
    {
      "id": "network3", "type": "ipv4", "link": "vlan444",
      "ip_address": "10.4.44.10", "netmask": "255.255.255.0", "network_id": "n3", "routes": []
    }
  ],
  "services": [
    {"type": "dns", "address": "10.0.0.2"},
    {"type": "dns", "address": "10.0.0.3"}
  ]
}`

// TwoNICs is two physical links with one network each; only the second
// network carries a default route.
const TwoNICs = `{
  "links": [
    {"id": "tap-a", "type": "phy", "ethernet_mac_address": "14:23:f3:f5:3a:d0", "mtu": 1500, "vif_id": "vif-a"},
    {"id": "tap-b", "type": "phy", "ethernet_mac_address": "14:23:f3:f5:3b:d0", "mtu": 9000, "vif_id": "vif-b"}
  ],
  "networks": [
    {
      "id": "storage", "type": "ipv4", "link": "tap-a",
      "ip_address": "172.16.0.10", "netmask": "255.255.0.0", "network_id": "s", "routes": []
    },
    {
      "id": "public", "type": "ipv4", "link": "tap-b",
      "ip_address": "192.168.50.10", "netmask": "255.255.255.0", "network_id": "p",
      "routes": [{"network": "0.0.0.0", "netmask": "0.0.0.0", "gateway": "192.168.50.1"}]
    }
  ],
  "services": []
}`

// ESXCLINICList is captured `esxcli network nic list` output for the
// NICs the fixtures reference.
const ESXCLINICList = `Name    PCI Device    Driver  Admin Status  Link Status  Speed  Duplex  MAC Address         MTU  Description
------  ------------  ------  ------------  -----------  -----  ------  -----------------  ----  -----------
vmnic0  0000:19:00.0  ntg3    Up            Up            1000  Full    14:23:f3:f5:3a:d0  1500  Broadcom Corporation NetXtreme BCM5720 Gigabit Ethernet
vmnic1  0000:19:00.1  ntg3    Up            Up            1000  Full    14:23:f3:f5:3b:d0  1500  Broadcom Corporation NetXtreme BCM5720 Gigabit Ethernet
vmnic2  0000:3b:00.0  bnxtnet Up            Down             0  Half    d4:04:e6:4f:8d:b4  1500  Broadcom NetXtreme E-Series Dual-port 25Gb SFP28 Ethernet
`

// NICs is the inventory matching ESXCLINICList.
func NICs() []nic.NIC {
	return []nic.NIC{
		{Name: "vmnic0", AdminStatus: "Up", LinkStatus: "Up", MAC: "14:23:f3:f5:3a:d0"},
		{Name: "vmnic1", AdminStatus: "Up", LinkStatus: "Up", MAC: "14:23:f3:f5:3b:d0"},
		{Name: "vmnic2", AdminStatus: "Up", LinkStatus: "Down", MAC: "d4:04:e6:4f:8d:b4"},
	}
}

// Model parses networkData together with MetaData or fails the test.
func Model(t testing.TB, networkData string) *topology.Model {
	t.Helper()
	m, err := topology.Parse([]byte(networkData), []byte(MetaData))
	if err != nil {
		t.Fatalf("parse fixture: %v", err)
	}
	return m
}

// Inventory returns an inventory backed by NICs.
func Inventory() *nic.Inventory {
	return nic.NewInventory(nic.StaticSource(NICs()))
}

// Network returns the network with the given id or fails the test.
func Network(t testing.TB, m *topology.Model, id string) *topology.Network {
	t.Helper()
	for _, n := range m.Networks() {
		if n.ID == id {
			return n
		}
	}
	t.Fatalf("fixture has no network %q", id)
	return nil
}

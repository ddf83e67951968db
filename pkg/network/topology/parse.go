package topology

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Config drive file names, relative to openstack/latest.
const (
	NetworkDataFile = "network_data.json"
	MetaDataFile    = "meta_data.json"
)

// ─── Wire format ────────────────────────────────────────────────────────────

type networkDataDoc struct {
	Links    []linkDoc    `json:"links"`
	Networks []networkDoc `json:"networks"`
	Services []serviceDoc `json:"services"`
}

type linkDoc struct {
	ID                 string `json:"id"`
	Type               string `json:"type"`
	EthernetMACAddress string `json:"ethernet_mac_address"`
	MTU                int    `json:"mtu"`
	VIFID              string `json:"vif_id"`
	VLANID             int    `json:"vlan_id"`
	VLANMACAddress     string `json:"vlan_mac_address"`
	VLANLink           string `json:"vlan_link"`
}

type networkDoc struct {
	ID        string  `json:"id"`
	Type      string  `json:"type"`
	Link      string  `json:"link"`
	IPAddress string  `json:"ip_address"`
	Netmask   string  `json:"netmask"`
	NetworkID string  `json:"network_id"`
	Routes    []Route `json:"routes"`
}

type serviceDoc struct {
	Type    string `json:"type"`
	Address string `json:"address"`
}

type metaDataDoc struct {
	UUID             *string           `json:"uuid"`
	Hostname         *string           `json:"hostname"`
	AdminPass        *string           `json:"admin_pass"`
	ProjectID        *string           `json:"project_id"`
	RandomSeed       *string           `json:"random_seed"`
	LaunchIndex      *int              `json:"launch_index"`
	AvailabilityZone string            `json:"availability_zone"`
	Meta             map[string]string `json:"meta"`
	PublicKeys       map[string]string `json:"public_keys"`
	Devices          []map[string]any  `json:"devices"`
	DedicatedCPUs    []int             `json:"dedicated_cpus"`
}

// ─── Construction ───────────────────────────────────────────────────────────

// Load reads network_data.json and meta_data.json from dir and builds a Model.
func Load(dir string) (*Model, error) {
	netData, err := os.ReadFile(filepath.Join(dir, NetworkDataFile))
	if err != nil {
		return nil, fmt.Errorf("reading network data: %w", err)
	}
	metaData, err := os.ReadFile(filepath.Join(dir, MetaDataFile))
	if err != nil {
		return nil, fmt.Errorf("reading meta data: %w", err)
	}
	return Parse(netData, metaData)
}

// Parse builds a Model from the network topology and host metadata
// descriptors. Any malformed or inconsistent input fails with ErrParse and
// no partial model is returned.
func Parse(networkData, metaData []byte) (*Model, error) {
	var nd networkDataDoc
	if err := json.Unmarshal(networkData, &nd); err != nil {
		return nil, fmt.Errorf("%w: network data: %v", ErrParse, err)
	}

	links, err := parseLinks(nd.Links)
	if err != nil {
		return nil, err
	}

	m := &Model{links: links}
	if m.networks, err = parseNetworks(nd.Networks, m); err != nil {
		return nil, err
	}

	m.services = make([]Service, 0, len(nd.Services))
	for _, s := range nd.Services {
		m.services = append(m.services, Service{Type: s.Type, Address: s.Address})
	}

	if m.metadata, err = parseMetadata(metaData); err != nil {
		return nil, err
	}
	return m, nil
}

// parseLinks resolves VLAN parents in a single pass: a parent must be
// declared before the VLAN link that references it.
func parseLinks(docs []linkDoc) ([]*Link, error) {
	links := make([]*Link, 0, len(docs))
	byID := make(map[string]*Link, len(docs))

	for i, d := range docs {
		if d.ID == "" {
			return nil, fmt.Errorf("%w: link #%d has no id", ErrParse, i)
		}
		if _, dup := byID[d.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate link id %q", ErrParse, d.ID)
		}

		link := &Link{
			ID:      d.ID,
			MAC:     d.EthernetMACAddress,
			MTU:     d.MTU,
			Kind:    LinkKind(d.Type),
			VIFID:   d.VIFID,
			VLANID:  d.VLANID,
			VLANMAC: d.VLANMACAddress,
		}

		if link.IsVLAN() {
			if d.VLANLink == "" {
				return nil, fmt.Errorf("%w: vlan link %q has no vlan_link", ErrParse, d.ID)
			}
			parent, ok := byID[d.VLANLink]
			if !ok {
				return nil, fmt.Errorf("%w: vlan link %q references unknown link %q", ErrParse, d.ID, d.VLANLink)
			}
			if parent.IsVLAN() {
				return nil, fmt.Errorf("%w: vlan link %q has vlan parent %q", ErrParse, d.ID, d.VLANLink)
			}
			link.Parent = parent
		}

		links = append(links, link)
		byID[link.ID] = link
	}
	return links, nil
}

// parseNetworks binds each network to a link already present in m.
func parseNetworks(docs []networkDoc, m *Model) ([]*Network, error) {
	networks := make([]*Network, 0, len(docs))
	for _, d := range docs {
		link, err := m.LinkByID(d.Link)
		if err != nil {
			return nil, fmt.Errorf("%w: network %q: %v", ErrParse, d.ID, err)
		}

		routes := make([]Route, len(d.Routes))
		copy(routes, d.Routes)

		networks = append(networks, &Network{
			ID:        d.ID,
			Type:      d.Type,
			Address:   d.IPAddress,
			Netmask:   d.Netmask,
			NetworkID: d.NetworkID,
			Link:      link,
			Routes:    routes,
		})
	}
	return networks, nil
}

func parseMetadata(data []byte) (Metadata, error) {
	var doc metaDataDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return Metadata{}, fmt.Errorf("%w: meta data: %v", ErrParse, err)
	}

	required := []struct {
		name  string
		value *string
	}{
		{"uuid", doc.UUID},
		{"hostname", doc.Hostname},
		{"admin_pass", doc.AdminPass},
		{"project_id", doc.ProjectID},
		{"random_seed", doc.RandomSeed},
	}
	for _, f := range required {
		if f.value == nil {
			return Metadata{}, fmt.Errorf("%w: meta data is missing %q", ErrParse, f.name)
		}
	}
	if doc.LaunchIndex == nil {
		return Metadata{}, fmt.Errorf("%w: meta data is missing %q", ErrParse, "launch_index")
	}

	if _, err := uuid.Parse(*doc.UUID); err != nil {
		return Metadata{}, fmt.Errorf("%w: meta data uuid %q: %v", ErrParse, *doc.UUID, err)
	}

	return Metadata{
		UUID:             *doc.UUID,
		Hostname:         *doc.Hostname,
		AdminPass:        *doc.AdminPass,
		ProjectID:        *doc.ProjectID,
		RandomSeed:       *doc.RandomSeed,
		LaunchIndex:      *doc.LaunchIndex,
		AvailabilityZone: doc.AvailabilityZone,
		Meta:             doc.Meta,
		PublicKeys:       doc.PublicKeys,
		Devices:          doc.Devices,
		DedicatedCPUs:    doc.DedicatedCPUs,
	}, nil
}

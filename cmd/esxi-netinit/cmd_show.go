package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/juju/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/glennswest/esxi-netinit/pkg/network/nic"
	"github.com/glennswest/esxi-netinit/pkg/network/topology"
)

var yamlOutput bool

func newShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show [CONFIG_DIR]",
		Short: "Print the parsed network model",
		Long: `Parse network_data.json and meta_data.json and print the links,
networks, default route and DNS servers they declare.

  esxi-netinit show ./openstack/latest
  esxi-netinit show --yaml ./openstack/latest`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			model, err := topology.Load(cfg.ConfigDir)
			if err != nil {
				return err
			}
			if yamlOutput {
				return yaml.NewEncoder(os.Stdout).Encode(modelView(model))
			}
			printModel(model)
			return nil
		},
	}

	cmd.Flags().BoolVar(&yamlOutput, "yaml", false, "YAML output")
	return cmd
}

func newNICsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "nics",
		Short: "List the host's physical NICs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := openBackend(cmd.Context(), cfg, true)
			if err != nil {
				return err
			}
			defer b.Close(cmd.Context())

			nics, err := nic.NewInventory(b.nics).List(cmd.Context())
			if err != nil {
				return err
			}
			if yamlOutput {
				return yaml.NewEncoder(os.Stdout).Encode(nics)
			}
			fmt.Printf("%-10s %-6s %-6s %s\n", "NAME", "ADMIN", "LINK", "MAC")
			for _, n := range nics {
				fmt.Printf("%-10s %-6s %-6s %s\n", n.Name, n.AdminStatus, n.LinkStatus, n.MAC)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&yamlOutput, "yaml", false, "YAML output")
	return cmd
}

type linkView struct {
	ID     string `yaml:"id"`
	Kind   string `yaml:"type"`
	MAC    string `yaml:"mac"`
	MTU    int    `yaml:"mtu"`
	VLANID int    `yaml:"vlanID,omitempty"`
	Parent string `yaml:"parent,omitempty"`
}

type networkView struct {
	ID      string           `yaml:"id"`
	Type    string           `yaml:"type"`
	Link    string           `yaml:"link"`
	Address string           `yaml:"address,omitempty"`
	Netmask string           `yaml:"netmask,omitempty"`
	Routes  []topology.Route `yaml:"routes,omitempty"`
}

type modelDoc struct {
	Hostname     string        `yaml:"hostname"`
	UUID         string        `yaml:"uuid"`
	Links        []linkView    `yaml:"links"`
	Networks     []networkView `yaml:"networks"`
	DefaultRoute string        `yaml:"defaultRoute,omitempty"`
	DNS          []string      `yaml:"dns,omitempty"`
}

func modelView(m *topology.Model) modelDoc {
	doc := modelDoc{
		Hostname: m.Metadata().Hostname,
		UUID:     m.Metadata().UUID,
		DNS:      m.DNSServers(),
	}
	for _, l := range m.Links() {
		v := linkView{ID: l.ID, Kind: string(l.Kind), MAC: l.MAC, MTU: l.MTU}
		if l.IsVLAN() {
			v.VLANID = l.VLANID
			if l.Parent != nil {
				v.Parent = l.Parent.ID
			}
		}
		doc.Links = append(doc.Links, v)
	}
	for _, n := range m.Networks() {
		doc.Networks = append(doc.Networks, networkView{
			ID:      n.ID,
			Type:    n.Type,
			Link:    n.Link.ID,
			Address: n.Address,
			Netmask: n.Netmask,
			Routes:  n.Routes,
		})
	}
	if r, err := m.DefaultRoute(); err == nil {
		doc.DefaultRoute = r.Gateway
	} else if !errors.Is(err, errors.NotFound) {
		log.Warnw("reading default route", "error", err)
	}
	return doc
}

func printModel(m *topology.Model) {
	doc := modelView(m)
	fmt.Printf("host %s (%s)\n\n", doc.Hostname, doc.UUID)

	fmt.Printf("%-20s %-6s %-18s %-6s %s\n", "LINK", "TYPE", "MAC", "MTU", "PARENT")
	for _, l := range doc.Links {
		parent := "-"
		if l.Parent != "" {
			parent = fmt.Sprintf("%s vlan %d", l.Parent, l.VLANID)
		}
		fmt.Printf("%-20s %-6s %-18s %-6d %s\n", l.ID, l.Kind, l.MAC, l.MTU, parent)
	}
	fmt.Println()

	fmt.Printf("%-12s %-10s %-20s %-18s %s\n", "NETWORK", "TYPE", "LINK", "ADDRESS", "ROUTES")
	for _, n := range doc.Networks {
		addr := "-"
		if n.Address != "" {
			addr = n.Address + "/" + n.Netmask
		}
		var routes []string
		for _, r := range n.Routes {
			routes = append(routes, r.Network+"/"+r.Netmask+" via "+r.Gateway)
		}
		fmt.Printf("%-12s %-10s %-20s %-18s %s\n", n.ID, n.Type, n.Link, addr, strings.Join(routes, ", "))
	}

	if doc.DefaultRoute != "" {
		fmt.Printf("\ndefault route via %s\n", doc.DefaultRoute)
	}
	if len(doc.DNS) > 0 {
		fmt.Printf("dns %s\n", strings.Join(doc.DNS, " "))
	}
}

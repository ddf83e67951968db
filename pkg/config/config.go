// Package config loads the esxi-netinit configuration file.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/juju/errors"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"

	"github.com/glennswest/esxi-netinit/pkg/network"
)

// DefaultPath is read when neither ESXI_NETINIT_CONFIG nor --config is set.
const DefaultPath = "/etc/esxi-netinit/config.yaml"

// EnvPath overrides DefaultPath.
const EnvPath = "ESXI_NETINIT_CONFIG"

// Gateway backends.
const (
	BackendESXCLI  = "esxcli"
	BackendVSphere = "vsphere"
)

// NIC sources. NICSourceAuto follows the backend.
const (
	NICSourceAuto    = "auto"
	NICSourceFile    = "file"
	NICSourceESXCLI  = "esxcli"
	NICSourceNetlink = "netlink"
	NICSourceVSphere = "vsphere"
)

// Config is the esxi-netinit configuration.
type Config struct {
	// Directory holding network_data.json and meta_data.json
	ConfigDir string `yaml:"configDir"`
	DryRun    bool   `yaml:"dryRun"`
	Backend   string `yaml:"backend"`
	LogLevel  string `yaml:"logLevel"`

	// NICsFile holds saved `esxcli network nic list` output for the file source.
	NICsFile   string `yaml:"nicsFile"`
	NICSource  string `yaml:"nicSource"`
	ReportPath string `yaml:"reportPath"`

	InstallerDefaults InstallerDefaults `yaml:"installerDefaults"`
	Management        Management        `yaml:"management"`
	Switches          Switches          `yaml:"switches"`
	DNS               DNS               `yaml:"dns"`
	VSphere           VSphere           `yaml:"vsphere"`
}

// InstallerDefaults names what the ESXi installer leaves behind.
type InstallerDefaults struct {
	Portgroup string `yaml:"portgroup"` // e.g. "Management Network"
	Switch    string `yaml:"switch"`    // e.g. "vSwitch0"
	Clean     bool   `yaml:"clean"`
}

// Management names the switch and portgroup for the management network.
// An empty switch lets the planner allocate one.
type Management struct {
	Portgroup string `yaml:"portgroup"`
	Switch    string `yaml:"switch"`
}

// Switches controls automatic vSwitch naming.
type Switches struct {
	Prefix string `yaml:"prefix"`
	Base   int    `yaml:"base"`
	Ports  int    `yaml:"ports"`
}

type DNS struct {
	Search []string `yaml:"search"`
}

// VSphere is the vSphere API endpoint used by the vsphere backend.
type VSphere struct {
	URL      string `yaml:"url"` // e.g. "https://localhost/sdk"
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Insecure bool   `yaml:"insecure"`
	Host     string `yaml:"host"`
}

// Defaults returns the configuration used when no file is present.
func Defaults() Config {
	planner := network.DefaultConfig()
	return Config{
		ConfigDir: "/vmfs/volumes/config-2/openstack/latest",
		Backend:   BackendESXCLI,
		LogLevel:  "info",
		NICSource: NICSourceAuto,
		InstallerDefaults: InstallerDefaults{
			Portgroup: network.InstallerPortgroup,
			Switch:    network.InstallerSwitch,
			Clean:     true,
		},
		Management: Management{Portgroup: network.ManagementPortgroup},
		Switches: Switches{
			Prefix: planner.SwitchPrefix,
			Base:   planner.SwitchBase,
			Ports:  planner.SwitchPorts,
		},
		VSphere: VSphere{URL: "https://localhost/sdk", User: "root", Insecure: true},
	}
}

// Path resolves the configuration file: explicit flag, then environment,
// then DefaultPath.
func Path(flag string) string {
	if flag != "" {
		return flag
	}
	if v := os.Getenv(EnvPath); v != "" {
		return v
	}
	return DefaultPath
}

// Load reads path over Defaults. A missing DefaultPath is not an error.
func Load(path string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && path == DefaultPath {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var errs []error

	if c.ConfigDir == "" {
		errs = append(errs, errors.NotValidf("empty configDir"))
	}
	switch c.Backend {
	case BackendESXCLI, BackendVSphere:
	default:
		errs = append(errs, errors.NotValidf("backend %q", c.Backend))
	}
	switch c.NICSource {
	case "", NICSourceAuto, NICSourceESXCLI, NICSourceNetlink, NICSourceVSphere:
	case NICSourceFile:
		if c.NICsFile == "" {
			errs = append(errs, errors.NotValidf("nicSource %q without nicsFile", c.NICSource))
		}
	default:
		errs = append(errs, errors.NotValidf("nicSource %q", c.NICSource))
	}
	if c.NICSource == NICSourceVSphere && c.Backend != BackendVSphere && c.VSphere.URL == "" {
		errs = append(errs, errors.NotValidf("nicSource vsphere without vsphere.url"))
	}
	if c.Backend == BackendVSphere && c.VSphere.URL == "" {
		errs = append(errs, errors.NotValidf("backend vsphere without vsphere.url"))
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, errors.NotValidf("logLevel %q", c.LogLevel))
	}
	if strings.TrimSpace(c.Switches.Prefix) == "" {
		errs = append(errs, errors.NotValidf("empty switches.prefix"))
	}
	if c.Switches.Base < 0 {
		errs = append(errs, errors.NotValidf("negative switches.base %d", c.Switches.Base))
	}
	if c.Switches.Ports < 0 {
		errs = append(errs, errors.NotValidf("negative switches.ports %d", c.Switches.Ports))
	}
	if c.Management.Portgroup == "" {
		errs = append(errs, errors.NotValidf("empty management.portgroup"))
	}
	if c.InstallerDefaults.Clean && (c.InstallerDefaults.Portgroup == "" || c.InstallerDefaults.Switch == "") {
		errs = append(errs, errors.NotValidf("installerDefaults.clean without portgroup and switch"))
	}

	return utilerrors.NewAggregate(errs)
}

// Planner returns the planner settings carried by the configuration.
func (c Config) Planner() network.Config {
	return network.Config{
		SwitchPrefix: c.Switches.Prefix,
		SwitchBase:   c.Switches.Base,
		SwitchPorts:  c.Switches.Ports,
		CDPStatus:    network.DefaultConfig().CDPStatus,
		DNSSearch:    append([]string(nil), c.DNS.Search...),
	}
}

// RunOpts returns the cleanup and management settings for a run.
func (c Config) RunOpts() network.RunOpts {
	return network.RunOpts{
		SkipClean:           !c.InstallerDefaults.Clean,
		InstallerPortgroup:  c.InstallerDefaults.Portgroup,
		InstallerSwitch:     c.InstallerDefaults.Switch,
		ManagementSwitch:    c.Management.Switch,
		ManagementPortgroup: c.Management.Portgroup,
	}
}

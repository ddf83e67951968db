package nic

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// ListCommand is the esxcli invocation whose output ParseESXCLI reads.
var ListCommand = []string{"/bin/esxcli", "network", "nic", "list"}

// ParseESXCLI parses the tabular output of `esxcli network nic list`.
// Only rows naming a vmnic are considered; the header and separator rows
// are skipped.
//
// Columns: Name, PCI Device, Driver, Admin Status, Link Status, Speed,
// Duplex, MAC Address, MTU, Description.
func ParseESXCLI(output string) ([]NIC, error) {
	var nics []NIC
	for i, line := range strings.Split(output, "\n") {
		if !strings.HasPrefix(line, "vmnic") {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) < 8 {
			return nil, fmt.Errorf("nic list line %d: expected at least 8 columns, got %d", i+1, len(parts))
		}
		nics = append(nics, NIC{
			Name:        parts[0],
			AdminStatus: parts[3],
			LinkStatus:  parts[4],
			MAC:         parts[7],
		})
	}
	return nics, nil
}

// FileSource reads a captured `esxcli network nic list` listing from disk.
// It lets planning run away from the host it targets.
type FileSource string

// ListNICs reads and parses the file.
func (f FileSource) ListNICs(context.Context) ([]NIC, error) {
	data, err := os.ReadFile(string(f))
	if err != nil {
		return nil, fmt.Errorf("reading nic list: %w", err)
	}
	return ParseESXCLI(string(data))
}

package sercom

import (
	"fmt"
	"sort"

	"go.bug.st/serial/enumerator"
)

// PortInfo describes a serial endpoint available on the host.
type PortInfo struct {
	Name        string
	Description string
}

func (p PortInfo) String() string {
	return p.Name + " - " + p.Description
}

// overridable in tests
var detailedPortsList = enumerator.GetDetailedPortsList

// ListPorts returns the serial endpoints present on the host, sorted by name.
// An empty result is not an error.
func ListPorts() ([]PortInfo, error) {
	details, err := detailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("enumerate ports: %w", err)
	}
	ports := make([]PortInfo, 0, len(details))
	for _, d := range details {
		if d == nil || d.Name == "" {
			continue
		}
		ports = append(ports, PortInfo{Name: d.Name, Description: describe(d)})
	}
	sort.Slice(ports, func(i, j int) bool { return ports[i].Name < ports[j].Name })
	return ports, nil
}

func describe(d *enumerator.PortDetails) string {
	switch {
	case d.Product != "":
		return d.Product
	case d.IsUSB:
		return fmt.Sprintf("USB VID:PID=%s:%s", d.VID, d.PID)
	}
	return "n/a"
}

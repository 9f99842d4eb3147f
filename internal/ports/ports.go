// Package ports hands out per-host SSH and VNC forward ports and keeps the
// reservations on the host that runs the VM.
package ports

import (
	"fmt"
)

// Range is an inclusive port interval.
type Range struct {
	Min int
	Max int
}

var (
	DefaultSSHRange = Range{Min: 2201, Max: 2299}
	DefaultVNCRange = Range{Min: 5901, Max: 5999}
)

func (r Range) Contains(port int) bool {
	return port >= r.Min && port <= r.Max
}

func (r Range) Size() int {
	return r.Max - r.Min + 1
}

func (r Range) Validate() error {
	if r.Min < 1 || r.Max > 65535 {
		return fmt.Errorf("port range %s outside 1-65535", r)
	}
	if r.Min > r.Max {
		return fmt.Errorf("port range %s is empty", r)
	}
	return nil
}

func (r Range) String() string {
	return fmt.Sprintf("%d-%d", r.Min, r.Max)
}

func (r Range) overlaps(o Range) bool {
	return r.Min <= o.Max && o.Min <= r.Max
}

// Reservation binds a VM to its ports on a host.
type Reservation struct {
	Name    string `json:"name"`
	Host    string `json:"host"`
	SSHPort int    `json:"ssh_port"`
	VNCPort int    `json:"vnc_port"`
}

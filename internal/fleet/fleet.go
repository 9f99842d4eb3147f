// Package fleet holds the static inventory of hypervisor hosts.
package fleet

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/terabiome/archdev/internal/errdefs"
)

// HostRecord describes one hypervisor host of the fleet.
type HostRecord struct {
	ID      string `yaml:"machine"`
	Address string `yaml:"ip"`
	Domain  string `yaml:"domain"`
}

// Directory is an immutable, ordered set of hosts. It is safe for concurrent use.
type Directory struct {
	hosts []HostRecord
	index map[string]int
}

func New(hosts []HostRecord) (*Directory, error) {
	d := &Directory{
		hosts: make([]HostRecord, 0, len(hosts)),
		index: make(map[string]int, len(hosts)),
	}

	for i, h := range hosts {
		if h.ID == "" {
			return nil, fmt.Errorf("host #%d: missing machine id", i)
		}
		if h.Address == "" {
			return nil, fmt.Errorf("host %s: missing address", h.ID)
		}
		if _, dup := d.index[h.ID]; dup {
			return nil, fmt.Errorf("host %s: duplicate machine id", h.ID)
		}
		d.index[h.ID] = len(d.hosts)
		d.hosts = append(d.hosts, h)
	}

	return d, nil
}

// Load reads an inventory file: a YAML list of {machine, ip, domain} entries.
func Load(path string) (*Directory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read inventory %s: %w", path, err)
	}

	var hosts []HostRecord
	if err := yaml.Unmarshal(data, &hosts); err != nil {
		return nil, fmt.Errorf("failed to parse inventory %s: %w", path, err)
	}

	dir, err := New(hosts)
	if err != nil {
		return nil, fmt.Errorf("invalid inventory %s: %w", path, err)
	}
	return dir, nil
}

func (d *Directory) Resolve(id string) (HostRecord, error) {
	i, ok := d.index[id]
	if !ok {
		return HostRecord{}, errdefs.HostNotFound(id)
	}
	return d.hosts[i], nil
}

// All returns every host in inventory order.
func (d *Directory) All() []HostRecord {
	out := make([]HostRecord, len(d.hosts))
	copy(out, d.hosts)
	return out
}

func (d *Directory) Len() int {
	return len(d.hosts)
}

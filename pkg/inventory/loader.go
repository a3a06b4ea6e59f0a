package inventory

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// fileDoc is the on-disk inventory schema.
//
//	hosts:
//	  web1:
//	    groups: [web, production]
//	    data:
//	      ssh_user: deploy
//	groups:
//	  web:
//	    data:
//	      ssh_port: 22
type fileDoc struct {
	Hosts  map[string]hostDoc  `yaml:"hosts" validate:"required,min=1,dive"`
	Groups map[string]groupDoc `yaml:"groups" validate:"dive"`
}

type hostDoc struct {
	Groups []string       `yaml:"groups" validate:"dive,min=1"`
	Data   map[string]any `yaml:"data"`
}

type groupDoc struct {
	Data map[string]any `yaml:"data"`
}

var validate = validator.New()

// Load reads and validates an inventory file.
func Load(path string) (*Inventory, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read inventory: %w", err)
	}

	hosts, groups, err := parse(raw)
	if err != nil {
		return nil, err
	}

	inv := New()
	inv.replace(hosts, groups)
	return inv, nil
}

// parse decodes and validates raw inventory YAML into catalog maps.
func parse(raw []byte) (map[string]*Entry, map[string]*Group, error) {
	var doc fileDoc
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, nil, fmt.Errorf("failed to parse inventory: %w", err)
	}

	if err := validate.Struct(&doc); err != nil {
		return nil, nil, fmt.Errorf("invalid inventory: %w", err)
	}

	groups := make(map[string]*Group, len(doc.Groups))
	for name, g := range doc.Groups {
		groups[name] = &Group{Name: name, Data: Data(g.Data)}
		if groups[name].Data == nil {
			groups[name].Data = Data{}
		}
	}

	hosts := make(map[string]*Entry, len(doc.Hosts))
	for name, h := range doc.Hosts {
		for _, group := range h.Groups {
			if _, ok := groups[group]; !ok {
				return nil, nil, fmt.Errorf("invalid inventory: host %q references unknown group %q", name, group)
			}
		}
		entry := &Entry{Name: name, Groups: h.Groups, Data: Data(h.Data)}
		if entry.Data == nil {
			entry.Data = Data{}
		}
		hosts[name] = entry
	}

	return hosts, groups, nil
}

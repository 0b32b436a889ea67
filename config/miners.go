package config

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/justapithecus/leprechaun/types"
)

var conditionKeys = map[string]bool{
	"condition": true, "idle-minutes": true, "days": true,
	"from-time": true, "until-time": true,
	"conditions": true, "conditions-and": true, "conditions-or": true,
}

var minerKeys = map[string]bool{
	"currency": true, "address": true, "enabled": true, "backend": true,
	"path": true, "pool": true, "args": true,
	"process-priority": true, "process-threads": true,
}

// MinerList is a priority-ordered miner mapping.
type MinerList []MinerEntry

// UnmarshalYAML decodes a mapping, keeping document order.
func (l *MinerList) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode && node.Tag == "!!null" {
		*l = nil
		return nil
	}
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: miners must be a mapping of name to settings", node.Line)
	}

	seen := make(map[string]bool, len(node.Content)/2)
	out := make(MinerList, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		keyNode, valueNode := node.Content[i], node.Content[i+1]
		name := keyNode.Value
		if name == "" {
			return fmt.Errorf("line %d: empty miner name", keyNode.Line)
		}
		if seen[name] {
			return &types.InvalidConfigError{Miner: name, Message: fmt.Sprintf("duplicate miner (line %d)", keyNode.Line)}
		}
		seen[name] = true

		entry := MinerEntry{Name: name, Line: keyNode.Line}
		if !(valueNode.Kind == yaml.ScalarNode && valueNode.Tag == "!!null") {
			if valueNode.Kind != yaml.MappingNode {
				return &types.InvalidConfigError{Miner: name, Message: fmt.Sprintf("line %d: settings must be a mapping", valueNode.Line)}
			}
			if err := checkKeys(valueNode, true, ""); err != nil {
				return types.ForMiner(name, err)
			}
			if err := valueNode.Decode(&entry); err != nil {
				return types.ForMiner(name, err)
			}
		}
		entry.Name = name
		entry.Line = keyNode.Line
		entry.Currency = strings.ToUpper(entry.Currency)
		out = append(out, entry)
	}
	*l = out
	return nil
}

// MarshalYAML renders the list back as an ordered mapping.
func (l MinerList) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, e := range l {
		var value yaml.Node
		if err := value.Encode(e); err != nil {
			return nil, err
		}
		node.Content = append(node.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: e.Name}, &value)
	}
	return node, nil
}

// checkKeys rejects unknown keys in a miner entry and in nested condition
// lists.
func checkKeys(node *yaml.Node, top bool, path string) error {
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i].Value
		field := key
		if path != "" {
			field = path + "." + key
		}
		if !conditionKeys[key] && !(top && minerKeys[key]) {
			return types.NewInvalidConfig(field, "unknown key (line %d)", node.Content[i].Line)
		}
		switch key {
		case "conditions", "conditions-and", "conditions-or":
			list := node.Content[i+1]
			if list.Kind != yaml.SequenceNode {
				return types.NewInvalidConfig(field, "must be a list (line %d)", list.Line)
			}
			for j, item := range list.Content {
				if item.Kind != yaml.MappingNode {
					return types.NewInvalidConfig(fmt.Sprintf("%s[%d]", field, j), "must be a mapping (line %d)", item.Line)
				}
				if err := checkKeys(item, false, fmt.Sprintf("%s[%d]", field, j)); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// ResolveAddress returns the entry's payout address: its own address, else
// the currency's entry in addresses.
func (c *Config) ResolveAddress(e MinerEntry) (string, error) {
	addr := strings.TrimSpace(e.Address)
	if addr == "" {
		addr = strings.TrimSpace(c.Addresses[e.Currency])
	}
	if addr == "" {
		return "", types.NewInvalidConfig("address", "no address for currency '%s' (set addresses.%s or the miner's address)", e.Currency, e.Currency)
	}
	if addr == PlaceholderAddress {
		return "", types.NewInvalidConfig("address", "address for currency '%s' is still the placeholder %q", e.Currency, PlaceholderAddress)
	}
	return addr, nil
}

package commands

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"

	groups "github.com/goliatone/go-overlay-groups"
)

// render writes value in the selected output format. Documents keep their
// key order in both formats.
func (a *app) render(value any) error {
	data, err := encodeJSON(value)
	if err != nil {
		return err
	}
	if a.output == "yaml" {
		data, err = jsonToYAML(data)
		if err != nil {
			return err
		}
	}
	_, err = a.stdout.Write(data)
	return err
}

func encodeJSON(value any) ([]byte, error) {
	if doc, ok := value.(groups.Document); ok {
		return doc.Indent()
	}
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode output: %w", err)
	}
	return append(data, '\n'), nil
}

// jsonToYAML re-encodes JSON through a yaml.Node so mapping order survives.
func jsonToYAML(data []byte) ([]byte, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, fmt.Errorf("convert output to yaml: %w", err)
	}
	blockStyle(&node)
	out, err := yaml.Marshal(&node)
	if err != nil {
		return nil, fmt.Errorf("convert output to yaml: %w", err)
	}
	return out, nil
}

func blockStyle(node *yaml.Node) {
	switch node.Kind {
	case yaml.MappingNode, yaml.SequenceNode:
		node.Style &^= yaml.FlowStyle
	case yaml.ScalarNode:
		node.Style &^= yaml.DoubleQuotedStyle
	}
	for _, child := range node.Content {
		blockStyle(child)
	}
}

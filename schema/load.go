package schema

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/vmaark/storesync/types"
)

type tablesYAMLConfig struct {
	Tables []tableYAMLConfig `yaml:"tables"`
}

type tableYAMLConfig struct {
	Namespace string        `yaml:"namespace,omitempty"`
	Name      string        `yaml:"name"`
	Type      *string       `yaml:"type,omitempty"`
	Key       yaml.Node `yaml:"key,omitempty"`
	Schema    yaml.Node `yaml:"schema"`
}

// LoadFile reads table definitions from a YAML file. See Load.
func LoadFile(path string) ([]*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tables file: %w", err)
	}
	return Load(bytes.NewReader(data))
}

// Load reads table definitions of the form
//
//	tables:
//	  - namespace: app
//	    name: Position
//	    type: table          # or offchainTable
//	    key: {player: address}
//	    schema: {x: int32, y: int32, label: string}
//
// Field order in key and schema is significant and preserved.
func Load(r io.Reader) ([]*Table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read tables: %w", err)
	}

	var cfg tablesYAMLConfig
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse tables: %w", err)
	}

	out := make([]*Table, 0, len(cfg.Tables))
	for i, tc := range cfg.Tables {
		t, err := tc.table()
		if err != nil {
			return nil, fmt.Errorf("table %d: %w", i, err)
		}
		if err := t.Validate(); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func (tc tableYAMLConfig) table() (*Table, error) {
	kind := types.KindTable
	if tc.Type != nil {
		switch *tc.Type {
		case "table":
		case "offchainTable":
			kind = types.KindOffchainTable
		default:
			return nil, fmt.Errorf("unknown table type %q", *tc.Type)
		}
	}

	key, err := fieldsFromNode(&tc.Key)
	if err != nil {
		return nil, fmt.Errorf("%s key: %w", tc.Name, err)
	}
	value, err := fieldsFromNode(&tc.Schema)
	if err != nil {
		return nil, fmt.Errorf("%s schema: %w", tc.Name, err)
	}
	return NewTable(kind, tc.Namespace, tc.Name, key, value), nil
}

// fieldsFromNode reads a mapping of field name to type name. Names are taken
// from the source text, so keys such as y or no stay strings.
func fieldsFromNode(node *yaml.Node) ([]Field, error) {
	if node.Kind == 0 {
		return nil, nil
	}
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: expected a mapping of field names to types", node.Line)
	}
	out := make([]Field, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		k, v := node.Content[i], node.Content[i+1]
		if k.Kind != yaml.ScalarNode || k.Value == "" {
			return nil, fmt.Errorf("line %d: field name must be a scalar", k.Line)
		}
		name := k.Value
		if v.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("field %q: type must be a scalar", name)
		}
		t, err := ParseType(v.Value)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", name, err)
		}
		out = append(out, Field{Name: name, Type: t})
	}
	return out, nil
}

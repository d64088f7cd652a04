package schema

import (
	"errors"
	"fmt"

	"github.com/vmaark/storesync/types"
)

// MaxDynamicFields is the number of lengths an encoded length table carries.
const MaxDynamicFields = 5

var ErrInvalidTable = errors.New("invalid table schema")

type Field struct {
	Name string
	Type Type
}

// Table describes the binary layout of one table. It is immutable once registered.
type Table struct {
	ID        types.TableID
	Namespace string
	Name      string
	Key       []Field
	Value     []Field
}

// NewTable builds a table whose id is derived from kind, namespace and name.
func NewTable(kind types.ResourceKind, namespace, name string, key, value []Field) *Table {
	return &Table{
		ID:        types.NewTableID(kind, namespace, name),
		Namespace: namespace,
		Name:      name,
		Key:       key,
		Value:     value,
	}
}

func (t *Table) Label() string {
	if t.Namespace != "" {
		return t.Namespace + "__" + t.Name
	}
	return t.Name
}

// StaticFields returns the static value fields in declaration order.
func (t *Table) StaticFields() []Field {
	var out []Field
	for _, f := range t.Value {
		if f.Type.IsStatic() {
			out = append(out, f)
		}
	}
	return out
}

// DynamicFields returns the dynamic value fields in declaration order.
func (t *Table) DynamicFields() []Field {
	var out []Field
	for _, f := range t.Value {
		if !f.Type.IsStatic() {
			out = append(out, f)
		}
	}
	return out
}

// StaticByteLength is the total width of the static value fields.
func (t *Table) StaticByteLength() int {
	total := 0
	for _, f := range t.Value {
		total += f.Type.StaticByteLength()
	}
	return total
}

func (t *Table) Validate() error {
	if t == nil {
		return fmt.Errorf("%w: nil table", ErrInvalidTable)
	}
	if t.Name == "" {
		return fmt.Errorf("%w: table name is required", ErrInvalidTable)
	}
	seen := map[string]bool{}
	for _, f := range t.Key {
		if err := validateField(t, f, seen); err != nil {
			return err
		}
		if !f.Type.IsStatic() {
			return fmt.Errorf("%w: %s: key field %q has dynamic type %s", ErrInvalidTable, t.Label(), f.Name, f.Type)
		}
	}
	for _, f := range t.Value {
		if err := validateField(t, f, seen); err != nil {
			return err
		}
	}
	if n := len(t.DynamicFields()); n > MaxDynamicFields {
		return fmt.Errorf("%w: %s: %d dynamic fields, at most %d allowed", ErrInvalidTable, t.Label(), n, MaxDynamicFields)
	}
	return nil
}

func validateField(t *Table, f Field, seen map[string]bool) error {
	if f.Name == "" {
		return fmt.Errorf("%w: %s: field name is required", ErrInvalidTable, t.Label())
	}
	if seen[f.Name] {
		return fmt.Errorf("%w: %s: duplicate field %q", ErrInvalidTable, t.Label(), f.Name)
	}
	seen[f.Name] = true
	if !f.Type.Valid() {
		return fmt.Errorf("%w: %s: field %q has %s", ErrInvalidTable, t.Label(), f.Name, f.Type)
	}
	return nil
}

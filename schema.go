package rowbind

import (
	"fmt"
	"hash/fnv"
	"reflect"
	"strings"
)

// NamedTypeList is the ordered (name, type) description of a row, e.g. the
// result columns of a query. It is immutable once built.
type NamedTypeList struct {
	names []string
	types []reflect.Type
	hash  uint64 // FNV-1a of names and type strings
}

// NamedTypeListBuilder collects exactly size entries for a NamedTypeList.
type NamedTypeListBuilder struct {
	names []string
	types []reflect.Type
	size  int
	built bool
}

// NewNamedTypeListBuilder returns a builder expecting exactly size entries.
// A negative size makes Add and Build fail.
func NewNamedTypeListBuilder(size int) *NamedTypeListBuilder {
	return &NamedTypeListBuilder{
		names: make([]string, 0, max(size, 0)),
		types: make([]reflect.Type, 0, max(size, 0)),
		size:  size,
	}
}

// Add appends a column. It fails once the builder is full or built.
func (b *NamedTypeListBuilder) Add(name string, typ reflect.Type) error {
	switch {
	case b.size < 0:
		return fmt.Errorf("%w: %d", ErrBuilderSize, b.size)
	case b.built:
		return ErrBuilderFinalized
	case len(b.names) >= b.size:
		return fmt.Errorf("%w: capacity is %d", ErrBuilderFull, b.size)
	case name == "":
		return fmt.Errorf("rowbind: empty column name at position %d", len(b.names))
	case typ == nil:
		return fmt.Errorf("rowbind: nil type for column %q", name)
	}
	b.names = append(b.names, name)
	b.types = append(b.types, typ)
	return nil
}

// Build finalizes the list. The builder can't be used afterwards.
func (b *NamedTypeListBuilder) Build() (*NamedTypeList, error) {
	if b.size < 0 {
		return nil, fmt.Errorf("%w: %d", ErrBuilderSize, b.size)
	}
	if b.built {
		return nil, ErrBuilderFinalized
	}
	if len(b.names) != b.size {
		return nil, fmt.Errorf("%w: expected %d items, but got only %d", ErrBuilderIncomplete, b.size, len(b.names))
	}
	b.built = true

	h := fnv.New64a()
	for i := range b.names {
		_, _ = h.Write([]byte(b.names[i]))
		_, _ = h.Write([]byte{0})
		_, _ = h.Write([]byte(b.types[i].String()))
		_, _ = h.Write([]byte{0})
	}
	return &NamedTypeList{names: b.names, types: b.types, hash: h.Sum64()}, nil
}

// NamedTypeListOf builds a list from parallel name and type slices.
func NamedTypeListOf(names []string, types []reflect.Type) (*NamedTypeList, error) {
	if len(names) != len(types) {
		return nil, fmt.Errorf("rowbind: %d names but %d types", len(names), len(types))
	}
	b := NewNamedTypeListBuilder(len(names))
	for i := range names {
		if err := b.Add(names[i], types[i]); err != nil {
			return nil, err
		}
	}
	return b.Build()
}

func (l *NamedTypeList) Size() int               { return len(l.types) }
func (l *NamedTypeList) Name(i int) string       { return l.names[i] }
func (l *NamedTypeList) Type(i int) reflect.Type { return l.types[i] }
func (l *NamedTypeList) Names() []string         { return append([]string(nil), l.names...) }
func (l *NamedTypeList) Types() []reflect.Type   { return append([]reflect.Type(nil), l.types...) }

// Equal reports whether both lists have the same names and types in order.
func (l *NamedTypeList) Equal(o *NamedTypeList) bool {
	if l == o {
		return true
	}
	if l == nil || o == nil || l.hash != o.hash || len(l.types) != len(o.types) {
		return false
	}
	for i := range l.types {
		if l.names[i] != o.names[i] || l.types[i] != o.types[i] {
			return false
		}
	}
	return true
}

func (l *NamedTypeList) String() string {
	var sb strings.Builder
	sb.Grow(10 + len(l.types)*30)
	sb.WriteByte('[')
	for i := range l.types {
		if i != 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(l.names[i])
		sb.WriteString(": ")
		sb.WriteString(l.types[i].String())
	}
	sb.WriteByte(']')
	return sb.String()
}

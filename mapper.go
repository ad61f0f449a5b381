package rowbind

import (
	"database/sql"
	"fmt"
	"reflect"
	"sync"
)

// Mapper binds database/sql results to Go types through an
// InstantiatorProvider. Use the package-level DefaultMapper or create your
// own to register constructors and conversions.
type Mapper struct {
	provider *InstantiatorProvider
}

// NewMapper returns a Mapper with a fresh provider configured by opts.
func NewMapper(opts ...Option) *Mapper {
	return &Mapper{provider: NewInstantiatorProvider(opts...)}
}

// NewMapperWithProvider returns a Mapper sharing p.
func NewMapperWithProvider(p *InstantiatorProvider) *Mapper { return &Mapper{provider: p} }

func (m *Mapper) Provider() *InstantiatorProvider { return m.provider }

// --- package-level lazy global mapper (used by Query/Get/Exec) ---

var (
	mapper     *Mapper
	mapperOnce sync.Once
)

// DefaultMapper returns the mapper used by Query, Get and Exec.
func DefaultMapper() *Mapper {
	mapperOnce.Do(func() { mapper = NewMapper() })
	return mapper
}

// SchemaOf describes the columns of rows. Names are unquoted; types come
// from the driver's scan types with sql.RawBytes reported as []byte and
// sql.Null wrappers reported as their value type.
func SchemaOf(rows *sql.Rows) (*NamedTypeList, error) {
	cts, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}
	if len(cts) == 0 {
		return nil, fmt.Errorf("rowbind: query returned zero columns")
	}
	b := NewNamedTypeListBuilder(len(cts))
	for _, ct := range cts {
		if err := b.Add(unquoteColumn(ct.Name()), declaredType(ct.ScanType())); err != nil {
			return nil, err
		}
	}
	return b.Build()
}

var rawBytesType = reflect.TypeOf(sql.RawBytes(nil))

func declaredType(t reflect.Type) reflect.Type {
	switch {
	case t == nil:
		return anyType
	case t == rawBytesType:
		return bytesType
	case isSQLNull(t):
		return t.Field(0).Type
	}
	return t
}

// rowReader instantiates T from consecutive rows of one result set. The
// instantiator is resolved once, on construction.
type rowReader[T any] struct {
	types  *NamedTypeList
	inst   Instantiator
	values []any
	dests  []any
	args   *InstantiatorArguments
}

func newRowReader[T any](m *Mapper, rows *sql.Rows) (*rowReader[T], error) {
	types, err := SchemaOf(rows)
	if err != nil {
		return nil, err
	}
	inst, err := m.provider.FindInstantiator(typeOf[T](), types)
	if err != nil {
		return nil, err
	}
	r := &rowReader[T]{
		types:  types,
		inst:   inst,
		values: make([]any, types.Size()),
		dests:  make([]any, types.Size()),
	}
	for i := range r.values {
		r.dests[i] = &r.values[i]
	}
	r.args = &InstantiatorArguments{types: types, values: r.values}
	return r, nil
}

// read scans the current row into T.
func (r *rowReader[T]) read(rows *sql.Rows) (T, error) {
	var zero T
	if err := rows.Scan(r.dests...); err != nil {
		return zero, err
	}
	v, err := r.inst.Instantiate(r.args)
	if err != nil {
		return zero, err
	}
	return Cast[T](v)
}

// argsToDatabase maps query parameters through ValueToDatabase.
func (m *Mapper) argsToDatabase(args []any) ([]any, error) {
	if len(args) == 0 {
		return args, nil
	}
	out := make([]any, len(args))
	for i, a := range args {
		if na, ok := a.(sql.NamedArg); ok {
			v, err := m.provider.ValueToDatabase(na.Value)
			if err != nil {
				return nil, fmt.Errorf("rowbind: argument %q: %w", na.Name, err)
			}
			na.Value = v
			out[i] = na
			continue
		}
		v, err := m.provider.ValueToDatabase(a)
		if err != nil {
			return nil, fmt.Errorf("rowbind: argument %d: %w", i+1, err)
		}
		out[i] = v
	}
	return out, nil
}

// ---------------- Column names ----------------

func unquoteColumn(s string) string {
	if l := len(s); l >= 2 {
		switch s[0] {
		case '"':
			if s[l-1] == '"' {
				return s[1 : l-1]
			}
		case '`':
			if s[l-1] == '`' {
				return s[1 : l-1]
			}
		case '[':
			if s[l-1] == ']' {
				return s[1 : l-1]
			}
		}
	}
	return s
}

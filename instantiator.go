package rowbind

import (
	"fmt"
	"reflect"
)

// Instantiator builds one value from one row. Implementations are immutable
// and reused for every row of a result with the same schema.
type Instantiator interface {
	Instantiate(args *InstantiatorArguments) (any, error)
}

// InstantiatorFunc adapts a function to Instantiator.
type InstantiatorFunc func(args *InstantiatorArguments) (any, error)

func (f InstantiatorFunc) Instantiate(args *InstantiatorArguments) (any, error) { return f(args) }

// InstantiatorArguments is one row: a schema and its values.
type InstantiatorArguments struct {
	types  *NamedTypeList
	values []any
}

// NewInstantiatorArguments pairs values with types. The values slice is used
// in place, so a caller may refill it between rows.
func NewInstantiatorArguments(types *NamedTypeList, values []any) (*InstantiatorArguments, error) {
	if len(values) != types.Size() {
		return nil, fmt.Errorf("%w: %d values for %v", ErrArgumentCount, len(values), types)
	}
	return &InstantiatorArguments{types: types, values: values}, nil
}

func (a *InstantiatorArguments) Types() *NamedTypeList { return a.types }
func (a *InstantiatorArguments) Values() []any         { return a.values }
func (a *InstantiatorArguments) Size() int             { return len(a.values) }

// Single returns the only value of a one-column row.
func (a *InstantiatorArguments) Single() (any, error) {
	if len(a.values) != 1 {
		return nil, fmt.Errorf("%w: expected a single value, got %d", ErrArgumentCount, len(a.values))
	}
	return a.values[0], nil
}

// CoercionInstantiator builds the result from a single column through one
// conversion.
type CoercionInstantiator struct {
	conversion *Conversion
}

func (c *CoercionInstantiator) Instantiate(args *InstantiatorArguments) (any, error) {
	v, err := args.Single()
	if err != nil {
		return nil, err
	}
	return c.conversion.Convert(v)
}

// ReflectionInstantiator calls a constructor with the leading columns and
// stores the remaining columns through property accessors.
type ReflectionInstantiator struct {
	target      reflect.Type
	ctor        *constructor
	conversions []*Conversion
	accessors   []PropertyAccessor
}

func (r *ReflectionInstantiator) Instantiate(args *InstantiatorArguments) (any, error) {
	values := args.Values()
	if len(values) != len(r.conversions) {
		return nil, fmt.Errorf("%w: %d values, instantiator for %v expects %d", ErrArgumentCount, len(values), r.target, len(r.conversions))
	}
	n := r.ctor.arity()

	params := make([]reflect.Value, n)
	for i := 0; i < n; i++ {
		cv, err := r.conversions[i].Convert(values[i])
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", args.types.Name(i), err)
		}
		pv, err := valueFor(cv, r.ctor.params[i])
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", args.types.Name(i), err)
		}
		params[i] = pv
	}

	obj, err := r.ctor.call(params)
	if err != nil {
		return nil, err
	}

	for i, acc := range r.accessors {
		col := n + i
		cv, err := r.conversions[col].Convert(values[col])
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", args.types.Name(col), err)
		}
		if err := acc.Set(obj, cv); err != nil {
			return nil, fmt.Errorf("column %q: %w", args.types.Name(col), err)
		}
	}

	if r.target.Kind() == reflect.Pointer {
		return obj.Interface(), nil
	}
	return obj.Elem().Interface(), nil
}

// Cast converts an instantiated value to T. A nil value yields the zero T
// when T can hold nil and ErrUnexpectedNull otherwise.
func Cast[T any](v any) (T, error) {
	var zero T
	if v == nil {
		if nillable(typeOf[T]()) {
			return zero, nil
		}
		return zero, fmt.Errorf("%w: can't store NULL in %v", ErrUnexpectedNull, typeOf[T]())
	}
	out, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("rowbind: instantiated %T, expected %v", v, typeOf[T]())
	}
	return out, nil
}

// valueFor wraps v as a reflect.Value of type t.
func valueFor(v any, t reflect.Type) (reflect.Value, error) {
	if v == nil {
		if nillable(t) {
			return reflect.Zero(t), nil
		}
		return reflect.Value{}, fmt.Errorf("%w: can't store NULL in %v", ErrUnexpectedNull, t)
	}
	rv := reflect.ValueOf(v)
	if !rv.Type().AssignableTo(t) {
		return reflect.Value{}, fmt.Errorf("rowbind: value of type %v is not assignable to %v", rv.Type(), t)
	}
	return rv, nil
}

func nillable(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Slice, reflect.Map, reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return true
	}
	return false
}

package rowbind

import (
	"fmt"
	"reflect"

	"go.uber.org/multierr"
)

// Array is a driver-level handle to an array-valued column. The handle owns
// resources until Release is called.
type Array interface {
	// Rows opens a cursor over the elements.
	Rows() (ArrayRows, error)
	Release() error
}

// ArrayRows iterates over the elements of an Array.
type ArrayRows interface {
	// ElementType is the declared type of the elements. nil means any.
	ElementType() reflect.Type
	Next() bool
	Value() any
	Err() error
	Close() error
}

var arrayType = reflect.TypeOf((*Array)(nil)).Elem()

// SliceArray is an Array over values already in memory.
type SliceArray struct {
	elem     reflect.Type
	values   []any
	released bool
}

// NewArray returns an Array of values whose declared element type is elem.
func NewArray(elem reflect.Type, values []any) *SliceArray {
	return &SliceArray{elem: elem, values: values}
}

func (a *SliceArray) Len() int { return len(a.values) }

func (a *SliceArray) Rows() (ArrayRows, error) {
	if a.released {
		return nil, fmt.Errorf("rowbind: array already released")
	}
	return &sliceArrayRows{elem: a.elem, values: a.values, pos: -1}, nil
}

func (a *SliceArray) Release() error {
	a.released = true
	return nil
}

// Released reports whether Release was called.
func (a *SliceArray) Released() bool { return a.released }

type sliceArrayRows struct {
	elem   reflect.Type
	values []any
	pos    int
}

func (r *sliceArrayRows) ElementType() reflect.Type { return r.elem }
func (r *sliceArrayRows) Value() any                { return r.values[r.pos] }
func (r *sliceArrayRows) Err() error                { return nil }
func (r *sliceArrayRows) Close() error              { return nil }

func (r *sliceArrayRows) Next() bool {
	if r.pos+1 >= len(r.values) {
		return false
	}
	r.pos++
	return true
}

// arrayShape collects converted elements into one target type.
type arrayShape struct {
	elem  reflect.Type
	build func(elems []reflect.Value) (reflect.Value, error)
}

func arrayShapeOf(target reflect.Type) (arrayShape, bool) {
	switch target.Kind() {
	case reflect.Slice:
		return arrayShape{elem: target.Elem(), build: func(elems []reflect.Value) (reflect.Value, error) {
			out := reflect.MakeSlice(target, len(elems), len(elems))
			for i, e := range elems {
				out.Index(i).Set(e)
			}
			return out, nil
		}}, true
	case reflect.Array:
		return arrayShape{elem: target.Elem(), build: func(elems []reflect.Value) (reflect.Value, error) {
			if len(elems) != target.Len() {
				return reflect.Value{}, fmt.Errorf("expected %d elements for %v, got %d", target.Len(), target, len(elems))
			}
			out := reflect.New(target).Elem()
			for i, e := range elems {
				out.Index(i).Set(e)
			}
			return out, nil
		}}, true
	case reflect.Map:
		var present reflect.Value
		switch {
		case target.Elem() == reflect.TypeOf(struct{}{}):
			present = reflect.ValueOf(struct{}{})
		case target.Elem().Kind() == reflect.Bool:
			present = reflect.ValueOf(true).Convert(target.Elem())
		default:
			return arrayShape{}, false
		}
		return arrayShape{elem: target.Key(), build: func(elems []reflect.Value) (reflect.Value, error) {
			out := reflect.MakeMapWithSize(target, len(elems))
			for _, e := range elems {
				if !e.Comparable() {
					return reflect.Value{}, fmt.Errorf("element of type %T can't be a key of %v", e.Interface(), target)
				}
				out.SetMapIndex(e, present)
			}
			return out, nil
		}}, true
	}
	return arrayShape{}, false
}

// arrayConversion reads an Array into a slice, a fixed-size array or a set.
// Element instantiators are resolved through p using the array's declared
// element type.
func (p *InstantiatorProvider) arrayConversion(source, target reflect.Type) (*Conversion, bool) {
	shape, ok := arrayShapeOf(target)
	if !ok {
		return nil, false
	}
	return NewConversionFunc(source, target, func(v any) (any, error) {
		if v == nil {
			return nil, nil
		}
		arr, ok := v.(Array)
		if !ok {
			return nil, fmt.Errorf("value of type %T is not an array", v)
		}
		out, err := p.readArray(arr, shape)
		if err != nil {
			return nil, err
		}
		return out.Interface(), nil
	}), true
}

func (p *InstantiatorProvider) readArray(arr Array, shape arrayShape) (_ reflect.Value, err error) {
	defer func() { err = multierr.Append(err, arr.Release()) }()

	rows, err := arr.Rows()
	if err != nil {
		return reflect.Value{}, err
	}
	defer func() { err = multierr.Append(err, rows.Close()) }()

	elemType := rows.ElementType()
	if elemType == nil {
		elemType = anyType
	}
	schema, err := NamedTypeListOf([]string{"value"}, []reflect.Type{elemType})
	if err != nil {
		return reflect.Value{}, err
	}
	inst, err := p.FindInstantiator(shape.elem, schema)
	if err != nil {
		return reflect.Value{}, err
	}

	values := make([]any, 1)
	args := &InstantiatorArguments{types: schema, values: values}
	var elems []reflect.Value
	for rows.Next() {
		values[0] = rows.Value()
		e, err := inst.Instantiate(args)
		if err != nil {
			return reflect.Value{}, err
		}
		if e == nil {
			if !nillable(shape.elem) {
				return reflect.Value{}, fmt.Errorf("%w: expected %v, but got NULL in array", ErrUnexpectedNull, shape.elem)
			}
			elems = append(elems, reflect.Zero(shape.elem))
			continue
		}
		ev, err := valueFor(e, shape.elem)
		if err != nil {
			return reflect.Value{}, err
		}
		elems = append(elems, ev)
	}
	if err := rows.Err(); err != nil {
		return reflect.Value{}, err
	}
	return shape.build(elems)
}

var anyType = reflect.TypeOf((*any)(nil)).Elem()

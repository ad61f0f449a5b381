package rowbind

import (
	"errors"
	"fmt"
	"reflect"
)

// Conversion is a pure function from values of Source to values of Target.
type Conversion struct {
	source reflect.Type
	target reflect.Type
	fn     func(any) (any, error)
	name   string
}

// NewConversion lifts fn into a Conversion. A nil input is passed through as
// nil without calling fn.
//
// Inputs whose dynamic type is a defined type over S (for example a named
// string when S is string) are converted to S before fn is called.
func NewConversion[S, T any](fn func(S) (T, error)) *Conversion {
	src, dst := typeOf[S](), typeOf[T]()
	return &Conversion{
		source: src,
		target: dst,
		name:   fmt.Sprintf("%v->%v", src, dst),
		fn: func(v any) (any, error) {
			if v == nil {
				return nil, nil
			}
			s, ok := v.(S)
			if !ok {
				rv := reflect.ValueOf(v)
				if src.Kind() == reflect.Interface || !rv.Type().ConvertibleTo(src) {
					return nil, fmt.Errorf("unexpected value of type %T", v)
				}
				s = rv.Convert(src).Interface().(S)
			}
			return fn(s)
		},
	}
}

// NewConversionFunc builds a Conversion from a raw function that also
// receives nil.
func NewConversionFunc(source, target reflect.Type, fn func(any) (any, error)) *Conversion {
	return &Conversion{source: source, target: target, fn: fn, name: fmt.Sprintf("%v->%v", source, target)}
}

func (c *Conversion) Source() reflect.Type { return c.source }
func (c *Conversion) Target() reflect.Type { return c.target }
func (c *Conversion) String() string       { return c.name }

// Convert applies the conversion. Failures are returned as *ConversionError.
func (c *Conversion) Convert(v any) (any, error) {
	out, err := c.fn(v)
	if err != nil {
		var ce *ConversionError
		if errors.As(err, &ce) || errors.Is(err, ErrUnexpectedNull) {
			return nil, err
		}
		return nil, &ConversionError{Source: c.source, Target: c.target, Err: err}
	}
	return out, nil
}

func identityConversion(source, target reflect.Type) *Conversion {
	return &Conversion{
		source: source,
		target: target,
		name:   "identity",
		fn:     func(v any) (any, error) { return v, nil },
	}
}

// assignConversion retypes values of source as target, which source must be
// assignable to.
func assignConversion(source, target reflect.Type) *Conversion {
	if target.Kind() == reflect.Interface {
		return identityConversion(source, target)
	}
	return &Conversion{
		source: source,
		target: target,
		name:   "assign",
		fn: func(v any) (any, error) {
			if v == nil {
				return nil, nil
			}
			rv := reflect.ValueOf(v)
			if !rv.Type().ConvertibleTo(target) {
				return nil, fmt.Errorf("unexpected value of type %T", v)
			}
			return rv.Convert(target).Interface(), nil
		},
	}
}

// compose returns a conversion applying first, then second.
func compose(first, second *Conversion) *Conversion {
	return &Conversion{
		source: first.source,
		target: second.target,
		name:   first.name + "|" + second.name,
		fn: func(v any) (any, error) {
			mid, err := first.Convert(v)
			if err != nil {
				return nil, err
			}
			return second.Convert(mid)
		},
	}
}

func typeOf[T any]() reflect.Type { return reflect.TypeOf((*T)(nil)).Elem() }

package rowbind

import (
	"fmt"
	"reflect"
	"runtime"
)

// constructor is a function building values of base: func(P...) base,
// func(P...) *base, optionally with a trailing error result. A constructor
// with a zero fn is the implicit zero-value constructor of a struct.
type constructor struct {
	fn         reflect.Value
	name       string
	params     []reflect.Type
	base       reflect.Type
	returnsPtr bool
	withErr    bool
}

func newConstructor(fn any) (*constructor, error) {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func || v.IsNil() {
		return nil, fmt.Errorf("%w: %T is not a function", ErrNotConstructor, fn)
	}
	t := v.Type()
	if t.IsVariadic() {
		return nil, fmt.Errorf("%w: %v is variadic", ErrNotConstructor, t)
	}
	switch {
	case t.NumOut() == 1:
	case t.NumOut() == 2 && t.Out(1) == errorType:
	default:
		return nil, fmt.Errorf("%w: %v must return T, *T, (T, error) or (*T, error)", ErrNotConstructor, t)
	}

	c := &constructor{fn: v, name: funcName(v), withErr: t.NumOut() == 2}
	c.base = t.Out(0)
	if c.base.Kind() == reflect.Pointer {
		c.base = c.base.Elem()
		c.returnsPtr = true
	}
	c.params = make([]reflect.Type, t.NumIn())
	for i := range c.params {
		c.params[i] = t.In(i)
	}
	return c, nil
}

func zeroConstructor(base reflect.Type) *constructor {
	return &constructor{name: "new(" + base.String() + ")", base: base}
}

func (c *constructor) arity() int { return len(c.params) }

// call invokes the constructor and returns a pointer to the built value.
func (c *constructor) call(params []reflect.Value) (reflect.Value, error) {
	if !c.fn.IsValid() {
		return reflect.New(c.base), nil
	}
	out := c.fn.Call(params)
	if c.withErr && !out[1].IsNil() {
		return reflect.Value{}, fmt.Errorf("rowbind: constructor %s: %w", c.name, out[1].Interface().(error))
	}
	if c.returnsPtr {
		if out[0].IsNil() {
			return reflect.Value{}, fmt.Errorf("rowbind: constructor %s returned nil", c.name)
		}
		return out[0], nil
	}
	p := reflect.New(c.base)
	p.Elem().Set(out[0])
	return p, nil
}

func (c *constructor) String() string { return c.name }

func funcName(v reflect.Value) string {
	if f := runtime.FuncForPC(v.Pointer()); f != nil {
		return f.Name()
	}
	return v.Type().String()
}

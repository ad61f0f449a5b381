package rowbind

import (
	"database/sql/driver"
	"fmt"
	"reflect"
)

// enumInfo records how the values of a registered enumeration map to keys.
type enumInfo struct {
	typ    reflect.Type
	byKey  map[any]any
	byName map[string]any // fmt.Sprint of the key
	keyOf  func(any) any
	native string // database type name for native enums
}

func (e *enumInfo) lookup(v any) (any, error) {
	if reflect.TypeOf(v).Comparable() {
		if out, ok := e.byKey[v]; ok {
			return out, nil
		}
	}
	var name string
	switch s := v.(type) {
	case string:
		name = s
	case []byte:
		name = string(s)
	default:
		name = fmt.Sprint(v)
	}
	if out, ok := e.byName[name]; ok {
		return out, nil
	}
	return nil, fmt.Errorf("unknown %v key %q", e.typ, name)
}

// toDatabase returns the database representation of an enum value.
func (e *enumInfo) toDatabase(v any) any {
	key := e.keyOf(v)
	if e.native != "" {
		return NativeEnumValue{TypeName: e.native, Name: fmt.Sprint(key)}
	}
	return key
}

// conversionFrom builds a by-key conversion from any declared source type.
func (e *enumInfo) conversionFrom(source reflect.Type) *Conversion {
	return &Conversion{
		source: source,
		target: e.typ,
		name:   fmt.Sprintf("enum(%v)", e.typ),
		fn: func(v any) (any, error) {
			if v == nil {
				return nil, nil
			}
			return e.lookup(v)
		},
	}
}

// NativeEnumValue is the parameter written for a native enum. Drivers that
// understand it can cast Name to TypeName; others see the plain name.
type NativeEnumValue struct {
	TypeName string
	Name     string
}

func (v NativeEnumValue) Value() (driver.Value, error) { return v.Name, nil }

func (v NativeEnumValue) String() string { return v.Name + "::" + v.TypeName }

// RegisterEnum registers E as an enumeration whose database representation
// is key(e). values lists every member of E.
func RegisterEnum[E any, K comparable](r *ConversionRegistry, key func(E) K, values ...E) {
	info := newEnumInfo(typeOf[E](), func(v any) any { return key(v.(E)) }, values)
	r.mu.Lock()
	r.enums[info.typ] = info
	r.mu.Unlock()
	r.gen.Add(1)

	RegisterFromDatabase(r, func(k K) (E, error) {
		out, err := info.lookup(k)
		if err != nil {
			var zero E
			return zero, err
		}
		return out.(E), nil
	})
	RegisterToDatabase(r, func(e E) (K, error) { return key(e), nil })
}

// RegisterNativeEnum registers E as a database-native enumeration type named
// typeName. Members are keyed by their name: String() when E implements
// fmt.Stringer, fmt.Sprint otherwise.
func RegisterNativeEnum[E any](r *ConversionRegistry, typeName string, values ...E) {
	info := newEnumInfo(typeOf[E](), func(v any) any { return fmt.Sprint(v) }, values)
	info.native = typeName
	r.mu.Lock()
	r.enums[info.typ] = info
	r.mu.Unlock()
	r.gen.Add(1)

	RegisterFromDatabase(r, func(name string) (E, error) {
		out, err := info.lookup(name)
		if err != nil {
			var zero E
			return zero, err
		}
		return out.(E), nil
	})
	RegisterToDatabase(r, func(e E) (NativeEnumValue, error) {
		return NativeEnumValue{TypeName: typeName, Name: fmt.Sprint(e)}, nil
	})
}

func newEnumInfo[E any](typ reflect.Type, keyOf func(any) any, values []E) *enumInfo {
	info := &enumInfo{
		typ:    typ,
		byKey:  make(map[any]any, len(values)),
		byName: make(map[string]any, len(values)),
		keyOf:  keyOf,
	}
	for _, v := range values {
		k := keyOf(v)
		info.byKey[k] = v
		info.byName[fmt.Sprint(k)] = v
	}
	return info
}

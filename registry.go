package rowbind

import (
	"reflect"
	"sync"
	"sync/atomic"
)

// conversionMap indexes conversions by their exact source type.
type conversionMap struct {
	mappings   map[reflect.Type][]*Conversion
	interfaces []reflect.Type // interface source keys, in registration order
}

func newConversionMap() conversionMap {
	return conversionMap{mappings: make(map[reflect.Type][]*Conversion)}
}

func (m *conversionMap) register(c *Conversion) {
	src := c.source
	if _, ok := m.mappings[src]; !ok && src.Kind() == reflect.Interface {
		m.interfaces = append(m.interfaces, src)
	}
	m.mappings[src] = append(m.mappings[src], c)
}

// find walks source and its supertypes first, then the interfaces source
// implements, returning the latest registered match from the first list that
// has one.
func (m *conversionMap) find(source, target reflect.Type) (*Conversion, bool) {
	for _, t := range supertypes(source) {
		if c, ok := latestMatching(m.mappings[t], target); ok {
			return c, true
		}
	}
	for _, iface := range m.interfaces {
		if iface == source || !source.Implements(iface) {
			continue
		}
		if c, ok := latestMatching(m.mappings[iface], target); ok {
			return c, true
		}
	}
	return nil, false
}

func (m *conversionMap) hasTarget(target reflect.Type) bool {
	for _, list := range m.mappings {
		if _, ok := latestMatching(list, target); ok {
			return true
		}
	}
	return false
}

func latestMatching(list []*Conversion, target reflect.Type) (*Conversion, bool) {
	for i := len(list) - 1; i >= 0; i-- {
		if target == nil || list[i].target.AssignableTo(target) {
			return list[i], true
		}
	}
	return nil, false
}

// supertypes returns t followed by its predeclared representation, if t is a
// defined type over a basic kind or over []byte.
func supertypes(t reflect.Type) []reflect.Type {
	if p := predeclared(t); p != nil && p != t {
		return []reflect.Type{t, p}
	}
	return []reflect.Type{t}
}

var predeclaredKinds = map[reflect.Kind]reflect.Type{
	reflect.Bool:       reflect.TypeOf(false),
	reflect.Int:        reflect.TypeOf(int(0)),
	reflect.Int8:       reflect.TypeOf(int8(0)),
	reflect.Int16:      reflect.TypeOf(int16(0)),
	reflect.Int32:      reflect.TypeOf(int32(0)),
	reflect.Int64:      reflect.TypeOf(int64(0)),
	reflect.Uint:       reflect.TypeOf(uint(0)),
	reflect.Uint8:      reflect.TypeOf(uint8(0)),
	reflect.Uint16:     reflect.TypeOf(uint16(0)),
	reflect.Uint32:     reflect.TypeOf(uint32(0)),
	reflect.Uint64:     reflect.TypeOf(uint64(0)),
	reflect.Float32:    reflect.TypeOf(float32(0)),
	reflect.Float64:    reflect.TypeOf(float64(0)),
	reflect.Complex64:  reflect.TypeOf(complex64(0)),
	reflect.Complex128: reflect.TypeOf(complex128(0)),
	reflect.String:     reflect.TypeOf(""),
}

var bytesType = reflect.TypeOf([]byte(nil))

// predeclared returns the predeclared type sharing t's representation, or nil.
func predeclared(t reflect.Type) reflect.Type {
	if p, ok := predeclaredKinds[t.Kind()]; ok {
		return p
	}
	if t.Kind() == reflect.Slice && t.Elem().Kind() == reflect.Uint8 {
		return bytesType
	}
	return nil
}

// ConversionRegistry holds conversions from database values (load) and to
// database values (store), plus registered enumerations.
//
// Registration is expected during setup; lookups are safe for concurrent use.
// Providers drop their cached resolutions when a registration happens later.
type ConversionRegistry struct {
	mu    sync.RWMutex
	load  conversionMap
	store conversionMap
	enums map[reflect.Type]*enumInfo
	gen   atomic.Uint64 // bumped on every registration
}

func NewConversionRegistry() *ConversionRegistry {
	return &ConversionRegistry{
		load:  newConversionMap(),
		store: newConversionMap(),
		enums: make(map[reflect.Type]*enumInfo),
	}
}

// RegisterFromDatabase adds a conversion used when reading values. Later
// registrations shadow earlier ones for the same source.
func (r *ConversionRegistry) RegisterFromDatabase(c *Conversion) {
	r.mu.Lock()
	r.load.register(c)
	r.mu.Unlock()
	r.gen.Add(1)
}

// RegisterToDatabase adds a conversion used when writing parameters.
func (r *ConversionRegistry) RegisterToDatabase(c *Conversion) {
	r.mu.Lock()
	r.store.register(c)
	r.mu.Unlock()
	r.gen.Add(1)
}

// FindFromDatabase looks up a conversion from a declared column type to a
// type assignable to target.
func (r *ConversionRegistry) FindFromDatabase(source, target reflect.Type) (*Conversion, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.load.find(source, target)
}

// FindToDatabase looks up the conversion applied to parameters of type source.
func (r *ConversionRegistry) FindToDatabase(source reflect.Type) (*Conversion, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.store.find(source, nil)
}

// generation changes whenever a conversion or enum is registered.
func (r *ConversionRegistry) generation() uint64 { return r.gen.Load() }

func (r *ConversionRegistry) hasLoadTarget(target reflect.Type) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.load.hasTarget(target)
}

func (r *ConversionRegistry) enum(t reflect.Type) (*enumInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.enums[t]
	return e, ok
}

// RegisterFromDatabase registers a typed conversion used when reading values.
func RegisterFromDatabase[S, T any](r *ConversionRegistry, fn func(S) (T, error)) {
	r.RegisterFromDatabase(NewConversion(fn))
}

// RegisterToDatabase registers a typed conversion used when writing values.
func RegisterToDatabase[S, T any](r *ConversionRegistry, fn func(S) (T, error)) {
	r.RegisterToDatabase(NewConversion(fn))
}

// RegisterConversions registers both directions between a database type D and
// a Go type T.
func RegisterConversions[D, T any](r *ConversionRegistry, load func(D) (T, error), store func(T) (D, error)) {
	RegisterFromDatabase(r, load)
	RegisterToDatabase(r, store)
}

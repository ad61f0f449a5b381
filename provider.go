package rowbind

import (
	"database/sql"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// ConstructorPolicy decides between constructors that all fit a schema.
type ConstructorPolicy int

const (
	// FirstMatch picks the first fitting constructor by descending arity.
	FirstMatch ConstructorPolicy = iota
	// CheapestConversion picks the fitting constructor with the lowest total
	// conversion cost. Ties keep descending arity order.
	CheapestConversion
)

func (p ConstructorPolicy) String() string {
	switch p {
	case FirstMatch:
		return "first-match"
	case CheapestConversion:
		return "cheapest-conversion"
	}
	return fmt.Sprintf("ConstructorPolicy(%d)", int(p))
}

// Conversion costs, lower is better.
const (
	costExact          = 0
	costAssignable     = 1
	costWrapping       = 2
	costRepresentation = 3
	costEnum           = 4
	costRegistered     = 5
)

// Option configures an InstantiatorProvider.
type Option func(*InstantiatorProvider)

// WithLogger sets the logger used for debug output. Defaults to zap.NewNop().
func WithLogger(l *zap.Logger) Option {
	return func(p *InstantiatorProvider) {
		if l != nil {
			p.log = l
		}
	}
}

// WithRegisterer registers the provider's metrics with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(p *InstantiatorProvider) { p.reg = reg }
}

// WithConstructorPolicy sets how constructors are chosen. Defaults to FirstMatch.
func WithConstructorPolicy(policy ConstructorPolicy) Option {
	return func(p *InstantiatorProvider) { p.policy = policy }
}

// InstantiatorProvider resolves, and caches, the Instantiator for a target
// type and a row schema. It is safe for concurrent use; registrations are
// expected during setup.
type InstantiatorProvider struct {
	registry *ConversionRegistry
	log      *zap.Logger
	reg      prometheus.Registerer
	metrics  *providerMetrics
	policy   ConstructorPolicy

	mu           sync.RWMutex
	constructors map[reflect.Type][]*constructor // by base type
	factories    map[reflect.Type][]*constructor
	registered   map[reflect.Type]Instantiator

	cache   sync.Map      // cacheKey -> *cacheEntry
	dynamic sync.Map      // dynamicKey -> *Conversion (nil when unresolved)
	seenGen atomic.Uint64 // registry generation the caches were built against
}

type cacheKey struct {
	target reflect.Type
	hash   uint64
	size   int
}

type cacheEntry struct {
	types *NamedTypeList
	inst  Instantiator
}

type dynamicKey struct {
	source reflect.Type
	target reflect.Type
	gen    uint64
}

// NewInstantiatorProvider returns a provider with the built-in conversions
// installed.
func NewInstantiatorProvider(opts ...Option) *InstantiatorProvider {
	p := &InstantiatorProvider{
		registry:     NewConversionRegistry(),
		log:          zap.NewNop(),
		constructors: make(map[reflect.Type][]*constructor),
		factories:    make(map[reflect.Type][]*constructor),
		registered:   make(map[reflect.Type]Instantiator),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.metrics = newProviderMetrics(p.reg)

	registerDefaultConversions(p.registry)
	p.seenGen.Store(p.registry.generation())
	p.log.Debug("installed default conversions", zap.Stringer("policy", p.policy))
	return p
}

// ConversionRegistry returns the registry consulted by this provider.
func (p *InstantiatorProvider) ConversionRegistry() *ConversionRegistry { return p.registry }

// RegisterConstructor adds a constructor candidate for the type fn returns.
// fn must be a non-variadic func returning T, *T, (T, error) or (*T, error).
func (p *InstantiatorProvider) RegisterConstructor(fn any) error {
	c, err := newConstructor(fn)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.constructors[c.base] = append(p.constructors[c.base], c)
	p.mu.Unlock()
	p.resetCache()
	p.log.Debug("registered constructor", zap.Stringer("type", c.base), zap.Stringer("constructor", c))
	return nil
}

// RegisterFactory marks fn as the only way to build the type it returns.
// A factory must take exactly as many parameters as there are columns.
func (p *InstantiatorProvider) RegisterFactory(fn any) error {
	c, err := newConstructor(fn)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.factories[c.base] = append(p.factories[c.base], c)
	p.mu.Unlock()
	p.resetCache()
	p.log.Debug("registered factory", zap.Stringer("type", c.base), zap.Stringer("factory", c))
	return nil
}

// RegisterInstantiator uses inst for every schema requested for t.
func (p *InstantiatorProvider) RegisterInstantiator(t reflect.Type, inst Instantiator) {
	p.mu.Lock()
	p.registered[t] = inst
	p.mu.Unlock()
	p.resetCache()
}

// observeRegistry drops cached resolutions made before the latest
// registration on the conversion registry.
func (p *InstantiatorProvider) observeRegistry() {
	if g := p.registry.generation(); p.seenGen.Swap(g) != g {
		p.resetCache()
	}
}

func (p *InstantiatorProvider) resetCache() {
	for _, m := range []*sync.Map{&p.cache, &p.dynamic} {
		m.Range(func(k, _ any) bool {
			m.Delete(k)
			return true
		})
	}
}

// FindInstantiator returns the Instantiator building target from rows
// described by types.
func (p *InstantiatorProvider) FindInstantiator(target reflect.Type, types *NamedTypeList) (Instantiator, error) {
	p.observeRegistry()
	key := cacheKey{target: target, hash: types.hash, size: types.Size()}
	if v, ok := p.cache.Load(key); ok {
		if e := v.(*cacheEntry); e.types.Equal(types) {
			p.metrics.cacheHits.Inc()
			return e.inst, nil
		}
	}

	inst, strategy, err := p.resolve(target, types)
	if err != nil {
		p.metrics.failures.Inc()
		return nil, err
	}
	p.metrics.resolutions.WithLabelValues(strategy).Inc()
	p.log.Debug("resolved instantiator",
		zap.Stringer("type", target),
		zap.Stringer("columns", types),
		zap.String("strategy", strategy),
	)
	p.cache.Store(key, &cacheEntry{types: types, inst: inst})
	return inst, nil
}

func (p *InstantiatorProvider) resolve(target reflect.Type, types *NamedTypeList) (Instantiator, string, error) {
	p.mu.RLock()
	registered := p.registered[target]
	p.mu.RUnlock()
	if registered != nil {
		return registered, strategyRegistered, nil
	}

	if types.Size() == 1 {
		if c, _, ok := p.findConversion(types.Type(0), target); ok {
			return &CoercionInstantiator{conversion: c}, strategyCoercion, nil
		}
	}

	base := target
	if base.Kind() == reflect.Pointer {
		base = base.Elem()
	}

	p.mu.RLock()
	factories := p.factories[base]
	ctors := append([]*constructor(nil), p.constructors[base]...)
	p.mu.RUnlock()

	switch len(factories) {
	case 0:
	case 1:
		inst, err := p.factoryInstantiator(factories[0], target, types)
		return inst, strategyFactory, err
	default:
		return nil, "", fmt.Errorf("%w: %v has %d factories", ErrAmbiguousInstantiator, base, len(factories))
	}

	if base.Kind() == reflect.Struct {
		ctors = append(ctors, zeroConstructor(base))
	}
	if len(ctors) == 0 {
		switch base.Kind() {
		case reflect.Interface, reflect.Func, reflect.Chan, reflect.UnsafePointer:
			return nil, "", fmt.Errorf("%w: %v", ErrNotInstantiable, target)
		}
		return nil, "", &InstantiationError{Type: target, Types: types}
	}
	sort.SliceStable(ctors, func(i, j int) bool { return ctors[i].arity() > ctors[j].arity() })

	var (
		best     *ReflectionInstantiator
		bestCost int
	)
	for _, c := range ctors {
		inst, cost, ok, err := p.planConstructor(c, target, types)
		if err != nil {
			return nil, "", err
		}
		if !ok {
			continue
		}
		if p.policy == FirstMatch {
			return inst, strategyReflection, nil
		}
		if best == nil || cost < bestCost {
			best, bestCost = inst, cost
		}
	}
	if best != nil {
		return best, strategyReflection, nil
	}
	return nil, "", &InstantiationError{Type: target, Types: types}
}

func (p *InstantiatorProvider) factoryInstantiator(f *constructor, target reflect.Type, types *NamedTypeList) (Instantiator, error) {
	if f.arity() != types.Size() {
		return nil, &InstantiationError{
			Type:   target,
			Types:  types,
			Reason: fmt.Sprintf("factory %s takes %d parameters", f, f.arity()),
		}
	}
	convs := make([]*Conversion, f.arity())
	for i, pt := range f.params {
		c, _, ok := p.findConversion(types.Type(i), pt)
		if !ok {
			return nil, &InstantiationError{
				Type:   target,
				Types:  types,
				Reason: fmt.Sprintf("factory %s: no conversion for column %q from %v to %v", f, types.Name(i), types.Type(i), pt),
			}
		}
		convs[i] = c
	}
	return &ReflectionInstantiator{target: target, ctor: f, conversions: convs}, nil
}

// planConstructor fits c to types. Columns beyond c's arity are bound to
// properties of the constructed type by name.
func (p *InstantiatorProvider) planConstructor(c *constructor, target reflect.Type, types *NamedTypeList) (*ReflectionInstantiator, int, bool, error) {
	n := types.Size()
	if c.arity() > n {
		return nil, 0, false, nil
	}

	targets := make([]reflect.Type, n)
	copy(targets, c.params)
	var accessors []PropertyAccessor
	for i := c.arity(); i < n; i++ {
		acc, ok, err := FindAccessor(c.base, types.Name(i))
		if err != nil {
			return nil, 0, false, err
		}
		if !ok {
			return nil, 0, false, nil
		}
		accessors = append(accessors, acc)
		targets[i] = acc.Type()
	}

	convs := make([]*Conversion, n)
	total := 0
	for i, t := range targets {
		conv, cost, ok := p.findConversion(types.Type(i), t)
		if !ok {
			return nil, 0, false, nil
		}
		convs[i] = conv
		total += cost
	}
	return &ReflectionInstantiator{target: target, ctor: c, conversions: convs, accessors: accessors}, total, true, nil
}

// ConversionFromDatabase returns the conversion used to read a column
// declared as source into target.
func (p *InstantiatorProvider) ConversionFromDatabase(source, target reflect.Type) (*Conversion, error) {
	c, _, ok := p.findConversion(source, target)
	if !ok {
		return nil, &ConversionError{Source: source, Target: target, Err: errNoConversion}
	}
	return c, nil
}

// ValueToDatabase returns the representation of v used as a query
// parameter: a registered store conversion, the key of a registered enum, or
// v itself.
func (p *InstantiatorProvider) ValueToDatabase(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	t := reflect.TypeOf(v)
	if c, ok := p.registry.FindToDatabase(t); ok {
		return c.Convert(v)
	}
	if e, ok := p.registry.enum(t); ok {
		return e.toDatabase(v), nil
	}
	return v, nil
}

// ---------------- Conversion chain ----------------

// findConversion resolves a conversion from a declared column type to
// target. It never fails hard; absence is reported with false.
func (p *InstantiatorProvider) findConversion(source, target reflect.Type) (*Conversion, int, bool) {
	if source == target {
		return identityConversion(source, target), costExact, true
	}
	if source.AssignableTo(target) {
		return assignConversion(source, target), costAssignable, true
	}
	if c, ok := p.registry.FindFromDatabase(source, target); ok {
		return c, costRegistered, true
	}
	if source.Implements(arrayType) {
		if c, ok := p.arrayConversion(source, target); ok {
			return c, costRegistered, true
		}
	}
	if c, cost, ok := p.optionalConversion(source, target); ok {
		return c, cost + costWrapping, true
	}
	if e, ok := p.registry.enum(target); ok {
		return e.conversionFrom(source), costEnum, true
	}
	if implementsScanner(target) {
		return scannerConversion(source, target), costRegistered, true
	}
	if c, cost, ok := p.representationConversion(source, target); ok {
		return c, cost + costRepresentation, true
	}
	if source.Kind() == reflect.Interface && p.dynamicCandidate(target) {
		return p.dynamicConversion(source, target), costRegistered, true
	}
	return nil, 0, false
}

func (p *InstantiatorProvider) optionalConversion(source, target reflect.Type) (*Conversion, int, bool) {
	inner, wrap, ok := optionalOf(target)
	if !ok {
		return nil, 0, false
	}
	c, cost, ok := p.findConversion(source, inner)
	if !ok {
		return nil, 0, false
	}
	empty := reflect.Zero(target).Interface()
	return &Conversion{
		source: source,
		target: target,
		name:   fmt.Sprintf("optional(%v)", c),
		fn: func(v any) (any, error) {
			if v == nil {
				return empty, nil
			}
			cv, err := c.Convert(v)
			if err != nil {
				return nil, err
			}
			if cv == nil {
				return empty, nil
			}
			rv, err := valueFor(cv, inner)
			if err != nil {
				return nil, err
			}
			return wrap(rv).Interface(), nil
		},
	}, cost, true
}

// optionalOf reports whether t wraps an optional value: a pointer, or a
// database/sql Null type such as sql.NullInt64 or sql.Null[T].
func optionalOf(t reflect.Type) (reflect.Type, func(reflect.Value) reflect.Value, bool) {
	switch {
	case t.Kind() == reflect.Pointer:
		return t.Elem(), func(v reflect.Value) reflect.Value {
			ptr := reflect.New(t.Elem())
			ptr.Elem().Set(v)
			return ptr
		}, true
	case isSQLNull(t):
		return t.Field(0).Type, func(v reflect.Value) reflect.Value {
			out := reflect.New(t).Elem()
			out.Field(0).Set(v)
			out.Field(1).SetBool(true)
			return out
		}, true
	}
	return nil, nil, false
}

func isSQLNull(t reflect.Type) bool {
	return t.Kind() == reflect.Struct &&
		t.PkgPath() == "database/sql" &&
		strings.HasPrefix(t.Name(), "Null") &&
		t.NumField() == 2 &&
		t.Field(1).Name == "Valid" &&
		t.Field(1).Type.Kind() == reflect.Bool
}

var scannerType = reflect.TypeOf((*sql.Scanner)(nil)).Elem()

func implementsScanner(t reflect.Type) bool {
	return reflect.PointerTo(t).Implements(scannerType)
}

// scannerConversion hands the raw value, NULL included, to the Scan method
// of a new target value.
func scannerConversion(source, target reflect.Type) *Conversion {
	return NewConversionFunc(source, target, func(v any) (any, error) {
		ptr := reflect.New(target)
		if err := ptr.Interface().(sql.Scanner).Scan(v); err != nil {
			return nil, err
		}
		return ptr.Elem().Interface(), nil
	})
}

// representationConversion handles defined types sharing a representation
// with a predeclared type, e.g. type UserID int64.
func (p *InstantiatorProvider) representationConversion(source, target reflect.Type) (*Conversion, int, bool) {
	if pt := predeclared(target); pt != nil && pt != target {
		c, cost, ok := p.findConversion(source, pt)
		if !ok {
			return nil, 0, false
		}
		return compose(c, convertTo(pt, target)), cost, true
	}
	if ps := predeclared(source); ps != nil && ps != source {
		c, cost, ok := p.findConversion(ps, target)
		if !ok {
			return nil, 0, false
		}
		return compose(convertTo(source, ps), c), cost, true
	}
	return nil, 0, false
}

func convertTo(source, target reflect.Type) *Conversion {
	return NewConversionFunc(source, target, func(v any) (any, error) {
		if v == nil {
			return nil, nil
		}
		rv := reflect.ValueOf(v)
		if !rv.Type().ConvertibleTo(target) {
			return nil, fmt.Errorf("value of type %v is not convertible to %v", rv.Type(), target)
		}
		return rv.Convert(target).Interface(), nil
	})
}

// dynamicCandidate reports whether a column of interface type could hold
// values convertible to t. Struct targets without registered conversions are
// left to constructors.
func (p *InstantiatorProvider) dynamicCandidate(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Interface, reflect.Slice, reflect.Array, reflect.Map:
		return true
	case reflect.Pointer:
		return p.dynamicCandidate(t.Elem())
	}
	if _, ok := predeclaredKinds[t.Kind()]; ok {
		return true
	}
	if inner, _, ok := optionalOf(t); ok {
		return p.dynamicCandidate(inner)
	}
	if _, ok := p.registry.enum(t); ok {
		return true
	}
	return implementsScanner(t) || p.registry.hasLoadTarget(t)
}

// dynamicConversion resolves the conversion per dynamic value type on first
// use.
func (p *InstantiatorProvider) dynamicConversion(source, target reflect.Type) *Conversion {
	return &Conversion{
		source: source,
		target: target,
		name:   fmt.Sprintf("dynamic(%v)", target),
		fn: func(v any) (any, error) {
			if v == nil {
				return nil, nil
			}
			key := dynamicKey{source: reflect.TypeOf(v), target: target, gen: p.registry.generation()}
			var c *Conversion
			if cached, ok := p.dynamic.Load(key); ok {
				c = cached.(*Conversion)
			} else {
				c, _, _ = p.findConversion(key.source, target)
				p.dynamic.Store(key, c)
			}
			if c == nil {
				return nil, fmt.Errorf("no conversion from %v to %v", key.source, target)
			}
			return c.Convert(v)
		},
	}
}

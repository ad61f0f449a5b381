package rowbind

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
)

// PropertyAccessor is a settable slot on a struct type: an exported field, a
// Set<Name> method or a dotted path ending in either.
type PropertyAccessor interface {
	// Type is the type of value accepted by Set.
	Type() reflect.Type
	// Set stores value into the slot of obj, which must be a non-nil pointer
	// to the accessor's struct type.
	Set(obj reflect.Value, value any) error
}

// FindAccessor resolves path on t. Path segments are separated by dots and
// matched ignoring ASCII case and underscores. An unresolved path returns
// false with a nil error; ambiguous matches return ErrConflictingAccessor.
func FindAccessor(t reflect.Type, path string) (PropertyAccessor, bool, error) {
	t = derefPtr(t)
	if t.Kind() != reflect.Struct || path == "" {
		return nil, false, nil
	}
	segments := strings.Split(path, ".")
	last := len(segments) - 1

	var steps []readStep
	cur := t
	for _, seg := range segments[:last] {
		st, next, ok, err := findReadStep(cur, seg)
		if err != nil || !ok {
			return nil, false, err
		}
		steps = append(steps, st)
		cur = next
	}

	acc, ok, err := findDirectAccessor(cur, segments[last])
	if err != nil || !ok {
		return nil, false, err
	}
	if len(steps) == 0 {
		return acc, true, nil
	}
	return &nestedAccessor{path: path, steps: steps, last: acc}, true, nil
}

// FindPropertyType returns the type accepted by the accessor for path.
func FindPropertyType(t reflect.Type, path string) (reflect.Type, bool, error) {
	acc, ok, err := FindAccessor(t, path)
	if err != nil || !ok {
		return nil, false, err
	}
	return acc.Type(), true, nil
}

func findDirectAccessor(t reflect.Type, name string) (PropertyAccessor, bool, error) {
	idx := propertyIndexOf(t)
	key := normalizeName(name)

	if setters := idx.setters[key]; len(setters) > 1 {
		return nil, false, fmt.Errorf("%w: %q on %v matches setters %s", ErrConflictingAccessor, name, t, strings.Join(setterNames(setters), ", "))
	} else if len(setters) == 1 {
		return setters[0], true, nil
	}

	f, ok, err := idx.field(t, name, key)
	if err != nil || !ok {
		return nil, false, err
	}
	return f, true, nil
}

// ---------------- Type index ----------------

type propertyIndex struct {
	fields  map[string][]*fieldAccessor // by normalized name, any depth
	setters map[string][]*setterAccessor
	getters map[string][]reflect.Method // methods on *T with no args
}

var propertyIndexCache sync.Map // reflect.Type -> *propertyIndex

func propertyIndexOf(t reflect.Type) *propertyIndex {
	if v, ok := propertyIndexCache.Load(t); ok {
		return v.(*propertyIndex)
	}
	idx := buildPropertyIndex(t)
	v, _ := propertyIndexCache.LoadOrStore(t, idx)
	return v.(*propertyIndex)
}

func buildPropertyIndex(t reflect.Type) *propertyIndex {
	idx := &propertyIndex{
		fields:  make(map[string][]*fieldAccessor),
		setters: make(map[string][]*setterAccessor),
		getters: make(map[string][]reflect.Method),
	}

	var walk func(t reflect.Type, base []int, forceInline bool, visited map[reflect.Type]bool)
	walk = func(t reflect.Type, base []int, forceInline bool, visited map[reflect.Type]bool) {
		t = derefPtr(t)
		if t.Kind() != reflect.Struct || visited[t] {
			return
		}
		visited[t] = true
		defer delete(visited, t)

		for i := 0; i < t.NumField(); i++ {
			sf := t.Field(i)
			if sf.PkgPath != "" && !sf.Anonymous {
				continue
			}
			tag := sf.Tag.Get("db")
			name, inline, omit := parseTag(tag)
			if omit {
				continue
			}
			path := append(append([]int(nil), base...), i)

			if inline || (sf.Anonymous && (forceInline || tag == "")) {
				if isStruct(sf.Type) {
					walk(sf.Type, path, inline, visited)
					continue
				}
			}
			if sf.PkgPath != "" {
				continue
			}
			if name == "" {
				name = sf.Name
			}
			key := normalizeName(name)
			idx.fields[key] = append(idx.fields[key], &fieldAccessor{name: sf.Name, path: path, typ: sf.Type})
		}
	}
	walk(t, nil, false, map[reflect.Type]bool{})

	pt := reflect.PointerTo(t)
	for i := 0; i < pt.NumMethod(); i++ {
		m := pt.Method(i)
		mt := m.Type // includes the receiver
		switch {
		case strings.HasPrefix(m.Name, "Set") && len(m.Name) > 3 && mt.NumIn() == 2 && !mt.IsVariadic() &&
			(mt.NumOut() == 0 || (mt.NumOut() == 1 && mt.Out(0) == errorType)):
			key := normalizeName(m.Name[3:])
			idx.setters[key] = append(idx.setters[key], &setterAccessor{method: m, typ: mt.In(1), withErr: mt.NumOut() == 1})
		case mt.NumIn() == 1 && mt.NumOut() == 1 && isStructPtr(mt.Out(0)):
			key := normalizeName(strings.TrimPrefix(m.Name, "Get"))
			idx.getters[key] = append(idx.getters[key], m)
		}
	}
	return idx
}

// field returns the shallowest field matching key. Two matches at that depth
// conflict.
func (idx *propertyIndex) field(t reflect.Type, name, key string) (*fieldAccessor, bool, error) {
	cands := idx.fields[key]
	if len(cands) == 0 {
		return nil, false, nil
	}
	best := cands[0]
	conflict := false
	for _, c := range cands[1:] {
		switch {
		case len(c.path) < len(best.path):
			best, conflict = c, false
		case len(c.path) == len(best.path):
			conflict = true
		}
	}
	if conflict {
		return nil, false, fmt.Errorf("%w: %q matches more than one field of %v", ErrConflictingAccessor, name, t)
	}
	return best, true, nil
}

// parseTag supports: "-", "col", ",inline", "col,inline", "inline,col".
func parseTag(tag string) (name string, inline bool, omit bool) {
	if tag == "-" {
		return "", false, true
	}
	for _, part := range strings.Split(tag, ",") {
		switch {
		case part == "inline":
			inline = true
		case part != "" && name == "":
			name = part
		}
	}
	return name, inline, false
}

// ---------------- Accessors ----------------

type fieldAccessor struct {
	name string
	path []int
	typ  reflect.Type
}

func (a *fieldAccessor) Type() reflect.Type { return a.typ }

func (a *fieldAccessor) Set(obj reflect.Value, value any) error {
	v, err := valueFor(value, a.typ)
	if err != nil {
		return fmt.Errorf("field %s: %w", a.name, err)
	}
	f, err := fieldByPathAlloc(obj.Elem(), a.path)
	if err != nil {
		return fmt.Errorf("field %s: %w", a.name, err)
	}
	f.Set(v)
	return nil
}

type setterAccessor struct {
	method  reflect.Method
	typ     reflect.Type
	withErr bool
}

func (a *setterAccessor) Type() reflect.Type { return a.typ }

func (a *setterAccessor) Set(obj reflect.Value, value any) error {
	v, err := valueFor(value, a.typ)
	if err != nil {
		return fmt.Errorf("%s: %w", a.method.Name, err)
	}
	out := a.method.Func.Call([]reflect.Value{obj, v})
	if a.withErr && !out[0].IsNil() {
		return fmt.Errorf("%s: %w", a.method.Name, out[0].Interface().(error))
	}
	return nil
}

// readStep moves from an addressable struct value to the struct reached by
// one non-final path segment.
type readStep struct {
	name string
	read func(v reflect.Value) (reflect.Value, error) // zero Value when nil
}

func findReadStep(t reflect.Type, seg string) (readStep, reflect.Type, bool, error) {
	idx := propertyIndexOf(t)
	key := normalizeName(seg)

	if getters := idx.getters[key]; len(getters) > 1 {
		return readStep{}, nil, false, fmt.Errorf("%w: %q on %v matches more than one getter", ErrConflictingAccessor, seg, t)
	} else if len(getters) == 1 {
		m := getters[0]
		return readStep{name: seg, read: func(v reflect.Value) (reflect.Value, error) {
			out := m.Func.Call([]reflect.Value{v.Addr()})[0]
			if out.IsNil() {
				return reflect.Value{}, nil
			}
			return out.Elem(), nil
		}}, m.Type.Out(0).Elem(), true, nil
	}

	f, ok, err := idx.field(t, seg, key)
	if err != nil || !ok {
		return readStep{}, nil, false, err
	}
	switch {
	case f.typ.Kind() == reflect.Struct:
		return readStep{name: seg, read: func(v reflect.Value) (reflect.Value, error) {
			return fieldByPathAlloc(v, f.path)
		}}, f.typ, true, nil
	case isStructPtr(f.typ):
		return readStep{name: seg, read: func(v reflect.Value) (reflect.Value, error) {
			p, err := fieldByPathAlloc(v, f.path)
			if err != nil || p.IsNil() {
				return reflect.Value{}, err
			}
			return p.Elem(), nil
		}}, f.typ.Elem(), true, nil
	}
	return readStep{}, nil, false, nil
}

type nestedAccessor struct {
	path  string
	steps []readStep
	last  PropertyAccessor
}

func (a *nestedAccessor) Type() reflect.Type { return a.last.Type() }

func (a *nestedAccessor) Set(obj reflect.Value, value any) error {
	v := obj.Elem()
	for _, st := range a.steps {
		var err error
		if v, err = st.read(v); err != nil {
			return fmt.Errorf("%q: %w", a.path, err)
		}
		if !v.IsValid() {
			return fmt.Errorf("%w: %q is nil while setting %q", ErrNullIntermediate, st.name, a.path)
		}
	}
	return a.last.Set(v.Addr(), value)
}

// ---------------- Helpers ----------------

var errorType = reflect.TypeOf((*error)(nil)).Elem()

func isStruct(t reflect.Type) bool { return derefPtr(t).Kind() == reflect.Struct }

func isStructPtr(t reflect.Type) bool {
	return t.Kind() == reflect.Pointer && t.Elem().Kind() == reflect.Struct
}

func derefPtr(t reflect.Type) reflect.Type {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}

// fieldByPathAlloc walks fpath, allocating nil embedded pointers on the way.
// The final field is returned as is. A nil pointer to an unexported embedded
// struct can't be allocated and is reported as ErrUnexportedEmbedded.
func fieldByPathAlloc(root reflect.Value, fpath []int) (reflect.Value, error) {
	v := root
	for _, i := range fpath {
		if v.Kind() == reflect.Pointer {
			if v.IsNil() {
				if !v.CanSet() {
					return reflect.Value{}, fmt.Errorf("%w: %v", ErrUnexportedEmbedded, v.Type().Elem())
				}
				v.Set(reflect.New(v.Type().Elem()))
			}
			v = v.Elem()
		}
		v = v.Field(i)
	}
	return v, nil
}

func setterNames(s []*setterAccessor) []string {
	out := make([]string, len(s))
	for i := range s {
		out[i] = s[i].method.Name
	}
	return out
}

// normalizeName lower-cases ASCII letters and drops underscores, so that
// "user_id", "UserID" and "userId" compare equal.
func normalizeName(s string) string {
	s = toLowerAscii(s)
	if strings.IndexByte(s, '_') < 0 {
		return s
	}
	return strings.ReplaceAll(s, "_", "")
}

func toLowerAscii(s string) string {
	var need bool
	for i := 0; i < len(s); i++ {
		c := s[i]
		if 'A' <= c && c <= 'Z' {
			need = true
			break
		}
	}
	if !need {
		return s
	}
	b := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if 'A' <= c && c <= 'Z' {
			c = c + ('a' - 'A')
		}
		b[i] = c
	}
	return string(b)
}

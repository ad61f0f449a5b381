package rowbind

import (
	"errors"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type Audit struct {
	CreatedBy string
}

type Address struct {
	City string
}

type Inner struct {
	Foo string
}

type Account struct {
	ID       int64  `db:"id"`
	UserName string `db:"user_name"`
	Skip     string `db:"-"`
	Audit    `db:",inline"`
	Home     Address
	Nested   *Inner

	email string
}

func (a *Account) SetEmail(v string) { a.email = "<" + v + ">" }

type Checked struct {
	Age int
}

func (c *Checked) SetAge(v int) error {
	if v < 0 {
		return errors.New("negative age")
	}
	c.Age = v
	return nil
}

type withGetter struct {
	inner *Inner
}

func (w *withGetter) GetInner() *Inner { return w.inner }

type conflictingFields struct {
	UserID int
	UserId int
}

type conflictingSetters struct{ v int }

func (c *conflictingSetters) SetValue(int)  {}
func (c *conflictingSetters) Set_value(int) {}

type embedA struct{ Name string }
type embedB struct{ Name string }

type shadowed struct {
	embedA
	embedB
	Name string
}

type ambiguousEmbedded struct {
	embedA
	embedB
}

func set(t *testing.T, obj any, path string, value any) error {
	t.Helper()
	acc, ok, err := FindAccessor(reflect.TypeOf(obj), path)
	require.NoError(t, err)
	require.True(t, ok, "no accessor for %q", path)
	return acc.Set(reflect.ValueOf(obj), value)
}

func TestFindAccessor_FieldsAndTags(t *testing.T) {
	a := &Account{}
	require.NoError(t, set(t, a, "ID", int64(9)))
	require.NoError(t, set(t, a, "username", "ada"))
	require.NoError(t, set(t, a, "CREATED_BY", "root"))

	assert.Equal(t, int64(9), a.ID)
	assert.Equal(t, "ada", a.UserName)
	assert.Equal(t, "root", a.CreatedBy)

	_, ok, err := FindAccessor(reflect.TypeOf(Account{}), "skip")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFindAccessor_SetterPreferred(t *testing.T) {
	a := &Account{}
	require.NoError(t, set(t, a, "e_mail", "x@y"))
	assert.Equal(t, "<x@y>", a.email)
}

func TestFindAccessor_SetterError(t *testing.T) {
	c := &Checked{}
	err := set(t, c, "age", -1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "negative age")
}

func TestFindAccessor_Conflicts(t *testing.T) {
	_, _, err := FindAccessor(reflect.TypeOf(conflictingFields{}), "user_id")
	assert.ErrorIs(t, err, ErrConflictingAccessor)

	_, _, err = FindAccessor(reflect.TypeOf(conflictingSetters{}), "value")
	assert.ErrorIs(t, err, ErrConflictingAccessor)

	_, _, err = FindAccessor(reflect.TypeOf(ambiguousEmbedded{}), "name")
	assert.ErrorIs(t, err, ErrConflictingAccessor)
}

func TestFindAccessor_ShallowFieldWins(t *testing.T) {
	s := &shadowed{}
	require.NoError(t, set(t, s, "name", "top"))
	assert.Equal(t, "top", s.Name)
	assert.Empty(t, s.embedA.Name)
}

func TestFindAccessor_NestedPath(t *testing.T) {
	a := &Account{Nested: &Inner{}}
	require.NoError(t, set(t, a, "home.city", "Oslo"))
	require.NoError(t, set(t, a, "nested.foo", "bar"))
	assert.Equal(t, "Oslo", a.Home.City)
	assert.Equal(t, "bar", a.Nested.Foo)

	typ, ok, err := FindPropertyType(reflect.TypeOf(Account{}), "home.city")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, stringType, typ)
}

func TestFindAccessor_NestedNullIntermediate(t *testing.T) {
	a := &Account{}
	err := set(t, a, "nested.foo", "bar")
	assert.ErrorIs(t, err, ErrNullIntermediate)

	w := &withGetter{}
	err = set(t, w, "inner.foo", "bar")
	assert.ErrorIs(t, err, ErrNullIntermediate)

	w.inner = &Inner{}
	require.NoError(t, set(t, w, "inner.foo", "bar"))
	assert.Equal(t, "bar", w.inner.Foo)
}

func TestFindAccessor_Unresolved(t *testing.T) {
	for _, path := range []string{"missing", "home.missing", "id.x", "missing.city"} {
		_, ok, err := FindAccessor(reflect.TypeOf(Account{}), path)
		require.NoError(t, err, path)
		assert.False(t, ok, path)
	}
	_, ok, err := FindAccessor(reflect.TypeOf(0), "x")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFieldAccessor_NullIntoNonNillable(t *testing.T) {
	a := &Account{}
	err := set(t, a, "id", nil)
	assert.ErrorIs(t, err, ErrUnexpectedNull)
}

func TestInlinePointerIsAllocated(t *testing.T) {
	type Meta struct{ Source string }
	type Row struct {
		ID    int
		*Meta `db:",inline"`
	}
	r := &Row{}
	require.NoError(t, set(t, r, "source", "import"))
	require.NotNil(t, r.Meta)
	assert.Equal(t, "import", r.Source)
}

type hiddenBase struct {
	Name string
}

type withHiddenBase struct {
	*hiddenBase
	ID int
}

func TestNilUnexportedEmbeddedPointer(t *testing.T) {
	p := NewInstantiatorProvider()
	_, err := instantiate[withHiddenBase](t, p, schemaOf(t, "id", intType, "name", stringType), 1, "x")
	assert.ErrorIs(t, err, ErrUnexportedEmbedded)

	w := &withHiddenBase{hiddenBase: &hiddenBase{}}
	require.NoError(t, set(t, w, "name", "x"))
	assert.Equal(t, "x", w.Name)
}

func TestParseTag(t *testing.T) {
	tests := []struct {
		tag    string
		name   string
		inline bool
		omit   bool
	}{
		{"", "", false, false},
		{"-", "", false, true},
		{"col", "col", false, false},
		{",inline", "", true, false},
		{"col,inline", "col", true, false},
		{"inline,col", "col", true, false},
	}
	for _, tc := range tests {
		name, inline, omit := parseTag(tc.tag)
		assert.Equal(t, tc.name, name, tc.tag)
		assert.Equal(t, tc.inline, inline, tc.tag)
		assert.Equal(t, tc.omit, omit, tc.tag)
	}
}

func TestNormalizeName(t *testing.T) {
	cases := map[string]string{
		"user_id":    "userid",
		"UserID":     "userid",
		"MiXeD_1_2":  "mixed12",
		"already":    "already",
		"__leading_": "leading",
	}
	for in, want := range cases {
		assert.Equal(t, want, normalizeName(in), in)
	}
}

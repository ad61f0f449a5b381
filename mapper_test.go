package rowbind

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnquoteColumn(t *testing.T) {
	cases := map[string]string{
		`"Name"`:        "Name",
		"`Camel`":       "Camel",
		"[UPPER]":       "UPPER",
		"already_ok":    "already_ok",
		`"unterminated`: `"unterminated`,
		`"`:             `"`,
		"[]":            "",
	}
	for in, want := range cases {
		assert.Equal(t, want, unquoteColumn(in), in)
	}
}

func TestDeclaredType(t *testing.T) {
	cases := []struct {
		in, want reflect.Type
	}{
		{nil, anyType},
		{reflect.TypeOf(sql.RawBytes(nil)), bytesType},
		{reflect.TypeOf(sql.NullInt64{}), int64Type},
		{reflect.TypeOf(sql.NullString{}), stringType},
		{reflect.TypeOf(sql.Null[time.Time]{}), reflect.TypeOf(time.Time{})},
		{int64Type, int64Type},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, declaredType(tc.in), "%v", tc.in)
	}
}

func TestSchemaOf(t *testing.T) {
	types := []reflect.Type{int64Type, reflect.TypeOf(sql.NullString{}), reflect.TypeOf(sql.RawBytes(nil))}
	db := newTypedTestDB(t, types, func(q string, _ []driver.NamedValue) ([]string, [][]driver.Value, error) {
		return []string{`"Id"`, "name", "[payload]", "extra"}, [][]driver.Value{{int64(1), "a", []byte("b"), 2}}, nil
	})
	defer func() { _ = db.Close() }()

	rows, err := db.QueryContext(context.Background(), "q")
	require.NoError(t, err)
	defer func() { _ = rows.Close() }()

	schema, err := SchemaOf(rows)
	require.NoError(t, err)
	assert.Equal(t, []string{"Id", "name", "payload", "extra"}, schema.Names())
	assert.Equal(t, []reflect.Type{int64Type, stringType, bytesType, anyType}, schema.Types())
}

func TestDefaultMapperIsShared(t *testing.T) {
	assert.Same(t, DefaultMapper(), DefaultMapper())
	assert.NotNil(t, DefaultMapper().Provider())

	p := NewInstantiatorProvider()
	assert.Same(t, p, NewMapperWithProvider(p).Provider())
	assert.NotSame(t, DefaultMapper(), NewMapper())
}

func TestArgsToDatabase(t *testing.T) {
	m := NewMapper()
	RegisterNativeEnum(m.Provider().ConversionRegistry(), "color", Red, Green)

	out, err := m.argsToDatabase([]any{Red, sql.Named("c", Green), 3, nil})
	require.NoError(t, err)
	require.Len(t, out, 4)
	assert.Equal(t, NativeEnumValue{TypeName: "color", Name: "RED"}, out[0])
	assert.Equal(t, sql.Named("c", NativeEnumValue{TypeName: "color", Name: "GREEN"}), out[1])
	assert.Equal(t, 3, out[2])
	assert.Nil(t, out[3])

	empty, err := m.argsToDatabase(nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestQuery_TypedColumnsResolveOnce(t *testing.T) {
	type Event struct {
		ID   int64
		Kind Color
		At   time.Time
	}
	m := NewMapper()
	RegisterEnum(m.Provider().ConversionRegistry(), func(c Color) string { return c.String() }, Red, Green)

	when := time.Date(2023, 5, 6, 7, 8, 9, 0, time.UTC)
	types := []reflect.Type{int64Type, stringType, stringType}
	db := newTypedTestDB(t, types, func(q string, _ []driver.NamedValue) ([]string, [][]driver.Value, error) {
		return []string{"id", "kind", "at"}, [][]driver.Value{
			{int64(1), "RED", when.Format(time.RFC3339)},
			{int64(2), "GREEN", when.Add(time.Hour).Format(time.RFC3339)},
		}, nil
	})
	defer func() { _ = db.Close() }()

	got, err := QueryWith[Event](context.Background(), m, db, "q")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, Red, got[0].Kind)
	assert.Equal(t, Green, got[1].Kind)
	assert.True(t, when.Equal(got[0].At))
	assert.True(t, when.Add(time.Hour).Equal(got[1].At))
}

// Package pgxrows feeds pgx query results into a rowbind.InstantiatorProvider.
//
// Column types are declared from PostgreSQL type OIDs, row values come from
// pgx.Rows.Values and one-dimensional array columns are handed to the
// provider as rowbind.Array handles.
package pgxrows

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/go-mizu/rowbind"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// Querier is implemented by *pgx.Conn, *pgxpool.Pool and pgx.Tx.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

var anyType = reflect.TypeOf((*any)(nil)).Elem()

// oidTypes maps OIDs to the Go type pgx decodes them to.
var oidTypes = map[uint32]reflect.Type{
	pgtype.BoolOID:        reflect.TypeOf(false),
	pgtype.Int2OID:        reflect.TypeOf(int16(0)),
	pgtype.Int4OID:        reflect.TypeOf(int32(0)),
	pgtype.Int8OID:        reflect.TypeOf(int64(0)),
	pgtype.OIDOID:         reflect.TypeOf(uint32(0)),
	pgtype.Float4OID:      reflect.TypeOf(float32(0)),
	pgtype.Float8OID:      reflect.TypeOf(float64(0)),
	pgtype.TextOID:        reflect.TypeOf(""),
	pgtype.VarcharOID:     reflect.TypeOf(""),
	pgtype.BPCharOID:      reflect.TypeOf(""),
	pgtype.NameOID:        reflect.TypeOf(""),
	pgtype.ByteaOID:       reflect.TypeOf([]byte(nil)),
	pgtype.DateOID:        reflect.TypeOf(time.Time{}),
	pgtype.TimestampOID:   reflect.TypeOf(time.Time{}),
	pgtype.TimestamptzOID: reflect.TypeOf(time.Time{}),
	pgtype.UUIDOID:        reflect.TypeOf([16]byte{}),
	pgtype.NumericOID:     reflect.TypeOf(pgtype.Numeric{}),
	pgtype.JSONOID:        anyType,
	pgtype.JSONBOID:       anyType,
}

// arrayElements maps array OIDs to their element OID.
var arrayElements = map[uint32]uint32{
	pgtype.BoolArrayOID:        pgtype.BoolOID,
	pgtype.Int2ArrayOID:        pgtype.Int2OID,
	pgtype.Int4ArrayOID:        pgtype.Int4OID,
	pgtype.Int8ArrayOID:        pgtype.Int8OID,
	pgtype.Float4ArrayOID:      pgtype.Float4OID,
	pgtype.Float8ArrayOID:      pgtype.Float8OID,
	pgtype.TextArrayOID:        pgtype.TextOID,
	pgtype.VarcharArrayOID:     pgtype.VarcharOID,
	pgtype.BPCharArrayOID:      pgtype.BPCharOID,
	pgtype.ByteaArrayOID:       pgtype.ByteaOID,
	pgtype.DateArrayOID:        pgtype.DateOID,
	pgtype.TimestampArrayOID:   pgtype.TimestampOID,
	pgtype.TimestamptzArrayOID: pgtype.TimestamptzOID,
	pgtype.UUIDArrayOID:        pgtype.UUIDOID,
	pgtype.NumericArrayOID:     pgtype.NumericOID,
	pgtype.JSONBArrayOID:       pgtype.JSONBOID,
}

var arrayType = reflect.TypeOf((*rowbind.Array)(nil)).Elem()

// DeclaredType returns the Go type declared for a column of the given OID.
// Unknown OIDs are declared as any and resolved per value.
func DeclaredType(oid uint32) reflect.Type {
	if _, ok := arrayElements[oid]; ok {
		return arrayType
	}
	if t, ok := oidTypes[oid]; ok {
		return t
	}
	return anyType
}

func elementType(arrayOID uint32) reflect.Type {
	return DeclaredType(arrayElements[arrayOID])
}

// Schema describes a pgx result.
func Schema(fields []pgconn.FieldDescription) (*rowbind.NamedTypeList, error) {
	b := rowbind.NewNamedTypeListBuilder(len(fields))
	for _, f := range fields {
		if err := b.Add(f.Name, DeclaredType(f.DataTypeOID)); err != nil {
			return nil, err
		}
	}
	return b.Build()
}

// Values returns the current row of rows with array columns wrapped as
// rowbind.Array.
func Values(rows pgx.Rows) ([]any, error) {
	values, err := rows.Values()
	if err != nil {
		return nil, err
	}
	for i, f := range rows.FieldDescriptions() {
		if _, ok := arrayElements[f.DataTypeOID]; !ok || values[i] == nil {
			continue
		}
		elems, ok := values[i].([]any)
		if !ok {
			return nil, fmt.Errorf("pgxrows: column %q: array decoded as %T", f.Name, values[i])
		}
		values[i] = rowbind.NewArray(elementType(f.DataTypeOID), elems)
	}
	return values, nil
}

// NewProvider returns a provider with the PostgreSQL conversions registered.
func NewProvider(opts ...rowbind.Option) *rowbind.InstantiatorProvider {
	p := rowbind.NewInstantiatorProvider(opts...)
	RegisterConversions(p.ConversionRegistry())
	return p
}

// RegisterConversions registers conversions for pgx-specific value types.
func RegisterConversions(r *rowbind.ConversionRegistry) {
	rowbind.RegisterFromDatabase(r, NumericToDecimal)
	rowbind.RegisterFromDatabase(r, func(n pgtype.Numeric) (float64, error) {
		f, err := n.Float64Value()
		if err != nil {
			return 0, err
		}
		if !f.Valid {
			return 0, fmt.Errorf("invalid numeric")
		}
		return f.Float64, nil
	})
	rowbind.RegisterFromDatabase(r, func(n pgtype.Numeric) (int64, error) {
		i, err := n.Int64Value()
		if err != nil {
			return 0, err
		}
		if !i.Valid {
			return 0, fmt.Errorf("invalid numeric")
		}
		return i.Int64, nil
	})
}

// NumericToDecimal converts a finite numeric to decimal.Decimal.
func NumericToDecimal(n pgtype.Numeric) (decimal.Decimal, error) {
	switch {
	case !n.Valid:
		return decimal.Decimal{}, fmt.Errorf("invalid numeric")
	case n.NaN:
		return decimal.Decimal{}, fmt.Errorf("NaN can't be represented as a decimal")
	case n.InfinityModifier != pgtype.Finite:
		return decimal.Decimal{}, fmt.Errorf("infinite numeric can't be represented as a decimal")
	case n.Int == nil:
		return decimal.Zero, nil
	}
	return decimal.NewFromBigInt(n.Int, n.Exp), nil
}

// Query runs sql on q and instantiates a T from every row.
func Query[T any](ctx context.Context, p *rowbind.InstantiatorProvider, q Querier, sql string, args ...any) ([]T, error) {
	args, err := toDatabase(p, args)
	if err != nil {
		return nil, err
	}
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var (
		out []T
		r   *reader[T]
	)
	for rows.Next() {
		if r == nil {
			if r, err = newReader[T](p, rows); err != nil {
				return nil, err
			}
		}
		v, err := r.read(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Get runs sql on q and instantiates a T from the first row. It returns
// pgx.ErrNoRows when there is none.
func Get[T any](ctx context.Context, p *rowbind.InstantiatorProvider, q Querier, sql string, args ...any) (T, error) {
	var zero T
	args, err := toDatabase(p, args)
	if err != nil {
		return zero, err
	}
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return zero, err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return zero, err
		}
		return zero, pgx.ErrNoRows
	}
	r, err := newReader[T](p, rows)
	if err != nil {
		return zero, err
	}
	return r.read(rows)
}

type reader[T any] struct {
	types *rowbind.NamedTypeList
	inst  rowbind.Instantiator
}

func newReader[T any](p *rowbind.InstantiatorProvider, rows pgx.Rows) (*reader[T], error) {
	types, err := Schema(rows.FieldDescriptions())
	if err != nil {
		return nil, err
	}
	inst, err := p.FindInstantiator(reflect.TypeOf((*T)(nil)).Elem(), types)
	if err != nil {
		return nil, err
	}
	return &reader[T]{types: types, inst: inst}, nil
}

func (r *reader[T]) read(rows pgx.Rows) (T, error) {
	var zero T
	values, err := Values(rows)
	if err != nil {
		return zero, err
	}
	args, err := rowbind.NewInstantiatorArguments(r.types, values)
	if err != nil {
		return zero, err
	}
	v, err := r.inst.Instantiate(args)
	if err != nil {
		return zero, err
	}
	return rowbind.Cast[T](v)
}

func toDatabase(p *rowbind.InstantiatorProvider, args []any) ([]any, error) {
	out := make([]any, len(args))
	for i, a := range args {
		v, err := p.ValueToDatabase(a)
		if err != nil {
			return nil, fmt.Errorf("pgxrows: argument %d: %w", i+1, err)
		}
		out[i] = v
	}
	return out, nil
}

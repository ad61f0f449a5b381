package rowbind

import (
	"fmt"
	"io"
	"math"
	"math/big"
	"net/url"
	"reflect"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var numericTypes = []reflect.Type{
	reflect.TypeOf(int(0)), reflect.TypeOf(int8(0)), reflect.TypeOf(int16(0)),
	reflect.TypeOf(int32(0)), reflect.TypeOf(int64(0)),
	reflect.TypeOf(uint(0)), reflect.TypeOf(uint8(0)), reflect.TypeOf(uint16(0)),
	reflect.TypeOf(uint32(0)), reflect.TypeOf(uint64(0)),
	reflect.TypeOf(float32(0)), reflect.TypeOf(float64(0)),
}

// timeLayouts are tried in order when parsing textual timestamps.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999-07",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
}

// registerDefaultConversions installs the built-in conversions. It runs before
// any user registration so that user conversions shadow these.
func registerDefaultConversions(r *ConversionRegistry) {
	registerNumberConversions(r)
	registerLargeObjectConversions(r)
	registerTextConversions(r)
}

func registerNumberConversions(r *ConversionRegistry) {
	decimalType := reflect.TypeOf(decimal.Decimal{})
	bigIntType := reflect.TypeOf((*big.Int)(nil))

	for _, src := range numericTypes {
		for _, dst := range numericTypes {
			if src == dst {
				continue
			}
			dst := dst
			r.RegisterFromDatabase(NewConversionFunc(src, dst, func(v any) (any, error) {
				if v == nil {
					return nil, nil
				}
				out, err := convertNumber(reflect.ValueOf(v), dst)
				if err != nil {
					return nil, err
				}
				return out.Interface(), nil
			}))
		}

		r.RegisterFromDatabase(NewConversionFunc(src, decimalType, func(v any) (any, error) {
			if v == nil {
				return nil, nil
			}
			return numberToDecimal(reflect.ValueOf(v)), nil
		}))
		if k := src.Kind(); k != reflect.Float32 && k != reflect.Float64 {
			r.RegisterFromDatabase(NewConversionFunc(src, bigIntType, func(v any) (any, error) {
				if v == nil {
					return nil, nil
				}
				rv := reflect.ValueOf(v)
				if isUnsignedKind(rv.Kind()) {
					return new(big.Int).SetUint64(rv.Uint()), nil
				}
				return big.NewInt(rv.Int()), nil
			}))
		}
	}

	RegisterFromDatabase(r, decimal.NewFromString)
	RegisterFromDatabase(r, func(b []byte) (decimal.Decimal, error) { return decimal.NewFromString(string(b)) })
	RegisterFromDatabase(r, parseBigInt)
	RegisterFromDatabase(r, func(b []byte) (*big.Int, error) { return parseBigInt(string(b)) })
	RegisterFromDatabase(r, func(d decimal.Decimal) (*big.Int, error) {
		if !d.Equal(d.Truncate(0)) {
			return nil, fmt.Errorf("%v is not an integer", d)
		}
		return d.BigInt(), nil
	})
	RegisterToDatabase(r, func(b *big.Int) (decimal.Decimal, error) { return decimal.NewFromBigInt(b, 0), nil })
}

func registerLargeObjectConversions(r *ConversionRegistry) {
	RegisterFromDatabase(r, func(rd io.Reader) ([]byte, error) { return io.ReadAll(rd) })
	RegisterFromDatabase(r, func(rd io.Reader) (string, error) {
		b, err := io.ReadAll(rd)
		return string(b), err
	})
	RegisterFromDatabase(r, func(b []byte) (string, error) { return string(b), nil })
	RegisterFromDatabase(r, func(s string) ([]byte, error) { return []byte(s), nil })
}

func registerTextConversions(r *ConversionRegistry) {
	registerParsed(r, url.Parse)
	registerParsed(r, func(s string) (url.URL, error) {
		u, err := url.Parse(s)
		if err != nil {
			return url.URL{}, err
		}
		return *u, nil
	})
	registerParsed(r, time.LoadLocation)
	registerParsed(r, uuid.Parse)
	registerParsed(r, parseTime)

	RegisterFromDatabase(r, func(b [16]byte) (uuid.UUID, error) { return uuid.UUID(b), nil })

	RegisterToDatabase(r, func(u *url.URL) (string, error) { return u.String(), nil })
	RegisterToDatabase(r, func(u url.URL) (string, error) { return u.String(), nil })
	RegisterToDatabase(r, func(l *time.Location) (string, error) { return l.String(), nil })
}

// registerParsed registers parse for string columns and for []byte columns.
func registerParsed[T any](r *ConversionRegistry, parse func(string) (T, error)) {
	RegisterFromDatabase(r, parse)
	RegisterFromDatabase(r, func(b []byte) (T, error) {
		if _, ok := any((*T)(nil)).(*uuid.UUID); ok && len(b) == 16 {
			u, err := uuid.FromBytes(b)
			return any(u).(T), err
		}
		return parse(string(b))
	})
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time format %q", s)
}

func parseBigInt(s string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid integer %q", s)
	}
	return n, nil
}

func numberToDecimal(v reflect.Value) decimal.Decimal {
	switch {
	case isUnsignedKind(v.Kind()):
		return decimal.NewFromBigInt(new(big.Int).SetUint64(v.Uint()), 0)
	case v.Kind() == reflect.Float32:
		return decimal.NewFromFloat32(float32(v.Float()))
	case v.Kind() == reflect.Float64:
		return decimal.NewFromFloat(v.Float())
	default:
		return decimal.NewFromInt(v.Int())
	}
}

// convertNumber converts between numeric kinds, failing instead of
// truncating or wrapping around.
func convertNumber(v reflect.Value, dst reflect.Type) (reflect.Value, error) {
	out := reflect.New(dst).Elem()
	overflow := func() (reflect.Value, error) {
		return reflect.Value{}, fmt.Errorf("value %v overflows %v", v.Interface(), dst)
	}
	switch {
	case isSignedKind(v.Kind()):
		i := v.Int()
		switch {
		case isSignedKind(dst.Kind()):
			if out.OverflowInt(i) {
				return overflow()
			}
			out.SetInt(i)
		case isUnsignedKind(dst.Kind()):
			if i < 0 || out.OverflowUint(uint64(i)) {
				return overflow()
			}
			out.SetUint(uint64(i))
		default:
			out.SetFloat(float64(i))
		}
	case isUnsignedKind(v.Kind()):
		u := v.Uint()
		switch {
		case isSignedKind(dst.Kind()):
			if u > math.MaxInt64 || out.OverflowInt(int64(u)) {
				return overflow()
			}
			out.SetInt(int64(u))
		case isUnsignedKind(dst.Kind()):
			if out.OverflowUint(u) {
				return overflow()
			}
			out.SetUint(u)
		default:
			out.SetFloat(float64(u))
		}
	default:
		f := v.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			if dst.Kind() == reflect.Float32 || dst.Kind() == reflect.Float64 {
				out.SetFloat(f)
				return out, nil
			}
			return reflect.Value{}, fmt.Errorf("%v can't be represented as %v", f, dst)
		}
		switch {
		case isSignedKind(dst.Kind()):
			if f != math.Trunc(f) {
				return reflect.Value{}, fmt.Errorf("%v is not an integer", f)
			}
			if f < math.MinInt64 || f >= math.MaxInt64 || out.OverflowInt(int64(f)) {
				return overflow()
			}
			out.SetInt(int64(f))
		case isUnsignedKind(dst.Kind()):
			if f != math.Trunc(f) {
				return reflect.Value{}, fmt.Errorf("%v is not an integer", f)
			}
			if f < 0 || f >= math.MaxUint64 || out.OverflowUint(uint64(f)) {
				return overflow()
			}
			out.SetUint(uint64(f))
		default:
			if out.OverflowFloat(f) {
				return overflow()
			}
			out.SetFloat(f)
		}
	}
	return out, nil
}

func isSignedKind(k reflect.Kind) bool {
	return k >= reflect.Int && k <= reflect.Int64
}

func isUnsignedKind(k reflect.Kind) bool {
	return k >= reflect.Uint && k <= reflect.Uintptr
}

package rowbind

import (
	gojson "github.com/goccy/go-json"
)

// RegisterJSON reads T from JSON columns delivered as []byte, string or an
// already decoded map[string]any, and writes T as JSON bytes.
func RegisterJSON[T any](r *ConversionRegistry) {
	decode := func(b []byte) (T, error) {
		var out T
		err := gojson.Unmarshal(b, &out)
		return out, err
	}
	RegisterFromDatabase(r, decode)
	RegisterFromDatabase(r, func(s string) (T, error) { return decode([]byte(s)) })
	RegisterFromDatabase(r, func(m map[string]any) (T, error) {
		b, err := gojson.Marshal(m)
		if err != nil {
			var zero T
			return zero, err
		}
		return decode(b)
	})
	RegisterToDatabase(r, func(v T) ([]byte, error) { return gojson.Marshal(v) })
}

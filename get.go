package rowbind

import (
	"context"
	"database/sql"
)

// Get executes the SQL query and instantiates a T from the first row.
//
// It returns [sql.ErrNoRows] if the query yields no rows and does not enforce
// "exactly one row" beyond the first; if more rows exist, they are ignored.
// You should use LIMIT 1 (or an equivalent WHERE clause) when you require
// at-most-one row.
//
// A NULL single-column result can only be returned when T can hold nil
// (pointers, sql.Null types, slices, maps, interfaces); otherwise Get fails
// with [ErrUnexpectedNull].
//
// Example:
//
//	// Given a *sql.DB (or *sql.Tx, *sql.Conn) in variable `db`:
//	ctx := context.Background()
//	u, err := rowbind.Get[User](ctx, db, `SELECT id, email FROM users WHERE id = $1`, 42)
//	if err != nil {
//	    if errors.Is(err, sql.ErrNoRows) {
//	        // handle not found
//	    } else {
//	        // handle other errors
//	    }
//	}
//	// use u
func Get[T any](ctx context.Context, q Querier, query string, args ...any) (T, error) {
	return GetWith[T](ctx, DefaultMapper(), q, query, args...)
}

// GetWith is Get using m instead of the default mapper.
func GetWith[T any](ctx context.Context, m *Mapper, q Querier, query string, args ...any) (out T, err error) {
	args, err = m.argsToDatabase(args)
	if err != nil {
		return out, err
	}
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return out, err
	}
	// Ensure Close error is propagated if no earlier error occurred.
	defer func() {
		if cerr := rows.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	if !rows.Next() {
		if ne := rows.Err(); ne != nil {
			return out, ne
		}
		return out, sql.ErrNoRows
	}

	r, err := newRowReader[T](m, rows)
	if err != nil {
		return out, err
	}
	return r.read(rows)
}

package rowbind

import (
	"context"
)

// Query executes the SQL query and instantiates a T from every result row.
//
// T may be any type the default mapper can build from the result columns: a
// single-column value such as int64, string or time.Time, a struct bound by
// constructor and field names, or a type with registered conversions.
// Parameters are passed through [InstantiatorProvider.ValueToDatabase].
//
// The instantiator is resolved once per result set and cached per
// (type, columns) pair, so repeated queries skip resolution entirely.
//
// Example:
//
//	// Given a *sql.DB (or *sql.Tx, *sql.Conn) in variable `db`:
//	type User struct {
//	    ID    int64  `db:"id"`
//	    Email string `db:"email"`
//	}
//
//	ctx := context.Background()
//	users, err := rowbind.Query[User](ctx, db, `SELECT id, email FROM users ORDER BY id`)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, u := range users {
//	    fmt.Println(u.ID, u.Email)
//	}
func Query[T any](ctx context.Context, q Querier, query string, args ...any) ([]T, error) {
	return QueryWith[T](ctx, DefaultMapper(), q, query, args...)
}

// QueryWith is Query using m instead of the default mapper.
func QueryWith[T any](ctx context.Context, m *Mapper, q Querier, query string, args ...any) (out []T, err error) {
	args, err = m.argsToDatabase(args)
	if err != nil {
		return nil, err
	}
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	// Propagate rows.Close() error if nothing else failed.
	defer func() {
		if cerr := rows.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	var r *rowReader[T]
	for rows.Next() {
		if r == nil {
			if r, err = newRowReader[T](m, rows); err != nil {
				return nil, err
			}
		}
		v, readErr := r.read(rows)
		if readErr != nil {
			return nil, readErr
		}
		out = append(out, v)
	}
	if ne := rows.Err(); ne != nil {
		return nil, ne
	}
	return out, nil
}

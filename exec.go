package rowbind

import (
	"context"
	"database/sql"
)

// Exec executes a statement that does not return rows (INSERT, UPDATE, DELETE, DDL).
//
// Parameters are passed through [InstantiatorProvider.ValueToDatabase] of the
// default mapper, so registered enums and store conversions apply. On success
// it returns the driver's [sql.Result].
//
// Exec does not attempt SQL rendering or placeholder rewriting; write your SQL
// exactly as your driver expects.
//
// Example:
//
//	ctx := context.Background()
//	res, err := rowbind.Exec(ctx, db, `UPDATE users SET status = ? WHERE id = ?`, StatusActive, 42)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	n, _ := res.RowsAffected()
//	fmt.Println("rows:", n)
func Exec(ctx context.Context, e Execer, query string, args ...any) (sql.Result, error) {
	return ExecWith(ctx, DefaultMapper(), e, query, args...)
}

// ExecWith is Exec using m instead of the default mapper.
func ExecWith(ctx context.Context, m *Mapper, e Execer, query string, args ...any) (sql.Result, error) {
	args, err := m.argsToDatabase(args)
	if err != nil {
		return nil, err
	}
	return e.ExecContext(ctx, query, args...)
}

/*
Package rowbind instantiates arbitrary Go types from tabular query results.
You describe a row by its column names and declared types; rowbind decides
once how to build your type from such rows and replays that decision for
every row.

# Overview

The engine is the [InstantiatorProvider]. Given a target type and a
[NamedTypeList] it returns an [Instantiator]:

  - A registered instantiator for the type, if any.
  - For a single column, a [CoercionInstantiator] wrapping one conversion.
  - A registered factory, which must take exactly one parameter per column.
  - Otherwise a [ReflectionInstantiator]: the registered constructor with the
    most parameters that fits the leading columns, with every remaining column
    stored into a field or Set<Name> method of the same name. Structs always
    have the implicit zero-value constructor of no parameters.

The resolved instantiator is cached per (type, columns) pair.

# Conversions

A column value reaches a parameter or property through the first conversion
that applies, in order: assignment, the [ConversionRegistry] (latest
registration for the source type or its representation wins, then registered
interfaces), [Array] handles into slices, arrays and sets, optional wrappers
(pointers and the database/sql Null types), registered enums, targets
implementing sql.Scanner, defined types
sharing a predeclared representation, and finally per-value resolution for
columns declared as interface types.

Built-in conversions cover numbers (with overflow checks), decimal.Decimal,
*big.Int, []byte and string, io.Reader, URLs, time zones, UUIDs and textual
timestamps. Conversions registered by the caller shadow them.

# Mapping rules

  - Property names match column names ignoring ASCII case and underscores.
  - Fields bind by `db:"name"` first; `db:"-"` skips a field.
  - Nested structs can be flattened with `db:",inline"` or by embedding.
  - A Set<Name> method is preferred over a field of the same name.
  - Dotted column names ("address.city") walk getters or struct fields; a nil
    intermediate is an error.
  - A column with no matching property makes the constructor unusable;
    rowbind never drops columns silently.

# Error handling

  - Get returns sql.ErrNoRows when no row matches.
  - Resolution failures match [ErrNoInstantiator] and carry the type and columns
    in an *[InstantiationError].
  - Failing conversions are returned as *[ConversionError].
  - Query and Exec propagate underlying driver errors.

# Usage notes

Register constructors, factories and conversions during setup, before the
provider is shared. The database/sql layer declares column types from the
driver's scan types; drivers that report none yield interface-typed columns
resolved per value.
*/
package rowbind

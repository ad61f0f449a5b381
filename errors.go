package rowbind

import (
	"errors"
	"fmt"
	"reflect"
)

var (
	// ErrNoInstantiator is matched by every *InstantiationError: no coercion,
	// factory or constructor could build the requested type from the columns.
	ErrNoInstantiator = errors.New("rowbind: no way to instantiate type")

	// ErrConflictingAccessor is returned when more than one field, or more than
	// one setter, matches a property name.
	ErrConflictingAccessor = errors.New("rowbind: conflicting accessors for property")

	// ErrAmbiguousInstantiator is returned when more than one factory was
	// registered for the same type.
	ErrAmbiguousInstantiator = errors.New("rowbind: more than one factory registered for type")

	// ErrNotInstantiable is returned for types that can't be built reflectively
	// (interfaces, funcs, channels) and have no constructor registered.
	ErrNotInstantiable = errors.New("rowbind: type can't be instantiated reflectively")

	// ErrUnexpectedNull is returned when a NULL must be stored in a value that
	// can't hold nil, e.g. an int parameter or an int array element.
	ErrUnexpectedNull = errors.New("rowbind: unexpected NULL")

	// ErrConversion is matched by every *ConversionError.
	ErrConversion = errors.New("rowbind: conversion failed")

	// ErrNullIntermediate is returned when a nested property path reaches a nil
	// pointer before its last segment.
	ErrNullIntermediate = errors.New("rowbind: nil intermediate value in property path")

	// ErrArgumentCount is returned when a value vector does not match its schema.
	ErrArgumentCount = errors.New("rowbind: value count does not match column count")

	// ErrNotConstructor is returned when a registered function has no usable
	// constructor signature.
	ErrNotConstructor = errors.New("rowbind: not a constructor function")

	// ErrUnexportedEmbedded is returned when a property is promoted through a
	// nil pointer to an unexported embedded struct, which can't be allocated.
	ErrUnexportedEmbedded = errors.New("rowbind: cannot set embedded pointer to unexported struct")

	ErrBuilderFull       = errors.New("rowbind: named type list builder is full")
	ErrBuilderFinalized  = errors.New("rowbind: named type list builder already built")
	ErrBuilderIncomplete = errors.New("rowbind: named type list builder is incomplete")
	ErrBuilderSize       = errors.New("rowbind: negative named type list size")
)

// InstantiationError reports that Type could not be built from Types.
type InstantiationError struct {
	Type   reflect.Type
	Types  *NamedTypeList
	Reason string
}

func (e *InstantiationError) Error() string {
	msg := fmt.Sprintf("rowbind: could not find a way to instantiate %v with parameters %v", e.Type, e.Types)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *InstantiationError) Unwrap() error { return ErrNoInstantiator }

// ConversionError wraps a failure raised while converting a value.
type ConversionError struct {
	Source reflect.Type
	Target reflect.Type
	Err    error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("rowbind: converting %v to %v: %v", e.Source, e.Target, e.Err)
}

func (e *ConversionError) Unwrap() []error { return []error{ErrConversion, e.Err} }

var errNoConversion = errors.New("no conversion registered")

package field

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind is the closed set of failures the field engine reports.
type ErrorKind int

const (
	// KindPath is a field path that does not resolve to a writable leaf.
	KindPath ErrorKind = iota + 1

	// KindConversion is a raw value that cannot be decoded for the leaf kind.
	KindConversion

	// KindAmbiguousEnum is free text matching more than one enum value suffix.
	KindAmbiguousEnum

	// KindUnknownEnum is free text matching no enum value.
	KindUnknownEnum

	// KindTransport is a failure reported by the device-control channel.
	KindTransport

	// KindSchemaUnavailable is a schema that could not be loaded at startup.
	KindSchemaUnavailable
)

// String returns the kind name used in log output.
func (k ErrorKind) String() string {
	switch k {
	case KindPath:
		return "path"
	case KindConversion:
		return "conversion"
	case KindAmbiguousEnum:
		return "ambiguous_enum"
	case KindUnknownEnum:
		return "unknown_enum"
	case KindTransport:
		return "transport"
	case KindSchemaUnavailable:
		return "schema_unavailable"
	default:
		return "unknown"
	}
}

// Sentinel errors, one per kind. Use errors.Is() against these in calling code.
var (
	ErrPath              = errors.New("field: invalid path")
	ErrConversion        = errors.New("field: conversion failed")
	ErrAmbiguousEnum     = errors.New("field: ambiguous enum value")
	ErrUnknownEnum       = errors.New("field: unknown enum value")
	ErrTransport         = errors.New("field: transport failure")
	ErrSchemaUnavailable = errors.New("field: schema unavailable")
)

// PathReason narrows a KindPath error.
type PathReason int

const (
	// ReasonEmpty is a path with no segments left after canonicalization.
	ReasonEmpty PathReason = iota + 1

	// ReasonNotFound is a segment naming no field of the current message.
	ReasonNotFound

	// ReasonNotMessage is an intermediate segment naming a non-message field.
	ReasonNotMessage

	// ReasonRepeated is a segment naming a repeated field.
	ReasonRepeated
)

// Error is the single error type produced by the field engine.
//
// Only the members relevant to Kind are populated.
type Error struct {
	Kind ErrorKind

	// Reason narrows KindPath.
	Reason PathReason

	// Field is the offending path segment or leaf field name.
	Field string

	// Input is the raw text that failed to decode.
	Input string

	// Want names the expected value type for KindConversion.
	Want string

	// Code and Detail carry a structured transport status when one exists.
	Code   string
	Detail string

	// Supported lists valid enum names for KindUnknownEnum.
	Supported []string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch e.Kind {
	case KindPath:
		switch e.Reason {
		case ReasonEmpty:
			return "field path does not target a writable field"
		case ReasonNotMessage:
			return fmt.Sprintf("field is not a message: %s", e.Field)
		case ReasonRepeated:
			return fmt.Sprintf("repeated fields are not supported: %s", e.Field)
		default:
			return fmt.Sprintf("unknown field: %s", e.Field)
		}
	case KindConversion:
		return fmt.Sprintf("invalid %s value for %s: %s", e.Want, e.Field, e.Input)
	case KindAmbiguousEnum:
		return fmt.Sprintf("ambiguous enum value for %s: %s", e.Field, e.Input)
	case KindUnknownEnum:
		return fmt.Sprintf("invalid enum value for %s: %s. Supported: %s",
			e.Field, e.Input, strings.Join(e.Supported, ", "))
	case KindTransport:
		if e.Code != "" {
			if e.Detail != "" {
				return e.Code + ": " + e.Detail
			}
			return e.Code
		}
		if e.Err != nil {
			return e.Err.Error()
		}
		return "transport failure"
	case KindSchemaUnavailable:
		if e.Err != nil {
			return fmt.Sprintf("schema unavailable: %v", e.Err)
		}
		return "schema unavailable"
	default:
		return "field: unknown error"
	}
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for this error's kind.
func (e *Error) Is(target error) bool {
	return target == sentinelFor(e.Kind)
}

func sentinelFor(k ErrorKind) error {
	switch k {
	case KindPath:
		return ErrPath
	case KindConversion:
		return ErrConversion
	case KindAmbiguousEnum:
		return ErrAmbiguousEnum
	case KindUnknownEnum:
		return ErrUnknownEnum
	case KindTransport:
		return ErrTransport
	case KindSchemaUnavailable:
		return ErrSchemaUnavailable
	default:
		return nil
	}
}

// KindOf returns the kind of err, or 0 if err was not produced by this package.
func KindOf(err error) ErrorKind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return 0
}

// SchemaUnavailable wraps a schema loading failure.
func SchemaUnavailable(err error) error {
	return &Error{Kind: KindSchemaUnavailable, Err: err}
}

func pathError(reason PathReason, segment string) *Error {
	return &Error{Kind: KindPath, Reason: reason, Field: segment}
}

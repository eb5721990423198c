package errors

import (
	"errors"
	"fmt"
)

// Standard error functions
var (
	Is     = errors.Is
	As     = errors.As
	Join   = errors.Join
	Unwrap = errors.Unwrap
)

// Class groups abort codes by how a caller should react to them.
type Class int

const (
	// ClassValidation is malformed input detected before any mutation.
	ClassValidation Class = iota
	// ClassNotFound is an unknown market, account or order.
	ClassNotFound
	// ClassCapacity is node-pool exhaustion or priority too low to rest.
	ClassCapacity
	// ClassInvariant is an overflow, underflow or misconfiguration.
	ClassInvariant
)

func (c Class) String() string {
	switch c {
	case ClassValidation:
		return "validation"
	case ClassNotFound:
		return "not_found"
	case ClassCapacity:
		return "capacity"
	case ClassInvariant:
		return "invariant"
	default:
		return "unknown"
	}
}

// Abort is a typed abort code raised by a core module. Every exported
// sentinel is a distinct *Abort, so errors.Is compares by identity.
type Abort struct {
	Module string `json:"module"`
	Code   uint64 `json:"code"`
	Name   string `json:"name"`
	Class  Class  `json:"-"`
}

var _ error = (*Abort)(nil)

// NewAbort declares an abort code for a module.
func NewAbort(module string, code uint64, name string, class Class) *Abort {
	return &Abort{Module: module, Code: code, Name: name, Class: class}
}

// Error implements error
func (a *Abort) Error() string {
	return fmt.Sprintf("%s abort %d: %s", a.Module, a.Code, a.Name)
}

// AbortOf returns the abort code carried by err, if any.
func AbortOf(err error) (*Abort, bool) {
	var a *Abort
	if errors.As(err, &a) {
		return a, true
	}
	return nil, false
}

// IsAbort reports whether err carries the given module and code.
func IsAbort(err error, module string, code uint64) bool {
	a, ok := AbortOf(err)
	return ok && a.Module == module && a.Code == code
}

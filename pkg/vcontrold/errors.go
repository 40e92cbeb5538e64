package vcontrold

import (
	"errors"
	"fmt"
)

var (
	ErrSessionClosed  = errors.New("vcontrold: session closed")
	ErrCommandTimeout = errors.New("vcontrold: command timed out")
	ErrDecode         = errors.New("vcontrold: decode failed")
	ErrEmptyResponse  = fmt.Errorf("%w: empty response", ErrDecode)
	ErrConversion     = errors.New("vcontrold: conversion failed")
	ErrUnknownUnit    = errors.New("vcontrold: unknown unit kind")
	ErrUnsupported    = errors.New("vcontrold: command not available")
	ErrReadOnly       = errors.New("vcontrold: item is read-only")
)

// ConnectionError reports that the daemon could not be reached or dropped
// the connection. The session is unusable afterwards.
type ConnectionError struct {
	Addr string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("vcontrold: connection to %s: %v", e.Addr, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// LookupError names a catalog identifier that could not be resolved.
type LookupError struct {
	Kind string // "item" or "group"
	Name string
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("vcontrold: unknown %s %q", e.Kind, e.Name)
}

// DaemonError carries the failure message the daemon returned for a command.
type DaemonError struct {
	Command string
	Detail  string
}

func (e *DaemonError) Error() string {
	return fmt.Sprintf("vcontrold: %s: daemon reported %q", e.Command, e.Detail)
}

func (e *DaemonError) Is(target error) bool { return target == ErrDecode }

// ConversionError reports data a unit conversion could not interpret.
type ConversionError struct {
	Unit  Unit
	Input string
	Err   error
}

func (e *ConversionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("vcontrold: convert %q as %s: %v", e.Input, e.Unit, e.Err)
	}
	return fmt.Sprintf("vcontrold: convert %q as %s", e.Input, e.Unit)
}

func (e *ConversionError) Unwrap() error { return e.Err }

func (e *ConversionError) Is(target error) bool { return target == ErrConversion }

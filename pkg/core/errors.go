package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"strings"
)

// ErrInvalidConfig is matched by every ConfigError.
var ErrInvalidConfig = errors.New("invalid configuration")

// ConfigError is fatal: it aborts a phase before any work starts.
type ConfigError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrInvalidConfig, e.Err}
	}
	return []error{ErrInvalidConfig}
}

// ErrorKind classifies scan warnings and clean failures.
type ErrorKind string

const (
	KindPermissionDenied ErrorKind = "PermissionDenied"
	KindToolNotFound     ErrorKind = "ToolNotFound"
	KindToolFailed       ErrorKind = "ToolFailed"
	KindIOFailure        ErrorKind = "IoFailure"
	KindPartialFailure   ErrorKind = "PartialFailure"
	KindCancelled        ErrorKind = "Cancelled"
)

// KindOf maps a filesystem error to PermissionDenied or IoFailure.
func KindOf(err error) ErrorKind {
	if errors.Is(err, fs.ErrPermission) {
		return KindPermissionDenied
	}
	return KindIOFailure
}

// CleanError is attached to a Failed or Cancelled CleanResult. For
// PartialFailure, Cause is the kind of the error that stopped the
// project and Succeeded lists the artifact paths already removed.
type CleanError struct {
	Kind      ErrorKind
	Path      string
	Cause     ErrorKind
	Succeeded []string
	Err       error
}

func (e *CleanError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Path != "" {
		b.WriteString(" ")
		b.WriteString(e.Path)
	}
	if e.Kind == KindPartialFailure {
		fmt.Fprintf(&b, " (cause %s; removed %s)", e.Cause, strings.Join(e.Succeeded, ", "))
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *CleanError) Unwrap() error { return e.Err }

func (e *CleanError) MarshalJSON() ([]byte, error) {
	out := struct {
		Kind      ErrorKind `json:"kind"`
		Path      string    `json:"path,omitempty"`
		Cause     ErrorKind `json:"cause,omitempty"`
		Succeeded []string  `json:"succeeded,omitempty"`
		Message   string    `json:"message"`
	}{e.Kind, e.Path, e.Cause, e.Succeeded, e.Error()}
	return json.Marshal(out)
}

// ScanWarning is a non-fatal scan problem; the subtree at Path was skipped.
type ScanWarning struct {
	Path string
	Kind ErrorKind
	Err  error
}

func (w ScanWarning) String() string {
	return fmt.Sprintf("%s %s: %v", w.Kind, w.Path, w.Err)
}

func (w ScanWarning) MarshalJSON() ([]byte, error) {
	out := struct {
		Path    string    `json:"path"`
		Kind    ErrorKind `json:"kind"`
		Message string    `json:"message"`
	}{w.Path, w.Kind, fmt.Sprint(w.Err)}
	return json.Marshal(out)
}

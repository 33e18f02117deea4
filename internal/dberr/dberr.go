// Package dberr classifies failures raised by the remote and local stores.
// It turns loosely shaped errors (a code and a message, both optional) into a
// closed set of kinds that the fallback router and callers can act on.
package dberr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/jackc/pgerrcode"
)

// Kind is the failure category of a data-access error.
type Kind int

const (
	KindUnknown Kind = iota
	KindPermission
	KindNotFound
	KindConflict
	KindNetwork
)

func (k Kind) String() string {
	switch k {
	case KindPermission:
		return "permission"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindNetwork:
		return "network"
	default:
		return "unknown"
	}
}

// CodeNoRows is the PostgREST code for a singular request matching no rows.
const CodeNoRows = "PGRST116"

// Sentinels for errors.Is. A classified *Error matches the sentinel of its kind.
var (
	ErrUnknown    = errors.New("unknown data access failure")
	ErrPermission = errors.New("permission denied")
	ErrNotFound   = errors.New("record not found")
	ErrConflict   = errors.New("conflicting record")
	ErrNetwork    = errors.New("network failure")
)

var sentinels = map[Kind]error{
	KindUnknown:    ErrUnknown,
	KindPermission: ErrPermission,
	KindNotFound:   ErrNotFound,
	KindConflict:   ErrConflict,
	KindNetwork:    ErrNetwork,
}

// Raw is the narrow view of an inbound error the classifier decides on.
type Raw struct {
	Code    string
	Message string
}

// Error is a classified data-access failure. Raw holds the original error.
type Error struct {
	Kind      Kind
	Code      string
	Message   string
	Retriable bool
	Raw       error
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%s): %s", e.Kind, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Raw }

// Is reports whether target is the sentinel for e's kind.
func (e *Error) Is(target error) bool {
	return sentinels[e.Kind] == target
}

// NotFound reports a missing record in table.
func NotFound(table, id string) *Error {
	return &Error{
		Kind:    KindNotFound,
		Code:    CodeNoRows,
		Message: fmt.Sprintf("no record %q in %s", id, table),
	}
}

// Conflict reports a duplicate id in table.
func Conflict(table, id string) *Error {
	return &Error{
		Kind:    KindConflict,
		Code:    pgerrcode.UniqueViolation,
		Message: fmt.Sprintf("record %q already exists in %s", id, table),
	}
}

var permissionText = []string{"recursion", "policy", "permission denied"}

var networkText = []string{
	"failed to fetch",
	"network",
	"connection refused",
	"connection reset",
	"no such host",
	"timeout",
	"timed out",
	"deadline exceeded",
}

// ClassifyRaw applies the decision table to a code and message.
func ClassifyRaw(r Raw) Kind {
	msg := strings.ToLower(r.Message)

	switch r.Code {
	case pgerrcode.InsufficientPrivilege, pgerrcode.InvalidObjectDefinition:
		return KindPermission
	}
	if containsAny(msg, permissionText) {
		return KindPermission
	}

	switch r.Code {
	case pgerrcode.UniqueViolation, pgerrcode.ForeignKeyViolation:
		return KindConflict
	case CodeNoRows:
		return KindNotFound
	}

	if containsAny(msg, networkText) {
		return KindNetwork
	}
	return KindUnknown
}

// Classify inspects err and returns its classification. It never panics and
// returns nil only for a nil error.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}

	var classified *Error
	if errors.As(err, &classified) {
		return classified
	}

	raw := Raw{Code: codeOf(err), Message: err.Error()}
	kind := ClassifyRaw(raw)
	if kind == KindUnknown && isTransport(err) {
		kind = KindNetwork
	}

	return &Error{
		Kind:      kind,
		Code:      raw.Code,
		Message:   raw.Message,
		Retriable: kind == KindNetwork,
		Raw:       err,
	}
}

func codeOf(err error) string {
	var pg interface{ SQLState() string }
	if errors.As(err, &pg) {
		return pg.SQLState()
	}
	var coded interface{ ErrorCode() string }
	if errors.As(err, &coded) {
		return coded.ErrorCode()
	}
	return ""
}

func isTransport(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/wippyai/osal/objid"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseValidate Phase = "validate" // argument checks, before any lock
	PhaseLock     Phase = "lock"     // lock manager and waits
	PhaseAllocate Phase = "allocate" // slot allocation
	PhaseLookup   Phase = "lookup"   // by id, name or search
	PhaseConvert  Phase = "convert"  // token re-validation
	PhaseFinalize Phase = "finalize" // commit or rollback
	PhaseIterate  Phase = "iterate"  // for-each and iterators
	PhaseShutdown Phase = "shutdown" // registry teardown
	PhasePlatform Phase = "platform" // port specific implementation
)

// Kind categorizes the error
type Kind string

const (
	KindError                Kind = "error"
	KindInvalidPointer       Kind = "invalid_pointer"
	KindTimeout              Kind = "timeout"
	KindNameTooLong          Kind = "name_too_long"
	KindNoFreeIDs            Kind = "no_free_ids"
	KindNameTaken            Kind = "name_taken"
	KindInvalidID            Kind = "invalid_id"
	KindNameNotFound         Kind = "name_not_found"
	KindObjectInUse          Kind = "object_in_use"
	KindIncorrectObjectState Kind = "incorrect_object_state"
	KindIncorrectObjectType  Kind = "incorrect_object_type"
	KindInvalidSize          Kind = "invalid_size"
)

var statusCodes = map[Kind]int32{
	KindError:                -1,
	KindInvalidPointer:       -2,
	KindTimeout:              -4,
	KindNameTooLong:          -13,
	KindNoFreeIDs:            -14,
	KindNameTaken:            -15,
	KindInvalidID:            -16,
	KindNameNotFound:         -17,
	KindObjectInUse:          -33,
	KindIncorrectObjectState: -35,
	KindIncorrectObjectType:  -36,
	KindInvalidSize:          -40,
}

// Status returns the negative status code for k. Unknown kinds map to -1.
func (k Kind) Status() int32 {
	if code, ok := statusCodes[k]; ok {
		return code
	}
	return statusCodes[KindError]
}

// Sentinels for errors.Is. They carry no phase and so match any phase.
var (
	ErrInvalidPointer       = &Error{Kind: KindInvalidPointer}
	ErrTimeout              = &Error{Kind: KindTimeout}
	ErrNameTooLong          = &Error{Kind: KindNameTooLong}
	ErrNoFreeIDs            = &Error{Kind: KindNoFreeIDs}
	ErrNameTaken            = &Error{Kind: KindNameTaken}
	ErrInvalidID            = &Error{Kind: KindInvalidID}
	ErrNameNotFound         = &Error{Kind: KindNameNotFound}
	ErrObjectInUse          = &Error{Kind: KindObjectInUse}
	ErrIncorrectObjectState = &Error{Kind: KindIncorrectObjectState}
	ErrIncorrectObjectType  = &Error{Kind: KindIncorrectObjectType}
	ErrInvalidSize          = &Error{Kind: KindInvalidSize}
)

// Error is the structured error type used throughout the registry
type Error struct {
	Cause  error
	Phase  Phase
	Kind   Kind
	Name   string
	Detail string
	ID     objid.ID
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	if e.Phase != "" {
		b.WriteByte('[')
		b.WriteString(string(e.Phase))
		b.WriteString("] ")
	}
	b.WriteString(string(e.Kind))

	if e.ID != objid.Undefined {
		b.WriteString(" id=")
		b.WriteString(e.ID.String())
	}
	if e.Name != "" {
		b.WriteString(" name=")
		b.WriteString(fmt.Sprintf("%q", e.Name))
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error.
// A target without a phase matches on kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Phase == "" {
		return e.Kind == t.Kind
	}
	return e.Phase == t.Phase && e.Kind == t.Kind
}

// Status returns the status code of e.
func (e *Error) Status() int32 {
	return e.Kind.Status()
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// ID sets the object ID involved
func (b *Builder) ID(id objid.ID) *Builder {
	b.err.ID = id
	return b
}

// Name sets the object name involved
func (b *Builder) Name(name string) *Builder {
	b.err.Name = name
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Status maps err to a status code: 0 for nil, the kind's code for *Error,
// the timeout code for context expiry and -1 for anything else.
func Status(err error) int32 {
	if err == nil {
		return 0
	}
	var e *Error
	if stderrors.As(err, &e) {
		return e.Status()
	}
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return KindTimeout.Status()
	}
	return KindError.Status()
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool { return stderrors.Is(err, target) }

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool { return stderrors.As(err, target) }

// KindOf returns the kind of err, or KindError when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return KindError
}

// Convenience constructors for common error patterns

// InvalidID creates an invalid id error
func InvalidID(phase Phase, id objid.ID) *Error {
	return &Error{
		Phase: phase,
		Kind:  KindInvalidID,
		ID:    id,
	}
}

// NoFreeIDs creates a table-full error
func NoFreeIDs(t objid.Type, capacity int) *Error {
	return &Error{
		Phase:  PhaseAllocate,
		Kind:   KindNoFreeIDs,
		Detail: fmt.Sprintf("all %d %s slots in use", capacity, t),
	}
}

// NameTaken creates a name uniqueness error
func NameTaken(t objid.Type, name string) *Error {
	return &Error{
		Phase:  PhaseAllocate,
		Kind:   KindNameTaken,
		Name:   name,
		Detail: fmt.Sprintf("name already registered for %s", t),
	}
}

// NameNotFound creates a lookup-by-name failure
func NameNotFound(t objid.Type, name string) *Error {
	return &Error{
		Phase:  PhaseLookup,
		Kind:   KindNameNotFound,
		Name:   name,
		Detail: fmt.Sprintf("no %s with this name", t),
	}
}

// NameTooLong creates a name length validation error
func NameTooLong(name string, max int) *Error {
	return &Error{
		Phase:  PhaseValidate,
		Kind:   KindNameTooLong,
		Name:   name,
		Detail: fmt.Sprintf("length %d exceeds %d", len(name), max),
	}
}

// ObjectInUse creates an error for an object that could not be drained
func ObjectInUse(id objid.ID, attempts int) *Error {
	return &Error{
		Phase:  PhaseConvert,
		Kind:   KindObjectInUse,
		ID:     id,
		Detail: fmt.Sprintf("still referenced after %d attempts", attempts),
	}
}

// IncorrectState creates an incorrect object state error
func IncorrectState(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindIncorrectObjectState,
		Detail: detail,
	}
}

// InvalidPointer creates an error for a missing required argument
func InvalidPointer(what string) *Error {
	return &Error{
		Phase:  PhaseValidate,
		Kind:   KindInvalidPointer,
		Detail: what + " is nil",
	}
}

// InvalidSize creates a size validation error
func InvalidSize(detail string) *Error {
	return &Error{
		Phase:  PhaseValidate,
		Kind:   KindInvalidSize,
		Detail: detail,
	}
}

// Timeout wraps a context error from a blocking wait
func Timeout(phase Phase, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindTimeout,
		Detail: "wait interrupted",
		Cause:  cause,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

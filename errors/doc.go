// Package errors provides structured error types for the object registry.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type includes the object ID or name involved, a detail message and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseAllocate, errors.KindNameTaken).
//		Name("telemetry").
//		Detail("name already registered for %s", objid.TypeQueue).
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.InvalidID(errors.PhaseLookup, id)
//	err := errors.NoFreeIDs(objid.TypeMutex, 64)
//
// Every Kind maps to a classic negative status code, see Status.
// All errors implement the standard error interface and support errors.Is/As;
// the Err* sentinels match on Kind regardless of phase:
//
//	if errors.Is(err, errors.ErrObjectInUse) { ... }
package errors

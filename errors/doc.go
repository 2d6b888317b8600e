// Package errors provides standardized error handling for the Kapua datastore.
//
// # Overview
//
// The package implements a three-class error classification system for the
// ingestion pipeline: Transient (temporary, retryable), Invalid (bad input,
// non-retryable), and Fatal (unrecoverable, stop processing).
//
// On top of the classes it carries the datastore's error taxonomy as sentinel
// variables: ErrStoreUnavailable (retry with backoff), ErrInvalidInput and
// ErrInvalidQuery (fatal to the single call), ErrNotFound (absent delete/find
// target, not an error for bulk operations), ErrUnsupportedPropertyType (a
// payload value with no inferable storage type) and ErrMappingConflict (a
// metric name already mapped to a different storage type, carried with detail
// by MappingConflictError).
//
// The classification system integrates with Go's standard error handling,
// supporting errors.Is(), errors.As(), and error wrapping chains.
//
// # Quick Start
//
//	if err := backend.Put(ctx, bucket, key, value); err != nil {
//	    return errors.WrapTransient(err, "MessageStore", "Upsert", "document write")
//	}
//
// Callers branch on classification rather than on error strings:
//
//	if errors.IsTransient(err) {
//	    // safe to retry with backoff
//	}
package errors

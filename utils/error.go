package utils

import "errors"

var ErrorRecordNotFound = errors.New("record not found")

// ErrInvalidInput marks input that must abort the single operation rather than be guessed at.
var ErrInvalidInput = errors.New("invalid input")

// ErrExternalDependency marks failures of collaborators outside the engine
// (aggregation queries, storage, brokers). They are propagated, never retried here.
var ErrExternalDependency = errors.New("external dependency failure")

// ErrPartialBatchFailure is returned by batch runs where at least one tenant failed.
var ErrPartialBatchFailure = errors.New("partial batch failure")

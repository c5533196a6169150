package domain

import "errors"

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")

	// ErrClusterRunInProgress is returned when a tenant already has a cluster run executing.
	ErrClusterRunInProgress = errors.New("cluster run already in progress")

	// ErrStaleClusterVersion is returned when a cluster commit is not newer than the stored version.
	ErrStaleClusterVersion = errors.New("stale cluster version")

	// ErrUnknownAlgorithm is returned for an unsupported community detection algorithm.
	ErrUnknownAlgorithm = errors.New("unknown clustering algorithm")
)

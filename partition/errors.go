package partition

import "errors"

var (
	// ErrUnavailable is returned by every entry point when the binary was
	// built without the partitioning backends.
	ErrUnavailable = errors.New("mesh partitioning requires the message passing layer and the METIS backend")

	// ErrPrecondition is returned when input mesh data violates a shape
	// requirement: mixed cell arity, zero dimensional coordinates, empty
	// vertex sets or assignments that do not match their entities.
	ErrPrecondition = errors.New("partitioning precondition violated")

	// ErrPartitioner is returned when the external partitioner fails or hands
	// back a result that is not a partition.
	ErrPartitioner = errors.New("external partitioner failed")

	// ErrProtocol is returned when a peer's payload disagrees with the counts
	// it announced.
	ErrProtocol = errors.New("redistribution protocol violated")

	// ErrNotImplemented marks operations that exist in the interface but are
	// not available yet.
	ErrNotImplemented = errors.New("not implemented")
)

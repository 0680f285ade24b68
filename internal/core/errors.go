package core

import "errors"

var (
	// ErrStorage means the content store was unreachable or rejected the
	// write. Nothing was anchored.
	ErrStorage = errors.New("storage failure")
	// ErrAnchor means the record was stored but its digest was not
	// anchored. The stored record is an orphan.
	ErrAnchor = errors.New("anchor failure")
	// ErrTransaction covers ledger submission, execution and revert failures.
	ErrTransaction = errors.New("transaction failure")
	// ErrUnauthorized means the signing identity may not move the pointer.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNotFound is returned for agents that never anchored and for
	// missing content or journal entries.
	ErrNotFound = errors.New("not found")
	// ErrTransport is a connection level failure seen by a watcher.
	ErrTransport = errors.New("transport error")
	// ErrDecode means an event or stored record could not be parsed.
	ErrDecode = errors.New("decode error")
	// ErrIntegrity means stored bytes no longer hash to the digest of the
	// CID they were requested by.
	ErrIntegrity = errors.New("content does not match digest")

	ErrInvalidPayload   = errors.New("invalid payload")
	ErrInvalidSignature = errors.New("invalid signature")
	ErrBrokenChain      = errors.New("broken chain")
)

package btree

import "errors"

// The three error kinds recognised at this layer (see §7 of the design
// notes this package follows): malformed on-disk input, a precondition the
// caller violated, and a deliberately unsupported path. Callers can use
// errors.Is against the sentinels below, or errors.As against the wrapper
// types, to tell them apart.

// ErrNotInitialized is returned by any operation that requires the cursor
// to already be positioned (move_next, get_*_payload, get_table_key) when
// no positioning call has yet succeeded.
var ErrNotInitialized = errors.New("btree: cursor is not initialized")

// ErrWrongPageKind is returned when an operation is used against the wrong
// tree kind — e.g. get_index_payload on a table page.
var ErrWrongPageKind = errors.New("btree: operation used on the wrong page kind")

// ErrUnsupported marks a deliberately unimplemented path: updating an
// existing key, writing an overflow page on insert, or balancing
// (splitting/merging) a page. The upper layer decides whether that should
// fail the whole statement.
var ErrUnsupported = errors.New("btree: operation requires unsupported rebalance/overflow-write path")

// MalformedError wraps a decode or invariant failure against the on-disk
// file — the file is treated as corrupt at that point.
type MalformedError struct {
	msg string
	err error
}

func (e *MalformedError) Error() string {
	if e.err != nil {
		return "btree: malformed database: " + e.msg + ": " + e.err.Error()
	}
	return "btree: malformed database: " + e.msg
}

func (e *MalformedError) Unwrap() error { return e.err }

func malformed(msg string, err error) error {
	return &MalformedError{msg: msg, err: err}
}

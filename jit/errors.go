package jit

import (
	"errors"
	"fmt"

	"github.com/chazu/hotpath/pkg/bytecode"
)

// ErrTooLarge reports an artifact bigger than the entire cache capacity.
// Unlike translation and backend failures it is not a correctness verdict:
// the function stays untried and may be compiled again later.
var ErrTooLarge = errors.New("artifact exceeds cache capacity")

// UnsupportedError reports the first instruction the translator cannot
// model. Offsets are absolute module offsets; Op is the offending opcode.
type UnsupportedError struct {
	Offset uint32
	Op     bytecode.Opcode
	Reason string
}

func (e *UnsupportedError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("unsupported instruction %s at offset %d: %s", e.Op, e.Offset, e.Reason)
	}
	return fmt.Sprintf("unsupported instruction %s at offset %d", e.Op, e.Offset)
}

// MalformedError reports bytecode the translator could not decode:
// truncated operands, out-of-range slots or constant indexes, or a missing
// terminal return. Like UnsupportedError it permanently declines the
// function.
type MalformedError struct {
	Offset uint32
	Detail string
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed bytecode at offset %d: %s", e.Offset, e.Detail)
}

// BackendError reports that code generation rejected valid IR, for example
// because the host target is not supported.
type BackendError struct {
	Backend string
	Detail  string
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("backend %s: %s", e.Backend, e.Detail)
}

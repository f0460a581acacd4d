// Package xerrors collects the engine's fault taxonomy (spec §7): the two
// fallible error kinds callers see on the Result-returning surface, plus
// helpers for the "defect" class of fault that the spec says may legitimately
// terminate the process instead of propagating.
package xerrors

import (
	"fmt"

	"github.com/pkg/errors"
)

// TrieError reports a fault in the trie/KV backend: inconsistent root,
// missing node, malformed node. Fatal to the enclosing read or commit.
type TrieError struct {
	Op  string
	Err error
}

func (e *TrieError) Error() string {
	return fmt.Sprintf("triestate: %s: %v", e.Op, e.Err)
}

func (e *TrieError) Unwrap() error { return e.Err }

// WrapTrie wraps err (if non-nil) as a TrieError tagged with the operation
// that failed, adding a stack trace via pkg/errors the way the rest of the
// retrieval pack annotates faults before they cross a package boundary.
func WrapTrie(op string, err error) error {
	if err == nil {
		return nil
	}
	return &TrieError{Op: op, Err: errors.WithStack(err)}
}

// BadProof reports a light-client proof that lacked the nodes needed to
// verify its claim. No function in this module returns it.
type BadProof struct {
	Reason string
}

func (e *BadProof) Error() string { return "triestate: bad proof: " + e.Reason }

// Defect panics to signal a programmer error the spec says may terminate
// the process: negative balance, a checkpoint pop on an empty stack, a pod
// dump while a checkpoint is open. These are never wrapped in a Result.
// (is_empty on dirty storage panics directly in the account package.)
func Defect(format string, args ...any) {
	panic(fmt.Sprintf("defect: "+format, args...))
}

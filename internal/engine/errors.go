package engine

import (
	"errors"
	"fmt"

	"github.com/gitmerge/gitmerge/internal/git"
	"github.com/gitmerge/gitmerge/internal/retry"
)

type Error string

func (e Error) Error() string {
	return string(e)
}

const (
	ErrInvalidState        = Error("operation not allowed in the current session state")
	ErrBusy                = Error("another operation is running on this repository")
	ErrUnresolvedConflicts = Error("unresolved conflicts remain")
	ErrConflictMarkers     = Error("staged content still contains conflict markers")
	ErrNothingToCommit     = Error("nothing to commit")
	ErrNoHandle            = Error("repository not initialized")
	ErrNoRepository        = Error("workspace has no repository")
	ErrBranchNotFound      = Error("branch not found")
	ErrMergeInProgress     = Error("a merge is in progress")
	ErrUnrelatedHistories  = Error("refusing to merge unrelated histories")
	ErrMissingHistory      = Error("merge base not found in fetched history")
	ErrNotConflicted       = Error("path is not conflicted")
)

// Kind classifies which primitive failed.
type Kind string

const (
	KindInitialization Kind = "InitializationError"
	KindListBranches   Kind = "ListBranchesError"
	KindCheckout       Kind = "CheckoutError"
	KindPull           Kind = "PullError"
	KindMerge          Kind = "MergeError"
	KindResolve        Kind = "ResolveError"
	KindCommit         Kind = "CommitError"
	KindPush           Kind = "PushError"
	KindAuthentication Kind = "AuthenticationError"
)

// OpError is the classified failure of an engine primitive. Retryable drives
// the retry policy; Auth marks credential problems, which are never retried.
type OpError struct {
	Kind      Kind
	Op        string
	Err       error
	Retryable bool
	Auth      bool
}

func (e *OpError) Error() string {
	return fmt.Sprintf("%s: %s failed: %v", e.Kind, e.Op, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

func (e *OpError) IsRetryable() bool {
	return e.Retryable
}

// ErrorCode prefers the code of the cause and falls back to the kind.
func (e *OpError) ErrorCode() string {
	if code := retry.Code(e.Err); code != "UNKNOWN" {
		return code
	}
	if e.Auth {
		return string(KindAuthentication)
	}
	return string(e.Kind)
}

// classify wraps err as an *OpError of kind unless it already is one.
// Transient network failures stay retryable, credential failures never are.
func classify(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}

	var opErr *OpError
	if errors.As(err, &opErr) {
		return err
	}

	auth := git.IsAuthError(err)
	return &OpError{
		Kind:      kind,
		Op:        op,
		Err:       err,
		Retryable: !auth && retry.IsRetryable(err),
		Auth:      auth,
	}
}

// fatal classifies err as never retryable.
func fatal(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &OpError{Kind: kind, Op: op, Err: err, Auth: git.IsAuthError(err)}
}

// IsKind reports whether err carries an *OpError of kind. Authentication
// failures match KindAuthentication whatever primitive raised them.
func IsKind(err error, kind Kind) bool {
	var opErr *OpError
	if !errors.As(err, &opErr) {
		return false
	}
	if kind == KindAuthentication {
		return opErr.Auth || opErr.Kind == KindAuthentication
	}
	return opErr.Kind == kind
}

func IsAuth(err error) bool {
	return IsKind(err, KindAuthentication)
}

// IsRecoverable reports failures the caller can degrade around, such as a
// branch listing that fell back to the default list.
func IsRecoverable(err error) bool {
	return IsKind(err, KindListBranches)
}

// Message renders err as a short status line for users.
func Message(err error) string {
	var opErr *OpError
	if errors.As(err, &opErr) {
		switch {
		case opErr.Auth:
			return "Authentication failed, check your GitHub token"
		case errors.Is(err, ErrUnresolvedConflicts):
			return "Resolve all conflicts before committing"
		case errors.Is(err, ErrConflictMarkers):
			return "Some staged files still contain conflict markers"
		}
		return fmt.Sprintf("%s failed, see details", opErr.Op)
	}
	if errors.Is(err, ErrBusy) || errors.Is(err, ErrInvalidState) {
		return err.Error()
	}
	return "Operation failed, see details"
}

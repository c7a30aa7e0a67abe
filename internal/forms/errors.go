package forms

import "errors"

var (
	// ErrNotFound indicates that no document or version exists for the
	// requested identifier. Callers surface it directly; it is not
	// retryable.
	ErrNotFound = errors.New("forms: document not found")
	// ErrConflict indicates that the optimistic version-close guard lost
	// a race to a concurrent structural update. The caller must re-fetch
	// the now-current version and decide whether to re-apply its edit;
	// the engine never retries on its own.
	ErrConflict = errors.New("forms: live version was closed by a concurrent update")
	// ErrCyclicLogic indicates that the document's conditional-logic
	// graph contains a cycle. The document is unusable until its owner
	// repairs it; rendering and submission are blocked entirely.
	ErrCyclicLogic = errors.New("forms: conditional logic contains a cycle")
	// ErrNotPublished indicates that a submission targeted a document
	// that is not accepting responses.
	ErrNotPublished = errors.New("forms: document is not published")
	// ErrSubmissionNotFound indicates that no submission exists for the
	// requested identifier.
	ErrSubmissionNotFound = errors.New("forms: submission not found")
)

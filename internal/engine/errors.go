package engine

// ValidationError reports an illegal transition. Suggestions carries the
// statuses the caller could use instead, when the rules can name any.
type ValidationError struct {
	Reason      string
	Suggestions []string
}

func (e *ValidationError) Error() string { return e.Reason }

// ConflictError means the caller acted on stale state and must re-fetch
// before retrying. The engine never retries on its own.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

// NotFoundError covers unknown case/history ids and batch ownership
// mismatches.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// InputError flags malformed caller input, such as an over-long remark or
// a status name outside the catalog.
type InputError struct {
	Message string
}

func (e *InputError) Error() string { return e.Message }

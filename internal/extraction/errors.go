package extraction

import "errors"

// ErrMalformedOutput means the LLM response was not the strict JSON the
// prompt demands. Retrying the same prompt is pointless, so callers treat
// this as a permanent failure of the run.
var ErrMalformedOutput = errors.New("malformed extraction output")

// ErrBudgetExceeded means the cooperative time budget ran out before a
// provider produced a usable response.
var ErrBudgetExceeded = errors.New("extraction budget exceeded")

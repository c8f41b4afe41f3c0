package runtime

import "encoding/json"

// OutcomeKind tags the result of a submit/resume call. The caller always
// receives one of these three; there is no exception path once a workflow
// has been accepted for local execution.
type OutcomeKind int

const (
	// Pending means the workflow remains Running after this drive attempt:
	// either it made progress and will be driven again, or a retryable
	// error stopped this attempt short of a terminal state.
	Pending OutcomeKind = iota
	// Completed means the workflow function returned normally.
	Completed
	// Failed means a non-retryable error terminated the workflow.
	Failed
)

// Outcome is the total result of submit/resume.
type Outcome struct {
	Kind      OutcomeKind
	Output    json.RawMessage // set when Kind == Completed
	ErrorKind string          // set when Kind == Failed
	Message   string          // set when Kind == Failed
}

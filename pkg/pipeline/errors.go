package pipeline

import "fmt"

// ValidationError reports malformed or empty input, or generation output
// that stayed unparseable after every recovery strategy.
type ValidationError struct {
	Stage   Stage
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed in %s: %s", e.Stage, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// ExtractionError reports that the generation backend itself failed after
// the bounded retries.
type ExtractionError struct {
	Stage   Stage
	Message string
	Err     error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("generation failed in %s: %s", e.Stage, e.Message)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// AgentError reports that a stage's domain logic failed for a reason not
// captured by the other classes, such as missing required upstream data.
// Message is specific enough to show a human what to do next.
type AgentError struct {
	Stage   Stage
	Message string
	Err     error
}

func (e *AgentError) Error() string {
	return fmt.Sprintf("%s failed: %s", e.Stage, e.Message)
}

func (e *AgentError) Unwrap() error {
	return e.Err
}

package types

import "fmt"

// ConfigurationError reports a missing or invalid configuration value
type ConfigurationError struct {
	Field  string
	Value  string
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	msg := "configuration: " + e.Field
	if e.Value != "" {
		msg += fmt.Sprintf(" = %q", e.Value)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// ExtractionError reports a filesystem or shape problem while extracting samples.
// Path names the offending file or directory.
type ExtractionError struct {
	Path   string
	Reason string
	Err    error
}

func (e *ExtractionError) Error() string {
	msg := "extraction"
	if e.Path != "" {
		msg += " " + e.Path
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// TrainingError wraps a failure while fitting, evaluating or persisting a model
type TrainingError struct {
	Op  string
	Err error
}

func (e *TrainingError) Error() string {
	if e.Err == nil {
		return "training: " + e.Op
	}
	return "training: " + e.Op + ": " + e.Err.Error()
}

func (e *TrainingError) Unwrap() error {
	return e.Err
}

package errors

import (
	"fmt"
	"os"
	"strings"
)

// UserFriendlyError provides user-friendly error messages with context and hints.
// It is reserved for the top-level, propagating failure classes: opening the
// input file and loading the config file. Per-record parse failures inside
// the pipeline never use this type — they are logged and skipped instead.
type UserFriendlyError struct {
	Message string
	Reason  string
	Hint    string
	Try     string
	Err     error
}

func (e UserFriendlyError) Error() string {
	var buf strings.Builder
	buf.WriteString(e.Message)
	if e.Reason != "" {
		buf.WriteString("\n  Reason: " + e.Reason)
	}
	if e.Hint != "" {
		buf.WriteString("\n  Hint: " + e.Hint)
	}
	if e.Try != "" {
		buf.WriteString("\n  Try: " + e.Try)
	}
	if e.Err != nil {
		buf.WriteString("\n  Details: " + e.Err.Error())
	}
	return buf.String()
}

func (e UserFriendlyError) Unwrap() error {
	return e.Err
}

// WrapFileError wraps a failure to open or read the input .plf file.
func WrapFileError(err error, path string) error {
	if err == nil {
		return nil
	}

	reason := "Could not read the file"
	if os.IsNotExist(err) {
		reason = "File does not exist"
	} else if os.IsPermission(err) {
		reason = "Permission denied"
	}

	return UserFriendlyError{
		Message: fmt.Sprintf("Failed to open input container %s", path),
		Reason:  reason,
		Hint:    "Verify the path points at a TIA Portal .plf project container",
		Try:     fmt.Sprintf("plfscan extract --input %s", path),
		Err:     err,
	}
}

// WrapConfigError wraps configuration errors with user-friendly context.
func WrapConfigError(err error, configPath string) error {
	if err == nil {
		return nil
	}

	return UserFriendlyError{
		Message: fmt.Sprintf("Configuration error in %s", configPath),
		Reason:  err.Error(),
		Hint:    "Delete the file to have plfscan regenerate a default configuration",
		Try:     fmt.Sprintf("plfscan extract --config %s", configPath),
		Err:     err,
	}
}

package errors

import (
	"errors"
	"fmt"
)

// Wrap wraps an error with additional context, creating a TspackError if the input is not already one
func Wrap(err error, errType ErrorType, code, message string) *TspackError {
	if err == nil {
		return nil
	}

	var te *TspackError
	if errors.As(err, &te) {
		return &TspackError{
			Type:        errType,
			Code:        code,
			Message:     message,
			Cause:       te,
			Context:     te.Context,
			Tool:        te.Tool,
			FilePath:    te.FilePath,
			Line:        te.Line,
			Column:      te.Column,
			Recoverable: te.Recoverable,
		}
	}

	return &TspackError{
		Type:        errType,
		Code:        code,
		Message:     message,
		Cause:       err,
		Recoverable: errType == ErrorTypeValidation || errType == ErrorTypeBuild,
	}
}

// WrapIO wraps an error as an I/O error
func WrapIO(err error, code, message string) *TspackError {
	return Wrap(err, ErrorTypeIO, code, message)
}

// FileOperationError creates file operation errors
func FileOperationError(operation, filePath, message string, cause error) *TspackError {
	return WrapIO(cause, fmt.Sprintf("ERR_FILE_%s", operation),
		fmt.Sprintf("%s failed for %s: %s", operation, filePath, message)).
		WithContext("file_path", filePath)
}

// FormatError formats an error for terminal display
func FormatError(err error) string {
	if err == nil {
		return ""
	}

	var be *BuildError
	if errors.As(err, &be) {
		if frame := be.Frame(); frame != "" {
			return be.Error() + "\n" + frame
		}
		return be.Error()
	}

	return err.Error()
}

// CombineErrors combines multiple errors into a single error. Nil entries
// are dropped; a single error is returned as is.
func CombineErrors(errs ...error) error {
	var nonNil []error
	for _, err := range errs {
		if err != nil {
			nonNil = append(nonNil, err)
		}
	}

	switch len(nonNil) {
	case 0:
		return nil
	case 1:
		return nonNil[0]
	default:
		return errors.Join(nonNil...)
	}
}

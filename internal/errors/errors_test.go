package errors

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorSeverityString(t *testing.T) {
	testCases := []struct {
		severity ErrorSeverity
		expected string
	}{
		{ErrorSeverityInfo, "info"},
		{ErrorSeverityWarning, "warning"},
		{ErrorSeverityError, "error"},
		{ErrorSeverityFatal, "fatal"},
		{ErrorSeverity(999), "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.expected, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.severity.String())
		})
	}
}

func TestBuildErrorError(t *testing.T) {
	err := &BuildError{
		Job:      "dist/index.js#esm",
		Plugin:   "@tspack/plugin-replace",
		Message:  "Expected \";\" but found \"}\"",
		Location: &Location{File: "src/index.ts", Line: 10, Column: 5, LineText: "const a = }"},
		Severity: ErrorSeverityError,
	}

	msg := err.Error()
	assert.Contains(t, msg, "src/index.ts:10:5")
	assert.Contains(t, msg, "plugin @tspack/plugin-replace")
	assert.Contains(t, msg, "error")

	frame := err.Frame()
	assert.Contains(t, frame, "10 | const a = }")
	assert.Contains(t, FormatError(err), frame)
}

func TestBuildErrorWithoutLocation(t *testing.T) {
	err := &BuildError{Message: "boom", Severity: ErrorSeverityError}
	assert.Equal(t, "error: boom", err.Error())
	assert.Empty(t, err.Frame())
}

func TestErrorCollectorAttributesPerJob(t *testing.T) {
	collector := NewErrorCollector()
	assert.False(t, collector.HasErrors())
	assert.NoError(t, collector.Err())

	collector.Add(&BuildError{Job: "b", Message: "second", Severity: ErrorSeverityError})
	collector.Add(&BuildError{Job: "a", Message: "first", Severity: ErrorSeverityError})
	collector.Add(&BuildError{Job: "c", Message: "just a warning", Severity: ErrorSeverityWarning})

	assert.True(t, collector.HasErrors())
	assert.Equal(t, []string{"a", "b"}, collector.FailedJobs())
	require.Len(t, collector.ForJob("a"), 1)
	assert.Equal(t, "first", collector.ForJob("a")[0].Message)
	assert.Len(t, collector.ForJob("c"), 1)
}

func TestErrorCollectorErrIncludesGeneralErrors(t *testing.T) {
	collector := NewErrorCollector()
	collector.Add(&BuildError{Job: "a", Message: "only a warning", Severity: ErrorSeverityWarning})
	assert.False(t, collector.HasErrors())

	collector.AddError(ErrToolMissing)
	assert.True(t, collector.HasErrors())
	assert.Empty(t, collector.FailedJobs())
	assert.ErrorIs(t, collector.Err(), ErrToolMissing)
}

func TestErrorCollectorConcurrentAdds(t *testing.T) {
	collector := NewErrorCollector()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			collector.Add(&BuildError{Job: fmt.Sprintf("job-%d", i%5), Message: "x", Severity: ErrorSeverityError})
		}(i)
	}
	wg.Wait()

	assert.Len(t, collector.FailedJobs(), 5)
	for i := 0; i < 5; i++ {
		assert.Len(t, collector.ForJob(fmt.Sprintf("job-%d", i)), 10)
	}
}

func TestTspackErrorIsAndUnwrap(t *testing.T) {
	err := NewConfigError(ErrCodeNoEntryPoints, "nothing to build", ErrNoEntryPoints)

	assert.True(t, errors.Is(err, ErrNoEntryPoints))
	assert.True(t, errors.Is(err, NewConfigError(ErrCodeNoEntryPoints, "other", nil)))
	assert.False(t, errors.Is(err, NewConfigError(ErrCodeManifestParse, "", nil)))
	assert.True(t, IsConfigError(err))
	assert.True(t, IsConfigError(fmt.Errorf("wrapped: %w", ErrManifestNotFound)))
	assert.Contains(t, err.Error(), "[ERR_NO_ENTRY_POINTS]")
}

func TestToolErrorRecoverableOnlyWhenMissing(t *testing.T) {
	missing := NewToolError("tsc", ErrCodeToolMissing, "tsc not found", ErrToolMissing)
	failed := NewToolError("tsc", ErrCodeToolFailed, "tsc exited 2", errors.New("exit status 2"))

	assert.True(t, IsRecoverable(missing))
	assert.False(t, IsRecoverable(failed))
	assert.Contains(t, failed.Error(), "tool:tsc")
}

func TestWrapPreservesLocation(t *testing.T) {
	inner := NewBuildError(ErrCodeBuildFailed, "bad", nil).WithLocation("src/a.ts", 3, 1)
	outer := Wrap(inner, ErrorTypeBuild, "ERR_OUTER", "outer")

	require.NotNil(t, outer)
	assert.Equal(t, "src/a.ts", outer.FilePath)
	assert.Equal(t, 3, outer.Line)
	assert.Nil(t, Wrap(nil, ErrorTypeIO, "x", "y"))
}

func TestCombineErrors(t *testing.T) {
	assert.NoError(t, CombineErrors(nil, nil))

	single := errors.New("one")
	assert.Same(t, single, CombineErrors(nil, single))

	combined := CombineErrors(single, errors.New("two"))
	assert.ErrorIs(t, combined, single)
	assert.Contains(t, combined.Error(), "two")
}

type recordingLogger struct {
	errors, warnings []string
}

func (l *recordingLogger) Error(_ context.Context, _ error, msg string, _ ...interface{}) {
	l.errors = append(l.errors, msg)
}

func (l *recordingLogger) Warn(_ context.Context, _ error, msg string, _ ...interface{}) {
	l.warnings = append(l.warnings, msg)
}

func TestErrorHandlerRoutesByType(t *testing.T) {
	logger := &recordingLogger{}
	handler := NewErrorHandler(logger)
	ctx := context.Background()

	handler.Handle(ctx, nil)
	handler.Handle(ctx, NewToolError("tsc", ErrCodeToolMissing, "missing", ErrToolMissing))
	handler.Handle(ctx, NewBuildError(ErrCodeBuildFailed, "failed", nil))
	handler.Handle(ctx, errors.New("plain"))

	assert.Equal(t, []string{"Skipping step, tool unavailable"}, logger.warnings)
	assert.Equal(t, []string{"Build job failed", "Unhandled error occurred"}, logger.errors)
}

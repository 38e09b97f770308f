package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrAcquisition marks failures where every download strategy was exhausted.
	ErrAcquisition = errors.New("acquisition error")
	// ErrProcessing marks an isolation/transcription/alignment stage that failed
	// irrecoverably within a tier.
	ErrProcessing = errors.New("processing error")
	// ErrRemoteUnavailable marks a remote tier that is not configured or failed.
	ErrRemoteUnavailable = errors.New("remote tier unavailable")
	// ErrPersistence marks durable store read/write failures.
	ErrPersistence = errors.New("persistence error")
	// ErrValidation marks rejected inputs at collaborator boundaries.
	ErrValidation = errors.New("validation error")
	// ErrConfiguration marks missing or inconsistent collaborator settings.
	ErrConfiguration = errors.New("configuration error")
)

// Wrap builds an error message that includes stage context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrProcessing
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Recoverable reports whether a local-tier failure should trigger remote
// fallback rather than terminate the job.
func Recoverable(err error) bool {
	return errors.Is(err, ErrAcquisition) || errors.Is(err, ErrProcessing)
}

// Detail returns the human-readable portion of a wrapped service error,
// suitable for the job's terminal error message.
func Detail(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	for _, marker := range []error{ErrAcquisition, ErrProcessing, ErrRemoteUnavailable, ErrPersistence, ErrValidation, ErrConfiguration} {
		prefix := marker.Error() + ": "
		if strings.HasPrefix(msg, prefix) {
			return strings.TrimSpace(strings.TrimPrefix(msg, prefix))
		}
	}
	return strings.TrimSpace(msg)
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}

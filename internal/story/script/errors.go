package script

import (
	"fmt"
	"strconv"

	apperrors "github.com/louisbranch/talespin/internal/platform/errors"
)

func malformed(index int, format string, args ...any) error {
	reason := fmt.Sprintf(format, args...)
	if index < 0 {
		return apperrors.WithMetadata(apperrors.CodeMalformedEvent, "malformed script: "+reason,
			map[string]string{"Index": "-", "Reason": reason})
	}
	return apperrors.WithMetadata(apperrors.CodeMalformedEvent,
		fmt.Sprintf("event %d malformed: %s", index, reason),
		map[string]string{"Index": strconv.Itoa(index), "Reason": reason})
}

func invalidTarget(index int, target string) error {
	return apperrors.WithMetadata(apperrors.CodeInvalidTarget,
		fmt.Sprintf("event %d: invalid target %s", index, target),
		map[string]string{"Index": strconv.Itoa(index), "Target": target})
}

// atEvent tags a policy error with the event index it was raised for.
func atEvent(index int, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("event %d: %w", index, err)
}

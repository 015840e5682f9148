package engine

import (
	"fmt"
	"strconv"

	apperrors "github.com/louisbranch/talespin/internal/platform/errors"
)

var (
	// ErrOutOfBounds is returned when reading past the last event.
	ErrOutOfBounds = apperrors.New(apperrors.CodeOutOfBounds, "no event at position")
	// ErrAwaitingChoice is returned by Step on a choice.
	ErrAwaitingChoice = apperrors.New(apperrors.CodeAwaitingChoice, "awaiting choice")
	// ErrNotAwaitingChoice is returned by Choose off a choice.
	ErrNotAwaitingChoice = apperrors.New(apperrors.CodeNotAwaitingChoice, "not awaiting choice")
	// ErrAlreadyFinished is returned when stepping a finished story.
	ErrAlreadyFinished = apperrors.New(apperrors.CodeAlreadyFinished, "story already finished")
)

func invalidChoice(choice, options int) error {
	return apperrors.WithMetadata(apperrors.CodeInvalidChoiceIndex,
		fmt.Sprintf("choice %d outside [0, %d)", choice, options),
		map[string]string{"Choice": strconv.Itoa(choice), "Max": strconv.Itoa(options - 1)})
}

func undefinedVariable(key string) error {
	return apperrors.WithMetadata(apperrors.CodeUndefinedVariable,
		fmt.Sprintf("variable %q is undefined", key), map[string]string{"Key": key})
}

func unknownCharacter(name string) error {
	return apperrors.WithMetadata(apperrors.CodeUnknownCharacter,
		fmt.Sprintf("character %q is not on stage", name), map[string]string{"Name": name})
}

func unknownLabel(label string) error {
	return apperrors.WithMetadata(apperrors.CodeUnknownLabel,
		fmt.Sprintf("label %q does not exist", label), map[string]string{"Label": label})
}

func corrupt(format string, args ...any) error {
	return apperrors.New(apperrors.CodeCorrupt, "invalid state: "+fmt.Sprintf(format, args...))
}

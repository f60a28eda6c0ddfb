package tools

import (
	"fmt"

	"github.com/focusdeck/focusdeck/pkg/types"
)

// successOutcome builds a successful ToolOutcome with a data payload.
func successOutcome(data any, format string, args ...any) *types.ToolOutcome {
	return &types.ToolOutcome{
		Success: true,
		Data:    data,
		Message: fmt.Sprintf(format, args...),
	}
}

// failureOutcome reports a domain failure inside the outcome. The reasoning
// loop treats these as observations, never as aborts.
func failureOutcome(format string, args ...any) *types.ToolOutcome {
	msg := fmt.Sprintf(format, args...)
	return &types.ToolOutcome{
		Success: false,
		Message: msg,
		Error:   msg,
	}
}

// repositoryFailure wraps a storage error as a failed outcome.
func repositoryFailure(op string, err error) *types.ToolOutcome {
	wrapped := types.NewRepositoryError(op, err)
	return &types.ToolOutcome{
		Success: false,
		Message: op,
		Error:   wrapped.Error(),
	}
}

package service

import (
	"fmt"
)

// ErrValidation is a user fixable problem with the request.
type ErrValidation struct {
	error
}

func NewErrValidation(format string, args ...any) *ErrValidation {
	return &ErrValidation{fmt.Errorf(format, args...)}
}

type ErrUnknownTool struct {
	error
}

func NewErrUnknownTool(tool string) *ErrUnknownTool {
	return &ErrUnknownTool{fmt.Errorf("unknown tool %q", tool)}
}

// ErrWorkspace reports that the job directories could not be prepared.
type ErrWorkspace struct {
	error
}

func NewErrWorkspace(err error) *ErrWorkspace {
	return &ErrWorkspace{fmt.Errorf("failed to prepare job workspace: %w", err)}
}

func (e *ErrWorkspace) Unwrap() error { return e.error }

// ErrSpawn reports that the tool process could not be started.
type ErrSpawn struct {
	error
}

func NewErrSpawn(tool string, err error) *ErrSpawn {
	return &ErrSpawn{fmt.Errorf("failed to start tool %s: %w", tool, err)}
}

func (e *ErrSpawn) Unwrap() error { return e.error }

// ErrTimeout reports that no output appeared before the job deadline.
type ErrTimeout struct {
	error
}

func NewErrTimeout(tool, jobID string) *ErrTimeout {
	return &ErrTimeout{fmt.Errorf("tool %s produced no output for job %s before the deadline", tool, jobID)}
}

type ErrArtifactNotFound struct {
	error
}

func NewErrArtifactNotFound(tool, jobID, name string) *ErrArtifactNotFound {
	return &ErrArtifactNotFound{fmt.Errorf("artifact %s/%s/%s not found", tool, jobID, name)}
}

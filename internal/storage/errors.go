package storage

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("storage: not found")

// ErrConflict is returned when creating an entity whose id is already taken.
var ErrConflict = errors.New("storage: conflict")

// ErrInvalidState is matched by *InvalidStateError.
var ErrInvalidState = errors.New("storage: invalid state")

// ErrPatch is matched by *PatchError.
var ErrPatch = errors.New("storage: patch failed")

// ErrInvalidWorkflow is matched by *WorkflowShapeError.
var ErrInvalidWorkflow = errors.New("storage: invalid workflow")

// ErrIntegrity is returned when a stored document no longer matches its recorded hash.
var ErrIntegrity = errors.New("storage: integrity check failed")

// InvalidStateError reports an operation attempted on an entity whose status
// does not allow it.
type InvalidStateError struct {
	Entity   string
	ID       string
	Status   string
	Expected string
}

func (e *InvalidStateError) Error() string {
	if e.Expected == "" {
		return fmt.Sprintf("storage: %s %s is %s", e.Entity, e.ID, e.Status)
	}
	return fmt.Sprintf("storage: %s %s is %s, expected %s", e.Entity, e.ID, e.Status, e.Expected)
}

// Is lets errors.Is match ErrInvalidState.
func (e *InvalidStateError) Is(target error) bool { return target == ErrInvalidState }

// PatchError wraps a JSON Patch decode or apply failure against a base version.
type PatchError struct {
	WorkflowID  string
	FromVersion string
	Err         error
}

func (e *PatchError) Error() string {
	return fmt.Sprintf("storage: patch %s@%s: %v", e.WorkflowID, e.FromVersion, e.Err)
}

// Is lets errors.Is match ErrPatch.
func (e *PatchError) Is(target error) bool { return target == ErrPatch }

func (e *PatchError) Unwrap() error { return e.Err }

// WorkflowShapeError lists the structural problems found in a workflow version.
type WorkflowShapeError struct {
	WorkflowID string
	Problems   []string
}

func (e *WorkflowShapeError) Error() string {
	return fmt.Sprintf("storage: workflow %s is invalid: %s", e.WorkflowID, strings.Join(e.Problems, "; "))
}

// Is lets errors.Is match ErrInvalidWorkflow.
func (e *WorkflowShapeError) Is(target error) bool { return target == ErrInvalidWorkflow }

package domain

import "errors"

var (
	ErrTaskNotFound      = errors.New("task_not_found")
	ErrUnknownKind       = errors.New("unknown_task_kind")
	ErrInvalidTask       = errors.New("invalid_task")
	ErrTaskNotReplayable = errors.New("task_not_replayable")
)

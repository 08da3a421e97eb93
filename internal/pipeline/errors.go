package pipeline

import "errors"

var (
	ErrUnknownStep        = errors.New("unknown pipeline step")
	ErrPrerequisiteNotMet = errors.New("step prerequisites not completed")
	ErrRunConflict        = errors.New("case already has an active run")
	ErrRunNotFound        = errors.New("pipeline run not found")
)

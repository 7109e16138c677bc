package scraper

import "errors"

var (
	// ErrClosed is returned by Execute once Close has been called.
	ErrClosed = errors.New("scraper closed")
	// ErrTaskFailed reports that the driver could not run the task or the task never produced a result.
	ErrTaskFailed = errors.New("task failed")
	// ErrTaskAborted reports that the caller's deadline expired before the task completed.
	ErrTaskAborted = errors.New("task aborted")
	// ErrTaskPanicked reports that the task function panicked.
	ErrTaskPanicked = errors.New("task panicked")
)

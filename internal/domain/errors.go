package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidEvent      = errors.New("invalid event")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrInboxFull         = errors.New("orchestrator inbox full")
	ErrShuttingDown      = errors.New("shutting down")
	ErrNoWorker          = errors.New("no worker registered for bookmaker")
	ErrWorkerBusy        = errors.New("worker queue full")
	ErrQueueFull         = errors.New("signal queue full")
	ErrLockHeld          = errors.New("lock already held")
	ErrBetRejected       = errors.New("bet rejected by bookmaker")
)

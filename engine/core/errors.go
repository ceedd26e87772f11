package core

import (
	"errors"
)

var (
	ErrInvalidInstanceIndex  = errors.New("instance index out of range")
	ErrCustomDataMismatch    = errors.New("custom data float count does not match component")
	ErrResourceStripped      = errors.New("resource has no streaming pages (stripped)")
	ErrResourceNotRegistered = errors.New("resource is not registered with the streaming manager")
	ErrPageOutOfRange        = errors.New("page index out of range")
	ErrBadMagic              = errors.New("bad resource magic number")
	ErrUnsupportedVersion    = errors.New("unsupported resource version")
	ErrCorruptResource       = errors.New("corrupt resource data")
	ErrQueueFull             = errors.New("queue is full")
	ErrQueueEmpty            = errors.New("queue is empty")
	ErrRenderThreadStopped   = errors.New("render thread is not running")
	ErrJobSystemStopped      = errors.New("job system is shut down")
	ErrNoWorkers             = errors.New("attempting to create worker pool with less than 1 worker")
	ErrNegativeQueueSize     = errors.New("attempting to create worker pool with a negative queue size")
	ErrUnknown               = errors.New("unknown")
)

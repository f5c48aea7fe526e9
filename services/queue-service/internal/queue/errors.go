package queue

import "errors"

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrNotFound           = errors.New("not found")
	ErrQueueClosed        = errors.New("queue is closed")
	ErrQueueEmpty         = errors.New("no waiting turns")
	ErrTransferIneligible = errors.New("turn cannot transfer to that queue")
)

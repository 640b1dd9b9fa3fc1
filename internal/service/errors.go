package service

import "errors"

var (
	ErrValidation       = errors.New("booking is missing required fields")
	ErrSlotUnverified   = errors.New("could not verify slot availability")
	ErrForbidden        = errors.New("booking belongs to another user")
	ErrNoSession        = errors.New("no open edit session")
	ErrSubmitInProgress = errors.New("submit already in progress")
	ErrUnknownService   = errors.New("unknown service id")
	ErrRateLimited      = errors.New("too many edit attempts, slow down")
)

package services

import "errors"

var (
	ErrSessionNotFound   = errors.New("interview session not found")
	ErrInvalidTurn       = errors.New("turn is not the current unanswered turn of an in-progress session")
	ErrInvalidTransition = errors.New("interview status does not allow this operation")
	ErrForbidden         = errors.New("identity may not access this interview")
	ErrJobNotFound       = errors.New("job not found")
	ErrEmptyAnswer       = errors.New("answer must contain text or audio")
)

package repositories

import "errors"

var (
	ErrInterviewNotFound     = errors.New("interview not found")
	ErrQuestionNotFound      = errors.New("interview question not found")
	ErrQuestionAnswered      = errors.New("interview question already answered")
	ErrJobNotFound           = errors.New("job not found")
	ErrDocumentNotFound      = errors.New("document not found")
	ErrInterviewStateChanged = errors.New("interview status changed concurrently")
)

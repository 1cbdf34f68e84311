package domain

import "errors"

var (
	// ErrInvalidURL is returned when the scan target is not an absolute http(s) URL
	ErrInvalidURL = errors.New("invalid url")

	// ErrConsentRequired is returned when any of the submission attestations is missing
	ErrConsentRequired = errors.New("consent, terms acceptance and simulation acknowledgement are required")

	// ErrJobNotFound is returned when a job id is not present in the queue
	ErrJobNotFound = errors.New("job not found")

	// ErrResultNotFound is returned when a result id is unknown or was deleted
	ErrResultNotFound = errors.New("result not found")

	// ErrSynthesisFailure wraps errors raised while generating a scan result
	ErrSynthesisFailure = errors.New("synthesis failure")

	// ErrPersistence wraps errors raised by the persistent store
	ErrPersistence = errors.New("persistence failure")

	// ErrInvalidTransition is returned when a status change would regress a job
	ErrInvalidTransition = errors.New("invalid job status transition")
)

package domain

import "errors"

var (
	ErrEventAlreadyProcessed = errors.New("event_already_processed")
	ErrEventInProgress       = errors.New("event_in_progress")
	ErrUnsupportedTopic      = errors.New("unsupported_topic")
	ErrInvalidProduct        = errors.New("invalid_product")
	ErrInvalidProgress       = errors.New("invalid_progress")
	ErrProgressLocked        = errors.New("progress_locked")
	ErrProductNotFound       = errors.New("product_not_found")
)

package utils

import "errors"

// Common application errors used across services.
var (
	ErrSyncBusy         = errors.New("SYNC_ALREADY_RUNNING")
	ErrNotFound         = errors.New("NOT_FOUND")
	ErrEmptyArticle     = errors.New("EMPTY_ARTICLE")
	ErrNoWarehouse      = errors.New("NO_WAREHOUSE_CONFIGURED")
	ErrInvalidSettings  = errors.New("INVALID_SETTINGS")
	ErrRunCanceled      = errors.New("SYNC_RUN_CANCELED")
	ErrTooManyRowErrors = errors.New("TOO_MANY_ROW_ERRORS")
)

package domain

import "fmt"

// ValidationError reports missing or malformed input on a single field
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// DuplicateCodeError is returned when another live item already owns the code
type DuplicateCodeError struct {
	Code string
}

func (e *DuplicateCodeError) Error() string {
	return fmt.Sprintf("code %s already exists", e.Code)
}

// DuplicateIDError is returned when an insert reuses an existing item id
type DuplicateIDError struct {
	ID string
}

func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("item id %s already exists", e.ID)
}

// NotFoundError is a lookup miss
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string {
	return e.Message
}

// StoreUnavailableError wraps a storage failure (connectivity, permissions).
// The cause is for logs only.
type StoreUnavailableError struct {
	Op  string
	Err error
}

func (e *StoreUnavailableError) Error() string {
	return fmt.Sprintf("store unavailable during %s: %v", e.Op, e.Err)
}

func (e *StoreUnavailableError) Unwrap() error {
	return e.Err
}

// UploadError is returned when the image host rejects an upload
type UploadError struct {
	Message string
	Err     error
}

func (e *UploadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("image upload failed: %s: %v", e.Message, e.Err)
	}
	return "image upload failed: " + e.Message
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

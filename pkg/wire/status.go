package wire

// Status represents a response status code.
type Status uint8

const (
	// StatusSuccess indicates the operation completed successfully.
	StatusSuccess Status = 0

	// StatusFailed indicates a generic device-side failure.
	StatusFailed Status = 1

	// StatusInvalidParameter indicates a missing or malformed argument.
	StatusInvalidParameter Status = 2

	// StatusNotFound indicates the command or path does not exist.
	StatusNotFound Status = 3

	// StatusNotAuthorized indicates the key is not allowed.
	StatusNotAuthorized Status = 4

	// StatusBusy indicates the device is busy; try again later.
	StatusBusy Status = 5

	// StatusUnsupported indicates the operation is not supported.
	StatusUnsupported Status = 6

	// StatusSizeMismatch indicates a push ended with fewer or more bytes
	// than declared.
	StatusSizeMismatch Status = 7
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "SUCCESS"
	case StatusFailed:
		return "FAILED"
	case StatusInvalidParameter:
		return "INVALID_PARAMETER"
	case StatusNotFound:
		return "NOT_FOUND"
	case StatusNotAuthorized:
		return "NOT_AUTHORIZED"
	case StatusBusy:
		return "BUSY"
	case StatusUnsupported:
		return "UNSUPPORTED"
	case StatusSizeMismatch:
		return "SIZE_MISMATCH"
	default:
		return "UNKNOWN"
	}
}

// IsSuccess returns true if the status indicates success.
func (s Status) IsSuccess() bool {
	return s == StatusSuccess
}

// IsError returns true if the status indicates an error.
func (s Status) IsError() bool {
	return s != StatusSuccess
}

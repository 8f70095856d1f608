package datamodel

import "fmt"

// Status is the interaction status returned from attribute callbacks.
type Status uint8

const (
	StatusSuccess              Status = 0x00
	StatusFailure              Status = 0x01
	StatusUnsupportedEndpoint  Status = 0x7F
	StatusUnsupportedAttribute Status = 0x86
	StatusConstraintError      Status = 0x87
	StatusUnsupportedWrite     Status = 0x88
	StatusUnsupportedCluster   Status = 0xC3
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "SUCCESS"
	case StatusFailure:
		return "FAILURE"
	case StatusUnsupportedEndpoint:
		return "UNSUPPORTED_ENDPOINT"
	case StatusUnsupportedAttribute:
		return "UNSUPPORTED_ATTRIBUTE"
	case StatusConstraintError:
		return "CONSTRAINT_ERROR"
	case StatusUnsupportedWrite:
		return "UNSUPPORTED_WRITE"
	case StatusUnsupportedCluster:
		return "UNSUPPORTED_CLUSTER"
	default:
		return fmt.Sprintf("STATUS(0x%02X)", uint8(s))
	}
}

// OK reports whether the status is StatusSuccess.
func (s Status) OK() bool {
	return s == StatusSuccess
}

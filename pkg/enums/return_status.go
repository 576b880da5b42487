package enums

import "fmt"

// ReturnRequestStatus tracks the resolution of a buyer return request.
type ReturnRequestStatus string

const (
	ReturnRequestStatusPending  ReturnRequestStatus = "pending"
	ReturnRequestStatusApproved ReturnRequestStatus = "approved"
	ReturnRequestStatusRejected ReturnRequestStatus = "rejected"
)

var validReturnRequestStatuses = []ReturnRequestStatus{
	ReturnRequestStatusPending,
	ReturnRequestStatusApproved,
	ReturnRequestStatusRejected,
}

func (s ReturnRequestStatus) String() string {
	return string(s)
}

func (s ReturnRequestStatus) IsValid() bool {
	for _, candidate := range validReturnRequestStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

func ParseReturnRequestStatus(value string) (ReturnRequestStatus, error) {
	for _, candidate := range validReturnRequestStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid return request status %q", value)
}

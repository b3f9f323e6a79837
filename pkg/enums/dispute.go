package enums

import "fmt"

// DisputeStatus maps to the dispute_status enum in Postgres.
type DisputeStatus string

const (
	DisputeStatusOpen                  DisputeStatus = "OPEN"
	DisputeStatusInReview              DisputeStatus = "IN_REVIEW"
	DisputeStatusResolvedCustomerFavor DisputeStatus = "RESOLVED_CUSTOMER_FAVOR"
	DisputeStatusResolvedVendorFavor   DisputeStatus = "RESOLVED_VENDOR_FAVOR"
	DisputeStatusClosed                DisputeStatus = "CLOSED"
)

var validDisputeStatuses = []DisputeStatus{
	DisputeStatusOpen,
	DisputeStatusInReview,
	DisputeStatusResolvedCustomerFavor,
	DisputeStatusResolvedVendorFavor,
	DisputeStatusClosed,
}

func (s DisputeStatus) String() string {
	return string(s)
}

// IsValid reports whether the value matches the canonical dispute_status enum.
func (s DisputeStatus) IsValid() bool {
	for _, candidate := range validDisputeStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the dispute accepts no further comments or resolutions.
func (s DisputeStatus) IsTerminal() bool {
	switch s {
	case DisputeStatusResolvedCustomerFavor, DisputeStatusResolvedVendorFavor, DisputeStatusClosed:
		return true
	default:
		return false
	}
}

// ParseDisputeStatus converts raw input into DisputeStatus.
func ParseDisputeStatus(value string) (DisputeStatus, error) {
	for _, candidate := range validDisputeStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid dispute status %q", value)
}

// DisputeResolution is the admin decision closing a dispute.
type DisputeResolution string

const (
	DisputeResolutionCustomerFavor  DisputeResolution = "CUSTOMER_FAVOR"
	DisputeResolutionVendorFavor    DisputeResolution = "VENDOR_FAVOR"
	DisputeResolutionClosedNoAction DisputeResolution = "CLOSED_NO_ACTION"
)

var validDisputeResolutions = []DisputeResolution{
	DisputeResolutionCustomerFavor,
	DisputeResolutionVendorFavor,
	DisputeResolutionClosedNoAction,
}

// IsValid reports whether the value is a known resolution.
func (r DisputeResolution) IsValid() bool {
	for _, candidate := range validDisputeResolutions {
		if candidate == r {
			return true
		}
	}
	return false
}

// TargetStatus maps the resolution onto the terminal dispute status it produces.
func (r DisputeResolution) TargetStatus() DisputeStatus {
	switch r {
	case DisputeResolutionCustomerFavor:
		return DisputeStatusResolvedCustomerFavor
	case DisputeResolutionVendorFavor:
		return DisputeStatusResolvedVendorFavor
	default:
		return DisputeStatusClosed
	}
}

// ParseDisputeResolution converts raw input into DisputeResolution.
func ParseDisputeResolution(value string) (DisputeResolution, error) {
	for _, candidate := range validDisputeResolutions {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid dispute resolution %q", value)
}

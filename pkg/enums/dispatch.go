package enums

import "fmt"

// DispatchKind identifies the notification a dispatch item produces.
type DispatchKind string

const (
	DispatchKindRegistrationConfirm DispatchKind = "registration_confirm"
	DispatchKindBibNumber           DispatchKind = "bib_number"
	DispatchKindPaymentReminder     DispatchKind = "payment_reminder"
	DispatchKindRaceDayInfo         DispatchKind = "race_day_info"
)

var validDispatchKinds = []DispatchKind{
	DispatchKindRegistrationConfirm,
	DispatchKindBibNumber,
	DispatchKindPaymentReminder,
	DispatchKindRaceDayInfo,
}

// IsValid checks whether the given kind matches the canonical enum.
func (k DispatchKind) IsValid() bool {
	for _, candidate := range validDispatchKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// ParseDispatchKind converts raw strings into DispatchKind.
func ParseDispatchKind(value string) (DispatchKind, error) {
	for _, candidate := range validDispatchKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid dispatch kind %q", value)
}

// DispatchStatus is the state machine position of a dispatch item.
type DispatchStatus string

const (
	DispatchStatusPending    DispatchStatus = "pending"
	DispatchStatusProcessing DispatchStatus = "processing"
	DispatchStatusSent       DispatchStatus = "sent"
	DispatchStatusFailed     DispatchStatus = "failed"
	DispatchStatusCancelled  DispatchStatus = "cancelled"
)

var validDispatchStatuses = []DispatchStatus{
	DispatchStatusPending,
	DispatchStatusProcessing,
	DispatchStatusSent,
	DispatchStatusFailed,
	DispatchStatusCancelled,
}

// IsValid checks whether the given status matches the canonical enum.
func (s DispatchStatus) IsValid() bool {
	for _, candidate := range validDispatchStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions may occur.
func (s DispatchStatus) IsTerminal() bool {
	return s == DispatchStatusSent || s == DispatchStatusFailed || s == DispatchStatusCancelled
}

// ParseDispatchStatus converts raw strings into DispatchStatus.
func ParseDispatchStatus(value string) (DispatchStatus, error) {
	for _, candidate := range validDispatchStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid dispatch status %q", value)
}

// DispatchPriority orders eligible items within a sweep. Higher runs first.
type DispatchPriority int

const (
	DispatchPriorityLow    DispatchPriority = 0
	DispatchPriorityNormal DispatchPriority = 1
	DispatchPriorityHigh   DispatchPriority = 2
)

// Confirmation and BIB assignment go out first. A kind missing from the map
// sweeps at normal priority.
var dispatchKindPriorities = map[DispatchKind]DispatchPriority{
	DispatchKindRegistrationConfirm: DispatchPriorityHigh,
	DispatchKindBibNumber:           DispatchPriorityHigh,
	DispatchKindPaymentReminder:     DispatchPriorityNormal,
	DispatchKindRaceDayInfo:         DispatchPriorityNormal,
}

// PriorityForKind derives the sweep priority from the notification kind.
func PriorityForKind(kind DispatchKind) DispatchPriority {
	if priority, ok := dispatchKindPriorities[kind]; ok {
		return priority
	}
	return DispatchPriorityNormal
}

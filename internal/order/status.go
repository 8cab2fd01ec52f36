package order

import "strings"

// providerStatuses maps Shiprocket status strings, lowercased and trimmed,
// to order statuses. Webhooks and polling share this table.
var providerStatuses = map[string]Status{
	"picked up":  StatusShipped,
	"picked_up":  StatusShipped,
	"in transit": StatusShipped,
	"in_transit": StatusShipped,
	"shipped":    StatusShipped,
	"delivered":  StatusDelivered,
	"failed":     StatusFailed,
	"returned":   StatusFailed,
}

// MapProviderStatus returns the order status for a provider status string,
// or current when the string is not recognised.
func MapProviderStatus(provider string, current Status) Status {
	if s, ok := providerStatuses[strings.ToLower(strings.TrimSpace(provider))]; ok {
		return s
	}
	return current
}

// Final reports whether the order no longer moves through fulfillment.
func (s Status) Final() bool {
	switch s {
	case StatusCancelled, StatusFailed, StatusDelivered:
		return true
	}
	return false
}

// providerTransition reports whether a provider-reported status may replace
// from. Cancelled and failed orders never change; a delivered order may
// only be marked failed by a return.
func providerTransition(from, to Status) bool {
	switch from {
	case StatusCancelled, StatusFailed:
		return false
	case StatusDelivered:
		return to == StatusFailed
	}
	return true
}

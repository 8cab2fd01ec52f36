package order

import (
	"strings"
	"time"
)

// ShipmentUpdate carries provider-reported fulfillment fields. Empty fields
// are ignored.
type ShipmentUpdate struct {
	ShiprocketOrderID string `json:"order_id"`
	ShipmentID        string `json:"shipment_id"`
	AWBCode           string `json:"awb_code"`
	CourierName       string `json:"courier_name"`
	TrackingURL       string `json:"tracking_url"`
	Status            string `json:"status"`
}

// apply copies every non-empty field that differs from the order and
// returns one label per change. Identifiers are only ever overwritten with
// newer non-empty values. Status follows providerTransition.
func (o *Order) apply(u ShipmentUpdate) []string {
	var changes []string
	set := func(field *string, value, label string) {
		value = strings.TrimSpace(value)
		if value == "" || value == "null" || value == *field {
			return
		}
		*field = value
		changes = append(changes, label+": "+value)
	}

	set(&o.ShiprocketOrderID, u.ShiprocketOrderID, "Shiprocket Order ID")
	set(&o.ShiprocketShipmentID, u.ShipmentID, "Shipment ID")
	set(&o.TrackingNumber, u.AWBCode, "AWB Code")
	set(&o.CourierName, u.CourierName, "Courier")
	set(&o.TrackingURL, u.TrackingURL, "Tracking URL")

	if u.Status != "" {
		if next := MapProviderStatus(u.Status, o.OrderStatus); next != o.OrderStatus && providerTransition(o.OrderStatus, next) {
			o.OrderStatus = next
			changes = append(changes, "Status: "+string(next))
		}
	}
	return changes
}

// reconcile applies u and records a single consolidated note when anything
// changed.
func (o *Order) reconcile(u ShipmentUpdate, event string, now time.Time) []string {
	changes := o.apply(u)
	if len(changes) == 0 {
		return nil
	}
	o.addNote(now, event, noteDetail(event, changes))
	o.UpdatedAt = now
	return changes
}

func noteDetail(event string, changes []string) string {
	prefix := "Update"
	switch event {
	case EventWebhook:
		prefix = "Webhook update"
	case EventOrderDetails:
		prefix = "Order details update"
	case EventTracking:
		prefix = "Tracking update"
	}
	return prefix + ": " + strings.Join(changes, ", ")
}

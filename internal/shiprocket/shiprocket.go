// Package shiprocket wraps the Shiprocket external API used for shipment
// creation, tracking and cancellation.
package shiprocket

import (
	"bytes"
	"encoding/json"
	"sort"
	"strings"
)

// ID accepts identifiers Shiprocket sends as either JSON numbers or strings.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*id = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string {
	return string(id)
}

// assigned treats "" and the literal "null" as not yet assigned.
func assigned(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || s == "null" || s == "undefined" {
		return ""
	}
	return s
}

type OrderItem struct {
	Name         string  `json:"name"`
	SKU          string  `json:"sku"`
	Units        int     `json:"units"`
	SellingPrice float64 `json:"selling_price"`
	Discount     float64 `json:"discount"`
	Tax          float64 `json:"tax"`
}

// OrderRequest is the adhoc order payload. Zero package dimensions and
// weight are replaced with defaults by CreateOrder.
type OrderRequest struct {
	OrderID        string `json:"order_id"`
	OrderDate      string `json:"order_date"`
	PickupLocation string `json:"pickup_location"`

	BillingCustomerName string `json:"billing_customer_name"`
	BillingLastName     string `json:"billing_last_name"`
	BillingAddress      string `json:"billing_address"`
	BillingAddress2     string `json:"billing_address_2"`
	BillingCity         string `json:"billing_city"`
	BillingPincode      string `json:"billing_pincode"`
	BillingState        string `json:"billing_state"`
	BillingCountry      string `json:"billing_country"`
	BillingEmail        string `json:"billing_email"`
	BillingPhone        string `json:"billing_phone"`

	ShippingIsBilling    bool   `json:"shipping_is_billing"`
	ShippingCustomerName string `json:"shipping_customer_name,omitempty"`
	ShippingLastName     string `json:"shipping_last_name,omitempty"`
	ShippingAddress      string `json:"shipping_address,omitempty"`
	ShippingAddress2     string `json:"shipping_address_2,omitempty"`
	ShippingCity         string `json:"shipping_city,omitempty"`
	ShippingPincode      string `json:"shipping_pincode,omitempty"`
	ShippingState        string `json:"shipping_state,omitempty"`
	ShippingCountry      string `json:"shipping_country,omitempty"`
	ShippingEmail        string `json:"shipping_email,omitempty"`
	ShippingPhone        string `json:"shipping_phone,omitempty"`

	OrderItems    []OrderItem `json:"order_items"`
	PaymentMethod string      `json:"payment_method"`
	SubTotal      float64     `json:"sub_total"`
	Length        float64     `json:"length"`
	Breadth       float64     `json:"breadth"`
	Height        float64     `json:"height"`
	Weight        float64     `json:"weight"`
}

// CreateOrderResponse is returned as-is. Shiprocket reports some failures
// with a 200 and a message, so callers must inspect Message.
type CreateOrderResponse struct {
	OrderID     ID     `json:"order_id"`
	ShipmentID  ID     `json:"shipment_id"`
	Status      string `json:"status"`
	StatusCode  int    `json:"status_code"`
	AWBCode     ID     `json:"awb_code"`
	CourierName string `json:"courier_name"`
	TrackingURL string `json:"tracking_url"`
	Message     string `json:"message"`
}

type ShipmentTrack struct {
	AWBCode       ID     `json:"awb_code"`
	CourierName   string `json:"courier_name"`
	CurrentStatus string `json:"current_status"`
}

type TrackingData struct {
	TrackStatus   int             `json:"track_status"`
	ShipmentTrack []ShipmentTrack `json:"shipment_track"`
	TrackURL      string          `json:"track_url"`
	Error         string          `json:"error"`
}

type trackingEnvelope struct {
	TrackingData *TrackingData `json:"tracking_data"`
}

// TrackingResponse is keyed by shipment id.
type TrackingResponse map[string]trackingEnvelope

// TrackingInfo is the subset of a tracking response the order workflow uses.
// Empty fields are not yet assigned.
type TrackingInfo struct {
	AWBCode     string
	CourierName string
	TrackingURL string
	Status      string
}

func (t TrackingInfo) Empty() bool {
	return t == TrackingInfo{}
}

// Extract pulls the first shipment's tracking fields.
func (r TrackingResponse) Extract() TrackingInfo {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var info TrackingInfo
	for _, k := range keys {
		data := r[k].TrackingData
		if data == nil {
			continue
		}
		if len(data.ShipmentTrack) > 0 {
			track := data.ShipmentTrack[0]
			info.AWBCode = assigned(track.AWBCode.String())
			info.CourierName = assigned(track.CourierName)
			info.Status = assigned(track.CurrentStatus)
		}
		info.TrackingURL = assigned(data.TrackURL)
		break
	}
	return info
}

// OrderDetails is the data block of GET /orders/show/{id}.
type OrderDetails struct {
	ID          ID     `json:"id"`
	ShipmentID  ID     `json:"shipment_id"`
	AWBCode     ID     `json:"awb_code"`
	CourierName string `json:"courier_name"`
	TrackingURL string `json:"tracking_url"`
	Status      string `json:"status"`
}

// Normalized returns a copy with unassigned placeholders cleared.
func (d OrderDetails) Normalized() OrderDetails {
	d.ShipmentID = ID(assigned(d.ShipmentID.String()))
	d.AWBCode = ID(assigned(d.AWBCode.String()))
	d.CourierName = assigned(d.CourierName)
	d.TrackingURL = assigned(d.TrackingURL)
	d.Status = assigned(d.Status)
	return d
}

type OrderDetailsResponse struct {
	Data OrderDetails `json:"data"`
}

type CourierCompany struct {
	CourierCompanyID      ID      `json:"courier_company_id"`
	CourierName           string  `json:"courier_name"`
	Rate                  float64 `json:"rate"`
	EstimatedDeliveryDays ID      `json:"estimated_delivery_days"`
	ETD                   string  `json:"etd"`
	COD                   int     `json:"cod"`
}

type Serviceability struct {
	Status int `json:"status"`
	Data   struct {
		AvailableCourierCompanies []CourierCompany `json:"available_courier_companies"`
	} `json:"data"`
}

type CancelResponse struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
}

package order

import (
	"time"

	"github.com/go-faster/jx"
)

// EventType names an order lifecycle event published to the order stream.
type EventType string

const (
	EventCreated EventType = "order.created"
	EventPaid    EventType = "order.paid"
	EventFailed  EventType = "order.failed"
)

// EventForStatus returns the event emitted when an order enters status s.
func EventForStatus(s Status) EventType {
	switch s {
	case StatusPaid:
		return EventPaid
	case StatusFailed:
		return EventFailed
	default:
		return EventCreated
	}
}

// EncodeEvent renders the event payload for o.
func EncodeEvent(t EventType, o *Order, at time.Time) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("type")
	e.Str(string(t))
	e.FieldStart("orderId")
	e.Str(o.ID)
	e.FieldStart("status")
	e.Str(string(o.Status))
	e.FieldStart("paymentMethod")
	e.Str(string(o.PaymentMethod))
	e.FieldStart("total")
	e.Str(o.Total.StringFixed(2))
	e.FieldStart("items")
	e.ArrStart()
	for _, it := range o.Items {
		e.ObjStart()
		e.FieldStart("id")
		e.Str(it.ProductID)
		e.FieldStart("quantity")
		e.Int(it.Quantity)
		e.ObjEnd()
	}
	e.ArrEnd()
	if o.CouponCode != "" {
		e.FieldStart("couponCode")
		e.Str(o.CouponCode)
	}
	e.FieldStart("at")
	e.Str(at.UTC().Format(time.RFC3339Nano))
	e.ObjEnd()
	return e.Bytes()
}

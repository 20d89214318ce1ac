package orderapi

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/payment"
)

func encodePlaceOrder(req PlaceOrderRequest) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("cartItems")
	e.ArrStart()
	for _, it := range req.CartItems {
		e.ObjStart()
		e.FieldStart("id")
		e.Str(it.ID)
		e.FieldStart("name")
		e.Str(it.Name)
		e.FieldStart("price")
		e.Num(jx.Num(it.Price.String()))
		e.FieldStart("quantity")
		e.Int(it.Quantity)
		e.FieldStart("image")
		e.Str(it.Image)
		e.FieldStart("description")
		e.Str(it.Description)
		e.ObjEnd()
	}
	e.ArrEnd()

	s := req.ShippingAddress
	e.FieldStart("shippingAddress")
	e.ObjStart()
	e.FieldStart("fullName")
	e.Str(s.FullName)
	e.FieldStart("address")
	e.Str(s.Address)
	e.FieldStart("city")
	e.Str(s.City)
	e.FieldStart("postalCode")
	e.Str(s.PostalCode)
	e.FieldStart("phone")
	e.Str(s.Phone)
	e.FieldStart("email")
	e.Str(s.Email)
	e.ObjEnd()

	e.FieldStart("paymentMethod")
	e.Str(string(req.PaymentMethod))
	if req.CouponCode != "" {
		e.FieldStart("couponCode")
		e.Str(req.CouponCode)
	}
	e.ObjEnd()
	return e.Bytes()
}

func decodePlaceOrder(data []byte) (*PlaceOrderResponse, error) {
	var r PlaceOrderResponse
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "url":
			return decodeOptStr(d, &r.URL)
		case "orderId":
			return decodeOptStr(d, &r.OrderID)
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func decodeMethods(data []byte) (map[payment.Key]MethodInfo, error) {
	out := make(map[payment.Key]MethodInfo)
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		var info MethodInfo
		if err := d.Obj(func(d *jx.Decoder, field string) error {
			switch field {
			case "type":
				return decodeOptStr(d, &info.Type)
			case "icon":
				return decodeOptStr(d, &info.Icon)
			default:
				return d.Skip()
			}
		}); err != nil {
			return errors.Wrapf(err, "method %q", key)
		}
		// Keys this build does not know cannot be selected.
		m, err := payment.Parse(key)
		if err != nil {
			return nil
		}
		out[m.Key()] = info
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func decodeOrder(data []byte) (*Order, error) {
	var o Order
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "orderId":
			return decodeOptStr(d, &o.ID)
		case "status":
			return decodeOptStr(d, &o.Status)
		case "paymentMethod":
			return decodeOptStr(d, &o.PaymentMethod)
		case "redirectUrl":
			return decodeOptStr(d, &o.RedirectURL)
		case "subtotal":
			return decodeDecimal(d, &o.Subtotal)
		case "discount":
			return decodeDecimal(d, &o.Discount)
		case "total":
			return decodeDecimal(d, &o.Total)
		case "createdAt":
			var s string
			if err := decodeOptStr(d, &s); err != nil || s == "" {
				return err
			}
			t, err := time.Parse(time.RFC3339Nano, s)
			if err != nil {
				return errors.Wrap(err, "createdAt")
			}
			o.CreatedAt = t
			return nil
		case "items":
			return d.Arr(func(d *jx.Decoder) error {
				var it OrderItem
				err := d.Obj(func(d *jx.Decoder, field string) error {
					switch field {
					case "id":
						return decodeOptStr(d, &it.ID)
					case "name":
						return decodeOptStr(d, &it.Name)
					case "price":
						return decodeDecimal(d, &it.Price)
					case "quantity":
						v, err := d.Int()
						it.Quantity = v
						return err
					case "description":
						return decodeOptStr(d, &it.Description)
					default:
						return d.Skip()
					}
				})
				o.Items = append(o.Items, it)
				return err
			})
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// decodeErrorMessage extracts the "error" field of an error body. Bodies
// that are not JSON objects yield "".
func decodeErrorMessage(data []byte) string {
	var msg string
	_ = jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		if key == "error" {
			return decodeOptStr(d, &msg)
		}
		return d.Skip()
	})
	return msg
}

func decodeOptStr(d *jx.Decoder, dst *string) error {
	if d.Next() == jx.Null {
		return d.Null()
	}
	v, err := d.Str()
	*dst = v
	return err
}

// decodeDecimal accepts a JSON number or a numeric string.
func decodeDecimal(d *jx.Decoder, dst *decimal.Decimal) error {
	var raw string
	switch d.Next() {
	case jx.Null:
		return d.Null()
	case jx.String:
		v, err := d.Str()
		if err != nil {
			return err
		}
		raw = v
	default:
		n, err := d.Num()
		if err != nil {
			return err
		}
		raw = n.String()
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return errors.Wrapf(err, "parse %q", raw)
	}
	*dst = v
	return nil
}

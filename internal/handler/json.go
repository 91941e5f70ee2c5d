package handler

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/order-desk/internal/domain/order"
	"github.com/xenking/order-desk/internal/domain/product"
	"github.com/xenking/order-desk/internal/domain/promo"
	"github.com/xenking/order-desk/internal/domain/user"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, e *jx.Encoder) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

// readBody returns the request body, rejecting empty and oversized bodies.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, badRequest("request body too large")
		}
		return nil, errors.Wrap(err, "read body")
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, badRequest("request body is required")
	}
	if !jx.Valid(data) {
		return nil, badRequest("malformed JSON body")
	}
	return data, nil
}

// decodeObject walks the fields of a JSON object body.
func decodeObject(data []byte, fn func(d *jx.Decoder, key string) error) error {
	d := jx.DecodeBytes(data)
	if d.Next() != jx.Object {
		return badRequest("request body must be a JSON object")
	}
	return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		return fn(d, string(key))
	})
}

// decodeString reads a string field, mapping type mismatches to a 400.
func decodeString(d *jx.Decoder, field string) (string, error) {
	if d.Next() != jx.String {
		return "", badRequest(field + " must be a string")
	}
	return d.Str()
}

// decodeOptionalString reads a string or null field.
func decodeOptionalString(d *jx.Decoder, field string) (string, error) {
	if d.Next() == jx.Null {
		return "", d.Null()
	}
	return decodeString(d, field)
}

// orderBody is a decoded order create/update request.
type orderBody struct {
	Items      []order.ItemSpec
	HasItems   bool
	CouponCode string
}

func decodeOrderBody(data []byte) (orderBody, error) {
	var body orderBody
	err := decodeObject(data, func(d *jx.Decoder, key string) error {
		switch key {
		case "items":
			body.HasItems = true
			if d.Next() != jx.Array {
				return badRequest("items must be an array")
			}
			return d.Arr(func(d *jx.Decoder) error {
				spec, err := decodeItemSpec(d)
				if err != nil {
					return err
				}
				body.Items = append(body.Items, spec)
				return nil
			})
		case "coupon_code":
			code, err := decodeOptionalString(d, "coupon_code")
			body.CouponCode = strings.TrimSpace(code)
			return err
		default:
			return d.Skip()
		}
	})
	return body, err
}

func decodeItemSpec(d *jx.Decoder) (order.ItemSpec, error) {
	var (
		spec   order.ItemSpec
		hasQty bool
	)
	if d.Next() != jx.Object {
		return spec, badRequest("each item must be an object")
	}
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "product", "product_id":
			// Numeric ids are accepted for clients that send the primary key.
			switch d.Next() {
			case jx.String:
				v, err := d.Str()
				spec.ProductID = v
				return err
			case jx.Number:
				n, err := d.Num()
				if err != nil {
					return err
				}
				spec.ProductID = n.String()
				return nil
			default:
				return badRequest("item product must be a string or number")
			}
		case "quantity":
			if d.Next() != jx.Number {
				return badRequest("item quantity must be an integer")
			}
			n, err := d.Num()
			if err != nil {
				return err
			}
			if !n.IsInt() {
				return badRequest("item quantity must be an integer")
			}
			q, err := n.Int64()
			if err != nil {
				return badRequest("item quantity is out of range")
			}
			spec.Quantity = int(q)
			hasQty = true
			return nil
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return spec, err
	}
	if spec.ProductID == "" {
		return spec, badRequest("item product is required")
	}
	if !hasQty {
		return spec, badRequest("item quantity is required")
	}
	return spec, nil
}

func encodeProduct(e *jx.Encoder, p *product.Product) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(p.ID)
	e.FieldStart("name")
	e.Str(p.Name)
	e.FieldStart("price")
	e.Str(p.Price.StringFixed(2))
	e.FieldStart("stock")
	e.Int(p.Stock)
	e.ObjEnd()
}

func encodePromo(e *jx.Encoder, p *promo.PromoCode) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(p.ID)
	e.FieldStart("coupon_code")
	e.Str(p.Code)
	e.FieldStart("coupon_name")
	e.Str(p.Name)
	e.FieldStart("type")
	e.Str(string(p.Type))
	e.FieldStart("fixed_amount")
	e.Str(p.FixedAmount.StringFixed(2))
	e.FieldStart("discount_percentage")
	e.Str(p.DiscountPercentage.StringFixed(2))
	e.FieldStart("max_discount_amount")
	e.Str(p.MaxDiscountAmount.StringFixed(2))
	e.FieldStart("is_active")
	e.Bool(p.IsActive)
	e.FieldStart("start_at")
	encodeTime(e, p.StartAt)
	e.FieldStart("ended_at")
	encodeTime(e, p.EndedAt)
	e.ObjEnd()
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(o.ID)
	e.FieldStart("user")
	e.Str(o.UserID)
	e.FieldStart("items")
	e.ArrStart()
	for _, it := range o.Items {
		e.ObjStart()
		e.FieldStart("id")
		e.Int64(it.ID)
		e.FieldStart("product")
		e.Str(it.ProductID)
		e.FieldStart("quantity")
		e.Int(it.Quantity)
		e.FieldStart("price")
		e.Str(it.Price.StringFixed(2))
		e.ObjEnd()
	}
	e.ArrEnd()
	e.FieldStart("total_price")
	e.Str(o.TotalPrice.StringFixed(2))
	e.FieldStart("coupon_code")
	if code := o.CouponCode(); code != "" {
		e.Str(code)
	} else {
		e.Null()
	}
	e.FieldStart("discount")
	e.Str(o.Discount.StringFixed(2))
	e.FieldStart("created_at")
	encodeTime(e, o.CreatedAt)
	e.ObjEnd()
}

func encodeUser(e *jx.Encoder, u *user.User) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(u.ID)
	e.FieldStart("email")
	e.Str(u.Email)
	e.FieldStart("name")
	e.Str(u.Name)
	e.FieldStart("created_at")
	encodeTime(e, u.CreatedAt)
	e.ObjEnd()
}

func encodeTime(e *jx.Encoder, t time.Time) {
	e.Str(t.UTC().Format(time.RFC3339))
}

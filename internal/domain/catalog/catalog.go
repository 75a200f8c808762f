// Package catalog defines the product catalog model, its normalization rules,
// and the exact JSON wire format persisted in the content store.
package catalog

import (
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
)

// ErrNotArray is returned when a catalog document is valid JSON but not an array.
var ErrNotArray = errors.New("catalog document must be a JSON array")

// Item represents one product entry. The JSON field names are the persisted
// wire format and must not change: older deployments of the storefront read
// the same file.
type Item struct {
	Name        string `json:"nombre"`
	Price       string `json:"precio"`
	Description string `json:"descripcion"`
	Image       string `json:"imagen"`
}

// Catalog is an ordered sequence of items. Order is display order and is
// preserved across every round-trip.
type Catalog []Item

// Normalize ensures all four fields are present as strings. It is idempotent:
// normalizing an already-normalized item yields the same item. With string
// fields the zero value already satisfies the invariant, so this is the
// identity today; it exists as the single place to extend when the model grows.
func Normalize(it Item) Item {
	return it
}

// NormalizeAll normalizes every item, preserving order. A nil catalog
// normalizes to an empty one.
func NormalizeAll(c Catalog) Catalog {
	out := make(Catalog, len(c))
	for i, it := range c {
		out[i] = Normalize(it)
	}
	return out
}

// Decode parses a catalog document. It is tolerant of loosely-typed source
// data: missing fields default to the empty string, numeric values are kept
// as their literal text, and unknown fields are ignored. The document itself
// must be a JSON array.
func Decode(data []byte) (Catalog, error) {
	d := jx.DecodeBytes(data)
	if d.Next() != jx.Array {
		return nil, ErrNotArray
	}

	c := Catalog{}
	if err := d.Arr(func(d *jx.Decoder) error {
		it, err := decodeItem(d)
		if err != nil {
			return err
		}
		c = append(c, it)
		return nil
	}); err != nil {
		return nil, errors.Wrap(err, "decode catalog")
	}
	return c, nil
}

func decodeItem(d *jx.Decoder) (Item, error) {
	var it Item
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		var dst *string
		switch key {
		case "nombre":
			dst = &it.Name
		case "precio":
			dst = &it.Price
		case "descripcion":
			dst = &it.Description
		case "imagen":
			dst = &it.Image
		default:
			return d.Skip()
		}
		return decodeField(d, dst)
	}); err != nil {
		return Item{}, errors.Wrap(err, "decode item")
	}
	return it, nil
}

// decodeField reads a value that should be a string but may not be: the
// source data carries free-form prices, sometimes as bare numbers. Anything
// that is neither a string nor a number decodes as the empty string.
func decodeField(d *jx.Decoder, dst *string) error {
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return err
		}
		*dst = s
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return err
		}
		*dst = n.String()
	default:
		*dst = ""
		return d.Skip()
	}
	return nil
}

// Encode serializes the catalog in the persisted layout: a pretty-printed
// JSON array with two-space indentation, UTF-8, no trailing metadata.
// A nil catalog encodes as an empty array.
func Encode(c Catalog) []byte {
	var e jx.Encoder
	e.SetIdent(2)
	e.ArrStart()
	for _, it := range c {
		e.ObjStart()
		e.FieldStart("nombre")
		e.Str(it.Name)
		e.FieldStart("precio")
		e.Str(it.Price)
		e.FieldStart("descripcion")
		e.Str(it.Description)
		e.FieldStart("imagen")
		e.Str(it.Image)
		e.ObjEnd()
	}
	e.ArrEnd()
	return e.Bytes()
}

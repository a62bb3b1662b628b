package gc

import (
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// MarshalJSON encodes the managed value. A nil handle encodes as null.
func (g *Gc[T]) MarshalJSON() ([]byte, error) {
	if g == nil {
		return []byte("null"), nil
	}
	return json.Marshal(g.Get())
}

// UnmarshalJSON decodes data into a new value on the default heap and makes
// g a rooted handle to it. Handles nested in the value are allocated there
// too. g must be a zero Gc, as the decoder allocates for a nil *Gc field.
func (g *Gc[T]) UnmarshalJSON(data []byte) error {
	if g.rec != nil {
		return ErrHandleInUse
	}
	mustTraceable[T]("unmarshal")

	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		dropValue(&v)
		return err
	}
	*g = *New(v)
	return nil
}

// MarshalJSON encodes the content under a shared borrow.
func (c *Cell[T]) MarshalJSON() ([]byte, error) {
	r, err := c.Borrow()
	if err != nil {
		return nil, err
	}
	defer r.Release()

	return json.Marshal(r.Get())
}

// UnmarshalJSON decodes data and stores it under the exclusive borrow, so
// the decoded handles end up rooted exactly when the cell is.
func (c *Cell[T]) UnmarshalJSON(data []byte) error {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		dropValue(&v)
		return err
	}

	g, err := c.BorrowMut()
	if err != nil {
		dropValue(&v)
		return err
	}
	defer g.Release()

	g.Set(v)
	return nil
}

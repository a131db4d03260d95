// Package payload holds the typed create inputs sent to the CRM.
//
// Optional fields use Optional[T] with the `omitzero` JSON option: an absent
// value is left out of the request body entirely, which the CRM treats
// differently from an explicit null.
package payload

import (
	"bytes"
	"encoding/json"
)

// Optional is an explicit present/absent value.
type Optional[T any] struct {
	value T
	ok    bool
}

// Some returns a present Optional holding v.
func Some[T any](v T) Optional[T] {
	return Optional[T]{value: v, ok: true}
}

// None returns an absent Optional.
func None[T any]() Optional[T] {
	return Optional[T]{}
}

// NonEmpty returns Some(s) for a non-empty string and None otherwise.
func NonEmpty(s string) Optional[string] {
	if s == "" {
		return None[string]()
	}
	return Some(s)
}

// Get returns the value and whether it is present.
func (o Optional[T]) Get() (T, bool) {
	return o.value, o.ok
}

// OrElse returns the value if present, fallback otherwise.
func (o Optional[T]) OrElse(fallback T) T {
	if o.ok {
		return o.value
	}
	return fallback
}

// IsZero reports absence; encoding/json consults it for `omitzero`.
func (o Optional[T]) IsZero() bool {
	return !o.ok
}

func (o Optional[T]) MarshalJSON() ([]byte, error) {
	if !o.ok {
		return []byte("null"), nil
	}
	return json.Marshal(o.value)
}

func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*o = None[T]()
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*o = Some(v)
	return nil
}

package blockscout

import (
	"bytes"
	"encoding/json"
	"math/big"
	"strings"
)

var jsonNull = []byte("null")

// Amount is an integer quantity in the smallest unit. Blockscout returns
// amounts as strings, bare numbers or {"value": "..."} objects depending on
// the endpoint.
type Amount struct {
	value *big.Int
}

// NewAmount copies v into an Amount.
func NewAmount(v *big.Int) Amount {
	if v == nil {
		return Amount{}
	}
	return Amount{value: new(big.Int).Set(v)}
}

// Valid reports whether the field was present and parseable.
func (a Amount) Valid() bool { return a.value != nil }

// Int returns a copy of the value, zero when missing.
func (a Amount) Int() *big.Int {
	if a.value == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(a.value)
}

// String returns the decimal representation, "0" when missing.
func (a Amount) String() string {
	if a.value == nil {
		return "0"
	}
	return a.value.String()
}

// UnmarshalJSON never fails; unparseable input leaves the amount invalid.
func (a *Amount) UnmarshalJSON(data []byte) error {
	a.value = nil
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, jsonNull) {
		return nil
	}
	if data[0] == '{' {
		var wrapped struct {
			Value Amount `json:"value"`
		}
		if err := json.Unmarshal(data, &wrapped); err != nil {
			return nil
		}
		*a = wrapped.Value
		return nil
	}
	text := strings.Trim(string(data), `"`)
	if v, ok := new(big.Int).SetString(strings.TrimSpace(text), 10); ok && v.Sign() >= 0 {
		a.value = v
	}
	return nil
}

func (a Amount) MarshalJSON() ([]byte, error) {
	if a.value == nil {
		return jsonNull, nil
	}
	return json.Marshal(a.value.String())
}

// Text holds strings verbatim and any other JSON value as its raw text.
type Text string

func (t *Text) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, jsonNull) {
		*t = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = Text(s)
		return nil
	}
	*t = Text(data)
	return nil
}

func (t Text) String() string { return string(t) }

// Address accepts "0x..." or {"hash": "0x...", "name": "..."}.
type Address struct {
	Hash string `json:"hash"`
	Name string `json:"name,omitempty"`
}

func (a *Address) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*a = Address{}
	if len(data) == 0 || bytes.Equal(data, jsonNull) {
		return nil
	}
	if data[0] == '"' {
		return json.Unmarshal(data, &a.Hash)
	}
	type plain Address
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*a = Address(p)
	return nil
}

func (a Address) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.Hash)
}

func (a Address) String() string { return a.Hash }

// Tag is an explorer label, given either as a string or an object.
type Tag struct {
	Name string `json:"name"`
	Slug string `json:"slug,omitempty"`
}

func (t *Tag) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*t = Tag{}
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &t.Name)
	}
	type plain Tag
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*t = Tag(p)
	return nil
}

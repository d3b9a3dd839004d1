package payload

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

var _ json.Marshaler = Value{}
var _ json.Unmarshaler = &Value{}

// Decode parses a JSON document into a Value, keeping object key order and number literals.
func Decode(data []byte) (Value, error) {
	return DecodeReader(bytes.NewReader(data))
}

// DecodeReader is like Decode, but reads the document from r.
func DecodeReader(r io.Reader) (Value, error) {
	decoder := json.NewDecoder(r)
	decoder.UseNumber()
	result, err := decodeNext(decoder)
	if err != nil {
		return Value{}, err
	}
	if _, err := decoder.Token(); !errors.Is(err, io.EOF) {
		return Value{}, errors.New("invalid JSON: unexpected data after top-level value")
	}
	return result, nil
}

func decodeNext(decoder *json.Decoder) (Value, error) {
	token, err := decoder.Token()
	if err != nil {
		return Value{}, fmt.Errorf("invalid JSON: %w", err)
	}
	switch t := token.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(t), nil
	case string:
		return String(t), nil
	case json.Number:
		return Number(t), nil
	case json.Delim:
		switch t {
		case '{':
			var members []Member
			for decoder.More() {
				keyToken, err := decoder.Token()
				if err != nil {
					return Value{}, fmt.Errorf("invalid JSON: %w", err)
				}
				key, _ := keyToken.(string)
				value, err := decodeNext(decoder)
				if err != nil {
					return Value{}, err
				}
				members = append(members, Member{Key: key, Value: value})
			}
			if _, err := decoder.Token(); err != nil {
				return Value{}, fmt.Errorf("invalid JSON: %w", err)
			}
			return Object(members...), nil
		case '[':
			items := []Value{}
			for decoder.More() {
				item, err := decodeNext(decoder)
				if err != nil {
					return Value{}, err
				}
				items = append(items, item)
			}
			if _, err := decoder.Token(); err != nil {
				return Value{}, fmt.Errorf("invalid JSON: %w", err)
			}
			return Value{kind: KindArray, items: items}, nil
		}
	}
	return Value{}, fmt.Errorf("invalid JSON: unexpected token %v", token)
}

// MustDecode is like Decode, but panics on invalid JSON. Intended for tests and static data.
func MustDecode(data string) Value {
	result, err := Decode([]byte(data))
	if err != nil {
		panic(err)
	}
	return result
}

func (v *Value) UnmarshalJSON(data []byte) error {
	result, err := Decode(data)
	if err != nil {
		return err
	}
	*v = result
	return nil
}

func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := v.writeJSON(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (v Value) writeJSON(buf *bytes.Buffer) error {
	switch v.kind {
	case KindNull:
		buf.WriteString("null")
	case KindBool:
		if v.boolean {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case KindNumber:
		buf.WriteString(v.text)
	case KindString:
		return writeString(buf, v.text)
	case KindArray:
		buf.WriteByte('[')
		for i, item := range v.items {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := item.writeJSON(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case KindObject:
		buf.WriteByte('{')
		for i, member := range v.members {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeString(buf, member.Key); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := member.Value.writeJSON(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	}
	return nil
}

func writeString(buf *bytes.Buffer, s string) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	buf.Write(data)
	return nil
}

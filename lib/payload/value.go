// Package payload holds the in-memory representation of loosely-typed JSON payloads received from the registry.
// A Value is a tagged union (null, bool, number, string, array, object). Values are immutable: every operation
// that alters a tree returns a new tree and leaves the receiver untouched.
package payload

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// Kind identifies which variant of the union a Value holds.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "boolean"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	}
	return "Kind(" + strconv.Itoa(int(k)) + ")"
}

// ParseKind returns the Kind for its name as returned by Kind.String.
func ParseKind(name string) (Kind, error) {
	for k := KindNull; k <= KindObject; k++ {
		if k.String() == name {
			return k, nil
		}
	}
	return KindNull, fmt.Errorf("unknown value kind: %s", name)
}

// Member is a single key/value pair of an object.
type Member struct {
	Key   string
	Value Value
}

// Value is a node of a JSON tree. The zero value is null.
type Value struct {
	kind    Kind
	boolean bool
	// text holds the string value, or the literal of a number.
	text    string
	items   []Value
	members []Member
}

func Null() Value {
	return Value{}
}

func Bool(b bool) Value {
	return Value{kind: KindBool, boolean: b}
}

func Number(n json.Number) Value {
	return Value{kind: KindNumber, text: n.String()}
}

func Int(i int64) Value {
	return Value{kind: KindNumber, text: strconv.FormatInt(i, 10)}
}

func String(s string) Value {
	return Value{kind: KindString, text: s}
}

// Array creates an array value holding a copy of the given items.
func Array(items ...Value) Value {
	return Value{kind: KindArray, items: append([]Value{}, items...)}
}

// Object creates an object value from the given members, keeping their order.
// When a key occurs more than once, the last value wins and takes the position of the first occurrence.
func Object(members ...Member) Value {
	result := Value{kind: KindObject, members: make([]Member, 0, len(members))}
	for _, member := range members {
		if idx := result.indexOf(member.Key); idx >= 0 {
			result.members[idx].Value = member.Value
		} else {
			result.members = append(result.members, member)
		}
	}
	return result
}

func (v Value) Kind() Kind {
	return v.kind
}

func (v Value) IsNull() bool {
	return v.kind == KindNull
}

func (v Value) IsObject() bool {
	return v.kind == KindObject
}

func (v Value) IsArray() bool {
	return v.kind == KindArray
}

// IsScalar reports whether the value is neither an array nor an object.
func (v Value) IsScalar() bool {
	return v.kind != KindArray && v.kind != KindObject
}

func (v Value) AsString() (string, bool) {
	return v.text, v.kind == KindString
}

func (v Value) AsBool() (bool, bool) {
	return v.boolean, v.kind == KindBool
}

func (v Value) AsNumber() (json.Number, bool) {
	return json.Number(v.text), v.kind == KindNumber
}

// Text returns the textual form of a scalar: the string itself, the number literal, "true"/"false" or "" for null.
// Arrays and objects return "".
func (v Value) Text() string {
	switch v.kind {
	case KindString, KindNumber:
		return v.text
	case KindBool:
		return strconv.FormatBool(v.boolean)
	}
	return ""
}

// Len returns the number of items of an array or members of an object, 0 otherwise.
func (v Value) Len() int {
	switch v.kind {
	case KindArray:
		return len(v.items)
	case KindObject:
		return len(v.members)
	}
	return 0
}

// Index returns the i-th item of an array.
func (v Value) Index(i int) (Value, bool) {
	if v.kind != KindArray || i < 0 || i >= len(v.items) {
		return Value{}, false
	}
	return v.items[i], true
}

// Items returns a copy of the items of an array.
func (v Value) Items() []Value {
	if v.kind != KindArray {
		return nil
	}
	return append([]Value{}, v.items...)
}

// Members returns a copy of the members of an object, in order.
func (v Value) Members() []Member {
	if v.kind != KindObject {
		return nil
	}
	return append([]Member{}, v.members...)
}

// Keys returns the keys of an object, in order.
func (v Value) Keys() []string {
	if v.kind != KindObject {
		return nil
	}
	result := make([]string, len(v.members))
	for i, member := range v.members {
		result[i] = member.Key
	}
	return result
}

// Lookup returns the value of the given key of an object.
func (v Value) Lookup(key string) (Value, bool) {
	idx := v.indexOf(key)
	if idx < 0 {
		return Value{}, false
	}
	return v.members[idx].Value, true
}

// Has reports whether the object has the given key.
func (v Value) Has(key string) bool {
	return v.indexOf(key) >= 0
}

// With returns a copy of the object with the given key set. Existing keys keep their position, new keys are appended.
// Calling With on a non-object value returns a new object containing only the given key.
func (v Value) With(key string, value Value) Value {
	if v.kind != KindObject {
		return Object(Member{Key: key, Value: value})
	}
	members := append(make([]Member, 0, len(v.members)+1), v.members...)
	if idx := v.indexOf(key); idx >= 0 {
		members[idx].Value = value
	} else {
		members = append(members, Member{Key: key, Value: value})
	}
	return Value{kind: KindObject, members: members}
}

// Without returns a copy of the object without the given key.
func (v Value) Without(key string) Value {
	idx := v.indexOf(key)
	if idx < 0 {
		return v
	}
	members := make([]Member, 0, len(v.members)-1)
	members = append(members, v.members[:idx]...)
	members = append(members, v.members[idx+1:]...)
	return Value{kind: KindObject, members: members}
}

// WithIndex returns a copy of the array with the i-th item replaced.
func (v Value) WithIndex(i int, value Value) (Value, bool) {
	if v.kind != KindArray || i < 0 || i >= len(v.items) {
		return v, false
	}
	items := append([]Value{}, v.items...)
	items[i] = value
	return Value{kind: KindArray, items: items}, true
}

// LeafCount returns the number of scalar leaves in the tree. Empty arrays and objects count as no leaves.
func (v Value) LeafCount() int {
	switch v.kind {
	case KindArray:
		count := 0
		for _, item := range v.items {
			count += item.LeafCount()
		}
		return count
	case KindObject:
		count := 0
		for _, member := range v.members {
			count += member.Value.LeafCount()
		}
		return count
	}
	return 1
}

func (v Value) indexOf(key string) int {
	if v.kind != KindObject {
		return -1
	}
	for i, member := range v.members {
		if member.Key == key {
			return i
		}
	}
	return -1
}

// Equal compares two trees structurally. Object member order is not significant, array item order is.
// Numbers are compared by their literal, after normalizing integers and floats that represent the same value.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNull:
		return true
	case KindBool:
		return a.boolean == b.boolean
	case KindString:
		return a.text == b.text
	case KindNumber:
		if a.text == b.text {
			return true
		}
		af, errA := strconv.ParseFloat(a.text, 64)
		bf, errB := strconv.ParseFloat(b.text, 64)
		return errA == nil && errB == nil && af == bf
	case KindArray:
		if len(a.items) != len(b.items) {
			return false
		}
		for i := range a.items {
			if !Equal(a.items[i], b.items[i]) {
				return false
			}
		}
		return true
	case KindObject:
		if len(a.members) != len(b.members) {
			return false
		}
		for _, member := range a.members {
			other, ok := b.Lookup(member.Key)
			if !ok || !Equal(member.Value, other) {
				return false
			}
		}
		return true
	}
	return false
}

// FromAny converts a value as produced by encoding/json (or built by hand from Go maps and slices) into a Value.
// Map keys are sorted, since Go maps have no order.
func FromAny(in any) (Value, error) {
	switch t := in.(type) {
	case nil:
		return Null(), nil
	case Value:
		return t, nil
	case bool:
		return Bool(t), nil
	case string:
		return String(t), nil
	case json.Number:
		return Number(t), nil
	case float64:
		return Value{kind: KindNumber, text: strconv.FormatFloat(t, 'f', -1, 64)}, nil
	case float32:
		return Value{kind: KindNumber, text: strconv.FormatFloat(float64(t), 'f', -1, 32)}, nil
	case int:
		return Int(int64(t)), nil
	case int32:
		return Int(int64(t)), nil
	case int64:
		return Int(t), nil
	case []any:
		items := make([]Value, len(t))
		for i, item := range t {
			converted, err := FromAny(item)
			if err != nil {
				return Value{}, fmt.Errorf("[%d]: %w", i, err)
			}
			items[i] = converted
		}
		return Value{kind: KindArray, items: items}, nil
	case []map[string]any:
		items := make([]Value, len(t))
		for i, item := range t {
			converted, err := FromAny(item)
			if err != nil {
				return Value{}, fmt.Errorf("[%d]: %w", i, err)
			}
			items[i] = converted
		}
		return Value{kind: KindArray, items: items}, nil
	case map[string]any:
		keys := make([]string, 0, len(t))
		for key := range t {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		members := make([]Member, len(keys))
		for i, key := range keys {
			converted, err := FromAny(t[key])
			if err != nil {
				return Value{}, fmt.Errorf("%s: %w", key, err)
			}
			members[i] = Member{Key: key, Value: converted}
		}
		return Value{kind: KindObject, members: members}, nil
	}
	return Value{}, fmt.Errorf("unsupported type %T", in)
}

// ToAny converts the tree to plain Go values: map[string]any, []any, json.Number, string, bool and nil.
func (v Value) ToAny() any {
	switch v.kind {
	case KindBool:
		return v.boolean
	case KindNumber:
		return json.Number(v.text)
	case KindString:
		return v.text
	case KindArray:
		result := make([]any, len(v.items))
		for i, item := range v.items {
			result[i] = item.ToAny()
		}
		return result
	case KindObject:
		result := make(map[string]any, len(v.members))
		for _, member := range v.members {
			result[member.Key] = member.Value.ToAny()
		}
		return result
	}
	return nil
}

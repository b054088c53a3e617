package nostr

import (
	"encoding/json"
	"errors"
)

// Tag is one entry of an event's tag list, e.g. ["e", <id>, <relay>].
type Tag struct {
	Name   string
	Values []string
}

// Value returns the i-th value, or "" if absent.
func (t Tag) Value(i int) string {
	if i < 0 || i >= len(t.Values) {
		return ""
	}
	return t.Values[i]
}

// MarshalJSON encodes the tag as a flat JSON array.
func (t Tag) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.strings())
}

// UnmarshalJSON decodes a flat JSON array with at least one element.
func (t *Tag) UnmarshalJSON(data []byte) error {
	var raw []string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) == 0 {
		return errors.New("empty tag")
	}
	t.Name = raw[0]
	t.Values = raw[1:]
	return nil
}

func (t Tag) strings() []string {
	out := make([]string, 0, 1+len(t.Values))
	out = append(out, t.Name)
	return append(out, t.Values...)
}

// Tags is an event's ordered tag list.
type Tags []Tag

// Find returns the first tag named name.
func (ts Tags) Find(name string) (Tag, bool) {
	for _, t := range ts {
		if t.Name == name {
			return t, true
		}
	}
	return Tag{}, false
}

// FindAll returns every tag named name, in order.
func (ts Tags) FindAll(name string) Tags {
	var out Tags
	for _, t := range ts {
		if t.Name == name {
			out = append(out, t)
		}
	}
	return out
}

// First returns the first value of the first tag named name.
func (ts Tags) First(name string) string {
	t, _ := ts.Find(name)
	return t.Value(0)
}

// MarshalJSON encodes a nil list as [] as required on the wire.
func (ts Tags) MarshalJSON() ([]byte, error) {
	if ts == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]Tag(ts))
}

// TagBuilder assembles a tag list.
type TagBuilder struct {
	tags Tags
}

// NewTags starts an empty tag list.
func NewTags() *TagBuilder {
	return &TagBuilder{}
}

// Add appends a tag with arbitrary values.
func (b *TagBuilder) Add(name string, values ...string) *TagBuilder {
	b.tags = append(b.tags, Tag{Name: name, Values: append([]string(nil), values...)})
	return b
}

// Event references another event, optionally with a relay hint and marker.
func (b *TagBuilder) Event(id, relay, marker string) *TagBuilder {
	vals := []string{id}
	if relay != "" || marker != "" {
		vals = append(vals, relay)
	}
	if marker != "" {
		vals = append(vals, marker)
	}
	return b.Add("e", vals...)
}

// PubKey references a user by x-only public key.
func (b *TagBuilder) PubKey(pubkey string) *TagBuilder {
	return b.Add("p", pubkey)
}

// Amount records an amount in base units.
func (b *TagBuilder) Amount(sats uint64) *TagBuilder {
	return b.Add("amount", formatUint(sats))
}

// TxHash records a settled transaction.
func (b *TagBuilder) TxHash(hash string) *TagBuilder {
	return b.Add("tx", hash)
}

// Build returns the assembled list.
func (b *TagBuilder) Build() Tags {
	out := make(Tags, len(b.tags))
	copy(out, b.tags)
	return out
}

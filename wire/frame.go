// Package wire implements the LSNP line-oriented key/value codec: a frame
// is a sequence of "KEY: VALUE" lines terminated by a blank line.
package wire

import "strings"

// Frame is an ordered key/value message. Insertion order is preserved so
// Craft emits keys in the order they were set, matching the peer that
// produced them closely enough to eyeball on the wire.
type Frame struct {
	keys   []string
	values map[string]string
}

// New returns an empty frame, optionally pre-populated with TYPE.
func New(msgType string) *Frame {
	f := &Frame{values: make(map[string]string)}
	if msgType != "" {
		f.Set("TYPE", msgType)
	}
	return f
}

// Set assigns a key, appending it to the insertion order on first use and
// overwriting the value (not the position) on repeat keys.
func (f *Frame) Set(key, value string) *Frame {
	if f.values == nil {
		f.values = make(map[string]string)
	}
	if _, ok := f.values[key]; !ok {
		f.keys = append(f.keys, key)
	}
	f.values[key] = value
	return f
}

// Get returns the value for key and whether it was present.
func (f *Frame) Get(key string) (string, bool) {
	v, ok := f.values[key]
	return v, ok
}

// GetDefault returns the value for key, or def if absent.
func (f *Frame) GetDefault(key, def string) string {
	if v, ok := f.values[key]; ok {
		return v
	}
	return def
}

// Type returns the TYPE field, or "" if unset.
func (f *Frame) Type() string {
	return f.GetDefault("TYPE", "")
}

// Has reports whether every key in keys is present and non-empty.
func (f *Frame) Has(keys ...string) bool {
	for _, k := range keys {
		if v, ok := f.values[k]; !ok || v == "" {
			return false
		}
	}
	return true
}

// Craft serializes the frame to its wire form: one "KEY: VALUE" line per
// field in insertion order, terminated by a blank line.
func Craft(f *Frame) string {
	var b strings.Builder
	for _, k := range f.keys {
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(f.values[k])
		b.WriteString("\n")
	}
	b.WriteString("\n")
	return b.String()
}

// Parse decodes a raw frame. Lines without a colon are skipped silently;
// the value is everything after the first colon, trimmed. Duplicate keys
// keep the last-seen value but the first-seen position, matching Set.
func Parse(raw string) *Frame {
	f := New("")
	for _, line := range strings.Split(raw, "\n") {
		idx := strings.Index(line, ":")
		if idx < 0 {
			continue
		}
		key := strings.TrimSpace(line[:idx])
		value := strings.TrimSpace(line[idx+1:])
		if key == "" {
			continue
		}
		f.Set(key, value)
	}
	return f
}

package index

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Field names of a published entry.
const (
	FieldTitle          = "title"
	FieldDescription    = "description"
	FieldGitHub         = "github"
	FieldThumbnail      = "thumbnail"
	FieldDiscussion     = "discussion"
	FieldStars          = "stars"
	FieldStarsUpdatedAt = "stars_updated_at"
)

// Entry is the published record of one plugin. Fields are kept as raw JSON
// so that anything the generator does not own survives a load/save cycle.
type Entry struct {
	fields map[string]json.RawMessage
}

// NewEntry returns an entry with no fields.
func NewEntry() *Entry {
	return &Entry{fields: map[string]json.RawMessage{}}
}

// Title returns the entry title.
func (e *Entry) Title() string { return e.str(FieldTitle) }

// Description returns the entry description.
func (e *Entry) Description() string { return e.str(FieldDescription) }

// GitHub returns the plugin repository URL.
func (e *Entry) GitHub() string { return e.str(FieldGitHub) }

// Thumbnail returns the thumbnail URL or "" when there is none.
func (e *Entry) Thumbnail() string { return e.str(FieldThumbnail) }

// Discussion returns the discussion URL or "" when unknown.
func (e *Entry) Discussion() string { return e.str(FieldDiscussion) }

// Stars returns the star count if one has been recorded.
func (e *Entry) Stars() (int, bool) {
	raw, ok := e.fields[FieldStars]
	if !ok {
		return 0, false
	}
	var n *int
	if err := json.Unmarshal(raw, &n); err != nil || n == nil {
		return 0, false
	}
	return *n, true
}

// Raw returns the JSON value stored under key.
func (e *Entry) Raw(key string) (json.RawMessage, bool) {
	raw, ok := e.fields[key]
	return raw, ok
}

// Keys returns the sorted field names of the entry.
func (e *Entry) Keys() []string {
	keys := make([]string, 0, len(e.fields))
	for k := range e.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Set stores v under key. A nil pointer is stored as JSON null.
func (e *Entry) Set(key string, v any) error {
	raw, err := encode(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if e.fields == nil {
		e.fields = map[string]json.RawMessage{}
	}
	e.fields[key] = raw
	return nil
}

func (e *Entry) str(key string) string {
	raw, ok := e.fields[key]
	if !ok {
		return ""
	}
	var s *string
	if err := json.Unmarshal(raw, &s); err != nil || s == nil {
		return ""
	}
	return *s
}

func (e *Entry) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	if fields == nil {
		return fmt.Errorf("entry must be an object")
	}
	for k, v := range fields {
		c, err := canonical(v)
		if err != nil {
			return fmt.Errorf("field %s: %w", k, err)
		}
		fields[k] = c
	}
	e.fields = fields
	return nil
}

func (e *Entry) MarshalJSON() ([]byte, error) {
	if e.fields == nil {
		return []byte("{}"), nil
	}
	return encode(e.fields)
}

// canonical re-encodes a JSON value so that object keys are sorted and
// numbers keep their literal form.
func canonical(raw json.RawMessage) (json.RawMessage, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return encode(v)
}

// encode marshals v without HTML escaping.
func encode(v any) (json.RawMessage, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

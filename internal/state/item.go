package state

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Item is one entry of a todo, in-progress, completed or blocker list. It is
// either raw text or a named record; exactly one of Text and Named is set.
type Item struct {
	Text  string
	Named *NamedItem
}

// NamedItem is the structured form of an Item. Blockers use BlockedTodos to
// reference todo ids.
type NamedItem struct {
	ID           string   `json:"id,omitempty"`
	Title        string   `json:"title,omitempty"`
	Description  string   `json:"description,omitempty"`
	Priority     string   `json:"priority,omitempty"`
	AssignedTo   string   `json:"assignedTo,omitempty"`
	CreatedAt    string   `json:"createdAt,omitempty"`
	BlockedTodos []string `json:"blockedTodos,omitempty"`

	// Extra keeps fields this version does not know about.
	Extra map[string]json.RawMessage `json:"-"`
}

var namedItemKeys = []string{"id", "title", "description", "priority", "assignedTo", "createdAt", "blockedTodos"}

// RawText builds a text item.
func RawText(s string) Item { return Item{Text: s} }

// Named builds a structured item.
func Named(n NamedItem) Item { return Item{Named: &n} }

// IsNamed reports whether the item is structured.
func (i Item) IsNamed() bool { return i.Named != nil }

// ID returns the structured id, or "" for raw text.
func (i Item) ID() string {
	if i.Named == nil {
		return ""
	}
	return i.Named.ID
}

// Label is the single rendering of an item used by every document: raw text
// as is, otherwise the title, then the description, then the id.
func (i Item) Label() string {
	if i.Named == nil {
		return i.Text
	}
	switch {
	case i.Named.Title != "":
		return i.Named.Title
	case i.Named.Description != "":
		return i.Named.Description
	case i.Named.ID != "":
		return i.Named.ID
	}
	return "(untitled)"
}

func (i Item) MarshalJSON() ([]byte, error) {
	if i.Named == nil {
		return json.Marshal(i.Text)
	}
	type plain NamedItem
	b, err := json.Marshal(plain(*i.Named))
	if err != nil {
		return nil, err
	}
	return appendExtra(b, i.Named.Extra)
}

func (i *Item) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*i = Item{}
		return nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*i = RawText(s)
		return nil
	case '{':
		type plain NamedItem
		var n plain
		if err := json.Unmarshal(data, &n); err != nil {
			return err
		}
		named := NamedItem(n)
		extra, err := splitExtra(data, namedItemKeys)
		if err != nil {
			return err
		}
		named.Extra = extra
		*i = Named(named)
		return nil
	default:
		// Numbers and booleans are kept as their literal text.
		*i = RawText(string(data))
		return nil
	}
}

// String implements fmt.Stringer.
func (i Item) String() string {
	if i.Named == nil {
		return i.Text
	}
	if i.Named.ID != "" {
		return fmt.Sprintf("%s: %s", i.Named.ID, i.Label())
	}
	return i.Label()
}

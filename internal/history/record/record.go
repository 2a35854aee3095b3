package record

import (
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// ID uniquely identifies an edit record. IDs are opaque and immutable.
type ID string

// NewID returns a fresh random record ID.
func NewID() ID {
	return ID(uuid.NewString())
}

// Kind tags the type of edit a record represents.
type Kind string

// Built-in record kinds.
const (
	KindFreeformPath Kind = "freeform-path"
	KindShape        Kind = "shape"
	KindText         Kind = "text"
	KindErase        Kind = "erase"
)

// Point is a single sampled position along a record's geometry.
type Point struct {
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	Pressure    float64 `json:"pressure,omitempty"`
	HasPressure bool    `json:"hasPressure,omitempty"`
}

// Style holds the paint attributes of a record.
type Style struct {
	Color      string  `json:"color,omitempty"`
	Fill       string  `json:"fill,omitempty"`
	Width      float64 `json:"width,omitempty"`
	Opacity    float64 `json:"opacity,omitempty"`
	FontFamily string  `json:"fontFamily,omitempty"`
	FontSize   float64 `json:"fontSize,omitempty"`
}

// Record is one atomic, reversible edit.
//
// Once a record has been handed to a Store or a ledger it is owned by that
// component. Callers that want to change a record must build a new value and
// submit it through Store.Update instead of mutating the stored pointer.
type Record struct {
	ID        ID        `json:"id"`
	Kind      Kind      `json:"kind"`
	Points    []Point   `json:"points,omitempty"`
	Style     Style     `json:"style"`
	Text      string    `json:"text,omitempty"`
	CreatedAt time.Time `json:"createdAt"`

	// GroupID is a weak back-reference to an owning group. It is used for
	// lookup only and never implies ownership.
	GroupID ID `json:"groupId,omitempty"`

	// ArtifactBytes is the size of any derived artifact attached to the
	// record (for example a cached tessellation).
	ArtifactBytes int64 `json:"artifactBytes,omitempty"`
}

// New creates a record with a fresh ID and the current time.
func New(kind Kind, points []Point, style Style) *Record {
	return &Record{
		ID:        NewID(),
		Kind:      kind,
		Points:    points,
		Style:     style,
		CreatedAt: time.Now(),
	}
}

// NewText creates a text record anchored at the given point.
func NewText(text string, at Point, style Style) *Record {
	r := New(KindText, []Point{at}, style)
	r.Text = text
	return r
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	clone := *r
	if r.Points != nil {
		clone.Points = make([]Point, len(r.Points))
		copy(clone.Points, r.Points)
	}
	return &clone
}

// Equal reports whether two records have the same ID and field values.
func (r *Record) Equal(other *Record) bool {
	if r == nil || other == nil {
		return r == other
	}
	return len(Diff(r, other)) == 0 && r.ID == other.ID
}

// PointCount returns the number of points in the record.
func (r *Record) PointCount() int {
	return len(r.Points)
}

// TextLen returns the number of runes in the record text.
func (r *Record) TextLen() int {
	return utf8.RuneCountInString(r.Text)
}

// Diff returns the names of the fields that differ between old and updated.
// The ID is not compared.
func Diff(old, updated *Record) []string {
	var changes []string
	if old.Kind != updated.Kind {
		changes = append(changes, "kind")
	}
	if !pointsEqual(old.Points, updated.Points) {
		changes = append(changes, "points")
	}
	if old.Style != updated.Style {
		changes = append(changes, "style")
	}
	if old.Text != updated.Text {
		changes = append(changes, "text")
	}
	if !old.CreatedAt.Equal(updated.CreatedAt) {
		changes = append(changes, "createdAt")
	}
	if old.GroupID != updated.GroupID {
		changes = append(changes, "groupId")
	}
	if old.ArtifactBytes != updated.ArtifactBytes {
		changes = append(changes, "artifactBytes")
	}
	return changes
}

func pointsEqual(a, b []Point) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// List is an ordered collection of records.
type List []*Record

// Clone deep-copies every record in the list.
func (l List) Clone() List {
	if l == nil {
		return nil
	}
	out := make(List, len(l))
	for i, r := range l {
		out[i] = r.Clone()
	}
	return out
}

// IDs returns the IDs of the records in order.
func (l List) IDs() []ID {
	ids := make([]ID, len(l))
	for i, r := range l {
		ids[i] = r.ID
	}
	return ids
}

// Equal reports whether both lists hold equal records in the same order.
func (l List) Equal(other List) bool {
	if len(l) != len(other) {
		return false
	}
	for i := range l {
		if !l[i].Equal(other[i]) {
			return false
		}
	}
	return true
}

package model

import "strings"

// Field names a record can be required to fill in at creation time.
const (
	FieldName        = "name"
	FieldCity        = "city"
	FieldCoordinates = "coordinates"
	FieldImages      = "images"
	FieldVisited     = "visited"
	FieldNotes       = "notes"
	FieldRating      = "rating"
	FieldCategory    = "category"
)

// Fields lists every field that may appear in Options.Mandatory, in display order.
var Fields = []string{
	FieldImages,
	FieldCategory,
	FieldName,
	FieldCity,
	FieldCoordinates,
	FieldVisited,
	FieldRating,
	FieldNotes,
}

// MaxRating is the upper bound of Record.Rating.
const MaxRating = 10

// Coordinates are kept as entered; the device stores them as decimal strings.
type Coordinates struct {
	Lat  string `json:"lat"`
	Long string `json:"long"`
}

// IsZero reports whether neither component is set.
func (c Coordinates) IsZero() bool {
	return strings.TrimSpace(c.Lat) == "" && strings.TrimSpace(c.Long) == ""
}

// Record is one point of interest in the collection.
type Record struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	City        string      `json:"city"`
	Coordinates Coordinates `json:"coordinates"`
	// Images holds local asset paths; in practice exactly one.
	Images   []string `json:"images"`
	Visited  string   `json:"visited"`
	Notes    string   `json:"notes"`
	Rating   int      `json:"rating"`
	Category []string `json:"category"`
}

// Filled reports whether the named field carries a value.
func (r Record) Filled(field string) bool {
	switch field {
	case FieldName:
		return strings.TrimSpace(r.Name) != ""
	case FieldCity:
		return strings.TrimSpace(r.City) != ""
	case FieldCoordinates:
		return strings.TrimSpace(r.Coordinates.Lat) != "" && strings.TrimSpace(r.Coordinates.Long) != ""
	case FieldImages:
		return len(r.Images) > 0
	case FieldVisited:
		return strings.TrimSpace(r.Visited) != ""
	case FieldNotes:
		return strings.TrimSpace(r.Notes) != ""
	case FieldRating:
		return r.Rating > 0
	case FieldCategory:
		return len(r.Category) > 0
	default:
		return false
	}
}

// Complete reports whether every mandatory field is filled.
func (r Record) Complete(mandatory []string) bool {
	for _, field := range mandatory {
		if !r.Filled(field) {
			return false
		}
	}
	return true
}

// Options is the process-wide settings singleton stored next to the records.
type Options struct {
	// Category is the ordered list of known tags offered when tagging a record.
	Category []string `json:"category"`
	// Mandatory names the fields a new record must fill in.
	Mandatory []string `json:"mandatory"`
}

// IsField reports whether name is one of the known record fields.
func IsField(name string) bool {
	for _, f := range Fields {
		if f == name {
			return true
		}
	}
	return false
}

package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecordComplete(t *testing.T) {
	full := Record{
		ID:          "r1",
		Name:        "Karlstejn",
		City:        "Karlstejn",
		Coordinates: Coordinates{Lat: "49.939", Long: "14.188"},
		Images:      []string{"/data/assets/r1.jpg"},
		Visited:     "2020-07-14",
		Notes:       "crowded",
		Rating:      8,
		Category:    []string{"castle"},
	}

	tests := []struct {
		name      string
		record    Record
		mandatory []string
		want      bool
	}{
		{"no mandatory fields", Record{ID: "x"}, nil, true},
		{"all fields filled", full, Fields, true},
		{"missing city", Record{ID: "x", Name: "a"}, []string{FieldName, FieldCity}, false},
		{"blank name counts as empty", Record{ID: "x", Name: "   "}, []string{FieldName}, false},
		{"half coordinates", Record{ID: "x", Coordinates: Coordinates{Lat: "1"}}, []string{FieldCoordinates}, false},
		{"zero rating", Record{ID: "x"}, []string{FieldRating}, false},
		{"unknown field never filled", full, []string{"colour"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.record.Complete(tt.mandatory))
		})
	}
}

func TestIsField(t *testing.T) {
	assert.True(t, IsField(FieldVisited))
	assert.False(t, IsField("id"))
}

func TestPropertiesClone(t *testing.T) {
	var nilProps Properties
	assert.Nil(t, nilProps.Clone())

	p := Properties{"records": "3"}
	c := p.Clone()
	c["records"] = "4"
	assert.Equal(t, "3", p["records"])
}

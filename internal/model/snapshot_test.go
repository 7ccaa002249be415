package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeSnapshot_EmptyCollection(t *testing.T) {
	data, err := EncodeSnapshot(&Snapshot{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"options":{"category":[],"mandatory":[]},"collection":{"records":[]}}`, string(data))
}

func TestDecodeSnapshot_RoundTrip(t *testing.T) {
	in := &Snapshot{
		Options: Options{Category: []string{"castle", "cave"}, Mandatory: []string{FieldName}},
		Collection: Collection{Records: []Record{{
			ID:       "r1",
			Name:     "Macocha",
			Images:   []string{"/assets/r1.jpg"},
			Rating:   9,
			Category: []string{"cave"},
		}}},
	}
	data, err := EncodeSnapshot(in)
	require.NoError(t, err)

	out, err := DecodeSnapshot(data)
	require.NoError(t, err)
	assert.Equal(t, in.Options, out.Options)
	require.Len(t, out.Collection.Records, 1)
	assert.Equal(t, "Macocha", out.Collection.Records[0].Name)
	assert.Equal(t, []string{"/assets/r1.jpg"}, out.Collection.Records[0].Images)
}

func TestDecodeSnapshot_Malformed(t *testing.T) {
	bodies := map[string]string{
		"not json":          `<html>`,
		"missing options":   `{"collection":{"records":[]}}`,
		"missing records":   `{"options":{},"collection":{}}`,
		"null collection":   `{"options":{},"collection":null}`,
		"record without id": `{"options":{},"collection":{"records":[{"name":"x"}]}}`,
		"wrong types":       `{"options":{"category":"castle"},"collection":{"records":[]}}`,
		"rating too high":   `{"options":{},"collection":{"records":[{"id":"a","rating":11}]}}`,
		"negative rating":   `{"options":{},"collection":{"records":[{"id":"a","rating":-1}]}}`,
		"duplicate ids":     `{"options":{},"collection":{"records":[{"id":"a"},{"id":"a"}]}}`,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeSnapshot([]byte(body))
			require.ErrorIs(t, err, ErrMalformedSnapshot)
		})
	}
}

func TestDecodeSnapshot_RatingBounds(t *testing.T) {
	for _, rating := range []int{0, MaxRating} {
		data, err := EncodeSnapshot(&Snapshot{Collection: Collection{Records: []Record{{ID: "a", Rating: rating}}}})
		require.NoError(t, err)
		_, err = DecodeSnapshot(data)
		assert.NoError(t, err, "rating %d", rating)
	}
}

package model

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedSnapshot is returned when a serialized snapshot does not have
// the expected shape.
var ErrMalformedSnapshot = errors.New("malformed snapshot")

// Collection wraps the record list the same way the device database does.
type Collection struct {
	Records []Record `json:"records"`
}

// Snapshot is the whole local database: options plus every record.
type Snapshot struct {
	Options    Options    `json:"options"`
	Collection Collection `json:"collection"`
}

// snapshotDocument mirrors Snapshot with pointers so missing sections can be
// told apart from empty ones while decoding.
type snapshotDocument struct {
	Options    *Options `json:"options"`
	Collection *struct {
		Records *[]Record `json:"records"`
	} `json:"collection"`
}

// EncodeSnapshot serializes s. Nil slices are written as empty arrays.
func EncodeSnapshot(s *Snapshot) ([]byte, error) {
	out := Snapshot{
		Options: Options{
			Category:  nonNil(s.Options.Category),
			Mandatory: nonNil(s.Options.Mandatory),
		},
		Collection: Collection{Records: make([]Record, 0, len(s.Collection.Records))},
	}
	for _, r := range s.Collection.Records {
		r.Images = nonNil(r.Images)
		r.Category = nonNil(r.Category)
		out.Collection.Records = append(out.Collection.Records, r)
	}
	data, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return data, nil
}

// DecodeSnapshot parses data into a Snapshot. It fails with
// ErrMalformedSnapshot when the body is not JSON, a section is missing, or a
// record breaks the data model: no id, an id used twice, or a rating outside
// 0..MaxRating.
func DecodeSnapshot(data []byte) (*Snapshot, error) {
	var doc snapshotDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSnapshot, err)
	}
	if doc.Options == nil {
		return nil, fmt.Errorf("%w: missing options", ErrMalformedSnapshot)
	}
	if doc.Collection == nil || doc.Collection.Records == nil {
		return nil, fmt.Errorf("%w: missing collection records", ErrMalformedSnapshot)
	}
	records := *doc.Collection.Records
	seen := make(map[string]bool, len(records))
	for i, r := range records {
		if r.ID == "" {
			return nil, fmt.Errorf("%w: record %d has no id", ErrMalformedSnapshot, i)
		}
		if seen[r.ID] {
			return nil, fmt.Errorf("%w: duplicate record id %q", ErrMalformedSnapshot, r.ID)
		}
		seen[r.ID] = true
		if r.Rating < 0 || r.Rating > MaxRating {
			return nil, fmt.Errorf("%w: record %q has rating %d", ErrMalformedSnapshot, r.ID, r.Rating)
		}
	}
	return &Snapshot{
		Options:    *doc.Options,
		Collection: Collection{Records: records},
	}, nil
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}

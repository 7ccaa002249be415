// Package geotag pulls GPS coordinates out of a photo's EXIF block.
package geotag

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/rwcarlsen/goexif/exif"

	"github.com/dharsanguruparan/Waypoint/internal/model"
)

// ErrNoLocation is returned when the image has no usable GPS tags.
var ErrNoLocation = errors.New("no gps location in image")

// Decode reads EXIF from r (JPEG, TIFF or a raw EXIF block) and returns the
// coordinates as six-decimal strings.
func Decode(r io.Reader) (model.Coordinates, error) {
	x, err := exif.Decode(r)
	if err != nil {
		return model.Coordinates{}, fmt.Errorf("%w: %v", ErrNoLocation, err)
	}
	lat, long, err := x.LatLong()
	if err != nil {
		return model.Coordinates{}, fmt.Errorf("%w: %v", ErrNoLocation, err)
	}
	return model.Coordinates{
		Lat:  strconv.FormatFloat(lat, 'f', 6, 64),
		Long: strconv.FormatFloat(long, 'f', 6, 64),
	}, nil
}

// FromBytes is Decode over an in-memory image.
func FromBytes(data []byte) (model.Coordinates, error) {
	return Decode(bytes.NewReader(data))
}

package remote

import (
	"net/url"
	"strings"

	"github.com/dharsanguruparan/Waypoint/internal/model"
)

// Object stores keep a file's name and properties in user metadata headers.
// Header values must be plain ASCII, so every value is query-escaped, and
// header names are case-insensitive, so property keys come back lowercased.
const (
	metaName       = "name"
	metaPropPrefix = "prop-"
	amzMetaPrefix  = "x-amz-meta-"
)

// EncodeMetadata turns a name and property bag into object user metadata.
func EncodeMetadata(name string, props model.Properties) map[string]string {
	out := make(map[string]string, len(props)+1)
	out[metaName] = url.QueryEscape(name)
	for k, v := range props {
		out[metaPropPrefix+strings.ToLower(k)] = url.QueryEscape(v)
	}
	return out
}

// DecodeMetadata is the inverse of EncodeMetadata. It tolerates canonicalized
// header casing and the x-amz-meta- prefix some clients leave in place.
func DecodeMetadata(meta map[string]string) (string, model.Properties) {
	var name string
	var props model.Properties
	for k, v := range meta {
		key := strings.TrimPrefix(strings.ToLower(k), amzMetaPrefix)
		val, err := url.QueryUnescape(v)
		if err != nil {
			val = v
		}
		switch {
		case key == metaName:
			name = val
		case strings.HasPrefix(key, metaPropPrefix):
			if props == nil {
				props = make(model.Properties)
			}
			props[strings.TrimPrefix(key, metaPropPrefix)] = val
		}
	}
	return name, props
}

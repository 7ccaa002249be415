package backup

import (
	"strconv"
	"time"

	"github.com/dharsanguruparan/Waypoint/internal/model"
)

// Info summarizes a remote listing for display.
type Info struct {
	Exists   bool      `json:"exists"`
	Records  int       `json:"records"`
	Modified time.Time `json:"modified,omitempty"`
	Size     int64     `json:"size"`
	Files    int       `json:"files"`
}

// Describe computes Info from a listing. Records and Modified come from the
// database file; Size counts every listed file.
func Describe(files []model.RemoteFile) Info {
	info := Info{Files: len(files)}
	found := false
	for _, f := range files {
		info.Size += f.Size
		if f.Name != DatabaseName || found {
			continue
		}
		found = true
		info.Exists = true
		info.Modified = f.Modified
		if n, err := strconv.Atoi(f.Properties[RecordsProperty]); err == nil {
			info.Records = n
		}
	}
	return info
}

package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/dharsanguruparan/Waypoint/internal/backup"
	"github.com/dharsanguruparan/Waypoint/internal/collection"
	"github.com/dharsanguruparan/Waypoint/internal/model"
)

var (
	successColor = color.New(color.FgGreen)
	warnColor    = color.New(color.FgYellow)
	labelColor   = color.New(color.FgCyan)
	faintColor   = color.New(color.Faint)
)

func success(w io.Writer, format string, args ...any) {
	successColor.Fprintf(w, format, args...)
}

func faint(w io.Writer, format string, args ...any) {
	faintColor.Fprintf(w, format, args...)
}

func field(w io.Writer, label string, value any) {
	labelColor.Fprintf(w, "%-12s", label)
	fmt.Fprintf(w, "%v\n", value)
}

func printEntryLine(w io.Writer, e collection.Entry) {
	fmt.Fprintf(w, "%s  %-24s %-16s %2d/%d", e.ID, e.Name, e.City, e.Rating, model.MaxRating)
	if !e.Complete {
		warnColor.Fprint(w, "  incomplete")
	}
	fmt.Fprintln(w)
}

func printEntry(w io.Writer, e collection.Entry) {
	field(w, "id", e.ID)
	field(w, "name", e.Name)
	field(w, "city", e.City)
	if !e.Coordinates.IsZero() {
		field(w, "coordinates", e.Coordinates.Lat+", "+e.Coordinates.Long)
	}
	field(w, "visited", e.Visited)
	field(w, "rating", fmt.Sprintf("%d/%d", e.Rating, model.MaxRating))
	field(w, "category", strings.Join(e.Category, ", "))
	field(w, "images", strings.Join(e.Images, ", "))
	if e.Notes != "" {
		field(w, "notes", e.Notes)
	}
	if !e.Complete {
		warnColor.Fprintln(w, "missing mandatory fields")
	}
}

func printOptions(w io.Writer, o model.Options) {
	field(w, "categories", strings.Join(o.Category, ", "))
	field(w, "mandatory", strings.Join(o.Mandatory, ", "))
}

func printInfo(w io.Writer, info backup.Info) {
	if !info.Exists {
		warnColor.Fprintln(w, "no backup found")
		return
	}
	field(w, "records", info.Records)
	field(w, "modified", info.Modified.Local().Format(time.DateTime))
	field(w, "files", info.Files)
	field(w, "size", fmt.Sprintf("%d bytes", info.Size))
}

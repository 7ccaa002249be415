package main

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dharsanguruparan/Waypoint/internal/collection"
	"github.com/dharsanguruparan/Waypoint/internal/model"
)

func newRecordCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "record",
		Aliases: []string{"records"},
		Short:   "Create, inspect and edit places",
	}
	cmd.AddCommand(
		newRecordAddCmd(c),
		newRecordListCmd(c),
		newRecordShowCmd(c),
		newRecordEditCmd(c),
		newRecordDeleteCmd(c),
	)
	return cmd
}

// recordFlags are shared by add and edit.
type recordFlags struct {
	name, city, lat, long string
	visited, notes, image string
	rating                int
	category              []string
}

func (f *recordFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.name, "name", "", "Place name")
	cmd.Flags().StringVar(&f.city, "city", "", "City")
	cmd.Flags().StringVar(&f.lat, "lat", "", "Latitude in decimal degrees")
	cmd.Flags().StringVar(&f.long, "long", "", "Longitude in decimal degrees")
	cmd.Flags().StringVar(&f.visited, "visited", "", "Visit date")
	cmd.Flags().StringVar(&f.notes, "notes", "", "Free-form notes")
	cmd.Flags().StringVar(&f.image, "image", "", "Photo to attach")
	cmd.Flags().IntVar(&f.rating, "rating", 0, "Rating from 0 to 10")
	cmd.Flags().StringSliceVar(&f.category, "category", nil, "Category tags (repeatable)")
}

func newRecordAddCmd(c *cli) *cobra.Command {
	var f recordFlags
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a place to the collection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := c.app.Records.Create(cmd.Context(), collection.Draft{
				Name:        f.name,
				City:        f.city,
				Coordinates: model.Coordinates{Lat: f.lat, Long: f.long},
				Visited:     f.visited,
				Notes:       f.notes,
				Rating:      f.rating,
				Category:    f.category,
			}, f.image)
			if err != nil {
				return err
			}
			success(cmd.OutOrStdout(), "added %s\n", r.ID)
			return nil
		},
	}
	f.register(cmd)
	return cmd
}

func newRecordListCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the collection in order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := c.app.Records.List(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				faint(out, "no records\n")
				return nil
			}
			for _, e := range entries {
				printEntryLine(out, e)
			}
			return nil
		},
	}
}

func newRecordShowCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one place",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := c.app.Records.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printEntry(cmd.OutOrStdout(), e)
			return nil
		},
	}
}

func newRecordEditCmd(c *cli) *cobra.Command {
	var f recordFlags
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Change fields of a place; unset flags are kept",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := f.patch(cmd)
			if err != nil {
				return err
			}
			r, err := c.app.Records.Update(cmd.Context(), args[0], p)
			if err != nil {
				return err
			}
			success(cmd.OutOrStdout(), "updated %s\n", r.ID)
			return nil
		},
	}
	f.register(cmd)
	return cmd
}

func (f *recordFlags) patch(cmd *cobra.Command) (collection.Patch, error) {
	changed := cmd.Flags().Changed
	var p collection.Patch
	if changed("lat") != changed("long") {
		return p, errors.New("--lat and --long must be given together")
	}
	if changed("name") {
		p.Name = &f.name
	}
	if changed("city") {
		p.City = &f.city
	}
	if changed("lat") {
		p.Coordinates = &model.Coordinates{Lat: f.lat, Long: f.long}
	}
	if changed("visited") {
		p.Visited = &f.visited
	}
	if changed("notes") {
		p.Notes = &f.notes
	}
	if changed("rating") {
		p.Rating = &f.rating
	}
	if changed("category") {
		p.Category = &f.category
	}
	p.Image = strings.TrimSpace(f.image)
	return p, nil
}

func newRecordDeleteCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Remove a place and its photos",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.app.Records.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			success(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	}
}

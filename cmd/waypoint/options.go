package main

import (
	"github.com/spf13/cobra"

	"github.com/dharsanguruparan/Waypoint/internal/model"
)

func newOptionsCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "options",
		Short: "Manage categories and mandatory fields",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print the current options",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				opts, err := c.app.Records.Options(cmd.Context())
				if err != nil {
					return err
				}
				printOptions(cmd.OutOrStdout(), opts)
				return nil
			},
		},
		newCategoryCmd(c),
		newMandatoryCmd(c),
	)
	return cmd
}

func newCategoryCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "category",
		Short: "Edit the list of known categories",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "add <name>",
			Short: "Add a category",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				opts, err := c.app.Records.AddCategory(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				printOptions(cmd.OutOrStdout(), opts)
				return nil
			},
		},
		&cobra.Command{
			Use:   "remove <name>",
			Short: "Remove a category; records keep their tags",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				opts, err := c.app.Records.RemoveCategory(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				printOptions(cmd.OutOrStdout(), opts)
				return nil
			},
		},
	)
	return cmd
}

func newMandatoryCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mandatory",
		Short: "Choose the fields a new record must fill in",
	}
	cmd.AddCommand(&cobra.Command{
		Use:       "set [field...]",
		Short:     "Replace the mandatory fields; no arguments clears them",
		ValidArgs: model.Fields,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := c.app.Records.SetMandatory(cmd.Context(), args)
			if err != nil {
				return err
			}
			printOptions(cmd.OutOrStdout(), opts)
			return nil
		},
	})
	return cmd
}

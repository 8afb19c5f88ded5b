package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"autoposter/internal/coordinator"
	"autoposter/internal/effects"
	"autoposter/internal/models"
)

func publishCmd(a *app) *cobra.Command {
	var platform, effect string
	var scheduled bool
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish the first pending row of a queue once",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := parsePlatform(platform)
			if err != nil {
				return err
			}
			if err := a.validate(); err != nil {
				return err
			}
			d, err := a.build(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer d.Close()

			var res coordinator.Result
			if scheduled {
				res, err = d.coord.PublishScheduled(cmd.Context(), p, models.TriggerScheduled)
			} else {
				res, err = d.coord.Publish(cmd.Context(), p, effect)
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.Message)
			if !res.Published() {
				return fmt.Errorf("nothing published: %s", res.State)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&platform, "platform", "twitter", "twitter or instagram")
	cmd.Flags().StringVar(&effect, "effect", effects.Original, "original, greyscale, blur or contrast")
	cmd.Flags().BoolVar(&scheduled, "scheduled", false, "run the unattended flow (original image, scheduled trigger)")
	return cmd
}

func discardCmd(a *app) *cobra.Command {
	var platform string
	cmd := &cobra.Command{
		Use:   "discard",
		Short: "Mark the first pending row of a queue as discarded",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := parsePlatform(platform)
			if err != nil {
				return err
			}
			if err := a.validate(); err != nil {
				return err
			}
			d, err := a.build(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer d.Close()

			res, err := d.coord.Discard(cmd.Context(), p)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.Message)
			if res.State != coordinator.StateDiscarded {
				return fmt.Errorf("nothing discarded: %s", res.State)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&platform, "platform", "twitter", "twitter or instagram")
	return cmd
}

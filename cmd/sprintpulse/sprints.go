package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var sprintsCmd = &cobra.Command{
	Use:   "sprints",
	Short: "List the sprints of the configured board",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.JiraBoardID <= 0 {
			return errors.New("JIRA_BOARD_ID is not set")
		}
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		sprints, err := a.svc.ListSprints(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("%-10s\t%-8s\t%s\n", "ID", "STATE", "NAME")
		for _, s := range sprints {
			fmt.Printf("%-10s\t%-8s\t%s\n", s.ID, s.State, s.Name)
		}
		return nil
	},
}

package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/HamedShams/sprint-pulse/internal/services"
	"github.com/spf13/cobra"
)

var exportActive bool

var exportCmd = &cobra.Command{
	Use:   "export [sprint-id...]",
	Short: "Export status periods of sprints and refresh the summary",
	Long: `Exports the given sprint ids in order. Without ids the SPRINT_IDS setting is used, and when
that is empty too the active sprint of JIRA_BOARD_ID is exported.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ids := make([]int64, 0, len(args))
		for _, a := range args {
			id, err := strconv.ParseInt(a, 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid sprint id %q", a)
			}
			ids = append(ids, id)
		}
		if exportActive && len(ids) > 0 {
			return errors.New("--active cannot be combined with sprint ids")
		}

		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		ok, err := a.locker.TryAdvisoryLock(ctx, services.ExportLockKey)
		if err != nil {
			return err
		}
		if !ok {
			return errors.New("another export is running")
		}
		defer func() { _ = a.locker.AdvisoryUnlock(context.Background(), services.ExportLockKey) }()

		var res services.RunResult
		if exportActive {
			res, err = a.svc.RunActive(ctx)
		} else {
			res, err = a.svc.Run(ctx, ids)
		}
		for _, e := range res.Exports {
			fmt.Printf("%-30s\t%d issues\t%d skipped\t%d periods\n", e.Sprint.Name, e.Issues, e.Skipped, len(e.Records))
		}
		return err
	},
}

func init() {
	exportCmd.Flags().BoolVar(&exportActive, "active", false, "export the board's active sprint even when SPRINT_IDS is set")
}

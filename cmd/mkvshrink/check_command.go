package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"mkvshrink/internal/notifications"
	"mkvshrink/internal/preflight"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify ffmpeg, ffprobe and the configured directories",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			statuses := preflight.CheckSystemDeps(cmd.Context(), cfg)
			missing := 0
			rows := make([][]string, 0, len(statuses))
			for _, st := range statuses {
				state := "ok"
				detail := st.Version
				if !st.Available {
					state = "missing"
					detail = st.Detail
					if !st.Optional {
						missing++
					}
				}
				rows = append(rows, []string{st.Name, state, st.Command, detail})
			}
			fmt.Fprintln(out, renderTable([]string{"Tool", "Status", "Path", "Detail"}, rows, nil))

			results := preflight.RunAll(cmd.Context(), cfg)
			rows = rows[:0]
			for _, r := range results {
				rows = append(rows, []string{r.Name, passLabel(r.Passed), r.Detail})
			}
			fmt.Fprintln(out, renderTable([]string{"Check", "Status", "Detail"}, rows, nil))

			failed := len(preflight.Failed(results))
			if missing > 0 || failed > 0 {
				return fmt.Errorf("%d tool(s) missing, %d check(s) failed", missing, failed)
			}
			fmt.Fprintln(out, "All checks passed")
			return nil
		},
	}
}

func newTestNotifyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "test-notify",
		Short: "Send a test notification",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if cfg.Notifications.NtfyTopic == "" {
				return errors.New("notifications.ntfy_topic is not set")
			}
			if err := notifications.NewService(cfg).TestNotification(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Test notification sent")
			return nil
		},
	}
}

func passLabel(passed bool) string {
	if passed {
		return "ok"
	}
	return "failed"
}

package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"mkvshrink/internal/config"
	"mkvshrink/internal/media/ffprobe"
	"mkvshrink/internal/settings"
)

func newInfoCommand(ctx *commandContext) *cobra.Command {
	flags := &settingsFlags{}
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "info <file>",
		Short: "Show media details and the estimated compressed size",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			s, err := ctx.resolveSettings(cmd, flags)
			if err != nil {
				return err
			}
			path, err := config.ExpandPath(strings.TrimSpace(args[0]))
			if err != nil {
				return err
			}

			info, err := ffprobe.Prober{Binary: cfg.FFprobeBinary()}.Probe(cmd.Context(), path)
			if err != nil {
				return err
			}
			estimate := settings.EstimateOutputSize(s, info.Size, info.Width, info.Height, info.Duration)

			if jsonOutput {
				return writeJSON(cmd, struct {
					ffprobe.VideoInfo
					Settings      string `json:"settings"`
					EstimatedSize int64  `json:"estimated_size"`
				}{info, s.String(), estimate})
			}

			fmt.Fprintln(cmd.OutOrStdout(), renderKeyValues([][2]string{
				{"File", info.Filename},
				{"Container", info.Container},
				{"Duration", formatElapsed(secondsToDuration(info.Duration))},
				{"Resolution", info.Resolution()},
				{"Frame rate", fmt.Sprintf("%.3f fps", info.FrameRate)},
				{"Video codec", info.VideoCodec},
				{"Audio codec", info.AudioCodec},
				{"Bitrate", formatRate(info.BitRate)},
				{"Size", formatBytes(info.Size)},
				{"Settings", s.String()},
				{"Estimated output", fmt.Sprintf("%s (%s)", formatBytes(estimate), formatRatio(ratio(estimate, info.Size)))},
			}))
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print as JSON")
	return cmd
}

func ratio(out, in int64) float64 {
	if in <= 0 {
		return 0
	}
	return float64(out) / float64(in)
}

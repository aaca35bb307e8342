package main

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"mkvshrink/internal/settings"
)

func newPresetsCommand(ctx *commandContext) *cobra.Command {
	presetsCmd := &cobra.Command{
		Use:     "presets",
		Aliases: []string{"preset"},
		Short:   "List, inspect and manage compression presets",
	}
	presetsCmd.AddCommand(newPresetsListCommand(ctx))
	presetsCmd.AddCommand(newPresetsShowCommand(ctx))
	presetsCmd.AddCommand(newPresetsSaveCommand(ctx))
	presetsCmd.AddCommand(newPresetsDeleteCommand(ctx))
	return presetsCmd
}

func newPresetsListCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List built-in and saved presets",
		RunE: func(cmd *cobra.Command, args []string) error {
			presets, err := ctx.presets(cmd)
			if err != nil {
				return err
			}
			if jsonOutput {
				type presetJSON struct {
					Name        string         `json:"name"`
					Description string         `json:"description,omitempty"`
					BuiltIn     bool           `json:"built_in"`
					Settings    map[string]any `json:"settings"`
				}
				out := make([]presetJSON, 0, len(presets))
				for _, p := range presets {
					s, err := p.Settings()
					if err != nil {
						return err
					}
					out = append(out, presetJSON{Name: p.Name, Description: p.Description, BuiltIn: p.BuiltIn, Settings: s.ToMap()})
				}
				return writeJSON(cmd, out)
			}

			rows := make([][]string, 0, len(presets))
			for _, p := range presets {
				rows = append(rows, []string{
					p.Name,
					p.Description,
					p.Params.VideoCodec,
					strconv.Itoa(p.Params.CRF),
					p.Params.Speed,
					yesNo(p.BuiltIn),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Name", "Description", "Codec", "CRF", "Speed", "Built-in"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
			))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print as JSON")
	return cmd
}

func newPresetsShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <name>",
		Short: "Show every setting of a preset",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			presets, err := ctx.presets(cmd)
			if err != nil {
				return err
			}
			name := strings.Join(args, " ")
			p, ok := settings.FindPreset(presets, name)
			if !ok {
				return fmt.Errorf("unknown preset %q (see `mkvshrink presets list`)", name)
			}
			s, err := p.Settings()
			if err != nil {
				return err
			}
			values := s.ToMap()
			keys := make([]string, 0, len(values))
			for k := range values {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			pairs := [][2]string{{"name", p.Name}, {"description", p.Description}, {"built_in", yesNo(p.BuiltIn)}}
			for _, k := range keys {
				pairs = append(pairs, [2]string{k, fmt.Sprint(values[k])})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderKeyValues(pairs))
			return nil
		},
	}
}

func newPresetsSaveCommand(ctx *commandContext) *cobra.Command {
	flags := &settingsFlags{}
	var description string

	cmd := &cobra.Command{
		Use:   "save <name>",
		Short: "Save the current settings as a named preset",
		Long: `Save a preset built from --preset (or the configured preset) with any
override flags applied on top. Saving an existing name replaces it.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := ctx.resolveSettings(cmd, flags)
			if err != nil {
				return err
			}
			store, err := ctx.presetStore()
			if err != nil {
				return err
			}
			name := strings.Join(args, " ")
			if err := store.Save(settings.Preset{Name: name, Description: description, Params: s.Params()}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved preset %q to %s\n", strings.Join(strings.Fields(name), " "), store.Path())
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&description, "description", "", "Short description shown in presets list")
	return cmd
}

func newPresetsDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a saved preset",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.presetStore()
			if err != nil {
				return err
			}
			name := strings.Join(args, " ")
			if _, ok := settings.FindPreset(settings.BuiltinPresets(), name); ok {
				return errors.New("built-in presets cannot be deleted")
			}
			removed, err := store.Delete(name)
			if err != nil {
				return err
			}
			if !removed {
				return fmt.Errorf("no saved preset named %q", name)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted preset %q\n", name)
			return nil
		},
	}
}

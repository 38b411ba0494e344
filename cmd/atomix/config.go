// SPDX-License-Identifier: EPL-2.0

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ik5/atomix/engine"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
	Long:  "Commands for showing and validating the atomix configuration.",
}

// configValidateCmd validates the current configuration
var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration",
	Long:  "Validate the current configuration file, environment variables and flags.",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, log, err := loadSettings()
		if err != nil {
			return err
		}

		log.Debug("Configuration is valid")
		fmt.Fprintln(cmd.OutOrStdout(), "Configuration is valid")
		return nil
	},
}

// configShowCmd shows the current configuration
var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  "Display the resolved configuration and the engine work size it implies.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadSettings()
		if err != nil {
			return err
		}

		ec, err := cfg.EngineConfig(log)
		if err != nil {
			return err
		}
		size, err := engine.CalculateWorkSize(ec)
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		fmt.Fprintln(w, "Current Configuration:")
		fmt.Fprintf(w, "  Engine:\n")
		fmt.Fprintf(w, "    Sampling rate: %d Hz\n", cfg.Engine.SamplingRate)
		fmt.Fprintf(w, "    Server frequency: %d Hz (%d frames per tick)\n", cfg.Engine.ServerFrequency, ec.FramesPerTick())
		fmt.Fprintf(w, "    Speaker mapping: %s\n", cfg.Engine.SpeakerMapping)
		fmt.Fprintf(w, "    Renderer: %s\n", cfg.Engine.Renderer)
		fmt.Fprintf(w, "    Server mode: %s\n", cfg.Engine.ServerMode)
		fmt.Fprintf(w, "    Buses: %d, racks: %d\n", cfg.Engine.NumBuses, cfg.Engine.MaxRacks)
		fmt.Fprintf(w, "    Work size: %d bytes\n", size)
		fmt.Fprintf(w, "  Voices:\n")
		for _, p := range ec.VoicePools {
			fmt.Fprintf(w, "    Pool %s: %d voices, %d channels, %d Hz\n", p.Name, p.NumVoices, p.MaxChannels, p.MaxSamplingRate)
		}
		if len(ec.VoicePools) == 0 {
			fmt.Fprintf(w, "    Pool %s (default): %d voices\n", engine.DefaultVoicePool.Name, engine.DefaultVoicePool.NumVoices)
		}
		for _, g := range ec.LimitGroups {
			fmt.Fprintf(w, "    Limit group %s: %d voices\n", g.Name, g.MaxVoices)
		}
		if cfg.BusSetting != nil {
			fmt.Fprintf(w, "  Bus setting: %s (%d buses)\n", cfg.BusSetting.Name, len(cfg.BusSetting.Buses))
		}
		fmt.Fprintf(w, "  Fader: in %d ms, out %d ms\n", cfg.Fader.FadeInTimeMS, cfg.Fader.FadeOutTimeMS)
		fmt.Fprintf(w, "  Output:\n")
		fmt.Fprintf(w, "    Backend: %s\n", cfg.Output.Backend)
		fmt.Fprintf(w, "    Format: %s\n", cfg.Output.Format)
		fmt.Fprintf(w, "    Buffer: %d ms\n", cfg.Output.BufferMS)
		fmt.Fprintf(w, "  Logging:\n")
		fmt.Fprintf(w, "    Level: %s\n", cfg.Logging.Level)
		fmt.Fprintf(w, "    Format: %s\n", cfg.Logging.Format)

		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configValidateCmd)
	configCmd.AddCommand(configShowCmd)
}

// SPDX-License-Identifier: EPL-2.0

package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ik5/atomix/config"
	"github.com/ik5/atomix/logger"
)

var (
	cfgFile string
	verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "atomix",
	Short: "A realtime audio mixing engine",
	Long: `Atomix mixes audio files through voices, buses and DSP effects.

Inputs are decoded (wav, mp3, ogg, aiff), started as players and mixed into
the default rack. The mix is either rendered into a WAV file or played on the
system audio device.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	flags.Int("sample-rate", 48000, "engine sampling rate in Hz")
	flags.Int("server-frequency", 60, "server ticks per second")
	flags.String("speaker-mapping", "stereo", "output layout (mono, stereo, quad, 5.1, 7.1)")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "text", "log format (text, json)")

	// Bind flags to viper
	_ = viper.BindPFlag("engine.sampling_rate", flags.Lookup("sample-rate"))
	_ = viper.BindPFlag("engine.server_frequency", flags.Lookup("server-frequency"))
	_ = viper.BindPFlag("engine.speaker_mapping", flags.Lookup("speaker-mapping"))
	_ = viper.BindPFlag("logging.level", flags.Lookup("log-level"))
	_ = viper.BindPFlag("logging.format", flags.Lookup("log-format"))
}

// initConfig applies global flags that override the configuration.
func initConfig() {
	if verbose {
		viper.Set("logging.level", "debug")
	}
}

// loadSettings loads and validates the configuration and builds the logger
// every command logs through.
func loadSettings() (*config.Config, *logrus.Logger, error) {
	cfg, err := config.LoadConfig(viper.GetViper(), cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	log, err := logger.New(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to setup logging: %w", err)
	}

	return cfg, log, nil
}

// SPDX-License-Identifier: EPL-2.0

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ik5/atomix/engine"
	"github.com/ik5/atomix/output"
)

var playOpts struct {
	voiceOptions
	duration time.Duration
}

// playCmd plays the mix on the system audio device
var playCmd = &cobra.Command{
	Use:   "play [flags] input...",
	Short: "Play a mix of the inputs on the audio device",
	Long: `Play starts every input on the engine and plays the default rack through
the oto or beep backend until every input ends, --duration passes or the
process is interrupted. The device drives the server, so the engine runs in
on-demand mode whatever the configuration says.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPlay,
}

func init() {
	rootCmd.AddCommand(playCmd)

	flags := playCmd.Flags()
	playOpts.register(flags)
	flags.DurationVarP(&playOpts.duration, "duration", "d", 0, "stop after this long")
	flags.String("backend", "oto", "output backend (oto, beep)")
	flags.String("format", "float32", "device sample format (float32, int16)")
	flags.Int("buffer-ms", 100, "device buffer length in milliseconds")

	_ = viper.BindPFlag("output.backend", flags.Lookup("backend"))
	_ = viper.BindPFlag("output.format", flags.Lookup("format"))
	_ = viper.BindPFlag("output.buffer_ms", flags.Lookup("buffer-ms"))
}

func runPlay(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadSettings()
	if err != nil {
		return err
	}

	ec, err := cfg.EngineConfig(log)
	if err != nil {
		return err
	}
	if ec.ServerMode != engine.ServerOnDemand {
		log.WithField("server_mode", ec.ServerMode.String()).Debug("Switching to on-demand server mode")
		ec.ServerMode = engine.ServerOnDemand
	}

	s, err := newSession(cfg, ec, log)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.start(cfg, args, playOpts.voiceOptions); err != nil {
		return err
	}

	format, err := output.ParseSampleFormat(cfg.Output.Format)
	if err != nil {
		return err
	}
	dev, err := output.Open(s.e.DefaultRack(), output.Options{
		Backend: cfg.Output.Backend,
		Format:  format,
		Buffer:  time.Duration(cfg.Output.BufferMS) * time.Millisecond,
		Logger:  log,
	})
	if err != nil {
		return fmt.Errorf("failed to open output: %w", err)
	}
	defer dev.Close()

	if err := dev.Start(); err != nil {
		return fmt.Errorf("failed to start output: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if playOpts.duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, playOpts.duration)
		defer cancel()
	}

	waitPlayback(ctx, s, time.Duration(cfg.Output.BufferMS)*time.Millisecond)

	s.log.WithFields(logrus.Fields{
		"server_time": s.e.ServerTime().String(),
		"underruns":   s.e.DefaultRack().Underruns(),
	}).Info("Playback finished")

	return nil
}

// waitPlayback blocks until every input ended and the device buffer had time
// to drain, or ctx is done.
func waitPlayback(ctx context.Context, s *session, drain time.Duration) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.done() {
				select {
				case <-ctx.Done():
				case <-time.After(drain):
				}
				return
			}
		}
	}
}

// SPDX-License-Identifier: EPL-2.0

package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ik5/atomix"
	"github.com/ik5/atomix/analyzer"
	"github.com/ik5/atomix/bus"
	"github.com/ik5/atomix/engine"
)

var renderOpts struct {
	voiceOptions
	output   string
	duration time.Duration
	bits     int
	meter    bool
}

// renderCmd mixes the inputs offline into a WAV file
var renderCmd = &cobra.Command{
	Use:   "render [flags] input...",
	Short: "Render a mix of the inputs to a WAV file",
	Long: `Render starts every input on the engine and runs the server offline until
the longest input ends, or for --duration, writing the default rack to a PCM
WAV file.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRender,
}

func init() {
	rootCmd.AddCommand(renderCmd)

	flags := renderCmd.Flags()
	renderOpts.register(flags)
	flags.StringVarP(&renderOpts.output, "output", "o", "", "output WAV file")
	flags.DurationVarP(&renderOpts.duration, "duration", "d", 0, "render length (default is the longest input)")
	flags.IntVar(&renderOpts.bits, "bits", 16, "output bit depth (8, 16, 24, 32)")
	flags.BoolVar(&renderOpts.meter, "meter", false, "print loudness and true peak of the mix")
	_ = renderCmd.MarkFlagRequired("output")
}

func runRender(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadSettings()
	if err != nil {
		return err
	}

	ec, err := cfg.EngineConfig(log)
	if err != nil {
		return err
	}

	s, err := newSession(cfg, ec, log)
	if err != nil {
		return err
	}
	defer s.Close()

	rack := s.e.DefaultRack()
	var (
		loudness *analyzer.Loudness
		peak     *analyzer.TruePeak
	)
	if renderOpts.meter {
		master := rack.Graph().Master()
		if loudness, err = rack.AttachLoudnessMeter(master, analyzer.LoudnessConfig{}); err != nil {
			return err
		}
		if peak, err = rack.AttachTruePeakMeter(master); err != nil {
			return err
		}
	}

	if err := s.start(cfg, args, renderOpts.voiceOptions); err != nil {
		return err
	}

	length := renderOpts.duration
	if length == 0 {
		length = s.length
	}
	if length == 0 {
		return errors.New("an input loops forever, set --duration")
	}

	out, err := os.Create(renderOpts.output)
	if err != nil {
		return fmt.Errorf("failed to create output: %w", err)
	}
	defer out.Close()

	started := time.Now()
	if err := atomix.RenderToWAV(out, s.e, engine.RackIDDefault, length, renderOpts.bits); err != nil {
		return fmt.Errorf("failed to render: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"output":    renderOpts.output,
		"length":    length.String(),
		"elapsed":   time.Since(started).String(),
		"underruns": rack.Underruns(),
	}).Info("Render finished")

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Wrote %s (%s, %d Hz, %d channels)\n",
		renderOpts.output, length, rack.SampleRate(), rack.Channels())

	if renderOpts.meter {
		li := loudness.Info()
		fmt.Fprintf(w, "Integrated loudness: %.1f LUFS\n", li.Integrated)
		ti := peak.Info()
		for ch := range ti.NumChannels {
			fmt.Fprintf(w, "True peak %s: %.1f dBTP\n", channelName(rack.Mapping(), ch), ti.PeakDB[ch])
		}
	}

	return nil
}

var channelNames = map[bus.SpeakerMapping][]string{
	bus.MappingMono:   {"C"},
	bus.MappingStereo: {"L", "R"},
	bus.MappingQuad:   {"L", "R", "Ls", "Rs"},
	bus.Mapping51:     {"L", "R", "C", "LFE", "Ls", "Rs"},
	bus.Mapping71:     {"L", "R", "C", "LFE", "Ls", "Rs", "Lb", "Rb"},
}

func channelName(m bus.SpeakerMapping, ch int) string {
	if names := channelNames[m]; ch < len(names) {
		return names[ch]
	}
	return fmt.Sprintf("ch%d", ch)
}

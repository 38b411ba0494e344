// SPDX-License-Identifier: EPL-2.0

package atomix

import (
	"fmt"
	"io"
	"time"

	"github.com/ik5/atomix/engine"
	"github.com/ik5/atomix/formats/wav"
)

// RenderFrames runs server ticks and collects the given number of frames of
// one rack's output as interleaved samples. Whatever the rack had queued
// before the call comes first. Audio past the requested length stays queued.
func RenderFrames(e *engine.Engine, id engine.RackID, frames int) ([]float32, error) {
	if frames <= 0 {
		return nil, ErrInvalidLength
	}

	rack, err := e.Rack(id)
	if err != nil {
		return nil, err
	}

	out := make([]float32, frames*rack.Channels())
	n := 0
	for n < len(out) {
		if rack.Available() == 0 {
			if err := e.ExecuteServer(); err != nil {
				return out[:n], fmt.Errorf("rendering rack %d: %w", id, err)
			}
		}
		n += rack.Read(out[n:])
	}

	return out, nil
}

// RenderToWAV renders d of a rack into w as PCM WAV at bitDepth, one server
// tick at a time.
func RenderToWAV(w io.WriteSeeker, e *engine.Engine, id engine.RackID, d time.Duration, bitDepth int) error {
	rack, err := e.Rack(id)
	if err != nil {
		return err
	}

	total := int(d * time.Duration(rack.SampleRate()) / time.Second)
	if total <= 0 {
		return ErrInvalidLength
	}

	ww, err := wav.NewWriter(w, rack.SampleRate(), rack.Channels(), bitDepth)
	if err != nil {
		return err
	}

	step := e.FramesPerTick()
	for done := 0; done < total; {
		frames := min(step, total-done)
		block, err := RenderFrames(e, id, frames)
		if err != nil {
			_ = ww.Close()
			return err
		}
		if err := ww.WriteSamples(block); err != nil {
			_ = ww.Close()
			return fmt.Errorf("writing wav: %w", err)
		}
		done += frames
	}

	return ww.Close()
}

// SPDX-License-Identifier: EPL-2.0

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ik5/atomix/audio"
	"github.com/ik5/atomix/formats/wav"
)

// The commands share package state, so these tests do not run in parallel.

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func writeTone(t *testing.T, dir string) string {
	t.Helper()

	samples := make([]int16, 1600)
	for i := range samples {
		samples[i] = 8192
	}
	path := filepath.Join(dir, "tone.wav")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, wav.WriteWAV16(f, 16000, 1, samples))
	require.NoError(t, f.Close())
	return path
}

const quietConfig = `
logging:
  level: error
`

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "atomix version dev")
}

func TestRenderCommand(t *testing.T) {
	dir := t.TempDir()
	cfg := writeFile(t, dir, "config.yaml", quietConfig)
	in := writeTone(t, dir)
	dst := filepath.Join(dir, "mix.wav")

	out, err := execute(t, "render", "--config", cfg, "-o", dst, "--meter", "--volume", "0.5", in)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote "+dst)
	assert.Contains(t, out, "Integrated loudness")
	assert.Contains(t, out, "True peak R")

	f, err := os.Open(dst)
	require.NoError(t, err)
	defer f.Close()

	src, err := wav.Decoder{}.Decode(f)
	require.NoError(t, err)
	clip, err := audio.LoadClip(src, audio.LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, 48000, clip.SampleRate())
	assert.Equal(t, 2, clip.Channels())
	assert.InDelta(t, 4800, clip.Frames(), 48)
}

func TestRenderCommand_UnknownInput(t *testing.T) {
	dir := t.TempDir()
	cfg := writeFile(t, dir, "config.yaml", quietConfig)
	in := writeFile(t, dir, "notes.txt", "not audio")

	_, err := execute(t, "render", "--config", cfg, "-o", filepath.Join(dir, "x.wav"), in)
	assert.Error(t, err)
}

func TestConfigCommands(t *testing.T) {
	dir := t.TempDir()

	good := writeFile(t, dir, "good.yaml", quietConfig)
	out, err := execute(t, "config", "validate", "--config", good)
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration is valid")

	out, err = execute(t, "config", "show", "--config", good)
	require.NoError(t, err)
	assert.Contains(t, out, "Speaker mapping: stereo")
	assert.Contains(t, out, "Work size:")

	bad := writeFile(t, dir, "bad.yaml", quietConfig+`
engine:
  sampling_rate: 44100
  server_frequency: 64
`)
	_, err = execute(t, "config", "validate", "--config", bad)
	assert.ErrorContains(t, err, "engine")
}

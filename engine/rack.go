// SPDX-License-Identifier: EPL-2.0

package engine

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/ik5/atomix/analyzer"
	"github.com/ik5/atomix/audio"
	"github.com/ik5/atomix/bus"
	"github.com/ik5/atomix/dsp"
)

// RackConfig shapes a rack. Zero fields take the engine configuration.
type RackConfig struct {
	Name           string
	Renderer       Renderer
	OutputChannels int
	SpeakerMapping bus.SpeakerMapping
	NumBuses       int
}

// sampleQueue is a bounded FIFO of interleaved samples that drops the oldest
// samples when it overflows.
type sampleQueue struct {
	buf  []float32
	head int
	size int
}

func newSampleQueue(capacity int) *sampleQueue {
	return &sampleQueue{buf: make([]float32, capacity)}
}

func (q *sampleQueue) push(s []float32) (dropped int) {
	if len(s) > len(q.buf) {
		dropped = len(s) - len(q.buf)
		s = s[dropped:]
	}
	if over := q.size + len(s) - len(q.buf); over > 0 {
		q.head = (q.head + over) % len(q.buf)
		q.size -= over
		dropped += over
	}
	tail := (q.head + q.size) % len(q.buf)
	n := copy(q.buf[tail:], s)
	copy(q.buf, s[n:])
	q.size += len(s)
	return dropped
}

func (q *sampleQueue) pop(dst []float32) int {
	n := min(len(dst), q.size)
	first := copy(dst[:n], q.buf[q.head:])
	copy(dst[first:n], q.buf)
	q.head = (q.head + n) % len(q.buf)
	q.size -= n
	return n
}

// Rack renders voices through its own bus graph into an output queue. A
// rack is an audio.Source: reading it drains the queue.
type Rack struct {
	id       RackID
	name     string
	e        *Engine
	renderer Renderer
	graph    *bus.Graph
	channels int
	rate     int
	frames   int

	out []float32

	qmu       sync.Mutex
	queue     *sampleQueue
	ports     map[string]*sampleQueue
	underruns atomic.Uint64
	dropped   atomic.Uint64

	log *logrus.Entry
}

var _ audio.Source = (*Rack)(nil)

func newRack(e *Engine, id RackID, cfg RackConfig) (*Rack, error) {
	mapping, err := resolveMapping(cfg.OutputChannels, cfg.SpeakerMapping)
	if err != nil {
		return nil, err
	}
	if cfg.NumBuses < 1 {
		return nil, fmt.Errorf("%w: %d buses", ErrInvalidConfig, cfg.NumBuses)
	}

	frames := e.frames
	log := e.log.WithField("rack", id)
	g, err := bus.NewGraph(bus.Config{
		Mapping:    mapping,
		SampleRate: e.cfg.SamplingRate,
		MaxBuses:   cfg.NumBuses,
		BlockSize:  frames,
		Registry:   e.cfg.Effects,
		Logger:     log,
	})
	if err != nil {
		return nil, fmt.Errorf("creating rack %d: %w", id, err)
	}

	channels := mapping.Channels()
	return &Rack{
		id:       id,
		name:     cfg.Name,
		e:        e,
		renderer: cfg.Renderer,
		graph:    g,
		channels: channels,
		rate:     e.cfg.SamplingRate,
		frames:   frames,
		out:      make([]float32, frames*channels),
		queue:    newSampleQueue(rackBufferTicks * frames * channels),
		ports:    make(map[string]*sampleQueue),
		log:      log,
	}, nil
}

func (r *Rack) ID() RackID                  { return r.id }
func (r *Rack) Name() string                { return r.name }
func (r *Rack) Renderer() Renderer          { return r.renderer }
func (r *Rack) Mapping() bus.SpeakerMapping { return r.graph.Mapping() }
func (r *Rack) SampleRate() int             { return r.rate }
func (r *Rack) Channels() int               { return r.channels }
func (r *Rack) BufSize() int                { return r.frames * r.channels }

// Close does nothing; racks are released with Engine.DestroyRack.
func (r *Rack) Close() error { return nil }

// Graph exposes the bus graph for operations without a rack shortcut.
func (r *Rack) Graph() *bus.Graph { return r.graph }

// render runs the bus graph for one tick and queues the result.
func (r *Rack) render(frames int) error {
	r.qmu.Lock()
	defer r.qmu.Unlock()

	err := r.graph.Process(frames, r.out, func(name string, samples []float32) {
		q, ok := r.ports[name]
		if !ok {
			q = newSampleQueue(rackBufferTicks * len(samples))
			r.ports[name] = q
		}
		q.push(samples)
	})
	if err != nil {
		return fmt.Errorf("rack %d: %w", r.id, err)
	}

	if dropped := r.queue.push(r.out[:frames*r.channels]); dropped > 0 {
		r.dropped.Add(uint64(dropped))
	}
	return nil
}

// Available returns the number of queued samples.
func (r *Rack) Available() int {
	r.qmu.Lock()
	defer r.qmu.Unlock()
	return r.queue.size
}

// Read drains up to len(dst) queued samples without ticking or padding.
func (r *Rack) Read(dst []float32) int {
	r.qmu.Lock()
	defer r.qmu.Unlock()
	return r.queue.pop(dst)
}

// ReadPort drains up to len(dst) samples queued for an output port.
func (r *Rack) ReadPort(name string, dst []float32) (int, error) {
	r.qmu.Lock()
	defer r.qmu.Unlock()

	q, ok := r.ports[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q", bus.ErrUnknownPort, name)
	}
	return q.pop(dst), nil
}

// ReadSamples fills dst with rendered audio. In ServerOnDemand mode it runs
// server ticks until dst is full, however many ticks that takes; otherwise a
// shortfall is padded with silence and counted as an underrun.
func (r *Rack) ReadSamples(dst []float32) (int, error) {
	if len(dst)%r.channels != 0 {
		return 0, audio.ErrInvalidDstSize
	}

	n := r.Read(dst)
	if r.e.cfg.ServerMode == ServerOnDemand {
		// Drain after every tick so reads larger than the queue complete.
		for n < len(dst) {
			if err := r.e.ExecuteServer(); err != nil {
				return n, err
			}
			n += r.Read(dst[n:])
		}
	}

	if n < len(dst) {
		clear(dst[n:])
		r.underruns.Add(1)
	}
	return len(dst), nil
}

// Underruns counts reads that found the queue short.
func (r *Rack) Underruns() uint64 { return r.underruns.Load() }

// Dropped counts samples discarded because nobody read them in time.
func (r *Rack) Dropped() uint64 { return r.dropped.Load() }

func (r *Rack) SetBusVolume(name string, volume float32) error {
	return r.graph.SetVolume(name, volume)
}

func (r *Rack) BusVolume(name string) (float32, error) {
	return r.graph.Volume(name)
}

func (r *Rack) SetBusPanInfo(name string, info bus.PanInfo) error {
	return r.graph.SetPanInfo(name, info)
}

func (r *Rack) SetBusMatrix(name string, inCh, outCh int, matrix []float32) error {
	return r.graph.SetMatrix(name, inCh, outCh, matrix)
}

func (r *Rack) SetBusSendLevel(from, to string, level float32) error {
	return r.graph.SetSendLevel(from, to, level)
}

// BusEffect returns an effect instance of a bus for parameter access.
func (r *Rack) BusEffect(busName, effect string) (*dsp.Instance, error) {
	return r.graph.Effect(busName, effect)
}

// IRReverbPerformance reads the counters of an IR reverb on a bus.
func (r *Rack) IRReverbPerformance(busName, effect string) (dsp.Performance, error) {
	in, err := r.graph.Effect(busName, effect)
	if err != nil {
		return dsp.Performance{}, err
	}
	rv, ok := in.Effect().(*dsp.IRReverb)
	if !ok {
		return dsp.Performance{}, fmt.Errorf("%w: %q is not an IR reverb", bus.ErrUnknownEffect, effect)
	}
	return rv.Performance(), nil
}

// AttachDspBusSetting replaces the bus configuration. It is refused while
// analyzers are attached and from server callbacks.
func (r *Rack) AttachDspBusSetting(s bus.Setting) error {
	if err := r.e.checkCallback("Rack.AttachDspBusSetting"); err != nil {
		return err
	}
	if err := r.graph.Attach(s); err != nil {
		r.log.WithFields(logrus.Fields{
			"function": "AttachDspBusSetting",
			"setting":  s.Name,
			"error":    err.Error(),
		}).Warn("Bus setting refused")
		return err
	}
	return nil
}

// DetachDspBusSetting goes back to the default setting.
func (r *Rack) DetachDspBusSetting() error {
	return r.AttachDspBusSetting(bus.DefaultSetting(r.graph.MaxBuses()))
}

func (r *Rack) CreateOutputPort(name string) error {
	return r.graph.CreatePort(name)
}

func (r *Rack) RemoveOutputPort(name string) error {
	if err := r.graph.RemovePort(name); err != nil {
		return err
	}
	r.qmu.Lock()
	delete(r.ports, name)
	r.qmu.Unlock()
	return nil
}

// AttachLevelMeter measures RMS and peaks of a bus.
func (r *Rack) AttachLevelMeter(busName string, cfg analyzer.LevelConfig) (*analyzer.Level, error) {
	l, err := analyzer.NewLevel(cfg, r.rate, r.channels)
	if err != nil {
		return nil, err
	}
	if err := r.graph.AttachTap(busName, l); err != nil {
		return nil, err
	}
	return l, nil
}

// AttachLoudnessMeter measures the loudness of a bus.
func (r *Rack) AttachLoudnessMeter(busName string, cfg analyzer.LoudnessConfig) (*analyzer.Loudness, error) {
	l, err := analyzer.NewLoudness(cfg, r.rate, r.channels)
	if err != nil {
		return nil, err
	}
	if err := r.graph.AttachTap(busName, l); err != nil {
		return nil, err
	}
	return l, nil
}

// AttachTruePeakMeter measures the true peak of a bus.
func (r *Rack) AttachTruePeakMeter(busName string) (*analyzer.TruePeak, error) {
	tp, err := analyzer.NewTruePeak(r.channels)
	if err != nil {
		return nil, err
	}
	if err := r.graph.AttachTap(busName, tp); err != nil {
		return nil, err
	}
	return tp, nil
}

// DetachAnalyzer removes a meter returned by one of the Attach methods.
func (r *Rack) DetachAnalyzer(t bus.Tap) error {
	return r.graph.DetachTap(t)
}

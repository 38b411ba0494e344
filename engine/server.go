// SPDX-License-Identifier: EPL-2.0

package engine

import (
	"errors"
	"io"
	"maps"
	"slices"

	"github.com/sirupsen/logrus"

	"github.com/ik5/atomix/audio"
	"github.com/ik5/atomix/bus"
	"github.com/ik5/atomix/dsp"
	"github.com/ik5/atomix/utils"
	"github.com/ik5/atomix/voice"
)

// maxChainedClips bounds how many data requests one tick makes per playback.
const maxChainedClips = 4

type cmdKind int

const (
	cmdStart cmdKind = iota
	cmdStop
	cmdStopNow
	cmdPause
	cmdUpdate
	cmdUpdateAll
	cmdPlayerStop
	cmdPlayerStopNow
	cmdPlayerPause
	cmdDestroy
)

type command struct {
	kind   cmdKind
	pb     *playback
	player *Player
	params Params
	pause  bool
}

func (e *Engine) push(c command) {
	e.cmdMu.Lock()
	e.cmds = append(e.cmds, c)
	e.cmdMu.Unlock()
}

// drain takes the queued commands unless the host holds Lock, in which case
// the whole batch waits for a later tick.
func (e *Engine) drain() []command {
	if !e.batchMu.TryLock() {
		return nil
	}
	defer e.batchMu.Unlock()

	e.cmdMu.Lock()
	defer e.cmdMu.Unlock()
	cmds := e.cmds
	e.cmds = nil
	return cmds
}

// ExecuteServer runs one server tick: queued commands in call order, voice
// retries, voice rendering, bus graphs and output queues.
func (e *Engine) ExecuteServer() error {
	if err := e.checkBlocking("ExecuteServer"); err != nil {
		return err
	}

	e.mu.Lock()
	err := e.tick(e.drain())
	events := e.pending
	e.pending = nil
	e.mu.Unlock()

	e.dispatch(events)
	return err
}

func (e *Engine) tick(cmds []command) error {
	for _, c := range cmds {
		e.apply(c)
	}

	for _, res := range e.voices.Retry() {
		e.reacquired(res)
	}

	for _, pb := range e.active {
		e.render(pb, e.frames)
	}

	var errs []error
	for _, id := range slices.Sorted(maps.Keys(e.racks)) {
		if err := e.racks[id].render(e.frames); err != nil {
			errs = append(errs, err)
		}
	}

	for p, f := range e.faders {
		p.faderState.Store(int32(f.state()))
	}
	e.retire()
	e.ticks.Add(1)

	return errors.Join(errs...)
}

func (e *Engine) emit(kind EventKind, pb *playback, err error) {
	e.pending = append(e.pending, PlaybackEvent{
		Kind:     kind,
		Playback: pb.id,
		Status:   pb.loadStatus(),
		Err:      err,
	})
}

func (e *Engine) dispatch(events []PlaybackEvent) {
	fn := e.eventCb.Load()
	if fn == nil || len(events) == 0 {
		return
	}
	e.inCallback.Add(1)
	defer e.inCallback.Add(-1)
	for _, ev := range events {
		(*fn)(ev)
	}
}

func (e *Engine) apply(c command) {
	switch c.kind {
	case cmdStart:
		e.start(c.pb)
	case cmdStop:
		e.stop(c.pb, true)
	case cmdStopNow:
		e.stop(c.pb, false)
	case cmdPause:
		c.pb.paused.Store(c.pause)
	case cmdUpdate:
		if !c.pb.terminal() {
			c.pb.params = c.params
			e.applyParams(c.pb)
		}
	case cmdUpdateAll:
		for _, pb := range e.active {
			if pb.player == c.player && !pb.ended {
				pb.params = c.params.clone()
				e.applyParams(pb)
			}
		}
	case cmdPlayerStop, cmdPlayerStopNow:
		e.stopPlayer(c.player, c.kind == cmdPlayerStop)
	case cmdPlayerPause:
		for _, pb := range e.active {
			if pb.player == c.player {
				pb.paused.Store(c.pause)
			}
		}
	case cmdDestroy:
		e.stopPlayer(c.player, false)
		delete(e.faders, c.player)
	}
}

func (e *Engine) start(pb *playback) {
	e.active = append(e.active, pb)
	if pb.terminal() {
		pb.ended = true
		return
	}

	pb.res = resolve(pb.cue, &pb.params)
	clip := pb.cue.clipFor(pb.params.selector)
	if clip == nil {
		e.finish(pb, StatusError, ErrNoData)
		return
	}

	pb.reader = audio.NewClipReader(clip, pb.res.loopLimit())
	if ms := pb.res.v[ParamStartTime]; ms > 0 {
		frame := min(int(float64(ms)*float64(clip.SampleRate())/1000), clip.Frames())
		if err := pb.reader.Seek(frame); err != nil {
			e.finish(pb, StatusError, err)
			return
		}
	}
	pb.rs = audio.NewResampler(pb.reader, e.cfg.SamplingRate)

	ch := clip.Channels()
	pb.buf = make([]float32, e.frames*ch)
	pb.planes = make([][]float32, ch)
	for c := range pb.planes {
		pb.planes[c] = make([]float32, e.frames)
	}
	pb.matrix = make(map[RackID][]float32)
	pb.env = newEnvelope(e.cfg.SamplingRate, &pb.res.v)
	pb.setFadeGain(1)
	e.applyParams(pb)

	res := e.voices.Allocate(voice.Request{
		Owner:        voice.Owner(pb.id),
		Channels:     ch,
		SamplingRate: clip.SampleRate(),
		Priority:     pb.res.priority(),
		Group:        pb.res.group,
		Control:      pb.res.control,
		Mode:         pb.res.mode,
	})

	switch res.Outcome {
	case voice.Allocated:
		e.evict(res.Evicted)
		e.attachVoice(pb, res.Voice)
	case voice.Deferred:
		pb.virtual.Store(true)
		e.emit(EventDeferred, pb, nil)
	default:
		e.log.WithFields(logrus.Fields{
			"function": "start",
			"playback": pb.id,
			"priority": pb.res.priority(),
			"group":    pb.res.group,
			"error":    res.Err.Error(),
		}).Warn("Voice allocation failed")
		e.finish(pb, StatusError, res.Err)
		return
	}

	e.startFader(pb)
}

func (e *Engine) attachVoice(pb *playback, id voice.ID) {
	pb.voice = id
	pb.hasVoice = true
	pb.virtual.Store(false)
	pb.status.Store(int32(StatusPlaying))
	e.emit(EventAllocated, pb, nil)
}

func (e *Engine) evict(evicted []voice.Eviction) {
	for _, ev := range evicted {
		pb, ok := e.lookup(PlaybackID(ev.Owner))
		if !ok || pb.ended {
			continue
		}
		pb.hasVoice = false

		switch {
		case ev.Err != nil:
			e.finish(pb, StatusError, ev.Err)
		case ev.Virtual:
			pb.virtual.Store(true)
			e.emit(EventVirtualized, pb, nil)
		default:
			e.finish(pb, StatusStop, nil)
		}
	}
}

func (e *Engine) reacquired(res voice.Result) {
	pb, ok := e.lookup(PlaybackID(res.Owner))
	if !ok || pb.ended {
		e.voices.Release(res.Voice)
		return
	}
	e.evict(res.Evicted)
	e.attachVoice(pb, res.Voice)
}

// finish moves pb to a terminal status and frees its voice.
func (e *Engine) finish(pb *playback, status Status, err error) {
	if pb.ended {
		return
	}
	pb.ended = true

	if pb.hasVoice {
		e.voices.Release(pb.voice)
		pb.hasVoice = false
	} else if pb.virtual.Load() {
		e.voices.CancelVirtual(voice.Owner(pb.id))
	}
	pb.virtual.Store(false)

	if err != nil {
		pb.err.Store(&err)
	}
	pb.status.Store(int32(status))

	switch status {
	case StatusError:
		e.emit(EventError, pb, err)
	case StatusPlayend:
		e.emit(EventEnded, pb, nil)
	default:
		e.emit(EventStopped, pb, nil)
	}
}

// stop begins the release, or ends pb at once when release is false or the
// playback never got a voice.
func (e *Engine) stop(pb *playback, release bool) {
	if pb.ended || pb.terminal() {
		return
	}
	if !release || !pb.hasVoice || pb.paused.Load() {
		e.finish(pb, StatusStop, nil)
		return
	}
	pb.stopping = true
	pb.env.startRelease()
	if pb.env.done() {
		e.finish(pb, StatusStop, nil)
	}
}

func (e *Engine) stopPlayer(p *Player, release bool) {
	f := e.faders[p]
	for _, pb := range e.active {
		if pb.player != p || pb.ended {
			continue
		}
		if release && f != nil && f.current == pb && f.cfg.FadeOutTimeMS > 0 {
			e.fadeOut(f, pb)
			f.current = nil
			continue
		}
		e.stop(pb, release)
		if !release && f != nil && (f.current == pb || f.previous == pb) {
			f.forced = true
		}
	}
}

// startFader hands pb to the player fader: the previous fading playback is
// cut, the current one fades out and pb fades in.
func (e *Engine) startFader(pb *playback) {
	cfg, ok := pb.player.faderConfig()
	if !ok {
		delete(e.faders, pb.player)
		return
	}

	f := e.faders[pb.player]
	if f == nil {
		f = &fader{}
		e.faders[pb.player] = f
	}
	f.cfg = cfg
	f.forced = false

	if f.previous != nil && !f.previous.ended {
		e.finish(f.previous, StatusStop, nil)
		f.forced = true
	}
	f.previous = nil
	if f.current != nil && !f.current.ended {
		e.fadeOut(f, f.current)
	}

	f.current = pb
	pb.fade = newRamp(0, 1, msToFrames(float32(cfg.FadeInTimeMS), float32(e.cfg.SamplingRate)))
	pb.setFadeGain(pb.fade.value())
}

func (e *Engine) fadeOut(f *fader, pb *playback) {
	from := float32(1)
	if pb.fade != nil {
		from = pb.fade.value()
	}
	pb.fade = newRamp(from, 0, msToFrames(float32(f.cfg.FadeOutTimeMS), float32(e.cfg.SamplingRate)))
	pb.stopAfterFade = true
	f.previous = pb
	if pb.fade.finished() {
		e.finish(pb, StatusStop, nil)
	}
}

// applyParams installs pb.params into the render state.
func (e *Engine) applyParams(pb *playback) {
	pb.res = resolve(pb.cue, &pb.params)
	if pb.rs == nil {
		return
	}

	e.setPitch(pb, "applyParams")
	pb.env.configure(&pb.res.v)
	e.configureFilters(pb)
	clear(pb.matrix)
}

func (e *Engine) configureFilters(pb *playback) {
	v := &pb.res.v
	ch := pb.rs.Channels()
	rate := e.cfg.SamplingRate

	if pb.bandpass == nil {
		pb.bandpass = dsp.NewBandpass(rate, ch)
	}
	pb.bandpass.SetCutoffs(v[ParamBandpassLow], v[ParamBandpassHigh])

	typ := int(v[ParamBiquadType])
	pb.biquadOn = typ >= int(dsp.LowPass) && typ <= int(dsp.AllPass)
	if !pb.biquadOn {
		return
	}
	if pb.biquad == nil {
		pb.biquad = dsp.NewSection(ch)
	}
	pb.biquad.Coef = dsp.Design(dsp.BiquadType(typ), float64(rate),
		dsp.NormalizedToHz(v[ParamBiquadFrequency]), float64(v[ParamBiquadQ]), float64(v[ParamBiquadGain]))
}

// read fills buf from the playback data, chaining clips through the data
// request callback when the data runs out.
func (e *Engine) read(pb *playback, buf []float32) (int, error) {
	n := 0
	for chained := 0; n < len(buf); chained++ {
		m, err := pb.rs.ReadSamples(buf[n:])
		n += m
		if err == nil {
			continue
		}
		if !errors.Is(err, io.EOF) {
			return n, err
		}
		if pb.dataCb == nil || chained >= maxChainedClips {
			return n, io.EOF
		}

		next := e.requestData(pb)
		if next == nil {
			return n, io.EOF
		}
		if next.Channels() != pb.rs.Channels() {
			e.log.WithFields(logrus.Fields{
				"function": "read",
				"playback": pb.id,
				"channels": next.Channels(),
				"want":     pb.rs.Channels(),
			}).Warn("Chained data has a different channel count, ending playback")
			return n, io.EOF
		}

		pb.consumedBase += pb.rs.Consumed()
		pb.reader = audio.NewClipReader(next, pb.res.loopLimit())
		pb.rs = audio.NewResampler(pb.reader, e.cfg.SamplingRate)
		e.setPitch(pb, "read")
	}
	return n, nil
}

// setPitch applies the resolved pitch to the voice resampler.
func (e *Engine) setPitch(pb *playback, function string) {
	if err := pb.rs.SetSpeed(utils.CentsToRatio(float64(pb.res.v[ParamPitch]))); err != nil {
		e.log.WithFields(logrus.Fields{
			"function": function,
			"playback": pb.id,
			"pitch":    pb.res.v[ParamPitch],
		}).Warn("Pitch out of range, keeping the previous speed")
	}
}

func (e *Engine) requestData(pb *playback) *audio.Clip {
	ctx := &DataRequestContext{Playback: pb.id, Finished: pb.reader.Clip()}

	e.inCallback.Add(1)
	func() {
		defer e.inCallback.Add(-1)
		pb.dataCb(ctx)
	}()

	switch {
	case ctx.next != nil:
		return ctx.next
	case ctx.again:
		return ctx.Finished
	}
	return nil
}

func (e *Engine) filter(pb *playback, frames int) {
	ctx := FilterContext{
		Playback:   pb.id,
		SampleRate: e.cfg.SamplingRate,
		Channels:   len(pb.planes),
		Frames:     frames,
	}
	views := make([][]float32, len(pb.planes))
	for c, plane := range pb.planes {
		views[c] = plane[:frames]
	}

	e.inCallback.Add(1)
	defer e.inCallback.Add(-1)
	pb.filterCb(ctx, views)
}

// render produces one tick of pb and mixes it into its racks.
func (e *Engine) render(pb *playback, frames int) {
	if pb.ended || !pb.hasVoice || pb.paused.Load() {
		return
	}

	ch := len(pb.planes)
	buf := pb.buf[:frames*ch]
	n, err := e.read(pb, buf)
	if err != nil && !errors.Is(err, io.EOF) {
		e.log.WithFields(logrus.Fields{
			"function": "render",
			"playback": pb.id,
			"error":    err.Error(),
		}).Error("Voice data read failed")
		e.finish(pb, StatusError, err)
		return
	}
	clear(buf[n:])
	got := n / ch

	for c, plane := range pb.planes {
		for i := range plane[:frames] {
			plane[i] = buf[i*ch+c]
		}
	}

	if pb.filterCb != nil {
		e.filter(pb, frames)
	}
	if !pb.bandpass.PassThrough() {
		pb.bandpass.Process(pb.planes, frames)
	}
	if pb.biquadOn {
		pb.biquad.Process(pb.planes, frames)
	}

	volume := pb.res.v[ParamVolume] * e.categoryGain(pb.res.category)
	for i := range frames {
		g := volume * pb.env.next()
		if pb.fade != nil {
			g *= pb.fade.next()
		}
		for _, plane := range pb.planes {
			plane[i] *= g
		}
	}
	if pb.fade != nil {
		pb.setFadeGain(pb.fade.value())
	}

	e.route(pb, frames)

	pb.played.Add(int64(got))
	pb.consumed.Store(pb.consumedBase + pb.rs.Consumed())

	switch {
	case got < frames:
		e.finish(pb, StatusPlayend, nil)
	case pb.stopping && pb.env.done():
		e.finish(pb, StatusStop, nil)
	case pb.stopAfterFade && pb.fade.finished():
		e.finish(pb, StatusStop, nil)
	}
}

// route pans pb onto each of its racks and mixes it into the bus sends, or
// into its output ports when it has any.
func (e *Engine) route(pb *playback, frames int) {
	if len(pb.ports) > 0 {
		for _, port := range pb.ports {
			r, ok := e.racks[port.rack]
			if !ok {
				continue
			}
			out := e.pan(pb, r, frames)
			if err := r.graph.AccumulatePort(port.name, out, frames, 1); err != nil {
				e.routeFailed(pb, r, port.name, err)
			}
		}
		return
	}

	for _, id := range pb.racks {
		r, ok := e.racks[id]
		if !ok {
			continue
		}
		out := e.pan(pb, r, frames)
		for _, s := range pb.res.sends {
			name := s.bus
			if name == "" {
				name = r.graph.Master()
			}
			if err := r.graph.Accumulate(name, out, frames, s.level); err != nil {
				e.routeFailed(pb, r, name, err)
			}
		}
	}
}

func (e *Engine) routeFailed(pb *playback, r *Rack, target string, err error) {
	e.log.WithFields(logrus.Fields{
		"function": "route",
		"playback": pb.id,
		"rack":     r.id,
		"target":   target,
		"error":    err.Error(),
	}).Debug("Voice send dropped")
}

// pan mixes the voice planes through the rack matrix into scratch planes.
func (e *Engine) pan(pb *playback, r *Rack, frames int) [][]float32 {
	m := e.panMatrix(pb, r)

	for len(e.scratchOut) < r.channels {
		e.scratchOut = append(e.scratchOut, make([]float32, e.frames))
	}
	out := e.scratchOut[:r.channels]
	for _, plane := range out {
		clear(plane[:frames])
	}

	outCh := r.channels
	for in, src := range pb.planes {
		for o := range outCh {
			g := m[in*outCh+o]
			if g == 0 {
				continue
			}
			dst := out[o]
			for i, v := range src[:frames] {
				dst[i] += v * g
			}
		}
	}
	return out
}

func identityMatrix(in, out int, gain float32) []float32 {
	m := make([]float32, in*out)
	for i := range min(in, out) {
		m[i*out+i] = gain
	}
	return m
}

func (e *Engine) panMatrix(pb *playback, r *Rack) []float32 {
	if m, ok := pb.matrix[r.id]; ok {
		return m
	}

	in, out := len(pb.planes), r.channels
	res := &pb.res
	var m []float32

	switch {
	case len(res.sendLevels) > 0:
		m = make([]float32, in*out)
		for k, level := range res.sendLevels {
			if k[0] < in && k[1] < out {
				m[k[0]*out+k[1]] = level
			}
		}
	case r.renderer == RendererObject:
		m = identityMatrix(in, out, 1)
	default:
		m = e.speakerMatrix(res, in, r.graph.Mapping())
	}

	pb.matrix[r.id] = m
	return m
}

func (e *Engine) speakerMatrix(res *resolved, in int, mapping bus.SpeakerMapping) []float32 {
	info := res.pan()

	switch PanType(res.v[ParamPanType]) {
	case PanPos3D:
		if res.source == nil {
			break
		}
		pos := bus.Position3D(*res.source, res.listener)
		pos.Angle = float32(utils.WrapAngle(float64(pos.Angle + info.Angle)))
		pos.Volume *= info.Volume
		pos.Wideness = info.Wideness
		pos.Spread = max(pos.Spread, info.Spread)
		return bus.Matrix(in, mapping, pos)
	case PanAuto:
		if in > 1 && in <= mapping.Channels() {
			return identityMatrix(in, mapping.Channels(), info.Volume)
		}
	}
	return bus.Matrix(in, mapping, info)
}

// retire moves finished playbacks out of the render list and forgets the
// oldest ones beyond the retention limit.
func (e *Engine) retire() {
	kept := e.active[:0]
	for _, pb := range e.active {
		if pb.ended {
			e.retained = append(e.retained, pb)
			continue
		}
		kept = append(kept, pb)
	}
	clear(e.active[len(kept):])
	e.active = kept

	for f := range maps.Values(e.faders) {
		if f.current != nil && f.current.ended {
			f.current = nil
		}
		if f.previous != nil && f.previous.ended {
			f.previous = nil
		}
	}

	excess := len(e.retained) - e.cfg.retained()
	if excess <= 0 {
		return
	}
	old := e.retained[:excess]
	e.pbMu.Lock()
	for _, pb := range old {
		e.playbacks.Remove(pb.id.handle())
	}
	e.pbMu.Unlock()
	for _, pb := range old {
		pb.player.forget(pb.id)
		e.emit(EventRemoved, pb, nil)
	}
	e.retained = slices.Delete(e.retained, 0, excess)
}

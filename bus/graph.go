// SPDX-License-Identifier: EPL-2.0

package bus

import (
	"fmt"
	"slices"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/ik5/atomix/dsp"
)

// Tap observes a bus signal after panning. Analyzers implement it.
type Tap interface {
	Observe(planes [][]float32, frames int)
}

// Config fixes the shape of a graph for its whole life.
type Config struct {
	Mapping    SpeakerMapping
	SampleRate int
	// MaxBuses caps the bus count of any attached setting.
	MaxBuses int
	// BlockSize is the largest frame count passed to Process.
	BlockSize int
	Registry  *dsp.Registry
	Logger    logrus.FieldLogger
}

type send struct {
	to    *Bus
	level float32
	pos   SendPosition
}

// Bus is a mixing node of the attached setting.
type Bus struct {
	name  string
	order int

	volume   float32
	pan      *PanInfo
	panGains []float32
	matrix   []float32

	sends []*send
	chain dsp.Chain
	taps  []Tap

	planes  [][]float32
	scratch [][]float32
}

// Name returns the bus name.
func (b *Bus) Name() string { return b.name }

// Graph renders buses in dependency order. One graph belongs to one rack.
type Graph struct {
	mu sync.Mutex

	cfg      Config
	channels int

	setting string
	buses   []*Bus // render order
	byName  map[string]*Bus
	master  *Bus
	gen     uint64

	ports map[string]*Port

	log logrus.FieldLogger
}

// NewGraph creates a graph with the default setting attached.
func NewGraph(cfg Config) (*Graph, error) {
	if !cfg.Mapping.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidMapping, cfg.Mapping)
	}
	if cfg.MaxBuses <= 0 {
		cfg.MaxBuses = DefaultNumBuses
	}
	if cfg.BlockSize <= 0 {
		cfg.BlockSize = 1024
	}
	if cfg.Registry == nil {
		cfg.Registry = dsp.NewRegistry()
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}

	g := &Graph{
		cfg:      cfg,
		channels: cfg.Mapping.Channels(),
		ports:    make(map[string]*Port),
		log:      cfg.Logger,
	}
	if err := g.Attach(DefaultSetting(cfg.MaxBuses)); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *Graph) Channels() int           { return g.channels }
func (g *Graph) Mapping() SpeakerMapping { return g.cfg.Mapping }
func (g *Graph) MaxBuses() int           { return g.cfg.MaxBuses }
func (g *Graph) BlockSize() int          { return g.cfg.BlockSize }

func (g *Graph) newPlanes() [][]float32 {
	planes := make([][]float32, g.channels)
	for ch := range planes {
		planes[ch] = make([]float32, g.cfg.BlockSize)
	}
	return planes
}

// Attach replaces the bus configuration. Buses and effects of the previous
// setting are dropped.
func (g *Graph) Attach(s Setting) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(s.Buses) == 0 {
		return ErrEmptySetting
	}
	if len(s.Buses) > g.cfg.MaxBuses {
		return fmt.Errorf("%w: %d > %d", ErrTooManyBuses, len(s.Buses), g.cfg.MaxBuses)
	}
	for _, b := range g.buses {
		if len(b.taps) > 0 {
			return ErrAnalyzerAttached
		}
	}

	order, err := renderOrder(s)
	if err != nil {
		return err
	}

	byName := make(map[string]*Bus, len(s.Buses))
	buses := make([]*Bus, len(order))
	for pos, i := range order {
		spec := s.Buses[i]
		b := &Bus{
			name:    spec.Name,
			order:   pos,
			volume:  spec.Volume,
			planes:  g.newPlanes(),
			scratch: g.newPlanes(),
		}
		if spec.Matrix != nil {
			if err := b.setMatrix(g.channels, g.channels, g.channels, spec.Matrix); err != nil {
				return fmt.Errorf("bus %q: %w", spec.Name, err)
			}
		}
		if spec.Pan != nil {
			b.setPan(*spec.Pan, g.cfg.Mapping)
		}
		for _, fx := range spec.Effects {
			if err := g.addEffect(b, fx); err != nil {
				return fmt.Errorf("bus %q: %w", spec.Name, err)
			}
		}
		buses[pos] = b
		byName[b.name] = b
	}

	for _, spec := range s.Buses {
		from := byName[spec.Name]
		for _, sd := range spec.Sends {
			from.sends = append(from.sends, &send{to: byName[sd.To], level: sd.Level, pos: sd.Position})
		}
	}

	g.setting = s.Name
	g.buses = buses
	g.byName = byName
	g.master = byName[s.Buses[0].Name]
	g.gen++

	g.log.WithFields(logrus.Fields{
		"function": "Graph.Attach",
		"setting":  s.Name,
		"buses":    len(buses),
		"master":   g.master.name,
	}).Debug("Bus setting attached")

	return nil
}

// SettingName returns the name of the attached setting.
func (g *Graph) SettingName() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.setting
}

// Generation changes every time a setting is attached.
func (g *Graph) Generation() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.gen
}

// BusNames returns the buses in render order.
func (g *Graph) BusNames() []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	names := make([]string, len(g.buses))
	for i, b := range g.buses {
		names[i] = b.name
	}
	return names
}

// Master returns the name of the bus feeding the rack output.
func (g *Graph) Master() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.master.name
}

// HasBus reports whether name exists in the attached setting.
func (g *Graph) HasBus(name string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.byName[name]
	return ok
}

func (g *Graph) lookup(name string) (*Bus, error) {
	b, ok := g.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownBus, name)
	}
	return b, nil
}

func (g *Graph) SetVolume(name string, volume float32) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	b, err := g.lookup(name)
	if err != nil {
		return err
	}
	b.volume = volume
	return nil
}

func (g *Graph) Volume(name string) (float32, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	b, err := g.lookup(name)
	if err != nil {
		return 0, err
	}
	return b.volume, nil
}

func (b *Bus) setPan(info PanInfo, mapping SpeakerMapping) {
	p := info
	b.pan = &p
	b.panGains = Matrix(mapping.Channels(), mapping, info)
}

// SetPanInfo pans the bus output. Buses without pan info pass channels
// straight through.
func (g *Graph) SetPanInfo(name string, info PanInfo) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	b, err := g.lookup(name)
	if err != nil {
		return err
	}
	b.setPan(info, g.cfg.Mapping)
	return nil
}

// ClearPanInfo restores straight-through routing.
func (g *Graph) ClearPanInfo(name string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	b, err := g.lookup(name)
	if err != nil {
		return err
	}
	b.pan, b.panGains = nil, nil
	return nil
}

func (g *Graph) PanInfo(name string) (PanInfo, bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	b, err := g.lookup(name)
	if err != nil {
		return PanInfo{}, false, err
	}
	if b.pan == nil {
		return DefaultPanInfo, false, nil
	}
	return *b.pan, true, nil
}

func (b *Bus) setMatrix(channels, inCh, outCh int, m []float32) error {
	if inCh <= 0 || outCh <= 0 || inCh > channels || outCh > channels || len(m) != inCh*outCh {
		return fmt.Errorf("%w: %dx%d with %d values", ErrInvalidMatrix, inCh, outCh, len(m))
	}

	full := make([]float32, channels*channels)
	for in := range inCh {
		for out := range outCh {
			full[in*channels+out] = m[in*outCh+out]
		}
	}
	b.matrix = full
	return nil
}

// SetMatrix installs the bus send matrix, indexed [in*outCh+out]. Channels
// beyond inCh are dropped; outputs beyond outCh stay silent.
func (g *Graph) SetMatrix(name string, inCh, outCh int, m []float32) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	b, err := g.lookup(name)
	if err != nil {
		return err
	}
	return b.setMatrix(g.channels, inCh, outCh, m)
}

// Matrix returns the bus matrix as channels x channels. An unset matrix is the
// identity.
func (g *Graph) Matrix(name string) ([]float32, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	b, err := g.lookup(name)
	if err != nil {
		return nil, err
	}
	if b.matrix != nil {
		return slices.Clone(b.matrix), nil
	}
	id := make([]float32, g.channels*g.channels)
	for ch := range g.channels {
		id[ch*g.channels+ch] = 1
	}
	return id, nil
}

// SetSendLevel changes the level of the send from -> to. A send that does not
// exist yet is created post-pan, provided that to renders after from.
func (g *Graph) SetSendLevel(from, to string, level float32) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	src, err := g.lookup(from)
	if err != nil {
		return err
	}
	dst, err := g.lookup(to)
	if err != nil {
		return err
	}
	if src == dst {
		return fmt.Errorf("%w: %q", ErrSelfSend, from)
	}

	for _, sd := range src.sends {
		if sd.to == dst {
			sd.level = level
			return nil
		}
	}

	if dst.order <= src.order {
		g.log.WithFields(logrus.Fields{
			"function": "Graph.SetSendLevel",
			"from":     from,
			"to":       to,
		}).Warn("Send refused, it would run against the render order")
		return fmt.Errorf("%w: %q -> %q", ErrSendOrder, from, to)
	}
	src.sends = append(src.sends, &send{to: dst, level: level, pos: PostPan})
	return nil
}

// SendLevel returns the level of from -> to, and false when no such send
// exists.
func (g *Graph) SendLevel(from, to string) (float32, bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	src, err := g.lookup(from)
	if err != nil {
		return 0, false, err
	}
	for _, sd := range src.sends {
		if sd.to.name == to {
			return sd.level, true, nil
		}
	}
	return 0, false, nil
}

func (g *Graph) addEffect(b *Bus, spec EffectSpec) error {
	iface, err := g.cfg.Registry.Lookup(spec.Interface)
	if err != nil {
		return err
	}
	in, err := dsp.NewInstance(spec.Name, iface, g.cfg.SampleRate, g.channels)
	if err != nil {
		return err
	}
	for i, v := range spec.Parameters {
		if err := in.SetParameter(i, v); err != nil {
			return err
		}
	}
	in.UpdateParameters()
	in.SetBypass(spec.Bypass)
	return b.chain.Append(in)
}

// AddEffect appends an effect to the bus chain.
func (g *Graph) AddEffect(name string, spec EffectSpec) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	b, err := g.lookup(name)
	if err != nil {
		return err
	}
	return g.addEffect(b, spec)
}

// Effect returns the named effect instance of a bus.
func (g *Graph) Effect(busName, effect string) (*dsp.Instance, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	b, err := g.lookup(busName)
	if err != nil {
		return nil, err
	}
	in, ok := b.chain.Find(effect)
	if !ok {
		return nil, fmt.Errorf("%w: %q on %q", ErrUnknownEffect, effect, busName)
	}
	return in, nil
}

// Effects returns the effect names of a bus in processing order.
func (g *Graph) Effects(busName string) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	b, err := g.lookup(busName)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, in := range b.chain.Instances() {
		names = append(names, in.Name())
	}
	return names, nil
}

// AttachTap hooks t onto a bus.
func (g *Graph) AttachTap(busName string, t Tap) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	b, err := g.lookup(busName)
	if err != nil {
		return err
	}
	b.taps = append(b.taps, t)
	return nil
}

// DetachTap removes t from whichever bus holds it.
func (g *Graph) DetachTap(t Tap) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, b := range g.buses {
		if i := slices.Index(b.taps, t); i >= 0 {
			b.taps = slices.Delete(b.taps, i, i+1)
			return nil
		}
	}
	return ErrUnknownTap
}

// NumTaps returns the number of attached taps.
func (g *Graph) NumTaps() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	n := 0
	for _, b := range g.buses {
		n += len(b.taps)
	}
	return n
}

// Accumulate mixes planes into the input of a bus at the given level.
func (g *Graph) Accumulate(name string, planes [][]float32, frames int, level float32) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if frames > g.cfg.BlockSize {
		return ErrInvalidFrameCount
	}
	b, err := g.lookup(name)
	if err != nil {
		return err
	}
	mixInto(b.planes, planes, frames, level)
	return nil
}

func mixInto(dst, src [][]float32, frames int, level float32) {
	if level == 0 {
		return
	}
	for ch := range min(len(dst), len(src)) {
		d := dst[ch][:frames]
		for i, v := range src[ch][:frames] {
			d[i] += v * level
		}
	}
}

// remix applies m (channels x channels) from b.planes into b.scratch and
// swaps them.
func (b *Bus) remix(m []float32, frames int) {
	channels := len(b.planes)
	for out := range channels {
		dst := b.scratch[out][:frames]
		clear(dst)
		for in := range channels {
			g := m[in*channels+out]
			if g == 0 {
				continue
			}
			for i, v := range b.planes[in][:frames] {
				dst[i] += v * g
			}
		}
	}
	b.planes, b.scratch = b.scratch, b.planes
}

func (b *Bus) sendAt(pos SendPosition, frames int) {
	for _, sd := range b.sends {
		if sd.pos == pos {
			mixInto(sd.to.planes, b.planes, frames, sd.level)
		}
	}
}

// Process renders one block. The master bus is interleaved into out, which
// must hold frames*Channels samples (nil discards it). Output ports are
// handed to portOut.
func (g *Graph) Process(frames int, out []float32, portOut func(name string, samples []float32)) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if frames > g.cfg.BlockSize {
		return ErrInvalidFrameCount
	}

	for _, b := range g.buses {
		if b.matrix != nil {
			b.remix(b.matrix, frames)
		}
		b.chain.Process(b.planes, frames)

		b.sendAt(PreVolume, frames)
		if b.volume != 1 {
			for _, plane := range b.planes {
				for i := range plane[:frames] {
					plane[i] *= b.volume
				}
			}
		}
		b.sendAt(PostVolume, frames)

		if b.pan != nil {
			b.remix(b.panGains, frames)
		}
		b.sendAt(PostPan, frames)

		for _, t := range b.taps {
			t.Observe(b.planes, frames)
		}

		if b == g.master && out != nil {
			interleave(out, b.planes, frames)
		}
	}

	for _, b := range g.buses {
		for _, plane := range b.planes {
			clear(plane[:frames])
		}
	}

	for name, p := range g.ports {
		p.render(frames)
		if portOut != nil {
			portOut(name, p.out[:frames*p.channels])
		}
	}

	return nil
}

func interleave(dst []float32, planes [][]float32, frames int) {
	channels := len(planes)
	for ch, plane := range planes {
		for i, v := range plane[:frames] {
			dst[i*channels+ch] = v
		}
	}
}

// Reset clears effect state and pending input.
func (g *Graph) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, b := range g.buses {
		b.chain.Reset()
		for _, plane := range b.planes {
			clear(plane)
		}
	}
}

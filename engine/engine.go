// SPDX-License-Identifier: EPL-2.0

package engine

import (
	"fmt"
	"maps"
	"math"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ik5/atomix/dsp"
	"github.com/ik5/atomix/internal/arena"
	"github.com/ik5/atomix/voice"
)

const engineField = "engine"

type category struct {
	volume atomic.Uint32 // float32 bits
	muted  atomic.Bool
}

func (c *category) gain() float32 {
	if c.muted.Load() {
		return 0
	}
	return math.Float32frombits(c.volume.Load())
}

// Engine is one mixing engine instance. Every tick runs on whichever
// goroutine calls ExecuteServer (or reads a rack in ServerOnDemand mode).
//
// Setters on players and playbacks only queue commands and may be called from
// any goroutine, including from callbacks. APIs that block on the server
// return ErrCalledFromCallback when used from inside a callback.
type Engine struct {
	id  uuid.UUID
	cfg Config
	log *logrus.Entry

	diag   *diagnosticHook
	frames int

	// mu serializes ticks and structural changes.
	mu         sync.Mutex
	nextRack   RackID
	voices     *voice.Manager
	active     []*playback
	retained   []*playback
	faders     map[*Player]*fader
	pending    []PlaybackEvent
	scratchOut [][]float32

	// racks is written under both mu and rackMu, so the tick reads it under
	// mu alone and getters under rackMu alone.
	rackMu sync.RWMutex
	racks  map[RackID]*Rack

	ticks atomic.Uint64

	cmdMu sync.Mutex
	cmds  []command

	// batchMu is the host critical section of Lock and Unlock.
	batchMu sync.Mutex

	pbMu      sync.RWMutex
	playbacks *arena.Arena[*playback]

	plMu       sync.Mutex
	players    map[uint64]*Player
	nextPlayer uint64

	catMu      sync.RWMutex
	categories map[string]*category

	eventCb    atomic.Pointer[func(PlaybackEvent)]
	inCallback atomic.Int32
	closed     atomic.Bool
}

// New validates cfg and creates an engine with the default rack.
func New(cfg Config) (*Engine, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		cfg.Logger.WithFields(logrus.Fields{
			"function": "New",
			"error":    err.Error(),
		}).Error("Invalid engine configuration")
		return nil, err
	}

	id := uuid.New()
	e := &Engine{
		id:         id,
		cfg:        cfg,
		log:        cfg.Logger.WithField(engineField, id.String()),
		diag:       newDiagnosticHook(id.String()),
		frames:     cfg.SamplingRate / cfg.ServerFrequency,
		racks:      make(map[RackID]*Rack),
		faders:     make(map[*Player]*fader),
		playbacks:  arena.New[*playback](cfg.retained()),
		players:    make(map[uint64]*Player),
		categories: make(map[string]*category, len(cfg.Categories)),
	}
	cfg.Logger.AddHook(e.diag)

	vm, err := voice.NewManager(voice.Config{
		Pools:            cfg.VoicePools,
		Groups:           cfg.LimitGroups,
		MaxVirtualVoices: cfg.MaxVirtualVoices,
		Logger:           e.log,
	})
	if err != nil {
		e.removeHook()
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	e.voices = vm

	for _, c := range cfg.Categories {
		e.categories[c.Name] = newCategory(c.Volume)
	}

	rack, err := newRack(e, RackIDDefault, RackConfig{
		Name:           "default",
		Renderer:       cfg.Renderer,
		OutputChannels: cfg.OutputChannels,
		SpeakerMapping: cfg.SpeakerMapping,
		NumBuses:       cfg.NumBuses,
	})
	if err != nil {
		e.removeHook()
		return nil, err
	}
	e.racks[RackIDDefault] = rack
	e.nextRack = RackIDDefault + 1

	e.log.WithFields(logrus.Fields{
		"function":         "New",
		"sampling_rate":    cfg.SamplingRate,
		"server_frequency": cfg.ServerFrequency,
		"frames_per_tick":  e.frames,
		"channels":         rack.channels,
		"server_mode":      cfg.ServerMode.String(),
	}).Info("Engine initialized")

	return e, nil
}

func newCategory(volume float32) *category {
	c := &category{}
	c.volume.Store(math.Float32bits(volume))
	return c
}

func (e *Engine) removeHook() {
	hooks := make(logrus.LevelHooks)
	for level, hs := range e.cfg.Logger.Hooks {
		for _, h := range hs {
			if h != logrus.Hook(e.diag) {
				hooks[level] = append(hooks[level], h)
			}
		}
	}
	e.cfg.Logger.ReplaceHooks(hooks)
}

// ID returns the engine instance id used in its log entries.
func (e *Engine) ID() uuid.UUID { return e.id }

// Config returns the configuration with defaults filled in.
func (e *Engine) Config() Config { return e.cfg }

// Context returns the opaque platform value of the configuration.
func (e *Engine) Context() any { return e.cfg.Context }

// FramesPerTick returns the frames rendered by one ExecuteServer.
func (e *Engine) FramesPerTick() int { return e.frames }

// SampleRate returns the output sampling rate.
func (e *Engine) SampleRate() int { return e.cfg.SamplingRate }

// Effects returns the effect registry used by bus settings. User effect
// interfaces are registered here.
func (e *Engine) Effects() *dsp.Registry { return e.cfg.Effects }

// ServerTime returns the rendered time. It is safe to call from callbacks.
func (e *Engine) ServerTime() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return time.Duration(e.ticks.Load()) * time.Second / time.Duration(e.cfg.ServerFrequency)
}

// checkCallback refuses blocking calls made from a server callback.
func (e *Engine) checkCallback(function string) error {
	if e.inCallback.Load() == 0 {
		return nil
	}
	e.log.WithField("function", function).Warn("Blocking API called from a server callback, refused")
	return ErrCalledFromCallback
}

func (e *Engine) checkBlocking(function string) error {
	if err := e.checkCallback(function); err != nil {
		return err
	}
	if e.closed.Load() {
		return ErrEngineClosed
	}
	return nil
}

// Close stops every playback and releases the engine. The engine cannot be
// used afterwards.
func (e *Engine) Close() error {
	if err := e.checkCallback("Close"); err != nil {
		return err
	}
	if !e.closed.CompareAndSwap(false, true) {
		return ErrEngineClosed
	}

	e.mu.Lock()
	for _, pb := range e.active {
		pb.status.Store(int32(StatusStop))
	}
	e.active = nil
	e.retained = nil
	e.voices.Reset()
	e.mu.Unlock()

	e.pbMu.Lock()
	e.playbacks.Clear()
	e.pbMu.Unlock()

	e.log.WithField("function", "Close").Info("Engine finalized")
	e.removeHook()
	return nil
}

// Lock opens a host critical section. Commands issued until Unlock are
// applied together by the same tick.
func (e *Engine) Lock() error {
	if err := e.checkBlocking("Lock"); err != nil {
		return err
	}
	e.batchMu.Lock()
	return nil
}

// Unlock closes the critical section opened by Lock.
func (e *Engine) Unlock() { e.batchMu.Unlock() }

// SetEventCallback installs fn to receive playback events at the end of each
// tick. fn runs on the server tick and must not call blocking engine APIs.
func (e *Engine) SetEventCallback(fn func(PlaybackEvent)) {
	if fn == nil {
		e.eventCb.Store(nil)
		return
	}
	e.eventCb.Store(&fn)
}

// Diagnostics returns the recent warnings and errors, oldest first.
func (e *Engine) Diagnostics() []Diagnostic { return e.diag.snapshot() }

// ClearDiagnostics forgets the recorded diagnostics.
func (e *Engine) ClearDiagnostics() { e.diag.clear() }

// CreateRack adds a rack. Zero fields of cfg take the engine configuration.
func (e *Engine) CreateRack(cfg RackConfig) (RackID, error) {
	if err := e.checkBlocking("CreateRack"); err != nil {
		return RackIDInvalid, err
	}
	if cfg.NumBuses == 0 {
		cfg.NumBuses = e.cfg.NumBuses
	}
	if cfg.OutputChannels == 0 && cfg.SpeakerMapping == 0 {
		cfg.OutputChannels, cfg.SpeakerMapping = e.cfg.OutputChannels, e.cfg.SpeakerMapping
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.racks) >= e.cfg.MaxRacks {
		e.log.WithFields(logrus.Fields{
			"function":  "CreateRack",
			"max_racks": e.cfg.MaxRacks,
		}).Warn("Rack limit reached")
		return RackIDInvalid, ErrTooManyRacks
	}

	id := e.nextRack
	rack, err := newRack(e, id, cfg)
	if err != nil {
		return RackIDInvalid, err
	}
	e.rackMu.Lock()
	e.racks[id] = rack
	e.rackMu.Unlock()
	e.nextRack++

	e.log.WithFields(logrus.Fields{
		"function": "CreateRack",
		"rack":     id,
		"channels": rack.channels,
		"renderer": rack.renderer.String(),
	}).Debug("Rack created")

	return id, nil
}

// DestroyRack removes a rack. The default rack cannot be destroyed.
func (e *Engine) DestroyRack(id RackID) error {
	if err := e.checkBlocking("DestroyRack"); err != nil {
		return err
	}
	if id == RackIDDefault {
		return ErrRackInUse
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.racks[id]; !ok {
		return fmt.Errorf("%w: %d", ErrUnknownRack, id)
	}
	e.rackMu.Lock()
	delete(e.racks, id)
	e.rackMu.Unlock()
	return nil
}

// Rack returns a rack by id.
func (e *Engine) Rack(id RackID) (*Rack, error) {
	e.rackMu.RLock()
	defer e.rackMu.RUnlock()

	r, ok := e.racks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownRack, id)
	}
	return r, nil
}

// DefaultRack returns the rack created with the engine.
func (e *Engine) DefaultRack() *Rack {
	r, _ := e.Rack(RackIDDefault)
	return r
}

// Racks returns the rack ids in ascending order.
func (e *Engine) Racks() []RackID {
	e.rackMu.RLock()
	defer e.rackMu.RUnlock()
	return slices.Sorted(maps.Keys(e.racks))
}

// AddCategory registers a category at runtime.
func (e *Engine) AddCategory(c Category) error {
	if c.Name == "" {
		return fmt.Errorf("%w: unnamed category", ErrInvalidParameter)
	}

	e.catMu.Lock()
	defer e.catMu.Unlock()

	if _, ok := e.categories[c.Name]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateCategory, c.Name)
	}
	e.categories[c.Name] = newCategory(c.Volume)
	return nil
}

func (e *Engine) category(name string) (*category, error) {
	e.catMu.RLock()
	defer e.catMu.RUnlock()

	c, ok := e.categories[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCategory, name)
	}
	return c, nil
}

// SetCategoryVolume changes a category gain. It applies to playing voices
// from the next tick without an Update.
func (e *Engine) SetCategoryVolume(name string, volume float32) error {
	c, err := e.category(name)
	if err != nil {
		return err
	}
	c.volume.Store(math.Float32bits(max(volume, 0)))
	return nil
}

func (e *Engine) CategoryVolume(name string) (float32, error) {
	c, err := e.category(name)
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(c.volume.Load()), nil
}

// MuteCategory silences every voice of a category.
func (e *Engine) MuteCategory(name string, mute bool) error {
	c, err := e.category(name)
	if err != nil {
		return err
	}
	c.muted.Store(mute)
	return nil
}

// categoryGain returns 1 for playbacks without a category. Unknown names are
// treated the same.
func (e *Engine) categoryGain(name string) float32 {
	if name == "" {
		return 1
	}
	e.catMu.RLock()
	c, ok := e.categories[name]
	e.catMu.RUnlock()
	if !ok {
		return 1
	}
	return c.gain()
}

// NumActiveVoices returns the voices currently rendering.
func (e *Engine) NumActiveVoices() int { return e.voices.Active() }

// NumVirtualVoices returns the playbacks waiting for a voice.
func (e *Engine) NumVirtualVoices() int { return e.voices.Virtual() }

func (e *Engine) lookup(id PlaybackID) (*playback, bool) {
	if id == InvalidPlayback {
		return nil, false
	}
	e.pbMu.RLock()
	defer e.pbMu.RUnlock()

	pb, ok := e.playbacks.Get(id.handle())
	if !ok {
		return nil, false
	}
	return *pb, true
}

// PlaybackStatus returns the status of a playback. Unknown and evicted
// handles report StatusStop.
func (e *Engine) PlaybackStatus(id PlaybackID) Status {
	pb, ok := e.lookup(id)
	if !ok {
		return StatusStop
	}
	return pb.loadStatus()
}

// PlaybackInfo returns a snapshot of a playback while it is retained.
func (e *Engine) PlaybackInfo(id PlaybackID) (PlaybackInfo, bool) {
	pb, ok := e.lookup(id)
	if !ok {
		return PlaybackInfo{}, false
	}
	return pb.info(e.cfg.SamplingRate), true
}

// PausePlayback pauses or resumes one playback.
func (e *Engine) PausePlayback(id PlaybackID, pause bool) {
	if pb, ok := e.lookup(id); ok {
		e.push(command{kind: cmdPause, pb: pb, pause: pause})
	}
}

// StopPlayback stops one playback through its release.
func (e *Engine) StopPlayback(id PlaybackID) {
	if pb, ok := e.lookup(id); ok {
		e.push(command{kind: cmdStop, pb: pb})
	}
}

// StopPlaybackWithoutReleaseTime stops one playback at once.
func (e *Engine) StopPlaybackWithoutReleaseTime(id PlaybackID) {
	if pb, ok := e.lookup(id); ok {
		e.push(command{kind: cmdStopNow, pb: pb})
	}
}

// CreatePlayer returns a new player bound to the default rack.
func (e *Engine) CreatePlayer() (*Player, error) {
	if err := e.checkBlocking("CreatePlayer"); err != nil {
		return nil, err
	}

	e.plMu.Lock()
	defer e.plMu.Unlock()

	e.nextPlayer++
	p := &Player{
		e:     e,
		id:    e.nextPlayer,
		racks: []RackID{RackIDDefault},
	}
	e.players[p.id] = p
	return p, nil
}

// NumPlayers returns the players not yet destroyed.
func (e *Engine) NumPlayers() int {
	e.plMu.Lock()
	defer e.plMu.Unlock()
	return len(e.players)
}

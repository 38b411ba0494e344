// SPDX-License-Identifier: EPL-2.0

// Package bus implements the DSP bus graph a rack mixes voices through.
//
// A Graph owns a fixed number of named buses, all with the channel layout of
// the rack's speaker mapping. Voices add their panned audio into buses with
// Accumulate; Process then renders every bus once and interleaves the master
// bus into the rack output.
//
// # Settings
//
// The buses of a graph come from a Setting. DefaultSetting builds the layout a
// rack starts with: MasterOut followed by BUS1..BUS(n-1), each sending to
// MasterOut at unity gain.
//
//	g, err := bus.NewGraph(bus.Config{
//	    Mapping:    bus.MappingStereo,
//	    SampleRate: 48000,
//	    MaxBuses:   bus.DefaultNumBuses,
//	    BlockSize:  800,
//	    Registry:   dsp.NewRegistry(),
//	})
//	err = g.Attach(bus.DefaultSetting(bus.DefaultNumBuses))
//
// Settings carry mapstructure tags so they can be loaded from configuration
// files:
//
//	bus_setting:
//	  name: game
//	  buses:
//	    - name: MasterOut
//	      volume: 1
//	      effects:
//	        - {name: limiter, interface: compressor}
//	    - name: Reverb
//	      sends: [{to: MasterOut, level: 1}]
//	      effects:
//	        - {name: hall, interface: ir_reverb}
//	    - name: SFX
//	      sends:
//	        - {to: MasterOut, level: 1}
//	        - {to: Reverb, level: 0.3, position: 1}
//
// The first bus of a setting is the master bus. Attaching a new setting
// replaces every bus, drops pending input and resets effect state.
//
// # Render Order
//
// Buses render in a topological order of their sends, so a bus is complete
// before anything it feeds runs. Attach rejects settings whose sends form a
// cycle (ErrBusCycle), name a missing bus (ErrUnknownBus) or send a bus to
// itself (ErrSelfSend). Buses with no ordering constraint keep their setting
// order. BusNames lists buses in render order; Master names the output bus.
//
// At runtime SetSendLevel may change the level of any existing send. A new
// send is only accepted toward a bus that renders later; otherwise it is
// refused with ErrSendOrder and a warning.
//
// # Bus Processing
//
// Each bus runs the same fixed pipeline on the audio accumulated into it:
//
//  1. the optional channel matrix (SetMatrix)
//  2. the effect chain, in setting order
//  3. PreVolume sends
//  4. bus volume
//  5. PostVolume sends
//  6. the optional pan (SetPanInfo), then PostPan sends
//  7. analyzer taps
//
// Sends default to PostPan. Taps see exactly what the bus passes on.
//
// # Panning
//
// Matrix computes the gain matrix that places an inCh-channel signal on the
// speaker ring of a mapping, using constant-power pair panning between the two
// speakers around each channel's angle. PanInfo controls angle, distance
// toward the listener, wideness of multichannel sources and spread. The LFE
// channel of 5.1 and 7.1 layouts never receives panned audio.
//
// Position3D turns a Source3D and a Listener3D into a PanInfo: the angle of
// the source around the listener's up axis, and a distance and volume
// attenuation between the source's minimum and maximum distances.
//
// # Output Ports
//
// A port is a named output next to the bus graph, with the graph's channel
// layout. Voices routed to a port with AccumulatePort skip every bus; Process
// hands each port's interleaved block to the portOut callback.
//
// # Errors
//
// Every error is a sentinel wrapped with context, so callers test with
// errors.Is:
//
//	if err := g.SetVolume("Music", 0.5); errors.Is(err, bus.ErrUnknownBus) {
//	    // ...
//	}
//
// Graph methods are safe for concurrent use; Process holds the graph lock for
// the whole block.
package bus

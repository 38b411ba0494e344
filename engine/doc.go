// SPDX-License-Identifier: EPL-2.0

// Package engine mixes playbacks of players into racks of buses.
//
// An Engine renders in ticks. Each call to ExecuteServer applies the commands
// queued since the previous tick in call order, gives voices to new
// playbacks, renders every voice through its filters and pan matrix into the
// buses of its racks, and runs the bus graph of every rack into that rack's
// output queue. A rack is an audio.Source, so its output can be read like any
// decoded stream.
//
// Players hold a pending parameter snapshot. Setters never touch sound that
// is already playing:
//
//	p, _ := e.CreatePlayer()
//	p.SetClip(clip)
//	pb, _ := p.Start()
//
//	p.SetVolume(0.5) // staged only
//	p.Update(pb)     // applied by the next tick
//
// Filter, data request and event callbacks run on the goroutine executing
// the tick. They may use every setter, but blocking calls such as
// ExecuteServer, Lock or CreateRack return ErrCalledFromCallback.
//
// Warnings and errors the engine logs are also kept in a small ring read with
// Engine.Diagnostics.
package engine

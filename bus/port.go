// SPDX-License-Identifier: EPL-2.0

package bus

import (
	"fmt"
	"slices"
)

// Port is a named render destination next to the bus graph. Voices routed to
// a port skip the buses entirely.
type Port struct {
	name     string
	channels int
	planes   [][]float32
	out      []float32
}

// CreatePort adds an output port with the graph's channel layout.
func (g *Graph) CreatePort(name string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.ports[name]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicatePort, name)
	}
	g.ports[name] = &Port{
		name:     name,
		channels: g.channels,
		planes:   g.newPlanes(),
		out:      make([]float32, g.channels*g.cfg.BlockSize),
	}
	return nil
}

// RemovePort deletes an output port.
func (g *Graph) RemovePort(name string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.ports[name]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownPort, name)
	}
	delete(g.ports, name)
	return nil
}

// Ports returns the port names, sorted.
func (g *Graph) Ports() []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	names := make([]string, 0, len(g.ports))
	for n := range g.ports {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// AccumulatePort mixes planes into a port.
func (g *Graph) AccumulatePort(name string, planes [][]float32, frames int, level float32) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if frames > g.cfg.BlockSize {
		return ErrInvalidFrameCount
	}
	p, ok := g.ports[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownPort, name)
	}
	mixInto(p.planes, planes, frames, level)
	return nil
}

func (p *Port) render(frames int) {
	interleave(p.out, p.planes, frames)
	for _, plane := range p.planes {
		clear(plane[:frames])
	}
}

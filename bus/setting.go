// SPDX-License-Identifier: EPL-2.0

package bus

import (
	"fmt"
)

// DefaultNumBuses is the bus ceiling of a rack created without one.
const DefaultNumBuses = 8

// MasterBus is the name of the first bus of the default setting.
const MasterBus = "MasterOut"

// SendPosition is the point in a bus's processing where a send taps the signal.
type SendPosition int

const (
	PostPan SendPosition = iota
	PreVolume
	PostVolume
)

func (p SendPosition) String() string {
	switch p {
	case PreVolume:
		return "pre-volume"
	case PostVolume:
		return "post-volume"
	default:
		return "post-pan"
	}
}

// Send routes a bus into another one.
type Send struct {
	To       string       `mapstructure:"to"`
	Level    float32      `mapstructure:"level"`
	Position SendPosition `mapstructure:"position"`
}

// EffectSpec places an effect on a bus.
type EffectSpec struct {
	Name       string    `mapstructure:"name"`
	Interface  string    `mapstructure:"interface"`
	Parameters []float32 `mapstructure:"parameters"`
	Bypass     bool      `mapstructure:"bypass"`
}

// BusSpec describes one bus of a setting.
type BusSpec struct {
	Name    string       `mapstructure:"name"`
	Volume  float32      `mapstructure:"volume"`
	Pan     *PanInfo     `mapstructure:"pan"`
	Matrix  []float32    `mapstructure:"matrix"`
	Sends   []Send       `mapstructure:"sends"`
	Effects []EffectSpec `mapstructure:"effects"`
}

// Setting is a complete bus configuration. The first bus feeds the rack
// output.
type Setting struct {
	Name  string    `mapstructure:"name"`
	Buses []BusSpec `mapstructure:"buses"`
}

// DefaultSetting returns MasterOut followed by BUS1..BUS(n-1), each sending to
// MasterOut at unity.
func DefaultSetting(numBuses int) Setting {
	numBuses = max(numBuses, 1)
	s := Setting{Name: "default", Buses: make([]BusSpec, numBuses)}
	s.Buses[0] = BusSpec{Name: MasterBus, Volume: 1}
	for i := 1; i < numBuses; i++ {
		s.Buses[i] = BusSpec{
			Name:   fmt.Sprintf("BUS%d", i),
			Volume: 1,
			Sends:  []Send{{To: MasterBus, Level: 1}},
		}
	}
	return s
}

// renderOrder sorts buses so that every send goes to a bus rendered later.
// Ties keep the setting order.
func renderOrder(s Setting) ([]int, error) {
	index := make(map[string]int, len(s.Buses))
	for i, b := range s.Buses {
		if _, dup := index[b.Name]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateBus, b.Name)
		}
		index[b.Name] = i
	}

	indeg := make([]int, len(s.Buses))
	edges := make([][]int, len(s.Buses))
	for i, b := range s.Buses {
		for _, send := range b.Sends {
			j, ok := index[send.To]
			if !ok {
				return nil, fmt.Errorf("%w: %q sends to %q", ErrUnknownBus, b.Name, send.To)
			}
			if j == i {
				return nil, fmt.Errorf("%w: %q", ErrSelfSend, b.Name)
			}
			edges[i] = append(edges[i], j)
			indeg[j]++
		}
	}

	order := make([]int, 0, len(s.Buses))
	done := make([]bool, len(s.Buses))
	for len(order) < len(s.Buses) {
		next := -1
		for i := range s.Buses {
			if !done[i] && indeg[i] == 0 {
				next = i
				break
			}
		}
		if next < 0 {
			return nil, ErrBusCycle
		}
		done[next] = true
		order = append(order, next)
		for _, j := range edges[next] {
			indeg[j]--
		}
	}

	return order, nil
}

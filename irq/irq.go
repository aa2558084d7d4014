// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Trap interrupt registration and dispatch.
package irq

import "fmt"

type State int

const (
	Disable State = iota
	Enable
)

// Entry is one decoded interrupt vector entry.
type Entry struct {
	SrcID uint
	Type  uint
}

// Source handles traps for one registered id.
type Source struct {
	// Number of interrupt types this source decodes.
	NTypes uint
	// Process services one delivered trap.
	Process func(e Entry) error
	// Set is the hardware masking hook; enabling/disabling is policy
	// owned by the caller.
	Set func(typ uint, s State) error
}

// Map routes trap ids to sources.  One registration per id.
type Map struct {
	sources map[uint]*Source
}

func (m *Map) AddID(id uint, s *Source) error {
	if s == nil || s.Process == nil {
		return fmt.Errorf("irq: source for id %d has no process hook", id)
	}
	if m.sources == nil {
		m.sources = make(map[uint]*Source)
	}
	if _, ok := m.sources[id]; ok {
		return fmt.Errorf("irq: id %d already registered", id)
	}
	m.sources[id] = s
	return nil
}

func (m *Map) DelID(id uint) { delete(m.sources, id) }

// Dispatch delivers an entry to its registered source.
func (m *Map) Dispatch(e Entry) error {
	s, ok := m.sources[e.SrcID]
	if !ok {
		return fmt.Errorf("irq: unhandled trap id %d", e.SrcID)
	}
	if e.Type >= s.NTypes {
		return fmt.Errorf("irq: id %d: bad type %d >= %d", e.SrcID, e.Type, s.NTypes)
	}
	return s.Process(e)
}

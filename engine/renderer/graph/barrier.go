package graph

import (
	"fmt"

	vk "github.com/goki/vulkan"
)

// Barrier orders the accesses before it against the accesses after it for
// one resource, optionally changing an image layout.
type Barrier struct {
	Handle Handle
	Image  *Image
	Buffer *Buffer
	Src    ResourceState
	Dst    ResourceState
}

func (b Barrier) IsImage() bool {
	return b.Image != nil
}

// Aspect is the aspect mask of an image barrier.
func (b Barrier) Aspect() vk.ImageAspectFlags {
	if b.Image == nil {
		return 0
	}
	return b.Image.Aspect()
}

func (b Barrier) LayoutChange() bool {
	return b.Src.Layout != b.Dst.Layout
}

func (b Barrier) String() string {
	name := ""
	if b.Image != nil {
		name = b.Image.Name
	} else if b.Buffer != nil {
		name = b.Buffer.Name
	}
	return fmt.Sprintf("%s %q: stage %#x->%#x access %#x->%#x layout %d->%d",
		b.Handle, name, b.Src.Stage, b.Dst.Stage, b.Src.Access, b.Dst.Access, b.Src.Layout, b.Dst.Layout)
}

// Synthesizer walks passes in submission order and emits the barriers each
// one needs. Its per-resource state always reflects the last processed pass.
type Synthesizer struct {
	registry *Registry
	states   map[Handle]*TrackedState
}

func NewSynthesizer(registry *Registry) *Synthesizer {
	return &Synthesizer{
		registry: registry,
		states:   make(map[Handle]*TrackedState, 32),
	}
}

// Reset forgets all tracked state. Resources fall back to their registered
// initial state.
func (s *Synthesizer) Reset() {
	clear(s.states)
}

// State returns the tracked state of h after the passes stepped so far.
func (s *Synthesizer) State(h Handle) TrackedState {
	return *s.tracked(h)
}

func (s *Synthesizer) tracked(h Handle) *TrackedState {
	if st, ok := s.states[h]; ok {
		return st
	}
	initial := s.registry.initialState(h)
	st := &TrackedState{Last: initial, Visible: initial}
	if initial == StateUndefined {
		st.Pending = priorWork
		st.Visible = ResourceState{}
	}
	s.states[h] = st
	return st
}

// Step processes one pass and returns the barriers to record before its
// commands, in access order.
func (s *Synthesizer) Step(p *Pass) []Barrier {
	var barriers []Barrier
	for _, a := range p.Accesses() {
		res := s.registry.MustResolve(a.Handle)
		st := s.tracked(a.Handle)
		if b, ok := s.transition(st, a.Usage, res.Kind() == ResourceKindImage); ok {
			b.Handle = a.Handle
			switch r := res.(type) {
			case *Image:
				b.Image = r
			case *Buffer:
				b.Buffer = r
			}
			barriers = append(barriers, b)
		}
	}
	return barriers
}

// transition advances st to the required usage and reports the barrier
// needed to get there, if any.
func (s *Synthesizer) transition(st *TrackedState, req Usage, image bool) (Barrier, bool) {
	required := req.ResourceState
	if !image {
		required.Layout = vk.ImageLayoutUndefined
	}
	layoutChange := image && st.Last.Layout != required.Layout

	if req.writes() || layoutChange {
		needed := layoutChange || st.Touched() || st.Pending.Stage != 0
		b := Barrier{
			Src: ResourceState{
				Stage:  orTop(st.Last.Stage | st.Pending.Stage),
				Access: st.Pending.Access & writeAccessMask,
				Layout: st.Last.Layout,
			},
			Dst: required,
		}
		st.Last = required
		st.Pending = ResourceState{Stage: required.Stage, Access: required.Access & writeAccessMask}
		if req.writes() {
			st.Visible = ResourceState{}
		} else {
			// Readers in the destination scope see the transition.
			st.Visible = required
		}
		return b, needed
	}

	// Read in the current layout.
	if st.Pending.Stage == 0 || covers(st.Visible, required) {
		st.Last.Stage |= required.Stage
		st.Last.Access |= required.Access
		if st.Pending.Stage != 0 {
			st.Visible.Stage |= required.Stage
			st.Visible.Access |= required.Access
		}
		return Barrier{}, false
	}

	b := Barrier{
		Src: ResourceState{
			Stage:  st.Pending.Stage | st.Visible.Stage,
			Access: st.Pending.Access,
			Layout: st.Last.Layout,
		},
		Dst: required,
	}
	st.Last.Stage |= required.Stage
	st.Last.Access |= required.Access
	st.Visible.Stage |= required.Stage
	st.Visible.Access |= required.Access
	return b, true
}

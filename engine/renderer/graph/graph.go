package graph

import (
	"fmt"

	"github.com/TideSofDarK/RrFramework-sub001/engine/containers"
	"github.com/TideSofDarK/RrFramework-sub001/engine/core"
)

// Graph is the per-frame list of passes and the resources they use.
type Graph struct {
	registry *Registry
	synth    *Synthesizer
	arena    *containers.Arena[Pass]
	passes   []*Pass
	frame    uint64
}

func New() *Graph {
	registry := NewRegistry()
	return &Graph{
		registry: registry,
		synth:    NewSynthesizer(registry),
		arena:    containers.NewArena[Pass](32),
		passes:   make([]*Pass, 0, 32),
	}
}

// Begin starts building a new frame. Handles and passes of the previous frame
// become invalid.
func (g *Graph) Begin() {
	g.registry.Reset()
	g.synth.Reset()
	clear(g.passes)
	g.passes = g.passes[:0]
	g.arena.Reset()
	g.frame++
}

// Frame counts Begin calls.
func (g *Graph) Frame() uint64 {
	return g.frame
}

func (g *Graph) Registry() *Registry {
	return g.registry
}

// Register adds a resource whose content is undefined at frame start.
func (g *Graph) Register(res Resource) Handle {
	return g.registry.Register(res)
}

// Import adds a resource that enters the frame in the given state.
func (g *Graph) Import(res Resource, state ResourceState) Handle {
	return g.registry.Import(res, state)
}

func (g *Graph) Resolve(h Handle) (Resource, error) {
	return g.registry.Resolve(h)
}

// AddPass appends a pass. Targets are only valid on graphics passes.
func (g *Graph) AddPass(kind PassKind, name string, targets ...Attachment) *Pass {
	p := g.arena.Alloc()
	p.reset(g, kind, name)
	if len(targets) > 0 && kind != PassGraphics {
		p.invalid("render targets on a non-graphics pass")
	}
	for _, t := range targets {
		img, ok := g.registry.MustResolve(t.Handle).(*Image)
		if !ok {
			p.invalid("render target %s is not an image", t.Handle)
		}
		if t.Depth != img.IsDepth() {
			p.invalid("render target %q has a mismatched aspect", img.Name)
		}
		p.targets = append(p.targets, t)
		p.Access(t.Handle, t.usage())
	}
	g.passes = append(g.passes, p)
	return p
}

// Present appends the pass that hands h to the presentation engine.
func (g *Graph) Present(h Handle) *Pass {
	p := g.AddPass(PassPresent, "present")
	if _, ok := g.registry.MustResolve(h).(*Image); !ok {
		p.invalid("presenting %s which is not an image", h)
	}
	p.present = h
	return p
}

func (g *Graph) Passes() []*Pass {
	return g.passes
}

// Compile runs the synthesizer over every pass and returns the barriers of
// each, indexed like Passes. Tracked state is left at the end of the frame.
func (g *Graph) Compile() [][]Barrier {
	g.synth.Reset()
	out := make([][]Barrier, len(g.passes))
	for i, p := range g.passes {
		out[i] = g.synth.Step(p)
	}
	return out
}

// State returns the tracked state of h after the last Compile or Execute.
func (g *Graph) State(h Handle) TrackedState {
	return g.synth.State(h)
}

// Execute synthesizes barriers and replays every pass into rec in order.
func (g *Graph) Execute(rec Recorder) error {
	g.synth.Reset()
	ctx := &ReplayContext{Recorder: rec, registry: g.registry}
	for _, p := range g.passes {
		if barriers := g.synth.Step(p); len(barriers) > 0 {
			rec.PipelineBarrier(barriers)
		}
		ctx.Pass = p
		if err := g.replay(ctx, p); err != nil {
			return err
		}
	}
	core.LogDebug("graph frame %d: replayed %d passes", g.frame, len(g.passes))
	return nil
}

func (g *Graph) replay(ctx *ReplayContext, p *Pass) error {
	if p.Kind == PassGraphics {
		ctx.Recorder.BeginRendering(g.renderingInfo(ctx, p))
		defer ctx.Recorder.EndRendering()
	}
	for _, cmd := range p.commands {
		if err := cmd.Replay(ctx); err != nil {
			return fmt.Errorf("%s pass %q: %w", p.Kind, p.Name, err)
		}
	}
	return nil
}

func (g *Graph) renderingInfo(ctx *ReplayContext, p *Pass) RenderingInfo {
	info := RenderingInfo{PassName: p.Name}
	for _, t := range p.targets {
		rt := RenderTarget{Image: ctx.Image(t.Handle), Layout: ctx.Layout(t.Handle), Attachment: t}
		if info.Width == 0 || rt.Image.Width < info.Width {
			info.Width = rt.Image.Width
		}
		if info.Height == 0 || rt.Image.Height < info.Height {
			info.Height = rt.Image.Height
		}
		if t.Depth {
			info.Depth = &rt
		} else {
			info.Color = append(info.Color, rt)
		}
	}
	return info
}

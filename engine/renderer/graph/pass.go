package graph

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/TideSofDarK/RrFramework-sub001/engine/core"
)

type PassKind uint8

const (
	PassGraphics PassKind = iota
	PassCompute
	PassTransfer
	PassBlit
	PassPresent
)

func (k PassKind) String() string {
	switch k {
	case PassGraphics:
		return "graphics"
	case PassCompute:
		return "compute"
	case PassTransfer:
		return "transfer"
	case PassBlit:
		return "blit"
	case PassPresent:
		return "present"
	default:
		return "unknown"
	}
}

type LoadOp uint8

const (
	LoadOpLoad LoadOp = iota
	LoadOpClear
	LoadOpDontCare
)

func (op LoadOp) Vulkan() vk.AttachmentLoadOp {
	switch op {
	case LoadOpClear:
		return vk.AttachmentLoadOpClear
	case LoadOpDontCare:
		return vk.AttachmentLoadOpDontCare
	default:
		return vk.AttachmentLoadOpLoad
	}
}

type StoreOp uint8

const (
	StoreOpStore StoreOp = iota
	StoreOpDontCare
)

func (op StoreOp) Vulkan() vk.AttachmentStoreOp {
	if op == StoreOpDontCare {
		return vk.AttachmentStoreOpDontCare
	}
	return vk.AttachmentStoreOpStore
}

type ClearValue struct {
	Color   [4]float32
	Depth   float32
	Stencil uint32
}

func ClearColor(r, g, b, a float32) ClearValue {
	return ClearValue{Color: [4]float32{r, g, b, a}}
}

func ClearDepth(depth float32, stencil uint32) ClearValue {
	return ClearValue{Depth: depth, Stencil: stencil}
}

// Attachment is a render target of a graphics pass.
type Attachment struct {
	Handle Handle
	Depth  bool
	Load   LoadOp
	Store  StoreOp
	Clear  ClearValue
}

func ColorTarget(h Handle, load LoadOp, store StoreOp, clear ClearValue) Attachment {
	return Attachment{Handle: h, Load: load, Store: store, Clear: clear}
}

func DepthTarget(h Handle, load LoadOp, store StoreOp, clear ClearValue) Attachment {
	return Attachment{Handle: h, Depth: true, Load: load, Store: store, Clear: clear}
}

func (a Attachment) usage() Usage {
	u := UsageColorAttachment
	if a.Depth {
		u = UsageDepthAttachment
	}
	if a.Load == LoadOpLoad {
		u.Kind |= AccessRead
		if !a.Depth {
			u.Access |= vk.AccessFlags(vk.AccessColorAttachmentReadBit)
		}
	}
	return u
}

// PassAccess is one merged resource access of a pass.
type PassAccess struct {
	Handle Handle
	Usage
}

type pendingSet struct {
	set      uint32
	bindings []bindingDecl
	dirty    bool
}

// Pass is a node of the frame graph. Passes are created by Graph.AddPass and
// live until the next Graph.Begin.
type Pass struct {
	Kind PassKind
	Name string

	graph    *Graph
	targets  []Attachment
	accesses []PassAccess
	present  Handle
	commands []Command
	pipeline *Pipeline
	sets     []pendingSet
}

func (p *Pass) reset(g *Graph, kind PassKind, name string) {
	p.Kind = kind
	p.Name = name
	p.graph = g
	p.targets = p.targets[:0]
	p.accesses = p.accesses[:0]
	p.present = InvalidHandle
	clear(p.commands)
	p.commands = p.commands[:0]
	p.pipeline = nil
	for i := range p.sets {
		p.sets[i].bindings = p.sets[i].bindings[:0]
	}
	p.sets = p.sets[:0]
}

func (p *Pass) invalid(format string, args ...any) {
	panic(fmt.Errorf("graph: %s pass %q: %s: %w", p.Kind, p.Name, fmt.Sprintf(format, args...), core.ErrInvalidPass))
}

func (p *Pass) require(kinds ...PassKind) {
	for _, k := range kinds {
		if p.Kind == k {
			return
		}
	}
	p.invalid("operation needs a %v pass", kinds)
}

// Accesses returns the merged accesses in declaration order. The present
// access of a present pass comes last.
func (p *Pass) Accesses() []PassAccess {
	if !p.present.IsValid() {
		return p.accesses
	}
	out := make([]PassAccess, 0, len(p.accesses)+1)
	out = append(out, p.accesses...)
	return append(out, PassAccess{Handle: p.present, Usage: UsagePresent})
}

func (p *Pass) Targets() []Attachment {
	return p.targets
}

func (p *Pass) Commands() []Command {
	return p.commands
}

// Access declares that the pass uses h as described by usage. Declarations
// on the same handle merge.
func (p *Pass) Access(h Handle, usage Usage) *Pass {
	res := p.graph.registry.MustResolve(h)
	if res.Kind() == ResourceKindBuffer {
		usage.Layout = vk.ImageLayoutUndefined
	} else if usage.Layout == vk.ImageLayoutUndefined {
		p.invalid("image %q declared without a layout", res.DebugName())
	}

	for i := range p.accesses {
		if p.accesses[i].Handle == h {
			p.accesses[i].Usage = p.accesses[i].Usage.merge(usage)
			return p
		}
	}
	p.accesses = append(p.accesses, PassAccess{Handle: h, Usage: usage})
	return p
}

// layoutOf returns the merged layout this pass declared for h, or
// ImageLayoutUndefined when it declared none.
func (p *Pass) layoutOf(h Handle) vk.ImageLayout {
	for _, a := range p.accesses {
		if a.Handle == h {
			return a.Layout
		}
	}
	return vk.ImageLayoutUndefined
}

// Record appends an opaque command.
func (p *Pass) Record(cmd Command) *Pass {
	if p.Kind == PassPresent {
		p.invalid("present passes carry no commands")
	}
	p.commands = append(p.commands, cmd)
	return p
}

func (p *Pass) shaderStage() vk.PipelineStageFlags {
	switch p.Kind {
	case PassGraphics:
		return stageGraphics
	case PassCompute:
		return stageCompute
	default:
		p.invalid("shader bindings need a graphics or compute pass")
		return 0
	}
}

func (p *Pass) BindPipeline(pipeline *Pipeline) *Pass {
	want := vk.PipelineBindPointGraphics
	if p.Kind == PassCompute {
		want = vk.PipelineBindPointCompute
	} else {
		p.require(PassGraphics)
	}
	if pipeline.BindPoint != want {
		p.invalid("pipeline %q has the wrong bind point", pipeline.Name)
	}
	p.pipeline = pipeline
	for i := range p.sets {
		p.sets[i].dirty = true
	}
	return p.Record(&bindPipelineCmd{pipeline: pipeline})
}

func (p *Pass) declare(set uint32, decl bindingDecl) {
	var ps *pendingSet
	for i := range p.sets {
		if p.sets[i].set == set {
			ps = &p.sets[i]
			break
		}
	}
	if ps == nil {
		p.sets = append(p.sets, pendingSet{set: set})
		ps = &p.sets[len(p.sets)-1]
	}
	ps.dirty = true
	for i := range ps.bindings {
		if ps.bindings[i].binding == decl.binding {
			ps.bindings[i] = decl
			return
		}
	}
	ps.bindings = append(ps.bindings, decl)
}

func storageUsage(kind AccessKind) Usage {
	switch kind {
	case AccessRead:
		return UsageStorageRead
	case AccessWrite:
		return UsageStorageWrite
	default:
		return UsageStorageReadWrite
	}
}

func (p *Pass) BindUniformBuffer(set, binding uint32, h Handle) *Pass {
	p.Access(h, UsageUniform.At(p.shaderStage()))
	p.declare(set, bindingDecl{binding: binding, kind: vk.DescriptorTypeUniformBuffer, handle: h})
	return p
}

func (p *Pass) BindStorageBuffer(set, binding uint32, h Handle, kind AccessKind) *Pass {
	p.Access(h, storageUsage(kind).At(p.shaderStage()))
	p.declare(set, bindingDecl{binding: binding, kind: vk.DescriptorTypeStorageBuffer, handle: h})
	return p
}

func (p *Pass) BindSampledImage(set, binding uint32, h Handle, sampler vk.Sampler) *Pass {
	stage := p.shaderStage()
	if p.Kind == PassGraphics {
		stage = UsageSampled.Stage
	}
	p.Access(h, UsageSampled.At(stage))
	p.declare(set, bindingDecl{
		binding: binding,
		kind:    vk.DescriptorTypeCombinedImageSampler,
		handle:  h,
		layout:  vk.ImageLayoutShaderReadOnlyOptimal,
		sampler: sampler,
	})
	return p
}

func (p *Pass) BindStorageImage(set, binding uint32, h Handle, kind AccessKind) *Pass {
	p.Access(h, storageUsage(kind).At(p.shaderStage()))
	p.declare(set, bindingDecl{binding: binding, kind: vk.DescriptorTypeStorageImage, handle: h, layout: vk.ImageLayoutGeneral})
	return p
}

func (p *Pass) BindSampler(set, binding uint32, sampler vk.Sampler) *Pass {
	p.shaderStage()
	p.declare(set, bindingDecl{binding: binding, kind: vk.DescriptorTypeSampler, sampler: sampler})
	return p
}

func (p *Pass) BindVertexBuffer(first uint32, h Handle, offset vk.DeviceSize) *Pass {
	p.require(PassGraphics)
	p.Access(h, UsageVertex)
	return p.Record(&bindVertexCmd{first: first, handle: h, offset: offset})
}

func (p *Pass) BindIndexBuffer(h Handle, offset vk.DeviceSize, indexType vk.IndexType) *Pass {
	p.require(PassGraphics)
	p.Access(h, UsageIndex)
	return p.Record(&bindIndexCmd{handle: h, offset: offset, indexType: indexType})
}

func (p *Pass) PushConstants(stages vk.ShaderStageFlags, offset uint32, data []byte) *Pass {
	if p.pipeline == nil {
		p.invalid("push constants before a pipeline is bound")
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	return p.Record(&pushConstantsCmd{pipeline: p.pipeline, stages: stages, offset: offset, data: buf})
}

func (p *Pass) SetViewport(viewport vk.Viewport) *Pass {
	p.require(PassGraphics)
	return p.Record(&viewportCmd{viewport: viewport})
}

func (p *Pass) SetScissor(scissor vk.Rect2D) *Pass {
	p.require(PassGraphics)
	return p.Record(&scissorCmd{scissor: scissor})
}

// flush records the descriptor sets changed since the last draw or dispatch.
func (p *Pass) flush() {
	if p.pipeline == nil {
		p.invalid("draw or dispatch before a pipeline is bound")
	}
	for i := range p.sets {
		ps := &p.sets[i]
		if !ps.dirty {
			continue
		}
		bindings := make([]bindingDecl, len(ps.bindings))
		copy(bindings, ps.bindings)
		p.Record(&bindSetCmd{pipeline: p.pipeline, set: ps.set, bindings: bindings})
		ps.dirty = false
	}
}

func (p *Pass) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) *Pass {
	p.require(PassGraphics)
	p.flush()
	return p.Record(&drawCmd{vertexCount, instanceCount, firstVertex, firstInstance})
}

func (p *Pass) DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) *Pass {
	p.require(PassGraphics)
	p.flush()
	return p.Record(&drawIndexedCmd{indexCount, instanceCount, firstIndex, vertexOffset, firstInstance})
}

func (p *Pass) Dispatch(x, y, z uint32) *Pass {
	p.require(PassCompute)
	p.flush()
	return p.Record(&dispatchCmd{x, y, z})
}

func (p *Pass) CopyBuffer(src, dst Handle, regions ...vk.BufferCopy) *Pass {
	p.require(PassTransfer, PassBlit)
	p.Access(src, UsageTransferSrc)
	p.Access(dst, UsageTransferDst)
	return p.Record(&copyBufferCmd{src: src, dst: dst, regions: regions})
}

func (p *Pass) CopyBufferToImage(src, dst Handle, regions ...vk.BufferImageCopy) *Pass {
	p.require(PassTransfer, PassBlit)
	p.Access(src, UsageTransferSrc)
	p.Access(dst, UsageTransferDst)
	return p.Record(&copyBufferToImageCmd{src: src, dst: dst, regions: regions})
}

func (p *Pass) CopyImage(src, dst Handle, regions ...vk.ImageCopy) *Pass {
	p.require(PassTransfer, PassBlit)
	p.Access(src, UsageTransferSrc)
	p.Access(dst, UsageTransferDst)
	return p.Record(&copyImageCmd{src: src, dst: dst, regions: regions})
}

// BlitImage scales src into dst. Without regions the whole of mip 0 is
// blitted.
func (p *Pass) BlitImage(src, dst Handle, filter vk.Filter, regions ...vk.ImageBlit) *Pass {
	p.require(PassTransfer, PassBlit)
	p.Access(src, UsageTransferSrc)
	p.Access(dst, UsageTransferDst)
	return p.Record(&blitImageCmd{src: src, dst: dst, filter: filter, regions: regions})
}

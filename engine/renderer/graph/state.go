package graph

import (
	vk "github.com/goki/vulkan"
)

// AccessKind tells whether an access reads, writes, or does both.
type AccessKind uint8

const (
	AccessRead AccessKind = 1 << iota
	AccessWrite

	AccessReadWrite = AccessRead | AccessWrite
)

func (k AccessKind) String() string {
	switch k {
	case AccessRead:
		return "read"
	case AccessWrite:
		return "write"
	case AccessReadWrite:
		return "read-write"
	default:
		return "none"
	}
}

// ResourceState is the GPU-visible state a resource is in, or must be in.
// Layout is meaningless for buffers and stays ImageLayoutUndefined.
type ResourceState struct {
	Stage  vk.PipelineStageFlags
	Access vk.AccessFlags
	Layout vk.ImageLayout
}

// StateUndefined is the state of a resource nothing has touched this frame.
// The synthesizer treats its history as unknown: the first barrier on it
// waits for all earlier commands on the queue.
var StateUndefined = ResourceState{}

// priorWork is the pending scope of a resource with unknown history. It
// chains with the swapchain acquire wait and with frames still in flight.
var priorWork = ResourceState{
	Stage:  stages(vk.PipelineStageAllCommandsBit),
	Access: accesses(vk.AccessMemoryWriteBit),
}

// Usage is a declared access: its kind plus the state required on entry.
type Usage struct {
	Kind AccessKind
	ResourceState
}

// At returns a copy of u required at the given stages instead.
func (u Usage) At(stage vk.PipelineStageFlags) Usage {
	u.Stage = stage
	return u
}

func stages(bits ...vk.PipelineStageFlagBits) vk.PipelineStageFlags {
	var flags vk.PipelineStageFlags
	for _, b := range bits {
		flags |= vk.PipelineStageFlags(b)
	}
	return flags
}

func accesses(bits ...vk.AccessFlagBits) vk.AccessFlags {
	var flags vk.AccessFlags
	for _, b := range bits {
		flags |= vk.AccessFlags(b)
	}
	return flags
}

var (
	stageTop      = stages(vk.PipelineStageTopOfPipeBit)
	stageBottom   = stages(vk.PipelineStageBottomOfPipeBit)
	stageGraphics = stages(vk.PipelineStageVertexShaderBit, vk.PipelineStageFragmentShaderBit)
	stageCompute  = stages(vk.PipelineStageComputeShaderBit)
	stageTransfer = stages(vk.PipelineStageTransferBit)

	writeAccessMask = accesses(
		vk.AccessShaderWriteBit,
		vk.AccessColorAttachmentWriteBit,
		vk.AccessDepthStencilAttachmentWriteBit,
		vk.AccessTransferWriteBit,
		vk.AccessHostWriteBit,
		vk.AccessMemoryWriteBit,
	)
)

// Usage presets. Shader-facing presets default to the fragment or compute
// stage; the binding API moves them to the stage of the pass kind.
var (
	UsageColorAttachment = Usage{AccessWrite, ResourceState{
		Stage:  stages(vk.PipelineStageColorAttachmentOutputBit),
		Access: accesses(vk.AccessColorAttachmentWriteBit),
		Layout: vk.ImageLayoutColorAttachmentOptimal,
	}}
	UsageDepthAttachment = Usage{AccessReadWrite, ResourceState{
		Stage:  stages(vk.PipelineStageEarlyFragmentTestsBit, vk.PipelineStageLateFragmentTestsBit),
		Access: accesses(vk.AccessDepthStencilAttachmentReadBit, vk.AccessDepthStencilAttachmentWriteBit),
		Layout: vk.ImageLayoutDepthStencilAttachmentOptimal,
	}}
	UsageDepthRead = Usage{AccessRead, ResourceState{
		Stage:  stages(vk.PipelineStageEarlyFragmentTestsBit, vk.PipelineStageLateFragmentTestsBit, vk.PipelineStageFragmentShaderBit),
		Access: accesses(vk.AccessDepthStencilAttachmentReadBit, vk.AccessShaderReadBit),
		Layout: vk.ImageLayoutDepthStencilReadOnlyOptimal,
	}}
	UsageSampled = Usage{AccessRead, ResourceState{
		Stage:  stages(vk.PipelineStageFragmentShaderBit),
		Access: accesses(vk.AccessShaderReadBit),
		Layout: vk.ImageLayoutShaderReadOnlyOptimal,
	}}
	UsageStorageRead = Usage{AccessRead, ResourceState{
		Stage:  stageCompute,
		Access: accesses(vk.AccessShaderReadBit),
		Layout: vk.ImageLayoutGeneral,
	}}
	UsageStorageWrite = Usage{AccessWrite, ResourceState{
		Stage:  stageCompute,
		Access: accesses(vk.AccessShaderWriteBit),
		Layout: vk.ImageLayoutGeneral,
	}}
	UsageStorageReadWrite = Usage{AccessReadWrite, ResourceState{
		Stage:  stageCompute,
		Access: accesses(vk.AccessShaderReadBit, vk.AccessShaderWriteBit),
		Layout: vk.ImageLayoutGeneral,
	}}
	UsageUniform = Usage{AccessRead, ResourceState{
		Stage:  stageGraphics,
		Access: accesses(vk.AccessUniformReadBit),
	}}
	UsageVertex = Usage{AccessRead, ResourceState{
		Stage:  stages(vk.PipelineStageVertexInputBit),
		Access: accesses(vk.AccessVertexAttributeReadBit),
	}}
	UsageIndex = Usage{AccessRead, ResourceState{
		Stage:  stages(vk.PipelineStageVertexInputBit),
		Access: accesses(vk.AccessIndexReadBit),
	}}
	UsageIndirect = Usage{AccessRead, ResourceState{
		Stage:  stages(vk.PipelineStageDrawIndirectBit),
		Access: accesses(vk.AccessIndirectCommandReadBit),
	}}
	UsageTransferSrc = Usage{AccessRead, ResourceState{
		Stage:  stageTransfer,
		Access: accesses(vk.AccessTransferReadBit),
		Layout: vk.ImageLayoutTransferSrcOptimal,
	}}
	UsageTransferDst = Usage{AccessWrite, ResourceState{
		Stage:  stageTransfer,
		Access: accesses(vk.AccessTransferWriteBit),
		Layout: vk.ImageLayoutTransferDstOptimal,
	}}
	UsagePresent = Usage{AccessRead, ResourceState{
		Stage:  stageBottom,
		Layout: vk.ImageLayoutPresentSrc,
	}}
)

// merge folds a second declaration on the same resource into u.
func (u Usage) merge(o Usage) Usage {
	out := Usage{
		Kind: u.Kind | o.Kind,
		ResourceState: ResourceState{
			Stage:  u.Stage | o.Stage,
			Access: u.Access | o.Access,
			Layout: u.Layout,
		},
	}
	switch {
	case u.Layout == o.Layout:
	case u.Layout == vk.ImageLayoutUndefined:
		out.Layout = o.Layout
	case o.Layout == vk.ImageLayoutUndefined:
	default:
		out.Layout = vk.ImageLayoutGeneral
	}
	return out
}

// writes reports whether the usage makes new data that later accesses must
// wait for.
func (u Usage) writes() bool {
	return u.Kind&AccessWrite != 0 || u.Access&writeAccessMask != 0
}

// TrackedState is what the synthesizer knows about one resource at a point in
// the pass sequence.
type TrackedState struct {
	// Last is the state left by the most recent accesses. Reads since the
	// last write or transition accumulate into its masks.
	Last ResourceState
	// Pending is the stage and write access of the last write or layout
	// transition. Registered resources start with all earlier queue work
	// pending; imported ones start with nothing pending.
	Pending ResourceState
	// Visible is the union of stages and accesses already ordered after
	// Pending.
	Visible ResourceState
}

// Touched reports whether any access has been tracked.
func (t TrackedState) Touched() bool {
	return t.Last.Stage != 0 || t.Last.Layout != vk.ImageLayoutUndefined
}

func covers(have, want ResourceState) bool {
	return have.Stage&want.Stage == want.Stage && have.Access&want.Access == want.Access
}

func orTop(stage vk.PipelineStageFlags) vk.PipelineStageFlags {
	if stage == 0 {
		return stageTop
	}
	return stage
}

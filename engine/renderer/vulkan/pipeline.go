package vulkan

import (
	vk "github.com/goki/vulkan"

	"github.com/TideSofDarK/RrFramework-sub001/engine/core"
	"github.com/TideSofDarK/RrFramework-sub001/engine/renderer/graph"
)

/**
 * @brief Holds a Vulkan pipeline and the layouts it owns.
 */
type VulkanPipeline struct {
	graph.Pipeline
}

type VulkanComputePipelineConfig struct {
	/** @brief Debug name, also used in logs. */
	Name string
	/** @brief The SPIR-V code of the compute stage. */
	Code []byte
	/** @brief One entry per descriptor set, in set order. */
	Sets [][]vk.DescriptorSetLayoutBinding
	/** @brief Size in bytes of the push constant block, 0 for none. */
	PushConstantSize uint32
}

func ComputePipelineCreate(context *VulkanContext, config VulkanComputePipelineConfig) (*VulkanPipeline, error) {
	out := &VulkanPipeline{
		Pipeline: graph.Pipeline{
			Name:      config.Name,
			BindPoint: vk.PipelineBindPointCompute,
		},
	}

	for _, bindings := range config.Sets {
		layout, err := DescriptorSetLayoutCreate(context, bindings)
		if err != nil {
			out.PipelineDestroy(context)
			return nil, err
		}
		out.SetLayouts = append(out.SetLayouts, layout)
	}

	layoutCreateInfo := vk.PipelineLayoutCreateInfo{
		SType:          vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount: uint32(len(out.SetLayouts)),
		PSetLayouts:    out.SetLayouts,
	}
	if config.PushConstantSize > 0 {
		layoutCreateInfo.PushConstantRangeCount = 1
		layoutCreateInfo.PPushConstantRanges = []vk.PushConstantRange{{
			StageFlags: vk.ShaderStageFlags(vk.ShaderStageComputeBit),
			Size:       config.PushConstantSize,
		}}
	}

	var layout vk.PipelineLayout
	if res := vk.CreatePipelineLayout(context.Device.LogicalDevice, &layoutCreateInfo, context.Allocator, &layout); res != vk.Success {
		out.PipelineDestroy(context)
		return nil, vulkanError("vkCreatePipelineLayout", res)
	}
	out.Layout = layout

	stage, err := ShaderModuleCreate(context, config.Name, config.Code, vk.ShaderStageComputeBit)
	if err != nil {
		out.PipelineDestroy(context)
		return nil, err
	}
	// The module is not needed once the pipeline exists.
	defer stage.Destroy(context)

	pipelineCreateInfo := vk.ComputePipelineCreateInfo{
		SType:  vk.StructureTypeComputePipelineCreateInfo,
		Stage:  stage.ShaderStageCreateInfo,
		Layout: layout,
	}

	pipelines := make([]vk.Pipeline, 1)
	if res := vk.CreateComputePipelines(context.Device.LogicalDevice, vk.NullPipelineCache, 1, []vk.ComputePipelineCreateInfo{pipelineCreateInfo}, context.Allocator, pipelines); res != vk.Success {
		out.PipelineDestroy(context)
		return nil, vulkanError("vkCreateComputePipelines", res)
	}
	out.Handle = pipelines[0]

	core.LogDebug("Compute pipeline '%s' created.", config.Name)
	return out, nil
}

func (p *VulkanPipeline) PipelineDestroy(context *VulkanContext) {
	if p.Handle != nil {
		vk.DestroyPipeline(context.Device.LogicalDevice, p.Handle, context.Allocator)
		p.Handle = nil
	}
	if p.Layout != nil {
		vk.DestroyPipelineLayout(context.Device.LogicalDevice, p.Layout, context.Allocator)
		p.Layout = nil
	}
	for _, layout := range p.SetLayouts {
		vk.DestroyDescriptorSetLayout(context.Device.LogicalDevice, layout, context.Allocator)
	}
	p.SetLayouts = nil
}

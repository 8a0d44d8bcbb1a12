package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/TideSofDarK/RrFramework-sub001/engine/core"
)

// VulkanDescriptorBackend drives descriptor pools for descriptor.Allocator.
type VulkanDescriptorBackend struct {
	context *VulkanContext
}

func NewVulkanDescriptorBackend(context *VulkanContext) *VulkanDescriptorBackend {
	return &VulkanDescriptorBackend{context: context}
}

func (b *VulkanDescriptorBackend) CreatePool(maxSets uint32, sizes []vk.DescriptorPoolSize) (vk.DescriptorPool, error) {
	poolCreateInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       maxSets,
		PoolSizeCount: uint32(len(sizes)),
		PPoolSizes:    sizes,
	}
	var pool vk.DescriptorPool
	if res := vk.CreateDescriptorPool(b.context.Device.LogicalDevice, &poolCreateInfo, b.context.Allocator, &pool); res != vk.Success {
		return vk.NullDescriptorPool, vulkanError("vkCreateDescriptorPool", res)
	}
	return pool, nil
}

func (b *VulkanDescriptorBackend) AllocateSet(pool vk.DescriptorPool, layout vk.DescriptorSetLayout) (vk.DescriptorSet, error) {
	allocateInfo := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     pool,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{layout},
	}
	var set vk.DescriptorSet
	if res := vk.AllocateDescriptorSets(b.context.Device.LogicalDevice, &allocateInfo, &set); res != vk.Success {
		return nil, allocationError(res)
	}
	return set, nil
}

// allocationError maps the results that mean "this pool is full" to
// core.ErrPoolFull so the allocator moves on to a new pool.
func allocationError(res vk.Result) error {
	switch res {
	case vk.ErrorOutOfPoolMemory, vk.ErrorFragmentedPool:
		return fmt.Errorf("vkAllocateDescriptorSets: %s: %w", VulkanResultString(res, false), core.ErrPoolFull)
	default:
		return vulkanError("vkAllocateDescriptorSets", res)
	}
}

func (b *VulkanDescriptorBackend) ResetPool(pool vk.DescriptorPool) error {
	if res := vk.ResetDescriptorPool(b.context.Device.LogicalDevice, pool, 0); res != vk.Success {
		return vulkanError("vkResetDescriptorPool", res)
	}
	return nil
}

func (b *VulkanDescriptorBackend) DestroyPool(pool vk.DescriptorPool) {
	vk.DestroyDescriptorPool(b.context.Device.LogicalDevice, pool, b.context.Allocator)
}

func DescriptorSetLayoutCreate(context *VulkanContext, bindings []vk.DescriptorSetLayoutBinding) (vk.DescriptorSetLayout, error) {
	layoutCreateInfo := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(bindings)),
		PBindings:    bindings,
	}
	var layout vk.DescriptorSetLayout
	if res := vk.CreateDescriptorSetLayout(context.Device.LogicalDevice, &layoutCreateInfo, context.Allocator, &layout); res != vk.Success {
		return vk.NullDescriptorSetLayout, vulkanError("vkCreateDescriptorSetLayout", res)
	}
	return layout, nil
}

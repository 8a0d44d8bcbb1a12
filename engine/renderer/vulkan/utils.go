package vulkan

import (
	"errors"
	"fmt"

	vk "github.com/goki/vulkan"
	"golang.org/x/exp/constraints"

	"github.com/TideSofDarK/RrFramework-sub001/engine/core"
)

var resultNames = map[vk.Result]string{
	vk.Success:                          "VK_SUCCESS",
	vk.NotReady:                         "VK_NOT_READY",
	vk.Timeout:                          "VK_TIMEOUT",
	vk.EventSet:                         "VK_EVENT_SET",
	vk.EventReset:                       "VK_EVENT_RESET",
	vk.Incomplete:                       "VK_INCOMPLETE",
	vk.Suboptimal:                       "VK_SUBOPTIMAL_KHR",
	vk.ErrorOutOfHostMemory:             "VK_ERROR_OUT_OF_HOST_MEMORY",
	vk.ErrorOutOfDeviceMemory:           "VK_ERROR_OUT_OF_DEVICE_MEMORY",
	vk.ErrorInitializationFailed:        "VK_ERROR_INITIALIZATION_FAILED",
	vk.ErrorDeviceLost:                  "VK_ERROR_DEVICE_LOST",
	vk.ErrorMemoryMapFailed:             "VK_ERROR_MEMORY_MAP_FAILED",
	vk.ErrorLayerNotPresent:             "VK_ERROR_LAYER_NOT_PRESENT",
	vk.ErrorExtensionNotPresent:         "VK_ERROR_EXTENSION_NOT_PRESENT",
	vk.ErrorFeatureNotPresent:           "VK_ERROR_FEATURE_NOT_PRESENT",
	vk.ErrorIncompatibleDriver:          "VK_ERROR_INCOMPATIBLE_DRIVER",
	vk.ErrorTooManyObjects:              "VK_ERROR_TOO_MANY_OBJECTS",
	vk.ErrorFormatNotSupported:          "VK_ERROR_FORMAT_NOT_SUPPORTED",
	vk.ErrorFragmentedPool:              "VK_ERROR_FRAGMENTED_POOL",
	vk.ErrorSurfaceLost:                 "VK_ERROR_SURFACE_LOST_KHR",
	vk.ErrorNativeWindowInUse:           "VK_ERROR_NATIVE_WINDOW_IN_USE_KHR",
	vk.ErrorOutOfDate:                   "VK_ERROR_OUT_OF_DATE_KHR",
	vk.ErrorIncompatibleDisplay:         "VK_ERROR_INCOMPATIBLE_DISPLAY_KHR",
	vk.ErrorOutOfPoolMemory:             "VK_ERROR_OUT_OF_POOL_MEMORY",
	vk.ErrorInvalidExternalHandle:       "VK_ERROR_INVALID_EXTERNAL_HANDLE",
	vk.ErrorFragmentation:               "VK_ERROR_FRAGMENTATION",
	vk.ErrorFullScreenExclusiveModeLost: "VK_ERROR_FULL_SCREEN_EXCLUSIVE_MODE_LOST_EXT",
	vk.ErrorUnknown:                     "VK_ERROR_UNKNOWN",
}

// Extended descriptions, only for the results a frame loop can run into.
var resultDescriptions = map[vk.Result]string{
	vk.Timeout:              "A wait operation has not completed in the specified time",
	vk.Suboptimal:           "A swapchain no longer matches the surface properties exactly, but can still be used to present to the surface successfully.",
	vk.ErrorDeviceLost:      "The logical or physical device has been lost.",
	vk.ErrorOutOfDate:       "A surface has changed in such a way that it is no longer compatible with the swapchain.",
	vk.ErrorSurfaceLost:     "A surface is no longer available.",
	vk.ErrorOutOfPoolMemory: "A pool memory allocation has failed.",
	vk.ErrorFragmentedPool:  "A pool allocation has failed due to fragmentation of the pool's memory.",
}

func VulkanResultString(result vk.Result, getExtended bool) string {
	name, ok := resultNames[result]
	if !ok {
		name = fmt.Sprintf("VkResult(%d)", int32(result))
	}
	if !getExtended {
		return name
	}
	if desc, ok := resultDescriptions[result]; ok {
		return name + " " + desc
	}
	return name
}

// VulkanResultIsSuccess reports whether result is a success code. Every
// error code is negative.
func VulkanResultIsSuccess(result vk.Result) bool {
	return result >= 0
}

// vulkanError logs and returns the error for a failed call.
func vulkanError(call string, result vk.Result) error {
	var err error
	switch result {
	case vk.ErrorDeviceLost:
		err = fmt.Errorf("%s failed: %w", call, core.ErrDeviceLost)
	case vk.Timeout:
		err = fmt.Errorf("%s failed: %w", call, core.ErrFenceTimeout)
	default:
		err = fmt.Errorf("%s failed with %s", call, VulkanResultString(result, true))
	}
	core.LogError(err.Error())
	return err
}

// IsDeviceLost reports whether err came from a lost device.
func IsDeviceLost(err error) bool {
	return errors.Is(err, core.ErrDeviceLost)
}

func Clamp[T constraints.Ordered](value, lo, hi T) T {
	if value < lo {
		return lo
	}
	if value > hi {
		return hi
	}
	return value
}

const end = "\x00"

func VulkanSafeString(s string) string {
	if len(s) == 0 || s[len(s)-1] != end[0] {
		return s + end
	}
	return s
}

func VulkanSafeStrings(list []string) []string {
	out := make([]string, len(list))
	for i := range list {
		out[i] = VulkanSafeString(list[i])
	}
	return out
}

// cString converts a fixed, NUL padded Vulkan char array.
func cString(arr []byte) string {
	for i, b := range arr {
		if b == 0 {
			return string(arr[:i])
		}
	}
	return string(arr)
}

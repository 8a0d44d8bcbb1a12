package vulkan

import "sync"

// VulkanLockPool serializes access to externally synchronized queues. The
// render thread submits frames while uploads may submit from elsewhere.
type VulkanLockPool struct {
	mu     sync.Mutex // guards queues
	queues map[uint32]*sync.Mutex
}

func NewVulkanLockPool() *VulkanLockPool {
	return &VulkanLockPool{
		queues: make(map[uint32]*sync.Mutex),
	}
}

func (vs *VulkanLockPool) queueLock(family uint32) *sync.Mutex {
	vs.mu.Lock()
	defer vs.mu.Unlock()

	l, ok := vs.queues[family]
	if !ok {
		l = &sync.Mutex{}
		vs.queues[family] = l
	}
	return l
}

// SafeQueueCall runs fn while holding the lock of the queue family.
func (vs *VulkanLockPool) SafeQueueCall(family uint32, fn func() error) error {
	l := vs.queueLock(family)
	l.Lock()
	defer l.Unlock()

	return fn()
}

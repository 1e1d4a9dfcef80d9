// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package vulkan

import (
	"fmt"

	"github.com/gogpu/rhi"
)

// descriptorPool accounts for descriptors handed to input sets. The HAL
// allocates bind groups on demand; the pool enforces the fixed capacity
// configured at construction so exhaustion surfaces at CreateInputSet.
type descriptorPool struct {
	limit PoolSizes
	used  PoolSizes
}

func newDescriptorPool(limit PoolSizes) *descriptorPool {
	return &descriptorPool{limit: limit}
}

// reserve takes the descriptors of one input set: two sets, one storage
// buffer descriptor per buffer slot and one sampler descriptor per
// texture slot.
func (p *descriptorPool) reserve(buffers, textures uint32) error {
	want := PoolSizes{Sets: 2, StorageBuffers: buffers, CombinedImageSamplers: textures}
	switch {
	case p.used.Sets+want.Sets > p.limit.Sets:
		return fmt.Errorf("%w: descriptor sets (%d of %d in use)", rhi.ErrExhausted, p.used.Sets, p.limit.Sets)
	case p.used.StorageBuffers+want.StorageBuffers > p.limit.StorageBuffers:
		return fmt.Errorf("%w: storage buffer descriptors (%d of %d in use)",
			rhi.ErrExhausted, p.used.StorageBuffers, p.limit.StorageBuffers)
	case p.used.CombinedImageSamplers+want.CombinedImageSamplers > p.limit.CombinedImageSamplers:
		return fmt.Errorf("%w: sampled image descriptors (%d of %d in use)",
			rhi.ErrExhausted, p.used.CombinedImageSamplers, p.limit.CombinedImageSamplers)
	}
	p.used.Sets += want.Sets
	p.used.StorageBuffers += want.StorageBuffers
	p.used.CombinedImageSamplers += want.CombinedImageSamplers
	return nil
}

func (p *descriptorPool) release(buffers, textures uint32) {
	p.used.Sets -= min(2, p.used.Sets)
	p.used.StorageBuffers -= min(buffers, p.used.StorageBuffers)
	p.used.CombinedImageSamplers -= min(textures, p.used.CombinedImageSamplers)
}

// setsInUse is the number of descriptor sets currently drawn from the
// pool, two per input set.
func (p *descriptorPool) setsInUse() int {
	return int(p.used.Sets)
}

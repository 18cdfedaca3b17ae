// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package native

import (
	"fmt"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	_ "github.com/gogpu/wgpu/hal/vulkan"
)

// halProvider is implemented by hosts that share their HAL device.
type halProvider interface {
	HalDevice() any
	HalQueue() any
}

// NewFromProvider shares the device of a host application, e.g. a gogpu
// window. The provider must also expose HalDevice() and HalQueue()
// returning hal.Device and hal.Queue. The host keeps ownership.
func NewFromProvider(provider gpucontext.DeviceProvider, opts ...Option) (*Adapter, error) {
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, ErrNotHalProvider
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("%w: HalDevice is not hal.Device", ErrNotHalProvider)
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("%w: HalQueue is not hal.Queue", ErrNotHalProvider)
	}
	return New(device, queue, opts...), nil
}

// Open creates an instance of backend, opens its best adapter and wraps
// the device. Discrete GPUs are preferred over integrated ones, which are
// preferred over anything else. Close destroys the device and instance.
func Open(backend gputypes.Backend, opts ...Option) (*Adapter, error) {
	b, ok := hal.GetBackend(backend)
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, backend)
	}
	return openAPI(b, opts...)
}

// instanceCreator is the part of a HAL backend Open needs.
type instanceCreator interface {
	CreateInstance(desc *hal.InstanceDescriptor) (hal.Instance, error)
}

// openAPI opens the best adapter of api.
func openAPI(api instanceCreator, opts ...Option) (*Adapter, error) {
	instance, err := api.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("native: create instance: %w", err)
	}

	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, ErrNoAdapter
	}
	selected := selectAdapter(adapters)

	limits := gputypes.DefaultLimits()
	openDev, err := selected.Adapter.Open(gputypes.Features(0), limits)
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("native: open device: %w", err)
	}

	a := New(openDev.Device, openDev.Queue, append([]Option{WithLimits(limits)}, opts...)...)
	a.release = func() {
		openDev.Device.Destroy()
		instance.Destroy()
	}
	slogger().Info("native: device opened",
		"adapter", selected.Info.Name,
		"type", selected.Info.DeviceType,
	)
	return a, nil
}

func selectAdapter(adapters []hal.ExposedAdapter) *hal.ExposedAdapter {
	rank := func(t gputypes.DeviceType) int {
		switch t {
		case gputypes.DeviceTypeDiscreteGPU:
			return 2
		case gputypes.DeviceTypeIntegratedGPU:
			return 1
		}
		return 0
	}
	best := &adapters[0]
	for i := range adapters {
		if rank(adapters[i].Info.DeviceType) > rank(best.Info.DeviceType) {
			best = &adapters[i]
		}
	}
	return best
}

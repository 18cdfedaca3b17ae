// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package native

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"
	"unsafe"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/splat/gpucore"
	"github.com/gogpu/splat/gpusort"
	"github.com/gogpu/splat/preprocess"
)

// createNoopDevice creates a noop device and queue for testing.
func createNoopDevice(t *testing.T) (hal.Device, hal.Queue) {
	t.Helper()
	instance, err := noop.API{}.CreateInstance(nil)
	require.NoError(t, err)
	adapters := instance.EnumerateAdapters(nil)
	require.NotEmpty(t, adapters)
	openDev, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() {
		openDev.Device.Destroy()
		instance.Destroy()
	})
	return openDev.Device, openDev.Queue
}

func newNoopAdapter(t *testing.T, opts ...Option) *Adapter {
	t.Helper()
	device, queue := createNoopDevice(t)
	a := New(device, queue, opts...)
	t.Cleanup(a.Close)
	return a
}

func TestBufferLifecycle(t *testing.T) {
	a := newNoopAdapter(t)

	id, err := a.CreateBuffer(&gpucore.BufferDesc{
		Label: "test",
		Size:  64,
		Usage: gpucore.BufferUsageStorage | gpucore.BufferUsageCopyDst,
	})
	require.NoError(t, err)
	assert.NotEqual(t, gpucore.BufferID(gpucore.InvalidID), id)
	assert.Equal(t, uint64(64), a.BufferSize(id))

	require.NoError(t, a.WriteBuffer(id, 0, make([]byte, 64)))
	assert.Error(t, a.WriteBuffer(id, 60, make([]byte, 8)), "write past the end")

	a.DestroyBuffer(id)
	assert.Zero(t, a.BufferSize(id))
	assert.ErrorIs(t, a.WriteBuffer(id, 0, []byte{1}), gpucore.ErrUnknownResource)
	_, err = a.ReadBuffer(id, 0, 4)
	assert.ErrorIs(t, err, gpucore.ErrUnknownResource)

	// Double destroy is harmless.
	a.DestroyBuffer(id)
}

func TestCreateBufferRejectsInvalid(t *testing.T) {
	a := newNoopAdapter(t)
	_, err := a.CreateBuffer(nil)
	assert.ErrorIs(t, err, gpucore.ErrInvalidDescriptor)
	_, err = a.CreateBuffer(&gpucore.BufferDesc{Label: "empty"})
	assert.ErrorIs(t, err, gpucore.ErrInvalidDescriptor)
	_, err = a.CreateBuffer(&gpucore.BufferDesc{Label: "huge", Size: a.Limits().MaxBufferSize + 1})
	assert.Error(t, err)
}

func TestCreatePipelineLayoutUnknownLayout(t *testing.T) {
	a := newNoopAdapter(t)
	_, err := a.CreatePipelineLayout(&gpucore.PipelineLayoutDesc{
		Label:            "bad",
		BindGroupLayouts: []gpucore.BindGroupLayoutID{42},
	})
	assert.ErrorIs(t, err, gpucore.ErrUnknownResource)
}

func TestSorterPipelinesOnNoopDevice(t *testing.T) {
	a := newNoopAdapter(t)

	s, err := gpusort.New(a, 32)
	require.NoError(t, err)
	defer s.Close()

	res, err := s.NewResources(10000)
	require.NoError(t, err)
	defer res.Release()
	assert.Equal(t, uint64(gpusort.PaddedSize(10000))*4, a.BufferSize(res.KeysA))

	pre, err := preprocess.New(a, s.PreprocessLayout())
	require.NoError(t, err)
	defer pre.Close()

	require.NoError(t, s.ResetIndirect(res))
	enc, err := a.CreateCommandEncoder("sort")
	require.NoError(t, err)
	require.NoError(t, s.RecordSortIndirect(enc, res))
	cmd, err := enc.Finish()
	require.NoError(t, err)
	require.NoError(t, a.Submit(cmd))
	assert.Error(t, a.Submit(cmd), "a command buffer is submitted once")
	require.NoError(t, a.WaitIdle())
	assert.Zero(t, a.InFlight())
}

func TestSubmitBoundsFramesInFlight(t *testing.T) {
	a := newNoopAdapter(t)
	buf, err := a.CreateBuffer(&gpucore.BufferDesc{Label: "src", Size: 16, Usage: gpucore.BufferUsageCopySrc | gpucore.BufferUsageCopyDst})
	require.NoError(t, err)
	dst, err := a.CreateBuffer(&gpucore.BufferDesc{Label: "dst", Size: 16, Usage: gpucore.BufferUsageCopyDst})
	require.NoError(t, err)

	for range 5 {
		enc, err := a.CreateCommandEncoder("frame")
		require.NoError(t, err)
		enc.CopyBufferToBuffer(buf, 0, dst, 0, 16)
		cmd, err := enc.Finish()
		require.NoError(t, err)
		require.NoError(t, a.Submit(cmd))
		assert.LessOrEqual(t, a.InFlight(), maxInFlight)
	}
	require.NoError(t, a.WaitIdle())
	assert.Zero(t, a.InFlight())
}

func TestEncoderErrorsAreSticky(t *testing.T) {
	a := newNoopAdapter(t)

	enc, err := a.CreateCommandEncoder("bad")
	require.NoError(t, err)
	pass := enc.BeginComputePass("p")
	pass.SetPipeline(99)
	pass.DispatchIndirect(12345, 0)
	pass.End()
	_, err = enc.Finish()
	assert.ErrorIs(t, err, gpucore.ErrUnknownResource)

	_, err = enc.Finish()
	assert.ErrorIs(t, err, gpucore.ErrEncoderFinished)
}

func TestEncoderRejectsOpenPass(t *testing.T) {
	a := newNoopAdapter(t)

	enc, err := a.CreateCommandEncoder("open")
	require.NoError(t, err)
	enc.BeginComputePass("first")
	enc.BeginComputePass("second")
	_, err = enc.Finish()
	assert.ErrorIs(t, err, gpucore.ErrPassOpen)
}

func TestRenderPassUnknownTarget(t *testing.T) {
	a := newNoopAdapter(t)

	enc, err := a.CreateCommandEncoder("draw")
	require.NoError(t, err)
	pass := enc.BeginRenderPass(&gpucore.RenderPassDesc{Label: "rp", Target: 77, Clear: true})
	pass.Draw(4, 1, 0, 0)
	pass.End()
	_, err = enc.Finish()
	assert.ErrorIs(t, err, gpucore.ErrUnknownResource)
}

func TestTextureLifecycle(t *testing.T) {
	a := newNoopAdapter(t)
	tex, err := a.CreateTexture(&gpucore.TextureDesc{Label: "t", Width: 8, Height: 4, Format: gpucore.TextureFormatBGRA8Unorm})
	require.NoError(t, err)

	enc, err := a.CreateCommandEncoder("clear")
	require.NoError(t, err)
	pass := enc.BeginRenderPass(&gpucore.RenderPassDesc{Label: "clear", Target: tex, Clear: true})
	pass.End()
	cmd, err := enc.Finish()
	require.NoError(t, err)
	require.NoError(t, a.Submit(cmd))

	a.DestroyTexture(tex)
	_, err = a.ReadTexture(tex)
	assert.ErrorIs(t, err, gpucore.ErrUnknownResource)
}

func TestUnpackRows(t *testing.T) {
	// Two rows of one BGRA pixel, padded to 8 bytes.
	src := []byte{
		1, 2, 3, 4, 0, 0, 0, 0,
		5, 6, 7, 8, 0, 0, 0, 0,
	}
	dst := make([]byte, 8)
	unpackRows(dst, src, 4, 8, 2, true)
	assert.Equal(t, []byte{3, 2, 1, 4, 7, 6, 5, 8}, dst)

	unpackRows(dst, src, 4, 8, 2, false)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8}, dst)
}

func TestConvertBufferUsage(t *testing.T) {
	got := convertBufferUsage(gpucore.BufferUsageStorage | gpucore.BufferUsageIndirect | gpucore.BufferUsageCopyDst)
	assert.Equal(t, gputypes.BufferUsageStorage|gputypes.BufferUsageIndirect|gputypes.BufferUsageCopyDst, got)
	assert.Equal(t, gputypes.BufferUsage(0), convertBufferUsage(0))
}

func TestWithWaitTimeout(t *testing.T) {
	a := newNoopAdapter(t, WithWaitTimeout(time.Second), WithWaitTimeout(0))
	assert.Equal(t, time.Second, a.waitTimeout)
}

func TestOpenNoop(t *testing.T) {
	a, err := openAPI(noop.API{})
	require.NoError(t, err)
	defer a.Close()
	assert.NotNil(t, a.Device())
	assert.Equal(t, gputypes.DefaultLimits().MaxBufferSize, a.Limits().MaxBufferSize)
}

func TestSelectAdapterPrefersDiscrete(t *testing.T) {
	mk := func(name string, dt gputypes.DeviceType) hal.ExposedAdapter {
		var a hal.ExposedAdapter
		a.Info.Name = name
		a.Info.DeviceType = dt
		return a
	}
	igpu := mk("igpu", gputypes.DeviceTypeIntegratedGPU)
	dgpu := mk("dgpu", gputypes.DeviceTypeDiscreteGPU)

	assert.Equal(t, "dgpu", selectAdapter([]hal.ExposedAdapter{igpu, dgpu}).Info.Name)
	assert.Equal(t, "dgpu", selectAdapter([]hal.ExposedAdapter{dgpu, igpu}).Info.Name)
	assert.Equal(t, "igpu", selectAdapter([]hal.ExposedAdapter{igpu}).Info.Name)
}

// mockDevice implements gpucontext.Device for testing.
type mockDevice struct{}

func (m *mockDevice) Poll(wait bool) {}
func (m *mockDevice) Destroy()       {}

type mockQueue struct{}

type mockAdapter struct{}

// mockProvider implements gpucontext.DeviceProvider for testing.
type mockProvider struct{}

func (m *mockProvider) Device() gpucontext.Device   { return &mockDevice{} }
func (m *mockProvider) Queue() gpucontext.Queue     { return &mockQueue{} }
func (m *mockProvider) Adapter() gpucontext.Adapter { return &mockAdapter{} }
func (m *mockProvider) SurfaceFormat() gputypes.TextureFormat {
	return gputypes.TextureFormatBGRA8Unorm
}
func (m *mockProvider) AdapterInfo() gpucontext.AdapterInfo { return gpucontext.AdapterInfo{} }

// halMockProvider additionally exposes HAL objects.
type halMockProvider struct {
	mockProvider
	device hal.Device
	queue  hal.Queue
}

func (m *halMockProvider) HalDevice() any { return m.device }
func (m *halMockProvider) HalQueue() any  { return m.queue }

func TestNewFromProvider(t *testing.T) {
	_, err := NewFromProvider(&mockProvider{})
	assert.True(t, errors.Is(err, ErrNotHalProvider))

	_, err = NewFromProvider(&halMockProvider{})
	assert.ErrorIs(t, err, ErrNotHalProvider)

	device, queue := createNoopDevice(t)
	a, err := NewFromProvider(&halMockProvider{device: device, queue: queue}, WithSPIRV())
	require.NoError(t, err)
	defer a.Close()
	assert.True(t, device == a.Device())
	assert.True(t, a.spirv)
}

// trackingDevice counts buffer creation and destruction on a hal device.
type trackingDevice struct {
	hal.Device
	created   []*hal.BufferDescriptor
	buffers   []hal.Buffer
	destroyed int
	mapErr    error
}

func (d *trackingDevice) CreateBuffer(desc *hal.BufferDescriptor) (hal.Buffer, error) {
	b, err := d.Device.CreateBuffer(desc)
	if err == nil {
		d.created = append(d.created, desc)
		d.buffers = append(d.buffers, b)
	}
	return b, err
}

func (d *trackingDevice) DestroyBuffer(b hal.Buffer) {
	d.destroyed++
	d.Device.DestroyBuffer(b)
}

func (d *trackingDevice) MapBuffer(b hal.Buffer, offset, size uint64) (hal.BufferMapping, error) {
	if d.mapErr != nil {
		return hal.BufferMapping{}, d.mapErr
	}
	return d.Device.MapBuffer(b, offset, size)
}

// gatedQueue reports submissions complete only up to the gate.
type gatedQueue struct {
	hal.Queue
	gate atomic.Uint64
}

func (q *gatedQueue) PollCompleted() uint64 {
	return min(q.Queue.PollCompleted(), q.gate.Load())
}

func newGatedAdapter(t *testing.T, opts ...Option) (*Adapter, *trackingDevice, *gatedQueue) {
	t.Helper()
	device, queue := createNoopDevice(t)
	dev := &trackingDevice{Device: device}
	q := &gatedQueue{Queue: queue}
	a := New(dev, q, opts...)
	t.Cleanup(func() {
		q.gate.Store(^uint64(0))
		a.Close()
	})
	return a, dev, q
}

func emptyCommandBuffer(t *testing.T, a *Adapter) gpucore.CommandBuffer {
	t.Helper()
	enc, err := a.CreateCommandEncoder("frame")
	require.NoError(t, err)
	cmd, err := enc.Finish()
	require.NoError(t, err)
	return cmd
}

func TestDestroyBufferWaitsForSubmission(t *testing.T) {
	a, dev, q := newGatedAdapter(t)

	id, err := a.CreateBuffer(&gpucore.BufferDesc{Label: "keys", Size: 64, Usage: gpucore.BufferUsageStorage})
	require.NoError(t, err)
	require.NoError(t, a.Submit(emptyCommandBuffer(t, a)))
	require.Equal(t, 1, a.InFlight())

	a.DestroyBuffer(id)
	assert.Equal(t, uint64(0), a.BufferSize(id))
	assert.Equal(t, 0, dev.destroyed, "buffer released while a submission may still use it")

	q.gate.Store(^uint64(0))
	require.NoError(t, a.WaitIdle())
	assert.Equal(t, 0, a.InFlight())
	assert.Equal(t, 1, dev.destroyed)
}

func TestDestroyBufferIdleIsImmediate(t *testing.T) {
	a, dev, _ := newGatedAdapter(t)

	id, err := a.CreateBuffer(&gpucore.BufferDesc{Label: "keys", Size: 64, Usage: gpucore.BufferUsageStorage})
	require.NoError(t, err)
	a.DestroyBuffer(id)
	assert.Equal(t, 1, dev.destroyed)
}

func TestSubmitRetiresCompletedWork(t *testing.T) {
	a, dev, q := newGatedAdapter(t)

	id, err := a.CreateBuffer(&gpucore.BufferDesc{Label: "keys", Size: 64, Usage: gpucore.BufferUsageStorage})
	require.NoError(t, err)
	require.NoError(t, a.Submit(emptyCommandBuffer(t, a)))
	a.DestroyBuffer(id)

	q.gate.Store(1)
	require.NoError(t, a.Submit(emptyCommandBuffer(t, a)))
	assert.Equal(t, 1, a.InFlight())
	assert.Equal(t, 1, dev.destroyed)
}

func TestWaitIdleTimesOut(t *testing.T) {
	a, _, _ := newGatedAdapter(t, WithWaitTimeout(10*time.Millisecond))

	require.NoError(t, a.Submit(emptyCommandBuffer(t, a)))
	err := a.WaitIdle()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrWaitTimeout))
	assert.Equal(t, 1, a.InFlight())
}

func TestWriteBufferStagesUpload(t *testing.T) {
	a, dev, q := newGatedAdapter(t)

	id, err := a.CreateBuffer(&gpucore.BufferDesc{Label: "params", Size: 16, Usage: gpucore.BufferUsageUniform | gpucore.BufferUsageCopyDst})
	require.NoError(t, err)
	data := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	require.NoError(t, a.WriteBuffer(id, 8, data))

	require.Len(t, dev.created, 2)
	desc := dev.created[1]
	assert.Equal(t, gputypes.BufferUsageMapWrite|gputypes.BufferUsageCopySrc, desc.Usage)
	assert.Equal(t, uint64(len(data)), desc.Size)
	m, err := dev.Device.MapBuffer(dev.buffers[1], 0, desc.Size)
	require.NoError(t, err)
	assert.Equal(t, data, unsafe.Slice((*byte)(m.Ptr), desc.Size))

	require.NoError(t, a.Submit(emptyCommandBuffer(t, a)))
	assert.Equal(t, 0, dev.destroyed, "staging buffer released before its copy ran")
	q.gate.Store(^uint64(0))
	require.NoError(t, a.WaitIdle())
	assert.Equal(t, 1, dev.destroyed)
}

func TestWriteBufferReportsMapFailure(t *testing.T) {
	a, dev, _ := newGatedAdapter(t)

	id, err := a.CreateBuffer(&gpucore.BufferDesc{Label: "params", Size: 16, Usage: gpucore.BufferUsageUniform | gpucore.BufferUsageCopyDst})
	require.NoError(t, err)
	dev.mapErr = hal.ErrInvalidMapRange

	err = a.WriteBuffer(id, 0, []byte{1, 2, 3, 4})
	require.Error(t, err)
	assert.True(t, errors.Is(err, hal.ErrInvalidMapRange))
	assert.Equal(t, 1, dev.destroyed)
}

func TestDestroyBufferDropsStagedWrites(t *testing.T) {
	a, dev, _ := newGatedAdapter(t)

	id, err := a.CreateBuffer(&gpucore.BufferDesc{Label: "params", Size: 16, Usage: gpucore.BufferUsageUniform | gpucore.BufferUsageCopyDst})
	require.NoError(t, err)
	require.NoError(t, a.WriteBuffer(id, 0, []byte{1, 2, 3, 4}))
	a.DestroyBuffer(id)

	assert.Equal(t, 2, dev.destroyed)
	assert.Empty(t, a.takeWrites())
}

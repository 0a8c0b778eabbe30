package gpu

import (
	"bytes"
	"encoding/binary"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/quad/frame"
)

// VertexBuffer is host-visible memory filled once at creation and bound by
// every frame.
type VertexBuffer struct {
	device core1_0.CoreDeviceDriver
	buffer core1_0.Buffer
	memory core1_0.DeviceMemory
	count  int
}

func NewVertexBuffer(ctx *Context, vertices []frame.Vertex) (*VertexBuffer, error) {
	if len(vertices) == 0 {
		return nil, errors.New("no vertices to upload")
	}

	v := &VertexBuffer{device: ctx.Device, count: len(vertices)}
	bufferSize := binary.Size(vertices)

	var err error
	v.buffer, v.memory, err = createBuffer(ctx, bufferSize, core1_0.BufferUsageVertexBuffer, core1_0.MemoryPropertyHostVisible|core1_0.MemoryPropertyHostCoherent)
	if err != nil {
		v.Destroy()
		return nil, err
	}

	err = writeData(ctx.Device, v.memory, 0, vertices)
	if err != nil {
		v.Destroy()
		return nil, errors.Wrap(err, "write vertices")
	}

	return v, nil
}

// Count is the number of vertices in the buffer.
func (v *VertexBuffer) Count() int {
	return v.count
}

func (v *VertexBuffer) Destroy() {
	if v.buffer.Initialized() {
		v.device.DestroyBuffer(v.buffer, nil)
		v.buffer = core1_0.Buffer{}
	}
	if v.memory.Initialized() {
		v.device.FreeMemory(v.memory, nil)
		v.memory = core1_0.DeviceMemory{}
	}
}

func createBuffer(ctx *Context, size int, usage core1_0.BufferUsageFlags, properties core1_0.MemoryPropertyFlags) (core1_0.Buffer, core1_0.DeviceMemory, error) {
	buffer, _, err := ctx.Device.CreateBuffer(nil, core1_0.BufferCreateInfo{
		Size:        size,
		Usage:       usage,
		SharingMode: core1_0.SharingModeExclusive,
	})
	if err != nil {
		return core1_0.Buffer{}, core1_0.DeviceMemory{}, errors.Wrap(err, "create buffer")
	}

	memRequirements := ctx.Device.GetBufferMemoryRequirements(buffer)
	memProperties := ctx.Instance.GetPhysicalDeviceMemoryProperties(ctx.PhysicalDevice)
	memoryTypeIndex, err := findMemoryType(memProperties.MemoryTypes, memRequirements.MemoryTypeBits, properties)
	if err != nil {
		return buffer, core1_0.DeviceMemory{}, err
	}

	memory, _, err := ctx.Device.AllocateMemory(nil, core1_0.MemoryAllocateInfo{
		AllocationSize:  memRequirements.Size,
		MemoryTypeIndex: memoryTypeIndex,
	})
	if err != nil {
		return buffer, core1_0.DeviceMemory{}, errors.Wrap(err, "allocate buffer memory")
	}

	_, err = ctx.Device.BindBufferMemory(buffer, memory, 0)
	return buffer, memory, errors.Wrap(err, "bind buffer memory")
}

func findMemoryType(memoryTypes []core1_0.MemoryType, typeFilter uint32, properties core1_0.MemoryPropertyFlags) (int, error) {
	for i, memoryType := range memoryTypes {
		typeBit := uint32(1 << i)

		if (typeFilter&typeBit) != 0 && (memoryType.PropertyFlags&properties) == properties {
			return i, nil
		}
	}

	return 0, errors.Errorf("no memory type matches filter %032b with properties %v", typeFilter, properties)
}

func writeData(driver core1_0.CoreDeviceDriver, memory core1_0.DeviceMemory, offset int, data any) error {
	bufferSize := binary.Size(data)

	memoryPtr, _, err := driver.MapMemory(memory, offset, bufferSize, 0)
	if err != nil {
		return err
	}
	defer driver.UnmapMemory(memory)

	dataBuffer := unsafe.Slice((*byte)(memoryPtr), bufferSize)

	buf := &bytes.Buffer{}
	err = binary.Write(buf, common.ByteOrder, data)
	if err != nil {
		return err
	}

	copy(dataBuffer, buf.Bytes())
	return nil
}

package gpu

import (
	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/quad/frame"
)

// Recorder records a fresh one-time command buffer per frame that clears the
// target and draws the vertex buffer as a triangle strip.
type Recorder struct {
	device   core1_0.CoreDeviceDriver
	pool     core1_0.CommandPool
	pass     *RenderPass
	pipeline *Pipeline
	vertices *VertexBuffer
	clear    core1_0.ClearValueFloat
}

func NewRecorder(ctx *Context, pass *RenderPass, pipeline *Pipeline, vertices *VertexBuffer, clear mgl32.Vec4) (*Recorder, error) {
	pool, _, err := ctx.Device.CreateCommandPool(nil, core1_0.CommandPoolCreateInfo{
		Flags:            core1_0.CommandPoolCreateTransient,
		QueueFamilyIndex: ctx.QueueFamily,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create command pool")
	}

	return &Recorder{
		device:   ctx.Device,
		pool:     pool,
		pass:     pass,
		pipeline: pipeline,
		vertices: vertices,
		clear:    core1_0.ClearValueFloat{clear[0], clear[1], clear[2], clear[3]},
	}, nil
}

func (r *Recorder) Record(target frame.RenderTarget, viewport frame.Viewport) (frame.Commands, error) {
	framebuffer, ok := target.(*Framebuffer)
	if !ok {
		return nil, errors.Errorf("cannot record into %T", target)
	}

	buffers, _, err := r.device.AllocateCommandBuffers(core1_0.CommandBufferAllocateInfo{
		CommandPool:        r.pool,
		Level:              core1_0.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	})
	if err != nil {
		return nil, errors.Wrap(err, "allocate command buffer")
	}
	commands := &CommandBuffer{device: r.device, buffer: buffers[0]}

	err = r.record(commands.buffer, framebuffer, viewport)
	if err != nil {
		commands.Free()
		return nil, err
	}

	return commands, nil
}

func (r *Recorder) record(buffer core1_0.CommandBuffer, framebuffer *Framebuffer, viewport frame.Viewport) error {
	_, err := r.device.BeginCommandBuffer(buffer, core1_0.CommandBufferBeginInfo{
		Flags: core1_0.CommandBufferUsageOneTimeSubmit,
	})
	if err != nil {
		return errors.Wrap(err, "begin command buffer")
	}

	err = r.device.CmdBeginRenderPass(buffer, core1_0.SubpassContentsInline,
		core1_0.RenderPassBeginInfo{
			RenderPass:  r.pass.handle,
			Framebuffer: framebuffer.framebuffer,
			RenderArea: core1_0.Rect2D{
				Offset: core1_0.Offset2D{X: 0, Y: 0},
				Extent: core1_0.Extent2D{Width: framebuffer.extent.Width, Height: framebuffer.extent.Height},
			},
			ClearValues: []core1_0.ClearValue{r.clear},
		})
	if err != nil {
		return errors.Wrap(err, "begin render pass")
	}

	r.device.CmdBindPipeline(buffer, core1_0.PipelineBindPointGraphics, r.pipeline.handle)
	r.device.CmdSetViewport(buffer, core1_0.Viewport{
		X:        viewport.X,
		Y:        viewport.Y,
		Width:    viewport.Width,
		Height:   viewport.Height,
		MinDepth: viewport.MinDepth,
		MaxDepth: viewport.MaxDepth,
	})
	r.device.CmdBindVertexBuffers(buffer, 0, []core1_0.Buffer{r.vertices.buffer}, []int{0})
	r.device.CmdDraw(buffer, r.vertices.Count(), 1, 0, 0)
	r.device.CmdEndRenderPass(buffer)

	_, err = r.device.EndCommandBuffer(buffer)
	return errors.Wrap(err, "end command buffer")
}

func (r *Recorder) Destroy() {
	if r.pool.Initialized() {
		r.device.DestroyCommandPool(r.pool, nil)
		r.pool = core1_0.CommandPool{}
	}
}

// CommandBuffer implements frame.Commands.
type CommandBuffer struct {
	device core1_0.CoreDeviceDriver
	buffer core1_0.CommandBuffer
}

func (c *CommandBuffer) Free() {
	if c.buffer.Initialized() {
		c.device.FreeCommandBuffers(c.buffer)
		c.buffer = core1_0.CommandBuffer{}
	}
}

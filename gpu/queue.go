package gpu

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"
	"github.com/vkngwrapper/quad/frame"
)

// Queue submits recorded frames to the graphics queue and presents them.
type Queue struct {
	ctx       *Context
	swapchain *Swapchain
}

func NewQueue(ctx *Context, swapchain *Swapchain) *Queue {
	return &Queue{ctx: ctx, swapchain: swapchain}
}

func (q *Queue) Submit(after frame.Token, acquired frame.Acquired, commands frame.Commands) (frame.Token, error) {
	buffer, ok := commands.(*CommandBuffer)
	if !ok {
		commands.Free()
		return nil, errors.Errorf("cannot submit %T", commands)
	}

	imageReady := q.swapchain.takeImageReady()
	token := &fenceToken{device: q.ctx.Device, commands: buffer}
	// Until the submission waits on it, the acquire semaphore may still be
	// signalled and stays with the swapchain.
	fail := func(err error) (frame.Token, error) {
		q.swapchain.orphan(imageReady)
		token.Release()
		return nil, err
	}

	if acquired.Index < 0 || acquired.Index >= len(q.swapchain.presentReady) {
		return fail(errors.Errorf("image %d is not part of the swapchain", acquired.Index))
	}
	presentReady := q.swapchain.presentReady[acquired.Index]

	err := after.Wait()
	if err != nil {
		return fail(errors.Wrap(err, "wait for previous frame"))
	}

	token.fence, _, err = q.ctx.Device.CreateFence(nil, core1_0.FenceCreateInfo{})
	if err != nil {
		return fail(errors.Wrap(err, "create frame fence"))
	}

	var waitSemaphores []core1_0.Semaphore
	var waitStages []core1_0.PipelineStageFlags
	if imageReady.Initialized() {
		waitSemaphores = append(waitSemaphores, imageReady)
		waitStages = append(waitStages, core1_0.PipelineStageColorAttachmentOutput)
	}

	_, err = q.ctx.Device.QueueSubmit(q.ctx.Queue, &token.fence,
		core1_0.SubmitInfo{
			WaitSemaphores:   waitSemaphores,
			WaitDstStageMask: waitStages,
			CommandBuffers:   []core1_0.CommandBuffer{buffer.buffer},
			SignalSemaphores: []core1_0.Semaphore{presentReady},
		},
	)
	if err != nil {
		return fail(errors.Wrap(err, "submit command buffer"))
	}
	token.imageReady = imageReady

	res, err := q.ctx.SwapchainExtension.QueuePresent(q.ctx.Queue, khr_swapchain.PresentInfo{
		WaitSemaphores: []core1_0.Semaphore{presentReady},
		Swapchains:     []khr_swapchain.Swapchain{q.swapchain.handle},
		ImageIndices:   []int{acquired.Index},
	})
	return token, presentOutcome(res, err)
}

// presentOutcome classifies the result of vkQueuePresentKHR.
func presentOutcome(res common.VkResult, err error) error {
	switch res {
	case khr_swapchain.VKErrorOutOfDate:
		return errors.Wrap(frame.ErrOutOfDate, "present")
	case khr_swapchain.VKSuboptimal:
		return errors.Wrap(frame.ErrSuboptimal, "present")
	}
	return errors.Wrap(err, "present")
}

func (q *Queue) Now() frame.Token {
	return noopToken{}
}

func (q *Queue) WaitIdle() error {
	return q.ctx.WaitIdle()
}

// fenceToken completes when the fence submitted with a frame is signalled. It
// owns the frame's command buffer and acquire semaphore until released.
type fenceToken struct {
	device     core1_0.CoreDeviceDriver
	fence      core1_0.Fence
	imageReady core1_0.Semaphore
	commands   *CommandBuffer
}

func (t *fenceToken) Wait() error {
	if !t.fence.Initialized() {
		return nil
	}
	_, err := t.device.WaitForFences(true, common.NoTimeout, t.fence)
	return errors.Wrap(err, "wait for frame fence")
}

func (t *fenceToken) Release() {
	if t.fence.Initialized() {
		t.device.DestroyFence(t.fence, nil)
		t.fence = core1_0.Fence{}
	}
	if t.imageReady.Initialized() {
		t.device.DestroySemaphore(t.imageReady, nil)
		t.imageReady = core1_0.Semaphore{}
	}
	if t.commands != nil {
		t.commands.Free()
		t.commands = nil
	}
}

type noopToken struct{}

func (noopToken) Wait() error { return nil }
func (noopToken) Release()    {}

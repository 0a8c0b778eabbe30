package gpu

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"
	"github.com/vkngwrapper/quad/frame"
)

// RenderPass clears the single color attachment, draws, and leaves the image
// ready for presentation.
type RenderPass struct {
	device core1_0.CoreDeviceDriver
	handle core1_0.RenderPass
}

func NewRenderPass(ctx *Context, format core1_0.Format) (*RenderPass, error) {
	renderPass, _, err := ctx.Device.CreateRenderPass(nil, renderPassCreateInfo(format))
	if err != nil {
		return nil, errors.Wrap(err, "create render pass")
	}

	return &RenderPass{device: ctx.Device, handle: renderPass}, nil
}

func renderPassCreateInfo(format core1_0.Format) core1_0.RenderPassCreateInfo {
	return core1_0.RenderPassCreateInfo{
		Attachments: []core1_0.AttachmentDescription{
			{
				Format:         format,
				Samples:        core1_0.Samples1,
				LoadOp:         core1_0.AttachmentLoadOpClear,
				StoreOp:        core1_0.AttachmentStoreOpStore,
				StencilLoadOp:  core1_0.AttachmentLoadOpDontCare,
				StencilStoreOp: core1_0.AttachmentStoreOpDontCare,
				InitialLayout:  core1_0.ImageLayoutUndefined,
				FinalLayout:    khr_swapchain.ImageLayoutPresentSrc,
			},
		},
		Subpasses: []core1_0.SubpassDescription{
			{
				PipelineBindPoint: core1_0.PipelineBindPointGraphics,
				ColorAttachments: []core1_0.AttachmentReference{
					{
						Attachment: 0,
						Layout:     core1_0.ImageLayoutColorAttachmentOptimal,
					},
				},
			},
		},
		SubpassDependencies: []core1_0.SubpassDependency{
			{
				SrcSubpass: core1_0.SubpassExternal,
				DstSubpass: 0,

				SrcStageMask:  core1_0.PipelineStageColorAttachmentOutput,
				SrcAccessMask: 0,

				DstStageMask:  core1_0.PipelineStageColorAttachmentOutput,
				DstAccessMask: core1_0.AccessColorAttachmentWrite,
			},
		},
	}
}

// NewTarget wraps a swapchain image in a view and a framebuffer for this pass.
func (p *RenderPass) NewTarget(image frame.Image) (frame.RenderTarget, error) {
	swapchainImage, ok := image.(*SwapchainImage)
	if !ok {
		return nil, errors.Errorf("cannot render to %T", image)
	}

	view, _, err := p.device.CreateImageView(nil, core1_0.ImageViewCreateInfo{
		Image:    swapchainImage.image,
		ViewType: core1_0.ImageViewType2D,
		Format:   swapchainImage.format,
		SubresourceRange: core1_0.ImageSubresourceRange{
			AspectMask:     core1_0.ImageAspectColor,
			BaseMipLevel:   0,
			LevelCount:     1,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	})
	if err != nil {
		return nil, errors.Wrapf(err, "create view of image %d", swapchainImage.index)
	}

	framebuffer, _, err := p.device.CreateFramebuffer(nil, core1_0.FramebufferCreateInfo{
		RenderPass:  p.handle,
		Layers:      1,
		Attachments: []core1_0.ImageView{view},
		Width:       swapchainImage.extent.Width,
		Height:      swapchainImage.extent.Height,
	})
	if err != nil {
		p.device.DestroyImageView(view, nil)
		return nil, errors.Wrapf(err, "create framebuffer for image %d", swapchainImage.index)
	}

	return &Framebuffer{
		device:      p.device,
		view:        view,
		framebuffer: framebuffer,
		extent:      swapchainImage.extent,
	}, nil
}

func (p *RenderPass) Destroy() {
	if p.handle.Initialized() {
		p.device.DestroyRenderPass(p.handle, nil)
		p.handle = core1_0.RenderPass{}
	}
}

// Framebuffer implements frame.RenderTarget for one swapchain image.
type Framebuffer struct {
	device      core1_0.CoreDeviceDriver
	view        core1_0.ImageView
	framebuffer core1_0.Framebuffer
	extent      frame.Extent
}

func (f *Framebuffer) Extent() frame.Extent {
	return f.extent
}

func (f *Framebuffer) Destroy() {
	if f.framebuffer.Initialized() {
		f.device.DestroyFramebuffer(f.framebuffer, nil)
		f.framebuffer = core1_0.Framebuffer{}
	}
	if f.view.Initialized() {
		f.device.DestroyImageView(f.view, nil)
		f.view = core1_0.ImageView{}
	}
}

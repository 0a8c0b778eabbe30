package gpu

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"
	"github.com/vkngwrapper/quad/frame"
)

// SwapchainImage is one presentable image of a swapchain generation.
type SwapchainImage struct {
	index  int
	image  core1_0.Image
	format core1_0.Format
	extent frame.Extent
}

func (i *SwapchainImage) Extent() frame.Extent {
	return i.extent
}

// Swapchain implements frame.Swapchain. The surface format is chosen once and
// kept across rebuilds so the render pass never has to change.
type Swapchain struct {
	ctx         *Context
	format      khr_surface.SurfaceFormat
	presentMode khr_surface.PresentMode

	handle khr_swapchain.Swapchain
	images []*SwapchainImage
	// presentReady[i] is signalled when rendering to image i has finished.
	presentReady []core1_0.Semaphore
	// imageReady is the semaphore of the last successful acquire, until the
	// queue takes it.
	imageReady core1_0.Semaphore
	orphaned   []core1_0.Semaphore
}

func NewSwapchain(ctx *Context) (*Swapchain, error) {
	formats, _, err := ctx.SurfaceExtension.GetPhysicalDeviceSurfaceFormats(ctx.Surface, ctx.PhysicalDevice)
	if err != nil {
		return nil, errors.Wrap(err, "list surface formats")
	}
	if len(formats) == 0 {
		return nil, errors.New("surface reports no formats")
	}

	presentModes, _, err := ctx.SurfaceExtension.GetPhysicalDeviceSurfacePresentModes(ctx.Surface, ctx.PhysicalDevice)
	if err != nil {
		return nil, errors.Wrap(err, "list present modes")
	}

	return &Swapchain{
		ctx:         ctx,
		format:      chooseSurfaceFormat(formats),
		presentMode: choosePresentMode(presentModes),
	}, nil
}

// Format is the pixel format of every image the swapchain will produce.
func (s *Swapchain) Format() core1_0.Format {
	return s.format.Format
}

func (s *Swapchain) Recreate(requested frame.Extent) ([]frame.Image, error) {
	capabilities, _, err := s.ctx.SurfaceExtension.GetPhysicalDeviceSurfaceCapabilities(s.ctx.Surface, s.ctx.PhysicalDevice)
	if err != nil {
		return nil, errors.Wrap(err, "read surface capabilities")
	}

	extent, err := chooseExtent(capabilities, requested)
	if err != nil {
		return nil, err
	}

	// The old images may still be read by the presentation engine
	_, err = s.ctx.Device.DeviceWaitIdle()
	if err != nil {
		return nil, errors.Wrap(err, "wait for device idle")
	}
	s.destroyChain()

	s.handle, _, err = s.ctx.SwapchainExtension.CreateSwapchain(nil, khr_swapchain.SwapchainCreateInfo{
		Surface: s.ctx.Surface,

		MinImageCount:    chooseImageCount(capabilities),
		ImageFormat:      s.format.Format,
		ImageColorSpace:  s.format.ColorSpace,
		ImageExtent:      extent,
		ImageArrayLayers: 1,
		ImageUsage:       core1_0.ImageUsageColorAttachment,

		ImageSharingMode: core1_0.SharingModeExclusive,

		PreTransform:   capabilities.CurrentTransform,
		CompositeAlpha: khr_surface.CompositeAlphaOpaque,
		PresentMode:    s.presentMode,
		Clipped:        true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create swapchain")
	}

	handles, _, err := s.ctx.SwapchainExtension.GetSwapchainImages(s.handle)
	if err != nil {
		return nil, errors.Wrap(err, "list swapchain images")
	}

	images := make([]frame.Image, 0, len(handles))
	for i, handle := range handles {
		semaphore, _, err := s.ctx.Device.CreateSemaphore(nil, core1_0.SemaphoreCreateInfo{})
		if err != nil {
			return nil, errors.Wrapf(err, "create present semaphore %d", i)
		}
		s.presentReady = append(s.presentReady, semaphore)

		image := &SwapchainImage{
			index:  i,
			image:  handle,
			format: s.format.Format,
			extent: frame.Extent{Width: extent.Width, Height: extent.Height},
		}
		s.images = append(s.images, image)
		images = append(images, image)
	}

	return images, nil
}

func (s *Swapchain) Acquire() (frame.Acquired, error) {
	if !s.handle.Initialized() {
		return frame.Acquired{}, errors.Wrap(frame.ErrOutOfDate, "no swapchain")
	}

	semaphore, _, err := s.ctx.Device.CreateSemaphore(nil, core1_0.SemaphoreCreateInfo{})
	if err != nil {
		return frame.Acquired{}, errors.Wrap(err, "create acquire semaphore")
	}

	imageIndex, res, err := s.ctx.SwapchainExtension.AcquireNextImage(s.handle, common.NoTimeout, &semaphore, nil)
	acquired, err := acquireOutcome(imageIndex, res, err)
	if err != nil {
		s.ctx.Device.DestroySemaphore(semaphore, nil)
		return frame.Acquired{}, err
	}

	s.imageReady = semaphore
	return acquired, nil
}

// acquireOutcome classifies the result of vkAcquireNextImageKHR.
func acquireOutcome(index int, res common.VkResult, err error) (frame.Acquired, error) {
	switch res {
	case khr_swapchain.VKErrorOutOfDate:
		return frame.Acquired{}, errors.Wrap(frame.ErrOutOfDate, "acquire next image")
	case khr_swapchain.VKSuboptimal:
		return frame.Acquired{Index: index, Suboptimal: true}, nil
	}
	if err != nil {
		return frame.Acquired{}, err
	}
	return frame.Acquired{Index: index}, nil
}

// takeImageReady hands the last acquire semaphore to the caller.
func (s *Swapchain) takeImageReady() core1_0.Semaphore {
	semaphore := s.imageReady
	s.imageReady = core1_0.Semaphore{}
	return semaphore
}

// orphan keeps an acquire semaphore that may still be signalled until the
// chain it was acquired from is gone.
func (s *Swapchain) orphan(semaphore core1_0.Semaphore) {
	if semaphore.Initialized() {
		s.orphaned = append(s.orphaned, semaphore)
	}
}

func (s *Swapchain) Destroy() {
	s.destroyChain()

	if s.imageReady.Initialized() {
		s.ctx.Device.DestroySemaphore(s.imageReady, nil)
		s.imageReady = core1_0.Semaphore{}
	}
}

func (s *Swapchain) destroyChain() {
	for _, semaphore := range s.presentReady {
		s.ctx.Device.DestroySemaphore(semaphore, nil)
	}
	s.presentReady = nil
	s.images = nil

	if s.handle.Initialized() {
		s.ctx.SwapchainExtension.DestroySwapchain(s.handle, nil)
		s.handle = khr_swapchain.Swapchain{}
	}

	for _, semaphore := range s.orphaned {
		s.ctx.Device.DestroySemaphore(semaphore, nil)
	}
	s.orphaned = nil
}

func chooseSurfaceFormat(availableFormats []khr_surface.SurfaceFormat) khr_surface.SurfaceFormat {
	for _, format := range availableFormats {
		if format.Format == core1_0.FormatB8G8R8A8SRGB && format.ColorSpace == khr_surface.ColorSpaceSRGBNonlinear {
			return format
		}
	}

	return availableFormats[0]
}

func choosePresentMode(availablePresentModes []khr_surface.PresentMode) khr_surface.PresentMode {
	for _, presentMode := range availablePresentModes {
		if presentMode == khr_surface.PresentModeMailbox {
			return presentMode
		}
	}

	return khr_surface.PresentModeFIFO
}

// chooseExtent returns the image size for a new swapchain. Surfaces that fix
// their own size win over the requested one.
func chooseExtent(capabilities *khr_surface.SurfaceCapabilities, requested frame.Extent) (core1_0.Extent2D, error) {
	if capabilities.CurrentExtent.Width != -1 {
		extent := capabilities.CurrentExtent
		if extent.Width == 0 || extent.Height == 0 {
			return extent, errors.Wrapf(frame.ErrUnsupportedDimensions, "surface is %dx%d", extent.Width, extent.Height)
		}
		return extent, nil
	}

	if requested.Empty() ||
		requested.Width < capabilities.MinImageExtent.Width || requested.Width > capabilities.MaxImageExtent.Width ||
		requested.Height < capabilities.MinImageExtent.Height || requested.Height > capabilities.MaxImageExtent.Height {
		return core1_0.Extent2D{}, errors.Wrapf(frame.ErrUnsupportedDimensions, "%s outside %dx%d..%dx%d", requested,
			capabilities.MinImageExtent.Width, capabilities.MinImageExtent.Height,
			capabilities.MaxImageExtent.Width, capabilities.MaxImageExtent.Height)
	}

	return core1_0.Extent2D{Width: requested.Width, Height: requested.Height}, nil
}

func chooseImageCount(capabilities *khr_surface.SurfaceCapabilities) int {
	imageCount := capabilities.MinImageCount + 1
	if capabilities.MaxImageCount > 0 && capabilities.MaxImageCount < imageCount {
		imageCount = capabilities.MaxImageCount
	}
	return imageCount
}

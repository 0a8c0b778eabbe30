// Package gpu implements the frame interfaces on top of vkngwrapper.
package gpu

import (
	"fmt"
	"log"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/veandco/go-sdl2/sdl"
	"github.com/vkngwrapper/core/v3"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/ext_debug_utils"
	"github.com/vkngwrapper/extensions/v3/khr_portability_enumeration"
	"github.com/vkngwrapper/extensions/v3/khr_portability_subset"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"
	vkng_sdl2 "github.com/vkngwrapper/integrations/sdl2/v3"
	"github.com/vkngwrapper/quad/config"
)

var deviceExtensions = []string{khr_swapchain.ExtensionName}

// DeviceInfo describes the physical device picked at bootstrap.
type DeviceInfo struct {
	Name            string
	VendorID        uint32
	DeviceID        uint32
	APIVersion      common.APIVersion
	PipelineCacheID uuid.UUID
}

func (i DeviceInfo) String() string {
	return fmt.Sprintf("%s [%04x:%04x] Vulkan %v, pipeline cache %s",
		i.Name, i.VendorID, i.DeviceID, i.APIVersion, i.PipelineCacheID)
}

// Context holds the handles created once at startup: instance, surface,
// physical and logical device, and the single graphics+present queue.
type Context struct {
	Global   core1_0.GlobalDriver
	Instance core1_0.CoreInstanceDriver
	Device   core1_0.CoreDeviceDriver

	PhysicalDevice core1_0.PhysicalDevice
	QueueFamily    int
	Queue          core1_0.Queue

	SurfaceExtension   khr_surface.ExtensionDriver
	Surface            khr_surface.Surface
	SwapchainExtension khr_swapchain.ExtensionDriver

	Info DeviceInfo

	logger         *log.Logger
	debugDriver    ext_debug_utils.ExtensionDriver
	debugMessenger ext_debug_utils.DebugUtilsMessenger
}

// Bootstrap creates a Vulkan context presenting to window. Any failure is
// final: a machine without a suitable device cannot run the demo.
func Bootstrap(window *sdl.Window, cfg config.Config, logger *log.Logger) (*Context, error) {
	if logger == nil {
		logger = log.Default()
	}
	ctx := &Context{logger: logger}
	err := ctx.bootstrap(window, cfg)
	if err != nil {
		ctx.Destroy()
		return nil, err
	}

	ctx.logger.Printf("using %s", ctx.Info)
	return ctx, nil
}

func (c *Context) bootstrap(window *sdl.Window, cfg config.Config) error {
	var err error

	c.Global, err = core.CreateDriverFromProcAddr(sdl.VulkanGetVkGetInstanceProcAddr())
	if err != nil {
		return errors.Wrap(err, "load vulkan")
	}

	validation, err := c.createInstance(window, cfg)
	if err != nil {
		return err
	}

	if validation {
		err = c.setupDebugMessenger()
		if err != nil {
			return err
		}
	}

	c.SurfaceExtension = khr_surface.CreateExtensionDriverFromCoreDriver(c.Instance)
	c.Surface, err = vkng_sdl2.CreateSurface(c.Instance.Instance(), c.SurfaceExtension, window)
	if err != nil {
		return errors.Wrap(err, "create surface")
	}

	err = c.pickPhysicalDevice()
	if err != nil {
		return err
	}

	err = c.createLogicalDevice()
	if err != nil {
		return err
	}

	c.SwapchainExtension = khr_swapchain.CreateExtensionDriverFromCoreDriver(c.Device)
	return nil
}

// WaitIdle blocks until the device has finished all submitted work.
func (c *Context) WaitIdle() error {
	if c.Device == nil {
		return nil
	}
	_, err := c.Device.DeviceWaitIdle()
	return errors.Wrap(err, "wait for device idle")
}

func (c *Context) Destroy() {
	if c.Device != nil {
		c.Device.DestroyDevice(nil)
		c.Device = nil
	}

	if c.debugMessenger.Initialized() {
		c.debugDriver.DestroyDebugUtilsMessenger(c.debugMessenger, nil)
		c.debugMessenger = ext_debug_utils.DebugUtilsMessenger{}
	}

	if c.Surface.Initialized() {
		c.SurfaceExtension.DestroySurface(c.Surface, nil)
		c.Surface = khr_surface.Surface{}
	}

	if c.Instance != nil {
		c.Instance.DestroyInstance(nil)
		c.Instance = nil
	}
}

// createInstance reports whether validation layers were enabled.
func (c *Context) createInstance(window *sdl.Window, cfg config.Config) (bool, error) {
	instanceOptions := core1_0.InstanceCreateInfo{
		ApplicationName:    cfg.ApplicationName,
		ApplicationVersion: common.CreateVersion(1, 0, 0),
		EngineName:         cfg.EngineName,
		EngineVersion:      common.CreateVersion(1, 0, 0),
		APIVersion:         common.Vulkan1_0,
	}

	extensions, _, err := c.Global.AvailableExtensions()
	if err != nil {
		return false, errors.Wrap(err, "list instance extensions")
	}

	sdlExtensions := window.VulkanGetInstanceExtensions()
	present, missing := selectNames(sdlExtensions, extensions)
	if len(missing) > 0 {
		return false, errors.Errorf("cannot present to an sdl window: missing instance extensions %v", missing)
	}
	instanceOptions.EnabledExtensionNames = append(instanceOptions.EnabledExtensionNames, present...)

	_, enumerationSupported := extensions[khr_portability_enumeration.ExtensionName]
	if enumerationSupported {
		instanceOptions.EnabledExtensionNames = append(instanceOptions.EnabledExtensionNames, khr_portability_enumeration.ExtensionName)
		instanceOptions.Flags |= khr_portability_enumeration.InstanceCreateEnumeratePortability
	}

	_, debugUtils := extensions[ext_debug_utils.ExtensionName]
	validation, err := c.validationLayers(cfg, debugUtils)
	if err != nil {
		return false, err
	}
	if validation != nil {
		instanceOptions.EnabledLayerNames = append(instanceOptions.EnabledLayerNames, validation...)
		instanceOptions.EnabledExtensionNames = append(instanceOptions.EnabledExtensionNames, ext_debug_utils.ExtensionName)
		instanceOptions.Next = c.debugMessengerOptions()
	}

	c.Instance, _, err = c.Global.CreateInstance(nil, instanceOptions)
	if err != nil {
		return false, errors.Wrap(err, "create instance")
	}

	return validation != nil, nil
}

// validationLayers returns the layers to enable, or nil when validation is off
// or unavailable on this machine.
func (c *Context) validationLayers(cfg config.Config, debugUtils bool) ([]string, error) {
	if !cfg.Validation || len(cfg.ValidationLayers) == 0 {
		return nil, nil
	}

	if !debugUtils {
		c.logger.Printf("validation disabled: %s not available", ext_debug_utils.ExtensionName)
		return nil, nil
	}

	layers, _, err := c.Global.AvailableLayers()
	if err != nil {
		return nil, errors.Wrap(err, "list instance layers")
	}

	present, missing := selectNames(cfg.ValidationLayers, layers)
	if len(missing) > 0 {
		c.logger.Printf("validation disabled: layers %v not installed (install the LunarG Vulkan SDK)", missing)
		return nil, nil
	}

	return present, nil
}

func (c *Context) debugMessengerOptions() ext_debug_utils.DebugUtilsMessengerCreateInfo {
	return ext_debug_utils.DebugUtilsMessengerCreateInfo{
		MessageSeverity: ext_debug_utils.SeverityError | ext_debug_utils.SeverityWarning,
		MessageType:     ext_debug_utils.TypeGeneral | ext_debug_utils.TypeValidation | ext_debug_utils.TypePerformance,
		UserCallback:    c.logDebug,
	}
}

func (c *Context) setupDebugMessenger() error {
	var err error
	c.debugDriver = ext_debug_utils.CreateExtensionDriverFromCoreDriver(c.Instance)
	c.debugMessenger, _, err = c.debugDriver.CreateDebugUtilsMessenger(nil, c.debugMessengerOptions())
	return errors.Wrap(err, "create debug messenger")
}

func (c *Context) logDebug(msgType ext_debug_utils.DebugUtilsMessageTypeFlags, severity ext_debug_utils.DebugUtilsMessageSeverityFlags, data *ext_debug_utils.DebugUtilsMessengerCallbackData) bool {
	c.logger.Printf("[%s %s] - %s", severity, msgType, data.Message)
	return false
}

func (c *Context) pickPhysicalDevice() error {
	physicalDevices, _, err := c.Instance.EnumeratePhysicalDevices()
	if err != nil {
		return errors.Wrap(err, "enumerate physical devices")
	}

	for _, device := range physicalDevices {
		family, ok := c.suitableQueueFamily(device)
		if !ok {
			continue
		}

		properties, err := c.Instance.GetPhysicalDeviceProperties(device)
		if err != nil {
			return errors.Wrap(err, "read physical device properties")
		}

		c.PhysicalDevice = device
		c.QueueFamily = family
		c.Info = DeviceInfo{
			Name:            properties.DeviceName,
			VendorID:        properties.VendorID,
			DeviceID:        properties.DeviceID,
			APIVersion:      properties.APIVersion,
			PipelineCacheID: properties.PipelineCacheUUID,
		}
		return nil
	}

	return errors.Errorf("found %d physical devices but none can draw to this window", len(physicalDevices))
}

// suitableQueueFamily finds a queue family that can both draw and present on a
// device that supports swapchains for the surface.
func (c *Context) suitableQueueFamily(device core1_0.PhysicalDevice) (int, bool) {
	extensions, _, err := c.Instance.EnumerateDeviceExtensionProperties(device)
	if err != nil {
		return 0, false
	}
	if _, missing := selectNames(deviceExtensions, extensions); len(missing) > 0 {
		return 0, false
	}

	formats, _, err := c.SurfaceExtension.GetPhysicalDeviceSurfaceFormats(c.Surface, device)
	if err != nil || len(formats) == 0 {
		return 0, false
	}
	presentModes, _, err := c.SurfaceExtension.GetPhysicalDeviceSurfacePresentModes(c.Surface, device)
	if err != nil || len(presentModes) == 0 {
		return 0, false
	}

	queueFamilies := c.Instance.GetPhysicalDeviceQueueFamilyProperties(device)
	for queueFamilyIdx, queueFamily := range queueFamilies {
		if (queueFamily.QueueFlags & core1_0.QueueGraphics) == 0 {
			continue
		}

		supported, _, err := c.SurfaceExtension.GetPhysicalDeviceSurfaceSupport(c.Surface, device, queueFamilyIdx)
		if err == nil && supported {
			return queueFamilyIdx, true
		}
	}

	return 0, false
}

func (c *Context) createLogicalDevice() error {
	var extensionNames []string
	extensionNames = append(extensionNames, deviceExtensions...)

	// Makes the demo compatible with vulkan portability, necessary to run on mac
	extensions, _, err := c.Instance.EnumerateDeviceExtensionProperties(c.PhysicalDevice)
	if err != nil {
		return errors.Wrap(err, "list device extensions")
	}
	if _, supported := extensions[khr_portability_subset.ExtensionName]; supported {
		extensionNames = append(extensionNames, khr_portability_subset.ExtensionName)
	}

	c.Device, _, err = c.Instance.CreateDevice(c.PhysicalDevice, nil, core1_0.DeviceCreateInfo{
		QueueCreateInfos: []core1_0.DeviceQueueCreateInfo{
			{
				QueueFamilyIndex: c.QueueFamily,
				QueuePriorities:  []float32{1.0},
			},
		},
		EnabledExtensionNames: extensionNames,
	})
	if err != nil {
		return errors.Wrap(err, "create logical device")
	}

	c.Queue = c.Device.GetQueue(c.QueueFamily, 0)
	return nil
}

// selectNames splits wanted into the names present in available and the rest,
// preserving order.
func selectNames[T any](wanted []string, available map[string]T) (present, missing []string) {
	for _, name := range wanted {
		if _, ok := available[name]; ok {
			present = append(present, name)
		} else {
			missing = append(missing, name)
		}
	}
	return present, missing
}

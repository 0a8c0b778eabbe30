package gpu

import (
	"log"
	"math"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/loov/hrtime"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/quad/frame"
	"github.com/vkngwrapper/quad/shaders"
	"golang.org/x/sync/errgroup"
)

// Pipeline draws alpha-blended triangle strips of frame.Vertex. The viewport is
// dynamic so the pipeline survives swapchain rebuilds.
type Pipeline struct {
	device core1_0.CoreDeviceDriver
	layout core1_0.PipelineLayout
	handle core1_0.Pipeline
}

func NewPipeline(ctx *Context, pass *RenderPass, logger *log.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = log.Default()
	}

	vertShader, fragShader, err := createShaderModules(ctx.Device)
	if vertShader.Initialized() {
		defer ctx.Device.DestroyShaderModule(vertShader, nil)
	}
	if fragShader.Initialized() {
		defer ctx.Device.DestroyShaderModule(fragShader, nil)
	}
	if err != nil {
		return nil, err
	}

	p := &Pipeline{device: ctx.Device}
	p.layout, _, err = ctx.Device.CreatePipelineLayout(nil, core1_0.PipelineLayoutCreateInfo{})
	if err != nil {
		return nil, errors.Wrap(err, "create pipeline layout")
	}

	start := hrtime.Now()
	pipelines, _, err := ctx.Device.CreateGraphicsPipelines(nil, nil,
		graphicsPipelineCreateInfo(vertShader, fragShader, p.layout, pass.handle),
	)
	if err != nil {
		p.Destroy()
		return nil, errors.Wrap(err, "create graphics pipeline")
	}
	logger.Printf("vkCreateGraphicsPipelines: %s", hrtime.Since(start))

	p.handle = pipelines[0]
	return p, nil
}

// createShaderModules decodes and creates both stages in parallel. Whatever
// modules were created are returned even on error so the caller can free them.
func createShaderModules(device core1_0.CoreDeviceDriver) (vertShader, fragShader core1_0.ShaderModule, err error) {
	var g errgroup.Group

	g.Go(func() error {
		code, err := shaders.Vertex()
		if err != nil {
			return err
		}
		vertShader, _, err = device.CreateShaderModule(nil, core1_0.ShaderModuleCreateInfo{
			Code: code,
		})
		return errors.Wrap(err, "create vertex shader module")
	})

	g.Go(func() error {
		code, err := shaders.Fragment()
		if err != nil {
			return err
		}
		fragShader, _, err = device.CreateShaderModule(nil, core1_0.ShaderModuleCreateInfo{
			Code: code,
		})
		return errors.Wrap(err, "create fragment shader module")
	})

	err = g.Wait()
	return vertShader, fragShader, err
}

func vertexBindings() []core1_0.VertexInputBindingDescription {
	v := frame.Vertex{}
	return []core1_0.VertexInputBindingDescription{
		{
			Binding:   0,
			Stride:    int(unsafe.Sizeof(v)),
			InputRate: core1_0.VertexInputRateVertex,
		},
	}
}

func vertexAttributes() []core1_0.VertexInputAttributeDescription {
	v := frame.Vertex{}
	return []core1_0.VertexInputAttributeDescription{
		{
			Binding:  0,
			Location: 0,
			Format:   core1_0.FormatR32G32SignedFloat,
			Offset:   int(unsafe.Offsetof(v.Position)),
		},
		{
			Binding:  0,
			Location: 1,
			Format:   core1_0.FormatR32G32SignedFloat,
			Offset:   int(unsafe.Offsetof(v.UV)),
		},
	}
}

// blendAttachment composites source over destination by source alpha.
func blendAttachment() core1_0.PipelineColorBlendAttachmentState {
	return core1_0.PipelineColorBlendAttachmentState{
		BlendEnabled: true,

		SrcColorBlendFactor: core1_0.BlendFactorSrcAlpha,
		DstColorBlendFactor: core1_0.BlendFactorOneMinusSrcAlpha,
		ColorBlendOp:        core1_0.BlendOpAdd,

		SrcAlphaBlendFactor: core1_0.BlendFactorSrcAlpha,
		DstAlphaBlendFactor: core1_0.BlendFactorOneMinusSrcAlpha,
		AlphaBlendOp:        core1_0.BlendOpAdd,

		ColorWriteMask: core1_0.ColorComponentRed | core1_0.ColorComponentGreen | core1_0.ColorComponentBlue | core1_0.ColorComponentAlpha,
	}
}

func graphicsPipelineCreateInfo(vertShader, fragShader core1_0.ShaderModule, layout core1_0.PipelineLayout, renderPass core1_0.RenderPass) core1_0.GraphicsPipelineCreateInfo {
	vertexInput := &core1_0.PipelineVertexInputStateCreateInfo{
		VertexBindingDescriptions:   vertexBindings(),
		VertexAttributeDescriptions: vertexAttributes(),
	}

	inputAssembly := &core1_0.PipelineInputAssemblyStateCreateInfo{
		Topology:               core1_0.PrimitiveTopologyTriangleStrip,
		PrimitiveRestartEnable: false,
	}

	vertStage := core1_0.PipelineShaderStageCreateInfo{
		Stage:  core1_0.StageVertex,
		Module: vertShader,
		Name:   "main",
	}

	fragStage := core1_0.PipelineShaderStageCreateInfo{
		Stage:  core1_0.StageFragment,
		Module: fragShader,
		Name:   "main",
	}

	// The viewport is set per frame; the scissor never clips
	viewport := &core1_0.PipelineViewportStateCreateInfo{
		Viewports: []core1_0.Viewport{
			{
				X:        0,
				Y:        0,
				Width:    1,
				Height:   1,
				MinDepth: 0,
				MaxDepth: 1,
			},
		},
		Scissors: []core1_0.Rect2D{
			{
				Offset: core1_0.Offset2D{X: 0, Y: 0},
				Extent: core1_0.Extent2D{Width: math.MaxInt32, Height: math.MaxInt32},
			},
		},
	}

	dynamicState := &core1_0.PipelineDynamicStateCreateInfo{
		DynamicStates: []core1_0.DynamicState{core1_0.DynamicStateViewport},
	}

	rasterization := &core1_0.PipelineRasterizationStateCreateInfo{
		DepthClampEnable:        false,
		RasterizerDiscardEnable: false,

		PolygonMode: core1_0.PolygonModeFill,
		CullMode:    core1_0.CullModeNone,
		FrontFace:   core1_0.FrontFaceCounterClockwise,

		DepthBiasEnable: false,

		LineWidth: 1.0,
	}

	multisample := &core1_0.PipelineMultisampleStateCreateInfo{
		SampleShadingEnable:  false,
		RasterizationSamples: core1_0.Samples1,
		MinSampleShading:     1.0,
	}

	colorBlend := &core1_0.PipelineColorBlendStateCreateInfo{
		LogicOpEnabled: false,
		LogicOp:        core1_0.LogicOpCopy,

		BlendConstants: [4]float32{0, 0, 0, 0},
		Attachments:    []core1_0.PipelineColorBlendAttachmentState{blendAttachment()},
	}

	return core1_0.GraphicsPipelineCreateInfo{
		Stages: []core1_0.PipelineShaderStageCreateInfo{
			vertStage,
			fragStage,
		},
		VertexInputState:   vertexInput,
		InputAssemblyState: inputAssembly,
		ViewportState:      viewport,
		RasterizationState: rasterization,
		MultisampleState:   multisample,
		ColorBlendState:    colorBlend,
		DynamicState:       dynamicState,
		Layout:             layout,
		RenderPass:         renderPass,
		Subpass:            0,
		BasePipelineIndex:  -1,
	}
}

func (p *Pipeline) Destroy() {
	if p.handle.Initialized() {
		p.device.DestroyPipeline(p.handle, nil)
		p.handle = core1_0.Pipeline{}
	}
	if p.layout.Initialized() {
		p.device.DestroyPipelineLayout(p.layout, nil)
		p.layout = core1_0.PipelineLayout{}
	}
}

package frame

import "github.com/cockroachdb/errors"

// BuildTargets creates one render target per image and a viewport covering the
// first image.
func BuildTargets(images []Image, pass RenderPass) ([]RenderTarget, Viewport, error) {
	if len(images) == 0 {
		return nil, Viewport{}, errors.New("swapchain has no images")
	}

	extent := images[0].Extent()
	viewport := Viewport{
		X:        0,
		Y:        0,
		Width:    float32(extent.Width),
		Height:   float32(extent.Height),
		MinDepth: 0,
		MaxDepth: 1,
	}

	targets := make([]RenderTarget, 0, len(images))
	for i, image := range images {
		target, err := pass.NewTarget(image)
		if err != nil {
			destroyTargets(targets)
			return nil, Viewport{}, errors.Wrapf(err, "render target %d", i)
		}
		targets = append(targets, target)
	}

	return targets, viewport, nil
}

func destroyTargets(targets []RenderTarget) {
	for _, target := range targets {
		target.Destroy()
	}
}

// Package shaders holds the SPIR-V programs used to draw the quad.
package shaders

import (
	"embed"

	"github.com/cockroachdb/errors"
)

//go:generate glslc -fshader-stage=vertex quad.vert -o quad.vert.spv
//go:generate glslc -fshader-stage=fragment quad.frag -o quad.frag.spv

//go:embed *.spv
var fileSystem embed.FS

const spirvMagic = 0x07230203

// Vertex returns the vertex stage bytecode.
func Vertex() ([]uint32, error) {
	return load("quad.vert.spv")
}

// Fragment returns the fragment stage bytecode.
func Fragment() ([]uint32, error) {
	return load("quad.frag.spv")
}

func load(name string) ([]uint32, error) {
	b, err := fileSystem.ReadFile(name)
	if err != nil {
		return nil, errors.Wrapf(err, "read shader %s", name)
	}

	code, err := Bytecode(b)
	if err != nil {
		return nil, errors.Wrapf(err, "decode shader %s", name)
	}
	return code, nil
}

// Bytecode converts a little-endian SPIR-V file into the word slice expected by
// vkCreateShaderModule.
func Bytecode(b []byte) ([]uint32, error) {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil, errors.Errorf("spir-v length %d is not a positive multiple of 4", len(b))
	}

	byteCode := make([]uint32, len(b)/4)
	for i := 0; i < len(byteCode); i++ {
		byteIndex := i * 4
		byteCode[i] = 0
		byteCode[i] |= uint32(b[byteIndex])
		byteCode[i] |= uint32(b[byteIndex+1]) << 8
		byteCode[i] |= uint32(b[byteIndex+2]) << 16
		byteCode[i] |= uint32(b[byteIndex+3]) << 24
	}

	if byteCode[0] != spirvMagic {
		return nil, errors.Errorf("bad spir-v magic 0x%08x", byteCode[0])
	}

	return byteCode, nil
}

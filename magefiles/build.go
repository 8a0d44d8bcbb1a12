//go:build mage

package main

import (
	"fmt"
	"path/filepath"

	"github.com/magefile/mage/mg"
)

type Build mg.Namespace

const shaderDir = "assets/shaders"

// Compiles every GLSL shader under assets/shaders into SPIR-V next to it.
func (Build) Shaders() error {
	return buildShaders()
}

// Builds the demo binary into bin/.
func (Build) Demo() error {
	mg.Deps(Build.Shaders)
	if _, err := executeCmd("go", withArgs("build", "-o", "bin/rr-testbed", "."), withStream()); err != nil {
		return err
	}
	return nil
}

func buildShaders() error {
	var sources []string
	for _, ext := range []string{"*.vert", "*.frag", "*.comp"} {
		matches, err := filepath.Glob(filepath.Join(shaderDir, ext))
		if err != nil {
			return err
		}
		sources = append(sources, matches...)
	}
	if len(sources) == 0 {
		fmt.Printf("no shaders found in %s\n", shaderDir)
		return nil
	}
	for _, src := range sources {
		if _, err := executeCmd("glslc", withArgs("--target-env=vulkan1.1", src, "-o", src+".spv"), withStream()); err != nil {
			return err
		}
	}
	return nil
}

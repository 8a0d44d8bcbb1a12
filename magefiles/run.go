//go:build mage

package main

import (
	"fmt"

	"github.com/magefile/mage/mg"
)

type Run mg.Namespace

// Compiles the shaders and runs the testbed with validation enabled.
func (Run) Demo() error {
	if err := buildShaders(); err != nil {
		return err
	}
	fmt.Println("Run testbed...")
	if _, err := executeCmd("go", withArgs("run", ".", "-config", "rr.toml"), withEnv("RR_VALIDATION=true"), withStream()); err != nil {
		return err
	}
	return nil
}

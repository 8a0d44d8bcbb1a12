//go:build mage

package main

import (
	"github.com/magefile/mage/mg"
)

type Test mg.Namespace

// Runs every package test with the race detector.
func (Test) All() error {
	if _, err := executeCmd("go", withArgs("test", "-race", "./..."), withStream()); err != nil {
		return err
	}
	return nil
}

// Runs the GPU-free render graph tests only.
func (Test) Graph() error {
	if _, err := executeCmd("go", withArgs("test", "./engine/renderer/graph/...", "./engine/renderer/descriptor/..."), withStream()); err != nil {
		return err
	}
	return nil
}

//go:build mage

package main

import (
	"github.com/magefile/mage/mg"
)

type Test mg.Namespace

// Runs the unit tests with the race detector.
func (Test) Unit() error {
	if _, err := executeCmd("go", withArgs("test", "-race", "-count=1", "./..."), withStream()); err != nil {
		return err
	}
	return nil
}

// Runs the unit tests with engine assertions panicking.
func (Test) Debug() error {
	if _, err := executeCmd("go", withArgs("test", "-tags", debugTag, "-count=1", "./engine/..."), withStream()); err != nil {
		return err
	}
	return nil
}

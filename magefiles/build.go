//go:build mage

package main

import (
	"github.com/magefile/mage/mg"
)

type Build mg.Namespace

// Tidies the module and builds the testbed binary into bin/.
func (Build) Engine() error {
	mg.Deps(Build.Deps)
	if _, err := executeCmd("go", withArgs("build", "-o", "bin/instancer", "."), withStream()); err != nil {
		return err
	}
	return nil
}

// Builds with engine assertions compiled in.
func (Build) Debug() error {
	mg.Deps(Build.Deps)
	if _, err := executeCmd("go", withArgs("build", "-tags", debugTag, "-o", "bin/instancer_debug", "."), withStream()); err != nil {
		return err
	}
	return nil
}

// Runs go mod tidy and go mod download.
func (Build) Deps() error {
	return goModTidy()
}

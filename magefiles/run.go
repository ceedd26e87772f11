//go:build mage

package main

import (
	"fmt"
	"os"

	"github.com/magefile/mage/mg"
)

type Run mg.Namespace

// Runs the testbed. FRAMES limits the frame count and CONFIG points at a TOML config.
func (Run) Testbed() error {
	args := []string{"run", "main.go"}
	if frames := os.Getenv("FRAMES"); frames != "" {
		args = append(args, "-frames", frames)
	}
	if config := os.Getenv("CONFIG"); config != "" {
		args = append(args, "-config", config)
	}
	fmt.Println("Run testbed...")
	if _, err := executeCmd("go", withArgs(args...), withStream()); err != nil {
		return err
	}
	return nil
}

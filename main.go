/*
This is an example of application that will use the
engine package to grow a forest of instanced trees
*/
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/spaghettifunk/instancer/engine"
	"github.com/spaghettifunk/instancer/engine/core"
	"github.com/spaghettifunk/instancer/testbed"
)

func main() {
	configPath := flag.String("config", "", "path to a TOML application config")
	frames := flag.Uint64("frames", 0, "number of frames to run, 0 runs until interrupted")
	flag.Parse()

	config := engine.DefaultApplicationConfig()
	if *configPath != "" {
		var err error
		if config, err = engine.LoadApplicationConfig(*configPath); err != nil {
			core.LogFatal("failed to load config: %s", err.Error())
		}
	}

	tb, err := testbed.NewTestGame(config)
	if err != nil {
		panic(err)
	}

	engine, err := engine.New(tb.Game)
	if err != nil {
		panic(err)
	}

	if err := engine.Initialize(); err != nil {
		engine.Shutdown()
		panic(err)
	}

	// signal channel to capture system calls
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)

	// stop the frame loop on sigterm and other system calls
	go func() {
		<-sigCh
		engine.Stop()
	}()

	// run engine
	runErr := engine.Run(*frames)
	if err := engine.Shutdown(); err != nil {
		core.LogError(err.Error())
	}
	if runErr != nil {
		core.LogError(runErr.Error())
		os.Exit(1)
	}
}

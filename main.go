/*
This is an example of application that will use the
engine package to test things out
*/
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/TideSofDarK/RrFramework-sub001/engine"
	"github.com/TideSofDarK/RrFramework-sub001/engine/core"
	"github.com/TideSofDarK/RrFramework-sub001/testbed"
)

func main() {
	configPath := flag.String("config", "", "path to a TOML config file")
	flag.Parse()

	config, err := engine.LoadConfig(*configPath)
	if err != nil {
		core.LogFatal("invalid configuration: %s", err)
	}

	e, err := engine.New(testbed.NewTestGame(), config)
	if err != nil {
		core.LogFatal("failed to create engine: %s", err)
	}

	if err := e.Initialize(); err != nil {
		e.Shutdown()
		core.LogFatal("engine initialization failed: %s", err)
	}

	// signal channel to capture system calls
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)

	// the render loop owns every GPU object, so it is only asked to stop
	go func() {
		<-sigCh
		e.RequestQuit()
	}()

	runErr := e.Run()
	if err := e.Shutdown(); err != nil {
		core.LogError("shutdown failed: %s", err)
	}
	if runErr != nil {
		core.LogFatal("engine stopped: %s", runErr)
	}
}

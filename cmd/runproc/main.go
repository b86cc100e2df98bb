// Copyright (c) 2026
// Author: ooScott <ooscott@users.noreply.github.com>

// Example: run a command synchronously through process.Process and print
// its captured stdout/stderr, demonstrating the Sync wait-loop path.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ooScott/rct/process"
)

func main() {
	timeout := flag.Duration("timeout", 10*time.Second, "exec timeout, 0 for none")
	flag.Parse()
	args := flag.Args()
	if len(args) == 0 {
		log.Fatal().Msg("runproc: usage: runproc <command> [args...]")
	}

	p := process.NewSyncProcess()
	result := p.Exec(args[0], args[1:], nil, *timeout, process.NoFlags)

	switch result {
	case process.Done:
		os.Stdout.Write(p.ReadAllStdOut())
		os.Stderr.Write(p.ReadAllStdErr())
		os.Exit(p.ReturnCode())
	case process.TimedOut:
		fmt.Fprintln(os.Stderr, "runproc: timed out")
		os.Exit(124)
	case process.Failed:
		fmt.Fprintln(os.Stderr, "runproc:", p.ErrorString())
		os.Exit(1)
	}
}

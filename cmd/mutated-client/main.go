// Command mutated-client drives an open-loop load test against a synthetic
// or memcached-protocol server and reports latency and throughput
// statistics for the measurement window.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/scslab/mutated/internal/client"
	"github.com/scslab/mutated/internal/config"
	"github.com/scslab/mutated/internal/errs"
	"github.com/scslab/mutated/internal/report"
)

func main() {
	cfg, err := config.ParseClient(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	outcome, err := client.Run(cfg, cfg.PinCPU)
	if err != nil {
		code := errs.Internal
		if e, ok := err.(*errs.Error); ok {
			code = e.Code
		}
		log.Printf("mutated-client: %s: %v", code, err)
		os.Exit(1)
	}

	if cfg.MachineReadable {
		report.PrintMachine(os.Stdout, outcome.Run, outcome.Results)
	} else {
		report.PrintHuman(os.Stdout, outcome.Run, outcome.Results)
	}
}

// Command mutated-load bulk-populates a memcached-compatible server with a
// sequential key pool ahead of a mutated-client measurement run.
package main

import (
	"fmt"
	"os"

	"github.com/scslab/mutated/internal/bulkload"
	"github.com/scslab/mutated/internal/config"
	"github.com/scslab/mutated/internal/errs"
	"github.com/scslab/mutated/internal/reactor"
	"github.com/scslab/mutated/internal/sock"
)

func main() {
	cfg, err := config.ParseLoad(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		code := errs.Internal
		if e, ok := err.(*errs.Error); ok {
			code = e.Code
		}
		fmt.Fprintf(os.Stderr, "mutated-load: %s: %v\n", code, err)
		os.Exit(1)
	}
}

func run(cfg *config.Load) error {
	r, err := reactor.New()
	if err != nil {
		return errs.Newf(errs.Internal, "reactor init: %v", err)
	}
	defer r.Close()

	s, err := sock.Dial(r, cfg.Addr, cfg.Port)
	if err != nil {
		return err
	}

	loader := bulkload.New(s, bulkload.Config{
		KeyCount:  cfg.Keys,
		ValueSize: cfg.ValueSize,
		StartSeq:  cfg.StartSeq,
		Batch:     cfg.Batch,
		Notify:    cfg.Notify,
	})
	if err := loader.Start(); err != nil {
		return err
	}

	events := make([]reactor.Event, 16)
	for !loader.Done() {
		n, err := r.Wait(events, -1)
		if err != nil {
			return errs.Newf(errs.IoError, "epoll_wait: %v", err)
		}
		for i := 0; i < n; i++ {
			sk := sock.FromUdata(events[i].Udata)
			if err := sk.RunIO(events[i].Events); err != nil {
				sk.Fail()
				return err
			}
		}
	}

	fmt.Printf("loaded %d keys in %s\n", cfg.Keys, loader.Elapsed())
	return nil
}

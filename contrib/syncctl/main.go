// Command syncctl inspects and manages a fieldsync queue file out of band:
// list pending or dead mutations, run one drain cycle against the backend,
// or clear the queue.
//
// The queue file is locked exclusively, so syncctl refuses to run while the
// owning application is running. That is intentional: two processes
// draining one queue could interleave replays out of order.
package main

import (
	"os"

	"github.com/rs/zerolog"
)

func main() {
	out := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	if err := newRootCmd(out).Execute(); err != nil {
		out.Error().Err(err).Msg("syncctl failed")
		os.Exit(1)
	}
}

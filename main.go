// Command blobdoc manages document collections stored as snapshots in a
// key/value blob store.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"

	"github.com/stevemurr/blobdoc/cli"
)

func main() {
	ll := &slog.LevelVar{}
	ll.Set(slog.LevelInfo)
	logger := slog.New(tint.NewHandler(colorable.NewColorable(os.Stderr), &tint.Options{
		Level:      ll,
		TimeFormat: "15:04:05.000",
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			// Empty ids and nil errors add nothing to a collection event.
			switch v := a.Value.Any().(type) {
			case nil:
				return slog.Attr{}
			case string:
				if v == "" {
					return slog.Attr{}
				}
			}
			return a
		},
	}))
	slog.SetDefault(logger)

	if err := cli.NewRootCmd(logger, ll).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "blobdoc: %v\n", err)
		os.Exit(1)
	}
}

// Package cli implements the blobdoc command line.
package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/stevemurr/blobdoc/collection"
	"github.com/stevemurr/blobdoc/config"
	"github.com/stevemurr/blobdoc/schema"
	"github.com/stevemurr/blobdoc/store"
)

// app holds flag values and the resolved configuration for one invocation.
type app struct {
	configPath string
	backend    string
	dataDir    string
	maxSize    int
	schemaPath string
	strict     bool
	output     string
	logLevel   string

	cfg    config.Config
	logger *slog.Logger
	level  *slog.LevelVar
}

// NewRootCmd returns the blobdoc command tree. Collection diagnostics go to
// logger; level, when not nil, is set from the resolved log level before a
// command runs.
func NewRootCmd(logger *slog.Logger, level *slog.LevelVar) *cobra.Command {
	if logger == nil {
		logger = slog.Default()
	}
	a := &app{logger: logger, level: level}

	root := &cobra.Command{
		Use:   "blobdoc",
		Short: "Document collections on a key/value blob store",
		Long: "blobdoc keeps named collections of JSON documents. Each collection is\n" +
			"persisted as one snapshot under one key of the configured blob store.",
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}

	f := root.PersistentFlags()
	f.StringVarP(&a.configPath, "config", "c", "", "path to YAML config file")
	f.StringVar(&a.backend, "backend", "", "blob store backend: json, sqlite or memory")
	f.StringVar(&a.dataDir, "data-dir", "", "data directory")
	f.IntVar(&a.maxSize, "max-size", 0, "maximum snapshot size in bytes, 0 for no limit")
	f.StringVar(&a.schemaPath, "schema", "", "JSON Schema file (comments allowed) applied to documents")
	f.BoolVar(&a.strict, "strict", false, "fail on an unreadable collection instead of resetting it")
	f.StringVarP(&a.output, "output", "o", "json", "output format: json or yaml")
	f.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn or error")

	root.AddCommand(
		a.createCmd(),
		a.getCmd(),
		a.updateCmd(),
		a.deleteCmd(),
		a.clearCmd(),
		a.findCmd(),
		a.queryCmd(),
		a.countCmd(),
		a.exportCmd(),
		a.importCmd(),
	)
	return root
}

// setup resolves the configuration: defaults, then the config file and
// environment, then explicitly set flags.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("backend") {
		cfg.Backend = a.backend
	}
	if flags.Changed("data-dir") {
		cfg.DataDir = a.dataDir
	}
	if flags.Changed("max-size") {
		cfg.MaxValueSize = a.maxSize
	}
	if flags.Changed("schema") {
		cfg.Schema = a.schemaPath
	}
	if flags.Changed("strict") {
		cfg.Strict = a.strict
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = a.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if a.output != "json" && a.output != "yaml" {
		return fmt.Errorf("unknown output format %q (supported: json, yaml)", a.output)
	}
	if a.level != nil {
		l, _ := cfg.Level()
		a.level.Set(l)
	}
	a.cfg = cfg
	a.logger.Debug("config", "backend", cfg.Backend, "data_dir", cfg.DataDir, "max_value_size", cfg.MaxValueSize)
	return nil
}

// open opens the named collection. The returned release function closes the
// blob store and must be called once the command is done.
func (a *app) open(name string) (*collection.Collection, func(), error) {
	opts := []collection.Option{
		collection.WithReporter(collection.SlogReporter{Logger: a.logger}),
	}
	if a.cfg.Schema != "" {
		s, err := schema.Load(a.cfg.Schema)
		if err != nil {
			return nil, nil, err
		}
		vm, err := schema.Validators(s)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts,
			collection.WithValidators(vm),
			collection.WithDocumentValidator(schema.DocumentValidator(s)),
		)
	}
	if a.cfg.Strict {
		opts = append(opts, collection.WithStrictLoad())
	}

	s, closer, err := store.New(a.cfg.Backend, a.cfg.DataDir)
	if err != nil {
		return nil, nil, err
	}
	release := func() { a.close(closer) }
	c, err := collection.New(name, store.Limit(s, a.cfg.MaxValueSize), opts...)
	if err != nil {
		release()
		return nil, nil, err
	}
	return c, release, nil
}

func (a *app) close(c io.Closer) {
	if err := c.Close(); err != nil {
		a.logger.Warn("closing store", "err", err)
	}
}

// withCollection adapts fn into a cobra RunE that opens the collection named
// by the first argument.
func (a *app) withCollection(fn func(cmd *cobra.Command, c *collection.Collection, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		c, release, err := a.open(args[0])
		if err != nil {
			return err
		}
		defer release()
		return fn(cmd, c, args[1:])
	}
}

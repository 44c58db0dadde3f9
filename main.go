package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"

	"github.com/alecthomas/kong"
	kongtoml "github.com/alecthomas/kong-toml"
	kongyaml "github.com/alecthomas/kong-yaml"
	"github.com/refaktor/jnigen/config"
	jlog "github.com/refaktor/jnigen/log"
	"github.com/refaktor/jnigen/pipeline"
)

const defaultConfigPath = "jnigen.toml"

// Exit codes.
const (
	exitOK      = 0
	exitFailed  = 1
	exitUsage   = 2
	exitConfig  = 3
	exitLogging = 4
)

var errOverrideAll = errors.New("output and source overrides need a single target")

// CLI is the command line. log-level and jobs can be defaulted from
// jnigen.toml; every flag can be defaulted from jnigen.flags.toml or
// jnigen.flags.yaml next to it. Flags given on the command line win.
type CLI struct {
	Target string `arg:"" optional:"" help:"Target to generate, or \"all\" (also \"*\"). Defaults to the configured default target, else the host platform."`
	Output string `arg:"" optional:"" type:"path" help:"Output directory, replacing the target's."`
	Source string `arg:"" optional:"" type:"path" help:"Source root, replacing the target's."`

	Config   string `short:"c" type:"path" default:"jnigen.toml" help:"Configuration file."`
	LogLevel string `name:"log-level" default:"info" enum:"trace,debug,info,warn,error" help:"Log level (${enum})."`
	LogFile  string `name:"log-file" type:"path" help:"Also write logs to this file."`
	DryRun   bool   `name:"dry-run" help:"Run every stage and report which files would change, but write nothing."`
	Watch    bool   `short:"w" help:"Keep running and regenerate when a source or metadata file changes."`
	Jobs     int    `short:"j" help:"Number of targets generated at once. 0 means the number of CPUs."`
	Graph    bool   `help:"Also write the unit and struct dependency graph to jnigen_deps.dot."`
}

// findConfig returns the --config argument, if any. Kong needs the
// configuration paths before it parses the command line.
func findConfig(args []string) string {
	for i, a := range args {
		if a == "--" {
			break
		}
		if v, ok := strings.CutPrefix(a, "--config="); ok {
			return v
		}
		if (a == "--config" || a == "-c") && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

// usage prints the usage and err to standard error.
func usage(k *kong.Kong, kctx *kong.Context, err error) {
	if kctx != nil {
		k.Stdout = k.Stderr
		_ = kctx.PrintUsage(false)
		fmt.Fprintln(k.Stderr)
	}
	k.Errorf("%v", err)
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	cfgPath := findConfig(args)
	cfgGiven := cfgPath != ""
	if !cfgGiven {
		cfgPath = defaultConfigPath
	}
	cfg, err := loadConfig(cfgPath, cfgGiven)
	if err != nil {
		var cErr *config.Error
		if errors.As(err, &cErr) {
			fmt.Fprintln(stderr, cErr.String())
		} else {
			fmt.Fprintln(stderr, "jnigen:", err)
		}
		return exitConfig
	}

	var cli CLI
	k, err := newParser(&cli, cfg, cfgPath, stdout, stderr)
	if err != nil {
		fmt.Fprintln(stderr, "jnigen:", err)
		return exitConfig
	}
	kctx, err := k.Parse(args)
	if err != nil {
		var pErr *kong.ParseError
		if errors.As(err, &pErr) {
			kctx = pErr.Context
		}
		usage(k, kctx, err)
		return exitUsage
	}

	logger, closers, err := jlog.SetupLogger(cli.LogLevel, cli.LogFile)
	if err != nil {
		fmt.Fprintln(stderr, "jnigen: failed to set up logger:", err)
		return exitLogging
	}
	defer func() {
		for _, c := range closers {
			_ = c.Close()
		}
	}()

	targets, err := cli.selectTargets(cfg)
	if err != nil {
		usage(k, kctx, err)
		return exitUsage
	}

	configured := make([]string, 0, len(cfg.Targets)+len(targets))
	for _, t := range slices.Concat(cfg.Targets, targets) {
		if !slices.Contains(configured, t.ID) {
			configured = append(configured, t.ID)
		}
	}
	r, err := pipeline.New(logger, pipeline.Options{
		DryRun:     cli.DryRun,
		Jobs:       cli.Jobs,
		Configured: configured,
		Mapping:    cfg.Mapping,
		Graph:      cli.Graph,
	})
	if err != nil {
		fmt.Fprintln(stderr, "jnigen: mapping:", err)
		return exitConfig
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	code := generate(ctx, r, targets, stdout)
	if !cli.Watch {
		return code
	}
	logger.Info("watching for changes, press Ctrl+C to stop")
	err = pipeline.Watch(ctx, logger, watchPaths(targets), pipeline.DefaultDebounce, func() {
		r.Invalidate()
		generate(ctx, r, targets, stdout)
	})
	if err != nil {
		logger.Error("watch", "err", err)
		return exitFailed
	}
	return exitOK
}

// newParser returns the command line parser for cli. Flag defaults are
// resolved from cfg first, then from the flag files next to cfgPath.
func newParser(cli *CLI, cfg *config.Config, cfgPath string, stdout, stderr io.Writer) (*kong.Kong, error) {
	base := strings.TrimSuffix(cfgPath, filepath.Ext(cfgPath))
	return kong.New(cli,
		kong.Name("jnigen"),
		kong.Description("Generate JNI glue code for the native methods and struct mirrors of a Java source tree."),
		kong.Writers(stdout, stderr),
		kong.Resolvers(configResolver(cfg)),
		kong.Configuration(kongtoml.Loader, base+".flags.toml"),
		kong.Configuration(kongyaml.Loader, base+".flags.yaml"),
	)
}

// configResolver defaults the flags jnigen.toml also declares.
func configResolver(cfg *config.Config) kong.Resolver {
	return kong.ResolverFunc(func(_ *kong.Context, _ *kong.Path, flag *kong.Flag) (any, error) {
		switch flag.Name {
		case "log-level":
			if cfg.LogLevel != "" {
				return cfg.LogLevel, nil
			}
		case "jobs":
			if cfg.Jobs != 0 {
				return cfg.Jobs, nil
			}
		}
		return nil, nil
	})
}

// loadConfig loads the config file at path. A missing file is an empty
// configuration unless the path was given explicitly.
func loadConfig(path string, explicit bool) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return &config.Config{}, nil
		}
		return nil, err
	}
	return cfg, nil
}

// selectTargets resolves the positional arguments against cfg.
func (c *CLI) selectTargets(cfg *config.Config) ([]config.Target, error) {
	targets, err := cfg.Select(c.Target)
	if err != nil {
		return nil, err
	}
	targets = slices.Clone(targets)
	if c.Output != "" || c.Source != "" {
		if len(targets) != 1 {
			return nil, errOverrideAll
		}
		if c.Output != "" {
			targets[0].Output = c.Output
		}
		if c.Source != "" {
			targets[0].Source = c.Source
		}
	}
	for _, t := range targets {
		if err := t.Validate(); err != nil {
			return nil, err
		}
	}
	return targets, nil
}

func generate(ctx context.Context, r *pipeline.Runner, targets []config.Target, stdout io.Writer) int {
	results, err := r.RunAll(ctx, targets)
	pipeline.WriteReport(stdout, results)
	if err != nil {
		fmt.Fprintf(stdout, "\nFailed targets: %v\n", strings.Join(pipeline.FailedTargets(results), ", "))
		return exitFailed
	}
	return exitOK
}

// watchPaths returns the source roots and metadata directories of
// targets.
func watchPaths(targets []config.Target) []string {
	var res []string
	add := func(p string) {
		if p != "" && !slices.Contains(res, p) {
			res = append(res, p)
		}
	}
	for _, t := range targets {
		add(t.Source)
		if t.Metadata != "" {
			add(filepath.Dir(t.Metadata))
		}
	}
	return res
}

// Package pipeline runs the generation for one or more targets: load,
// model, map, emit, diff and write.
//
// Targets only share the parsed sources and the loaded metadata, both
// immutable. A failed target never affects the output of another one.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"
	"slices"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/refaktor/jnigen/config"
	"github.com/refaktor/jnigen/emit/emitio"
	"github.com/refaktor/jnigen/emit/natives"
	"github.com/refaktor/jnigen/emit/stats"
	"github.com/refaktor/jnigen/emit/structs"
	"github.com/refaktor/jnigen/ir"
	jlog "github.com/refaktor/jnigen/log"
	"github.com/refaktor/jnigen/metadata"
	"github.com/refaktor/jnigen/parser"
	"github.com/refaktor/jnigen/typemap"
	"golang.org/x/sync/errgroup"
)

var ErrDuplicateOutput = errors.New("two generated files have the same name")

// Options configure a [Runner].
type Options struct {
	// DryRun runs every stage but writes nothing.
	DryRun bool
	// Jobs bounds the number of targets generated at once. Zero means
	// the number of CPUs.
	Jobs int
	// Configured are the ids of every target in the configuration; a
	// struct field restricted to none of them is reported.
	Configured []string
	// Mapping overrides native type names, see [typemap.New].
	Mapping map[string]string
	// Graph additionally writes the unit and struct dependency graph
	// to GraphFile.
	Graph bool
}

// Result is the outcome of one target.
type Result struct {
	Target config.Target
	// State is Written or Failed.
	State State
	// FailedIn is the stage that failed.
	FailedIn State
	Err      error
	Files    []FileResult
	Warnings []ir.Warning
	Units    int
	Methods  int
	Structs  int
	Duration time.Duration
}

// Changed returns the number of created or updated files.
func (r *Result) Changed() int {
	n := 0
	for _, f := range r.Files {
		if f.Change != Unchanged {
			n++
		}
	}
	return n
}

// TargetError is the failure of one target.
type TargetError struct {
	Target string
	Stage  State
	Err    error
}

func (e *TargetError) Error() string {
	return fmt.Sprintf("target %v: %v: %v", e.Target, e.Stage, e.Err)
}

func (e *TargetError) Unwrap() error {
	return e.Err
}

type sourceEntry struct {
	once  sync.Once
	files []*parser.File
	err   error
}

type metadataEntry struct {
	once  sync.Once
	store *metadata.Store
	err   error
}

type modelEntry struct {
	once  sync.Once
	model *ir.Model
	err   error
}

// Runner runs target pipelines. It is safe for concurrent use.
type Runner struct {
	logger *slog.Logger
	opts   Options
	engine *typemap.Engine

	mu        sync.Mutex
	sources   map[string]*sourceEntry
	metadata  map[string]*metadataEntry
	models    map[[2]string]*modelEntry
	pathLocks map[string]*sync.Mutex
}

// New returns a runner. The type mapping table is validated here, so a
// bad mapping override fails before any target runs.
func New(logger *slog.Logger, opts Options) (*Runner, error) {
	engine, err := typemap.New(typemap.DefaultRules(), opts.Mapping)
	if err != nil {
		return nil, err
	}
	r := &Runner{
		logger:    logger,
		opts:      opts,
		engine:    engine,
		pathLocks: map[string]*sync.Mutex{},
	}
	r.Invalidate()
	return r, nil
}

// Invalidate drops the cached sources, metadata and models, e.g. after
// a file changed.
func (r *Runner) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources = map[string]*sourceEntry{}
	r.metadata = map[string]*metadataEntry{}
	r.models = map[[2]string]*modelEntry{}
}

func (r *Runner) parse(root string) ([]*parser.File, error) {
	r.mu.Lock()
	e, ok := r.sources[root]
	if !ok {
		e = &sourceEntry{}
		r.sources[root] = e
	}
	r.mu.Unlock()
	e.once.Do(func() {
		e.files, e.err = parser.ParseDir(root)
	})
	return e.files, e.err
}

func (r *Runner) loadMetadata(path string) (*metadata.Store, error) {
	if path == "" {
		return metadata.Empty(), nil
	}
	r.mu.Lock()
	e, ok := r.metadata[path]
	if !ok {
		e = &metadataEntry{}
		r.metadata[path] = e
	}
	r.mu.Unlock()
	e.once.Do(func() {
		e.store, e.err = metadata.Load(path)
	})
	return e.store, e.err
}

func (r *Runner) model(t config.Target, files []*parser.File, store *metadata.Store) (*ir.Model, error) {
	key := [2]string{t.Source, t.Metadata}
	r.mu.Lock()
	e, ok := r.models[key]
	if !ok {
		e = &modelEntry{}
		r.models[key] = e
	}
	r.mu.Unlock()
	e.once.Do(func() {
		e.model, e.err = ir.Build(files, store)
	})
	return e.model, e.err
}

// lockPaths locks the output directory and the stats table of a
// target, so targets sharing either are written one at a time. It
// returns the unlock function.
func (r *Runner) lockPaths(paths ...string) func() {
	for i := range paths {
		paths[i] = filepath.Clean(paths[i])
	}
	slices.Sort(paths)
	paths = slices.Compact(paths)

	r.mu.Lock()
	locks := make([]*sync.Mutex, len(paths))
	for i, p := range paths {
		l, ok := r.pathLocks[p]
		if !ok {
			l = &sync.Mutex{}
			r.pathLocks[p] = l
		}
		locks[i] = l
	}
	r.mu.Unlock()

	for _, l := range locks {
		l.Lock()
	}
	return func() {
		for i := len(locks) - 1; i >= 0; i-- {
			locks[i].Unlock()
		}
	}
}

// Run runs the pipeline of target t.
func (r *Runner) Run(ctx context.Context, t config.Target) *Result {
	start := time.Now()
	res := &Result{Target: t, State: Idle}
	logger := r.logger.With("target", t.ID)

	state := Idle
	enter := func(s State) error {
		state = s
		logger.Debug("stage", "state", s)
		return ctx.Err()
	}
	fail := func(err error) *Result {
		res.State = Failed
		res.FailedIn = state
		res.Err = &TargetError{Target: t.ID, Stage: state, Err: err}
		res.Duration = time.Since(start)
		logger.Error("generation failed", "state", state, "err", err)
		return res
	}

	if err := t.Validate(); err != nil {
		return fail(err)
	}

	if err := enter(Loading); err != nil {
		return fail(err)
	}
	store, err := r.loadMetadata(t.Metadata)
	if err != nil {
		return fail(err)
	}
	files, err := r.parse(t.Source)
	if err != nil {
		return fail(err)
	}
	logger.Debug("loaded", "files", len(files), "metadata", store.Files())

	if err := enter(Modeling); err != nil {
		return fail(err)
	}
	model, err := r.model(t, files, store)
	if err != nil {
		return fail(err)
	}
	res.Warnings = append(res.Warnings, model.Warnings...)
	res.Units = len(model.Units)
	res.Structs = len(model.Structs)

	if err := enter(Mapping); err != nil {
		return fail(err)
	}
	mappings, err := r.engine.MapModel(model, t)
	if err != nil {
		return fail(err)
	}
	res.Methods = len(mappings)

	if err := enter(Emitting); err != nil {
		return fail(err)
	}
	unlock := r.lockPaths(t.Output, t.StatsTablePath())
	defer unlock()
	outputs, warnings, err := r.emit(logger, t, model, mappings)
	if err != nil {
		return fail(err)
	}
	res.Warnings = append(res.Warnings, warnings...)

	if err := enter(Diffing); err != nil {
		return fail(err)
	}
	changes, err := diff(outputs)
	if err != nil {
		return fail(err)
	}
	res.Files = changes
	if !r.opts.DryRun {
		if err := write(outputs, changes); err != nil {
			return fail(err)
		}
	}
	for _, f := range changes {
		logger.Log(ctx, jlog.LevelTrace, "file", "path", f.Path, "change", f.Change)
	}
	for _, w := range res.Warnings {
		logger.Warn(w.String())
	}

	res.State = Written
	res.Duration = time.Since(start)
	logger.Info("generated", "files", len(changes), "changed", res.Changed(), "dry-run", r.opts.DryRun)
	return res
}

// output is a generated file with its destination path.
type output struct {
	path string
	data []byte
}

func (r *Runner) emit(logger *slog.Logger, t config.Target, model *ir.Model, mappings map[*ir.Method]*typemap.MethodMapping) ([]output, []ir.Warning, error) {
	table, err := stats.LoadFile(t.StatsTablePath())
	if err != nil {
		return nil, nil, err
	}
	for _, id := range table.Assign(stats.Identities(model)) {
		idx, _ := table.Index(id)
		logger.Debug("new stats index", "identity", id, "index", idx)
	}

	var files []emitio.File
	files = append(files, natives.EmitCommon(t))
	nativeFiles, err := natives.Emit(model, mappings, natives.Options{Target: t, Index: table.Index})
	if err != nil {
		return nil, nil, err
	}
	files = append(files, nativeFiles...)
	structFiles, warnings, err := structs.Emit(model, t, r.opts.Configured)
	if err != nil {
		return nil, nil, err
	}
	files = append(files, structFiles...)
	files = append(files, stats.Emit(table)...)
	if r.opts.Graph {
		files = append(files, emitio.File{Name: GraphFile, Data: dependencyGraph(model)})
	}

	var res []output
	seen := map[string]bool{}
	for _, f := range files {
		if seen[f.Name] {
			return nil, nil, fmt.Errorf("%w: %v", ErrDuplicateOutput, f.Name)
		}
		seen[f.Name] = true
		res = append(res, output{path: filepath.Join(t.Output, f.Name), data: f.Data})
	}
	res = append(res, output{path: t.StatsTablePath(), data: table.Bytes()})
	return res, warnings, nil
}

// RunAll runs every target, at most Options.Jobs at once. Results are
// in the order of targets. The error lists every failed target and is
// nil if all succeeded.
func (r *Runner) RunAll(ctx context.Context, targets []config.Target) ([]*Result, error) {
	jobs := r.opts.Jobs
	if jobs <= 0 {
		jobs = runtime.NumCPU()
	}
	results := make([]*Result, len(targets))
	var g errgroup.Group
	g.SetLimit(jobs)
	for i, t := range targets {
		g.Go(func() error {
			results[i] = r.Run(ctx, t)
			return nil
		})
	}
	_ = g.Wait()

	var errs *multierror.Error
	for _, res := range results {
		if res.Err != nil {
			errs = multierror.Append(errs, res.Err)
		}
	}
	return results, errs.ErrorOrNil()
}

// FailedTargets returns the ids of the failed targets, sorted.
func FailedTargets(results []*Result) []string {
	var res []string
	for _, r := range results {
		if r.State == Failed {
			res = append(res, r.Target.ID)
		}
	}
	slices.Sort(res)
	return res
}

// Package reconcile converges observed runtime state to the desired
// state of a manifest: networks and volumes first, then containers in
// dependency order, with fingerprint-based drift detection.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/PierreExeter/stackup/internal/graph"
	"github.com/PierreExeter/stackup/internal/manifest"
	"github.com/PierreExeter/stackup/internal/runtime"
)

// ErrInProgress is returned when a reconciliation pass is already in
// flight for the same project. Interleaved passes could double-create or
// race-remove resources, so they are rejected outright.
var ErrInProgress = errors.New("reconciliation already in progress for this stack")

// ConvergenceError is terminal for one resource: the retry budget for
// transient runtime errors is exhausted.
type ConvergenceError struct {
	Resource string
	Err      error
}

func (e *ConvergenceError) Error() string {
	return fmt.Sprintf("%s did not converge: %v", e.Resource, e.Err)
}

func (e *ConvergenceError) Unwrap() error { return e.Err }

// Options tunes a Reconciler. Zero values pick the defaults.
type Options struct {
	// Revision is attached as a label to every created resource.
	Revision string
	// CallTimeout bounds each runtime call. Default 30s.
	CallTimeout time.Duration
	// PullTimeout bounds image pulls, which can take far longer than any
	// other call. Default 10m.
	PullTimeout time.Duration
	// MaxAttempts is the per-operation retry budget, first attempt
	// included. Default 3.
	MaxAttempts uint64
}

// Reconciler executes plans against a Runtime. A single Reconciler may
// serve many projects; passes for the same project are mutually
// exclusive while independent projects proceed freely.
type Reconciler struct {
	rt   runtime.Runtime
	opts Options

	mu   sync.Mutex
	busy map[string]bool
}

func New(rt runtime.Runtime, opts Options) *Reconciler {
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 30 * time.Second
	}
	if opts.PullTimeout <= 0 {
		opts.PullTimeout = 10 * time.Minute
	}
	if opts.MaxAttempts == 0 {
		opts.MaxAttempts = 3
	}
	return &Reconciler{rt: rt, opts: opts, busy: map[string]bool{}}
}

// Plan computes the operations reconciliation would perform, without
// mutating anything.
func (r *Reconciler) Plan(ctx context.Context, state *manifest.DesiredState) (*Plan, error) {
	g, err := graph.Build(state)
	if err != nil {
		return nil, err
	}
	obs, err := r.observe(ctx, state.Project)
	if err != nil {
		return nil, err
	}
	return Diff(state, obs, g.StartOrder(), fingerprints(state)), nil
}

// Up converges the runtime to the desired state. Manifest- and
// graph-level defects abort before any mutation; runtime failures are
// isolated per resource and collected in the report. There is no
// rollback: on failure, everything already converged stays up.
func (r *Reconciler) Up(ctx context.Context, state *manifest.DesiredState) (*Report, error) {
	if err := r.acquire(state.Project); err != nil {
		return nil, err
	}
	defer r.release(state.Project)

	g, err := graph.Build(state)
	if err != nil {
		return nil, err
	}
	obs, err := r.observe(ctx, state.Project)
	if err != nil {
		return nil, err
	}
	fps := fingerprints(state)

	report := &Report{Project: state.Project, StartedAt: time.Now()}
	var reportMu sync.Mutex
	record := func(res Result) {
		reportMu.Lock()
		report.Results = append(report.Results, res)
		reportMu.Unlock()
		if res.Status == StatusFailed {
			log.Error().Str("kind", res.Kind).Str("name", res.Name).Err(res.Err).Msg("resource failed")
		} else {
			log.Info().Str("kind", res.Kind).Str("name", res.Name).Str("status", string(res.Status)).Msg("resource reconciled")
		}
	}

	r.reconcileNetworks(ctx, state, obs, record)
	r.reconcileVolumes(ctx, state, obs, record)
	r.removeOrphans(ctx, state, obs, record)
	r.reconcileServices(ctx, g, state, obs, fps, record)

	report.FinishedAt = time.Now()
	return report, nil
}

// DownOptions selects what teardown removes beyond the containers.
// Volumes default to preserved: data survives stack teardown.
type DownOptions struct {
	RemoveNetworks bool
	RemoveVolumes  bool
}

// Down stops and removes the stack's containers in reverse dependency
// order. Networks and volumes go only when explicitly requested.
func (r *Reconciler) Down(ctx context.Context, state *manifest.DesiredState, opts DownOptions) (*Report, error) {
	if err := r.acquire(state.Project); err != nil {
		return nil, err
	}
	defer r.release(state.Project)

	g, err := graph.Build(state)
	if err != nil {
		return nil, err
	}
	obs, err := r.observe(ctx, state.Project)
	if err != nil {
		return nil, err
	}

	report := &Report{Project: state.Project, StartedAt: time.Now()}
	record := func(res Result) { report.Results = append(report.Results, res) }

	// Containers for services no longer in the manifest have no declared
	// dependents, so they go first.
	inGraph := map[string]bool{}
	for _, name := range g.StartOrder() {
		inGraph[name] = true
	}
	for _, service := range sortedKeys(obs.Containers) {
		if !inGraph[service] {
			record(r.removeService(ctx, service, obs.Containers[service]))
		}
	}
	for _, service := range g.StopOrder() {
		c, ok := obs.Containers[service]
		if !ok {
			continue
		}
		record(r.removeService(ctx, service, c))
	}

	if opts.RemoveNetworks {
		for _, name := range sortedKeys(obs.Networks) {
			n := obs.Networks[name]
			err := r.do(ctx, r.opts.CallTimeout, func(c context.Context) error {
				return r.rt.RemoveNetwork(c, n.Name)
			})
			record(result("network", name, StatusRemoved, err))
		}
	}
	if opts.RemoveVolumes {
		for _, name := range sortedKeys(obs.Volumes) {
			v := obs.Volumes[name]
			err := r.do(ctx, r.opts.CallTimeout, func(c context.Context) error {
				return r.rt.RemoveVolume(c, v.Name, false)
			})
			record(result("volume", name, StatusRemoved, err))
		}
	}

	report.FinishedAt = time.Now()
	return report, nil
}

func (r *Reconciler) reconcileNetworks(ctx context.Context, state *manifest.DesiredState, obs Observed, record func(Result)) {
	for _, n := range state.Networks {
		if _, ok := obs.Networks[n.Name]; ok {
			record(Result{Kind: "network", Name: n.Name, Status: StatusUnchanged})
			continue
		}
		cfg := runtime.NetworkConfig{
			Name:   runtime.NetworkName(state.Project, n.Name),
			Driver: n.Driver,
			Labels: runtime.StackLabels(state.Project, r.opts.Revision),
		}
		err := r.do(ctx, r.opts.CallTimeout, func(c context.Context) error {
			return r.rt.CreateNetwork(c, cfg)
		})
		record(result("network", n.Name, StatusCreated, err))
	}
}

func (r *Reconciler) reconcileVolumes(ctx context.Context, state *manifest.DesiredState, obs Observed, record func(Result)) {
	for _, v := range state.Volumes {
		if _, ok := obs.Volumes[v.Name]; ok {
			record(Result{Kind: "volume", Name: v.Name, Status: StatusUnchanged})
			continue
		}
		cfg := runtime.VolumeConfig{
			Name:   runtime.VolumeName(state.Project, v.Name),
			Labels: runtime.StackLabels(state.Project, r.opts.Revision),
		}
		err := r.do(ctx, r.opts.CallTimeout, func(c context.Context) error {
			return r.rt.CreateVolume(c, cfg)
		})
		record(result("volume", v.Name, StatusCreated, err))
	}
}

func (r *Reconciler) removeOrphans(ctx context.Context, state *manifest.DesiredState, obs Observed, record func(Result)) {
	for _, service := range sortedKeys(obs.Containers) {
		if _, ok := state.Service(service); ok {
			continue
		}
		record(r.removeService(ctx, service, obs.Containers[service]))
	}
}

// reconcileServices runs services with no edge between them concurrently;
// a dependent waits for each of its dependencies to finish before it
// starts, so a dependent's creation never races its dependency's.
func (r *Reconciler) reconcileServices(ctx context.Context, g *graph.Graph, state *manifest.DesiredState, obs Observed, fps map[string]string, record func(Result)) {
	order := g.StartOrder()
	done := make(map[string]chan struct{}, len(order))
	for _, name := range order {
		done[name] = make(chan struct{})
	}

	var statusMu sync.Mutex
	statuses := make(map[string]Status, len(order))

	var eg errgroup.Group
	for _, name := range order {
		svc, _ := state.Service(name)
		eg.Go(func() error {
			defer close(done[name])
			res := r.reconcileService(ctx, state, *svc, obs, fps[name], g.Dependencies(name), done, func(dep string) Status {
				statusMu.Lock()
				defer statusMu.Unlock()
				return statuses[dep]
			})
			statusMu.Lock()
			statuses[name] = res.Status
			statusMu.Unlock()
			record(res)
			return nil
		})
	}
	_ = eg.Wait()
}

func (r *Reconciler) reconcileService(ctx context.Context, state *manifest.DesiredState, svc manifest.ServiceSpec, obs Observed, fp string, deps []string, done map[string]chan struct{}, statusOf func(string) Status) Result {
	for _, dep := range deps {
		select {
		case <-done[dep]:
			if statusOf(dep) == StatusFailed {
				return Result{Kind: "service", Name: svc.Name, Status: StatusFailed,
					Err: fmt.Errorf("dependency %s did not converge", dep)}
			}
		case <-ctx.Done():
			return Result{Kind: "service", Name: svc.Name, Status: StatusFailed, Err: ctx.Err()}
		}
	}
	if err := ctx.Err(); err != nil {
		return Result{Kind: "service", Name: svc.Name, Status: StatusFailed, Err: err}
	}

	observed, present := obs.Containers[svc.Name]
	switch {
	case !present:
		err := r.createContainer(ctx, state.Project, svc, fp)
		return result("service", svc.Name, StatusCreated, err)

	case observed.Fingerprint() == fp && observed.Running():
		return Result{Kind: "service", Name: svc.Name, Status: StatusUnchanged}

	case observed.Fingerprint() == fp:
		// Configuration matches but the container sat stopped; bring it
		// back rather than churn it.
		err := r.do(ctx, r.opts.CallTimeout, func(c context.Context) error {
			return r.rt.StartContainer(c, observed.ID)
		})
		return result("service", svc.Name, StatusUnchanged, err)

	default:
		log.Info().Str("service", svc.Name).Msg("configuration drift, recreating")
		if err := r.stopAndRemove(ctx, observed); err != nil {
			return result("service", svc.Name, StatusRecreated, err)
		}
		err := r.createContainer(ctx, state.Project, svc, fp)
		return result("service", svc.Name, StatusRecreated, err)
	}
}

func (r *Reconciler) createContainer(ctx context.Context, project string, svc manifest.ServiceSpec, fp string) error {
	if err := r.do(ctx, r.opts.PullTimeout, func(c context.Context) error {
		return r.rt.EnsureImage(c, svc.Image)
	}); err != nil {
		return err
	}
	cfg := containerConfig(project, r.opts.Revision, svc, fp)
	return r.do(ctx, r.opts.CallTimeout, func(c context.Context) error {
		_, err := r.rt.CreateContainer(c, cfg)
		return err
	})
}

func (r *Reconciler) removeService(ctx context.Context, service string, c runtime.Container) Result {
	err := r.stopAndRemove(ctx, c)
	return result("service", service, StatusRemoved, err)
}

func (r *Reconciler) stopAndRemove(ctx context.Context, c runtime.Container) error {
	if c.Running() {
		if err := r.do(ctx, r.opts.CallTimeout, func(cc context.Context) error {
			return r.rt.StopContainer(cc, c.ID)
		}); err != nil {
			return err
		}
	}
	return r.do(ctx, r.opts.CallTimeout, func(cc context.Context) error {
		return r.rt.RemoveContainer(cc, c.ID, false)
	})
}

// observe queries the runtime for everything owned by the project.
// Network and volume names come back project-scoped; the maps are keyed
// by the manifest-level name.
func (r *Reconciler) observe(ctx context.Context, project string) (Observed, error) {
	obs := Observed{
		Containers: map[string]runtime.Container{},
		Networks:   map[string]runtime.Network{},
		Volumes:    map[string]runtime.Volume{},
	}
	err := r.do(ctx, r.opts.CallTimeout, func(c context.Context) error {
		containers, err := r.rt.ListContainers(c, project)
		if err != nil {
			return err
		}
		for _, ct := range containers {
			if ct.Service != "" {
				obs.Containers[ct.Service] = ct
			}
		}
		networks, err := r.rt.ListNetworks(c, project)
		if err != nil {
			return err
		}
		for _, n := range networks {
			obs.Networks[strings.TrimPrefix(n.Name, project+"-")] = n
		}
		volumes, err := r.rt.ListVolumes(c, project)
		if err != nil {
			return err
		}
		for _, v := range volumes {
			obs.Volumes[strings.TrimPrefix(v.Name, project+"-")] = v
		}
		return nil
	})
	if err != nil {
		return Observed{}, fmt.Errorf("observe current state: %w", err)
	}
	return obs, nil
}

// do runs one runtime operation with a bounded timeout per attempt and
// exponential backoff across the retry budget. Cancellation of the outer
// context stops retrying immediately.
func (r *Reconciler) do(ctx context.Context, timeout time.Duration, op func(context.Context) error) error {
	attempt := func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		cctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return op(cctx)
	}
	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), r.opts.MaxAttempts-1), ctx)
	return backoff.Retry(attempt, bo)
}

func (r *Reconciler) acquire(project string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.busy[project] {
		return ErrInProgress
	}
	r.busy[project] = true
	return nil
}

func (r *Reconciler) release(project string) {
	r.mu.Lock()
	delete(r.busy, project)
	r.mu.Unlock()
}

// result collapses the ok/failed pattern: err == nil keeps ok, otherwise
// the resource is reported failed with a ConvergenceError.
func result(kind, name string, ok Status, err error) Result {
	if err == nil {
		return Result{Kind: kind, Name: name, Status: ok}
	}
	return Result{Kind: kind, Name: name, Status: StatusFailed, Err: &ConvergenceError{Resource: name, Err: err}}
}

func containerConfig(project, revision string, svc manifest.ServiceSpec, fp string) runtime.ContainerConfig {
	env := make([]string, 0, len(svc.Env))
	for k, v := range svc.Env {
		env = append(env, k+"="+v)
	}
	sort.Strings(env)

	ports := make([]runtime.PortBinding, 0, len(svc.Ports))
	for _, p := range svc.Ports {
		ports = append(ports, runtime.PortBinding{Host: p.Host, Container: p.Container, Protocol: p.Protocol})
	}

	mounts := make([]runtime.Mount, 0, len(svc.Mounts))
	for _, m := range svc.Mounts {
		src := m.Source
		if m.Type == manifest.MountTypeVolume {
			src = runtime.VolumeName(project, src)
		}
		mounts = append(mounts, runtime.Mount{Type: string(m.Type), Source: src, Target: m.Target})
	}

	nets := make([]runtime.NetworkAttachment, 0, len(svc.Networks))
	for _, att := range svc.Networks {
		nets = append(nets, runtime.NetworkAttachment{
			Name:  runtime.NetworkName(project, att.Name),
			Alias: att.Alias,
		})
	}

	return runtime.ContainerConfig{
		Name:       runtime.ContainerName(project, svc.Name),
		Service:    svc.Name,
		Image:      svc.Image,
		Cmd:        append([]string{}, svc.Command...),
		WorkingDir: svc.WorkingDir,
		Env:        env,
		Ports:      ports,
		Mounts:     mounts,
		Networks:   nets,
		Labels:     runtime.ServiceLabels(project, svc.Name, fp, revision),
	}
}

func sortedKeys[M ~map[string]V, V any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

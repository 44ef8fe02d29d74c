package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/PierreExeter/stackup/internal/logging"
	"github.com/PierreExeter/stackup/internal/manifest"
	"github.com/PierreExeter/stackup/internal/reconcile"
	"github.com/PierreExeter/stackup/internal/render"
	"github.com/PierreExeter/stackup/internal/revision"
	"github.com/PierreExeter/stackup/internal/runtime"
)

var (
	manifestPath string
	projectName  string
	envFile      string
	templateMode bool
	driver       string
	logLevel     string
	logFile      string
	callTimeout  time.Duration

	rootCmd = &cobra.Command{
		Use:   "stackup",
		Short: "Converge a declarative service manifest into running containers",
		Long: `stackup resolves a compose-style manifest (services, networks, volumes)
into a running set of networked containers with persistent volumes,
creating, recreating or removing only what drifted from the manifest.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return logging.Setup(logLevel, logFile)
		},
	}
)

// Execute runs the CLI. It is called once from main.
func Execute(v, c string) {
	version, commit = v, c
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&manifestPath, "file", "f", "", "manifest path (default: probe "+strings.Join(manifest.DefaultFiles, ", ")+")")
	pf.StringVarP(&projectName, "project", "p", "", "project name (default: manifest directory name)")
	pf.StringVar(&envFile, "env-file", "", "dotenv file for ${VAR} interpolation")
	pf.BoolVar(&templateMode, "template", false, "render the manifest as a Go template before parsing")
	pf.StringVar(&driver, "driver", "docker", "runtime driver: docker|noop")
	pf.StringVar(&logLevel, "log-level", "info", "log level (trace|debug|info|warn|error)")
	pf.StringVar(&logFile, "log-file", "", "also write logs to this file (rotated)")
	pf.DurationVar(&callTimeout, "timeout", 30*time.Second, "per-operation runtime timeout")
}

func resolveManifest() (string, error) {
	if manifestPath != "" {
		return filepath.Abs(manifestPath)
	}
	return manifest.Locate(".")
}

// loadState parses (and optionally pre-renders) the manifest. It returns
// the state together with the manifest directory, which later feeds
// revision detection. The project flag is passed through empty so the
// manifest's name key keeps its place in the precedence order: flag,
// then name key, then directory basename.
func loadState() (*manifest.DesiredState, string, error) {
	path, err := resolveManifest()
	if err != nil {
		return nil, "", err
	}
	dir := filepath.Dir(path)

	if !templateMode {
		state, err := manifest.Load(path, projectName, envFile)
		return state, dir, err
	}

	data, err := renderManifest(path, dir)
	if err != nil {
		return nil, "", err
	}
	lookup, err := manifest.EnvLookup(envFile)
	if err != nil {
		return nil, "", err
	}
	state, err := manifest.Parse(data, manifest.Options{Project: projectName, Dir: dir, Lookup: lookup})
	if err != nil {
		return nil, "", err
	}
	if state.Project == "" {
		state.Project = manifest.SanitizeProject(filepath.Base(dir))
	}
	return state, dir, nil
}

// renderProject is the project name available before the manifest is
// parsed; a name key inside the manifest cannot influence its own
// render context.
func renderProject(dir string) string {
	if projectName != "" {
		return projectName
	}
	return manifest.SanitizeProject(filepath.Base(dir))
}

func renderManifest(path, dir string) ([]byte, error) {
	eng := render.NewEngine()
	return eng.RenderFile(path, render.Context{
		Project: renderProject(dir),
		Env:     environMap(),
		Git:     render.GitInfo{ShortSHA: revision.Detect(dir)},
	})
}

func environMap() map[string]string {
	env := map[string]string{}
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}
	return env
}

func newRuntime() (runtime.Runtime, error) {
	switch driver {
	case "docker":
		return runtime.NewDockerRuntime()
	case "noop":
		return runtime.NewNoopRuntime(), nil
	default:
		return nil, fmt.Errorf("unknown driver %q", driver)
	}
}

func newReconciler(rt runtime.Runtime, dir string) *reconcile.Reconciler {
	return reconcile.New(rt, reconcile.Options{
		Revision:    revision.Detect(dir),
		CallTimeout: callTimeout,
	})
}

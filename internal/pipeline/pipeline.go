// Package pipeline assembles the generation stack from configuration.
package pipeline

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/cuongbtq/papergen/internal/config"
	"github.com/cuongbtq/papergen/internal/gateway"
	"github.com/cuongbtq/papergen/internal/generator"
	"github.com/cuongbtq/papergen/internal/orchestrator"
	"github.com/cuongbtq/papergen/internal/storage"
)

// Pipeline is one fully wired generation stack
type Pipeline struct {
	Storage      *storage.Storage
	Runner       *generator.Runner
	Orchestrator *orchestrator.Orchestrator
	Gateway      *gateway.Service
}

// Build wires storage, runner, orchestrator and gateway from cfg
func Build(cfg *config.Config, logger *slog.Logger) (*Pipeline, error) {
	store, err := storage.NewStorage(cfg.Storage.Root, cfg.Generator.OutputName, logger.With(slog.String("component", "storage")))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	workDir, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve working directory: %w", err)
	}
	template := workerTemplate(cfg.Generator, workDir)

	runner := generator.NewRunner(generator.RunnerConfig{
		StderrTailBytes: cfg.Generator.StderrTailBytes,
		WaitDelay:       cfg.Generator.KillWaitDelay,
	}, logger.With(slog.String("component", "generator")))

	orch, err := orchestrator.New(&orchestrator.Config{
		Logger:        logger.With(slog.String("component", "orchestrator")),
		Store:         store,
		Invoker:       runner,
		Template:      template,
		Timeout:       cfg.Generator.Timeout,
		MaxConcurrent: cfg.Generator.MaxConcurrent,
		CleanupPolicy: orchestrator.CleanupPolicy(cfg.Storage.CleanupPolicy),
		Retention:     cfg.Storage.Retention,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize orchestrator: %w", err)
	}

	limits := gateway.Limits{
		MaxItems:      cfg.Gateway.MaxItems,
		MaxItemBytes:  cfg.Gateway.MaxItemBytes,
		MaxTotalBytes: cfg.Gateway.MaxTotalBytes,
		AllowedTypes:  cfg.Gateway.AllowedTypes,
	}

	logger.Info("Generation pipeline ready",
		slog.String("storage_root", store.Root()),
		slog.String("command", template.Command),
		slog.Any("args", template.Args),
		slog.Duration("timeout", cfg.Generator.Timeout),
		slog.Int("max_concurrent", cfg.Generator.MaxConcurrent),
		slog.String("cleanup_policy", cfg.Storage.CleanupPolicy),
	)

	return &Pipeline{
		Storage:      store,
		Runner:       runner,
		Orchestrator: orch,
		Gateway:      gateway.NewService(orch, limits, logger.With(slog.String("component", "gateway"))),
	}, nil
}

// workerTemplate builds the invocation template. The worker runs inside its
// job namespace, so a relative command path or script argument would resolve
// against the wrong directory; those are anchored at baseDir instead.
// Bare command names are left for PATH lookup.
func workerTemplate(gen config.GeneratorConfig, baseDir string) generator.Template {
	command := gen.Command
	if !filepath.IsAbs(command) && strings.ContainsRune(command, filepath.Separator) {
		command = filepath.Join(baseDir, command)
	}

	args := make([]string, len(gen.Args))
	for i, arg := range gen.Args {
		args[i] = anchorArg(arg, baseDir)
	}

	return generator.Template{
		Command:    command,
		Args:       args,
		OutputFlag: gen.OutputFlag,
		Env:        gen.Env,
	}
}

// anchorArg rewrites arg to an absolute path when it names an existing file
// relative to baseDir. Flags and anything else pass through untouched.
func anchorArg(arg, baseDir string) string {
	if arg == "" || strings.HasPrefix(arg, "-") || filepath.IsAbs(arg) {
		return arg
	}
	path := filepath.Join(baseDir, arg)
	if info, err := os.Stat(path); err != nil || info.IsDir() {
		return arg
	}
	return path
}

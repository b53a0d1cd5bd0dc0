// Command moviectl produces one movie end to end without the HTTP API: it
// creates a project, plans or loads its script, runs production in-process
// and prints where the final movie was written.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"moviemaker/internal/bootstrap"
	"moviemaker/internal/domain"
	"moviemaker/internal/domain/jsoncfg"
	"moviemaker/internal/infra"
)

const pollInterval = time.Second

func main() {
	var (
		titleFlag   string
		conceptFlag string
		styleFlag   string
		presetFlag  string
		clipsFlag   int
		budgetFlag  float64
		scriptFlag  string
		scriptOnly  bool
	)
	flag.StringVar(&titleFlag, "title", "", "Movie title")
	flag.StringVar(&conceptFlag, "concept", "", "One-paragraph concept for the movie")
	flag.StringVar(&styleFlag, "style", jsoncfg.DefaultStyle, "Visual style id")
	flag.StringVar(&presetFlag, "preset", jsoncfg.DefaultPreset, "Preset id")
	flag.IntVar(&clipsFlag, "clips", jsoncfg.DefaultMaxClips, "Maximum number of scenes")
	flag.Float64Var(&budgetFlag, "budget", jsoncfg.DefaultBudget, "Budget in USD")
	flag.StringVar(&scriptFlag, "script", "", "Path to a script file to use instead of generating one")
	flag.BoolVar(&scriptOnly, "script-only", false, "Stop after the script is ready and print it")
	flag.Parse()

	if strings.TrimSpace(titleFlag) == "" || strings.TrimSpace(conceptFlag) == "" {
		fmt.Fprintln(os.Stderr, "-title and -concept are required")
		os.Exit(1)
	}

	_ = godotenv.Load()
	cfg, err := infra.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	// Jobs must run in this process.
	cfg.RedisAddr = ""
	logger := infra.NewLogger("cli", cfg.LogLevel).With().Str("cmd", "moviectl").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := bootstrap.Build(ctx, cfg, &logger, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build movie service: %v\n", err)
		os.Exit(1)
	}
	defer deps.Close()
	svc := deps.Service
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = svc.Shutdown(shutdownCtx)
	}()

	manual := false
	project, err := svc.Create(ctx, jsoncfg.MovieRequest{
		Title:              titleFlag,
		Concept:            conceptFlag,
		Style:              styleFlag,
		Preset:             presetFlag,
		MaxClips:           clipsFlag,
		Budget:             budgetFlag,
		AutoGenerateScript: &manual,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "create project: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("project %s created (estimated cost $%.2f)\n", project.ID, svc.EstimatedCost(project))

	if scriptFlag != "" {
		raw, readErr := os.ReadFile(scriptFlag)
		if readErr != nil {
			fmt.Fprintf(os.Stderr, "read script: %v\n", readErr)
			os.Exit(1)
		}
		project, err = svc.UpdateScript(ctx, project.ID, jsoncfg.ScriptUpdate{ScriptContent: string(raw)})
	} else {
		project, err = svc.GenerateScript(ctx, project.ID)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "script: %v\n", err)
		os.Exit(1)
	}
	if project.Status != domain.StatusScriptReady {
		fmt.Fprintf(os.Stderr, "script failed: %s\n", project.Error)
		os.Exit(1)
	}
	fmt.Printf("script ready: %d scenes\n", len(project.Scenes))
	if scriptOnly {
		if project.Script != nil {
			fmt.Println(*project.Script)
		}
		return
	}

	if _, err := svc.StartProduction(ctx, project.ID); err != nil {
		fmt.Fprintf(os.Stderr, "start production: %v\n", err)
		os.Exit(1)
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	lastStep := ""
	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(os.Stderr, "interrupted")
			os.Exit(1)
		case <-ticker.C:
		}
		project, err = svc.Get(ctx, project.ID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "status: %v\n", err)
			os.Exit(1)
		}
		if project.CurrentStep != lastStep {
			lastStep = project.CurrentStep
			fmt.Printf("[%3d%%] %s\n", project.Progress, lastStep)
		}
		if project.IsTerminal() {
			break
		}
	}

	if project.Status != domain.StatusCompleted {
		fmt.Fprintf(os.Stderr, "production failed: %s\n", project.Error)
		os.Exit(1)
	}
	fmt.Printf("movie written to %s (%d/%d scenes)\n", project.FinalMoviePath, project.ScenesCompleted(), len(project.Scenes))
}

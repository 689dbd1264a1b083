// Command llamad supervises a llama.cpp server process: it resolves the
// model, builds the launch command line, spawns llama-server on a free
// port, waits for it to become healthy, and exposes a small diagnostics
// HTTP surface. With --prompt it additionally runs a single streaming
// generation to stdout and exits.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"llamad/internal/config"
	"llamad/internal/hardware"
	"llamad/internal/httpapi"
	"llamad/internal/llamaserver"
	"llamad/internal/registry"
	"llamad/pkg/types"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "llamad:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		cfgPath string
		prompt  string
	)
	cfg := config.Default()

	root := &cobra.Command{
		Use:           "llamad",
		Short:         "Run and supervise a llama.cpp server for one model",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfgPath != "" {
				loaded, err := config.Load(cfgPath)
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
				// Flags set on the command line win over the file.
				mergeFlags(cmd, &loaded, cfg)
				cfg = loaded
			}
			return run(cmd.Context(), cfg, prompt)
		},
	}

	f := root.Flags()
	f.StringVarP(&cfgPath, "config", "c", "", "Config file (.yaml, .json or .toml)")
	f.StringVar(&cfg.Addr, "addr", cfg.Addr, "Diagnostics HTTP listen address")
	f.StringVar(&cfg.Model, "model", "", "GGUF model path or name under --models-dir")
	f.StringVar(&cfg.ModelsDir, "models-dir", cfg.ModelsDir, "Directory scanned for *.gguf files")
	f.StringVar(&cfg.LlamaBin, "bin", "", "llama-server binary (default: search PATH)")
	f.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug|info|warn|error")
	f.BoolVarP(&cfg.Verbose, "verbose", "v", false, "Log launch flags and generation parameters")
	f.IntVar(&cfg.StartupTimeoutSecs, "startup-timeout", cfg.StartupTimeoutSecs, "Seconds to wait for the server to become healthy")

	f.IntVar(&cfg.Launch.CtxSize, "ctx-size", cfg.Launch.CtxSize, "Context size in tokens")
	f.IntVar(&cfg.Launch.GPULayers, "gpu-layers", cfg.Launch.GPULayers, "Layers to offload to the GPU")
	f.IntVar(&cfg.Launch.Threads, "threads", cfg.Launch.Threads, "CPU threads (0 = server default)")
	f.StringVar(&cfg.Launch.CacheType, "cache-type", cfg.Launch.CacheType, "KV cache type: fp16|q8_0|q4_0")
	f.StringVar(&cfg.Launch.MMProj, "mmproj", "", "Multimodal projector file")
	f.StringVar(&cfg.Launch.ModelDraft, "model-draft", "", "Draft model file or directory for speculative decoding")
	f.StringVar(&cfg.Launch.ExtraFlags, "extra-flags", "", "Extra llama-server flags, comma separated key=value pairs")

	f.StringVarP(&prompt, "prompt", "p", "", "Run one streaming generation and exit")

	return root
}

// mergeFlags re-applies explicitly set command-line flags on top of a loaded
// config file.
func mergeFlags(cmd *cobra.Command, dst *config.Config, flagged config.Config) {
	set := func(name string) bool { return cmd.Flags().Changed(name) }
	if set("addr") {
		dst.Addr = flagged.Addr
	}
	if set("model") {
		dst.Model = flagged.Model
	}
	if set("models-dir") {
		dst.ModelsDir = flagged.ModelsDir
	}
	if set("bin") {
		dst.LlamaBin = flagged.LlamaBin
	}
	if set("log-level") {
		dst.LogLevel = flagged.LogLevel
	}
	if set("verbose") {
		dst.Verbose = flagged.Verbose
	}
	if set("startup-timeout") {
		dst.StartupTimeoutSecs = flagged.StartupTimeoutSecs
	}
	if set("ctx-size") {
		dst.Launch.CtxSize = flagged.Launch.CtxSize
	}
	if set("gpu-layers") {
		dst.Launch.GPULayers = flagged.Launch.GPULayers
	}
	if set("threads") {
		dst.Launch.Threads = flagged.Launch.Threads
	}
	if set("cache-type") {
		dst.Launch.CacheType = flagged.Launch.CacheType
	}
	if set("mmproj") {
		dst.Launch.MMProj = flagged.Launch.MMProj
	}
	if set("model-draft") {
		dst.Launch.ModelDraft = flagged.Launch.ModelDraft
	}
	if set("extra-flags") {
		dst.Launch.ExtraFlags = flagged.Launch.ExtraFlags
	}
}

func newLogger(level string, verbose bool) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	if verbose && lvl > zerolog.DebugLevel {
		lvl = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(lvl).With().Timestamp().Logger()
}

// diagService adapts the process handle to the diagnostics mux.
type diagService struct {
	srv *llamaserver.Server
	cfg config.Config
}

func (d diagService) Status() types.StatusResponse { return d.srv.Status() }
func (d diagService) Ready() bool                  { return d.srv.Ready() }
func (d diagService) Preflight() types.PreflightReport {
	return llamaserver.Preflight(d.cfg.LlamaBin, d.srv.Status().ModelPath)
}

func run(ctx context.Context, cfg config.Config, prompt string) error {
	log := newLogger(cfg.LogLevel, cfg.Verbose)

	if cfg.Model == "" {
		return fmt.Errorf("--model is required")
	}
	modelPath, err := registry.Resolve(cfg.Model, cfg.ModelsDir)
	if err != nil {
		// Help the user pick: show what the models directory actually holds.
		if models, lerr := registry.LoadDir(cfg.ModelsDir); lerr == nil {
			names := make([]string, len(models))
			for i, m := range models {
				names[i] = m.ID
			}
			log.Error().Strs("available", names).Str("models_dir", cfg.ModelsDir).Msg("model not found")
		}
		return fmt.Errorf("resolve model: %w", err)
	}

	hw := hardware.Detect()
	log.Info().
		Bool("gpu", hw.HasGPU).
		Str("gpu_name", hw.GPUName).
		Int("cores", hw.LogicalCores).
		Int("ram_mb", hw.TotalRAMMB).
		Msg("detected hardware")

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv, err := llamaserver.New(ctx, llamaserver.Options{
		BinPath:        cfg.LlamaBin,
		ModelPath:      modelPath,
		Launch:         cfg.Launch,
		Hardware:       hw,
		StartupTimeout: time.Duration(cfg.StartupTimeoutSecs) * time.Second,
		Logger:         log,
		Verbose:        cfg.Verbose,
	})
	if err != nil {
		return err
	}
	defer srv.Close()

	if prompt != "" {
		return generateOnce(ctx, srv, prompt, cfg)
	}

	diag := &http.Server{Addr: cfg.Addr, Handler: httpapi.NewMux(diagService{srv: srv, cfg: cfg}, log)}
	go func() {
		log.Info().Str("addr", cfg.Addr).Msg("diagnostics server listening")
		if err := diag.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("diagnostics server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := diag.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("diagnostics shutdown")
	}
	return nil
}

// generateOnce streams one completion to stdout.
func generateOnce(ctx context.Context, srv *llamaserver.Server, prompt string, cfg config.Config) error {
	gc := cfg.Generation
	stream, err := srv.GenerateStream(ctx, prompt, nil, &gc)
	if err != nil {
		return err
	}
	defer stream.Close()

	printed := 0
	for stream.Next() {
		text := stream.Text()
		fmt.Print(text[printed:])
		printed = len(text)
	}
	fmt.Println()
	return stream.Err()
}

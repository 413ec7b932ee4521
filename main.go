package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"snowboardCoach/config"
	"snowboardCoach/core"
	"snowboardCoach/logging"
	"snowboardCoach/processors"
	"snowboardCoach/server"
	"snowboardCoach/utils"
)

var (
	cfgFile string
	verbose bool

	analyzePose    bool
	analyzePremium bool
)

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "snowboard-coach",
	Short:         "Snowboard video coaching service",
	Long:          "Upload a riding clip, extract key frames and get AI coaching feedback with follow-up questions.",
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		if verbose {
			cfg.LogLevel = "debug"
		}
		logging.Init(cfg.LogLevel, cfg.LogPretty && !cfg.IsProduction())

		if err := cfg.Validate(); err != nil {
			return err
		}

		cmd.SetContext(config.WithConfig(cmd.Context(), cfg))
		return nil
	},
	RunE: runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	analyzeCmd.Flags().BoolVar(&analyzePose, "pose", false, "run the pose-enhanced pipeline")
	analyzeCmd.Flags().BoolVar(&analyzePremium, "premium", false, "run per-frame stages concurrently")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(normalizeCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze [video]",
	Short: "Analyze a local video and print the report as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())
		ctx := cmd.Context()

		shutdown := startTracing(ctx, cfg)
		defer shutdown()

		ws, err := utils.NewWorkspace(os.TempDir(), logging.WithComponent("cli"))
		if err != nil {
			return err
		}
		defer ws.Cleanup()

		videoPath, err := ws.AdoptVideo(args[0])
		if err != nil {
			return fmt.Errorf("copy video: %w", err)
		}

		frames, err := newExtractor(cfg).ExtractFrames(ctx, videoPath, ws.FramesDir)
		if err != nil {
			return err
		}

		client := processors.NewClient(cfg, log.Logger)
		report := processors.NewOrchestrator(client, cfg.Models, log.Logger).Run(ctx, frames, processors.RunOptions{
			Pose:    analyzePose,
			Premium: analyzePremium,
		})

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	},
}

var normalizeCmd = &cobra.Command{
	Use:   "normalize",
	Short: "Repair generated text read from stdin",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), processors.Normalize(string(data)))
		return err
	},
}

func newExtractor(cfg *config.Config) *utils.FFmpegExtractor {
	return utils.NewFFmpegExtractor(utils.FrameOptions{
		Count:          cfg.Frames.Count,
		Width:          cfg.Frames.Width,
		Height:         cfg.Frames.Height,
		MaxEncodeWidth: cfg.Frames.MaxWidth,
	}, log.Logger)
}

// startTracing 未配置 OTLP 地址时不做任何事
func startTracing(ctx context.Context, cfg *config.Config) func() {
	tp, err := core.InitTracer(ctx, cfg.TracingEndpoint)
	if err != nil {
		log.Warn().Err(err).Msg("tracing disabled")
		return func() {}
	}
	if tp == nil {
		return func() {}
	}
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("tracer shutdown")
		}
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.FromContext(cmd.Context())

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing := startTracing(ctx, cfg)
	defer shutdownTracing()

	uploadDir, err := cfg.AbsUploadDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(uploadDir, 0755); err != nil {
		return fmt.Errorf("create upload dir: %w", err)
	}
	cfg.UploadDir = uploadDir

	if !cfg.HasValidAPI() {
		log.Warn().Str("provider", cfg.Provider).Msg("no inference credentials, every analysis will return the fallback report")
	}

	client := processors.NewClient(cfg, log.Logger)
	srv := server.New(server.Deps{
		Config:    cfg,
		Extractor: newExtractor(cfg),
		Analyzer:  processors.NewOrchestrator(client, cfg.Models, log.Logger),
		Chat:      processors.NewChatRouter(client, cfg.Models, log.Logger),
		Logger:    log.Logger,
	})

	httpSrv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", httpSrv.Addr).
			Str("env", cfg.NodeEnv).
			Str("provider", cfg.Provider).
			Int64("max_file_size", cfg.MaxFileSize).
			Msg("server listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}

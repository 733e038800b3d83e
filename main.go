package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ZacxDev/video-presenter/internal/config"
	"github.com/ZacxDev/video-presenter/internal/logging"
	"github.com/ZacxDev/video-presenter/internal/workspace"
	"github.com/ZacxDev/video-presenter/pkg/presenter"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Commands annotated with lockWorkspace own the data directory while they run.
const lockWorkspace = "lock-workspace"

var (
	configPath string
	verbose    bool
	dataDir    string

	env *presenter.Env
	ws  *workspace.Workspace

	rootCmd = &cobra.Command{
		Use:   "presenter",
		Short: "Build narrated presentation videos one stage at a time",
		Long: `presenter turns a lecture script and a slide deck into a narrated video
with a talking-head avatar. Every stage reads and writes plain files, so
stages are run one after another and their output checked in between.

Typical order:
  presenter script generate -i instructions.txt
  presenter tts -i data/output_gpt.txt
  presenter avatar generate --audio data/output.mp3 -o data/avatar.mp4
  presenter crop circle -i data/avatar.mp4 -o data/avatar_circle.mp4 --from 540,160 --to 740,560
  presenter slides render --dir slides --timings timings.yaml -o data/slides.mp4
  presenter assemble --slides data/slides.mp4 --avatar data/avatar_circle.mp4 -o final.mp4`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd == configInitCmd {
				return nil
			}

			cfg, resolved, exists, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if err := config.LoadCredentials(cfg.Paths.CredentialsFile); err != nil {
				return err
			}
			cfg.ApplyCredentials()
			if dataDir != "" {
				cfg.Paths.DataDir = dataDir
			}

			logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format, verbose)
			if err != nil {
				return err
			}
			if exists {
				logger.Debug("config loaded", zap.String("path", resolved))
			}
			env = &presenter.Env{Config: cfg, Logger: logger}

			if cmd.Annotations[lockWorkspace] == "true" {
				if ws, err = workspace.Acquire(cfg.Paths.DataDir); err != nil {
					return err
				}
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if env != nil && env.Logger != nil {
				_ = env.Logger.Sync()
			}
		},
	}
)

// locked marks cmd as needing exclusive use of the data directory.
func locked(cmd *cobra.Command) *cobra.Command {
	if cmd.Annotations == nil {
		cmd.Annotations = map[string]string{}
	}
	cmd.Annotations[lockWorkspace] = "true"
	return cmd
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Working directory for stage outputs (overrides paths.data_dir)")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if ws != nil {
		_ = ws.Release()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

package main

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/ZacxDev/video-presenter/internal/config"
	"github.com/ZacxDev/video-presenter/pkg/presenter"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	uploadCmd = &cobra.Command{
		Use:   "upload files...",
		Short: "Upload files to the storage bucket and print their URLs",
		Long: `Upload files to the configured bucket under <prefix>/<run>/<name>.

Example:
  presenter upload data/output_part_0.mp3 data/output_part_1.mp3 --signed`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			signed, _ := cmd.Flags().GetBool("signed")
			runID, _ := cmd.Flags().GetString("run")
			if runID == "" {
				runID = uuid.NewString()
			}
			uploaded, err := presenter.Upload(cmd.Context(), env, runID, args, signed)
			for _, u := range uploaded {
				fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s\n", u.Path, u.URL)
			}
			return err
		},
	}

	avatarCmd = &cobra.Command{
		Use:   "avatar",
		Short: "Render the talking-head avatar video",
	}

	avatarGenerateCmd = locked(&cobra.Command{
		Use:   "generate",
		Short: "Render avatar video for a narration track",
		Long: `Split the narration into parts the avatar API accepts, host each part in
the bucket, submit one render per part, wait for all of them and join the
downloads. Submissions are recorded in the ledger; --resume <run> reuses
renders that have not failed.

Examples:
  presenter avatar generate --audio data/output.mp3 -o data/avatar.mp4
  presenter avatar generate --object narration/output.mp3 --remove-background
  presenter avatar generate --audio-url https://host/a.mp3 --audio-url https://host/b.mp3
  presenter avatar generate --audio data/output.mp3 --resume last`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := &config.AvatarOptions{Verbose: verbose}
			opts.AudioPath, _ = cmd.Flags().GetString("audio")
			opts.AudioObject, _ = cmd.Flags().GetString("object")
			opts.AudioURLs, _ = cmd.Flags().GetStringSlice("audio-url")
			opts.OutputPath, _ = cmd.Flags().GetString("output")
			opts.PartSeconds, _ = cmd.Flags().GetInt("part-seconds")
			opts.RemoveBackground, _ = cmd.Flags().GetBool("remove-background")
			resume, _ := cmd.Flags().GetString("resume")

			sources := 0
			for _, set := range []bool{opts.AudioPath != "", opts.AudioObject != "", len(opts.AudioURLs) > 0} {
				if set {
					sources++
				}
			}
			if sources != 1 {
				return fmt.Errorf("exactly one of --audio, --object or --audio-url is required")
			}
			if opts.OutputPath == "" {
				opts.OutputPath = env.DataPath("avatar.mp4")
			}

			switch resume {
			case "":
				opts.RunID = uuid.NewString()
			case "last":
				last, err := presenter.LatestRun(cmd.Context(), env)
				if err != nil {
					return err
				}
				opts.RunID = last
			default:
				opts.RunID = resume
			}
			env.Logger.Info("avatar run", zap.String("run", opts.RunID), zap.Bool("resume", resume != ""))

			result, err := presenter.RenderAvatar(cmd.Context(), env, opts)
			if err != nil {
				return fmt.Errorf("run %s: %w (rerun with --resume %s)", opts.RunID, err, opts.RunID)
			}
			out := cmd.OutOrStdout()
			reused := 0
			for _, p := range result.Parts {
				if p.Reused {
					reused++
				}
			}
			fmt.Fprintf(out, "Avatar video saved to %s (%d parts, %d reused)\n", result.OutputPath, len(result.Parts), reused)
			if result.Keyed != nil {
				for _, o := range result.Keyed.Outputs {
					fmt.Fprintf(out, "Transparent render: %s\n", o)
				}
			}
			return nil
		},
	})

	avatarStatusCmd = &cobra.Command{
		Use:   "status",
		Short: "Show recorded avatar renders",
		RunE: func(cmd *cobra.Command, args []string) error {
			runID, _ := cmd.Flags().GetString("run")
			limit, _ := cmd.Flags().GetInt("limit")
			pending, _ := cmd.Flags().GetBool("pending")
			renders, err := presenter.AvatarRenders(cmd.Context(), env, runID, limit, pending)
			if err != nil {
				return err
			}
			if len(renders) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No renders recorded")
				return nil
			}
			rows := make([][]string, 0, len(renders))
			for _, r := range renders {
				output := r.OutputPath
				if output != "" {
					output = filepath.Base(output)
				}
				rows = append(rows, []string{
					r.RunID,
					strconv.Itoa(r.Part),
					r.VideoID,
					r.Status,
					humanize.Time(r.UpdatedAt),
					output,
					r.Error,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Run", "Part", "Video", "Status", "Updated", "Output", "Error"},
				rows,
				[]columnAlignment{alignLeft, alignRight}))
			return nil
		},
	}
)

func init() {
	uploadCmd.Flags().Bool("signed", false, "Print V4 signed URLs instead of public URLs")
	uploadCmd.Flags().String("run", "", "Run id used in object names (random when empty)")

	avatarGenerateCmd.Flags().String("audio", "", "Local narration file")
	avatarGenerateCmd.Flags().String("object", "", "Narration object already in the bucket")
	avatarGenerateCmd.Flags().StringSlice("audio-url", nil, "Pre-hosted audio URL, one per part (repeatable)")
	avatarGenerateCmd.Flags().StringP("output", "o", "", "Output video (defaults to <data>/avatar.mp4)")
	avatarGenerateCmd.Flags().Int("part-seconds", 0, "Length of each audio part (defaults to heygen.part_seconds)")
	avatarGenerateCmd.Flags().Bool("remove-background", false, "Key the background colour out of the joined video")
	avatarGenerateCmd.Flags().String("resume", "", `Run id to resume, or "last"`)

	avatarStatusCmd.Flags().String("run", "", "Only show this run")
	avatarStatusCmd.Flags().Int("limit", 20, "Maximum renders to list")
	avatarStatusCmd.Flags().Bool("pending", false, "Only show renders still submitted or processing")

	avatarCmd.AddCommand(avatarGenerateCmd)
	avatarCmd.AddCommand(avatarStatusCmd)
	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(avatarCmd)
}

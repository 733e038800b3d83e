package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ZacxDev/video-presenter/internal/config"
	"github.com/ZacxDev/video-presenter/internal/profile"
	"github.com/ZacxDev/video-presenter/pkg/presenter"
	"github.com/spf13/cobra"
)

var (
	concatCmd = locked(&cobra.Command{
		Use:   "concat in...",
		Short: "Join videos or audio files end to end",
		Long: `Join the inputs in order. By default video and audio are re-encoded with
the concat filter; --copy joins streams without re-encoding.

Example:
  presenter concat -o data/avatar.mp4 data/avatar_001.mp4 data/avatar_002.mp4`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			output, _ := cmd.Flags().GetString("output")
			copyStreams, _ := cmd.Flags().GetBool("copy")
			if err := presenter.Concat(cmd.Context(), env, args, output, copyStreams); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Joined %d files into %s\n", len(args), output)
			return nil
		},
	})

	cropCmd = &cobra.Command{
		Use:   "crop",
		Short: "Mask a circle or cut a square out of a video",
		Long: `The region is given by two points on the frame, the start and end of a
drag. For a circle they span its diameter; for a square they are opposite
corners. Use "crop preview" to check the region before processing.`,
	}

	cropCircleCmd = locked(&cobra.Command{
		Use:   "circle",
		Short: "Keep a circular region and black out the rest of every frame",
		Long: `Example:
  presenter crop circle -i data/avatar.mp4 -o data/avatar_circle.mp4 --from 540,160 --to 740,560`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCrop(cmd, "circle")
		},
	})

	cropSquareCmd = locked(&cobra.Command{
		Use:   "square",
		Short: "Crop the video to a rectangular region",
		Long: `Example:
  presenter crop square -i data/avatar.mp4 -o data/avatar_square.mp4 --from 440,60 --to 840,660`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCrop(cmd, "square")
		},
	})

	cropPreviewCmd = &cobra.Command{
		Use:   "preview",
		Short: "Write the first frame with the selected region outlined",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := cropOptions(cmd)
			opts.Shape, _ = cmd.Flags().GetString("shape")
			path, err := presenter.PreviewCrop(cmd.Context(), env, opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Preview saved to %s\n", path)
			return nil
		},
	}

	keyoutCmd = locked(&cobra.Command{
		Use:   "keyout",
		Short: "Turn a solid background colour transparent",
		Long: fmt.Sprintf(`Write every frame with the key colour made transparent and encode the
frames once per profile. Pixels whose channels all lie within the threshold
of the key colour become transparent.

Profiles: %s

Example:
  presenter keyout -i data/avatar.mp4 --color "#000000" --threshold 20 --duration 5s`,
			strings.Join(profile.GetSupportedProfiles(), ", ")),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := &config.RemovalOptions{Verbose: verbose}
			opts.InputPath, _ = cmd.Flags().GetString("input")
			opts.OutputDir, _ = cmd.Flags().GetString("output")
			opts.KeyColor, _ = cmd.Flags().GetString("color")
			if cmd.Flags().Changed("threshold") {
				threshold, _ := cmd.Flags().GetInt("threshold")
				opts.Threshold = &threshold
			}
			opts.Duration, _ = cmd.Flags().GetDuration("duration")
			opts.Profiles, _ = cmd.Flags().GetStringSlice("profile")
			opts.KeepFrames, _ = cmd.Flags().GetBool("keep-frames")

			result, err := presenter.RemoveBackground(cmd.Context(), env, opts)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Keyed %d frames\n", result.Frames)
			for _, o := range result.Outputs {
				fmt.Fprintf(out, "Transparent video: %s\n", o)
			}
			if result.DebugFrame != "" {
				fmt.Fprintf(out, "Debug frame: %s\n", result.DebugFrame)
			}
			if result.FramesDir != "" {
				fmt.Fprintf(out, "Frames kept in %s\n", result.FramesDir)
			}
			return nil
		},
	})

	slidesCmd = &cobra.Command{
		Use:   "slides",
		Short: "Split presentation decks and render slide videos",
	}

	slidesSplitCmd = locked(&cobra.Command{
		Use:   "split deck.pdf...",
		Short: "Write every page of the decks as slide_N.pdf",
		Long: `Pages are numbered continuously across the decks, in argument order.

Example:
  presenter slides split -o slides Part1.pdf Part2.pdf`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("output")
			counts, err := presenter.SplitSlides(env, args, dir)
			if err != nil {
				return err
			}
			total := 0
			for i, n := range counts {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d pages\n", args[i], n)
				total += n
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d slides written to %s\n", total, dir)
			return nil
		},
	})

	slidesRenderCmd = locked(&cobra.Command{
		Use:   "render",
		Short: "Render a directory of slides into a timed video",
		Long: `Rasterize the slides, pair them in slide number order with their durations
and encode the video. Durations come from a YAML file (durations: [23, 32])
or from --durations; the count must match the number of slides.

Example:
  presenter slides render --dir slides --timings timings.yaml -o data/slides.mp4`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := &config.SlideShowOptions{Verbose: verbose}
			opts.SlidesDir, _ = cmd.Flags().GetString("dir")
			opts.ImagesDir, _ = cmd.Flags().GetString("images")
			opts.TimingsPath, _ = cmd.Flags().GetString("timings")
			opts.OutputPath, _ = cmd.Flags().GetString("output")
			opts.FPS, _ = cmd.Flags().GetInt("fps")
			opts.DPI, _ = cmd.Flags().GetInt("dpi")
			raw, _ := cmd.Flags().GetString("durations")
			durations, err := parseDurations(raw)
			if err != nil {
				return err
			}
			opts.Durations = durations

			result, err := presenter.RenderSlides(cmd.Context(), env, opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Slide video saved to %s (%d slides, %.2fs)\n", result.Path, result.Slides, result.Duration)
			return nil
		},
	})

	assembleCmd = locked(&cobra.Command{
		Use:   "assemble",
		Short: "Overlay the avatar video on the slide video",
		Long: `Scale the avatar and place it over the slides at x,y. The audio comes from
the avatar video and the output runs as long as the avatar unless --duration
is given.

Example:
  presenter assemble --slides data/slides.mp4 --avatar data/avatar_circle.mp4 -o final.mp4`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := &config.AssembleOptions{}
			opts.SlidesPath, _ = cmd.Flags().GetString("slides")
			opts.AvatarPath, _ = cmd.Flags().GetString("avatar")
			opts.OutputPath, _ = cmd.Flags().GetString("output")
			opts.AvatarWidth, _ = cmd.Flags().GetInt("width")
			opts.AvatarHeight, _ = cmd.Flags().GetInt("height")
			opts.X, _ = cmd.Flags().GetInt("x")
			opts.Y, _ = cmd.Flags().GetInt("y")
			opts.Duration, _ = cmd.Flags().GetDuration("duration")
			if !cmd.Flags().Changed("x") {
				opts.X = env.Config.Assemble.X
			}
			if !cmd.Flags().Changed("y") {
				opts.Y = env.Config.Assemble.Y
			}

			path, err := presenter.Assemble(cmd.Context(), env, opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Final video saved to %s\n", path)
			return nil
		},
	})

	clipsCmd = locked(&cobra.Command{
		Use:   "clips",
		Short: "Cut reference segments out of a video and join them",
		Long: `Download the source with yt-dlp when it is not on disk, cut each
start+duration segment without re-encoding and join the clips.

Example:
  presenter clips --url https://www.youtube.com/watch?v=... --segment 4m18s+24s --segment 6:58+16 -o Hinton.mp4`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := &config.ClipOptions{}
			opts.URL, _ = cmd.Flags().GetString("url")
			opts.SourcePath, _ = cmd.Flags().GetString("source")
			opts.Segments, _ = cmd.Flags().GetStringArray("segment")
			opts.OutputPath, _ = cmd.Flags().GetString("output")
			path, err := presenter.ExtractClips(cmd.Context(), env, opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Clips saved to %s\n", path)
			return nil
		},
	})

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the file upload endpoint",
		Long: `Accept multipart uploads on POST /upload (field "file") and serve stored
files under /uploads/.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, _ := cmd.Flags().GetString("addr")
			dir, _ := cmd.Flags().GetString("dir")
			return presenter.Serve(cmd.Context(), env, addr, dir)
		},
	}
)

func cropOptions(cmd *cobra.Command) *config.CropOptions {
	opts := &config.CropOptions{Verbose: verbose}
	opts.InputPath, _ = cmd.Flags().GetString("input")
	opts.OutputPath, _ = cmd.Flags().GetString("output")
	opts.From, _ = cmd.Flags().GetString("from")
	opts.To, _ = cmd.Flags().GetString("to")
	return opts
}

func runCrop(cmd *cobra.Command, shape string) error {
	opts := cropOptions(cmd)
	opts.Shape = shape
	path, err := presenter.Crop(cmd.Context(), env, opts)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Cropped video saved to %s\n", path)
	return nil
}

// parseDurations reads a comma separated list of seconds.
func parseDurations(raw string) ([]float64, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	fields := strings.Split(raw, ",")
	out := make([]float64, 0, len(fields))
	for _, f := range fields {
		d, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid duration %q", f)
		}
		out = append(out, d)
	}
	return out, nil
}

func init() {
	concatCmd.Flags().StringP("output", "o", "", "Output file")
	concatCmd.Flags().Bool("copy", false, "Join without re-encoding (inputs must share codecs)")
	concatCmd.MarkFlagRequired("output")

	for _, c := range []*cobra.Command{cropCircleCmd, cropSquareCmd, cropPreviewCmd} {
		c.Flags().StringP("input", "i", "", "Input video")
		c.Flags().StringP("output", "o", "", "Output file")
		c.Flags().String("from", "", "Drag start point x,y")
		c.Flags().String("to", "", "Drag end point x,y")
		c.MarkFlagRequired("input")
		c.MarkFlagRequired("output")
		c.MarkFlagRequired("from")
		c.MarkFlagRequired("to")
		cropCmd.AddCommand(c)
	}
	cropPreviewCmd.Flags().String("shape", "circle", "Region shape: circle or square")

	keyoutCmd.Flags().StringP("input", "i", "", "Input video")
	keyoutCmd.Flags().StringP("output", "o", "", "Output directory (defaults to the input's directory)")
	keyoutCmd.Flags().String("color", "", "Key colour as #RRGGBB (defaults to keying.color)")
	keyoutCmd.Flags().Int("threshold", 0, "Per-channel tolerance 0-255 (defaults to keying.threshold)")
	keyoutCmd.Flags().Duration("duration", 0, "Only process this much of the video (e.g. 5s)")
	keyoutCmd.Flags().StringSlice("profile", nil, "Output profiles (defaults to keying.profiles)")
	keyoutCmd.Flags().Bool("keep-frames", false, "Keep the PNG frame directory")
	keyoutCmd.MarkFlagRequired("input")

	slidesSplitCmd.Flags().StringP("output", "o", "slides", "Slides directory")
	slidesRenderCmd.Flags().String("dir", "slides", "Slides directory")
	slidesRenderCmd.Flags().String("images", "", "Rasterized slides directory (defaults to <dir>_images)")
	slidesRenderCmd.Flags().String("timings", "", "YAML file with slide durations")
	slidesRenderCmd.Flags().String("durations", "", "Comma separated slide durations in seconds")
	slidesRenderCmd.Flags().StringP("output", "o", "", "Output video")
	slidesRenderCmd.Flags().Int("fps", 0, "Frame rate (defaults to slides.fps)")
	slidesRenderCmd.Flags().Int("dpi", 0, "Rasterizing resolution (defaults to slides.dpi)")
	slidesRenderCmd.MarkFlagRequired("output")
	slidesCmd.AddCommand(slidesSplitCmd)
	slidesCmd.AddCommand(slidesRenderCmd)

	assembleCmd.Flags().String("slides", "", "Slide video")
	assembleCmd.Flags().String("avatar", "", "Avatar video")
	assembleCmd.Flags().StringP("output", "o", "", "Output video")
	assembleCmd.Flags().Int("width", 0, "Avatar width (defaults to assemble.avatar_width)")
	assembleCmd.Flags().Int("height", 0, "Avatar height (defaults to assemble.avatar_height)")
	assembleCmd.Flags().Int("x", 0, "Avatar left edge (defaults to assemble.x)")
	assembleCmd.Flags().Int("y", 0, "Avatar top edge (defaults to assemble.y)")
	assembleCmd.Flags().Duration("duration", 0, "Output length (defaults to the avatar length)")
	assembleCmd.MarkFlagRequired("slides")
	assembleCmd.MarkFlagRequired("avatar")
	assembleCmd.MarkFlagRequired("output")

	clipsCmd.Flags().String("url", "", "Source video URL")
	clipsCmd.Flags().String("source", "", "Local source video (downloaded here when missing)")
	clipsCmd.Flags().StringArray("segment", nil, "Segment as start+duration, e.g. 4m18s+24s (repeatable)")
	clipsCmd.Flags().StringP("output", "o", "", "Output video")
	clipsCmd.MarkFlagRequired("segment")
	clipsCmd.MarkFlagRequired("output")

	serveCmd.Flags().String("addr", ":8000", "Listen address")
	serveCmd.Flags().String("dir", "", "Upload directory (defaults to paths.upload_dir)")

	rootCmd.AddCommand(concatCmd)
	rootCmd.AddCommand(cropCmd)
	rootCmd.AddCommand(keyoutCmd)
	rootCmd.AddCommand(slidesCmd)
	rootCmd.AddCommand(assembleCmd)
	rootCmd.AddCommand(clipsCmd)
	rootCmd.AddCommand(serveCmd)
}

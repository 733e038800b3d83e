package main

import (
	"fmt"
	"strings"

	"github.com/ZacxDev/video-presenter/internal/config"
	"github.com/ZacxDev/video-presenter/internal/deps"
	"github.com/ZacxDev/video-presenter/pkg/presenter"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configCmd = &cobra.Command{
		Use:   "config",
		Short: "Manage the presenter configuration file",
	}

	configInitCmd = &cobra.Command{
		Use:   "init [path]",
		Short: "Write the sample configuration",
		Long: `Write the commented sample configuration. Without a path it goes to
~/.config/presenter/config.toml. An existing file is never overwritten.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "~/.config/presenter/config.toml"
			if len(args) == 1 {
				path = args[0]
			}
			written, err := config.WriteSample(path)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote sample config to %s\n", written)
			return nil
		},
	}

	doctorCmd = &cobra.Command{
		Use:   "doctor",
		Short: "Check external tools and credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			statuses := presenter.Doctor()
			rows := make([][]string, 0, len(statuses))
			for _, s := range statuses {
				state := "ok"
				switch {
				case !s.Available && s.Optional:
					state = "optional"
				case !s.Available:
					state = "missing"
				}
				detail := s.Detail
				if s.Available && s.Command != "env" {
					detail = s.Command
				}
				rows = append(rows, []string{s.Name, state, s.Description, detail})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Check", "State", "Used for", "Detail"}, rows, nil))

			if missing := deps.Missing(statuses); len(missing) > 0 {
				names := make([]string, len(missing))
				for i, m := range missing {
					names[i] = m.Name
				}
				return fmt.Errorf("missing requirements: %s", strings.Join(names, ", "))
			}
			return nil
		},
	}

	scriptCmd = &cobra.Command{
		Use:   "script",
		Short: "Generate, break down and clean presentation scripts",
	}

	scriptGenerateCmd = &cobra.Command{
		Use:   "generate",
		Short: "Send an instruction file to the language model and save the script",
		Long: `Send the instruction file as the user prompt and save the reply to
<data>/output_gpt.txt.

Example:
  presenter script generate -i instructions.txt`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := scriptOptions(cmd, true)
			if err != nil {
				return err
			}
			path, err := presenter.GenerateScript(cmd.Context(), env, opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Script saved to %s\n", path)
			return nil
		},
	}

	scriptBreakdownCmd = &cobra.Command{
		Use:   "breakdown",
		Short: "Split a script into slide sections",
		Long: `Ask the language model to split the script along the slide outline and
write each section to <data>/script_sections/section_N.txt.

Example:
  presenter script breakdown -i data/output_gpt.txt --outline outline.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := scriptOptions(cmd, false)
			if err != nil {
				return err
			}
			if opts.InputPath == "" {
				opts.InputPath = env.DataPath("output_gpt.txt")
			}
			result, err := presenter.BreakdownScript(cmd.Context(), env, opts)
			if err != nil {
				return err
			}
			for _, s := range result.Sections {
				fmt.Fprintln(cmd.OutOrStdout(), s)
			}
			if result.Skipped > 0 {
				env.Logger.Warn("sections without a body were skipped", zap.Int("count", result.Skipped))
			}
			return nil
		},
	}

	scriptCleanCmd = &cobra.Command{
		Use:   "clean",
		Short: "Extract illustration cues and write the spoken script",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := scriptOptions(cmd, true)
			if err != nil {
				return err
			}
			opts.AudioPath, _ = cmd.Flags().GetString("audio")
			result, err := presenter.CleanScript(env, opts)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%d illustrations -> %s\n", len(result.Illustrations), result.IllustrationsPath)
			fmt.Fprintf(out, "Clean script -> %s\n", result.ScriptPath)
			if result.AudioDuration > 0 {
				fmt.Fprintf(out, "Narration length: %.2fs\n", result.AudioDuration)
			}
			return nil
		},
	}

	ttsCmd = locked(&cobra.Command{
		Use:   "tts",
		Short: "Synthesize a script into one narration file",
		Long: `Strip (( ... )) stage directions, split the script into chunks the speech
API accepts, synthesize each chunk and merge the parts into <data>/output.<ext>.

Example:
  presenter tts -i script.txt --format MP3 --voice en-GB-Standard-D --speed 1.0`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := &config.NarrationOptions{Verbose: verbose}
			opts.InputPath, _ = cmd.Flags().GetString("input")
			opts.OutputDir, _ = cmd.Flags().GetString("output")
			opts.Encoding, _ = cmd.Flags().GetString("format")
			opts.VoiceName, _ = cmd.Flags().GetString("voice")
			opts.LanguageCode, _ = cmd.Flags().GetString("language")
			opts.Gender, _ = cmd.Flags().GetString("gender")
			opts.SpeakingRate, _ = cmd.Flags().GetFloat64("speed")
			opts.Encoding = strings.ToUpper(opts.Encoding)

			result, err := presenter.Narrate(cmd.Context(), env, opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Narration saved to %s (%.2fs, %d chunks)\n", result.Path, result.Duration, result.Chunks)
			if len(result.Skipped) > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "Chunks without audio: %v\n", result.Skipped)
			}
			return nil
		},
	})

	imagesCmd = locked(&cobra.Command{
		Use:   "images",
		Short: "Download the article images of Wikipedia pages",
		Long: `Read one Wikipedia URL per line and save every article and infobox image.

Example:
  presenter images --links Wiki_Links.txt -o wikipedia_images`,
		RunE: func(cmd *cobra.Command, args []string) error {
			links, _ := cmd.Flags().GetString("links")
			outDir, _ := cmd.Flags().GetString("output")
			results, err := presenter.ScrapeImages(cmd.Context(), env, links, outDir)
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(results))
			for _, r := range results {
				rows = append(rows, []string{
					r.Title,
					humanize.Comma(int64(len(r.Saved))),
					humanize.Comma(int64(r.Skipped)),
					humanize.Comma(int64(r.Failed)),
					r.URL,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Page", "Saved", "Duplicates", "Failed", "URL"},
				rows,
				[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignLeft}))
			return nil
		},
	})
)

func scriptOptions(cmd *cobra.Command, requireInput bool) (*config.ScriptOptions, error) {
	opts := &config.ScriptOptions{Verbose: verbose}
	opts.InputPath, _ = cmd.Flags().GetString("input")
	opts.OutputDir, _ = cmd.Flags().GetString("output")
	opts.SystemPrompt, _ = cmd.Flags().GetString("system")
	if cmd.Flags().Lookup("outline") != nil {
		opts.OutlinePath, _ = cmd.Flags().GetString("outline")
	}
	if opts.InputPath == "" && requireInput {
		return nil, fmt.Errorf("input file is required")
	}
	return opts, nil
}

func init() {
	configCmd.AddCommand(configInitCmd)

	for _, c := range []*cobra.Command{scriptGenerateCmd, scriptBreakdownCmd, scriptCleanCmd} {
		c.Flags().StringP("input", "i", "", "Input text file")
		c.Flags().StringP("output", "o", "", "Output directory (defaults to the data directory)")
		c.Flags().String("system", "", "System prompt (defaults to llm.system_prompt)")
		scriptCmd.AddCommand(locked(c))
	}
	scriptBreakdownCmd.Flags().String("outline", "", "YAML outline of sections and slide counts")
	scriptCleanCmd.Flags().String("audio", "", "Narration file whose length is reported")

	ttsCmd.Flags().StringP("input", "i", "", "Script text file")
	ttsCmd.Flags().StringP("output", "o", "", "Output directory (defaults to the data directory)")
	ttsCmd.Flags().String("format", "", "Audio encoding: MP3, OGG_OPUS or LINEAR16 (defaults to tts.audio_encoding)")
	ttsCmd.Flags().String("voice", "", "Voice name (defaults to tts.voice)")
	ttsCmd.Flags().String("language", "", "Language code (defaults to tts.language_code)")
	ttsCmd.Flags().String("gender", "", "SSML gender (defaults to tts.gender)")
	ttsCmd.Flags().Float64("speed", 0, "Speaking rate (defaults to tts.speaking_rate)")
	ttsCmd.MarkFlagRequired("input")

	imagesCmd.Flags().String("links", "Wiki_Links.txt", "File with one page URL per line")
	imagesCmd.Flags().StringP("output", "o", "wikipedia_images", "Output directory")

	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(doctorCmd)
	rootCmd.AddCommand(scriptCmd)
	rootCmd.AddCommand(ttsCmd)
	rootCmd.AddCommand(imagesCmd)
}

package ffmpeg

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// VideoMetadata contains metadata about a video file
type VideoMetadata struct {
	Duration float64
	Width    int
	Height   int
	Codec    string
	FPS      float64
	Frames   int
	HasAudio bool
}

// GetVideoMetadata retrieves metadata about a video file
func (p *Processor) GetVideoMetadata(inputPath string) (*VideoMetadata, error) {
	probe, err := ffmpeg.Probe(inputPath)
	if err != nil {
		return nil, fmt.Errorf("error probing video: %v", err)
	}
	return parseVideoMetadata(probe)
}

// GetMediaDuration returns the container duration of any media file,
// including audio-only files.
func (p *Processor) GetMediaDuration(inputPath string) (float64, error) {
	probe, err := ffmpeg.Probe(inputPath)
	if err != nil {
		return 0, fmt.Errorf("error probing media: %v", err)
	}
	return parseFormatDuration(probe)
}

func parseFormatDuration(probe string) (float64, error) {
	var data map[string]interface{}
	if err := json.Unmarshal([]byte(probe), &data); err != nil {
		return 0, errors.WithStack(err)
	}
	if d := formatDuration(data); d > 0 {
		return d, nil
	}
	streams, _ := data["streams"].([]interface{})
	for _, stream := range streams {
		s, ok := stream.(map[string]interface{})
		if !ok {
			continue
		}
		if d := parseFloatField(s, "duration"); d > 0 {
			return d, nil
		}
	}
	return 0, fmt.Errorf("could not determine media duration")
}

func parseVideoMetadata(probe string) (*VideoMetadata, error) {
	var data map[string]interface{}
	if err := json.Unmarshal([]byte(probe), &data); err != nil {
		return nil, errors.WithStack(err)
	}

	streams, ok := data["streams"].([]interface{})
	if !ok || len(streams) == 0 {
		return nil, fmt.Errorf("no streams found in video")
	}

	var videoStream map[string]interface{}
	hasAudio := false
	for _, stream := range streams {
		s, ok := stream.(map[string]interface{})
		if !ok {
			continue
		}
		switch s["codec_type"] {
		case "video":
			if videoStream == nil {
				videoStream = s
			}
		case "audio":
			hasAudio = true
		}
	}

	if videoStream == nil {
		return nil, fmt.Errorf("no video stream found")
	}

	fps := parseRate(videoStream["avg_frame_rate"])
	if fps == 0 {
		fps = parseRate(videoStream["r_frame_rate"])
	}

	frames := 0
	if nbFrames, ok := videoStream["nb_frames"].(string); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(nbFrames)); err == nil {
			frames = n
		}
	}

	// Stream duration first, then the container, then frames over rate
	duration := parseFloatField(videoStream, "duration")
	if duration == 0 {
		duration = formatDuration(data)
	}
	if duration == 0 && frames > 0 && fps > 0 {
		duration = float64(frames) / fps
	}

	if duration == 0 {
		return nil, fmt.Errorf("could not determine video duration")
	}
	if frames == 0 && fps > 0 {
		frames = int(duration * fps)
	}

	width, _ := videoStream["width"].(float64)
	height, _ := videoStream["height"].(float64)
	codec, _ := videoStream["codec_name"].(string)

	return &VideoMetadata{
		Duration: duration,
		Width:    int(width),
		Height:   int(height),
		Codec:    codec,
		FPS:      fps,
		Frames:   frames,
		HasAudio: hasAudio,
	}, nil
}

func formatDuration(data map[string]interface{}) float64 {
	format, ok := data["format"].(map[string]interface{})
	if !ok {
		return 0
	}
	return parseFloatField(format, "duration")
}

func parseFloatField(m map[string]interface{}, key string) float64 {
	raw, ok := m[key].(string)
	if !ok {
		return 0
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0
	}
	return v
}

// parseRate reads ffprobe's "num/den" frame rates.
func parseRate(v interface{}) float64 {
	rate, ok := v.(string)
	if !ok {
		return 0
	}
	nums := strings.Split(rate, "/")
	if len(nums) != 2 {
		f, _ := strconv.ParseFloat(rate, 64)
		return f
	}
	num, err1 := strconv.ParseFloat(nums[0], 64)
	den, err2 := strconv.ParseFloat(nums[1], 64)
	if err1 != nil || err2 != nil || den == 0 {
		return 0
	}
	return num / den
}

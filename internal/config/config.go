package config

import "time"

// NarrationOptions defines options for turning a script into speech
type NarrationOptions struct {
	InputPath     string
	OutputDir     string
	Encoding      string // "MP3" or "OGG_OPUS"
	LanguageCode  string
	VoiceName     string
	Gender        string
	SpeakingRate  float64
	MaxChunkBytes int
	Verbose       bool
}

// ScriptOptions defines options for the script generation stages
type ScriptOptions struct {
	InputPath    string
	OutputDir    string
	AudioPath    string // optional, used to report narration length
	OutlinePath  string // optional YAML outline for the breakdown
	SystemPrompt string
	Verbose      bool
}

// AvatarOptions defines options for rendering the talking-head video
type AvatarOptions struct {
	AudioPath        string   // local narration file
	AudioObject      string   // narration already stored in the bucket
	AudioURLs        []string // pre-hosted audio, skips split and upload
	OutputPath       string
	WorkDir          string
	RunID            string
	PartSeconds      int
	RemoveBackground bool
	Verbose          bool
}

// CropOptions defines options for masking a region of a video
type CropOptions struct {
	InputPath  string
	OutputPath string
	Shape      string // "circle" or "square"
	From       string // "x,y"
	To         string // "x,y"
	Verbose    bool
}

// RemovalOptions defines options for keying a background colour out to alpha
type RemovalOptions struct {
	InputPath  string
	OutputDir  string
	KeyColor   string
	Threshold  *int // nil uses the configured threshold
	Duration   time.Duration // zero processes the whole video
	Profiles   []string
	KeepFrames bool // leave the PNG frame directory in place
	Verbose    bool
}

// SlideShowOptions defines options for rendering slides into a video
type SlideShowOptions struct {
	SlidesDir   string
	ImagesDir   string // rasterized slides, defaults to <slides>_images
	TimingsPath string
	Durations   []float64
	OutputPath  string
	FPS         int
	DPI         int
	Verbose     bool
}

// AssembleOptions defines options for overlaying the avatar on the slides
type AssembleOptions struct {
	SlidesPath   string
	AvatarPath   string
	OutputPath   string
	AvatarWidth  int
	AvatarHeight int
	X            int
	Y            int
	Duration     time.Duration // zero uses the avatar length
	Verbose      bool
}

// ClipOptions defines options for cutting reference clips from a source video
type ClipOptions struct {
	URL        string
	SourcePath string
	Segments   []string // "start+duration", e.g. "4m18s+24s"
	OutputPath string
	Verbose    bool
}

type VideoDimensions struct {
	Width  int
	Height int
}

const (
	// Avatar render resolution (1280x720)
	OutputWidth  = 1280
	OutputHeight = 720

	// Google TTS rejects requests over 5000 bytes of input
	MaxTTSChunkBytes = 5000

	// HeyGen audio inputs are capped just under three minutes
	AvatarPartSeconds = 175

	DefaultPollInterval = 5 * time.Second
	SignedURLTTL        = time.Hour

	// Background removal
	DefaultKeyColor    = "#000000"
	DefaultThreshold   = 20
	MinFreeDiskBytes   = 1 << 30
	DebugFrameIndex    = 100
	FramePattern       = "frame_%04d.png"
	RemovalTempPrefix  = "keyout_frames_"
	AvatarTempPrefix   = "avatar_parts_"
	ClipTempPrefix     = "clip_segments_"
	NarrationPartsName = "output_part_%d.%s"

	// Slides
	SlideFPS = 30
	SlideDPI = 300

	// Assembly layout
	AvatarOverlayWidth  = 800
	AvatarOverlayHeight = 490
	AvatarOverlayX      = 5
	AvatarOverlayY      = 5
)

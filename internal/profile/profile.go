package profile

import (
	"fmt"

	ffmpeg "github.com/u2takey/ffmpeg-go"
	"golang.org/x/exp/slices"
)

// Profile defines the encoder settings for one output container
type Profile interface {
	// GetName returns the profile name used on the command line
	GetName() string

	// GetVideoCodec returns the ffmpeg video encoder
	GetVideoCodec() string

	// GetAudioCodec returns the ffmpeg audio encoder, empty when the
	// container carries no audio
	GetAudioCodec() string

	// GetPixelFormat returns the output pixel format
	GetPixelFormat() string

	// GetFileExtension returns the container extension including the dot
	GetFileExtension() string

	// HasAlpha reports whether the pixel format keeps an alpha channel
	HasAlpha() bool

	// EncoderArgs returns extra encoder options
	EncoderArgs() ffmpeg.KwArgs
}

var profiles = make(map[string]Profile)

// Register adds a profile to the registry
func Register(p Profile) {
	profiles[p.GetName()] = p
}

// Get returns a profile by name
func Get(name string) (Profile, error) {
	p, ok := profiles[name]
	if !ok {
		return nil, fmt.Errorf("unsupported output profile: %s", name)
	}
	return p, nil
}

// GetSupportedProfiles returns the registered profile names, sorted
func GetSupportedProfiles() []string {
	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// OutputArgs merges codec, pixel format and encoder options into one set of
// ffmpeg output arguments.
func OutputArgs(p Profile) ffmpeg.KwArgs {
	args := ffmpeg.KwArgs{
		"c:v":     p.GetVideoCodec(),
		"pix_fmt": p.GetPixelFormat(),
	}
	if codec := p.GetAudioCodec(); codec != "" {
		args["c:a"] = codec
	}
	for k, v := range p.EncoderArgs() {
		args[k] = v
	}
	return args
}

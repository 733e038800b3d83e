package profile

import ffmpeg "github.com/u2takey/ffmpeg-go"

// WebMAlpha is VP9 with an alpha plane, playable in browsers
type WebMAlpha struct{}

func init() {
	Register(&WebMAlpha{})
}

func (p *WebMAlpha) GetName() string {
	return "webm-alpha"
}

func (p *WebMAlpha) GetVideoCodec() string {
	return "libvpx-vp9"
}

func (p *WebMAlpha) GetAudioCodec() string {
	return ""
}

func (p *WebMAlpha) GetPixelFormat() string {
	return "yuva420p"
}

func (p *WebMAlpha) GetFileExtension() string {
	return ".webm"
}

func (p *WebMAlpha) HasAlpha() bool {
	return true
}

func (p *WebMAlpha) EncoderArgs() ffmpeg.KwArgs {
	return ffmpeg.KwArgs{
		"auto-alt-ref": 0,
		"row-mt":       1,
		"deadline":     "good",
		"cpu-used":     2,
		"b:v":          0,
		"crf":          30,
	}
}

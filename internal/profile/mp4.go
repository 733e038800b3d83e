package profile

import ffmpeg "github.com/u2takey/ffmpeg-go"

type MP4 struct{}

func init() {
	Register(&MP4{})
}

func (p *MP4) GetName() string {
	return "mp4"
}

func (p *MP4) GetVideoCodec() string {
	return "libx264"
}

func (p *MP4) GetAudioCodec() string {
	return "aac"
}

func (p *MP4) GetPixelFormat() string {
	return "yuv420p"
}

func (p *MP4) GetFileExtension() string {
	return ".mp4"
}

func (p *MP4) HasAlpha() bool {
	return false
}

func (p *MP4) EncoderArgs() ffmpeg.KwArgs {
	return ffmpeg.KwArgs{
		"preset":   "medium",
		"crf":      18,
		"movflags": "+faststart",
	}
}

package profile

import ffmpeg "github.com/u2takey/ffmpeg-go"

// ProRes is ProRes 4444 with alpha, for editors that composite the avatar
type ProRes struct{}

func init() {
	Register(&ProRes{})
}

func (p *ProRes) GetName() string {
	return "prores"
}

func (p *ProRes) GetVideoCodec() string {
	return "prores_ks"
}

func (p *ProRes) GetAudioCodec() string {
	return ""
}

func (p *ProRes) GetPixelFormat() string {
	return "yuva444p10le"
}

func (p *ProRes) GetFileExtension() string {
	return ".mov"
}

func (p *ProRes) HasAlpha() bool {
	return true
}

func (p *ProRes) EncoderArgs() ffmpeg.KwArgs {
	return ffmpeg.KwArgs{
		"profile:v": 4,
	}
}

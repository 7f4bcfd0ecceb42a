package slidecast

import (
	"os/exec"
)

// Capabilities describes what the host can encode, decode and transcode.
// It is resolved once at session start and injected into the pipeline
// instead of being re-probed ad hoc; callers may override fields before
// passing it in RenderOptions.
type Capabilities struct {
	// VideoPreference is the ordered codec preference list. The capture
	// pipeline picks the first codec whose encoder is available.
	VideoPreference []VideoCodec

	// PreferredContainer is the target container for capture. When the
	// selected video codec cannot live in it, capture degrades to
	// Matroska.
	PreferredContainer Container

	// CanDecodeClips reports whether video-clip slides can be decoded.
	CanDecodeClips bool

	// CanTranscode reports whether the best-effort MP4 normalization hop
	// is available.
	CanTranscode bool

	// FFmpegPath is the resolved transcoder/clip-decoder binary, empty
	// when absent.
	FFmpegPath string
}

// DetectCapabilities probes the host once: native codec libraries for the
// in-process encoders, and an ffmpeg binary for clip decoding and the
// transcode hop.
func DetectCapabilities() *Capabilities {
	caps := &Capabilities{
		VideoPreference:    []VideoCodec{VideoCodecVP9, VideoCodecVP8, VideoCodecMJPEG},
		PreferredContainer: ContainerWebM,
	}

	if path, err := exec.LookPath("ffmpeg"); err == nil {
		caps.FFmpegPath = path
		caps.CanDecodeClips = true
		caps.CanTranscode = true
	}

	return caps
}

// pickVideoCodec returns the first available codec from the preference
// list, falling back to MJPEG which is always available.
func (c *Capabilities) pickVideoCodec() VideoCodec {
	for _, codec := range c.VideoPreference {
		if VideoEncoderAvailable(codec) {
			return codec
		}
	}
	return VideoCodecMJPEG
}

// pickAudioCodec pairs an audio codec with the chosen video codec.
func (c *Capabilities) pickAudioCodec(video VideoCodec) AudioCodec {
	if video.WebMCompatible() && AudioEncoderAvailable(AudioCodecOpus) {
		return AudioCodecOpus
	}
	return AudioCodecPCM
}

// resolveContainer returns the container actually used for the codec pair.
// Strict WebM only carries VP8/VP9 with Opus; anything else lands in the
// Matroska superset. MP4 requires a WebM-class video codec too (VP9 fMP4).
func (c *Capabilities) resolveContainer(video VideoCodec, audio AudioCodec) Container {
	switch c.PreferredContainer {
	case ContainerMP4:
		if video == VideoCodecVP9 && audio == AudioCodecOpus {
			return ContainerMP4
		}
	case ContainerWebM:
		if video.WebMCompatible() && audio == AudioCodecOpus {
			return ContainerWebM
		}
	}
	return ContainerMatroska
}

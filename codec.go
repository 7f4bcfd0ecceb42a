package slidecast

// VideoCodec identifies the video codec type.
type VideoCodec int

const (
	VideoCodecUnknown VideoCodec = iota
	VideoCodecVP8
	VideoCodecVP9
	VideoCodecMJPEG
)

func (c VideoCodec) String() string {
	switch c {
	case VideoCodecVP8:
		return "VP8"
	case VideoCodecVP9:
		return "VP9"
	case VideoCodecMJPEG:
		return "MJPEG"
	default:
		return "Unknown"
	}
}

// MatroskaCodecID returns the Matroska/WebM codec identifier.
func (c VideoCodec) MatroskaCodecID() string {
	switch c {
	case VideoCodecVP8:
		return "V_VP8"
	case VideoCodecVP9:
		return "V_VP9"
	case VideoCodecMJPEG:
		return "V_MJPEG"
	default:
		return ""
	}
}

// WebMCompatible reports whether the codec is allowed in a strict WebM file
// (as opposed to general Matroska).
func (c VideoCodec) WebMCompatible() bool {
	return c == VideoCodecVP8 || c == VideoCodecVP9
}

// AudioCodec identifies the audio codec type.
type AudioCodec int

const (
	AudioCodecUnknown AudioCodec = iota
	AudioCodecOpus
	AudioCodecPCM
)

func (c AudioCodec) String() string {
	switch c {
	case AudioCodecOpus:
		return "Opus"
	case AudioCodecPCM:
		return "PCM"
	default:
		return "Unknown"
	}
}

// MatroskaCodecID returns the Matroska/WebM codec identifier.
func (c AudioCodec) MatroskaCodecID() string {
	switch c {
	case AudioCodecOpus:
		return "A_OPUS"
	case AudioCodecPCM:
		return "A_PCM/INT/LIT"
	default:
		return ""
	}
}

// Container identifies the output container format.
type Container int

const (
	ContainerUnknown Container = iota
	ContainerWebM
	ContainerMP4
	ContainerMatroska
)

func (c Container) String() string {
	switch c {
	case ContainerWebM:
		return "WebM"
	case ContainerMP4:
		return "MP4"
	case ContainerMatroska:
		return "Matroska"
	default:
		return "Unknown"
	}
}

// MimeType returns the container MIME type.
func (c Container) MimeType() string {
	switch c {
	case ContainerWebM:
		return "video/webm"
	case ContainerMP4:
		return "video/mp4"
	case ContainerMatroska:
		return "video/x-matroska"
	default:
		return ""
	}
}

// isWebMFamily reports whether the container is WebM or its Matroska superset.
// The transcode hop only accepts these.
func (c Container) isWebMFamily() bool {
	return c == ContainerWebM || c == ContainerMatroska
}

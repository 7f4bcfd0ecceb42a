// Package slidecast renders a timeline of slides (still images and video
// clips with text overlays, filters, Ken-Burns motion and transitions) into
// a single playable video container, with background music and per-clip
// audio mixed into one synchronized track.
//
// # Architecture
//
//	Loader:   slide media -> decoded images / clip frame+sample sources
//	Mixer:    background track + per-clip gain nodes -> one PCM stream
//	Renderer: virtual 30fps clock -> composed RGBA frames (I420 out)
//	Capture:  frames + PCM -> encoders -> WebM / fMP4 / Matroska container
//	Transcode (optional): WebM -> H.264/AAC MP4 with fast-start metadata
//
// The whole pipeline runs inside one GenerateVideo call. A render session
// owns its resources exclusively and tears them down on both the success
// and failure paths; concurrent calls build independent sessions.
//
// # Native Libraries
//
// VP8/VP9 and Opus encoding bind libslidecast_* wrapper libraries via
// purego (CGO_ENABLED=0). Set SLIDECAST_LIB_PATH to the directory containing
// them. When no native codec is present, capture falls back to a pure-Go
// MJPEG/PCM Matroska path so rendering always succeeds.
//
// Best-effort MP4 normalization uses an ffmpeg binary when one is found on
// PATH; its absence is never an error.
//
// # Build Tags
//
// Optional tags disable features:
//   - novpx, noopus: disable the native codec bindings
package slidecast

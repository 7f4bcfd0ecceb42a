package slidecast

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-audio/wav"
	mp3 "github.com/hajimehoshi/go-mp3"
)

// ErrAudioMix is the distinguished failure for explicitly requested
// background audio that could not be fetched, decoded or wired into the
// mix. A render never silently drops requested audio.
var ErrAudioMix = errors.New("audio mix failed")

// audioLoadTimeout bounds the background track fetch+decode.
const audioLoadTimeout = 10 * time.Second

const (
	mixSampleRate = 48000
	mixChannels   = 2
)

// BackgroundAudio requests a music track under the whole timeline,
// trimmed to [StartSec, EndSec). EndSec zero means the end of the track.
type BackgroundAudio struct {
	URL      string // http(s) URL or local file path
	StartSec float64
	EndSec   float64
}

// backgroundTrack is the decoded, trimmed music source.
type backgroundTrack struct {
	pcm       []int16 // interleaved 48kHz stereo
	pos       int     // next interleaved value to mix
	endSample int     // interleaved trim boundary
	playing   bool
}

// AudioMixer sums the background track and the active clip's audio into
// one PCM stream. Every video slide owns a gain node initialized to zero;
// the renderer raises exactly one of them while its slide is on screen.
type AudioMixer struct {
	bg    *backgroundTrack
	clips []ClipSource // indexed like the slide list, nil for images
	gains []float64    // current gain per slide

	active int // active clip slide index, -1 when none
	logger *slog.Logger
}

// newAudioMixer builds the mix graph. A failure while background audio
// was requested aborts with ErrAudioMix; with no audio requested the
// mixer degrades to a silent track.
func newAudioMixer(ctx context.Context, bg *BackgroundAudio, media *loadedMedia, client *http.Client, logger *slog.Logger) (*AudioMixer, error) {
	m := &AudioMixer{
		clips:  media.clips,
		gains:  make([]float64, len(media.clips)),
		active: -1,
		logger: logger,
	}

	if bg != nil && bg.URL != "" {
		track, err := loadBackgroundTrack(ctx, bg, client)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrAudioMix, err)
		}
		m.bg = track
		logger.Debug("background track ready",
			"samples", len(track.pcm)/mixChannels, "trim_end", track.endSample/mixChannels)
	}

	return m, nil
}

// SetActiveSlide applies the audio-gain side of a slide boundary: the
// previous clip is paused and zeroed, the new one restarted from time
// zero with its configured gain. Gains move no later than the first frame
// the slide is visually active.
func (m *AudioMixer) SetActiveSlide(ctx context.Context, index int, slide *Slide) error {
	if index == m.active {
		// Same slide; keep the gain current in case settings changed.
		if m.clips[index] != nil {
			m.gains[index] = slideGain(slide)
		}
		return nil
	}

	if m.active >= 0 && m.clips[m.active] != nil {
		m.gains[m.active] = 0
		m.clips[m.active].Stop()
	}
	m.active = index

	if m.clips[index] == nil {
		return nil
	}
	if err := m.clips[index].Start(ctx); err != nil {
		return err
	}
	m.gains[index] = slideGain(slide)
	return nil
}

func slideGain(s *Slide) float64 {
	if s.ClipMuted {
		return 0
	}
	return clampVolume(s.ClipVolume)
}

// ClipGain reports the current gain of a slide's clip node.
func (m *AudioMixer) ClipGain(index int) float64 {
	if index < 0 || index >= len(m.gains) {
		return 0
	}
	return m.gains[index]
}

// MixTick produces n samples per channel of mixed output for the current
// virtual-clock tick.
func (m *AudioMixer) MixTick(ctx context.Context, n int, timestamp int64) (*AudioSamples, error) {
	acc := make([]int32, n*mixChannels)

	if m.bg != nil && m.bg.playing {
		for i := range acc {
			if m.bg.pos >= len(m.bg.pcm) {
				break
			}
			acc[i] += int32(m.bg.pcm[m.bg.pos])
			m.bg.pos++
		}
		// The trim end is checked after the tick is mixed, not as a
		// hard scheduled stop, so a sub-tick overshoot is tolerated.
		if m.bg.pos >= m.bg.endSample || m.bg.pos >= len(m.bg.pcm) {
			m.bg.playing = false
		}
	}

	if m.active >= 0 && m.clips[m.active] != nil && m.gains[m.active] > 0 {
		pcm, err := m.clips[m.active].ReadSamples(ctx, n)
		if err != nil {
			return nil, err
		}
		gain := m.gains[m.active]
		for i := 0; i < len(acc) && i*2+1 < len(pcm); i++ {
			v := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
			acc[i] += int32(float64(v) * gain)
		}
	}

	out := make([]byte, n*mixChannels*2)
	for i, v := range acc {
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(v)))
	}

	return &AudioSamples{
		Data:        out,
		SampleRate:  mixSampleRate,
		Channels:    mixChannels,
		SampleCount: n,
		Timestamp:   timestamp,
	}, nil
}

// Pause zeroes every source ahead of the capture stop sequence.
func (m *AudioMixer) Pause() {
	if m.bg != nil {
		m.bg.playing = false
	}
	if m.active >= 0 && m.clips[m.active] != nil {
		m.gains[m.active] = 0
		m.clips[m.active].Stop()
	}
}

// --- Background track loading ---

func loadBackgroundTrack(ctx context.Context, bg *BackgroundAudio, client *http.Client) (*backgroundTrack, error) {
	ctx, cancel := context.WithTimeout(ctx, audioLoadTimeout)
	defer cancel()

	raw, err := fetchAudio(ctx, bg.URL, client)
	if err != nil {
		return nil, err
	}

	pcm, err := decodeAudio(raw)
	if err != nil {
		return nil, err
	}

	start := int(bg.StartSec*mixSampleRate) * mixChannels
	if start < 0 {
		start = 0
	}
	if start > len(pcm) {
		start = len(pcm)
	}
	end := len(pcm)
	if bg.EndSec > 0 {
		if e := int(bg.EndSec*mixSampleRate) * mixChannels; e < end {
			end = e
		}
	}

	return &backgroundTrack{
		pcm:       pcm,
		pos:       start, // seek to the trim start before the loop begins
		endSample: end,
		playing:   start < end,
	}, nil
}

func fetchAudio(ctx context.Context, url string, client *http.Client) ([]byte, error) {
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return os.ReadFile(url)
	}

	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// decodeAudio sniffs the container and returns interleaved 48kHz stereo.
func decodeAudio(raw []byte) ([]int16, error) {
	if len(raw) < 4 {
		return nil, errors.New("audio data too short")
	}
	if bytes.HasPrefix(raw, []byte("RIFF")) {
		return decodeWAV(raw)
	}
	return decodeMP3(raw)
}

func decodeWAV(raw []byte) ([]int16, error) {
	dec := wav.NewDecoder(bytes.NewReader(raw))
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("wav decode: %w", err)
	}
	if buf.Format == nil || buf.Format.NumChannels == 0 || buf.Format.SampleRate == 0 {
		return nil, errors.New("wav decode: missing format")
	}

	bitDepth := buf.SourceBitDepth
	if bitDepth == 0 {
		bitDepth = 16
	}
	shift := uint(0)
	down := uint(0)
	if bitDepth < 16 {
		shift = uint(16 - bitDepth)
	} else if bitDepth > 16 {
		down = uint(bitDepth - 16)
	}

	channels := buf.Format.NumChannels
	frames := len(buf.Data) / channels
	pcm := make([]int16, 0, frames*mixChannels)
	for f := 0; f < frames; f++ {
		var l, r int
		l = buf.Data[f*channels]
		if channels > 1 {
			r = buf.Data[f*channels+1]
		} else {
			r = l
		}
		pcm = append(pcm, int16((l<<shift)>>down), int16((r<<shift)>>down))
	}

	return resampleStereo(pcm, buf.Format.SampleRate, mixSampleRate), nil
}

func decodeMP3(raw []byte) ([]int16, error) {
	dec, err := mp3.NewDecoder(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("mp3 decode: %w", err)
	}
	data, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("mp3 decode: %w", err)
	}

	// go-mp3 always yields interleaved S16LE stereo.
	pcm := make([]int16, len(data)/2)
	for i := range pcm {
		pcm[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return resampleStereo(pcm, dec.SampleRate(), mixSampleRate), nil
}

// resampleStereo converts interleaved stereo PCM between rates with
// linear interpolation.
func resampleStereo(pcm []int16, srcRate, dstRate int) []int16 {
	if srcRate == dstRate || srcRate <= 0 || len(pcm) < 2 {
		return pcm
	}
	srcFrames := len(pcm) / 2
	dstFrames := int(int64(srcFrames) * int64(dstRate) / int64(srcRate))
	out := make([]int16, dstFrames*2)

	for f := 0; f < dstFrames; f++ {
		// Source position in 16.16 fixed point.
		srcFP := int64(f) * int64(srcRate) << 16 / int64(dstRate)
		s0 := int(srcFP >> 16)
		frac := int32(srcFP & 0xFFFF)
		s1 := s0 + 1
		if s1 >= srcFrames {
			s1 = s0
		}
		for ch := 0; ch < 2; ch++ {
			a := int32(pcm[s0*2+ch])
			b := int32(pcm[s1*2+ch])
			out[f*2+ch] = int16((a*(0x10000-frac) + b*frac) >> 16)
		}
	}
	return out
}

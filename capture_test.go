package slidecast

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/at-wat/ebml-go"
	"github.com/at-wat/ebml-go/webm"
)

// ebmlMagic starts every WebM/Matroska stream.
var ebmlMagic = []byte{0x1A, 0x45, 0xDF, 0xA3}

func fallbackCaps() *Capabilities {
	return &Capabilities{
		VideoPreference:    []VideoCodec{VideoCodecMJPEG},
		PreferredContainer: ContainerWebM,
	}
}

func gradientFrame(w, h int, shade byte) *VideoFrame {
	f := NewVideoFrame(w, h)
	for i := range f.Data[0] {
		f.Data[0][i] = byte(i) + shade
	}
	for i := range f.Data[1] {
		f.Data[1][i] = 128
		f.Data[2][i] = 128
	}
	return f
}

func TestCapturePipelineProducesMatroska(t *testing.T) {
	p, err := newCapturePipeline(fallbackCaps(), 64, 64, 30, silentLogger())
	if err != nil {
		t.Fatal(err)
	}
	if p.Container() != ContainerMatroska {
		t.Fatalf("container = %v, want Matroska for the MJPEG/PCM pair", p.Container())
	}

	frameDur := int64(time.Second) / 30
	for n := 0; n < 30; n++ {
		f := gradientFrame(64, 64, byte(n*8))
		f.Timestamp = int64(n) * frameDur
		f.Duration = frameDur
		if err := p.WriteFrame(f); err != nil {
			t.Fatal(err)
		}
		if err := p.WriteSamples(&AudioSamples{
			Data:        make([]byte, 1600*4),
			SampleRate:  mixSampleRate,
			Channels:    mixChannels,
			SampleCount: 1600,
			Timestamp:   f.Timestamp,
		}); err != nil {
			t.Fatal(err)
		}
	}

	result, err := p.Stop(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Data) == 0 {
		t.Fatal("empty capture blob")
	}
	if !bytes.HasPrefix(result.Data, ebmlMagic) {
		t.Fatalf("blob does not start with the EBML magic: % x", result.Data[:4])
	}
	if result.MIMEType != "video/x-matroska" {
		t.Fatalf("mime = %q, want video/x-matroska", result.MIMEType)
	}

	stats := p.Stats()
	if stats.FramesEncoded != 30 {
		t.Fatalf("frames encoded = %d, want 30", stats.FramesEncoded)
	}
}

func TestCapturePipelineStopTwice(t *testing.T) {
	p, err := newCapturePipeline(fallbackCaps(), 32, 32, 30, silentLogger())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := p.Stop(context.Background()); err == nil {
		t.Fatal("second Stop should fail")
	}
}

// videoBlockTimesMs parses a WebM/Matroska blob and returns the video
// track's block timestamps in stream order, in milliseconds.
func videoBlockTimesMs(t *testing.T, blob []byte) []int64 {
	t.Helper()
	var doc struct {
		Header  webm.EBMLHeader `ebml:"EBML"`
		Segment webm.Segment    `ebml:"Segment"`
	}
	if err := ebml.Unmarshal(bytes.NewReader(blob), &doc); err != nil {
		t.Fatalf("parse container: %v", err)
	}
	var times []int64
	for _, cluster := range doc.Segment.Cluster {
		for _, block := range cluster.SimpleBlock {
			if block.TrackNumber == 1 {
				times = append(times, int64(cluster.Timecode)+int64(block.Timecode))
			}
		}
	}
	return times
}

func TestMatroskaMuxerMonotonicTimestamps(t *testing.T) {
	m, err := newMatroskaMuxer(VideoCodecMJPEG, AudioCodecPCM, 32, 32, 30)
	if err != nil {
		t.Fatal(err)
	}
	for n := 0; n < 10; n++ {
		err := m.writeVideo(&EncodedFrame{
			Data:     []byte{0xFF, 0xD8, 0xFF, 0xD9},
			Keyframe: true,
			PTS:      int64(n) * int64(time.Second) / 30,
			Duration: int64(time.Second) / 30,
		})
		if err != nil {
			t.Fatal(err)
		}
	}
	blob, err := m.finish()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(blob, ebmlMagic) {
		t.Fatal("missing EBML magic")
	}

	times := videoBlockTimesMs(t, blob)
	if len(times) != 10 {
		t.Fatalf("muxed %d video blocks, want 10", len(times))
	}
	for i := 1; i < len(times); i++ {
		if times[i] < times[i-1] {
			t.Fatalf("block %d timestamp %dms before %dms", i, times[i], times[i-1])
		}
	}
	if last := times[len(times)-1]; last != 300 {
		t.Fatalf("last block at %dms, want 300", last)
	}
}

func TestFMP4MuxerProducesInitAndFragment(t *testing.T) {
	m, err := newFMP4Muxer(64, 64, 30)
	if err != nil {
		t.Fatal(err)
	}
	if err := m.writeVideo(&EncodedFrame{
		Data:     []byte{0x82, 0x49, 0x83, 0x42}, // opaque payload
		Keyframe: true,
		Duration: int64(time.Second) / 30,
	}); err != nil {
		t.Fatal(err)
	}
	if err := m.writeAudio(&EncodedAudio{
		Data:     make([]byte, 64),
		Duration: 20 * int64(time.Millisecond),
	}); err != nil {
		t.Fatal(err)
	}

	blob, err := m.finish()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(blob[:64], []byte("ftyp")) {
		t.Fatal("init segment missing ftyp box")
	}
	if !bytes.Contains(blob, []byte("moof")) {
		t.Fatal("fragment missing moof box")
	}
}

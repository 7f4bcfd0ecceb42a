package slidecast

import (
	"bytes"
	"context"
	"testing"
)

func TestTranscodeSkipsMP4Input(t *testing.T) {
	blob := []byte{0, 0, 0, 0x18, 'f', 't', 'y', 'p'}
	caps := &Capabilities{CanTranscode: true, FFmpegPath: "/usr/bin/ffmpeg"}

	out, container, transcoded := transcodeToMP4(context.Background(), blob, ContainerMP4, caps, silentLogger())
	if transcoded || container != ContainerMP4 || !bytes.Equal(out, blob) {
		t.Fatal("MP4 input must pass through untouched")
	}
}

func TestTranscodeSkipsWithoutRuntime(t *testing.T) {
	blob := append([]byte{}, ebmlMagic...)
	caps := &Capabilities{} // no ffmpeg

	out, container, transcoded := transcodeToMP4(context.Background(), blob, ContainerMatroska, caps, silentLogger())
	if transcoded {
		t.Fatal("transcode ran without a runtime")
	}
	if container != ContainerMatroska || !bytes.Equal(out, blob) {
		t.Fatal("missing runtime must keep the original blob")
	}
}

func TestTranscodeFailureKeepsOriginal(t *testing.T) {
	// Garbage input with a broken binary path: the hop must swallow the
	// failure and hand back the original blob.
	blob := append([]byte{}, ebmlMagic...)
	caps := &Capabilities{CanTranscode: true, FFmpegPath: "/nonexistent/ffmpeg"}

	out, container, transcoded := transcodeToMP4(context.Background(), blob, ContainerWebM, caps, silentLogger())
	if transcoded {
		t.Fatal("transcode reported success with a broken binary")
	}
	if container != ContainerWebM || !bytes.Equal(out, blob) {
		t.Fatal("failed transcode must keep the original blob")
	}
}

package slidecast

import "testing"

func TestPickVideoCodecFallsBackToMJPEG(t *testing.T) {
	caps := &Capabilities{VideoPreference: []VideoCodec{VideoCodecMJPEG}}
	if got := caps.pickVideoCodec(); got != VideoCodecMJPEG {
		t.Fatalf("pickVideoCodec() = %v, want MJPEG", got)
	}

	// An empty preference list still yields a working encoder.
	caps = &Capabilities{}
	if got := caps.pickVideoCodec(); got != VideoCodecMJPEG {
		t.Fatalf("pickVideoCodec() with empty preference = %v, want MJPEG", got)
	}
}

func TestPickAudioCodecPairsPCMWithMJPEG(t *testing.T) {
	caps := &Capabilities{}
	if got := caps.pickAudioCodec(VideoCodecMJPEG); got != AudioCodecPCM {
		t.Fatalf("pickAudioCodec(MJPEG) = %v, want PCM", got)
	}
}

func TestResolveContainer(t *testing.T) {
	cases := []struct {
		preferred Container
		video     VideoCodec
		audio     AudioCodec
		want      Container
	}{
		{ContainerMP4, VideoCodecVP9, AudioCodecOpus, ContainerMP4},
		{ContainerMP4, VideoCodecVP8, AudioCodecOpus, ContainerMatroska},
		{ContainerWebM, VideoCodecVP9, AudioCodecOpus, ContainerWebM},
		{ContainerWebM, VideoCodecVP8, AudioCodecOpus, ContainerWebM},
		{ContainerWebM, VideoCodecMJPEG, AudioCodecPCM, ContainerMatroska},
		{ContainerWebM, VideoCodecVP9, AudioCodecPCM, ContainerMatroska},
	}
	for _, c := range cases {
		caps := &Capabilities{PreferredContainer: c.preferred}
		if got := caps.resolveContainer(c.video, c.audio); got != c.want {
			t.Errorf("resolveContainer(%v, %v) preferring %v = %v, want %v",
				c.video, c.audio, c.preferred, got, c.want)
		}
	}
}

func TestDetectCapabilitiesDefaults(t *testing.T) {
	caps := DetectCapabilities()
	if len(caps.VideoPreference) == 0 {
		t.Fatal("no video preference list")
	}
	if caps.VideoPreference[len(caps.VideoPreference)-1] != VideoCodecMJPEG {
		t.Error("preference list should end at the always-available MJPEG")
	}
	if caps.PreferredContainer != ContainerWebM {
		t.Errorf("preferred container = %v, want WebM", caps.PreferredContainer)
	}
	if caps.CanTranscode && caps.FFmpegPath == "" {
		t.Error("transcode capability without a resolved binary")
	}
}

func TestContainerMimeTypes(t *testing.T) {
	cases := map[Container]string{
		ContainerWebM:     "video/webm",
		ContainerMP4:      "video/mp4",
		ContainerMatroska: "video/x-matroska",
	}
	for c, want := range cases {
		if got := c.MimeType(); got != want {
			t.Errorf("%v.MimeType() = %q, want %q", c, got, want)
		}
	}
}

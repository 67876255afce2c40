package localmedia

import (
	"math"
	"testing"
)

func TestParseProbe(t *testing.T) {
	raw := []byte(`{"streams":[{"codec_type":"video"},{"codec_type":"audio","sample_rate":"44100","channels":2}],"format":{"duration":"12.5"}}`)
	p, err := ParseProbe(raw)
	if err != nil {
		t.Fatalf("ParseProbe: %v", err)
	}
	if p.DurationSeconds != 12.5 || p.SampleRate != 44100 || p.Channels != 2 || !p.HasVideo {
		t.Fatalf("unexpected props: %+v", p)
	}
	if _, err := ParseProbe([]byte("nope")); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestParseMeanVolume(t *testing.T) {
	out := "[Parsed_volumedetect_0 @ 0x1] n_samples: 100\n[Parsed_volumedetect_0 @ 0x1] mean_volume: -23.4 dB\n"
	v, err := ParseMeanVolume(out)
	if err != nil || v != -23.4 {
		t.Fatalf("got %v, %v", v, err)
	}
	if _, err := ParseMeanVolume("silence"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestEvenTimestamps(t *testing.T) {
	ts := EvenTimestamps(110, 10)
	if len(ts) != 10 {
		t.Fatalf("len=%d", len(ts))
	}
	if math.Abs(ts[0]-10) > 1e-9 || math.Abs(ts[9]-100) > 1e-9 {
		t.Fatalf("unexpected spread: %v", ts)
	}
	if EvenTimestamps(0, 10) != nil {
		t.Fatalf("zero duration should yield nil")
	}
}

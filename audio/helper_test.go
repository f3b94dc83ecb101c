package audio

import (
	"reflect"
	"testing"
)

func TestAdjustChannelsMonoToStereo(t *testing.T) {

	in := []float32{0.1, 0.2, 0.3}
	exp := []float32{0.1, 0.1, 0.2, 0.2, 0.3, 0.3}

	res := AdjustChannels(1, 2, in)
	if !reflect.DeepEqual(res, exp) {
		t.Log("expected:", exp)
		t.Log("got:", res)
		t.Fatal("mono -> stereo conversion failed")
	}

	back := AdjustChannels(2, 1, res)
	if !reflect.DeepEqual(back, in) {
		t.Log("expected:", in)
		t.Log("got:", back)
		t.Fatal("stereo -> mono conversion failed")
	}
}

func TestAdjustChannelsUnsupported(t *testing.T) {
	in := []float32{1, 2, 3, 4, 5, 6}
	if res := AdjustChannels(3, 2, in); !reflect.DeepEqual(res, in) {
		t.Fatal("unsupported conversion must return the input")
	}
}

func TestLevel(t *testing.T) {
	if l := Level(nil); l != 0 {
		t.Fatalf("expected level 0 for empty buffer, got %v", l)
	}

	if l := Level([]float32{0.5, -0.5, 0.5, -0.5}); l != 0.5 {
		t.Fatalf("expected level 0.5, got %v", l)
	}
}

func TestParseChannelMap(t *testing.T) {
	cm, err := ParseChannelMap("front-left, front-right")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(cm, DefaultChannelMap(2)) {
		t.Fatalf("unexpected channel map %v", cm)
	}
	if !cm.Compatible(SampleSpec{Format: FormatS16LE, Rate: 48000, Channels: 2}) {
		t.Fatal("stereo map must be compatible with a 2 channel spec")
	}

	if _, err := ParseChannelMap("front-left,nowhere"); err == nil {
		t.Fatal("expected error for unknown position")
	}
}

func TestParseSampleFormat(t *testing.T) {
	f, err := ParseSampleFormat("S16")
	if err != nil {
		t.Fatal(err)
	}
	if f != FormatS16LE {
		t.Fatalf("expected s16le, got %v", f)
	}

	if _, err := ParseSampleFormat("mp3"); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

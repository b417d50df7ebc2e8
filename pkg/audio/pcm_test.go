package audio_test

import (
	"bytes"
	"testing"

	"github.com/quenra/kalliope/pkg/audio"
)

func TestDownmixToMono(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   []int16
		want []int16
	}{
		{"averages pairs", []int16{100, 200, -100, -200}, []int16{150, -150}},
		{"clamps high", []int16{32767, 32767}, []int16{32767}},
		{"clamps low", []int16{-32768, -32768}, []int16{-32768}},
		{"empty", nil, []int16{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := audio.DownmixToMono(audio.Int16sToBytes(tt.in), 2)
			if !bytes.Equal(got, audio.Int16sToBytes(tt.want)) {
				t.Errorf("DownmixToMono(%v) = %v, want %v",
					tt.in, audio.BytesToInt16s(got), tt.want)
			}
		})
	}
}

func TestUpmixMonoToStereo(t *testing.T) {
	t.Parallel()

	in := audio.Int16sToBytes([]int16{5, -5})
	want := []int16{5, 5, -5, -5}
	got := audio.BytesToInt16s(audio.UpmixMonoToStereo(in))
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("UpmixMonoToStereo = %v, want %v", got, want)
		}
	}
}

func TestResample16_Lengths(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		channels       int
		srcRate, dst   int
		srcFrames      int
		wantDstFrames  int
	}{
		{"halve mono", 1, 48000, 24000, 960, 480},
		{"third mono", 1, 48000, 16000, 960, 320},
		{"double mono", 1, 16000, 32000, 160, 320},
		{"halve stereo", 2, 48000, 24000, 960, 480},
		{"same rate", 1, 16000, 16000, 160, 160},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			in := make([]byte, tt.srcFrames*tt.channels*2)
			out := audio.Resample16(in, tt.channels, tt.srcRate, tt.dst)
			if got := len(out) / (tt.channels * 2); got != tt.wantDstFrames {
				t.Errorf("frames = %d, want %d", got, tt.wantDstFrames)
			}
		})
	}
}

func TestResample16_PreservesConstantSignal(t *testing.T) {
	t.Parallel()

	in := make([]int16, 480)
	for i := range in {
		in[i] = 1000
	}
	out := audio.BytesToInt16s(audio.Resample16(audio.Int16sToBytes(in), 1, 48000, 16000))
	for i, s := range out {
		if s != 1000 {
			t.Fatalf("sample %d = %d, want 1000", i, s)
		}
	}
}

func TestConvertFormat_CapturePath(t *testing.T) {
	t.Parallel()

	// The capture path converts 48 kHz stereo Discord PCM to 16 kHz mono.
	src := audio.Format{SampleRate: 48000, Channels: 2}
	dst := audio.Format{SampleRate: 16000, Channels: 1}

	in := make([]byte, 960*2*2) // 20 ms of 48 kHz stereo
	out := audio.ConvertFormat(in, src, dst)
	if got, want := len(out), 320*2; got != want {
		t.Errorf("converted length = %d, want %d", got, want)
	}

	if same := audio.ConvertFormat(in, src, src); len(same) != len(in) {
		t.Errorf("identity conversion changed length: %d != %d", len(same), len(in))
	}
}

func TestFormatDuration(t *testing.T) {
	t.Parallel()

	f := audio.Format{SampleRate: 48000, Channels: 2}
	if got := f.Duration(3840); got.Milliseconds() != 20 {
		t.Errorf("Duration(3840) = %v, want 20ms", got)
	}
	if got := (audio.Format{}).Duration(100); got != 0 {
		t.Errorf("Duration on zero format = %v, want 0", got)
	}
}

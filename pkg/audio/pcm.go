package audio

// Int16sToBytes converts int16 PCM samples to little-endian bytes.
func Int16sToBytes(pcm []int16) []byte {
	b := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		b[i*2] = byte(s)
		b[i*2+1] = byte(s >> 8)
	}
	return b
}

// BytesToInt16s converts little-endian bytes to int16 PCM samples.
// A trailing odd byte is ignored.
func BytesToInt16s(b []byte) []int16 {
	pcm := make([]int16, len(b)/2)
	for i := range pcm {
		pcm[i] = int16(b[i*2]) | int16(b[i*2+1])<<8
	}
	return pcm
}

// DownmixToMono averages the channels of interleaved 16-bit PCM into mono.
// channels <= 1 returns the input unchanged. Intermediate sums use int32
// arithmetic and are clamped to the int16 range.
func DownmixToMono(pcm []byte, channels int) []byte {
	if channels <= 1 {
		return pcm
	}
	frames := len(pcm) / (2 * channels)
	out := make([]byte, frames*2)
	for i := range frames {
		var sum int32
		for ch := range channels {
			idx := (i*channels + ch) * 2
			sum += int32(int16(pcm[idx]) | int16(pcm[idx+1])<<8)
		}
		avg := sum / int32(channels)
		if avg > 32767 {
			avg = 32767
		} else if avg < -32768 {
			avg = -32768
		}
		out[i*2] = byte(avg)
		out[i*2+1] = byte(avg >> 8)
	}
	return out
}

// UpmixMonoToStereo duplicates each 16-bit mono sample into an L+R pair.
func UpmixMonoToStereo(pcm []byte) []byte {
	out := make([]byte, (len(pcm)/2)*4)
	for i := 0; i+1 < len(pcm); i += 2 {
		j := i * 2
		out[j] = pcm[i]
		out[j+1] = pcm[i+1]
		out[j+2] = pcm[i]
		out[j+3] = pcm[i+1]
	}
	return out
}

// Resample16 resamples interleaved 16-bit PCM from srcRate to dstRate using
// per-channel linear interpolation. Invalid rates or equal rates return the
// input unchanged.
func Resample16(pcm []byte, channels, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || channels <= 0 {
		return pcm
	}
	frameBytes := 2 * channels
	srcFrames := len(pcm) / frameBytes
	if srcFrames == 0 {
		return nil
	}
	dstFrames := int(int64(srcFrames) * int64(dstRate) / int64(srcRate))
	if dstFrames == 0 {
		return nil
	}

	out := make([]byte, dstFrames*frameBytes)
	ratio := float64(srcRate) / float64(dstRate)

	sampleAt := func(frame, ch int) int16 {
		idx := (frame*channels + ch) * 2
		return int16(pcm[idx]) | int16(pcm[idx+1])<<8
	}

	for i := range dstFrames {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		for ch := range channels {
			s0 := sampleAt(srcIdx, ch)
			s1 := s0
			if srcIdx+1 < srcFrames {
				s1 = sampleAt(srcIdx+1, ch)
			}
			v := int16(float64(s0)*(1-frac) + float64(s1)*frac)
			idx := (i*channels + ch) * 2
			out[idx] = byte(v)
			out[idx+1] = byte(v >> 8)
		}
	}
	return out
}

// ConvertFormat converts interleaved 16-bit PCM from src to dst format.
// Resampling happens before channel conversion when downmixing (so stereo
// is never resampled needlessly when the target is mono-and-lower-rate is
// handled channel-first) and after when upmixing.
func ConvertFormat(pcm []byte, src, dst Format) []byte {
	if src == dst {
		return pcm
	}
	out := pcm
	channels := src.Channels

	// Downmix first so resampling touches fewer samples.
	if channels > dst.Channels && dst.Channels == 1 {
		out = DownmixToMono(out, channels)
		channels = 1
	}

	if src.SampleRate != dst.SampleRate {
		out = Resample16(out, channels, src.SampleRate, dst.SampleRate)
	}

	if channels == 1 && dst.Channels == 2 {
		out = UpmixMonoToStereo(out)
	}
	return out
}

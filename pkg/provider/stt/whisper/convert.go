package whisper

import "encoding/binary"

// pcmToFloat32Mono converts 16-bit signed little-endian PCM audio to the
// float32 mono samples normalised to [-1.0, 1.0] that whisper.cpp expects.
// Multi-channel input is down-mixed by averaging all channels per frame.
// Any trailing odd byte is silently ignored.
func pcmToFloat32Mono(pcm []byte, channels int) []float32 {
	if channels <= 1 {
		n := len(pcm) / 2
		samples := make([]float32, n)
		for i := range n {
			s := int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2]))
			samples[i] = float32(s) / 32768.0
		}
		return samples
	}

	perChannel := len(pcm) / (2 * channels)
	mono := make([]float32, perChannel)
	for i := range perChannel {
		var sum float32
		for ch := range channels {
			idx := (i*channels + ch) * 2
			s := int16(binary.LittleEndian.Uint16(pcm[idx : idx+2]))
			sum += float32(s) / 32768.0
		}
		mono[i] = sum / float32(channels)
	}
	return mono
}

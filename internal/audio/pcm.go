package audio

import (
	"encoding/binary"
	"math"
	"time"
)

// ResampleInt16 converts mono samples between rates by linear interpolation.
// The returned slice aliases samples when the rates match.
func ResampleInt16(samples []int16, fromRate, toRate int) []int16 {
	if fromRate == toRate || fromRate <= 0 || toRate <= 0 || len(samples) == 0 {
		return samples
	}

	step := float64(fromRate) / float64(toRate)
	out := make([]int16, (len(samples)*toRate+fromRate-1)/fromRate)
	last := len(samples) - 1
	for i := range out {
		pos := float64(i) * step
		idx := int(pos)
		if idx >= last {
			out[i] = samples[last]
			continue
		}
		frac := pos - float64(idx)
		a, b := float64(samples[idx]), float64(samples[idx+1])
		out[i] = int16(math.Round(a + (b-a)*frac))
	}
	return out
}

// PCMBytesToInt16 decodes little-endian s16 PCM. A trailing odd byte is dropped.
func PCMBytesToInt16(pcm []byte) []int16 {
	samples := make([]int16, len(pcm)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(pcm[2*i:]))
	}
	return samples
}

func Int16ToPCMBytes(samples []int16) []byte {
	pcm := make([]byte, 0, len(samples)*2)
	for _, s := range samples {
		pcm = binary.LittleEndian.AppendUint16(pcm, uint16(s))
	}
	return pcm
}

// MixInto adds src onto dst sample by sample, saturating at the int16 range.
func MixInto(dst, src []int16) {
	for i := range min(len(dst), len(src)) {
		dst[i] = clamp16(int32(dst[i]) + int32(src[i]))
	}
}

func clamp16(v int32) int16 {
	return int16(max(math.MinInt16, min(math.MaxInt16, v)))
}

func DurationOf(samples, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(int64(samples) * int64(time.Second) / int64(sampleRate))
}

package audioio

// Resampler is a state-carrying linear resampler from an arbitrary source
// rate to a destination rate (dstRate). State (the fractional read position and the last
// input sample) persists across Process calls so frame boundaries never
// introduce a click, per spec.md section 4.1 ("resampler state persists
// across frames"). This is a small enough piece of signal math that no
// ecosystem dependency covers it more simply than the stdlib — see
// DESIGN.md for why this one corner stays hand-rolled.
type Resampler struct {
	srcRate int
	dstRate int
	pos     float64
	lastIn  int16
	haveLast bool
}

// NewResampler creates a Resampler converting from srcRate to dstRate.
func NewResampler(srcRate, dstRate int) *Resampler {
	return &Resampler{srcRate: srcRate, dstRate: dstRate}
}

// Reset clears carried state (used on session/VAD reset).
func (r *Resampler) Reset() {
	r.pos = 0
	r.lastIn = 0
	r.haveLast = false
}

// Process resamples one chunk of mono int16 PCM, returning the resampled
// samples. The fractional position carries into the next call.
func (r *Resampler) Process(in []int16) []int16 {
	if r.srcRate == r.dstRate || len(in) == 0 {
		return in
	}

	ratio := float64(r.srcRate) / float64(r.dstRate)
	var out []int16

	// Prepend the carried-over last sample so interpolation across the
	// chunk boundary is continuous.
	ext := in
	offset := 0.0
	if r.haveLast {
		ext = make([]int16, 0, len(in)+1)
		ext = append(ext, r.lastIn)
		ext = append(ext, in...)
		offset = r.pos
	}

	for pos := offset; pos < float64(len(ext))-1; pos += ratio {
		i0 := int(pos)
		frac := pos - float64(i0)
		s0 := float64(ext[i0])
		s1 := float64(ext[i0+1])
		sample := s0 + (s1-s0)*frac
		out = append(out, int16(sample))
	}

	// Carry the final input sample and the leftover fractional position for
	// the next call.
	r.lastIn = in[len(in)-1]
	r.haveLast = true
	consumed := float64(len(ext) - 1)
	// recompute remaining fractional offset relative to the new buffer start
	last := offset
	for last < consumed {
		last += ratio
	}
	r.pos = last - consumed

	return out
}

// DownmixToMono reduces interleaved multi-channel int16 PCM to mono using
// equal-gain averaging (spec.md 4.1 allows either left-channel or
// equal-gain mix; this implementation picks equal-gain at init, fixed for
// the process lifetime).
func DownmixToMono(interleaved []int16, channels int) []int16 {
	if channels <= 1 {
		return interleaved
	}
	frames := len(interleaved) / channels
	out := make([]int16, frames)
	for i := 0; i < frames; i++ {
		var sum int32
		for c := 0; c < channels; c++ {
			sum += int32(interleaved[i*channels+c])
		}
		out[i] = int16(sum / int32(channels))
	}
	return out
}

// BytesToInt16LE converts little-endian byte pairs to int16 samples.
func BytesToInt16LE(b []byte) []int16 {
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(b[i*2]) | int16(b[i*2+1])<<8
	}
	return out
}

// Int16LEToBytes converts int16 samples to little-endian byte pairs.
func Int16LEToBytes(s []int16) []byte {
	out := make([]byte, len(s)*2)
	for i, v := range s {
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	return out
}

package vad

// slidingWindow implements the frame_window_threshold debounce rule shared
// by both VAD variants (original_source core/providers/vad/silero.py and
// webrtc.py both maintain a fixed-size ring of recent per-frame booleans and
// require a minimum count of True before reporting sustained voice).
type slidingWindow struct {
	buf       []bool
	size      int
	threshold int
	pos       int
	filled    int
	trueCount int
}

func newSlidingWindow(size, threshold int) *slidingWindow {
	if size < 1 {
		size = 1
	}
	if threshold < 1 {
		threshold = 1
	}
	if threshold > size {
		threshold = size
	}
	return &slidingWindow{
		buf:       make([]bool, size),
		size:      size,
		threshold: threshold,
	}
}

// push records one frame's raw classification and returns whether the
// window now counts as sustained voice.
func (w *slidingWindow) push(voiced bool) bool {
	if w.filled == w.size {
		if w.buf[w.pos] {
			w.trueCount--
		}
	} else {
		w.filled++
	}
	w.buf[w.pos] = voiced
	if voiced {
		w.trueCount++
	}
	w.pos = (w.pos + 1) % w.size
	return w.trueCount >= w.threshold
}

func (w *slidingWindow) reset() {
	for i := range w.buf {
		w.buf[i] = false
	}
	w.pos = 0
	w.filled = 0
	w.trueCount = 0
}

// Package dispatch implements the recognition dispatcher (spec.md section
// 4.5): on FLUSHING, run transcription and (optionally) speaker
// identification concurrently against the flushed utterance, each under
// its own timeout, and join the results. Grounded on the teacher's
// concurrent provider-call pattern in pkg/orchestrator/managed_stream.go,
// generalized from a single STT call to a bounded fan-out with
// golang.org/x/sync/errgroup (glyphoxa's dependency, not used by the
// teacher, whose fan-out was simpler).
package dispatch

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lokutor-ai/xiaozhi-edge-server/internal/config"
	"github.com/lokutor-ai/xiaozhi-edge-server/internal/corerrors"
	"github.com/lokutor-ai/xiaozhi-edge-server/internal/providers"
)

// Utterance is the transient value produced at EoS (spec.md §2): a flushed
// clip plus its bookkeeping, consumed exactly once.
type Utterance struct {
	SessionID     string
	UtteranceSeq  uint64
	PCM           []byte
	SampleRate    int
	StartTime     time.Time
	EndTime       time.Time
	StopCause     string
}

// Result is the dispatcher's joined output.
type Result struct {
	Transcript        string
	TranscriptErr     error
	SpeakerID         string
	SpeakerConfidence float64
	IdentifyErr       error
}

// Dispatcher runs the two-task fan-out for one utterance at a time; it
// holds no per-session state and is safe to share across sessions.
type Dispatcher struct {
	stt    providers.STTProvider
	ident  providers.IdentificationProvider
	cfg    config.DispatchConfig
}

// New builds a Dispatcher. ident may be nil when identification is
// disabled (spec.md treats speaker-ID as optional).
func New(stt providers.STTProvider, ident providers.IdentificationProvider, cfg config.DispatchConfig) *Dispatcher {
	return &Dispatcher{stt: stt, ident: ident, cfg: cfg}
}

// Dispatch runs transcription and identification concurrently against u,
// each bounded by its own configured timeout, and returns once both have
// settled (or the parent context is cancelled). A transcription failure is
// reported in Result.TranscriptErr rather than aborting identification, and
// vice versa — spec.md requires the two tasks to be independent.
func (d *Dispatcher) Dispatch(ctx context.Context, u Utterance) (Result, error) {
	if d.stt == nil {
		return Result{}, corerrors.ErrNilProvider
	}
	if len(u.PCM) == 0 {
		return Result{}, corerrors.ErrEmptyTranscript
	}

	var res Result
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		sctx, cancel := context.WithTimeout(gctx, d.cfg.TranscriptionTimeout)
		defer cancel()
		transcript, err := d.stt.Transcribe(sctx, u.PCM, u.SampleRate)
		if err != nil {
			res.TranscriptErr = err
			return nil // independent: do not cancel the identification task
		}
		res.Transcript = transcript
		return nil
	})

	if d.cfg.IdentificationEnabled && d.ident != nil {
		g.Go(func() error {
			ictx, cancel := context.WithTimeout(gctx, d.cfg.IdentificationTimeout)
			defer cancel()
			speakerID, confidence, err := d.ident.Identify(ictx, u.PCM, u.SampleRate)
			if err != nil {
				res.IdentifyErr = err
				return nil
			}
			res.SpeakerID = speakerID
			res.SpeakerConfidence = confidence
			return nil
		})
	}

	// errgroup.Wait only returns non-nil if a goroutine itself returned an
	// error; both goroutines above always return nil and instead record
	// failures on Result, so this never actually errors — but the check is
	// kept for the unlikely case a future task wants hard-fail semantics.
	if err := g.Wait(); err != nil {
		return res, err
	}

	if res.Transcript == "" && res.TranscriptErr == nil {
		res.TranscriptErr = corerrors.ErrEmptyTranscript
	}

	return res, nil
}

// Package endpointer decides when a streaming utterance is "done talking",
// so a session can finalize decoding and emit a result without waiting for
// the caller to close the audio stream. Rule names and trailing-silence
// field naming follow the sherpa-onnx endpoint-detection config this shop
// already uses for a different ASR backend (EnableEndpoint,
// Rule1MinTrailingSilence, Rule2MinTrailingSilence,
// Rule3MinUtteranceLength), adapted to this decoder's own frame/word
// bookkeeping rather than wrapping that engine directly.
package endpointer

import "github.com/ieee0824/lattice-decoder/acoustic"

// Config tunes the three endpoint rules, each independently sufficient to
// declare an utterance finished.
type Config struct {
	// Enabled turns endpoint detection off entirely (StopSession must then
	// be called explicitly by the caller).
	Enabled bool

	// Rule1MinTrailingSilence fires once this much trailing silence (in
	// seconds) has elapsed, regardless of utterance length.
	Rule1MinTrailingSilence float64

	// Rule2MinTrailingSilence is a shorter trailing-silence threshold that
	// only applies once the utterance has reached Rule3MinUtteranceLength.
	Rule2MinTrailingSilence float64

	// Rule3MinUtteranceLength gates Rule2: an utterance shorter than this
	// many frames never qualifies for the shorter Rule2 threshold, so a
	// few words followed by a brief pause don't end the utterance
	// prematurely. Named and scaled after sherpa-onnx's
	// OnlineRecognizerConfig.Rule3MinUtteranceLength (see
	// _examples/other_examples/NING-XUHUI-Chatbot-Go__recognizer.go).
	Rule3MinUtteranceLength float64

	// FrameShiftSec is the acoustic frame shift, used to convert the
	// decoder's frame counts into the above second-denominated rules.
	FrameShiftSec float64

	// SilencePhones marks which phonemes count as silence for trailing-
	// silence accounting.
	SilencePhones []acoustic.Phoneme
}

// DefaultConfig mirrors typical streaming-ASR endpoint tuning.
func DefaultConfig() Config {
	return Config{
		Enabled:                 true,
		Rule1MinTrailingSilence: 5.0,
		Rule2MinTrailingSilence: 1.0,
		Rule3MinUtteranceLength: 300,
		FrameShiftSec:           0.01,
		SilencePhones:           []acoustic.Phoneme{acoustic.PhonSil, acoustic.PhonSP},
	}
}

// EndPointer evaluates the three endpoint rules against the decoder's
// current counters. It holds no state of its own across calls; the caller
// (typically session.Session) is responsible for tracking how many frames
// have been decoded and how many of the most recent ones are trailing
// silence.
type EndPointer struct {
	cfg        Config
	silenceSet map[acoustic.Phoneme]bool
}

// New creates an EndPointer for cfg.
func New(cfg Config) *EndPointer {
	set := make(map[acoustic.Phoneme]bool, len(cfg.SilencePhones))
	for _, p := range cfg.SilencePhones {
		set[p] = true
	}
	return &EndPointer{cfg: cfg, silenceSet: set}
}

// IsSilence reports whether phoneme counts as silence for this config.
func (e *EndPointer) IsSilence(p acoustic.Phoneme) bool { return e.silenceSet[p] }

// Detected reports whether any endpoint rule fires given the decoder's
// current state: numFramesDecoded is the total number of frames consumed
// so far, trailingSilenceFrames is how many of the most recent frames
// produced no newly recognized word, and reachedFinal reports whether the
// current partial hypothesis could end on a WFST final state right now.
// All rules require reachedFinal, since finalizing without one yields no
// usable result regardless of how long the caller has been silent.
func (e *EndPointer) Detected(numFramesDecoded int, trailingSilenceFrames int, reachedFinal bool) bool {
	if !e.cfg.Enabled || !reachedFinal {
		return false
	}
	trailingSilenceSec := float64(trailingSilenceFrames) * e.cfg.FrameShiftSec
	if trailingSilenceSec >= e.cfg.Rule1MinTrailingSilence {
		return true
	}
	if float64(numFramesDecoded) >= e.cfg.Rule3MinUtteranceLength &&
		trailingSilenceSec >= e.cfg.Rule2MinTrailingSilence {
		return true
	}
	return false
}

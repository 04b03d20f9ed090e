// Package session wraps the decoder core into the streaming-utterance
// workflow a live recognizer actually drives: start, push audio as it
// arrives, poll for an endpoint, stop and pull the lattice out. It plays
// the role of Kaldi's online iot::Decoder wrapper around iot::DecCore,
// owning one Core/Scorer/EndPointer triple per in-flight utterance instead
// of leaving that bookkeeping to the caller.
package session

import (
	"github.com/ieee0824/lattice-decoder/acoustic"
	"github.com/ieee0824/lattice-decoder/decoder"
	"github.com/ieee0824/lattice-decoder/endpointer"
	"github.com/ieee0824/lattice-decoder/lattice"
	"github.com/ieee0824/lattice-decoder/scorer"
	"github.com/ieee0824/lattice-decoder/wfst"
)

// Config bundles the two sub-configs a Session owns.
type Config struct {
	Decoder  decoder.Config
	Endpoint endpointer.Config
}

// DefaultConfig mirrors decoder.DefaultConfig and endpointer.DefaultConfig.
func DefaultConfig() Config {
	return Config{Decoder: decoder.DefaultConfig(), Endpoint: endpointer.DefaultConfig()}
}

// Session decodes one utterance at a time against a fixed graph and
// acoustic model. It is not safe for concurrent use.
type Session struct {
	graph *wfst.Graph
	am    *acoustic.AcousticModel
	tm    *wfst.TransitionModel
	lm    decoder.LmDiff
	cfg   Config

	core *decoder.Core
	sc   *scorer.Scorer
	ep   *endpointer.EndPointer

	lastWordCount int
	lastWordFrame int
}

// New creates a Session over graph with no LM-diff FST attached.
func New(graph *wfst.Graph, am *acoustic.AcousticModel, tm *wfst.TransitionModel, cfg Config) *Session {
	return newSession(graph, am, tm, nil, cfg)
}

// NewWithLM creates a Session whose decoder core composes lm on the fly
// against graph's word labels.
func NewWithLM(graph *wfst.Graph, am *acoustic.AcousticModel, tm *wfst.TransitionModel, lm decoder.LmDiff, cfg Config) *Session {
	return newSession(graph, am, tm, lm, cfg)
}

func newSession(graph *wfst.Graph, am *acoustic.AcousticModel, tm *wfst.TransitionModel, lm decoder.LmDiff, cfg Config) *Session {
	var core *decoder.Core
	if lm != nil {
		core = decoder.NewWithLM(graph, lm, cfg.Decoder)
	} else {
		core = decoder.New(graph, cfg.Decoder)
	}
	return &Session{graph: graph, am: am, tm: tm, lm: lm, cfg: cfg, core: core}
}

// StartSession resets the Session to decode a new utterance from scratch.
func (s *Session) StartSession() error {
	s.sc = scorer.New(s.am, s.tm)
	s.ep = endpointer.New(s.cfg.Endpoint)
	s.lastWordCount = 0
	s.lastWordFrame = 0
	return s.core.InitDecoding()
}

// Advance feeds newly available feature frames and runs the decoder as far
// as they allow. isLast marks the last block of an utterance, so the
// scorer reports IsLastFrame correctly for the final frame.
func (s *Session) Advance(frames [][]float64, isLast bool) error {
	s.sc.AppendFrames(frames, isLast)
	if err := s.core.AdvanceDecoding(s.sc, -1); err != nil {
		return err
	}
	s.refreshEndpoint()
	return nil
}

// NumFramesDecoded returns how many frames the decoder core has consumed.
func (s *Session) NumFramesDecoded() int { return s.core.NumFramesDecoded() }

// EndpointDetected reports whether any configured endpoint rule currently
// fires, based on the partial best path observed after the last Advance.
func (s *Session) EndpointDetected() bool {
	numFrames := s.core.NumFramesDecoded()
	trailingSilenceFrames := numFrames - s.lastWordFrame
	return s.ep.Detected(numFrames, trailingSilenceFrames, s.core.ReachedFinal())
}

// ReachedFinal reports whether the current partial hypothesis could end on
// a WFST final state right now.
func (s *Session) ReachedFinal() bool { return s.core.ReachedFinal() }

// FinalRelativeCost returns the decoder core's final-relative-cost measure
// (see decoder.Core.FinalRelativeCost).
func (s *Session) FinalRelativeCost() float64 { return s.core.FinalRelativeCost() }

// StopSession finalizes decoding. No further Advance calls are valid until
// StartSession is called again.
func (s *Session) StopSession() { s.core.FinalizeDecoding() }

// GetLattice extracts the beam-pruned raw lattice accumulated so far as a
// CompactLattice, using decoder.Config.LatticeBeam as the pruning beam.
func (s *Session) GetLattice() (*lattice.CompactLattice, bool) {
	lat, ok := s.core.GetRawLatticePruned(s.core.Finalized(), s.cfg.Decoder.LatticeBeam)
	if !ok {
		return nil, false
	}
	return lattice.Compact(lat), true
}

// GetBestPath extracts the single best path decoded so far.
func (s *Session) GetBestPath() (*lattice.Lattice, bool) {
	return s.core.GetBestPath(s.core.Finalized())
}

// Words resolves an output label to word text through the session's graph.
func (s *Session) Words(olabel int32) string { return s.graph.Word(olabel) }

// refreshEndpoint re-derives the cheap partial hypothesis after every
// Advance: a new word recognized since the previous call resets the
// trailing-silence clock (lastWordFrame), a flat word count leaves it
// where it was. This mirrors how an online recognizer periodically
// re-derives its current best guess to drive endpointing without waiting
// for FinalizeDecoding; EndpointDetected then reads these counters
// directly against the endpointer's stateless rules.
func (s *Session) refreshEndpoint() {
	numFrames := s.core.NumFramesDecoded()
	if numFrames == 0 {
		return
	}
	wordCount := s.lastWordCount
	if lat, ok := s.core.GetBestPath(false); ok {
		wordCount = len(lattice.Compact(lat).BestWords(s.graph.Word))
	}
	if wordCount > s.lastWordCount {
		s.lastWordFrame = numFrames
	}
	s.lastWordCount = wordCount
}

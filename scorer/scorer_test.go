package scorer_test

import (
	"testing"

	"github.com/ieee0824/lattice-decoder/acoustic"
	"github.com/ieee0824/lattice-decoder/scorer"
	"github.com/ieee0824/lattice-decoder/wfst"
)

func tinyModel() (*acoustic.AcousticModel, *wfst.TransitionModel) {
	am := &acoustic.AcousticModel{Phonemes: make(map[acoustic.Phoneme]*acoustic.PhonemeHMM), FeatureDim: 1, NumMix: 1}
	am.Phonemes[acoustic.PhonA] = acoustic.NewPhonemeHMM(acoustic.PhonA, 1, 1)
	for i := 1; i <= acoustic.NumEmittingStates; i++ {
		am.Phonemes[acoustic.PhonA].States[i].GMM = acoustic.NewGMMWithParams(
			[][]float64{{0.0}}, [][]float64{{0.5}}, []float64{0.0})
	}
	return am, wfst.BuildTransitionModel(am)
}

func TestScorer_NumFramesReadyAndIsLastFrame(t *testing.T) {
	am, tm := tinyModel()
	s := scorer.New(am, tm)
	if s.NumFramesReady() != 0 {
		t.Fatalf("NumFramesReady before any AppendFrames = %d, want 0", s.NumFramesReady())
	}
	s.AppendFrames([][]float64{{0.0}, {0.1}}, false)
	if s.NumFramesReady() != 2 {
		t.Fatalf("NumFramesReady = %d, want 2", s.NumFramesReady())
	}
	if s.IsLastFrame(1) {
		t.Fatalf("IsLastFrame(1) = true before isLast block, want false")
	}
	s.AppendFrames([][]float64{{0.2}}, true)
	if !s.IsLastFrame(2) {
		t.Fatalf("IsLastFrame(2) = false after isLast block's last frame, want true")
	}
	if s.IsLastFrame(1) {
		t.Fatalf("IsLastFrame(1) = true, want false (not the last frame)")
	}
}

func TestScorer_LogLikelihoodIsMemoizedAndConsistent(t *testing.T) {
	am, tm := tinyModel()
	s := scorer.New(am, tm)
	s.AppendFrames([][]float64{{0.0}}, true)

	id := tm.TransitionID(acoustic.PhonA, 1)
	first := s.LogLikelihood(0, id)
	second := s.LogLikelihood(0, id)
	if first != second {
		t.Fatalf("LogLikelihood not stable across repeated calls: %v vs %v", first, second)
	}
}

func TestScorer_UnknownTransitionIDPanics(t *testing.T) {
	am, tm := tinyModel()
	s := scorer.New(am, tm)
	s.AppendFrames([][]float64{{0.0}}, true)

	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("LogLikelihood with unknown transition-id: want panic, got none")
		}
	}()
	s.LogLikelihood(0, 9999)
}

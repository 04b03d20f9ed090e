package decoder_test

import (
	"math"
	"testing"

	"github.com/ieee0824/lattice-decoder/decoder"
	"github.com/ieee0824/lattice-decoder/lattice"
	"github.com/ieee0824/lattice-decoder/scorer"
	"github.com/ieee0824/lattice-decoder/wfst"
)

// framesFor builds n frames of a single feature dimension, all at value v:
// with the tiny model's phonemes centered at 0.0 ("あ") and 5.0 ("い"), a
// block of frames at one of those means is scored overwhelmingly in favor
// of that word.
func framesFor(v float64, n int) [][]float64 {
	frames := make([][]float64, n)
	for i := range frames {
		frames[i] = []float64{v}
	}
	return frames
}

func newGraphAndScorer(t *testing.T) (*wfst.Graph, *wfst.TransitionModel, *scorer.Scorer) {
	t.Helper()
	am, _, dict := buildTinyModel()
	tm := wfst.BuildTransitionModel(am)
	g, err := wfst.FromLexicon(dict, tm, am)
	if err != nil {
		t.Fatalf("FromLexicon: %v", err)
	}
	return g, tm, scorer.New(am, tm)
}

func decodeFrames(t *testing.T, g *wfst.Graph, sc *scorer.Scorer, frames [][]float64) *lattice.Lattice {
	t.Helper()
	sc.AppendFrames(frames, true)

	core := decoder.New(g, decoder.DefaultConfig())
	if err := core.InitDecoding(); err != nil {
		t.Fatalf("InitDecoding: %v", err)
	}
	if err := core.AdvanceDecoding(sc, -1); err != nil {
		t.Fatalf("AdvanceDecoding: %v", err)
	}
	core.FinalizeDecoding()

	lat, ok := core.GetBestPath(true)
	if !ok {
		t.Fatalf("GetBestPath: no token reached the last frame (warnings: %v)", core.Warnings())
	}
	return lat
}

func TestDecode_SingleWord(t *testing.T) {
	g, _, sc := newGraphAndScorer(t)
	lat := decodeFrames(t, g, sc, framesFor(0.0, 5))

	words := lattice.Compact(lat).BestWords(g.Word)
	if len(words) != 1 || words[0] != "あ" {
		t.Fatalf("BestWords = %v, want [あ]", words)
	}
}

func TestDecode_TwoWords(t *testing.T) {
	g, _, sc := newGraphAndScorer(t)
	frames := append(framesFor(0.0, 5), framesFor(5.0, 5)...)
	lat := decodeFrames(t, g, sc, frames)

	words := lattice.Compact(lat).BestWords(g.Word)
	if len(words) != 2 || words[0] != "あ" || words[1] != "い" {
		t.Fatalf("BestWords = %v, want [あ い]", words)
	}
}

func TestDecode_ScoreFinite(t *testing.T) {
	g, _, sc := newGraphAndScorer(t)
	sc.AppendFrames(framesFor(0.0, 5), true)

	core := decoder.New(g, decoder.DefaultConfig())
	if err := core.InitDecoding(); err != nil {
		t.Fatalf("InitDecoding: %v", err)
	}
	if err := core.AdvanceDecoding(sc, -1); err != nil {
		t.Fatalf("AdvanceDecoding: %v", err)
	}
	core.FinalizeDecoding()

	if rel := core.FinalRelativeCost(); math.IsInf(rel, 1) {
		t.Fatalf("FinalRelativeCost is +Inf, expected a token to reach a final state")
	}
	_, finalCost := core.BestPathEnd(true)
	if math.IsInf(finalCost, 1) || math.IsNaN(finalCost) {
		t.Fatalf("final cost not finite: %v", finalCost)
	}
}

func TestDecode_NoFramesDecodedYieldsNoAdvance(t *testing.T) {
	g, _, sc := newGraphAndScorer(t)
	// No AppendFrames call: NumFramesReady() == 0.
	core := decoder.New(g, decoder.DefaultConfig())
	if err := core.InitDecoding(); err != nil {
		t.Fatalf("InitDecoding: %v", err)
	}
	if err := core.AdvanceDecoding(sc, -1); err != nil {
		t.Fatalf("AdvanceDecoding with zero ready frames: %v", err)
	}
	if core.NumFramesDecoded() != 0 {
		t.Fatalf("NumFramesDecoded = %d, want 0", core.NumFramesDecoded())
	}
}

func TestDecode_AdvanceAfterFinalizeIsContractError(t *testing.T) {
	g, _, sc := newGraphAndScorer(t)
	sc.AppendFrames(framesFor(0.0, 3), true)

	core := decoder.New(g, decoder.DefaultConfig())
	if err := core.InitDecoding(); err != nil {
		t.Fatalf("InitDecoding: %v", err)
	}
	if err := core.AdvanceDecoding(sc, -1); err != nil {
		t.Fatalf("AdvanceDecoding: %v", err)
	}
	core.FinalizeDecoding()

	err := core.AdvanceDecoding(sc, -1)
	if err == nil {
		t.Fatalf("AdvanceDecoding after FinalizeDecoding: want error, got nil")
	}
	var ce *decoder.ContractError
	if !asContractError(err, &ce) {
		t.Fatalf("AdvanceDecoding after FinalizeDecoding: want *decoder.ContractError, got %T (%v)", err, err)
	}
}

func asContractError(err error, target **decoder.ContractError) bool {
	ce, ok := err.(*decoder.ContractError)
	if ok {
		*target = ce
	}
	return ok
}

func TestDecode_MaxActivePrunesButStillFindsBestWord(t *testing.T) {
	g, _, sc := newGraphAndScorer(t)
	sc.AppendFrames(framesFor(0.0, 5), true)

	cfg := decoder.DefaultConfig()
	cfg.MaxActive = 1

	core := decoder.New(g, cfg)
	if err := core.InitDecoding(); err != nil {
		t.Fatalf("InitDecoding: %v", err)
	}
	if err := core.AdvanceDecoding(sc, -1); err != nil {
		t.Fatalf("AdvanceDecoding: %v", err)
	}
	core.FinalizeDecoding()

	lat, ok := core.GetBestPath(true)
	if !ok {
		t.Fatalf("GetBestPath with MaxActive=1: no token reached the last frame")
	}
	words := lattice.Compact(lat).BestWords(g.Word)
	if len(words) != 1 || words[0] != "あ" {
		t.Fatalf("BestWords with MaxActive=1 = %v, want [あ]", words)
	}
}

func TestDecode_BestPathMatchesRawLatticeShortestPath(t *testing.T) {
	g, _, sc := newGraphAndScorer(t)
	core := decoder.New(g, decoder.DefaultConfig())
	if err := core.InitDecoding(); err != nil {
		t.Fatalf("InitDecoding: %v", err)
	}
	sc.AppendFrames(append(framesFor(0.0, 5), framesFor(5.0, 5)...), true)
	if err := core.AdvanceDecoding(sc, -1); err != nil {
		t.Fatalf("AdvanceDecoding: %v", err)
	}
	core.FinalizeDecoding()

	if err := core.TestGetBestPath(true); err != nil {
		t.Fatalf("TestGetBestPath: %v", err)
	}
}

func TestDecode_RawLatticeHasOneStatePerFrontierToken(t *testing.T) {
	g, _, sc := newGraphAndScorer(t)
	sc.AppendFrames(framesFor(0.0, 3), true)

	core := decoder.New(g, decoder.DefaultConfig())
	if err := core.InitDecoding(); err != nil {
		t.Fatalf("InitDecoding: %v", err)
	}
	if err := core.AdvanceDecoding(sc, -1); err != nil {
		t.Fatalf("AdvanceDecoding: %v", err)
	}
	core.FinalizeDecoding()

	lat, ok := core.GetRawLattice(true)
	if !ok {
		t.Fatalf("GetRawLattice: no token reached the last frame")
	}
	if lat.NumStates() == 0 {
		t.Fatalf("GetRawLattice produced an empty lattice")
	}
}

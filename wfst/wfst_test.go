package wfst_test

import (
	"bytes"
	"math"
	"testing"

	"github.com/ieee0824/lattice-decoder/acoustic"
	"github.com/ieee0824/lattice-decoder/lexicon"
	"github.com/ieee0824/lattice-decoder/wfst"
)

func TestBuilder_StateAndArc(t *testing.T) {
	b := wfst.NewBuilder()
	s0 := b.AddState()
	s1 := b.AddState()
	b.SetStart(s0)
	b.SetFinal(s1, 1.5)
	b.AddArc(s0, wfst.Arc{ILabel: 1, OLabel: 2, Weight: 0.5, Dest: s1})

	g := b.Build()
	if g.Start() != s0 {
		t.Fatalf("Start() = %d, want %d", g.Start(), s0)
	}
	if g.Final(s1) != 1.5 {
		t.Fatalf("Final(s1) = %v, want 1.5", g.Final(s1))
	}
	if !math.IsInf(g.Final(s0), 1) {
		t.Fatalf("Final(s0) = %v, want +Inf", g.Final(s0))
	}
	base, n := g.State(s0)
	if n != 1 {
		t.Fatalf("State(s0) numArcs = %d, want 1", n)
	}
	arc := g.Arc(base)
	if arc.ILabel != 1 || arc.OLabel != 2 || arc.Dest != s1 {
		t.Fatalf("Arc(base) = %+v, unexpected", arc)
	}
}

func TestBuilder_WordIDStableAndOneIndexed(t *testing.T) {
	b := wfst.NewBuilder()
	id1 := b.WordID("あ")
	id2 := b.WordID("い")
	id1Again := b.WordID("あ")
	if id1 != id1Again {
		t.Fatalf("WordID not stable across calls: %d vs %d", id1, id1Again)
	}
	if id1 == id2 {
		t.Fatalf("distinct words got the same id")
	}
	if id1 != 1 {
		t.Fatalf("first word id = %d, want 1 (0 reserved for Epsilon)", id1)
	}

	g := b.Build()
	if g.Word(id1) != "あ" || g.Word(id2) != "い" {
		t.Fatalf("Word() round trip failed")
	}
	if g.Word(wfst.Epsilon) != "" {
		t.Fatalf("Word(Epsilon) = %q, want empty", g.Word(wfst.Epsilon))
	}
}

func tinyAMAndDict() (*acoustic.AcousticModel, *wfst.TransitionModel) {
	am := &acoustic.AcousticModel{Phonemes: make(map[acoustic.Phoneme]*acoustic.PhonemeHMM), FeatureDim: 1, NumMix: 1}
	am.Phonemes[acoustic.PhonA] = acoustic.NewPhonemeHMM(acoustic.PhonA, 1, 1)
	am.Phonemes[acoustic.PhonI] = acoustic.NewPhonemeHMM(acoustic.PhonI, 1, 1)
	return am, wfst.BuildTransitionModel(am)
}

func TestBuildTransitionModel_AssignsOnePerEmittingState(t *testing.T) {
	am, tm := tinyAMAndDict()
	seen := make(map[int32]bool)
	for _, ph := range []acoustic.Phoneme{acoustic.PhonA, acoustic.PhonI} {
		for s := 1; s <= acoustic.NumEmittingStates; s++ {
			id := tm.TransitionID(ph, s)
			if seen[id] {
				t.Fatalf("transition id %d reused across (phoneme,state) pairs", id)
			}
			seen[id] = true
			entry := tm.Entry(id)
			if entry.Phoneme != ph || entry.StateIdx != s {
				t.Fatalf("Entry(%d) = %+v, want phoneme %q state %d", id, entry, ph, s)
			}
		}
	}
	if got, want := tm.NumTransitionIDs(), int32(2*acoustic.NumEmittingStates); got != want {
		t.Fatalf("NumTransitionIDs = %d, want %d", got, want)
	}
	_ = am
}

func TestFromLexicon_WordLoopReachesFinalAndBack(t *testing.T) {
	am, tm := tinyAMAndDict()
	dict := lexicon.NewDictionary()
	dict.Add("あ", "ア", []acoustic.Phoneme{acoustic.PhonA})
	dict.Add("い", "イ", []acoustic.Phoneme{acoustic.PhonI})

	g, err := wfst.FromLexicon(dict, tm, am)
	if err != nil {
		t.Fatalf("FromLexicon: %v", err)
	}
	if g.Start() < 0 {
		t.Fatalf("no start state")
	}
	if math.IsInf(g.Final(g.Start()), 1) {
		t.Fatalf("start state (the word loop) is not final")
	}

	words := make(map[string]bool)
	for _, w := range g.Words() {
		if w != "" {
			words[w] = true
		}
	}
	if !words["あ"] || !words["い"] {
		t.Fatalf("Words() = %v, want both あ and い", g.Words())
	}
}

func TestFromLexicon_SkipsPronunciationMissingFromAM(t *testing.T) {
	am := &acoustic.AcousticModel{Phonemes: map[acoustic.Phoneme]*acoustic.PhonemeHMM{
		acoustic.PhonA: acoustic.NewPhonemeHMM(acoustic.PhonA, 1, 1),
	}, FeatureDim: 1, NumMix: 1}
	tm := wfst.BuildTransitionModel(am)

	dict := lexicon.NewDictionary()
	dict.Add("あ", "ア", []acoustic.Phoneme{acoustic.PhonA})
	dict.Add("い", "イ", []acoustic.Phoneme{acoustic.PhonI}) // PhonI missing from am

	g, err := wfst.FromLexicon(dict, tm, am)
	if err != nil {
		t.Fatalf("FromLexicon: %v", err)
	}
	words := make(map[string]bool)
	for _, w := range g.Words() {
		if w != "" {
			words[w] = true
		}
	}
	if !words["あ"] {
		t.Fatalf("expected あ to survive, got %v", g.Words())
	}
	if words["い"] {
		t.Fatalf("expected い to be skipped (missing phoneme), got %v", g.Words())
	}
}

func TestFromLexicon_AllPronunciationsMissingIsError(t *testing.T) {
	am := &acoustic.AcousticModel{Phonemes: map[acoustic.Phoneme]*acoustic.PhonemeHMM{}, FeatureDim: 1, NumMix: 1}
	tm := wfst.BuildTransitionModel(am)

	dict := lexicon.NewDictionary()
	dict.Add("あ", "ア", []acoustic.Phoneme{acoustic.PhonA})

	if _, err := wfst.FromLexicon(dict, tm, am); err == nil {
		t.Fatalf("FromLexicon with no usable pronunciation: want error, got nil")
	}
}

func TestGraph_SaveLoadRoundTrip(t *testing.T) {
	am, tm := tinyAMAndDict()
	dict := lexicon.NewDictionary()
	dict.Add("あ", "ア", []acoustic.Phoneme{acoustic.PhonA})
	g, err := wfst.FromLexicon(dict, tm, am)
	if err != nil {
		t.Fatalf("FromLexicon: %v", err)
	}

	var buf bytes.Buffer
	if err := g.Save(&buf); err != nil {
		t.Fatalf("Save: %v", err)
	}
	g2, err := wfst.Load(&buf)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if g2.Start() != g.Start() || g2.NumStates() != g.NumStates() {
		t.Fatalf("round trip mismatch: start %d/%d states %d/%d", g.Start(), g2.Start(), g.NumStates(), g2.NumStates())
	}
	if g2.Word(1) != g.Word(1) {
		t.Fatalf("round trip word table mismatch: %q vs %q", g.Word(1), g2.Word(1))
	}
}

// Package lmdiff adapts an n-gram language model into the decoder core's
// LmDiff contract: a lazily-expanded FST over word history states, queried
// one arc at a time instead of precomputed, so arbitrarily long n-gram
// contexts stay cheap regardless of vocabulary size.
//
// The decoder core composes this against the base graph's word labels on
// the fly to let an online first pass run on a small or no grammar while
// a full n-gram model supplies the real word costs — the role Kaldi's
// lm-diff FST plays when swapping a bigger LM in for a smaller one already
// compiled into the graph. This adapter does not subtract an old LM's
// score (the base word-loop graph in this codebase carries none), so it
// behaves as the new LM's full cost rather than a genuine difference.
package lmdiff

import (
	"strings"

	"github.com/ieee0824/lattice-decoder/decoder"
	"github.com/ieee0824/lattice-decoder/internal/mathutil"
	"github.com/ieee0824/lattice-decoder/language"
)

const sentenceEnd = "</s>"

// Diff adapts a language.NGramModel into decoder.LmDiff. States are
// word-history contexts, truncated to the model's order, minted on first
// visit.
type Diff struct {
	lm       *language.NGramModel
	wordText func(olabel int32) string
	scale    float64

	histories []history
	index     map[string]int32
}

type history struct {
	words []string
}

// New creates a Diff over lm. wordText resolves a graph output label back
// to the word text the n-gram model keys on; it is called once per
// GetArc, not cached, since the base graph's vocabulary is expected to be
// small relative to decoding work.
func New(lm *language.NGramModel, wordText func(olabel int32) string) *Diff {
	d := &Diff{lm: lm, wordText: wordText, scale: 1.0, index: make(map[string]int32)}
	d.stateFor([]string{"<s>"})
	return d
}

// SetScale sets the language-model weight applied to every arc and final
// cost this Diff produces (Kaldi's familiar acoustic/LM scale tradeoff).
// The default is 1.0.
func (d *Diff) SetScale(scale float64) { d.scale = scale }

func historyKey(words []string) string { return strings.Join(words, "\x00") }

// stateFor returns the state id for words, minting a new one if this exact
// truncated history hasn't been seen.
func (d *Diff) stateFor(words []string) int32 {
	key := historyKey(words)
	if id, ok := d.index[key]; ok {
		return id
	}
	id := int32(len(d.histories))
	d.histories = append(d.histories, history{words: append([]string(nil), words...)})
	d.index[key] = id
	return id
}

// truncate keeps at most order-1 most recent words of context, matching
// how language.NGramModel.LogProb only ever looks at the last two words.
func truncate(words []string, order int) []string {
	maxCtx := order - 1
	if maxCtx < 1 {
		maxCtx = 1
	}
	if len(words) <= maxCtx {
		return words
	}
	return words[len(words)-maxCtx:]
}

// Start implements decoder.LmDiff: the initial state is the sentence-start
// context.
func (d *Diff) Start() int32 { return 0 }

// Final implements decoder.LmDiff: the cost of ending the sentence from
// state's history.
func (d *Diff) Final(state int32) float64 {
	h := d.histories[state]
	return -d.lm.LogProb(h.words, sentenceEnd) * d.scale
}

// GetArc implements decoder.LmDiff. ok is false if olabel's word has never
// been seen in the model's unigram vocabulary at all — a genuine mismatch
// between the decoding graph's vocabulary and this LM's.
func (d *Diff) GetArc(state int32, olabel int32) (decoder.LmArc, bool) {
	word := d.wordText(olabel)
	if word == "" {
		return decoder.LmArc{}, false
	}
	h := d.histories[state]
	logProb := d.lm.LogProb(h.words, word)
	if logProb <= mathutil.LogZero {
		return decoder.LmArc{}, false
	}
	next := truncate(append(append([]string(nil), h.words...), word), d.lm.Order)
	return decoder.LmArc{
		NextState: d.stateFor(next),
		OLabel:    olabel,
		Weight:    -logProb * d.scale,
	}, true
}

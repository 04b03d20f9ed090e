package decoder_test

import (
	"strings"

	"github.com/ieee0824/lattice-decoder/acoustic"
	"github.com/ieee0824/lattice-decoder/language"
	"github.com/ieee0824/lattice-decoder/lexicon"
)

// buildTinyModel creates a minimal model for testing: vocabulary "あ"
// (phoneme [a]) and "い" (phoneme [i]), each a single-emitting-frame HMM
// with a 1-D Gaussian centered far enough apart that a handful of frames
// unambiguously picks one word over the other.
func buildTinyModel() (*acoustic.AcousticModel, *language.NGramModel, *lexicon.Dictionary) {
	dim, numMix := 1, 1

	am := &acoustic.AcousticModel{
		Phonemes:   make(map[acoustic.Phoneme]*acoustic.PhonemeHMM),
		FeatureDim: dim,
		NumMix:     numMix,
	}
	am.Phonemes[acoustic.PhonA] = acoustic.NewPhonemeHMM(acoustic.PhonA, dim, numMix)
	setHMMGMM(am.Phonemes[acoustic.PhonA], 0.0)
	am.Phonemes[acoustic.PhonI] = acoustic.NewPhonemeHMM(acoustic.PhonI, dim, numMix)
	setHMMGMM(am.Phonemes[acoustic.PhonI], 5.0)

	arpa := `\data\
ngram 1=4
ngram 2=4

\1-grams:
-1.0	</s>
-1.0	<s>	0.0
-0.5	あ	0.0
-0.5	い	0.0

\2-grams:
-0.3	<s>	あ
-0.3	<s>	い
-0.3	あ	い
-0.3	い	あ

\end\
`
	lm, err := language.LoadARPA(strings.NewReader(arpa))
	if err != nil {
		panic(err)
	}

	dict := lexicon.NewDictionary()
	dict.Add("あ", "ア", []acoustic.Phoneme{acoustic.PhonA})
	dict.Add("い", "イ", []acoustic.Phoneme{acoustic.PhonI})

	return am, lm, dict
}

func setHMMGMM(hmm *acoustic.PhonemeHMM, mean float64) {
	for i := 1; i <= acoustic.NumEmittingStates; i++ {
		hmm.States[i].GMM = acoustic.NewGMMWithParams(
			[][]float64{{mean}},
			[][]float64{{0.5}},
			[]float64{0.0},
		)
	}
}

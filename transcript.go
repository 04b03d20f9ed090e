package transcript

import (
	"fmt"
	"math"
	"os"

	"github.com/ieee0824/lattice-decoder/acoustic"
	"github.com/ieee0824/lattice-decoder/audio"
	"github.com/ieee0824/lattice-decoder/decoder"
	"github.com/ieee0824/lattice-decoder/endpointer"
	"github.com/ieee0824/lattice-decoder/feature"
	"github.com/ieee0824/lattice-decoder/language"
	"github.com/ieee0824/lattice-decoder/lattice"
	"github.com/ieee0824/lattice-decoder/lexicon"
	"github.com/ieee0824/lattice-decoder/lmdiff"
	"github.com/ieee0824/lattice-decoder/session"
	"github.com/ieee0824/lattice-decoder/wfst"
)

// Recognizer is the top-level speech recognizer: a fixed acoustic model,
// language model and dictionary compiled once into a decoding graph, then
// reused to decode any number of independent utterances.
type Recognizer struct {
	AM         *acoustic.AcousticModel
	LM         *language.NGramModel
	Dict       *lexicon.Dictionary
	FeatCfg    feature.Config
	SessCfg    session.Config
	OOVLogProb float64 // OOV unigram log10 probability (e.g. -5.0). 0 = disable.
	LMWeight   float64 // language-model scale applied to the lmdiff FST, default 1.0
	UseVTLN    bool    // enable VTLN speaker normalization
	dnnPending *acoustic.DNN

	graph *wfst.Graph
	tm    *wfst.TransitionModel
}

// Result is one utterance's recognition output.
type Result struct {
	Words     []string
	Lattice   *lattice.CompactLattice
	FinalCost float64
}

// Option configures a Recognizer.
type Option func(*Recognizer)

// WithFeatureConfig sets custom MFCC parameters.
func WithFeatureConfig(cfg feature.Config) Option {
	return func(r *Recognizer) { r.FeatCfg = cfg }
}

// WithDecoderConfig sets custom decoder core parameters.
func WithDecoderConfig(cfg decoder.Config) Option {
	return func(r *Recognizer) { r.SessCfg.Decoder = cfg }
}

// WithEndpointConfig sets custom endpoint-detection parameters.
func WithEndpointConfig(cfg endpointer.Config) Option {
	return func(r *Recognizer) { r.SessCfg.Endpoint = cfg }
}

// WithOOVLogProb sets the OOV unigram probability in log10 (e.g. -5.0).
func WithOOVLogProb(log10prob float64) Option {
	return func(r *Recognizer) { r.OOVLogProb = log10prob }
}

// WithLMWeight sets the language-model scale factor (default 1.0).
func WithLMWeight(weight float64) Option {
	return func(r *Recognizer) { r.LMWeight = weight }
}

// WithVTLN enables or disables VTLN speaker normalization.
func WithVTLN(enabled bool) Option {
	return func(r *Recognizer) { r.UseVTLN = enabled }
}

// WithDNN loads a DNN model and attaches it to the acoustic model.
func WithDNN(dnnPath string) Option {
	return func(r *Recognizer) {
		if dnnPath == "" {
			return
		}
		f, err := os.Open(dnnPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: open DNN: %v\n", err)
			return
		}
		defer f.Close()
		dnn, err := acoustic.LoadDNN(f)
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: load DNN: %v\n", err)
			return
		}
		r.dnnPending = dnn
	}
}

// NewRecognizer creates a Recognizer from model files.
func NewRecognizer(amPath, lmPath, dictPath string, opts ...Option) (*Recognizer, error) {
	r := &Recognizer{
		FeatCfg:  feature.DefaultConfig(),
		SessCfg:  session.DefaultConfig(),
		LMWeight: 1.0,
	}
	for _, opt := range opts {
		opt(r)
	}

	amFile, err := os.Open(amPath)
	if err != nil {
		return nil, fmt.Errorf("open acoustic model: %w", err)
	}
	defer amFile.Close()
	r.AM, err = acoustic.Load(amFile)
	if err != nil {
		return nil, fmt.Errorf("load acoustic model: %w", err)
	}

	lmFile, err := os.Open(lmPath)
	if err != nil {
		return nil, fmt.Errorf("open language model: %w", err)
	}
	defer lmFile.Close()
	r.LM, err = language.LoadARPA(lmFile)
	if err != nil {
		return nil, fmt.Errorf("load language model: %w", err)
	}

	r.Dict, err = lexicon.LoadFile(dictPath)
	if err != nil {
		return nil, fmt.Errorf("load dictionary: %w", err)
	}

	if r.OOVLogProb != 0 {
		r.LM.OOVLogProb = r.OOVLogProb * math.Ln10 // convert log10 to natural log
	}

	if r.dnnPending != nil {
		r.AM.DNN = r.dnnPending
		r.dnnPending = nil
	}

	if err := r.compile(); err != nil {
		return nil, err
	}
	return r, nil
}

// NewRecognizerFromModels creates a Recognizer from pre-loaded models.
func NewRecognizerFromModels(am *acoustic.AcousticModel, lm *language.NGramModel, dict *lexicon.Dictionary, opts ...Option) (*Recognizer, error) {
	r := &Recognizer{
		AM:       am,
		LM:       lm,
		Dict:     dict,
		FeatCfg:  feature.DefaultConfig(),
		SessCfg:  session.DefaultConfig(),
		LMWeight: 1.0,
	}
	for _, opt := range opts {
		opt(r)
	}
	if err := r.compile(); err != nil {
		return nil, err
	}
	return r, nil
}

// compile builds the decoding graph and transition-id assignment from AM
// and Dict. It must run whenever either changes.
func (r *Recognizer) compile() error {
	r.tm = wfst.BuildTransitionModel(r.AM)
	g, err := wfst.FromLexicon(r.Dict, r.tm, r.AM)
	if err != nil {
		return fmt.Errorf("compile decoding graph: %w", err)
	}
	r.graph = g
	return nil
}

// newSession builds a session.Session for one utterance, attaching an
// lmdiff.Diff over r.LM when one is loaded so word costs reflect the
// n-gram model rather than the graph's uniform word-loop weights.
func (r *Recognizer) newSession() *session.Session {
	if r.LM != nil {
		diff := lmdiff.New(r.LM, r.graph.Word)
		diff.SetScale(r.LMWeight)
		return session.NewWithLM(r.graph, r.AM, r.tm, diff, r.SessCfg)
	}
	return session.New(r.graph, r.AM, r.tm, r.SessCfg)
}

// RecognizeFile runs recognition on a WAV file and returns the result.
func (r *Recognizer) RecognizeFile(wavPath string) (*Result, error) {
	samples, _, err := audio.ReadWAVFile(wavPath)
	if err != nil {
		return nil, fmt.Errorf("read WAV: %w", err)
	}
	return r.RecognizeSamples(samples)
}

// RecognizeSamples runs recognition on raw audio samples, decoding the
// whole utterance in one shot (no streaming/endpointing across calls).
func (r *Recognizer) RecognizeSamples(samples []float64) (*Result, error) {
	var features [][]float64
	var err error
	if r.UseVTLN {
		scorer := func(feats [][]float64) float64 {
			return acoustic.FrameLikelihood(r.AM, feats)
		}
		features, _, err = feature.ExtractWithVTLN(samples, r.FeatCfg, scorer)
	} else {
		features, err = feature.Extract(samples, r.FeatCfg)
	}
	if err != nil {
		return nil, fmt.Errorf("extract features: %w", err)
	}

	sess := r.newSession()
	if err := sess.StartSession(); err != nil {
		return nil, fmt.Errorf("start decoding session: %w", err)
	}
	if err := sess.Advance(features, true); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	sess.StopSession()

	result := &Result{FinalCost: sess.FinalRelativeCost()}
	if lat, ok := sess.GetLattice(); ok {
		result.Lattice = lat
		result.Words = lat.BestWords(sess.Words)
	}
	return result, nil
}

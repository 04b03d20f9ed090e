package decoder

import "errors"

var (
	// ErrDecodingFinalized is wrapped by ContractError when a caller
	// invokes an advance-time method after FinalizeDecoding.
	ErrDecodingFinalized = errors.New("decoding already finalized")

	// ErrNoStartState is wrapped by GraphError when the graph reports no
	// start state at InitDecoding.
	ErrNoStartState = errors.New("wfst has no start state")

	// ErrEpsilonCycle is wrapped by GraphError when non-emitting expansion
	// fails to reach a fixed point, meaning the graph has an epsilon cycle
	// (never allowed in a decoding graph).
	ErrEpsilonCycle = errors.New("epsilon cycle detected in decoding graph")

	// ErrMissingLmArc is wrapped by GraphError when an LM-diff FST is
	// attached but has no arc for a word the base graph can emit: a
	// configuration mismatch between the graph and the LM-diff FST.
	ErrMissingLmArc = errors.New("lm-diff fst has no arc for a word the graph can produce")
)

// ContractError reports a violation of the core's calling-convention
// contract (calling a method out of order, or past finalization) rather
// than a problem with the decoding graph itself.
type ContractError struct {
	Op  string
	Err error
}

func (e *ContractError) Error() string { return "decoder: " + e.Op + ": " + e.Err.Error() }
func (e *ContractError) Unwrap() error { return e.Err }

// GraphError reports a problem with the WFST or LM-diff FST supplied by the
// caller: missing states, missing arcs, or a structural defect (an epsilon
// cycle) that the core cannot safely route around.
type GraphError struct {
	Op  string
	Err error
}

func (e *GraphError) Error() string { return "decoder: " + e.Op + ": " + e.Err.Error() }
func (e *GraphError) Unwrap() error { return e.Err }

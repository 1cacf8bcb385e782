package careflow

import "fmt"

// =============================================================================
// Node Names
// =============================================================================

const (
	// NodeDraft writes or revises the exercise draft.
	NodeDraft = "draft"

	// NodeSafetyReview screens the draft for safety.
	NodeSafetyReview = "safety_review"

	// NodeClinicalReview evaluates empathy and clinical quality.
	NodeClinicalReview = "clinical_review"

	// NodeSupervise routes the thread after both reviews are in.
	NodeSupervise = "supervise"

	// NodeHumanGate marks the suspension point for interactive threads.
	// It is not dispatchable: the runner parks the thread there and
	// ApplyDecision moves it forward when a reviewer responds.
	NodeHumanGate = "human_gate"

	// END terminates the run loop.
	END = "END"
)

// =============================================================================
// Graph
// =============================================================================

// Graph holds the dispatchable nodes with their middleware applied.
// Routing lives in NextNode, which derives the next node purely from
// state, so a thread reloaded from its latest checkpoint continues
// exactly where a live one would.
type Graph struct {
	nodes map[string]NodeFunc
	cfg   NodeConfig
}

// NewGraph builds the exercise workflow graph. Every node is wrapped
// with retry, transcript, and timing middleware.
func NewGraph(cfg NodeConfig) *Graph {
	g := &Graph{
		nodes: make(map[string]NodeFunc),
		cfg:   cfg,
	}
	g.register(NodeDraft, DraftNode)
	g.register(NodeSafetyReview, SafetyReviewNode)
	g.register(NodeClinicalReview, ClinicalReviewNode)
	g.register(NodeSupervise, SuperviseNode)
	return g
}

func (g *Graph) register(name string, fn NodeFunc) {
	g.nodes[name] = WithTiming(WithTranscript(WithRetry(fn, name, g.cfg.MaxNodeRetries, g.cfg.RetryBase), name), name)
}

// Node returns the named node with middleware applied.
func (g *Graph) Node(name string) (NodeFunc, bool) {
	fn, ok := g.nodes[name]
	return fn, ok
}

// Validate checks that every node NextNode can route to is registered.
func (g *Graph) Validate() error {
	for _, name := range []string{NodeDraft, NodeSafetyReview, NodeClinicalReview, NodeSupervise} {
		if _, ok := g.nodes[name]; !ok {
			return fmt.Errorf("graph missing node %q", name)
		}
	}
	return nil
}

// =============================================================================
// Routing
// =============================================================================

// NextNode returns the node that should run next for the given state.
// The safety review always precedes the clinical review, and the
// supervisor runs only once both are present for the current draft.
func NextNode(state State) string {
	switch state.Status {
	case StatusDrafting, StatusRevisionNeeded:
		return NodeDraft

	case StatusAwaitingReview:
		if state.SafetyReview == nil {
			return NodeSafetyReview
		}
		if state.ClinicalReview == nil {
			return NodeClinicalReview
		}
		return NodeSupervise

	case StatusPendingHuman:
		return NodeHumanGate

	case StatusCompleted, StatusError:
		return END

	default:
		return END
	}
}

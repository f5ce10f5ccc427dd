package model

// SessionState is the terminal or in-progress state of an ask session.
type SessionState string

const (
	StateRunning   SessionState = "running"
	StateComplete  SessionState = "complete"
	StateFailed    SessionState = "failed"
	StateCancelled SessionState = "cancelled"
)

// SubQuestion is one node of the Self-Ask decomposition tree. Level-1
// questions have ParentID -1; level-2/3 questions reference the arena
// index of their ancestor.
type SubQuestion struct {
	Level    int    `json:"level"`
	Text     string `json:"text"`
	ParentID int    `json:"parent_id"`
}

// AnswerNode holds the evidence and synthesis for one sub-question.
// Nodes live in the session arena; ID is the arena index.
type AnswerNode struct {
	ID        int             `json:"id"`
	Question  SubQuestion     `json:"question"`
	Evidence  RetrievalResult `json:"evidence"`
	Synthesis string          `json:"synthesis"`
	// GapNote records a soft failure (no evidence, skipped follow-up,
	// LLM error) that did not abort the session.
	GapNote string `json:"gap_note,omitempty"`
}

func (n AnswerNode) Succeeded() bool {
	return n.Synthesis != ""
}

// Session is one end-to-end query lifecycle. Nodes are ordered level 1
// first, then level 2, then the single level-3 synthesis; within a level
// they keep generation order.
type Session struct {
	ID            string       `json:"id"`
	Query         string       `json:"query"`
	State         SessionState `json:"state"`
	Nodes         []AnswerNode `json:"nodes"`
	FailureReason string       `json:"failure_reason,omitempty"`
}

// NodesAtLevel filters the arena by level, preserving order.
func (s *Session) NodesAtLevel(level int) []AnswerNode {
	var out []AnswerNode
	for _, n := range s.Nodes {
		if n.Question.Level == level {
			out = append(out, n)
		}
	}
	return out
}

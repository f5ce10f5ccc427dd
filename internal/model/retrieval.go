package model

// ScoredChunk is one entry of a retrieval result. Score is cosine
// similarity, rank starts at 1.
type ScoredChunk struct {
	Chunk Chunk   `json:"chunk"`
	Score float32 `json:"score"`
	Rank  int     `json:"rank"`
}

// RetrievalResult is ordered strictly descending by score with no
// duplicate chunk ids. An empty result means no evidence, not an error.
type RetrievalResult struct {
	Query  string        `json:"query"`
	Chunks []ScoredChunk `json:"chunks"`
}

func (r RetrievalResult) Empty() bool {
	return len(r.Chunks) == 0
}

// Citations returns the chunk ids in rank order, for display alongside
// a synthesized answer.
func (r RetrievalResult) Citations() []string {
	ids := make([]string, 0, len(r.Chunks))
	for _, sc := range r.Chunks {
		ids = append(ids, sc.Chunk.ID)
	}
	return ids
}

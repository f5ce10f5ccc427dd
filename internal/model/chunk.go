package model

// Chunk is a bounded-size unit of source text prepared for embedding.
// Chunks are immutable once produced by the chunker.
type Chunk struct {
	ID         string `json:"id"`
	DocumentID string `json:"document_id"`
	Theme      string `json:"theme"`
	Text       string `json:"text"`
	TokenCount int    `json:"token_count"`
	Position   int    `json:"position"`
}

// ChunkEmbedding pairs a chunk with its dense vector. The vector dimension
// is fixed by the encoder model and never changes after insertion.
type ChunkEmbedding struct {
	ChunkID   string    `json:"chunk_id"`
	Embedding []float32 `json:"embedding"`
}

package model

// CorpusRecord is one entry of the versioned corpus snapshot delivered by
// the data-collection pipeline.
type CorpusRecord struct {
	DocumentID string `json:"source_document_id"`
	Theme      string `json:"theme"`
	RawText    string `json:"raw_text"`
}

// IndexSnapshot pins a built vector index to the corpus content hash and
// encoder model that produced it. A snapshot whose hash or model differs
// from the live configuration is stale and must be rebuilt.
type IndexSnapshot struct {
	CorpusHash string `json:"corpus_hash"`
	ModelName  string `json:"model_name"`
	Dimension  int    `json:"dimension"`
	ChunkCount int    `json:"chunk_count"`
	Ctime      int64  `json:"ctime"`
}

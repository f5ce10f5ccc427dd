package model

// ThemeSummary is the structured output of the proposition summarization
// pipeline: one LLM-produced digest per theme batch.
type ThemeSummary struct {
	Theme     string             `json:"theme"`
	Resumo    string             `json:"resumo"`
	Temas     []string           `json:"temas"`
	Destaques []SummaryHighlight `json:"destaques"`
	Ctime     int64              `json:"ctime"`
}

// SummaryHighlight points one digest entry back at a proposition.
type SummaryHighlight struct {
	ID     string `json:"id"`
	Resumo string `json:"resumo"`
}

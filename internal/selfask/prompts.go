package selfask

import (
	"fmt"
	"strings"

	"github.com/openlegis/legisrag/internal/model"
)

// keywordPatterns maps terms of the user query to canned overview
// sub-questions, used when the LLM decomposition yields nothing usable.
var keywordPatterns = []struct {
	keyword   string
	questions []string
}{
	{
		keyword: "partido",
		questions: []string{
			"Quais são todos os partidos representados?",
			"Qual é o número de deputados por partido?",
		},
	},
	{
		keyword: "despesa",
		questions: []string{
			"Quais são os tipos de despesas registrados?",
			"Qual é o valor total por tipo de despesa?",
		},
	},
	{
		keyword: "proposi",
		questions: []string{
			"Quais são as proposições relacionadas ao tema?",
			"Quais são os principais pontos dessas proposições?",
		},
	},
}

var genericQuestions = []string{
	"Qual é o contexto geral da pergunta?",
	"Quais dados são relevantes para esta pergunta?",
}

// fallbackQuestions returns the keyword-pattern decomposition for a
// query, or a generic pair when no keyword matches.
func fallbackQuestions(query string) []string {
	lower := strings.ToLower(query)
	for _, p := range keywordPatterns {
		if strings.Contains(lower, p.keyword) {
			return p.questions
		}
	}
	return genericQuestions
}

func decomposePrompt(query string, max int) string {
	var b strings.Builder
	b.WriteString("Você é um analista legislativo. Decomponha a pergunta do usuário em até ")
	fmt.Fprintf(&b, "%d sub-perguntas temáticas de visão geral, uma por linha, sem numeração e sem texto adicional.\n\n", max)
	fmt.Fprintf(&b, "Pergunta: %s\n", query)
	return b.String()
}

func followupPrompt(parent model.AnswerNode, max int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Com base na resposta abaixo, gere até %d perguntas de aprofundamento sobre as proposições e conexões específicas mencionadas, uma por linha, sem numeração. Se não houver nada a aprofundar, responda apenas NENHUMA.\n\n", max)
	fmt.Fprintf(&b, "Pergunta original: %s\n\nResposta:\n%s\n", parent.Question.Text, parent.Synthesis)
	return b.String()
}

func synthesisPrompt(question string, evidence model.RetrievalResult) string {
	var b strings.Builder
	b.WriteString("Responda a pergunta abaixo usando somente os trechos de evidência fornecidos. Cite os identificadores dos trechos usados entre colchetes. Se a evidência não for suficiente, diga isso explicitamente.\n\n")
	fmt.Fprintf(&b, "Pergunta: %s\n\nEvidência:\n", question)
	for _, sc := range evidence.Chunks {
		fmt.Fprintf(&b, "[%s] (%s) %s\n", sc.Chunk.ID, sc.Chunk.Theme, sc.Chunk.Text)
	}
	return b.String()
}

func finalPrompt(query string, nodes []model.AnswerNode) string {
	var b strings.Builder
	b.WriteString("Você é um analista legislativo. Com base nas análises parciais abaixo, produza uma síntese final para a pergunta do usuário cobrindo impactos, tendências e recomendações. Fundamente cada afirmação nos trechos citados entre colchetes nas análises.\n\n")
	fmt.Fprintf(&b, "Pergunta do usuário: %s\n\n", query)
	for _, n := range nodes {
		if !n.Succeeded() {
			continue
		}
		fmt.Fprintf(&b, "Sub-pergunta (nível %d): %s\nAnálise: %s\n\n", n.Question.Level, n.Question.Text, n.Synthesis)
	}
	return b.String()
}

// parseQuestionList splits an LLM decomposition response into at most
// max question lines, dropping numbering, bullets and the NENHUMA
// sentinel.
func parseQuestionList(text string, max int) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "-*•0123456789.) ")
		if line == "" || strings.EqualFold(line, "NENHUMA") {
			continue
		}
		out = append(out, line)
		if len(out) >= max {
			break
		}
	}
	return out
}

// dominantTheme picks the most frequent theme among the evidence of a
// node, ties broken by first appearance.
func dominantTheme(evidence model.RetrievalResult) string {
	counts := make(map[string]int)
	var order []string
	for _, sc := range evidence.Chunks {
		if sc.Chunk.Theme == "" {
			continue
		}
		if counts[sc.Chunk.Theme] == 0 {
			order = append(order, sc.Chunk.Theme)
		}
		counts[sc.Chunk.Theme]++
	}
	best := ""
	bestCount := 0
	for _, theme := range order {
		if counts[theme] > bestCount {
			best = theme
			bestCount = counts[theme]
		}
	}
	return best
}

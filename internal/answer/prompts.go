package answer

import (
	"fmt"
	"strings"

	"github.com/reqanswer/backend/internal/qa"
)

const answerInstructions = `Anweisungen:
1. Erstellen Sie eine umfassende Antwort, die die aktuelle Frage beantwortet
2. Nutzen Sie die historischen Beispiele als Referenz für Ton, Stil und Detailgrad
3. Bewahren Sie Konsistenz mit vorherigen Antworten bei gleichzeitiger Anpassung an die spezifische Frage
4. Falls die Frage sehr ähnlich zu einem historischen Beispiel ist, passen Sie diese Antwort entsprechend an
5. Falls die Frage anders aber verwandt ist, synthetisieren Sie Informationen aus mehreren Beispielen
6. Seien Sie professionell, detailliert und kundenorientiert
7. Beziehen Sie spezifische Details und Beispiele mit ein, wo relevant
8. Falls Sie keine vertrauensvolle Antwort basierend auf den verfügbaren Beispielen geben können, sagen Sie dies klar

Generieren Sie eine professionelle Antwort:`

func buildAnswerPrompt(question, context string, sources []qa.ScoredPair) string {
	var b strings.Builder

	b.WriteString("Sie sind ein Experte für Ausschreibungen und helfen dabei, Kundenfragen basierend auf historischen Q&A-Daten zu beantworten.\n\n")
	fmt.Fprintf(&b, "Aktuelle Frage: %s\n\n", question)
	if context != "" {
		fmt.Fprintf(&b, "Zusätzlicher Kontext: %s\n\n", context)
	}

	b.WriteString("Historische Q&A-Beispiele (als Referenz für Konsistenz verwenden):\n\n")
	for i, s := range sources {
		fmt.Fprintf(&b, "Beispiel %d (Ähnlichkeit: %.2f):\n", i+1, s.SemanticScore)
		fmt.Fprintf(&b, "Frage: %s\n", s.QuestionText)
		fmt.Fprintf(&b, "Antwort: %s\n", s.AnswerText)
		if s.Client != "" {
			fmt.Fprintf(&b, "Kunde: %s\n", s.Client)
		}
		if s.ProjectType != "" {
			fmt.Fprintf(&b, "Projekttyp: %s\n", s.ProjectType)
		}
		b.WriteString("\n")
	}

	b.WriteString(answerInstructions)
	return b.String()
}

func buildCategoryPrompt(question, category, context string, sources []qa.ScoredPair) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are an expert proposal writer specializing in %s questions. Answer the client question based on historical %s-related Q&A data.\n\n", category, category)
	fmt.Fprintf(&b, "Current Question: %s\n", question)
	fmt.Fprintf(&b, "Category Focus: %s\n\n", category)
	if context != "" {
		fmt.Fprintf(&b, "Additional Context: %s\n\n", context)
	}

	fmt.Fprintf(&b, "Historical %s Q&A Examples:\n\n", category)
	for i, s := range sources {
		fmt.Fprintf(&b, "Example %d (Category: %s, Confidence: %.2f):\n", i+1, s.Category, s.SemanticScore)
		fmt.Fprintf(&b, "Question: %s\n", s.QuestionText)
		fmt.Fprintf(&b, "Answer: %s\n", s.AnswerText)
		if s.Client != "" {
			fmt.Fprintf(&b, "Client: %s\n", s.Client)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, `Instructions:
1. Focus specifically on the %[1]s aspects of the question
2. Use the historical %[1]s examples as your primary reference
3. Maintain consistency with previous %[1]s answers
4. Be detailed and specific to %[1]s concerns
5. Include relevant technical details, processes, or methodologies for %[1]s

Generate a professional %[1]s-focused answer:`, category)
	return b.String()
}

func buildSuggestionPrompt(question, draft string, sources []qa.ScoredPair) string {
	var b strings.Builder

	b.WriteString("Compare the current answer with historical examples and suggest improvements.\n\n")
	fmt.Fprintf(&b, "Question: %s\n\n", question)
	fmt.Fprintf(&b, "Current Answer:\n%s\n\n", draft)
	b.WriteString("Historical Examples:\n")
	for i, s := range sources {
		fmt.Fprintf(&b, "\nExample %d:\nQ: %s\nA: %s\n", i+1, s.QuestionText, s.AnswerText)
	}
	b.WriteString("\nAnalyze the current answer and provide specific suggestions for improvement based on the historical examples. Focus on tone, completeness, structure, and alignment with previous responses.")
	return b.String()
}

// Package assembler implements the Context Assembler (C3): pure functions
// that render retrieved chunks into a prompt-ready context, build the two
// Polish-language prompt templates, and extract citation sources. Nothing
// here talks to the network or a store.
package assembler

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/connexus-ai/lexrag/internal/model"
)

// DefaultTokenBudget is the default context budget in tokens.
const DefaultTokenBudget = 4000

// charsPerToken is the cheap Polish-text approximation: 1 token ≈ 4 chars.
const charsPerToken = 4

// maxRelatedActs caps the related-acts section of the rendered context.
const maxRelatedActs = 5

// maxSources caps the number of Source citations extracted per response.
const maxSources = 10

const truncationMarker = "\n\n[... treść skrócona ze względu na limit kontekstu ...]"

const systemPromptTemplate = `Jesteś asystentem prawnym wyspecjalizowanym w polskim prawie. Odpowiadasz wyłącznie na podstawie dostarczonych fragmentów aktów prawnych znajdujących się w kontekście. Nie wolno Ci wymyślać przepisów ani powoływać się na akty, których nie ma w kontekście. Każde istotne twierdzenie musi wskazywać konkretny fragment (artykuł) aktu, z którego pochodzi. Jeśli kontekst nie zawiera wystarczających informacji, aby odpowiedzieć, napisz to wprost zamiast zgadywać.`

const accurateAddendum = `

Przeanalizuj zagadnienie głębiej niż w skróconej odpowiedzi: omów wyjątki od reguły, wskaż potencjalne rozbieżności interpretacyjne i podaj co najmniej jeden praktyczny przykład zastosowania.`

const userPromptTemplate = `Pytanie: %s

Kontekst prawny:
%s

Udziel zwięzłej, ugruntowanej w powyższym kontekście odpowiedzi, wskazując konkretne fragmenty aktów, na których się opierasz.`

// Render groups chunks by actId (preserving first-seen order), emits a
// header with the act title per group followed by its fragments, then a
// related-acts section capped at maxRelatedActs entries. The result is
// truncated to fit tokenBudget (approximated at charsPerToken chars/token),
// with an explicit truncation marker appended when truncation occurs.
func Render(chunks []model.Chunk, relatedActs []model.Act, tokenBudget int) string {
	if tokenBudget <= 0 {
		tokenBudget = DefaultTokenBudget
	}

	var b strings.Builder

	order := make([]string, 0)
	groups := make(map[string][]model.Chunk)
	titles := make(map[string]string)
	for _, c := range chunks {
		if _, ok := groups[c.ActID]; !ok {
			order = append(order, c.ActID)
		}
		groups[c.ActID] = append(groups[c.ActID], c)
		titles[c.ActID] = c.Act.Title
	}

	for _, actID := range order {
		fmt.Fprintf(&b, "## %s\n", titles[actID])
		for _, c := range groups[actID] {
			fmt.Fprintf(&b, "[Fragment %d] %s\n", c.ChunkIndex+1, c.Content)
		}
		b.WriteString("\n")
	}

	if len(relatedActs) > 0 {
		b.WriteString("## Akty powiązane\n")
		n := len(relatedActs)
		if n > maxRelatedActs {
			n = maxRelatedActs
		}
		for _, act := range relatedActs[:n] {
			fmt.Fprintf(&b, "- %s\n", act.Title)
		}
	}

	rendered := b.String()

	maxChars := tokenBudget * charsPerToken
	if len(rendered) > maxChars {
		rendered = truncateToRuneBoundary(rendered, maxChars) + truncationMarker
	}

	return rendered
}

// truncateToRuneBoundary cuts s to at most maxChars bytes, walking back to
// the nearest preceding rune boundary so a multi-byte UTF-8 codepoint (e.g.
// ą/ć/ę/ł/ń/ó/ś/ź/ż) is never split.
func truncateToRuneBoundary(s string, maxChars int) string {
	if maxChars >= len(s) {
		return s
	}
	cut := maxChars
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// BuildSystemPrompt returns the system prompt constant. accurate extends it
// with the "analyse more deeply" addendum; this addendum is the only
// prompting difference between the two response tiers.
func BuildSystemPrompt(accurate bool) string {
	if accurate {
		return systemPromptTemplate + accurateAddendum
	}
	return systemPromptTemplate
}

// BuildUserPrompt embeds the question and rendered context into the user
// prompt template.
func BuildUserPrompt(question, renderedContext string) string {
	return fmt.Sprintf(userPromptTemplate, question, renderedContext)
}

// ExtractSources deduplicates chunks by actId and emits one Source per
// unique act (minimum-viable extraction; a smarter NLP-based extractor may
// replace this without changing the contract). Capped at maxSources.
func ExtractSources(chunks []model.Chunk) []model.Source {
	var sources []model.Source
	seen := make(map[string]bool)

	for _, c := range chunks {
		if seen[c.ActID] {
			continue
		}
		seen[c.ActID] = true

		sources = append(sources, model.Source{
			ActTitle:     c.Act.Title,
			ArticleLabel: fmt.Sprintf("Fragment %d", c.ChunkIndex+1),
			ExternalLink: externalLink(c.Act.Year, c.Act.Position),
			ChunkID:      c.ID,
		})

		if len(sources) >= maxSources {
			break
		}
	}

	return sources
}

// externalLink computes an ISAP (Internet System of Legal Acts) lookup link
// from an act's Dziennik Ustaw year and position. ISAP identifiers follow
// the WDU{year}{position, zero-padded to 4 digits} convention.
func externalLink(year, position int) string {
	return fmt.Sprintf("https://isap.sejm.gov.pl/isap.nsf/DocDetails.xsp?id=WDU%d%04d", year, position)
}

package assembler

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/connexus-ai/lexrag/internal/model"
)

func TestRender_GroupsByActPreservingFirstSeenOrder(t *testing.T) {
	chunks := []model.Chunk{
		{ID: "c1", ActID: "act-b", ChunkIndex: 0, Content: "B fragment 1", Act: model.ActSummary{Title: "Ustawa B"}},
		{ID: "c2", ActID: "act-a", ChunkIndex: 0, Content: "A fragment 1", Act: model.ActSummary{Title: "Ustawa A"}},
		{ID: "c3", ActID: "act-b", ChunkIndex: 1, Content: "B fragment 2", Act: model.ActSummary{Title: "Ustawa B"}},
	}

	out := Render(chunks, nil, DefaultTokenBudget)

	idxB := strings.Index(out, "Ustawa B")
	idxA := strings.Index(out, "Ustawa A")
	if idxB == -1 || idxA == -1 || idxB > idxA {
		t.Fatalf("expected Ustawa B group before Ustawa A group (first-seen order), got:\n%s", out)
	}
	if !strings.Contains(out, "[Fragment 1] B fragment 1") {
		t.Fatalf("expected fragment header using chunkIndex+1, got:\n%s", out)
	}
	if !strings.Contains(out, "[Fragment 2] B fragment 2") {
		t.Fatalf("expected second fragment of act-b present, got:\n%s", out)
	}
}

func TestRender_CapsRelatedActsAtFive(t *testing.T) {
	related := make([]model.Act, 0, 8)
	for i := 0; i < 8; i++ {
		related = append(related, model.Act{Title: fmt.Sprintf("Akt %d", i)})
	}

	out := Render(nil, related, DefaultTokenBudget)

	count := strings.Count(out, "- Akt")
	if count != maxRelatedActs {
		t.Fatalf("expected %d related-act lines, got %d:\n%s", maxRelatedActs, count, out)
	}
}

func TestRender_TruncatesOverBudgetWithMarker(t *testing.T) {
	longContent := strings.Repeat("a", 10000)
	chunks := []model.Chunk{
		{ID: "c1", ActID: "act-a", ChunkIndex: 0, Content: longContent, Act: model.ActSummary{Title: "Ustawa A"}},
	}

	out := Render(chunks, nil, 10) // tiny budget: 10 tokens * 4 chars = 40 chars

	if !strings.HasSuffix(out, truncationMarker) {
		tail := out
		if len(tail) > 60 {
			tail = tail[len(tail)-60:]
		}
		t.Fatalf("expected truncation marker suffix, got tail: %q", tail)
	}
	if len(out) != 10*charsPerToken+len(truncationMarker) {
		t.Fatalf("unexpected truncated length: %d", len(out))
	}
}

func TestRender_TruncationDoesNotSplitMultiByteRune(t *testing.T) {
	// "ą" is a two-byte UTF-8 sequence; repeating it so the budget cutoff
	// lands squarely inside a codepoint's second byte exercises the defect.
	longContent := strings.Repeat("ą", 5000)
	chunks := []model.Chunk{
		{ID: "c1", ActID: "act-a", ChunkIndex: 0, Content: longContent, Act: model.ActSummary{Title: "Ustawa A"}},
	}

	// budget=9 tokens -> maxChars=36, odd, so it lands mid-codepoint against
	// a run of 2-byte runes starting right after the "## Ustawa A\n[Fragment 1] " header.
	out := Render(chunks, nil, 9)

	body := strings.TrimSuffix(out, truncationMarker)
	if !utf8.ValidString(body) {
		t.Fatalf("truncated body is not valid UTF-8: %q", body)
	}
	if !strings.HasSuffix(out, truncationMarker) {
		t.Fatalf("expected truncation marker suffix, got: %q", out)
	}
}

func TestBuildSystemPrompt_AccurateAddsAddendumOnly(t *testing.T) {
	fast := BuildSystemPrompt(false)
	accurate := BuildSystemPrompt(true)

	if !strings.HasPrefix(accurate, fast) {
		t.Fatal("expected accurate prompt to extend the fast prompt, not replace it")
	}
	if accurate == fast {
		t.Fatal("expected accurate prompt to differ from fast prompt")
	}
}

func TestBuildUserPrompt_EmbedsQuestionAndContext(t *testing.T) {
	out := BuildUserPrompt("Czy mogę wypowiedzieć umowę najmu?", "## Ustawa X\n[Fragment 1] ...")
	if !strings.Contains(out, "Czy mogę wypowiedzieć umowę najmu?") {
		t.Fatal("expected question embedded in user prompt")
	}
	if !strings.Contains(out, "Ustawa X") {
		t.Fatal("expected rendered context embedded in user prompt")
	}
}

func TestExtractSources_DeduplicatesByAct(t *testing.T) {
	var chunks []model.Chunk
	for i := 0; i < 5; i++ {
		chunks = append(chunks, model.Chunk{
			ID:         fmt.Sprintf("c%d", i),
			ActID:      "act-1",
			ChunkIndex: i,
			Act:        model.ActSummary{Title: "Akt", Year: 2020, Position: 42},
		})
	}
	chunks = append(chunks, model.Chunk{
		ID:    "c-other",
		ActID: "act-2",
		Act:   model.ActSummary{Title: "Akt 2", Year: 2020, Position: 42},
	})

	sources := ExtractSources(chunks)
	if len(sources) != 2 {
		t.Fatalf("expected 2 unique acts deduplicated, got %d", len(sources))
	}
	if sources[0].ArticleLabel != "Fragment 1" {
		t.Fatalf("expected first source to cite the first fragment of its act, got %q", sources[0].ArticleLabel)
	}
	if !strings.Contains(sources[0].ExternalLink, "WDU20200042") {
		t.Fatalf("expected ISAP-style external link, got %q", sources[0].ExternalLink)
	}
}

func TestExtractSources_CapsAtTenAcrossManyActs(t *testing.T) {
	var chunks []model.Chunk
	for i := 0; i < 20; i++ {
		chunks = append(chunks, model.Chunk{
			ID:    "c",
			ActID: fmt.Sprintf("act-%d", i),
			Act:   model.ActSummary{Title: "Akt", Year: 2021, Position: i},
		})
	}

	sources := ExtractSources(chunks)
	if len(sources) != maxSources {
		t.Fatalf("expected sources capped at %d, got %d", maxSources, len(sources))
	}
}

package model

import "time"

// MinQuestionLen and MaxQuestionLen bound an accepted Question after trimming.
const (
	MinQuestionLen = 10
	MaxQuestionLen = 1000
)

// Source is a citation produced by the Context Assembler from the chunks that
// were in context for a generation call.
type Source struct {
	ActTitle     string `json:"actTitle"`
	ArticleLabel string `json:"articleLabel"`
	ExternalLink string `json:"externalLink"`
	ChunkID      string `json:"chunkId"`
}

// ResponseTier is a progressively populated slot on a QueryRecord.
type ResponseTier struct {
	Content      string   `json:"content"`
	ModelName    string   `json:"modelName"`
	GenerationMs int64    `json:"generationMs"`
	Sources      []Source `json:"sources,omitempty"` // set only on the fast tier
}

// QueryRecord is the persistent unit owned by the Query Store (C5).
//
// Invariant: Accurate may be non-nil only if Fast is non-nil.
type QueryRecord struct {
	ID           string        `json:"id"`
	UserID       string        `json:"userId"`
	QuestionText string        `json:"questionText"`
	CreatedAt    time.Time     `json:"createdAt"`
	Fast         *ResponseTier `json:"fast,omitempty"`
	Accurate     *ResponseTier `json:"accurate,omitempty"`
}

// RetrievalBundle is the Context Cache's (C4) value type: the retrieval
// context computed for the fast pipeline, reusable by the accurate pipeline.
type RetrievalBundle struct {
	Chunks          []Chunk   `json:"chunks"`
	RelatedActs     []Act     `json:"relatedActs"`
	RenderedContext string    `json:"renderedContext"`
	CachedAt        time.Time `json:"cachedAt"`
}

// RatingValue is a user's up/down judgment of a QueryRecord's answer.
type RatingValue int

const (
	RatingDown RatingValue = -1
	RatingUp   RatingValue = 1
)

// Rating is one user's rating of one query, out of the RAG core per
// spec.md §1 but tracked here as a cross-cutting persisted record.
type Rating struct {
	QueryID   string      `json:"queryId"`
	UserID    string      `json:"userId"`
	Value     RatingValue `json:"value"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

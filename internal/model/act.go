package model

import "time"

// ActStatus is the lifecycle state of a legal act.
type ActStatus string

const (
	ActInForce  ActStatus = "in-force"
	ActRepealed ActStatus = "repealed"
	ActReplaced ActStatus = "replaced"
)

// Act is a legal act (a statute, regulation, etc). Read-only for the core.
type Act struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	Publisher   string      `json:"publisher"`
	Year        int         `json:"year"`
	Position    int         `json:"position"`
	Status      ActStatus   `json:"status"`
	PublishedAt time.Time   `json:"publishedAt"`
	AmendedAt   *time.Time  `json:"amendedAt,omitempty"`

	// Depth is the minimum number of relation edges from a traversal seed at
	// which this act was discovered. Zero for acts looked up directly; only
	// meaningful on the results of FetchRelatedActs.
	Depth int `json:"depth,omitempty"`
}

// RelationKind labels a directed edge between two acts.
type RelationKind string

const (
	RelationModifies   RelationKind = "modifies"
	RelationRepeals    RelationKind = "repeals"
	RelationImplements RelationKind = "implements"
	RelationBasedOn    RelationKind = "based_on"
	RelationAmends     RelationKind = "amends"
)

// Relation is a directed edge in the act-relation graph.
type Relation struct {
	FromActID string       `json:"fromActId"`
	ToActID   string       `json:"toActId"`
	Kind      RelationKind `json:"kind"`
	Note      string       `json:"note,omitempty"`
}

// Chunk is a single retrieved passage of an act, enriched with a denormalized
// act summary. Read-only.
type Chunk struct {
	ID         string            `json:"id"`
	ActID      string            `json:"actId"`
	ChunkIndex int               `json:"chunkIndex"`
	Content    string            `json:"content"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Distance   float64           `json:"distance"`
	Act        ActSummary        `json:"act"`
}

// ActSummary is the denormalized act metadata attached to each Chunk.
type ActSummary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Publisher string    `json:"publisher"`
	Year      int       `json:"year"`
	Position  int       `json:"position"`
	Status    ActStatus `json:"status"`
}

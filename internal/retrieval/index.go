// Package retrieval implements the Retrieval Index (C2): semantic search
// over act chunks (Postgres/pgvector) and bounded-depth traversal of the
// act-relation graph (Neo4j).
package retrieval

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/connexus-ai/lexrag/internal/model"
)

// NativeDimension is the index's canonical embedding width. Narrower
// embeddings (e.g. 768) are zero-padded to this width before search; this
// is a design decision, not an accident, per the index's canonical role.
const NativeDimension = 1024

// MinResultsFloor is the default minimum hit count below which SemanticSearch
// refuses with ErrNoRelevantActs.
const MinResultsFloor = 3

// acceptedDimensions are the embedding widths the index reconciles.
// Anything else (e.g. 512) is rejected outright.
var acceptedDimensions = map[int]bool{
	768:             true,
	NativeDimension: true,
}

// Index is the Retrieval Index (C2).
type Index struct {
	pool       *pgxpool.Pool
	neo        neo4j.DriverWithContext
	minResults int
}

// New builds an Index over an existing Postgres pool and Neo4j driver.
// minResults overrides MinResultsFloor when positive; otherwise the default
// floor applies.
func New(pool *pgxpool.Pool, neoDriver neo4j.DriverWithContext, minResults int) *Index {
	if minResults <= 0 {
		minResults = MinResultsFloor
	}
	return &Index{pool: pool, neo: neoDriver, minResults: minResults}
}

// reconcileDimension zero-pads vec to the native index dimension, rejecting
// widths the index cannot reconcile.
func reconcileDimension(vec []float32) ([]float32, error) {
	n := len(vec)
	if !acceptedDimensions[n] {
		return nil, fmt.Errorf("%w: got %d dimensions", ErrInvalidDimension, n)
	}
	if n == NativeDimension {
		return vec, nil
	}
	padded := make([]float32, NativeDimension)
	copy(padded, vec)
	return padded, nil
}

// SemanticSearch returns the topK chunks closest to queryEmbedding by cosine
// distance, below distanceThreshold, optionally scoped to actIDFilter. Fewer
// than the configured minimum-results floor is treated as a refusal
// boundary: ErrNoRelevantActs.
func (idx *Index) SemanticSearch(ctx context.Context, queryEmbedding []float32, topK int, distanceThreshold float64, actIDFilter []string) ([]model.Chunk, error) {
	vec, err := reconcileDimension(queryEmbedding)
	if err != nil {
		return nil, err
	}
	if topK <= 0 {
		topK = 10
	}

	embedding := pgvector.NewVector(vec)

	query := `
		SELECT
			c.id, c.act_id, c.chunk_index, c.content,
			(c.embedding <=> $1::vector) AS distance,
			a.id, a.title, a.publisher, a.year, a.position, a.status
		FROM act_chunks c
		JOIN acts a ON c.act_id = a.id
		WHERE (c.embedding <=> $1::vector) < $2`

	args := []any{embedding, distanceThreshold}
	if len(actIDFilter) > 0 {
		query += ` AND c.act_id = ANY($3)`
		args = append(args, actIDFilter)
		query += ` ORDER BY c.embedding <=> $1::vector LIMIT $4`
		args = append(args, topK)
	} else {
		query += ` ORDER BY c.embedding <=> $1::vector LIMIT $3`
		args = append(args, topK)
	}

	rows, err := idx.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, &StorageError{Op: "SemanticSearch", Err: err}
	}
	defer rows.Close()

	var chunks []model.Chunk
	for rows.Next() {
		var c model.Chunk
		var status string
		if err := rows.Scan(
			&c.ID, &c.ActID, &c.ChunkIndex, &c.Content, &c.Distance,
			&c.Act.ID, &c.Act.Title, &c.Act.Publisher, &c.Act.Year, &c.Act.Position, &status,
		); err != nil {
			return nil, &StorageError{Op: "SemanticSearch", Err: err}
		}
		c.Act.Status = model.ActStatus(status)
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "SemanticSearch", Err: err}
	}

	if len(chunks) < idx.minResults {
		slog.Info("[retrieval] semantic search below minimum-results floor",
			"found", len(chunks), "floor", idx.minResults)
		return nil, ErrNoRelevantActs
	}

	return chunks, nil
}

// relatedActsQueryTemplate is a bidirectional Cypher traversal up to two
// hops, labeling each reachable node with the minimum hop distance it was
// found at. depth is interpolated into the variable-length pattern with
// fmt.Sprintf rather than bound as a query parameter, since Neo4j doesn't
// parameterize hop counts in MATCH patterns; depth is validated to {1,2} by
// the caller before this query ever runs.
const relatedActsQueryTemplate = `
UNWIND $seeds AS seedId
MATCH (seed:Act {id: seedId})
MATCH path = (seed)-[r*1..%d]-(other:Act)
WHERE ($kinds IS NULL OR all(rel IN r WHERE type(rel) IN $kinds))
WITH other, min(length(path)) AS minDepth
RETURN other.id AS id, other.title AS title, other.publisher AS publisher,
       other.year AS year, other.position AS position, other.status AS status,
       minDepth AS depth
`

// FetchRelatedActs performs a bidirectional, cycle-safe traversal of the
// act-relation graph up to depth hops from seedActIDs. Returned acts are
// deduplicated, each carrying the minimum depth at which it was discovered.
func (idx *Index) FetchRelatedActs(ctx context.Context, seedActIDs []string, depth int, relationKinds []model.RelationKind) ([]model.Act, error) {
	if len(seedActIDs) == 0 {
		return nil, ErrEmptySeed
	}
	if depth != 1 && depth != 2 {
		return nil, ErrInvalidDepth
	}

	var kinds any
	if len(relationKinds) > 0 {
		ks := make([]string, len(relationKinds))
		for i, k := range relationKinds {
			ks[i] = string(k)
		}
		kinds = ks
	}

	session := idx.neo.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	cypher := fmt.Sprintf(relatedActsQueryTemplate, depth)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		records, err := tx.Run(ctx, cypher, map[string]any{
			"seeds": seedActIDs,
			"kinds": kinds,
		})
		if err != nil {
			return nil, err
		}

		seen := make(map[string]*model.Act)
		for records.Next(ctx) {
			rec := records.Record()
			id, _ := rec.Get("id")
			actID, _ := id.(string)

			recDepth := 0
			if d, ok := rec.Get("depth"); ok {
				if dn, ok := d.(int64); ok {
					recDepth = int(dn)
				}
			}

			if existing, ok := seen[actID]; ok {
				if recDepth < existing.Depth {
					existing.Depth = recDepth
				}
				continue
			}

			act := &model.Act{ID: actID, Depth: recDepth}
			if v, ok := rec.Get("title"); ok {
				act.Title, _ = v.(string)
			}
			if v, ok := rec.Get("publisher"); ok {
				act.Publisher, _ = v.(string)
			}
			if v, ok := rec.Get("year"); ok {
				if yn, ok := v.(int64); ok {
					act.Year = int(yn)
				}
			}
			if v, ok := rec.Get("position"); ok {
				if pn, ok := v.(int64); ok {
					act.Position = int(pn)
				}
			}
			if v, ok := rec.Get("status"); ok {
				if s, ok := v.(string); ok {
					act.Status = model.ActStatus(s)
				}
			}
			seen[actID] = act
		}
		return seen, records.Err()
	})
	if err != nil {
		return nil, &StorageError{Op: "FetchRelatedActs", Err: err}
	}

	seen := result.(map[string]*model.Act)
	acts := make([]model.Act, 0, len(seen))
	for _, act := range seen {
		acts = append(acts, *act)
	}
	return acts, nil
}

package graph

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// StatementRunner executes Cypher statements in one transaction
type StatementRunner interface {
	RunStatements(ctx context.Context, statements []Statement) error
}

// Projector mirrors golden records into the graph: one GoldenRecord node per
// merged cluster, with a RESOLVES_TO edge from each member SourceRecord node.
type Projector struct {
	runner StatementRunner
	logger ectologger.Logger
}

// NewProjector creates a new graph projector
func NewProjector(runner StatementRunner, logger ectologger.Logger) *Projector {
	return &Projector{
		runner: runner,
		logger: logger,
	}
}

// Notify applies a cluster change to the graph
func (p *Projector) Notify(ctx context.Context, change models.ClusterChange) error {
	ctx, span := tracing.StartSpan(ctx, "graph.Projector.Notify")
	defer span.End()

	statements := Statements(change)
	if len(statements) == 0 {
		return nil
	}

	if err := p.runner.RunStatements(ctx, statements); err != nil {
		p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"cluster_id": change.Cluster.ID,
			"event_type": string(change.Type),
		}).Error("Failed to project cluster change")
		return fmt.Errorf("failed to project cluster %s: %w", change.Cluster.ID, err)
	}
	return nil
}

const removeGolden = `
MATCH (g:GoldenRecord {cluster_id: $cluster_id})
DETACH DELETE g`

const upsertGolden = `
MERGE (g:GoldenRecord {id: $id})
SET g = $props`

const linkMembers = `
MATCH (g:GoldenRecord {id: $id})
UNWIND $members AS member
MERGE (s:SourceRecord {id: member})
SET s.batch_id = $batch_id
MERGE (s)-[:RESOLVES_TO]->(g)`

const unlinkStale = `
MATCH (s:SourceRecord)-[r:RESOLVES_TO]->(g:GoldenRecord {id: $id})
WHERE NOT s.id IN $members
DELETE r`

// Statements returns the Cypher that applies change. Merged clusters upsert
// their golden record and member links; every other change removes the
// cluster's golden record.
func Statements(change models.ClusterChange) []Statement {
	c := change.Cluster
	if change.Type != models.ClusterChangeMerged || change.Golden == nil {
		return []Statement{{
			Cypher: removeGolden,
			Params: map[string]any{"cluster_id": c.ID},
		}}
	}

	g := change.Golden
	props := map[string]any{
		"id":             g.ID,
		"cluster_id":     c.ID,
		"batch_id":       c.BatchID,
		"locked":         c.Locked,
		"confidence":     c.Confidence,
		"fingerprint":    g.Fingerprint,
		"synthesized_at": g.SynthesizedAt.UTC().Format("2006-01-02T15:04:05Z"),
	}
	for _, f := range models.AllFields {
		if v, ok := g.Fields[f]; ok {
			props[string(f)] = v
		}
	}

	members := append([]string(nil), c.MemberIDs...)
	return []Statement{
		{Cypher: upsertGolden, Params: map[string]any{"id": g.ID, "props": props}},
		{Cypher: linkMembers, Params: map[string]any{"id": g.ID, "members": members, "batch_id": c.BatchID}},
		{Cypher: unlinkStale, Params: map[string]any{"id": g.ID, "members": members}},
	}
}

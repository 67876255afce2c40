package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	types "github.com/yungbote/qalam-backend/internal/domain"
	"github.com/yungbote/qalam-backend/internal/platform/logger"
	"github.com/yungbote/qalam-backend/internal/platform/neo4jdb"
)

// MirrorUKB replaces the project's entity graph with one UKB generation. Nodes carry the
// generation so a reader filtering on it never sees a mix.
func MirrorUKB(ctx context.Context, client *neo4jdb.Client, log *logger.Logger, projectID uuid.UUID, generation int, entities []*types.KnowledgeEntity, refs []types.CrossReference) error {
	if client == nil || client.Driver == nil {
		return nil
	}
	if projectID == uuid.Nil {
		return fmt.Errorf("neo4j ukb mirror: missing projectID")
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	nodes := make([]map[string]any, 0, len(entities))
	for _, e := range entities {
		if e == nil || e.ID == uuid.Nil {
			continue
		}
		n := map[string]any{
			"id":          e.ID.String(),
			"project_id":  projectID.String(),
			"generation":  int64(generation),
			"kind":        e.Kind,
			"name":        e.Name,
			"description": e.Description,
			"confidence":  e.Confidence,
			"synced_at":   now,
		}
		if e.ValidCoordinates() {
			n["latitude"] = *e.Latitude
			n["longitude"] = *e.Longitude
		}
		nodes = append(nodes, n)
	}
	rels := make([]map[string]any, 0, len(refs))
	for _, r := range refs {
		if r.FromEntityID == "" || r.ToEntityID == "" {
			continue
		}
		rels = append(rels, map[string]any{
			"from_id":    r.FromEntityID,
			"to_id":      r.ToEntityID,
			"relation":   r.Relation,
			"confidence": r.Confidence,
		})
	}

	session := client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: client.Database,
	})
	defer session.Close(ctx)

	if res, err := session.Run(ctx, `CREATE CONSTRAINT ukb_entity_id_unique IF NOT EXISTS FOR (e:Entity) REQUIRE e.id IS UNIQUE`, nil); err != nil {
		if log != nil {
			log.Warn("neo4j schema init failed (continuing)", "error", err)
		}
	} else {
		_, _ = res.Consume(ctx)
	}

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (e:Entity {project_id: $project_id})
WHERE e.generation <> $generation
DETACH DELETE e
`, map[string]any{"project_id": projectID.String(), "generation": int64(generation)})
		if err != nil {
			return nil, err
		}
		if _, err := res.Consume(ctx); err != nil {
			return nil, err
		}

		if len(nodes) > 0 {
			res, err := tx.Run(ctx, `
UNWIND $nodes AS n
MERGE (e:Entity {id: n.id})
SET e += n
`, map[string]any{"nodes": nodes})
			if err != nil {
				return nil, err
			}
			if _, err := res.Consume(ctx); err != nil {
				return nil, err
			}
		}
		if len(rels) > 0 {
			res, err := tx.Run(ctx, `
UNWIND $rels AS r
MATCH (a:Entity {id: r.from_id})
MATCH (b:Entity {id: r.to_id})
MERGE (a)-[x:RELATED {relation: r.relation}]->(b)
SET x.confidence = r.confidence
`, map[string]any{"rels": rels})
			if err != nil {
				return nil, err
			}
			if _, err := res.Consume(ctx); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err == nil && log != nil {
		log.Debug("ukb mirrored to neo4j", "project_id", projectID.String(), "generation", generation, "nodes", len(nodes), "rels", len(rels))
	}
	return err
}

package audit

import (
	"context"
	"fmt"

	"trust-service/internal/models"
)

type GraphWriter interface {
	ExecuteWrite(ctx context.Context, cypher string, params map[string]any) error
}

const (
	graphConstraint = `CREATE CONSTRAINT phone_token IF NOT EXISTS
FOR (p:Phone) REQUIRE p.token IS UNIQUE`

	graphVerified = `MERGE (u:User {id: $user_id})
MERGE (p:Phone {token: $token})
MERGE (u)-[:OWNS]->(p)`

	graphMark = `MERGE (u:User {id: $user_id})
MERGE (p:Phone {token: $token})
WITH u, p
OPTIONAL MATCH (u)-[old:%s]->(p)
DELETE old
MERGE (u)-[e:%s]->(p)
SET e.updated_at = $at`

	graphUnmark = `MATCH (u:User {id: $user_id})-[e:%s]->(p:Phone {token: $token})
DELETE e`
)

// GraphSink mirrors list membership into Neo4j as TRUSTS and SPAM edges
// between users and phone tokens. Events that do not touch the graph are
// ignored.
type GraphSink struct {
	graph GraphWriter
}

func NewGraphSink(graph GraphWriter) *GraphSink {
	return &GraphSink{graph: graph}
}

func (s *GraphSink) Name() string { return "neo4j" }

func (s *GraphSink) EnsureSchema(ctx context.Context) error {
	if err := s.graph.ExecuteWrite(ctx, graphConstraint, nil); err != nil {
		return fmt.Errorf("create phone constraint: %w", err)
	}
	return nil
}

func (s *GraphSink) Write(ctx context.Context, e models.TrustEvent) error {
	cypher, ok := graphStatement(e)
	if !ok {
		return nil
	}
	return s.graph.ExecuteWrite(ctx, cypher, map[string]any{
		"user_id": e.UserID,
		"token":   e.PhoneToken,
		"at":      e.EventTime,
	})
}

func graphStatement(e models.TrustEvent) (string, bool) {
	if e.UserID == "" || e.PhoneToken == "" {
		return "", false
	}
	switch e.EventType {
	case models.EventRegistrationVerified:
		return graphVerified, true
	case models.EventListUpdated:
		switch e.Details {
		case "trust":
			return fmt.Sprintf(graphMark, "SPAM", "TRUSTS"), true
		case "spam":
			return fmt.Sprintf(graphMark, "TRUSTS", "SPAM"), true
		case "rmtrust":
			return fmt.Sprintf(graphUnmark, "TRUSTS"), true
		case "rmspam":
			return fmt.Sprintf(graphUnmark, "SPAM"), true
		}
	}
	return "", false
}

// Package graph stores a concept graph in Neo4j and exposes depth-limited
// traversal as a retrieval source. Concepts relate to each other through
// weighted RELATED_TO edges and to capabilities through ENABLES edges.
package graph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// MaxTraversalDepth bounds RELATED_TO expansion. Two hops keeps traversal
// cheap while still surfacing neighbors of neighbors.
const MaxTraversalDepth = 2

// ErrNotFound indicates the requested node does not exist.
var ErrNotFound = errors.New("graph node not found")

// Concept is a named node in the concept graph.
type Concept struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category,omitempty"`
}

// Capability describes something the assistant can do, reachable from
// concepts via ENABLES edges.
type Capability struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Examples    []string `json:"examples,omitempty"`
}

// Related is a concept reached by traversal, with the strength of the
// connecting relationship.
type Related struct {
	Concept  Concept `json:"concept"`
	Strength float64 `json:"strength"`
}

// Match is a concept hit for a retrieval query, carrying everything the
// scorer needs.
type Match struct {
	Concept      Concept
	Strengths    []float64
	Capabilities []string
}

// Store manages the concept graph.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	driver neo4j.DriverWithContext
	logger *slog.Logger
}

// NewStore creates a graph Store.
func NewStore(driver neo4j.DriverWithContext, logger *slog.Logger) (*Store, error) {
	if driver == nil {
		return nil, fmt.Errorf("driver is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{driver: driver, logger: logger}, nil
}

// Close releases the underlying driver.
func (s *Store) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

// Ping verifies connectivity to the graph database.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.driver.VerifyConnectivity(ctx); err != nil {
		return fmt.Errorf("verifying graph connectivity: %w", err)
	}
	return nil
}

// UpsertConcept creates or updates a concept node keyed by name.
func (s *Store) UpsertConcept(ctx context.Context, c Concept) error {
	if c.Name == "" {
		return fmt.Errorf("concept name is required")
	}

	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx,
			`MERGE (c:Concept {name: $name})
			 SET c.description = $description, c.category = $category`,
			map[string]any{
				"name":        c.Name,
				"description": c.Description,
				"category":    c.Category,
			})
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("upserting concept %q: %w", c.Name, err)
	}
	return nil
}

// RelateConcepts merges a weighted RELATED_TO edge between two concepts.
// Strength is clamped to [0, 1]. Both concepts must exist.
func (s *Store) RelateConcepts(ctx context.Context, from, to string, strength float64) error {
	if from == "" || to == "" {
		return fmt.Errorf("both concept names are required")
	}
	if from == to {
		return fmt.Errorf("concept cannot relate to itself")
	}
	if strength < 0 {
		strength = 0
	}
	if strength > 1 {
		strength = 1
	}

	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	result, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx,
			`MATCH (a:Concept {name: $from})
			 MATCH (b:Concept {name: $to})
			 MERGE (a)-[r:RELATED_TO]->(b)
			 SET r.strength = $strength
			 RETURN a.name`,
			map[string]any{"from": from, "to": to, "strength": strength})
		if err != nil {
			return nil, err
		}
		summary, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		return len(summary), nil
	})
	if err != nil {
		return fmt.Errorf("relating %q to %q: %w", from, to, err)
	}
	if n, ok := result.(int); ok && n == 0 {
		return fmt.Errorf("relating %q to %q: %w", from, to, ErrNotFound)
	}
	return nil
}

// UpsertCapability creates or updates a capability node and links it from
// the given concepts.
func (s *Store) UpsertCapability(ctx context.Context, cap Capability, conceptNames []string) error {
	if cap.Name == "" {
		return fmt.Errorf("capability name is required")
	}

	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx,
			`MERGE (cap:Capability {name: $name})
			 SET cap.description = $description, cap.examples = $examples`,
			map[string]any{
				"name":        cap.Name,
				"description": cap.Description,
				"examples":    cap.Examples,
			})
		if err != nil {
			return nil, err
		}
		for _, concept := range conceptNames {
			if concept == "" {
				continue
			}
			_, err := tx.Run(ctx,
				`MATCH (c:Concept {name: $concept})
				 MATCH (cap:Capability {name: $name})
				 MERGE (c)-[:ENABLES]->(cap)`,
				map[string]any{"concept": concept, "name": cap.Name})
			if err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("upserting capability %q: %w", cap.Name, err)
	}
	return nil
}

// FindCapability returns a capability by exact name (case-insensitive).
func (s *Store) FindCapability(ctx context.Context, name string) (Capability, error) {
	if name == "" {
		return Capability{}, fmt.Errorf("capability name is required")
	}

	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx,
			`MATCH (cap:Capability)
			 WHERE toLower(cap.name) = toLower($name)
			 RETURN cap.name AS name, cap.description AS description, cap.examples AS examples
			 LIMIT 1`,
			map[string]any{"name": name})
		if err != nil {
			return nil, err
		}
		record, err := res.Single(ctx)
		if err != nil {
			return nil, err
		}
		return Capability{
			Name:        recordString(record, "name"),
			Description: recordString(record, "description"),
			Examples:    recordStrings(record, "examples"),
		}, nil
	})
	if err != nil {
		if isNoRecords(err) {
			return Capability{}, fmt.Errorf("capability %q: %w", name, ErrNotFound)
		}
		return Capability{}, fmt.Errorf("finding capability %q: %w", name, err)
	}
	return result.(Capability), nil
}

// RelatedConcepts expands RELATED_TO edges from the named concept up to
// MaxTraversalDepth hops, deduplicated, strongest first.
func (s *Store) RelatedConcepts(ctx context.Context, name string, limit int) ([]Related, error) {
	if name == "" {
		return nil, fmt.Errorf("concept name is required")
	}
	if limit <= 0 {
		limit = 10
	}

	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx,
			`MATCH (c:Concept {name: $name})-[rels:RELATED_TO*1..2]-(related:Concept)
			 WHERE related.name <> $name
			 WITH DISTINCT related,
			      reduce(s = 1.0, r IN rels | s * coalesce(r.strength, 0.5)) AS strength
			 RETURN related.name AS name, related.description AS description,
			        related.category AS category, strength
			 ORDER BY strength DESC, name
			 LIMIT $limit`,
			map[string]any{"name": name, "limit": limit})
		if err != nil {
			return nil, err
		}

		var related []Related
		for res.Next(ctx) {
			record := res.Record()
			related = append(related, Related{
				Concept: Concept{
					Name:        recordString(record, "name"),
					Description: recordString(record, "description"),
					Category:    recordString(record, "category"),
				},
				Strength: recordFloat(record, "strength"),
			})
		}
		return related, res.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("expanding concept %q: %w", name, err)
	}
	related, _ := result.([]Related)
	return related, nil
}

// MatchConcepts returns concepts whose name or description contains any of
// the given lowercase terms, with first-hop relationship strengths and
// enabled capability names attached for scoring.
func (s *Store) MatchConcepts(ctx context.Context, terms []string, limit int) ([]Match, error) {
	if len(terms) == 0 {
		return []Match{}, nil
	}
	if limit <= 0 {
		limit = 10
	}

	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx,
			`MATCH (c:Concept)
			 WHERE any(term IN $terms
			           WHERE toLower(c.name) CONTAINS term
			              OR toLower(c.description) CONTAINS term)
			 OPTIONAL MATCH (c)-[r:RELATED_TO]-(:Concept)
			 WITH c, collect(coalesce(r.strength, 0.5)) AS strengths
			 OPTIONAL MATCH (c)-[:ENABLES]->(cap:Capability)
			 WITH c, strengths, collect(cap.name) AS capabilities
			 RETURN c.name AS name, c.description AS description,
			        c.category AS category, strengths, capabilities
			 LIMIT $limit`,
			map[string]any{"terms": terms, "limit": limit})
		if err != nil {
			return nil, err
		}

		var matches []Match
		for res.Next(ctx) {
			record := res.Record()
			matches = append(matches, Match{
				Concept: Concept{
					Name:        recordString(record, "name"),
					Description: recordString(record, "description"),
					Category:    recordString(record, "category"),
				},
				Strengths:    recordFloats(record, "strengths"),
				Capabilities: recordStrings(record, "capabilities"),
			})
		}
		return matches, res.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("matching concepts: %w", err)
	}
	matches, _ := result.([]Match)
	return matches, nil
}

// Counts returns the number of concept and capability nodes.
func (s *Store) Counts(ctx context.Context) (concepts, capabilities int, err error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, execErr := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx,
			`RETURN count { MATCH (c:Concept) RETURN c } AS concepts,
			        count { MATCH (cap:Capability) RETURN cap } AS capabilities`,
			nil)
		if err != nil {
			return nil, err
		}
		record, err := res.Single(ctx)
		if err != nil {
			return nil, err
		}
		return [2]int{
			int(recordInt(record, "concepts")),
			int(recordInt(record, "capabilities")),
		}, nil
	})
	if execErr != nil {
		return 0, 0, fmt.Errorf("counting graph nodes: %w", execErr)
	}
	counts := result.([2]int)
	return counts[0], counts[1], nil
}

func isNoRecords(err error) bool {
	var usageErr *neo4j.UsageError
	return errors.As(err, &usageErr)
}

func recordString(record *neo4j.Record, key string) string {
	val, ok := record.Get(key)
	if !ok || val == nil {
		return ""
	}
	s, _ := val.(string)
	return s
}

func recordFloat(record *neo4j.Record, key string) float64 {
	val, ok := record.Get(key)
	if !ok || val == nil {
		return 0
	}
	switch v := val.(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	}
	return 0
}

func recordInt(record *neo4j.Record, key string) int64 {
	val, ok := record.Get(key)
	if !ok || val == nil {
		return 0
	}
	i, _ := val.(int64)
	return i
}

func recordStrings(record *neo4j.Record, key string) []string {
	val, ok := record.Get(key)
	if !ok || val == nil {
		return nil
	}
	list, ok := val.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, v := range list {
		if s, ok := v.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}

func recordFloats(record *neo4j.Record, key string) []float64 {
	val, ok := record.Get(key)
	if !ok || val == nil {
		return nil
	}
	list, ok := val.([]any)
	if !ok {
		return nil
	}
	out := make([]float64, 0, len(list))
	for _, v := range list {
		switch f := v.(type) {
		case float64:
			out = append(out, f)
		case int64:
			out = append(out, float64(f))
		}
	}
	return out
}

package repository

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Neo4jFollowGraph はNeo4jの (:Member)-[:FOLLOWS]->(:Member) を参照するフォローグラフ。
type Neo4jFollowGraph struct {
	driver neo4j.DriverWithContext
}

// NewNeo4jFollowGraph はNeo4jFollowGraphを生成する。
func NewNeo4jFollowGraph(driver neo4j.DriverWithContext) *Neo4jFollowGraph {
	return &Neo4jFollowGraph{driver: driver}
}

// EnsureSchema はMember.idの一意制約を作成する。既に存在する場合は何もしない。
func (g *Neo4jFollowGraph) EnsureSchema(ctx context.Context) error {
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, `CREATE CONSTRAINT member_id_unique IF NOT EXISTS FOR (m:Member) REQUIRE m.id IS UNIQUE`, nil)
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("failed to ensure neo4j schema: %w", err)
	}
	return nil
}

// FolloweeIDs は指定メンバーのフォロー先ID一覧を返す。
func (g *Neo4jFollowGraph) FolloweeIDs(ctx context.Context, memberID int64) ([]int64, error) {
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		query := `MATCH (:Member {id: $memberId})-[:FOLLOWS]->(f:Member) RETURN f.id AS followeeId ORDER BY followeeId`
		res, err := tx.Run(ctx, query, map[string]any{"memberId": memberID})
		if err != nil {
			return nil, err
		}

		ids := []int64{}
		for res.Next(ctx) {
			raw, _ := res.Record().Get("followeeId")
			id, ok := raw.(int64)
			if !ok {
				return nil, fmt.Errorf("unexpected followee id type %T", raw)
			}
			ids = append(ids, id)
		}
		return ids, res.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("フォロー先の取得に失敗しました: %w", err)
	}

	return result.([]int64), nil
}

var _ FollowGraph = (*Neo4jFollowGraph)(nil)

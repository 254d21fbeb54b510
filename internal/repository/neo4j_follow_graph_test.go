package repository

import (
	"os"
	"testing"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

func setupTestNeo4j(t *testing.T) neo4j.DriverWithContext {
	t.Helper()

	uri := os.Getenv("TEST_NEO4J_URI")
	if uri == "" {
		t.Skip("TEST_NEO4J_URI が未設定のためスキップ")
	}

	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(os.Getenv("TEST_NEO4J_USER"), os.Getenv("TEST_NEO4J_PASSWORD"), ""))
	if err != nil {
		t.Fatalf("Neo4jドライバの生成に失敗: %v", err)
	}
	if err := driver.VerifyConnectivity(t.Context()); err != nil {
		driver.Close(t.Context())
		t.Skipf("テスト用Neo4jに接続できません（スキップ）: %v", err)
	}

	_, err = neo4j.ExecuteQuery(t.Context(), driver, `MATCH (m:Member) DETACH DELETE m`, nil, neo4j.EagerResultTransformer)
	if err != nil {
		t.Fatalf("Neo4jの初期化に失敗: %v", err)
	}

	t.Cleanup(func() { driver.Close(t.Context()) })
	return driver
}

// seedFollow はフォロー関係を作成する。MERGEのため同じ辺を重ねても1本になる。
func seedFollow(t *testing.T, driver neo4j.DriverWithContext, senderID, receiverID int64) {
	t.Helper()

	query := `
		MERGE (s:Member {id: $senderId})
		MERGE (r:Member {id: $receiverId})
		MERGE (s)-[:FOLLOWS]->(r)
	`
	_, err := neo4j.ExecuteQuery(t.Context(), driver, query, map[string]any{
		"senderId":   senderID,
		"receiverId": receiverID,
	}, neo4j.EagerResultTransformer)
	if err != nil {
		t.Fatalf("seedFollow(%d, %d) failed: %v", senderID, receiverID, err)
	}
}

func TestNeo4jFollowGraph_FolloweeIDs(t *testing.T) {
	driver := setupTestNeo4j(t)
	graph := NewNeo4jFollowGraph(driver)

	if err := graph.EnsureSchema(t.Context()); err != nil {
		t.Fatalf("EnsureSchema failed: %v", err)
	}

	for _, edge := range [][2]int64{{1, 3}, {1, 2}, {2, 1}, {1, 2}} {
		seedFollow(t, driver, edge[0], edge[1])
	}

	ids, err := graph.FolloweeIDs(t.Context(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ids) != 2 || ids[0] != 2 || ids[1] != 3 {
		t.Errorf("FolloweeIDs(1) = %v, want [2 3]", ids)
	}

	none, err := graph.FolloweeIDs(t.Context(), 99)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("FolloweeIDs(99) = %v, want empty", none)
	}
}

package middleware

import (
	"errors"
	"sync"
)

// --- モック定義 ---

type mockVerifier struct {
	verifyFn func(token string) (int64, error)
}

func (m *mockVerifier) Verify(token string) (int64, error) {
	if m.verifyFn != nil {
		return m.verifyFn(token)
	}
	return 0, errors.New("invalid token")
}

// tokenTable は固定のトークンとメンバーIDの対応で検証するモックを返す。
func tokenTable(tokens map[string]int64) *mockVerifier {
	return &mockVerifier{
		verifyFn: func(token string) (int64, error) {
			if id, ok := tokens[token]; ok {
				return id, nil
			}
			return 0, errors.New("invalid token")
		},
	}
}

type mockStatusRecorder struct {
	mu       sync.Mutex
	statuses []int
}

func (m *mockStatusRecorder) RecordHTTPStatus(statusCode int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses = append(m.statuses, statusCode)
}

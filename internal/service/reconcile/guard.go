package reconcile

import "sync"

// inflight はユーザーごとに実行中の突き合わせを1つに制限します
type inflight struct {
	mu      sync.Mutex
	running map[string]struct{}
}

func newInflight() *inflight {
	return &inflight{running: make(map[string]struct{})}
}

// acquire は実行権を取得します。既に実行中なら false を返します
func (g *inflight) acquire(userID string) (release func(), ok bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, busy := g.running[userID]; busy {
		return nil, false
	}
	g.running[userID] = struct{}{}

	return func() {
		g.mu.Lock()
		delete(g.running, userID)
		g.mu.Unlock()
	}, true
}

package retrieval

import (
	"github.com/poiesic/quarry/core"
	"github.com/poiesic/quarry/vectorstore"
)

// SearchMonitor provides hooks to observe a search.
// Implement this interface to trace intermediate results, e.g. from a CLI probe.
type SearchMonitor interface {
	Start(query string, topK int)
	AfterEmbedding(vector []float32)
	AfterQuery(matches []vectorstore.Match)
	Finish(passages []core.Passage)
}

// noopMonitor is a no-op implementation of SearchMonitor
type noopMonitor struct{}

var _ SearchMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ string, _ int)            {}
func (n *noopMonitor) AfterEmbedding(_ []float32)       {}
func (n *noopMonitor) AfterQuery(_ []vectorstore.Match) {}
func (n *noopMonitor) Finish(_ []core.Passage)          {}

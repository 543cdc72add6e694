package lock

import (
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/Ou-Rui/my-bustub/pkg/concurrency/transaction"
	"github.com/Ou-Rui/my-bustub/pkg/logging"
	"github.com/Ou-Rui/my-bustub/pkg/primitives"
)

// runDetection wakes on a ticker and breaks any wait-for cycles.
func (m *Manager) runDetection() {
	defer close(m.done)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.DetectDeadlocks()
		}
	}
}

// DetectDeadlocks runs one detection pass: it builds the waits-for graph
// from the lock table and aborts the youngest transaction of every cycle.
// Exposed so tests can drive detection without the background ticker.
func (m *Manager) DetectDeadlocks() {
	m.mu.Lock()
	defer m.mu.Unlock()

	graph, txns := m.buildWaitsFor()
	for {
		victim, found := findCycle(graph)
		if !found {
			return
		}
		logging.Info("deadlock detected", zap.Int64("victim_txn_id", int64(victim)))
		if txn, ok := txns[victim]; ok {
			m.abortLocked(txn)
		}
		removeNode(graph, victim)
	}
}

// buildWaitsFor derives the waits-for edges from the current queues: every
// waiting transaction points at every transaction holding the lock it
// wants. Aborted transactions contribute no edges.
func (m *Manager) buildWaitsFor() (map[primitives.TxnID][]primitives.TxnID, map[primitives.TxnID]*transaction.Transaction) {
	graph := make(map[primitives.TxnID][]primitives.TxnID)
	txns := make(map[primitives.TxnID]*transaction.Transaction)

	for _, q := range m.table {
		var holders []primitives.TxnID
		for _, req := range q.requests {
			txns[req.txn.ID()] = req.txn
			if req.granted && req.txn.State() != transaction.Aborted {
				holders = append(holders, req.txn.ID())
			}
		}
		for _, req := range q.requests {
			if req.granted || req.txn.State() == transaction.Aborted {
				continue
			}
			waiter := req.txn.ID()
			for _, holder := range holders {
				if holder != waiter {
					graph[waiter] = append(graph[waiter], holder)
				}
			}
		}
	}

	for id := range graph {
		successors := graph[id]
		sort.Slice(successors, func(i, j int) bool { return successors[i] < successors[j] })
		graph[id] = dedupe(successors)
	}
	return graph, txns
}

func dedupe(ids []primitives.TxnID) []primitives.TxnID {
	out := ids[:0]
	for i, id := range ids {
		if i == 0 || id != ids[i-1] {
			out = append(out, id)
		}
	}
	return out
}

// GetEdgeList returns the waits-for edges as (waiter, holder) pairs in
// deterministic order.
func (m *Manager) GetEdgeList() [][2]primitives.TxnID {
	m.mu.Lock()
	defer m.mu.Unlock()

	graph, _ := m.buildWaitsFor()
	waiters := make([]primitives.TxnID, 0, len(graph))
	for id := range graph {
		waiters = append(waiters, id)
	}
	sort.Slice(waiters, func(i, j int) bool { return waiters[i] < waiters[j] })

	var edges [][2]primitives.TxnID
	for _, w := range waiters {
		for _, h := range graph[w] {
			edges = append(edges, [2]primitives.TxnID{w, h})
		}
	}
	return edges
}

// findCycle searches the graph depth-first, starting from the lowest
// transaction id and exploring successors in ascending order, and returns
// the youngest (largest id) transaction on the first cycle found.
func findCycle(graph map[primitives.TxnID][]primitives.TxnID) (primitives.TxnID, bool) {
	starts := make([]primitives.TxnID, 0, len(graph))
	for id := range graph {
		starts = append(starts, id)
	}
	sort.Slice(starts, func(i, j int) bool { return starts[i] < starts[j] })

	visited := make(map[primitives.TxnID]bool)
	for _, start := range starts {
		if visited[start] {
			continue
		}
		onPath := make(map[primitives.TxnID]bool)
		var path []primitives.TxnID
		if victim, found := dfs(graph, start, visited, onPath, &path); found {
			return victim, true
		}
	}
	return primitives.InvalidTxnID, false
}

func dfs(graph map[primitives.TxnID][]primitives.TxnID, node primitives.TxnID,
	visited, onPath map[primitives.TxnID]bool, path *[]primitives.TxnID) (primitives.TxnID, bool) {
	visited[node] = true
	onPath[node] = true
	*path = append(*path, node)

	for _, next := range graph[node] {
		if onPath[next] {
			// Cycle: everything on the path from next onward.
			victim := next
			for i := len(*path) - 1; i >= 0; i-- {
				id := (*path)[i]
				if id > victim {
					victim = id
				}
				if id == next {
					break
				}
			}
			return victim, true
		}
		if !visited[next] {
			if victim, found := dfs(graph, next, visited, onPath, path); found {
				return victim, true
			}
		}
	}

	onPath[node] = false
	*path = (*path)[:len(*path)-1]
	return primitives.InvalidTxnID, false
}

// removeNode deletes a transaction and every edge touching it.
func removeNode(graph map[primitives.TxnID][]primitives.TxnID, id primitives.TxnID) {
	delete(graph, id)
	for node, successors := range graph {
		kept := successors[:0]
		for _, s := range successors {
			if s != id {
				kept = append(kept, s)
			}
		}
		if len(kept) == 0 {
			delete(graph, node)
		} else {
			graph[node] = kept
		}
	}
}

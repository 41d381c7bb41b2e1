package history

import "sync"

// NodeCache is a bounded message-node cache with insertion-order
// eviction. Nodes are never updated in place, so concurrent readers only
// need the map to be guarded.
type NodeCache struct {
	mu    sync.RWMutex
	nodes map[string]*Node
	order []string
	max   int
}

// NewNodeCache creates a cache holding at most max nodes.
func NewNodeCache(max int) *NodeCache {
	return &NodeCache{
		nodes: make(map[string]*Node),
		max:   max,
	}
}

// Get returns the cached node for id, if present.
func (c *NodeCache) Get(id string) (*Node, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	node, ok := c.nodes[id]
	return node, ok
}

// Put inserts a node, evicting the oldest entries when over capacity.
// A node already present is left untouched.
func (c *NodeCache) Put(node *Node) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.nodes[node.MessageID]; ok {
		return
	}

	c.nodes[node.MessageID] = node
	c.order = append(c.order, node.MessageID)

	for c.max > 0 && len(c.order) > c.max {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.nodes, oldest)
	}
}

// Len returns the number of cached nodes.
func (c *NodeCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.nodes)
}

package queue

import "sync"

// nodePool recycles heap nodes across Enqueue/Remove cycles so Enqueue does
// not allocate a fresh node each time. The Handle returned by Enqueue,
// Dequeue and Move is still a new allocation per call.
var nodePool = sync.Pool{
	New: func() any { return &node{} },
}

func getNode() *node {
	return nodePool.Get().(*node)
}

func putNode(n *node) {
	*n = node{}
	nodePool.Put(n)
}

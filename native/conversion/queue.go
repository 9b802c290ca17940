package conversion

import (
	"errors"
	"math/big"
)

var (
	errAlreadyQueued = errors.New("conversion: position already queued")
	errNotQueued     = errors.New("conversion: position not queued")
)

const nilNode = -1

// supplyNode is one entry in the ascending-by-trigger-price supply list. The
// list is an arena of nodes addressed by stable indices with prev/next links,
// which keeps clones cheap and insertion O(1) when the caller's hint is
// valid.
type supplyNode struct {
	id      [32]byte
	trigger *big.Int
	fee     *big.Int
	prev    int
	next    int
	inUse   bool
}

type supplyList struct {
	nodes []supplyNode
	index map[[32]byte]int
	head  int
	tail  int
	free  []int
	count int
}

func newSupplyList() *supplyList {
	return &supplyList{index: make(map[[32]byte]int), head: nilNode, tail: nilNode}
}

func (l *supplyList) len() int { return l.count }

func (l *supplyList) headEntry() (supplyNode, bool) {
	if l.head == nilNode {
		return supplyNode{}, false
	}
	return l.nodes[l.head], true
}

func (l *supplyList) contains(id [32]byte) bool {
	_, ok := l.index[id]
	return ok
}

func (l *supplyList) alloc(node supplyNode) int {
	if n := len(l.free); n > 0 {
		idx := l.free[n-1]
		l.free = l.free[:n-1]
		l.nodes[idx] = node
		return idx
	}
	l.nodes = append(l.nodes, node)
	return len(l.nodes) - 1
}

// insert places the entry at the point preserving ascending trigger-price
// order. hint names the node to insert after; when its neighbours no longer
// bound the new trigger the list falls back to a linear scan from the head.
func (l *supplyList) insert(id [32]byte, trigger, fee *big.Int, hint [32]byte) error {
	if l.contains(id) {
		return errAlreadyQueued
	}
	after := l.resolveHint(trigger, hint)
	node := supplyNode{id: id, trigger: new(big.Int).Set(trigger), fee: new(big.Int).Set(fee), prev: nilNode, next: nilNode, inUse: true}
	idx := l.alloc(node)
	if after == nilNode {
		// New head.
		l.nodes[idx].next = l.head
		if l.head != nilNode {
			l.nodes[l.head].prev = idx
		}
		l.head = idx
		if l.tail == nilNode {
			l.tail = idx
		}
	} else {
		next := l.nodes[after].next
		l.nodes[idx].prev = after
		l.nodes[idx].next = next
		l.nodes[after].next = idx
		if next != nilNode {
			l.nodes[next].prev = idx
		} else {
			l.tail = idx
		}
	}
	l.index[id] = idx
	l.count++
	return nil
}

// resolveHint returns the node index the new entry should follow, or nilNode
// to insert at the head.
func (l *supplyList) resolveHint(trigger *big.Int, hint [32]byte) int {
	if idx, ok := l.index[hint]; ok {
		node := l.nodes[idx]
		if node.trigger.Cmp(trigger) <= 0 {
			if node.next == nilNode || l.nodes[node.next].trigger.Cmp(trigger) >= 0 {
				return idx
			}
		}
	}
	// Stale or absent hint: bounded scan from the head for the last node with
	// a trigger not exceeding the new one.
	after := nilNode
	for idx := l.head; idx != nilNode; idx = l.nodes[idx].next {
		if l.nodes[idx].trigger.Cmp(trigger) > 0 {
			break
		}
		after = idx
	}
	return after
}

func (l *supplyList) remove(id [32]byte) error {
	idx, ok := l.index[id]
	if !ok {
		return errNotQueued
	}
	node := l.nodes[idx]
	if node.prev != nilNode {
		l.nodes[node.prev].next = node.next
	} else {
		l.head = node.next
	}
	if node.next != nilNode {
		l.nodes[node.next].prev = node.prev
	} else {
		l.tail = node.prev
	}
	l.nodes[idx] = supplyNode{prev: nilNode, next: nilNode}
	l.free = append(l.free, idx)
	delete(l.index, id)
	l.count--
	return nil
}

// entries walks the list head to tail.
func (l *supplyList) entries() []SupplyEntry {
	out := make([]SupplyEntry, 0, l.count)
	for idx := l.head; idx != nilNode; idx = l.nodes[idx].next {
		node := l.nodes[idx]
		out = append(out, SupplyEntry{
			PositionID:   node.id,
			TriggerPrice: new(big.Int).Set(node.trigger),
			Fee:          new(big.Int).Set(node.fee),
		})
	}
	return out
}

func (l *supplyList) clone() *supplyList {
	clone := &supplyList{
		nodes: make([]supplyNode, len(l.nodes)),
		index: make(map[[32]byte]int, len(l.index)),
		head:  l.head,
		tail:  l.tail,
		free:  append([]int(nil), l.free...),
		count: l.count,
	}
	for i, node := range l.nodes {
		copied := node
		if node.trigger != nil {
			copied.trigger = new(big.Int).Set(node.trigger)
		}
		if node.fee != nil {
			copied.fee = new(big.Int).Set(node.fee)
		}
		clone.nodes[i] = copied
	}
	for id, idx := range l.index {
		clone.index[id] = idx
	}
	return clone
}

func cloneRequests(requests []*WithdrawalRequest) []*WithdrawalRequest {
	out := make([]*WithdrawalRequest, len(requests))
	for i, request := range requests {
		out[i] = request.Clone()
	}
	return out
}

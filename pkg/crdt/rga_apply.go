package crdt

import (
	"fmt"
	"sort"
)

func (r *RGA[T]) ensureEdges() {
	if len(r.edges) > 0 {
		return
	}
	if r.edges == nil {
		r.edges = make(map[string][]*RGAVertex[T])
	}
	if len(r.Vertices) > 1 {
		for _, v := range r.Vertices {
			if v.ID == r.Head {
				continue
			}
			r.edges[v.Origin] = append(r.edges[v.Origin], v)
		}
		for _, children := range r.edges {
			sortChildren(children)
		}
	}
}

// InsertAfter 在锚点节点之后插入新值，返回新节点的 ID。
// anchor 为空字符串或头节点 ID 表示插入到序列开头。
// 锚点可以是已打墓碑的节点；墓碑保留正是为了让这种锚定保持稳定。
func (r *RGA[T]) InsertAfter(anchor string, value T) (string, error) {
	r.ensureEdges()

	if anchor == "" {
		anchor = r.Head
	}
	if _, ok := r.Vertices[anchor]; !ok {
		return "", fmt.Errorf("anchor %s not found", anchor)
	}

	r.counter++
	tag := Tag{Replica: r.replica, Counter: r.counter}

	var ts int64
	if r.Clock != nil {
		ts = r.Clock.Now()
	}

	v := &RGAVertex[T]{
		ID:        tag.String(),
		Value:     value,
		Origin:    anchor,
		Timestamp: ts,
	}

	r.Vertices[v.ID] = v
	children := insertChildSorted(r.edges[anchor], v)
	r.edges[anchor] = children

	// 有时钟时新节点的时间戳在兄弟中最大，排在首位，直接链到锚点之后。
	// 无时钟（时间戳为 0）时平局只看 ID，新节点可能排在已有兄弟之后，
	// 此时链到前一兄弟子树最右节点之后。兄弟的子树全部已在链上，
	// 所以单点拼接是安全的。
	rank := 0
	for i, c := range children {
		if c.ID == v.ID {
			rank = i
			break
		}
	}
	insertPos := r.Vertices[anchor]
	if rank > 0 {
		insertPos = r.traverseRightMost(children[rank-1])
	}
	v.Next = insertPos.Next
	insertPos.Next = v.ID

	return v.ID, nil
}

// InsertAt 在可见序列的 index 处插入新值，返回新节点的 ID。
// index 等于当前长度表示追加到末尾。
func (r *RGA[T]) InsertAt(index int, value T) (string, error) {
	if index < 0 {
		return "", fmt.Errorf("index %d out of range", index)
	}

	var anchor string
	if index == 0 {
		anchor = r.Head
	} else {
		id, ok := r.visibleID(index - 1)
		if !ok {
			return "", fmt.Errorf("index %d out of range for length %d", index, r.Len())
		}
		anchor = id
	}
	return r.InsertAfter(anchor, value)
}

// Remove 给指定 ID 的节点打墓碑。返回节点是否存在且此前可见。
// 节点不会被物理删除，锚定在它之后的节点仍然有效。
func (r *RGA[T]) Remove(id string) bool {
	v, ok := r.Vertices[id]
	if !ok || v.Deleted {
		return false
	}
	v.Deleted = true
	if r.Clock != nil {
		v.DeletedAt = r.Clock.Now()
	}
	// 注意：不要在这里清理 edges 缓存，
	// GC 需要它来判断节点是否有子节点。
	return true
}

// RemoveAt 移除可见序列中第 index 个元素。
func (r *RGA[T]) RemoveAt(index int) error {
	id, ok := r.visibleID(index)
	if !ok {
		return fmt.Errorf("index %d out of range for length %d", index, r.Len())
	}
	r.Remove(id)
	return nil
}

// sortChildren sorts by Timestamp DESC, then ID DESC
func sortChildren[T any](children []*RGAVertex[T]) {
	sort.Slice(children, func(i, j int) bool {
		return childComesBefore(children[i], children[j])
	})
}

// childComesBefore 是兄弟节点间的固定平局规则：
// 时间戳大的在前；时间戳相同时 ID 大的在前。
// ID 是标签的规范形式，其字典序等于 (计数器, 副本 ID) 的全序，
// 因此所有副本对并发插入得到同一排列。
func childComesBefore[T any](left *RGAVertex[T], right *RGAVertex[T]) bool {
	if left.Timestamp != right.Timestamp {
		return left.Timestamp > right.Timestamp
	}
	return left.ID > right.ID
}

// insertChildSorted inserts one child into a DESC-sorted sibling list.
func insertChildSorted[T any](children []*RGAVertex[T], v *RGAVertex[T]) []*RGAVertex[T] {
	idx := sort.Search(len(children), func(i int) bool {
		return childComesBefore(v, children[i])
	})
	children = append(children, nil)
	copy(children[idx+1:], children[idx:])
	children[idx] = v
	return children
}

// traverseRightMost finds the right-most node in the subtree rooted at node.
func (r *RGA[T]) traverseRightMost(node *RGAVertex[T]) *RGAVertex[T] {
	curr := node
	for {
		children := r.edges[curr.ID]
		if len(children) == 0 {
			return curr
		}
		lastChild := children[len(children)-1]
		curr = lastChild
	}
}

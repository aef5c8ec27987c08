package crdt

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/crdt-kit/crdt-kit/pkg/hlc"
)

// GC 物理删除早于因果稳定时间的墓碑节点。
// 只回收叶子节点：仍有子节点锚定的墓碑必须保留，
// 否则后续合并会找不到锚点。
func (r *RGA[T]) GC(safeTimestamp int64) int {
	r.ensureEdges()

	count := 0
	prevID := r.Head
	currID := r.Vertices[r.Head].Next

	for currID != "" {
		v := r.Vertices[currID]
		nextID := v.Next

		isLeaf := true
		if children, ok := r.edges[v.ID]; ok && len(children) > 0 {
			isLeaf = false
		}

		canGC := v.Deleted && v.DeletedAt > 0 && v.DeletedAt < safeTimestamp && isLeaf

		if canGC {
			prev := r.Vertices[prevID]
			prev.Next = nextID

			delete(r.Vertices, currID)

			parentID := v.Origin
			if siblings, ok := r.edges[parentID]; ok {
				newSiblings := siblings[:0]
				for _, child := range siblings {
					if child.ID != currID {
						newSiblings = append(newSiblings, child)
					}
				}
				if len(newSiblings) == 0 {
					delete(r.edges, parentID)
				} else {
					r.edges[parentID] = newSiblings
				}
			}

			count++
			currID = nextID
		} else {
			prevID = currID
			currID = nextID
		}
	}

	return count
}

type rgaState[T any] struct {
	Vertices map[string]*RGAVertex[T] `msgpack:"vertices"`
	Head     string                   `msgpack:"head"`
}

// Bytes 序列化 RGA，保留全部节点（含墓碑）、锚点与时间戳。
func (r *RGA[T]) Bytes() ([]byte, error) {
	state := &rgaState[T]{
		Vertices: r.Vertices,
		Head:     r.Head,
	}
	return msgpack.Marshal(state)
}

// FromBytesRGA 反序列化 RGA。
// replica 与 clock 属于本地副本；本地标签计数器从节点 ID 中恢复，
// 时钟追上已观察到的最大时间戳。
func FromBytesRGA[T any](data []byte, replica string, clock *hlc.Clock) (*RGA[T], error) {
	state := &rgaState[T]{}
	if err := msgpack.Unmarshal(data, state); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if state.Vertices == nil || state.Head == "" {
		return nil, fmt.Errorf("RGA 状态缺少头节点: %w", ErrDecode)
	}
	if _, ok := state.Vertices[state.Head]; !ok {
		return nil, fmt.Errorf("RGA 头节点 %s 不存在: %w", state.Head, ErrDecode)
	}

	r := &RGA[T]{
		replica:  replica,
		Vertices: state.Vertices,
		Head:     state.Head,
		Clock:    clock,
		edges:    make(map[string][]*RGAVertex[T]),
	}

	var maxTs int64
	for id, v := range r.Vertices {
		if v.Timestamp > maxTs {
			maxTs = v.Timestamp
		}
		if id == r.Head {
			continue
		}
		tag, err := ParseTag(id)
		if err != nil {
			return nil, err
		}
		if tag.Replica == replica && tag.Counter > r.counter {
			r.counter = tag.Counter
		}
	}
	if clock != nil && maxTs > 0 {
		clock.Update(maxTs)
	}
	return r, nil
}

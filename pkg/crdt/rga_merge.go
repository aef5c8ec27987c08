package crdt

import (
	"fmt"

	"github.com/crdt-kit/crdt-kit/pkg/hlc"
)

// Merge merges another RGA state using incremental updates.
// 只有对方有而本地没有的节点需要确定位置；已有节点只同步墓碑。
func (r *RGA[T]) Merge(other CRDT) error {
	o, ok := other.(*RGA[T])
	if !ok {
		return fmt.Errorf("cannot merge %T into RGA", other)
	}

	r.ensureEdges()

	// 1. Identify missing vertices and add them
	var newVertices []*RGAVertex[T]
	var maxTs int64

	for id, vRemote := range o.Vertices {
		if vRemote.Timestamp > maxTs {
			maxTs = vRemote.Timestamp
		}

		if vLocal, exists := r.Vertices[id]; exists {
			if vRemote.Deleted {
				if !vLocal.Deleted {
					vLocal.Deleted = true
					vLocal.DeletedAt = vRemote.DeletedAt
				} else if vLocal.DeletedAt == 0 || (vRemote.DeletedAt > 0 && vRemote.DeletedAt < vLocal.DeletedAt) {
					// 两边都删过：保留最早的已知删除时间
					vLocal.DeletedAt = vRemote.DeletedAt
				}
			}
		} else {
			vNew := &RGAVertex[T]{
				ID:        vRemote.ID,
				Value:     deepCopyValue(vRemote.Value),
				Origin:    vRemote.Origin,
				Timestamp: vRemote.Timestamp,
				Deleted:   vRemote.Deleted,
				DeletedAt: vRemote.DeletedAt,
			}
			r.Vertices[id] = vNew
			newVertices = append(newVertices, vNew)
			r.edges[vNew.Origin] = append(r.edges[vNew.Origin], vNew)
		}
	}

	// 让时钟追上已合并的时间戳：之后的本地插入在任何兄弟中
	// 时间戳依然最大，本地快速链接路径保持正确。
	if r.Clock != nil && maxTs > 0 {
		r.Clock.Update(maxTs)
	}

	if len(newVertices) == 0 {
		return nil
	}

	// 2. 重新排序收到新节点的锚点的兄弟列表
	affectedOrigins := make(map[string]bool)
	for _, v := range newVertices {
		affectedOrigins[v.Origin] = true
	}
	for originID := range affectedOrigins {
		sortChildren(r.edges[originID])
	}

	// 3. 线性顺序就是锚点树的先序遍历（兄弟按固定平局规则排列）。
	// 从树整体重建 Next 链：逐个拼接新节点时，插入位置可能落在
	// 尚未入链的新节点之后，把链表接错；整体重建没有这种顺序依赖，
	// 结果只由节点集合决定，与合并方向无关。
	r.relink()

	return nil
}

// relink 按锚点树的先序遍历重建 Next 链。
// 要求 edges 缓存完整且各兄弟列表已排序。
func (r *RGA[T]) relink() {
	last := r.Vertices[r.Head]
	var walk func(v *RGAVertex[T])
	walk = func(v *RGAVertex[T]) {
		last.Next = v.ID
		last = v
		for _, child := range r.edges[v.ID] {
			walk(child)
		}
	}
	for _, child := range r.edges[r.Head] {
		walk(child)
	}
	last.Next = ""
}

// Fork 创建一个共享全部历史但使用新身份的副本。
// 新副本的后续插入使用 newReplica 铸造标签，不会与本副本冲突；
// 新时钟会先追上已观察到的最大时间戳。
func (r *RGA[T]) Fork(newReplica string, clock *hlc.Clock) *RGA[T] {
	if clock == nil {
		clock = hlc.New()
	}

	forked := &RGA[T]{
		replica:  newReplica,
		Vertices: make(map[string]*RGAVertex[T], len(r.Vertices)),
		Head:     r.Head,
		Clock:    clock,
		edges:    make(map[string][]*RGAVertex[T]),
	}

	var maxTs int64
	for id, v := range r.Vertices {
		copied := *v
		copied.Value = deepCopyValue(v.Value)
		forked.Vertices[id] = &copied
		if v.Timestamp > maxTs {
			maxTs = v.Timestamp
		}
	}
	if maxTs > 0 {
		clock.Update(maxTs)
	}
	return forked
}

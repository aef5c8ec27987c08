package crdt

import (
	"github.com/crdt-kit/crdt-kit/pkg/hlc"
)

// rgaHead 是虚拟头节点的固定 ID。
// 所有副本共享同一个头节点，独立创建的副本才能直接合并。
const rgaHead = "HEAD"

// RGA 实现复制可增长数组 (Replicated Growable Array)。
// 每个节点有唯一 ID（标签的规范字符串形式）、前驱锚点、
// HLC 时间戳和墓碑标志。全序由锚点链遍历导出，同一锚点下的
// 并发插入按 (时间戳, ID) 降序确定性排列。墓碑只标记不删除，
// 保证后续节点的锚点始终存在。
//
// 状态不含内部锁：一个副本的可变状态由单一执行上下文独占，
// 并发访问需调用方自行串行化。
type RGA[T any] struct {
	replica string
	counter uint64

	Vertices map[string]*RGAVertex[T]
	Head     string     // 虚拟头节点的 ID
	Clock    *hlc.Clock // 混合逻辑时钟

	// internal cache for tree structure: Origin -> List of Children
	// This allows avoiding full reconstruction on every Merge.
	edges map[string][]*RGAVertex[T]
}

// RGAVertex 是 RGA 中的一个节点。
type RGAVertex[T any] struct {
	ID        string // 标签 (副本 ID, 计数器) 的规范字符串形式
	Value     T
	Origin    string // 插入时锚定的前驱节点 ID
	Next      string // 链表中下一个节点的 ID（派生/缓存）
	Timestamp int64  // HLC 时间戳，用于并发插入的平局判定
	Deleted   bool
	DeletedAt int64 // 删除时间，供 GC 使用
}

// NewRGA 创建一个新的空 RGA。
// clock 可为 nil；此时时间戳为 0，平局仅由 ID 决定。
func NewRGA[T any](replica string, clock *hlc.Clock) *RGA[T] {
	head := &RGAVertex[T]{
		ID:        rgaHead,
		Next:      "",
		Timestamp: 0,
		Deleted:   true, // Head 总是被删除/不可见的
	}
	return &RGA[T]{
		replica:  replica,
		Vertices: map[string]*RGAVertex[T]{head.ID: head},
		Head:     head.ID,
		Clock:    clock,
		edges:    make(map[string][]*RGAVertex[T]),
	}
}

func (r *RGA[T]) Type() Type { return TypeRGA }

// Replica 返回本地副本 ID。
func (r *RGA[T]) Replica() string {
	return r.replica
}

// deepCopyValue 尝试对值进行深拷贝，主要处理 []byte 类型
func deepCopyValue[T any](value T) T {
	if bytesVal, ok := any(value).([]byte); ok {
		copied := make([]byte, len(bytesVal))
		copy(copied, bytesVal)
		return any(copied).(T)
	}
	// 其他类型假设是不可变的或可以浅拷贝的
	return value
}

// Slice 按顺序返回可见值的切片。
func (r *RGA[T]) Slice() []T {
	capHint := 0
	if len(r.Vertices) > 1 {
		capHint = len(r.Vertices) - 1
	}
	res := make([]T, 0, capHint)
	curr := r.Head
	for curr != "" {
		v := r.Vertices[curr]
		if !v.Deleted {
			res = append(res, v.Value)
		}
		curr = v.Next
	}
	return res
}

// Value 按顺序返回值的列表。
func (r *RGA[T]) Value() any {
	return r.Slice()
}

// Len 返回可见元素个数。
func (r *RGA[T]) Len() int {
	n := 0
	curr := r.Head
	for curr != "" {
		v := r.Vertices[curr]
		if !v.Deleted {
			n++
		}
		curr = v.Next
	}
	return n
}

// Get 返回第 index 个可见元素。
func (r *RGA[T]) Get(index int) (T, bool) {
	if index >= 0 {
		i := 0
		curr := r.Head
		for curr != "" {
			v := r.Vertices[curr]
			if !v.Deleted {
				if i == index {
					return v.Value, true
				}
				i++
			}
			curr = v.Next
		}
	}
	var zero T
	return zero, false
}

// Iterator 返回一个迭代器函数。
// 每次调用该函数，返回 (下一个值, true)；遍历结束后返回 (零值, false)。
// 迭代器创建时对可见节点做快照，之后的修改不影响迭代。
func (r *RGA[T]) Iterator() func() (T, bool) {
	capHint := 0
	if len(r.Vertices) > 1 {
		capHint = len(r.Vertices) - 1
	}

	currID := r.Head
	snapshot := make([]*RGAVertex[T], 0, capHint)
	for currID != "" {
		v := r.Vertices[currID]
		currID = v.Next
		if !v.Deleted {
			snapshot = append(snapshot, v)
		}
	}

	index := 0
	return func() (T, bool) {
		if index < len(snapshot) {
			val := snapshot[index].Value
			index++
			return val, true
		}
		var zero T
		return zero, false
	}
}

// visibleID 返回第 index 个可见节点的 ID。
func (r *RGA[T]) visibleID(index int) (string, bool) {
	if index < 0 {
		return "", false
	}
	i := 0
	curr := r.Head
	for curr != "" {
		v := r.Vertices[curr]
		if !v.Deleted {
			if i == index {
				return curr, true
			}
			i++
		}
		curr = v.Next
	}
	return "", false
}

package crdt

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// TwoPSet 实现两阶段集合 (2P-Set)。
// 它由两个 GSet 组成：added 和 removed。元素可见当且仅当
// 它在 added 中且不在 removed 中。removed 是永久墓碑：
// 一旦移除，重新 Add 也不会让元素再次出现。
// 这是与 ORSet 的刻意取舍；需要重新添加语义时使用 ORSet。
type TwoPSet[T comparable] struct {
	added   *GSet[T]
	removed *GSet[T]
}

// NewTwoPSet 创建一个新的 TwoPSet。
func NewTwoPSet[T comparable]() *TwoPSet[T] {
	return &TwoPSet[T]{
		added:   NewGSet[T](),
		removed: NewGSet[T](),
	}
}

func (s *TwoPSet[T]) Type() Type {
	return TypeTwoPSet
}

// Add 将元素加入集合。
// 如果元素已被移除过，则不会再次可见。
func (s *TwoPSet[T]) Add(elem T) {
	s.added.Add(elem)
}

// Remove 移除元素。只有当前可见的元素才会被移除，
// 保证 removed ⊆ added。返回是否真的移除了。
func (s *TwoPSet[T]) Remove(elem T) bool {
	if !s.Contains(elem) {
		return false
	}
	s.removed.Add(elem)
	return true
}

// Contains 判断元素是否可见。
func (s *TwoPSet[T]) Contains(elem T) bool {
	return s.added.Contains(elem) && !s.removed.Contains(elem)
}

// Elements 返回可见元素（顺序不保证）。
func (s *TwoPSet[T]) Elements() []T {
	elems := make([]T, 0, s.added.Len())
	for _, e := range s.added.Elements() {
		if !s.removed.Contains(e) {
			elems = append(elems, e)
		}
	}
	return elems
}

// Len 返回可见元素个数。
func (s *TwoPSet[T]) Len() int {
	return len(s.Elements())
}

func (s *TwoPSet[T]) Value() any {
	return s.Elements()
}

func (s *TwoPSet[T]) Merge(other CRDT) error {
	o, ok := other.(*TwoPSet[T])
	if !ok {
		return fmt.Errorf("cannot merge %T into TwoPSet", other)
	}

	if err := s.added.Merge(o.added); err != nil {
		return err
	}
	return s.removed.Merge(o.removed)
}

func (s *TwoPSet[T]) GC(safeTimestamp int64) int {
	return 0
}

// twopsetState 是编码用的完整状态。removed 必须随状态一起传输，
// 否则移除信息会在后续合并中丢失。
type twopsetState[T comparable] struct {
	Added   []T `msgpack:"added"`
	Removed []T `msgpack:"removed"`
}

// Bytes 序列化 TwoPSet。两个集合都排序后编码，字节是确定的。
func (s *TwoPSet[T]) Bytes() ([]byte, error) {
	state := twopsetState[T]{
		Added:   s.added.sortedElements(),
		Removed: s.removed.sortedElements(),
	}
	return msgpack.Marshal(&state)
}

// FromBytesTwoPSet 反序列化 TwoPSet。
func FromBytesTwoPSet[T comparable](data []byte) (*TwoPSet[T], error) {
	var state twopsetState[T]
	if err := msgpack.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	s := NewTwoPSet[T]()
	for _, e := range state.Added {
		s.added.Add(e)
	}
	for _, e := range state.Removed {
		s.removed.Add(e)
	}
	return s, nil
}

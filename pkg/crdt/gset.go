package crdt

import (
	"fmt"
	"sort"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/vmihailenco/msgpack/v5"
)

// GSet 实现只增集合：合并是并集，不存在移除路径。
// 需要移除语义时应使用 TwoPSet 或 ORSet。
type GSet[T comparable] struct {
	set mapset.Set[T]
}

// NewGSet 创建一个新的 GSet。
// GSet 不铸造标签，因此不需要副本 ID。
func NewGSet[T comparable]() *GSet[T] {
	return &GSet[T]{
		set: mapset.NewThreadUnsafeSet[T](),
	}
}

func (s *GSet[T]) Type() Type {
	return TypeGSet
}

// Add 将元素加入集合。
func (s *GSet[T]) Add(elem T) {
	s.set.Add(elem)
}

// Contains 判断元素是否在集合中。
func (s *GSet[T]) Contains(elem T) bool {
	return s.set.Contains(elem)
}

// Elements 返回集合中的全部元素（顺序不保证）。
func (s *GSet[T]) Elements() []T {
	return s.set.ToSlice()
}

// Len 返回集合大小。
func (s *GSet[T]) Len() int {
	return s.set.Cardinality()
}

func (s *GSet[T]) Value() any {
	return s.Elements()
}

func (s *GSet[T]) Merge(other CRDT) error {
	o, ok := other.(*GSet[T])
	if !ok {
		return fmt.Errorf("cannot merge %T into GSet", other)
	}

	o.set.Each(func(elem T) bool {
		s.set.Add(elem)
		return false
	})
	return nil
}

func (s *GSet[T]) GC(safeTimestamp int64) int {
	return 0
}

// Bytes 序列化 GSet。元素排序后编码，字节不依赖集合的迭代顺序。
func (s *GSet[T]) Bytes() ([]byte, error) {
	return msgpack.Marshal(s.sortedElements())
}

// sortedElements 按元素的字符串形式排序导出。
func (s *GSet[T]) sortedElements() []T {
	elems := s.set.ToSlice()
	sort.Slice(elems, func(i, j int) bool {
		return fmt.Sprint(elems[i]) < fmt.Sprint(elems[j])
	})
	return elems
}

// FromBytesGSet 反序列化 GSet。
func FromBytesGSet[T comparable](data []byte) (*GSet[T], error) {
	var elems []T
	if err := msgpack.Unmarshal(data, &elems); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	s := NewGSet[T]()
	for _, e := range elems {
		s.set.Add(e)
	}
	return s, nil
}

package crdt

import (
	"fmt"
	"sort"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/crdt-kit/crdt-kit/pkg/hlc"
)

// ORSet 实现观察-移除 (Observed-Remove) 集合。
// 每次 Add 铸造一个唯一标签；Remove 只给本副本此刻观察到的
// 标签打墓碑，未合并进来的并发 Add 不受影响——这就是
// add-wins 语义：并发的 添加/移除 冲突中添加胜出。
type ORSet[T comparable] struct {
	replica string
	counter uint64
	clock   *hlc.Clock // 用于记录墓碑时间，供 GC 使用；可为 nil

	// addSet: 元素 -> 存活标签集合。元素可见当且仅当它至少有一个存活标签。
	addSet map[T]map[Tag]struct{}

	// tombstones: 被移除的标签 -> 移除时的 HLC 时间戳（无时钟时为 0）。
	// 墓碑永不复活。
	tombstones map[Tag]int64
}

// NewORSet 创建一个新的 ORSet。
// clock 可为 nil；此时墓碑不带时间戳，GC 不会回收它们。
func NewORSet[T comparable](replica string, clock *hlc.Clock) *ORSet[T] {
	return &ORSet[T]{
		replica:    replica,
		clock:      clock,
		addSet:     make(map[T]map[Tag]struct{}),
		tombstones: make(map[Tag]int64),
	}
}

func (s *ORSet[T]) Type() Type {
	return TypeORSet
}

// Replica 返回本地副本 ID。
func (s *ORSet[T]) Replica() string {
	return s.replica
}

// Add 将元素加入集合，返回铸造的标签。
// 即使元素此前被移除，新标签也会让它重新可见。
func (s *ORSet[T]) Add(elem T) Tag {
	s.counter++
	tag := Tag{Replica: s.replica, Counter: s.counter}
	if s.addSet[elem] == nil {
		s.addSet[elem] = make(map[Tag]struct{})
	}
	s.addSet[elem][tag] = struct{}{}
	return tag
}

// Remove 移除元素。
// 只有本副本此刻可见的标签会被打墓碑；其他副本并发铸造、
// 尚未合并进来的标签不受影响（观察先于移除）。
// 返回元素是否曾可见。
func (s *ORSet[T]) Remove(elem T) bool {
	tags, ok := s.addSet[elem]
	if !ok {
		return false
	}

	var removedAt int64
	if s.clock != nil {
		removedAt = s.clock.Now()
	}
	for tag := range tags {
		s.tombstones[tag] = removedAt
	}
	// 立即从 addSet 中删除，节省空间和后续遍历时间
	delete(s.addSet, elem)
	return true
}

// Contains 判断元素是否可见。
func (s *ORSet[T]) Contains(elem T) bool {
	tags, ok := s.addSet[elem]
	return ok && len(tags) > 0
}

// Elements 返回可见元素（顺序不保证）。
func (s *ORSet[T]) Elements() []T {
	elems := make([]T, 0, len(s.addSet))
	for e, tags := range s.addSet {
		if len(tags) > 0 {
			elems = append(elems, e)
		}
	}
	return elems
}

// Len 返回可见元素个数。
func (s *ORSet[T]) Len() int {
	n := 0
	for _, tags := range s.addSet {
		if len(tags) > 0 {
			n++
		}
	}
	return n
}

func (s *ORSet[T]) Value() any {
	return s.Elements()
}

func (s *ORSet[T]) Merge(other CRDT) error {
	o, ok := other.(*ORSet[T])
	if !ok {
		return fmt.Errorf("cannot merge %T into ORSet", other)
	}

	// 1. 合并墓碑。时间戳取最早的已知非零值。
	for tag, removedAt := range o.tombstones {
		s.mergeTombstone(tag, removedAt)
	}

	// 2. 合并存活标签，跳过已有墓碑的
	for elem, tags := range o.addSet {
		for tag := range tags {
			if _, dead := s.tombstones[tag]; dead {
				continue
			}
			if s.addSet[elem] == nil {
				s.addSet[elem] = make(map[Tag]struct{})
			}
			s.addSet[elem][tag] = struct{}{}
		}
	}

	// 3. 清理 addSet 中已经被对方墓碑覆盖的标签
	s.pruneDead()
	return nil
}

func (s *ORSet[T]) mergeTombstone(tag Tag, removedAt int64) {
	existing, ok := s.tombstones[tag]
	if !ok {
		s.tombstones[tag] = removedAt
		return
	}
	if existing == 0 || (removedAt > 0 && removedAt < existing) {
		s.tombstones[tag] = removedAt
	}
}

func (s *ORSet[T]) pruneDead() {
	for elem, tags := range s.addSet {
		for tag := range tags {
			if _, dead := s.tombstones[tag]; dead {
				delete(tags, tag)
			}
		}
		if len(tags) == 0 {
			delete(s.addSet, elem)
		}
	}
}

// GC 物理删除早于因果稳定时间的墓碑。
// 只有所有副本都已观察到的墓碑才可以安全回收，
// safeTimestamp 的取得由存储协作方负责。
func (s *ORSet[T]) GC(safeTimestamp int64) int {
	count := 0
	for tag, removedAt := range s.tombstones {
		if removedAt > 0 && removedAt < safeTimestamp {
			delete(s.tombstones, tag)
			count++
		}
	}
	return count
}

// Summarize 返回本副本观察进度的摘要：
// 每个副本已观察到的最大标签计数器，以及全部已知墓碑。
func (s *ORSet[T]) Summarize() VersionSummary {
	counts := map[string]uint64{}
	observe := func(tag Tag) {
		if counts[tag.Replica] < tag.Counter {
			counts[tag.Replica] = tag.Counter
		}
	}
	for _, tags := range s.addSet {
		for tag := range tags {
			observe(tag)
		}
	}
	for tag := range s.tombstones {
		observe(tag)
	}
	if counts[s.replica] < s.counter {
		counts[s.replica] = s.counter
	}

	tombs := make(map[Tag]struct{}, len(s.tombstones))
	for tag := range s.tombstones {
		tombs[tag] = struct{}{}
	}
	return VersionSummary{Counts: counts, Tombstones: tombs}
}

// ORSetDelta 携带对端尚不知道的新标签与新墓碑。
type ORSetDelta[T comparable] struct {
	Additions  map[T][]Tag   `msgpack:"additions"`
	Tombstones map[Tag]int64 `msgpack:"tombstones"`
}

func (d ORSetDelta[T]) Type() Type { return TypeORSet }

// Delta 返回摘要为 since 的对端尚不知道的变化：
// 计数器超出对端版本向量的存活标签，以及对端没有的墓碑。
func (s *ORSet[T]) Delta(since VersionSummary) Delta {
	d := ORSetDelta[T]{
		Additions:  make(map[T][]Tag),
		Tombstones: make(map[Tag]int64),
	}

	for elem, tags := range s.addSet {
		for tag := range tags {
			if tag.Counter > since.Counts[tag.Replica] {
				d.Additions[elem] = append(d.Additions[elem], tag)
			}
		}
	}

	for tag, removedAt := range s.tombstones {
		if _, known := since.Tombstones[tag]; !known {
			d.Tombstones[tag] = removedAt
		}
	}
	if len(d.Additions) == 0 && len(d.Tombstones) == 0 {
		return nil
	}
	return d
}

func (s *ORSet[T]) ApplyDelta(d Delta) error {
	od, ok := d.(ORSetDelta[T])
	if !ok {
		return ErrInvalidDelta
	}

	for tag, removedAt := range od.Tombstones {
		s.mergeTombstone(tag, removedAt)
	}

	for elem, tags := range od.Additions {
		for _, tag := range tags {
			if _, dead := s.tombstones[tag]; dead {
				continue
			}
			if s.addSet[elem] == nil {
				s.addSet[elem] = make(map[Tag]struct{})
			}
			s.addSet[elem][tag] = struct{}{}
		}
	}

	s.pruneDead()
	return nil
}

// orsetEntry / orsetTomb 是编码用的结构。标签展开为切片并排序，
// 保证编码不依赖 map 迭代顺序。
type orsetEntry[T comparable] struct {
	Elem T     `msgpack:"elem"`
	Tags []Tag `msgpack:"tags"`
}

type orsetTomb struct {
	Tag       Tag   `msgpack:"tag"`
	RemovedAt int64 `msgpack:"removed_at"`
}

type orsetState[T comparable] struct {
	Counter    uint64          `msgpack:"counter"`
	Entries    []orsetEntry[T] `msgpack:"entries"`
	Tombstones []orsetTomb     `msgpack:"tombstones"`
}

// Bytes 序列化 ORSet，保留全部标签与墓碑。
func (s *ORSet[T]) Bytes() ([]byte, error) {
	state := orsetState[T]{Counter: s.counter}

	for elem, tags := range s.addSet {
		entry := orsetEntry[T]{Elem: elem, Tags: make([]Tag, 0, len(tags))}
		for tag := range tags {
			entry.Tags = append(entry.Tags, tag)
		}
		sort.Slice(entry.Tags, func(i, j int) bool {
			return entry.Tags[i].Less(entry.Tags[j])
		})
		state.Entries = append(state.Entries, entry)
	}
	sort.Slice(state.Entries, func(i, j int) bool {
		return fmt.Sprint(state.Entries[i].Elem) < fmt.Sprint(state.Entries[j].Elem)
	})

	for tag, removedAt := range s.tombstones {
		state.Tombstones = append(state.Tombstones, orsetTomb{Tag: tag, RemovedAt: removedAt})
	}
	sort.Slice(state.Tombstones, func(i, j int) bool {
		return state.Tombstones[i].Tag.Less(state.Tombstones[j].Tag)
	})

	return msgpack.Marshal(&state)
}

// FromBytesORSet 反序列化 ORSet。
// replica 与 clock 属于本地副本；本地计数器从字节中恢复，
// 保证重启后铸造的标签不与历史标签冲突。
func FromBytesORSet[T comparable](data []byte, replica string, clock *hlc.Clock) (*ORSet[T], error) {
	var state orsetState[T]
	if err := msgpack.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	s := NewORSet[T](replica, clock)
	for _, entry := range state.Entries {
		tags := make(map[Tag]struct{}, len(entry.Tags))
		for _, tag := range entry.Tags {
			tags[tag] = struct{}{}
		}
		s.addSet[entry.Elem] = tags
	}
	for _, tomb := range state.Tombstones {
		s.tombstones[tomb.Tag] = tomb.RemovedAt
	}

	// 恢复本副本的计数器：取序列化的值与已观察标签中的最大值
	s.counter = state.Counter
	for _, tags := range s.addSet {
		for tag := range tags {
			if tag.Replica == replica && tag.Counter > s.counter {
				s.counter = tag.Counter
			}
		}
	}
	for tag := range s.tombstones {
		if tag.Replica == replica && tag.Counter > s.counter {
			s.counter = tag.Counter
		}
	}
	return s, nil
}

package crdt

import (
	"fmt"
	"sort"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

// MVRegister 实现多值寄存器。
// 与 LWWRegister 不同，它保留所有并发写入的值：
// 合并后仍有多个条目意味着冲突，由应用层决定如何消解，
// 这是正常的可见结果，不是错误。
type MVRegister[T any] struct {
	replica string

	// version 是本副本的版本向量：副本 ID -> 计数器。
	version map[string]uint64

	// entries 是当前存活的 (值, 写入时的版本戳) 条目。
	entries []mvEntry[T]
}

type mvEntry[T any] struct {
	Value   T
	Version map[string]uint64
}

// NewMVRegister 创建一个新的空 MVRegister。
func NewMVRegister[T any](replica string) *MVRegister[T] {
	return &MVRegister[T]{
		replica: replica,
		version: make(map[string]uint64),
	}
}

func (r *MVRegister[T]) Type() Type {
	return TypeMVRegister
}

// Replica 返回本地副本 ID。
func (r *MVRegister[T]) Replica() string {
	return r.replica
}

// Set 写入新值，取代本副本当前可见的所有条目。
// 写入的版本戳因果支配此前本副本观察到的全部条目。
func (r *MVRegister[T]) Set(value T) {
	r.version[r.replica]++

	stamp := make(map[string]uint64, len(r.version))
	for replica, count := range r.version {
		stamp[replica] = count
	}

	r.entries = r.entries[:0]
	r.entries = append(r.entries, mvEntry[T]{Value: value, Version: stamp})
}

// Values 返回当前所有存活的值。
// 正常情况下只有一个；合并并发写入后可能有多个。
// 顺序按版本戳的规范形式排序，跨副本确定。
func (r *MVRegister[T]) Values() []T {
	entries := append([]mvEntry[T](nil), r.entries...)
	sort.Slice(entries, func(i, j int) bool {
		return stampKey(entries[i].Version) < stampKey(entries[j].Version)
	})

	vals := make([]T, 0, len(entries))
	for _, e := range entries {
		vals = append(vals, e.Value)
	}
	return vals
}

// IsConflicted 判断寄存器是否处于冲突状态（保留了多个并发值）。
func (r *MVRegister[T]) IsConflicted() bool {
	return len(r.entries) > 1
}

func (r *MVRegister[T]) Value() any {
	return r.Values()
}

// stampKey 返回版本戳的规范字符串，用于确定性排序与条目去重。
func stampKey(stamp map[string]uint64) string {
	replicas := make([]string, 0, len(stamp))
	for replica := range stamp {
		if stamp[replica] > 0 {
			replicas = append(replicas, replica)
		}
	}
	sort.Strings(replicas)

	var b strings.Builder
	for _, replica := range replicas {
		fmt.Fprintf(&b, "%s=%d;", replica, stamp[replica])
	}
	return b.String()
}

// dominates 判断版本向量 a 是否支配 b：a 的每个分量 >= b 的对应分量。
// 与 sameStamp 结合使用时，严格支配意味着 b 的写入已被取代。
func dominates(a, b map[string]uint64) bool {
	for replica, count := range b {
		if a[replica] < count {
			return false
		}
	}
	return true
}

func sameStamp(a, b map[string]uint64) bool {
	return dominates(a, b) && dominates(b, a)
}

func (r *MVRegister[T]) Merge(other CRDT) error {
	o, ok := other.(*MVRegister[T])
	if !ok {
		return fmt.Errorf("cannot merge %T into MVRegister", other)
	}

	// 合并前先保存本地版本向量，支配性判断要基于合并前的知识
	selfVersion := make(map[string]uint64, len(r.version))
	for replica, count := range r.version {
		selfVersion[replica] = count
	}

	var merged []mvEntry[T]

	// 保留本地条目：未被对方版本支配（并发或更新），
	// 或对方也仍持有同一版本戳的条目
	for _, e := range r.entries {
		keep := !dominates(o.version, e.Version)
		if !keep {
			for _, oe := range o.entries {
				if sameStamp(oe.Version, e.Version) {
					keep = true
					break
				}
			}
		}
		if keep {
			merged = append(merged, e)
		}
	}

	// 加入对方条目：未被本地原版本支配，且尚未加入
	for _, oe := range o.entries {
		if dominates(selfVersion, oe.Version) {
			continue
		}
		dup := false
		for _, e := range merged {
			if sameStamp(e.Version, oe.Version) {
				dup = true
				break
			}
		}
		if !dup {
			merged = append(merged, copyEntry(oe))
		}
	}

	// 合并版本向量（逐分量取最大值）
	for replica, count := range o.version {
		if r.version[replica] < count {
			r.version[replica] = count
		}
	}

	r.entries = merged
	return nil
}

func copyEntry[T any](e mvEntry[T]) mvEntry[T] {
	stamp := make(map[string]uint64, len(e.Version))
	for replica, count := range e.Version {
		stamp[replica] = count
	}
	return mvEntry[T]{Value: e.Value, Version: stamp}
}

func (r *MVRegister[T]) GC(safeTimestamp int64) int {
	return 0
}

// mvStamp 是版本向量的单个分量，编码时映射转成排序切片，
// 字节不依赖 Go map 的迭代顺序。
type mvStamp struct {
	Replica string `msgpack:"replica"`
	Count   uint64 `msgpack:"count"`
}

type mvStateEntry[T any] struct {
	Value   T         `msgpack:"value"`
	Version []mvStamp `msgpack:"version"`
}

// mvState 是编码用的完整状态。版本向量必须随条目一起传输，
// 否则后续合并无法判断支配关系。
type mvState[T any] struct {
	Version []mvStamp         `msgpack:"version"`
	Entries []mvStateEntry[T] `msgpack:"entries"`
}

func sortedStamps(stamp map[string]uint64) []mvStamp {
	out := make([]mvStamp, 0, len(stamp))
	for replica, count := range stamp {
		out = append(out, mvStamp{Replica: replica, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Replica < out[j].Replica
	})
	return out
}

func stampMap(stamps []mvStamp) map[string]uint64 {
	out := make(map[string]uint64, len(stamps))
	for _, s := range stamps {
		out[s.Replica] = s.Count
	}
	return out
}

// Bytes 序列化 MVRegister。
func (r *MVRegister[T]) Bytes() ([]byte, error) {
	entries := append([]mvEntry[T](nil), r.entries...)
	sort.Slice(entries, func(i, j int) bool {
		return stampKey(entries[i].Version) < stampKey(entries[j].Version)
	})

	state := mvState[T]{
		Version: sortedStamps(r.version),
		Entries: make([]mvStateEntry[T], 0, len(entries)),
	}
	for _, e := range entries {
		state.Entries = append(state.Entries, mvStateEntry[T]{
			Value:   e.Value,
			Version: sortedStamps(e.Version),
		})
	}
	return msgpack.Marshal(&state)
}

// FromBytesMVRegister 反序列化 MVRegister。
func FromBytesMVRegister[T any](data []byte, replica string) (*MVRegister[T], error) {
	var state mvState[T]
	if err := msgpack.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	r := NewMVRegister[T](replica)
	if len(state.Version) > 0 {
		r.version = stampMap(state.Version)
	}
	for _, e := range state.Entries {
		r.entries = append(r.entries, mvEntry[T]{
			Value:   e.Value,
			Version: stampMap(e.Version),
		})
	}
	return r, nil
}

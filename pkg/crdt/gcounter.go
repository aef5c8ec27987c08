package crdt

import (
	"fmt"
	"sort"

	"github.com/vmihailenco/msgpack/v5"
)

// GCounter 实现只增计数器。
// 每个副本维护自己的计数，总值是所有副本计数之和。
type GCounter struct {
	replica string
	counts  map[string]uint64
}

// NewGCounter 创建一个新的 GCounter。
func NewGCounter(replica string) *GCounter {
	return &GCounter{
		replica: replica,
		counts:  make(map[string]uint64),
	}
}

func (c *GCounter) Type() Type {
	return TypeGCounter
}

// Replica 返回本地副本 ID。
func (c *GCounter) Replica() string {
	return c.replica
}

// Increment 将本副本的计数加 1。
func (c *GCounter) Increment() {
	c.counts[c.replica]++
}

// IncrementBy 将本副本的计数加 n。
func (c *GCounter) IncrementBy(n uint64) {
	c.counts[c.replica] += n
}

// Count 返回所有副本计数之和。
func (c *GCounter) Count() uint64 {
	var total uint64
	for _, v := range c.counts {
		total += v
	}
	return total
}

// CountFor 返回特定副本的计数。
func (c *GCounter) CountFor(replica string) uint64 {
	return c.counts[replica]
}

func (c *GCounter) Value() any {
	return c.Count()
}

func (c *GCounter) Merge(other CRDT) error {
	o, ok := other.(*GCounter)
	if !ok {
		return fmt.Errorf("cannot merge %T into GCounter", other)
	}

	for replica, count := range o.counts {
		if c.counts[replica] < count {
			c.counts[replica] = count
		}
	}
	return nil
}

func (c *GCounter) GC(safeTimestamp int64) int {
	return 0
}

// Summarize 返回每个副本已知计数的摘要。
func (c *GCounter) Summarize() VersionSummary {
	counts := make(map[string]uint64, len(c.counts))
	for replica, count := range c.counts {
		counts[replica] = count
	}
	return VersionSummary{Counts: counts}
}

// GCounterDelta 携带对端尚不知道的每副本计数。
type GCounterDelta struct {
	Counts map[string]uint64 `msgpack:"counts"`
}

func (d GCounterDelta) Type() Type { return TypeGCounter }

// Delta 返回高于 since 中已知值的计数项。没有新变化时返回 nil。
func (c *GCounter) Delta(since VersionSummary) Delta {
	counts := c.deltaCounts(since.Counts)
	if len(counts) == 0 {
		return nil
	}
	return GCounterDelta{Counts: counts}
}

func (c *GCounter) deltaCounts(known map[string]uint64) map[string]uint64 {
	out := make(map[string]uint64)
	for replica, count := range c.counts {
		if count > known[replica] {
			out[replica] = count
		}
	}
	return out
}

func (c *GCounter) ApplyDelta(d Delta) error {
	gd, ok := d.(GCounterDelta)
	if !ok {
		return ErrInvalidDelta
	}
	for replica, count := range gd.Counts {
		if c.counts[replica] < count {
			c.counts[replica] = count
		}
	}
	return nil
}

// gcounterEntry 是编码用的单个副本计数。
type gcounterEntry struct {
	Replica string `msgpack:"replica"`
	Count   uint64 `msgpack:"count"`
}

// sortedEntries 按副本 ID 排序导出计数，避免 map 迭代顺序泄漏到字节中。
func (c *GCounter) sortedEntries() []gcounterEntry {
	entries := make([]gcounterEntry, 0, len(c.counts))
	for replica, count := range c.counts {
		entries = append(entries, gcounterEntry{Replica: replica, Count: count})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Replica < entries[j].Replica
	})
	return entries
}

// Bytes 序列化 GCounter。
func (c *GCounter) Bytes() ([]byte, error) {
	return msgpack.Marshal(c.sortedEntries())
}

// FromBytesGCounter 反序列化 GCounter。
// replica 是本地副本 ID，不参与序列化。
func FromBytesGCounter(data []byte, replica string) (*GCounter, error) {
	var entries []gcounterEntry
	if err := msgpack.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	c := NewGCounter(replica)
	for _, e := range entries {
		c.counts[e.Replica] = e.Count
	}
	return c, nil
}

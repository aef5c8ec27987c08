package crdt

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// PNCounter 实现正负计数器。
// 它由两个 GCounter 组成：一个记录增量，一个记录减量，
// 总值 = 增量之和 - 减量之和。两个分量各自满足只增不变式。
type PNCounter struct {
	inc *GCounter
	dec *GCounter
}

// NewPNCounter 创建一个新的 PNCounter。
func NewPNCounter(replica string) *PNCounter {
	return &PNCounter{
		inc: NewGCounter(replica),
		dec: NewGCounter(replica),
	}
}

func (c *PNCounter) Type() Type {
	return TypePNCounter
}

// Replica 返回本地副本 ID。
func (c *PNCounter) Replica() string {
	return c.inc.replica
}

// Increment 将计数器加 1。
func (c *PNCounter) Increment() {
	c.inc.Increment()
}

// IncrementBy 将计数器加 n。
func (c *PNCounter) IncrementBy(n uint64) {
	c.inc.IncrementBy(n)
}

// Decrement 将计数器减 1。
func (c *PNCounter) Decrement() {
	c.dec.Increment()
}

// DecrementBy 将计数器减 n。
func (c *PNCounter) DecrementBy(n uint64) {
	c.dec.IncrementBy(n)
}

// Count 返回当前计数值 (增量 - 减量)。
func (c *PNCounter) Count() int64 {
	return int64(c.inc.Count()) - int64(c.dec.Count())
}

func (c *PNCounter) Value() any {
	return c.Count()
}

func (c *PNCounter) Merge(other CRDT) error {
	o, ok := other.(*PNCounter)
	if !ok {
		return fmt.Errorf("cannot merge %T into PNCounter", other)
	}

	if err := c.inc.Merge(o.inc); err != nil {
		return err
	}
	return c.dec.Merge(o.dec)
}

func (c *PNCounter) GC(safeTimestamp int64) int {
	return 0
}

// Summarize 返回两个分量的进度摘要。
func (c *PNCounter) Summarize() VersionSummary {
	return VersionSummary{
		Counts:     c.inc.Summarize().Counts,
		Decrements: c.dec.Summarize().Counts,
	}
}

// PNCounterDelta 携带两个分量各自的 Delta。
type PNCounterDelta struct {
	Inc GCounterDelta `msgpack:"inc"`
	Dec GCounterDelta `msgpack:"dec"`
}

func (d PNCounterDelta) Type() Type { return TypePNCounter }

// Delta 返回对端尚不知道的增量与减量。没有新变化时返回 nil。
func (c *PNCounter) Delta(since VersionSummary) Delta {
	inc := c.inc.deltaCounts(since.Counts)
	dec := c.dec.deltaCounts(since.Decrements)
	if len(inc) == 0 && len(dec) == 0 {
		return nil
	}
	return PNCounterDelta{
		Inc: GCounterDelta{Counts: inc},
		Dec: GCounterDelta{Counts: dec},
	}
}

func (c *PNCounter) ApplyDelta(d Delta) error {
	pd, ok := d.(PNCounterDelta)
	if !ok {
		return ErrInvalidDelta
	}
	if err := c.inc.ApplyDelta(pd.Inc); err != nil {
		return err
	}
	return c.dec.ApplyDelta(pd.Dec)
}

// pncounterState 是编码用的完整状态。
type pncounterState struct {
	Inc []gcounterEntry `msgpack:"inc"`
	Dec []gcounterEntry `msgpack:"dec"`
}

// Bytes 序列化 PNCounter。
func (c *PNCounter) Bytes() ([]byte, error) {
	state := pncounterState{
		Inc: c.inc.sortedEntries(),
		Dec: c.dec.sortedEntries(),
	}
	return msgpack.Marshal(&state)
}

// FromBytesPNCounter 反序列化 PNCounter。
func FromBytesPNCounter(data []byte, replica string) (*PNCounter, error) {
	var state pncounterState
	if err := msgpack.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	c := NewPNCounter(replica)
	for _, e := range state.Inc {
		c.inc.counts[e.Replica] = e.Count
	}
	for _, e := range state.Dec {
		c.dec.counts[e.Replica] = e.Count
	}
	return c, nil
}

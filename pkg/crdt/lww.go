package crdt

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/crdt-kit/crdt-kit/pkg/hlc"
)

// LWWRegister 实现最后写入胜出 (Last-Write-Wins) 寄存器。
// 合并保留 (时间戳, 写入者副本 ID) 字典序更大的一方，
// 副本 ID 用于确定性地打破时间戳完全相同的平局。
// 同一 (时间戳, 写入者) 下出现不同值意味着调用方违反了
// 副本 ID 唯一性契约，这里不做检测。
type LWWRegister[T any] struct {
	replica string
	clock   *hlc.Clock

	value   T
	written bool

	timestamp int64
	writer    string // 最后写入者的副本 ID
}

// NewLWWRegister 创建一个新的空 LWWRegister。
// clock 用于给写入打时间戳；传入注入时间源的时钟可获得确定性行为。
func NewLWWRegister[T any](replica string, clock *hlc.Clock) *LWWRegister[T] {
	return &LWWRegister[T]{
		replica: replica,
		clock:   clock,
	}
}

func (r *LWWRegister[T]) Type() Type {
	return TypeLWWRegister
}

// Replica 返回本地副本 ID。
func (r *LWWRegister[T]) Replica() string {
	return r.replica
}

// Set 写入新值，时间戳取自时钟。
func (r *LWWRegister[T]) Set(value T) {
	var ts int64
	if r.clock != nil {
		ts = r.clock.Now()
	}
	r.SetAt(value, ts)
}

// SetAt 用显式时间戳写入新值。
// 测试可以用它构造确定性的平局与乱序场景。
// 只有 (ts, 本副本 ID) 大于当前 (时间戳, 写入者) 时写入才生效。
func (r *LWWRegister[T]) SetAt(value T, ts int64) {
	if r.written && !stampLess(r.timestamp, r.writer, ts, r.replica) {
		return
	}
	r.value = value
	r.written = true
	r.timestamp = ts
	r.writer = r.replica
}

// Get 返回当前值以及寄存器是否被写入过。
func (r *LWWRegister[T]) Get() (T, bool) {
	return r.value, r.written
}

// Timestamp 返回最后一次生效写入的 HLC 时间戳。
func (r *LWWRegister[T]) Timestamp() int64 {
	return r.timestamp
}

func (r *LWWRegister[T]) Value() any {
	if !r.written {
		return nil
	}
	return r.value
}

// stampLess 按 (时间戳, 写入者) 字典序比较。
func stampLess(ts1 int64, w1 string, ts2 int64, w2 string) bool {
	if ts1 != ts2 {
		return ts1 < ts2
	}
	return w1 < w2
}

func (r *LWWRegister[T]) Merge(other CRDT) error {
	o, ok := other.(*LWWRegister[T])
	if !ok {
		return fmt.Errorf("cannot merge %T into LWWRegister", other)
	}

	if o.written && (!r.written || stampLess(r.timestamp, r.writer, o.timestamp, o.writer)) {
		r.value = o.value
		r.written = true
		r.timestamp = o.timestamp
		r.writer = o.writer
	}

	// 让本地时钟追上对方的时间戳，后续本地写入不会落在已合并的写入之前
	if r.clock != nil && o.timestamp > 0 {
		r.clock.Update(o.timestamp)
	}
	return nil
}

func (r *LWWRegister[T]) GC(safeTimestamp int64) int {
	return 0
}

// lwwState 是编码用的完整状态。
type lwwState[T any] struct {
	Value     T      `msgpack:"value"`
	Written   bool   `msgpack:"written"`
	Timestamp int64  `msgpack:"timestamp"`
	Writer    string `msgpack:"writer"`
}

// Bytes 序列化 LWWRegister。
func (r *LWWRegister[T]) Bytes() ([]byte, error) {
	state := lwwState[T]{
		Value:     r.value,
		Written:   r.written,
		Timestamp: r.timestamp,
		Writer:    r.writer,
	}
	return msgpack.Marshal(&state)
}

// FromBytesLWWRegister 反序列化 LWWRegister。
// replica 与 clock 属于本地副本，不参与序列化。
func FromBytesLWWRegister[T any](data []byte, replica string, clock *hlc.Clock) (*LWWRegister[T], error) {
	var state lwwState[T]
	if err := msgpack.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	r := NewLWWRegister[T](replica, clock)
	r.value = state.Value
	r.written = state.Written
	r.timestamp = state.Timestamp
	r.writer = state.Writer
	if clock != nil && state.Timestamp > 0 {
		clock.Update(state.Timestamp)
	}
	return r, nil
}

// Package mobile 对外提供 gomobile 兼容的 API。
// gomobile 不支持泛型、interface{} 返回值和复杂的 map，因此需要此封装。
// 宿主应用负责持久化与传输：通过 Encode/Merge 交换字节即可同步。
package mobile

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/crdt-kit/crdt-kit/pkg/crdt"
	"github.com/crdt-kit/crdt-kit/pkg/hlc"
)

// Replica 包装一个副本的一组命名 CRDT，对移动端提供扁平 API。
// 同一个 Replica 内的所有类型共享一个混合逻辑时钟。
type Replica struct {
	id    string
	clock *hlc.Clock

	counters map[string]*crdt.PNCounter
	sets     map[string]*crdt.ORSet[string]
	texts    map[string]*crdt.Text
}

// NewReplica 创建一个新的副本。replicaID 为空时自动生成。
func NewReplica(replicaID string) *Replica {
	if replicaID == "" {
		replicaID = crdt.NewReplicaID()
	}
	return &Replica{
		id:       replicaID,
		clock:    hlc.New(),
		counters: make(map[string]*crdt.PNCounter),
		sets:     make(map[string]*crdt.ORSet[string]),
		texts:    make(map[string]*crdt.Text),
	}
}

// ID 返回副本 ID。
func (r *Replica) ID() string {
	return r.id
}

// ========== 计数器 ==========

func (r *Replica) counter(name string) *crdt.PNCounter {
	c, ok := r.counters[name]
	if !ok {
		c = crdt.NewPNCounter(r.id)
		r.counters[name] = c
	}
	return c
}

// Inc 将命名计数器加 amount（amount 为负表示减）。
func (r *Replica) Inc(name string, amount int64) {
	c := r.counter(name)
	if amount >= 0 {
		c.IncrementBy(uint64(amount))
	} else {
		c.DecrementBy(uint64(-amount))
	}
}

// Counter 返回命名计数器的当前值。
func (r *Replica) Counter(name string) int64 {
	return r.counter(name).Count()
}

// EncodeCounter 序列化命名计数器。
func (r *Replica) EncodeCounter(name string) ([]byte, error) {
	return r.counter(name).Bytes()
}

// MergeCounter 合并对端副本的计数器字节。
func (r *Replica) MergeCounter(name string, data []byte) error {
	other, err := crdt.FromBytesPNCounter(data, r.id)
	if err != nil {
		return err
	}
	return r.counter(name).Merge(other)
}

// ========== 集合 ==========

func (r *Replica) set(name string) *crdt.ORSet[string] {
	s, ok := r.sets[name]
	if !ok {
		s = crdt.NewORSet[string](r.id, r.clock)
		r.sets[name] = s
	}
	return s
}

// AddToSet 向命名集合添加元素。
func (r *Replica) AddToSet(name, value string) {
	r.set(name).Add(value)
}

// RemoveFromSet 从命名集合移除元素。返回元素是否曾可见。
func (r *Replica) RemoveFromSet(name, value string) bool {
	return r.set(name).Remove(value)
}

// SetContains 判断命名集合是否包含元素。
func (r *Replica) SetContains(name, value string) bool {
	return r.set(name).Contains(value)
}

// SetAsJSON 返回命名集合的元素（排序后）作为 JSON 字符串。
func (r *Replica) SetAsJSON(name string) (string, error) {
	elems := r.set(name).Elements()
	sort.Strings(elems)
	bytes, err := json.Marshal(elems)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

// EncodeSet 序列化命名集合。
func (r *Replica) EncodeSet(name string) ([]byte, error) {
	return r.set(name).Bytes()
}

// MergeSet 合并对端副本的集合字节。
func (r *Replica) MergeSet(name string, data []byte) error {
	other, err := crdt.FromBytesORSet[string](data, r.id, r.clock)
	if err != nil {
		return err
	}
	return r.set(name).Merge(other)
}

// ========== 文本 ==========

func (r *Replica) text(name string) *crdt.Text {
	t, ok := r.texts[name]
	if !ok {
		t = crdt.NewText(r.id, r.clock)
		r.texts[name] = t
	}
	return t
}

// InsertText 在命名文本的 index 处插入字符串。
func (r *Replica) InsertText(name string, index int, s string) error {
	return r.text(name).InsertStr(index, s)
}

// RemoveText 移除命名文本从 start 开始的 n 个字符。
func (r *Replica) RemoveText(name string, start, n int) error {
	return r.text(name).RemoveRange(start, n)
}

// Text 返回命名文本的当前内容。
func (r *Replica) Text(name string) string {
	return r.text(name).String()
}

// TextLen 返回命名文本的可见长度。
func (r *Replica) TextLen(name string) int {
	return r.text(name).Len()
}

// EncodeText 序列化命名文本。
func (r *Replica) EncodeText(name string) ([]byte, error) {
	return r.text(name).Bytes()
}

// MergeText 合并对端副本的文本字节。
func (r *Replica) MergeText(name string, data []byte) error {
	other, err := crdt.FromBytesText(data, r.id, nil)
	if err != nil {
		return err
	}
	return r.text(name).Merge(other)
}

// ========== 整体同步 ==========

// MergeAllFrom 按名字逐个合并 snapshot 中的全部状态。
// snapshot 由对端的 Snapshot 产生。
func (r *Replica) MergeAllFrom(snapshot []byte) error {
	var payload snapshotPayload
	if err := json.Unmarshal(snapshot, &payload); err != nil {
		return fmt.Errorf("快照格式错误: %w", err)
	}
	for name, data := range payload.Counters {
		if err := r.MergeCounter(name, data); err != nil {
			return err
		}
	}
	for name, data := range payload.Sets {
		if err := r.MergeSet(name, data); err != nil {
			return err
		}
	}
	for name, data := range payload.Texts {
		if err := r.MergeText(name, data); err != nil {
			return err
		}
	}
	return nil
}

// Snapshot 序列化此副本的全部命名状态，供对端 MergeAllFrom 使用。
func (r *Replica) Snapshot() ([]byte, error) {
	payload := snapshotPayload{
		Counters: make(map[string][]byte, len(r.counters)),
		Sets:     make(map[string][]byte, len(r.sets)),
		Texts:    make(map[string][]byte, len(r.texts)),
	}
	for name, c := range r.counters {
		data, err := c.Bytes()
		if err != nil {
			return nil, err
		}
		payload.Counters[name] = data
	}
	for name, s := range r.sets {
		data, err := s.Bytes()
		if err != nil {
			return nil, err
		}
		payload.Sets[name] = data
	}
	for name, t := range r.texts {
		data, err := t.Bytes()
		if err != nil {
			return nil, err
		}
		payload.Texts[name] = data
	}
	return json.Marshal(&payload)
}

type snapshotPayload struct {
	Counters map[string][]byte `json:"counters"`
	Sets     map[string][]byte `json:"sets"`
	Texts    map[string][]byte `json:"texts"`
}

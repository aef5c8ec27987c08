package crdt

import (
	"fmt"

	"github.com/crdt-kit/crdt-kit/pkg/hlc"
)

// Text 实现协同文本 CRDT：一个按字符建节点的 RGA。
// 插入字符串会为每个字符铸造一个带标签的节点；
// 删除区间给覆盖的节点打墓碑；Fork 创建共享历史、
// 身份全新的副本，两边可继续独立编辑再合并。
type Text struct {
	rga *RGA[rune]
}

// NewText 创建一个新的空 Text。
func NewText(replica string, clock *hlc.Clock) *Text {
	return &Text{
		rga: NewRGA[rune](replica, clock),
	}
}

func (t *Text) Type() Type {
	return TypeText
}

// Replica 返回本地副本 ID。
func (t *Text) Replica() string {
	return t.rga.Replica()
}

// Insert 在可见位置 index 处插入一个字符。
func (t *Text) Insert(index int, ch rune) error {
	_, err := t.rga.InsertAt(index, ch)
	return err
}

// InsertStr 在可见位置 index 处插入字符串。
// 每个字符展开为一个带标签的节点，从左到右依次插入。
func (t *Text) InsertStr(index int, s string) error {
	if index < 0 || index > t.Len() {
		return fmt.Errorf("index %d out of range for length %d", index, t.Len())
	}
	i := index
	for _, ch := range s {
		if err := t.Insert(i, ch); err != nil {
			return err
		}
		i++
	}
	return nil
}

// Remove 移除可见位置 index 处的字符（打墓碑）。
func (t *Text) Remove(index int) error {
	return t.rga.RemoveAt(index)
}

// RemoveRange 移除从 start 开始的 n 个字符。
// 从右向左打墓碑，保证过程中的可见下标始终有效。
func (t *Text) RemoveRange(start, n int) error {
	if start < 0 || n < 0 || start+n > t.Len() {
		return fmt.Errorf("range %d..%d out of range for length %d", start, start+n, t.Len())
	}
	for i := n - 1; i >= 0; i-- {
		if err := t.rga.RemoveAt(start + i); err != nil {
			return err
		}
	}
	return nil
}

// Len 返回可见字符个数。
func (t *Text) Len() int {
	return t.rga.Len()
}

// String 返回当前可见文本。
func (t *Text) String() string {
	return string(t.rga.Slice())
}

func (t *Text) Value() any {
	return t.String()
}

// Fork 创建一个共享全部历史但使用新身份的副本。
// 新副本的插入使用 newReplica 铸造标签；clock 可为 nil，
// 此时使用系统时钟并追上已观察到的最大时间戳。
func (t *Text) Fork(newReplica string, clock *hlc.Clock) *Text {
	return &Text{
		rga: t.rga.Fork(newReplica, clock),
	}
}

func (t *Text) Merge(other CRDT) error {
	o, ok := other.(*Text)
	if !ok {
		return fmt.Errorf("cannot merge %T into Text", other)
	}
	return t.rga.Merge(o.rga)
}

func (t *Text) GC(safeTimestamp int64) int {
	return t.rga.GC(safeTimestamp)
}

// Bytes 序列化 Text，保留全部节点与墓碑。
func (t *Text) Bytes() ([]byte, error) {
	return t.rga.Bytes()
}

// FromBytesText 反序列化 Text。
func FromBytesText(data []byte, replica string, clock *hlc.Clock) (*Text, error) {
	rga, err := FromBytesRGA[rune](data, replica, clock)
	if err != nil {
		return nil, err
	}
	return &Text{rga: rga}, nil
}

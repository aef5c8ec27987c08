package crdt

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Tag 是每次逻辑操作铸造的唯一标识符 (副本 ID, 本地计数器)。
// 计数器按副本 ID 命名空间隔离，因此无需跨副本协调即可避免碰撞。
// 副本 ID 的唯一性由调用方保证；两个逻辑上不同的副本使用相同 ID
// 会产生混乱（但不会崩溃）的合并结果。
type Tag struct {
	Replica string `msgpack:"replica"`
	Counter uint64 `msgpack:"counter"`
}

// Less 按固定全序比较两个标签：先比计数器，再按副本 ID 的字典序。
// 所有副本使用同一全序来确定性地打破并发平局。
func (t Tag) Less(o Tag) bool {
	if t.Counter != o.Counter {
		return t.Counter < o.Counter
	}
	return t.Replica < o.Replica
}

// IsZero 判断是否为零值标签。
func (t Tag) IsZero() bool {
	return t.Replica == "" && t.Counter == 0
}

// String 返回标签的规范字符串形式。
// 计数器用固定宽度十六进制编码，使字符串的字典序与
// (计数器, 副本 ID) 的全序一致。
func (t Tag) String() string {
	return fmt.Sprintf("%016x@%s", t.Counter, t.Replica)
}

// ParseTag 解析 String 产生的规范形式。
func ParseTag(s string) (Tag, error) {
	idx := strings.IndexByte(s, '@')
	if idx != 16 {
		return Tag{}, fmt.Errorf("标签格式错误 %q: %w", s, ErrDecode)
	}
	counter, err := strconv.ParseUint(s[:idx], 16, 64)
	if err != nil {
		return Tag{}, fmt.Errorf("标签计数器错误 %q: %w", s, ErrDecode)
	}
	return Tag{Replica: s[idx+1:], Counter: counter}, nil
}

// NewReplicaID 生成一个随机副本 ID。
// 调用方也可以提供任何自己保证唯一的字符串。
func NewReplicaID() string {
	return uuid.NewString()
}

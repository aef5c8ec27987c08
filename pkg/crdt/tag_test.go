package crdt

import (
	"sort"
	"testing"
)

func TestTag_StringRoundTrip(t *testing.T) {
	tag := Tag{Replica: "node-1", Counter: 42}

	s := tag.String()
	parsed, err := ParseTag(s)
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	if parsed != tag {
		t.Fatalf("往返后标签不一致: %v vs %v", parsed, tag)
	}

	// 副本 ID 里包含 @ 也不影响解析：计数器部分是定宽的
	tag2 := Tag{Replica: "a@b", Counter: 7}
	parsed2, err := ParseTag(tag2.String())
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	if parsed2 != tag2 {
		t.Fatalf("往返后标签不一致: %v vs %v", parsed2, tag2)
	}
}

func TestTag_ParseErrors(t *testing.T) {
	for _, bad := range []string{"", "no-at-sign", "xyz@node", "123@node"} {
		if _, err := ParseTag(bad); err == nil {
			t.Fatalf("预期解析 %q 返回错误", bad)
		}
	}
}

func TestTag_StringOrderMatchesLess(t *testing.T) {
	// 字符串的字典序必须与 (计数器, 副本) 的全序一致，
	// RGA 的兄弟排序依赖这一点。
	tags := []Tag{
		{Replica: "B", Counter: 1},
		{Replica: "A", Counter: 2},
		{Replica: "A", Counter: 1},
		{Replica: "B", Counter: 300},
		{Replica: "A", Counter: 0x10000}, // 超过 16 位也保持定宽
	}

	byLess := make([]Tag, len(tags))
	copy(byLess, tags)
	sort.Slice(byLess, func(i, j int) bool { return byLess[i].Less(byLess[j]) })

	byString := make([]Tag, len(tags))
	copy(byString, tags)
	sort.Slice(byString, func(i, j int) bool { return byString[i].String() < byString[j].String() })

	for i := range byLess {
		if byLess[i] != byString[i] {
			t.Fatalf("第 %d 个元素排序不一致: %v vs %v", i, byLess[i], byString[i])
		}
	}
}

func TestTag_IsZero(t *testing.T) {
	var zero Tag
	if !zero.IsZero() {
		t.Fatal("零值标签应报告 IsZero")
	}
	if (Tag{Replica: "A", Counter: 1}).IsZero() {
		t.Fatal("非零标签不应报告 IsZero")
	}
}

func TestNewReplicaID_Unique(t *testing.T) {
	seen := map[string]struct{}{}
	for i := 0; i < 100; i++ {
		id := NewReplicaID()
		if id == "" {
			t.Fatal("副本 ID 不应为空")
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("副本 ID 重复: %s", id)
		}
		seen[id] = struct{}{}
	}
}

package crdt

import (
	"bytes"
	"sort"
	"testing"
)

func TestGSet_Basic(t *testing.T) {
	s := NewGSet[string]()

	s.Add("A")
	s.Add("B")
	s.Add("A") // 重复添加无效果

	if s.Len() != 2 {
		t.Fatalf("预期 2 个元素, 实际得到 %d", s.Len())
	}
	if !s.Contains("A") || !s.Contains("B") {
		t.Fatal("预期包含 A 和 B")
	}
	if s.Contains("C") {
		t.Fatal("不应包含 C")
	}

	vals := s.Elements()
	sort.Strings(vals) // 顺序不保证，所以排序后检查
	if len(vals) != 2 || vals[0] != "A" || vals[1] != "B" {
		t.Fatalf("预期 [A, B], 实际得到 %v", vals)
	}
}

func TestGSet_Merge(t *testing.T) {
	s1 := NewGSet[int]()
	s1.Add(1)
	s1.Add(2)

	s2 := NewGSet[int]()
	s2.Add(2)
	s2.Add(3)

	if err := s1.Merge(s2); err != nil {
		t.Fatalf("合并失败: %v", err)
	}
	if s1.Len() != 3 {
		t.Fatalf("预期合并后 3 个元素, 实际得到 %d", s1.Len())
	}

	// 幂等：重复合并不改变状态
	s1.Merge(s2)
	if s1.Len() != 3 {
		t.Fatalf("重复合并改变了元素数: %d", s1.Len())
	}

	// 交换律：反向合并收敛到同一集合
	s2.Merge(s1)
	if s2.Len() != 3 {
		t.Fatalf("预期反向合并后 3 个元素, 实际得到 %d", s2.Len())
	}
}

func TestGSet_Codec(t *testing.T) {
	s := NewGSet[string]()
	s.Add("x")
	s.Add("y")

	data, err := s.Bytes()
	if err != nil {
		t.Fatalf("序列化失败: %v", err)
	}

	restored, err := FromBytesGSet[string](data)
	if err != nil {
		t.Fatalf("反序列化失败: %v", err)
	}
	if restored.Len() != 2 || !restored.Contains("x") || !restored.Contains("y") {
		t.Fatalf("恢复后的集合内容错误: %v", restored.Elements())
	}
}

func TestGSet_CodecDeterministic(t *testing.T) {
	// 集合内部是映射，迭代顺序随机；编码必须排序，
	// 同一状态的字节才是确定的。
	s := NewGSet[string]()
	for _, e := range []string{"h", "c", "a", "f", "b", "g", "e", "d"} {
		s.Add(e)
	}

	first, err := s.Bytes()
	if err != nil {
		t.Fatalf("序列化失败: %v", err)
	}
	for i := 0; i < 16; i++ {
		data, err := s.Bytes()
		if err != nil {
			t.Fatalf("序列化失败: %v", err)
		}
		if !bytes.Equal(first, data) {
			t.Fatal("同一状态多次编码得到不同字节")
		}
	}
}

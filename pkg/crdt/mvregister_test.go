package crdt

import (
	"bytes"
	"sort"
	"testing"
)

func TestMVRegister_Basic(t *testing.T) {
	r := NewMVRegister[string]("A")

	if len(r.Values()) != 0 {
		t.Fatalf("新寄存器不应有值: %v", r.Values())
	}
	if r.IsConflicted() {
		t.Fatal("新寄存器不应处于冲突状态")
	}

	r.Set("v1")
	r.Set("v2") // 本地写入是因果有序的，后写覆盖先写

	vals := r.Values()
	if len(vals) != 1 || vals[0] != "v2" {
		t.Fatalf("预期 [v2], 实际得到 %v", vals)
	}
	if r.IsConflicted() {
		t.Fatal("单一值不应报告冲突")
	}
}

func TestMVRegister_ConcurrentConflict(t *testing.T) {
	// A 和 B 在没有因果关系的情况下各自写入，
	// 合并后两个值都必须存活，且寄存器报告冲突。
	a := NewMVRegister[string]("A")
	b := NewMVRegister[string]("B")

	a.Set("alice's edit")
	b.Set("bob's edit")

	if err := a.Merge(b); err != nil {
		t.Fatalf("合并失败: %v", err)
	}
	if err := b.Merge(a); err != nil {
		t.Fatalf("合并失败: %v", err)
	}

	for _, r := range []*MVRegister[string]{a, b} {
		if !r.IsConflicted() {
			t.Fatal("预期合并后处于冲突状态")
		}
		vals := r.Values()
		sort.Strings(vals)
		if len(vals) != 2 || vals[0] != "alice's edit" || vals[1] != "bob's edit" {
			t.Fatalf("预期两个并发值都存活, 实际得到 %v", vals)
		}
	}
}

func TestMVRegister_WriteResolvesConflict(t *testing.T) {
	a := NewMVRegister[string]("A")
	b := NewMVRegister[string]("B")
	a.Set("x")
	b.Set("y")
	a.Merge(b)

	if !a.IsConflicted() {
		t.Fatal("预期冲突")
	}

	// 见过双方版本之后的写入支配两个并发值
	a.Set("resolved")
	vals := a.Values()
	if len(vals) != 1 || vals[0] != "resolved" {
		t.Fatalf("预期写入解决冲突, 实际得到 %v", vals)
	}

	// 把解决结果传播给 B：B 的旧值被支配
	if err := b.Merge(a); err != nil {
		t.Fatalf("合并失败: %v", err)
	}
	vals = b.Values()
	if len(vals) != 1 || vals[0] != "resolved" {
		t.Fatalf("预期 B 收敛到 resolved, 实际得到 %v", vals)
	}
}

func TestMVRegister_DominanceNotConflict(t *testing.T) {
	// B 先吸收 A 的写入再写，B 的版本支配 A 的版本，不产生冲突。
	a := NewMVRegister[string]("A")
	a.Set("first")

	b := NewMVRegister[string]("B")
	b.Merge(a)
	b.Set("second")

	a.Merge(b)
	vals := a.Values()
	if len(vals) != 1 || vals[0] != "second" {
		t.Fatalf("预期因果后继获胜, 实际得到 %v", vals)
	}
	if a.IsConflicted() {
		t.Fatal("因果有序的写入不应报告冲突")
	}
}

func TestMVRegister_MergeIdempotent(t *testing.T) {
	a := NewMVRegister[string]("A")
	b := NewMVRegister[string]("B")
	a.Set("x")
	b.Set("y")

	a.Merge(b)
	before := a.Values()

	a.Merge(b)
	a.Merge(b)
	after := a.Values()

	if len(before) != len(after) {
		t.Fatalf("重复合并改变了值集合: %v -> %v", before, after)
	}
	for i := range before {
		if before[i] != after[i] {
			t.Fatalf("重复合并改变了值集合: %v -> %v", before, after)
		}
	}
}

func TestMVRegister_MergeAssociative(t *testing.T) {
	build := func() (*MVRegister[string], *MVRegister[string], *MVRegister[string]) {
		a := NewMVRegister[string]("A")
		b := NewMVRegister[string]("B")
		c := NewMVRegister[string]("C")
		a.Set("va")
		b.Set("vb")
		c.Set("vc")
		return a, b, c
	}

	a1, b1, c1 := build()
	a1.Merge(b1)
	a1.Merge(c1)

	a2, b2, c2 := build()
	b2.Merge(c2)
	a2.Merge(b2)

	v1 := a1.Values()
	v2 := a2.Values()
	if len(v1) != 3 || len(v2) != 3 {
		t.Fatalf("预期三个并发值都存活: %v / %v", v1, v2)
	}
	for i := range v1 {
		if v1[i] != v2[i] {
			t.Fatalf("不同合并顺序得到不同结果: %v vs %v", v1, v2)
		}
	}
}

func TestMVRegister_Codec(t *testing.T) {
	a := NewMVRegister[string]("A")
	b := NewMVRegister[string]("B")
	a.Set("x")
	b.Set("y")
	a.Merge(b)

	data, err := a.Bytes()
	if err != nil {
		t.Fatalf("序列化失败: %v", err)
	}

	restored, err := FromBytesMVRegister[string](data, "A")
	if err != nil {
		t.Fatalf("反序列化失败: %v", err)
	}
	if !restored.IsConflicted() {
		t.Fatal("恢复后应保留冲突状态")
	}
	vals := restored.Values()
	sort.Strings(vals)
	if len(vals) != 2 || vals[0] != "x" || vals[1] != "y" {
		t.Fatalf("恢复后的值集合错误: %v", vals)
	}

	// 恢复后的版本向量必须完整：新写入仍然支配旧的并发值
	restored.Set("z")
	vals = restored.Values()
	if len(vals) != 1 || vals[0] != "z" {
		t.Fatalf("恢复后的写入未能支配旧值: %v", vals)
	}
}

func TestMVRegister_CodecDeterministic(t *testing.T) {
	// 版本向量是映射，编码时转成按副本 ID 排序的切片，
	// 同一状态的字节才是确定的。
	regs := []*MVRegister[string]{
		NewMVRegister[string]("A"),
		NewMVRegister[string]("B"),
		NewMVRegister[string]("C"),
		NewMVRegister[string]("D"),
	}
	for i, r := range regs {
		r.Set(string(rune('w' + i)))
	}
	merged := regs[0]
	for _, r := range regs[1:] {
		if err := merged.Merge(r); err != nil {
			t.Fatalf("合并失败: %v", err)
		}
	}

	first, err := merged.Bytes()
	if err != nil {
		t.Fatalf("序列化失败: %v", err)
	}
	for i := 0; i < 16; i++ {
		data, err := merged.Bytes()
		if err != nil {
			t.Fatalf("序列化失败: %v", err)
		}
		if !bytes.Equal(first, data) {
			t.Fatal("同一状态多次编码得到不同字节")
		}
	}

	// 字节确定性必须在往返后保持
	restored, err := FromBytesMVRegister[string](first, "A")
	if err != nil {
		t.Fatalf("反序列化失败: %v", err)
	}
	again, err := restored.Bytes()
	if err != nil {
		t.Fatalf("序列化失败: %v", err)
	}
	if !bytes.Equal(first, again) {
		t.Fatal("往返后编码字节发生变化")
	}
}

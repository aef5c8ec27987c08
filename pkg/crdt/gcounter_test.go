package crdt

import (
	"testing"
)

func TestGCounter_Basic(t *testing.T) {
	c := NewGCounter("A")

	c.Increment()
	c.IncrementBy(5)

	if c.Count() != 6 {
		t.Fatalf("预期计数 6, 实际得到 %d", c.Count())
	}
	if c.CountFor("A") != 6 {
		t.Fatalf("预期 A 的贡献为 6, 实际得到 %d", c.CountFor("A"))
	}
	if c.CountFor("B") != 0 {
		t.Fatalf("预期 B 的贡献为 0, 实际得到 %d", c.CountFor("B"))
	}
}

func TestGCounter_Merge(t *testing.T) {
	// A 执行 +1, +5（值为 6）；B 执行 +1（值为 1）
	a := NewGCounter("A")
	a.Increment()
	a.IncrementBy(5)

	b := NewGCounter("B")
	b.Increment()

	// 双向合并后两边都应该报告 7
	if err := a.Merge(b); err != nil {
		t.Fatalf("合并失败: %v", err)
	}
	if err := b.Merge(a); err != nil {
		t.Fatalf("合并失败: %v", err)
	}

	if a.Count() != 7 {
		t.Fatalf("预期 A 合并后计数 7, 实际得到 %d", a.Count())
	}
	if b.Count() != 7 {
		t.Fatalf("预期 B 合并后计数 7, 实际得到 %d", b.Count())
	}
}

func TestGCounter_MergeIdempotent(t *testing.T) {
	a := NewGCounter("A")
	a.IncrementBy(3)

	b := NewGCounter("B")
	b.IncrementBy(4)

	a.Merge(b)
	before := a.Count()

	// 重复合并同一状态不应改变结果
	a.Merge(b)
	a.Merge(b)

	if a.Count() != before {
		t.Fatalf("重复合并改变了计数: %d -> %d", before, a.Count())
	}
}

func TestGCounter_MergeCommutative(t *testing.T) {
	build := func() (*GCounter, *GCounter, *GCounter) {
		a := NewGCounter("A")
		a.IncrementBy(2)
		b := NewGCounter("B")
		b.IncrementBy(3)
		c := NewGCounter("C")
		c.IncrementBy(5)
		return a, b, c
	}

	// (a⊔b)⊔c 与 a⊔(c⊔b) 应该收敛到同一个值
	a1, b1, c1 := build()
	a1.Merge(b1)
	a1.Merge(c1)

	a2, b2, c2 := build()
	c2.Merge(b2)
	a2.Merge(c2)

	if a1.Count() != a2.Count() {
		t.Fatalf("不同合并顺序得到不同计数: %d vs %d", a1.Count(), a2.Count())
	}
	if a1.Count() != 10 {
		t.Fatalf("预期计数 10, 实际得到 %d", a1.Count())
	}
}

func TestGCounter_Codec(t *testing.T) {
	a := NewGCounter("A")
	a.IncrementBy(6)
	b := NewGCounter("B")
	b.IncrementBy(2)
	a.Merge(b)

	data, err := a.Bytes()
	if err != nil {
		t.Fatalf("序列化失败: %v", err)
	}

	restored, err := FromBytesGCounter(data, "A")
	if err != nil {
		t.Fatalf("反序列化失败: %v", err)
	}
	if restored.Count() != 8 {
		t.Fatalf("预期恢复后计数 8, 实际得到 %d", restored.Count())
	}
	if restored.CountFor("B") != 2 {
		t.Fatalf("预期 B 的贡献为 2, 实际得到 %d", restored.CountFor("B"))
	}

	// 恢复后的实例应该还能继续计数
	restored.Increment()
	if restored.Count() != 9 {
		t.Fatalf("恢复后递增失败, 实际得到 %d", restored.Count())
	}
}

func TestGCounter_CodecBadData(t *testing.T) {
	if _, err := FromBytesGCounter([]byte{0xc1, 0xff, 0x00}, "A"); err == nil {
		t.Fatal("预期解码坏数据返回错误")
	}
}

func TestGCounter_Delta(t *testing.T) {
	a := NewGCounter("A")
	a.IncrementBy(3)

	b := NewGCounter("B")
	b.Merge(a)

	// B 记录已见状态之后，A 继续计数
	summary := b.Summarize()
	a.IncrementBy(2)

	d := a.Delta(summary)
	if d == nil {
		t.Fatal("预期生成非空增量")
	}
	gd, ok := d.(GCounterDelta)
	if !ok {
		t.Fatalf("增量类型错误: %T", d)
	}
	// 增量只应携带 A 这一个条目
	if len(gd.Counts) != 1 || gd.Counts["A"] != 5 {
		t.Fatalf("增量内容错误: %v", gd.Counts)
	}

	if err := b.ApplyDelta(d); err != nil {
		t.Fatalf("应用增量失败: %v", err)
	}
	if b.Count() != 5 {
		t.Fatalf("应用增量后预期计数 5, 实际得到 %d", b.Count())
	}

	// 增量同步与整状态合并必须等价
	full := NewGCounter("C")
	full.Merge(a)
	if full.Count() != b.Count() {
		t.Fatalf("增量同步与整状态合并结果不一致: %d vs %d", b.Count(), full.Count())
	}

	// 没有新变化时不产生增量
	if d := a.Delta(a.Summarize()); d != nil {
		t.Fatalf("预期无新变化时增量为 nil, 实际得到 %v", d)
	}
}

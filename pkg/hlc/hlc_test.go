package hlc

import (
	"testing"
	"time"
)

func TestHLC_New(t *testing.T) {
	clock := New()
	if clock.Now() == 0 {
		t.Fatal("新时钟的初始时间应大于 0")
	}
}

func TestHLC_Monotonicity(t *testing.T) {
	clock := New()
	t1 := clock.Now()
	t2 := clock.Now()

	if t2 <= t1 {
		t.Errorf("时钟非单调递增: t1=%d, t2=%d", t1, t2)
	}

	p1, l1 := Physical(t1), Logical(t1)
	p2, l2 := Physical(t2), Logical(t2)

	if p2 < p1 {
		t.Errorf("物理时间倒退")
	}
	if p2 == p1 && l2 <= l1 {
		t.Errorf("同一毫秒内的逻辑时间未增加")
	}
}

func TestHLC_Update(t *testing.T) {
	clock := New()

	// 模拟接收到来自未来的消息
	futurePhys := time.Now().Add(1 * time.Hour).UnixMilli()
	remoteTs := futurePhys << 16

	clock.Update(remoteTs)

	now := clock.Now()
	if Physical(now) < futurePhys {
		t.Errorf("时钟未追上将来时间。Got %d, want >= %d", Physical(now), futurePhys)
	}
}

func TestHLC_Causality(t *testing.T) {
	// 节点 A
	clockA := New()
	tsA := clockA.Now()

	// 节点 B 接收到来自 A 的消息
	clockB := New()
	clockB.Update(tsA)

	tsB := clockB.Now()

	// tsB 应该 > tsA
	if tsB <= tsA {
		t.Errorf("违反因果关系: tsB (%d) <= tsA (%d)", tsB, tsA)
	}
}

func TestHLC_InjectedSource(t *testing.T) {
	phys := int64(5000)
	clock := NewWithSource(func() int64 { return phys })

	t1 := clock.Now()
	t2 := clock.Now()
	t3 := clock.Now()

	if Physical(t1) != 5000 {
		t.Fatalf("物理时间应为 5000, 实际得到 %d", Physical(t1))
	}
	if Logical(t1) != 0 || Logical(t2) != 1 || Logical(t3) != 2 {
		t.Errorf("同一毫秒内逻辑计数应为 0,1,2, 实际得到 %d,%d,%d",
			Logical(t1), Logical(t2), Logical(t3))
	}

	// 物理时间推进后逻辑计数归零
	phys = 6000
	t4 := clock.Now()
	if Physical(t4) != 6000 || Logical(t4) != 0 {
		t.Errorf("物理时间推进后应重置逻辑计数, 实际得到 (%d, %d)",
			Physical(t4), Logical(t4))
	}
}

func TestHLC_PhysicalClockGoesBackward(t *testing.T) {
	phys := int64(9000)
	clock := NewWithSource(func() int64 { return phys })

	t1 := clock.Now()

	// 物理时钟倒退，HLC 仍需单调
	phys = 1000
	t2 := clock.Now()

	if t2 <= t1 {
		t.Errorf("物理时钟倒退时 HLC 仍应单调递增: t1=%d, t2=%d", t1, t2)
	}
	if Physical(t2) != 9000 {
		t.Errorf("物理部分不应倒退, 实际得到 %d", Physical(t2))
	}
}

func TestHLC_UpdateSamePhysical(t *testing.T) {
	phys := int64(5000)
	clock := NewWithSource(func() int64 { return phys })
	clock.Now() // (5000, 0)

	remote := int64(5000)<<16 | 5
	clock.Update(remote)

	latest := clock.Latest()
	if Physical(latest) != 5000 {
		t.Fatalf("物理时间应保持 5000, 实际得到 %d", Physical(latest))
	}
	// max(0, 5) + 1
	if Logical(latest) != 6 {
		t.Errorf("逻辑计数应为 6, 实际得到 %d", Logical(latest))
	}
}

func TestHLC_LogicalRollover(t *testing.T) {
	phys := int64(100)
	clock := NewWithSource(func() int64 { return phys })

	// 强制同一毫秒内溢出 16 位逻辑计数
	var last int64
	for i := 0; i < 0x10000+2; i++ {
		last = clock.Now()
	}

	if Physical(last) <= 100 {
		t.Errorf("逻辑计数溢出后物理时间应进位, 实际得到 %d", Physical(last))
	}
}

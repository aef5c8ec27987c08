package hlc

import (
	"sync"
	"time"
)

// Clock 代表混合逻辑时钟。
// 它保证单调递增，并跟踪因果关系。
// 时间戳被打包为 int64：
//   - 高 48 位：物理时间 (毫秒)，从 Unix Epoch 开始。
//   - 低 16 位：逻辑计数器。
type Clock struct {
	mu     sync.Mutex
	latest int64 // 当前已知的最大 HLC 时间戳 (packed)

	// now 返回物理时间 (毫秒)。测试可以注入固定的时间源，
	// 以便构造可复现的合并与平局场景。
	now func() int64
}

const (
	logicalMask = 0xFFFF
)

// New 创建一个新的 HLC 时钟，物理时间取自系统时钟。
func New() *Clock {
	return &Clock{
		latest: 0,
		now:    func() int64 { return time.Now().UnixMilli() },
	}
}

// NewWithSource 创建一个使用自定义物理时间源的时钟。
// source 返回毫秒数；注入固定或手动推进的时间源可以让
// 时间戳完全确定。
func NewWithSource(source func() int64) *Clock {
	return &Clock{
		latest: 0,
		now:    source,
	}
}

// Now 返回当前的 HLC 时间戳，并更新内部状态。
// 它确保返回的时间戳严格大于任何先前返回的时间戳或更新的时间戳。
func (c *Clock) Now() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	phys := c.now()

	// 从 current latest 中解包
	oldPhys := c.latest >> 16
	oldLogical := c.latest & logicalMask

	var newPhys int64
	var newLogical int64

	if phys > oldPhys {
		// 物理时间推进：重置逻辑计数
		newPhys = phys
		newLogical = 0
	} else {
		// 物理时间倒退或相等：增加逻辑计数
		newPhys = oldPhys
		newLogical = oldLogical + 1
	}

	// 逻辑计数溢出 16 位时强行让物理时间进位
	if newLogical > 0xFFFF {
		newPhys++
		newLogical = 0
	}

	c.latest = (newPhys << 16) | newLogical
	return c.latest
}

// Update 根据接收到的远程时间戳更新本地时钟。
// 用于处理同步消息。
func (c *Clock) Update(remoteTs int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	phys := c.now()

	// 解包 remote
	remotePhys := remoteTs >> 16
	remoteLogical := remoteTs & logicalMask

	// 解包 local
	oldPhys := c.latest >> 16
	oldLogical := c.latest & logicalMask

	var newPhys int64
	var newLogical int64

	// HLC update logic: newPhys = max(oldPhys, remotePhys, phys)
	if oldPhys > remotePhys {
		newPhys = oldPhys
	} else {
		newPhys = remotePhys
	}
	if phys > newPhys {
		newPhys = phys
	}

	if newPhys == oldPhys && newPhys == remotePhys {
		if oldLogical > remoteLogical {
			newLogical = oldLogical + 1
		} else {
			newLogical = remoteLogical + 1
		}
	} else if newPhys == oldPhys {
		newLogical = oldLogical + 1
	} else if newPhys == remotePhys {
		newLogical = remoteLogical + 1
	} else {
		newLogical = 0
	}

	// Overflow check
	if newLogical > 0xFFFF {
		newPhys++
		newLogical = 0
	}

	c.latest = (newPhys << 16) | newLogical
}

// Latest 返回时钟当前已知的最大时间戳，不推进时钟。
func (c *Clock) Latest() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.latest
}

// Physical 返回时间戳的物理部分 (Unix Milli)。
func Physical(ts int64) int64 {
	return ts >> 16
}

// Logical 返回时间戳的逻辑部分。
func Logical(ts int64) int16 {
	return int16(ts & logicalMask)
}

// Compare 比较两个 HLC 时间戳。
// 返回值:
//   - 如果 a > b: 返回 1
//   - 如果 a == b: 返回 0
//   - 如果 a < b: 返回 -1
func Compare(a, b int64) int {
	if a > b {
		return 1
	}
	if a < b {
		return -1
	}
	return 0
}

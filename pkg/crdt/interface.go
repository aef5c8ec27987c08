package crdt

import "errors"

// Type 标识 CRDT 的类型。
type Type byte

const (
	TypeGCounter    Type = 0x01
	TypePNCounter   Type = 0x02
	TypeGSet        Type = 0x03
	TypeTwoPSet     Type = 0x04
	TypeLWWRegister Type = 0x05
	TypeMVRegister  Type = 0x06
	TypeORSet       Type = 0x07
	TypeRGA         Type = 0x08
	TypeText        Type = 0x09
)

var (
	// ErrDecode 表示字节输入格式错误或被截断。
	// 调用方应拒绝该记录，而不是让副本崩溃。
	ErrDecode = errors.New("解码 CRDT 字节失败")

	// ErrInvalidDelta 表示 Delta 的类型与目标 CRDT 不匹配。
	ErrInvalidDelta = errors.New("此 CRDT 类型的 Delta 无效")
)

// CRDT 是所有 CRDT 实现的通用接口。
//
// 所有实现都必须满足合并代数律：
//   - 幂等：merge(a, a) == a
//   - 交换：merge(a, b) == merge(b, a)
//   - 结合：merge(merge(a, b), c) == merge(a, merge(b, c))
//
// Merge 只在跨类型合并时返回错误；对格式良好的状态它总是成功，
// 不阻塞，也不做任何 I/O。副本状态由单一执行上下文独占持有，
// 并发访问同一副本需要调用方自行串行化。
type CRDT interface {
	// Type 返回 CRDT 的类型。
	Type() Type

	// Value 返回 CRDT 的面向用户的值。
	Value() any

	// Merge 将另一个 CRDT 状态合并到此状态中。
	// 另一个状态通常是从字节反序列化的；合并只读取对方状态。
	Merge(other CRDT) error

	// GC 执行垃圾回收。
	// safeTimestamp 是指所有节点都已确认看到的最小时间戳（因果稳定时间）。
	// 返回被移除的（物理删除的）元素数量。
	// 何时调用以及 safeTimestamp 如何取得由存储协作方决定。
	GC(safeTimestamp int64) int

	// Bytes 将 CRDT 状态序列化为字节。
	// 序列化保留全部合并元数据（标签、墓碑、版本戳），
	// 只序列化最终值是不够的。
	Bytes() ([]byte, error)
}

// Delta 代表一段最小化编码的状态变化。
type Delta interface {
	Type() Type
}

// VersionSummary 概括一个副本已观察到的进度，
// 用于计算对方尚不知道的最小状态差。
type VersionSummary struct {
	// Counts 是每个副本已知的计数/标签计数器上界。
	Counts map[string]uint64

	// Decrements 是每个副本已知的减量计数上界（仅 PNCounter 使用）。
	Decrements map[string]uint64

	// Tombstones 是已知的墓碑标签（仅 ORSet 使用）。
	Tombstones map[Tag]struct{}
}

// DeltaCRDT 扩展了 CRDT 以支持基于 Delta 的同步。
// Delta 的大小与两个状态的对称差成正比，而不是与全量状态成正比；
// 对同一个 Delta 重复调用 ApplyDelta 是无操作（幂等）。
type DeltaCRDT interface {
	CRDT

	// Summarize 返回此副本当前进度的摘要，发送给对端用于计算 Delta。
	Summarize() VersionSummary

	// Delta 返回摘要为 since 的对端尚不知道的状态变化。
	Delta(since VersionSummary) Delta

	// ApplyDelta 应用 Delta，结果等价于与产生该 Delta 的状态做 Merge。
	ApplyDelta(d Delta) error
}

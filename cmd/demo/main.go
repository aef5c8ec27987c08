package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/crdt-kit/crdt-kit/pkg/crdt"
	"github.com/crdt-kit/crdt-kit/pkg/hlc"
)

// replica 是演示用的一个内存副本：一组共享同一时钟的 CRDT。
type replica struct {
	id    string
	clock *hlc.Clock

	stock *crdt.PNCounter
	cart  *crdt.ORSet[string]
	desc  *crdt.Text
}

func newReplica(id string) *replica {
	clock := hlc.New()
	return &replica{
		id:    id,
		clock: clock,
		stock: crdt.NewPNCounter(id),
		cart:  crdt.NewORSet[string](id, clock),
		desc:  crdt.NewText(id, clock),
	}
}

// syncInto 把 src 的全部状态合并进 dst，模拟一次单向同步。
// 真实部署中字节通过网络或存储传输；这里直接走 Bytes/FromBytes，
// 顺便验证编码路径。
func syncInto(dst, src *replica) error {
	stockBytes, err := src.stock.Bytes()
	if err != nil {
		return err
	}
	stock, err := crdt.FromBytesPNCounter(stockBytes, dst.id)
	if err != nil {
		return err
	}
	if err := dst.stock.Merge(stock); err != nil {
		return err
	}

	cartBytes, err := src.cart.Bytes()
	if err != nil {
		return err
	}
	cart, err := crdt.FromBytesORSet[string](cartBytes, dst.id, nil)
	if err != nil {
		return err
	}
	if err := dst.cart.Merge(cart); err != nil {
		return err
	}

	descBytes, err := src.desc.Bytes()
	if err != nil {
		return err
	}
	desc, err := crdt.FromBytesText(descBytes, dst.id, nil)
	if err != nil {
		return err
	}
	return dst.desc.Merge(desc)
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	replicaNames := flag.String("replicas", "A,B", "逗号分隔的副本名列表")
	scripted := flag.Bool("scenario", false, "只运行内置演示场景后退出")
	flag.Parse()

	replicas := make(map[string]*replica)
	var order []string
	for _, name := range strings.Split(*replicaNames, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		replicas[name] = newReplica(name)
		order = append(order, name)
	}
	if len(replicas) < 2 {
		return fmt.Errorf("至少需要两个副本")
	}

	if *scripted {
		return runScenario(replicas, order)
	}

	printBanner(order)
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Print("> ")
	for scanner.Scan() {
		quit, err := handleCommand(replicas, scanner.Text())
		if err != nil {
			fmt.Printf("错误: %v\n", err)
		}
		if quit {
			break
		}
		fmt.Print("> ")
	}
	return scanner.Err()
}

// runScenario 跑一遍离线并发编辑再同步收敛的完整流程。
func runScenario(replicas map[string]*replica, order []string) error {
	a, b := replicas[order[0]], replicas[order[1]]

	fmt.Println("--- 两个副本离线并发编辑 ---")

	a.stock.IncrementBy(50)
	a.stock.DecrementBy(12)
	b.stock.IncrementBy(30)
	b.stock.DecrementBy(8)
	fmt.Printf("%s 库存: %d, %s 库存: %d\n", a.id, a.stock.Count(), b.id, b.stock.Count())

	a.cart.Add("milk")
	a.cart.Remove("milk") // A 移除了自己见过的 milk
	b.cart.Add("milk")    // B 并发添加 milk
	b.cart.Add("bread")

	if err := a.desc.InsertStr(0, "Premium wireless headphones"); err != nil {
		return err
	}
	if err := syncInto(b, a); err != nil {
		return err
	}
	if err := b.desc.InsertStr(0, "[NEW] "); err != nil {
		return err
	}
	if err := a.desc.InsertStr(a.desc.Len(), " with noise cancellation"); err != nil {
		return err
	}

	fmt.Println("--- 双向同步 ---")
	if err := syncInto(a, b); err != nil {
		return err
	}
	if err := syncInto(b, a); err != nil {
		return err
	}

	fmt.Printf("库存收敛: %s=%d %s=%d\n", a.id, a.stock.Count(), b.id, b.stock.Count())
	fmt.Printf("购物车收敛 (add-wins): %s=%v %s=%v\n", a.id, a.cart.Elements(), b.id, b.cart.Elements())
	fmt.Printf("描述收敛: %q\n", a.desc.String())
	if a.desc.String() != b.desc.String() {
		return fmt.Errorf("副本未收敛: %q vs %q", a.desc.String(), b.desc.String())
	}
	return nil
}

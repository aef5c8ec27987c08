package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

func printBanner(order []string) {
	fmt.Println("crdt-kit interactive demo")
	fmt.Printf("replicas: %s\n", strings.Join(order, ", "))
	fmt.Println("每个副本是一组内存 CRDT；用 sync 命令在副本间交换状态。")
	printHelp()
}

func printHelp() {
	fmt.Println("\nCommands:")
	fmt.Println("  help")
	fmt.Println("  inc <replica> [n]         库存加 n (默认 1)")
	fmt.Println("  dec <replica> [n]         库存减 n (默认 1)")
	fmt.Println("  add <replica> <item>      购物车添加")
	fmt.Println("  del <replica> <item>      购物车移除")
	fmt.Println("  ins <replica> <idx> <s>   描述文本插入")
	fmt.Println("  cut <replica> <idx> [n]   描述文本删除 n 个字符 (默认 1)")
	fmt.Println("  sync <from> <to>          单向同步")
	fmt.Println("  show [replica]            显示状态")
	fmt.Println("  quit")
}

func handleCommand(replicas map[string]*replica, line string) (bool, error) {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return false, nil
	}

	cmd := strings.ToLower(parts[0])
	if cmd == "help" {
		printHelp()
		return false, nil
	}
	if cmd == "quit" || cmd == "exit" {
		return true, nil
	}
	if cmd == "show" {
		if len(parts) == 2 {
			r, err := pick(replicas, parts[1])
			if err != nil {
				return false, err
			}
			showReplica(r)
			return false, nil
		}
		names := make([]string, 0, len(replicas))
		for name := range replicas {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			showReplica(replicas[name])
		}
		return false, nil
	}

	if len(parts) < 2 {
		return false, fmt.Errorf("usage: %s <replica> ...", cmd)
	}

	switch cmd {
	case "inc", "dec":
		r, err := pick(replicas, parts[1])
		if err != nil {
			return false, err
		}
		n := uint64(1)
		if len(parts) > 2 {
			v, err := strconv.ParseUint(parts[2], 10, 64)
			if err != nil {
				return false, fmt.Errorf("无效数量 %q", parts[2])
			}
			n = v
		}
		if cmd == "inc" {
			r.stock.IncrementBy(n)
		} else {
			r.stock.DecrementBy(n)
		}
		fmt.Printf("%s 库存: %d\n", r.id, r.stock.Count())

	case "add":
		r, err := pick(replicas, parts[1])
		if err != nil {
			return false, err
		}
		if len(parts) < 3 {
			return false, fmt.Errorf("usage: add <replica> <item>")
		}
		r.cart.Add(parts[2])
		fmt.Printf("%s 购物车: %v\n", r.id, sortedElements(r))

	case "del":
		r, err := pick(replicas, parts[1])
		if err != nil {
			return false, err
		}
		if len(parts) < 3 {
			return false, fmt.Errorf("usage: del <replica> <item>")
		}
		if !r.cart.Remove(parts[2]) {
			fmt.Printf("%s 购物车里没有 %q\n", r.id, parts[2])
		}
		fmt.Printf("%s 购物车: %v\n", r.id, sortedElements(r))

	case "ins":
		r, err := pick(replicas, parts[1])
		if err != nil {
			return false, err
		}
		if len(parts) < 4 {
			return false, fmt.Errorf("usage: ins <replica> <idx> <text>")
		}
		idx, err := strconv.Atoi(parts[2])
		if err != nil {
			return false, fmt.Errorf("无效索引 %q", parts[2])
		}
		if err := r.desc.InsertStr(idx, strings.Join(parts[3:], " ")); err != nil {
			return false, err
		}
		fmt.Printf("%s 描述: %q\n", r.id, r.desc.String())

	case "cut":
		r, err := pick(replicas, parts[1])
		if err != nil {
			return false, err
		}
		if len(parts) < 3 {
			return false, fmt.Errorf("usage: cut <replica> <idx> [n]")
		}
		idx, err := strconv.Atoi(parts[2])
		if err != nil {
			return false, fmt.Errorf("无效索引 %q", parts[2])
		}
		n := 1
		if len(parts) > 3 {
			if n, err = strconv.Atoi(parts[3]); err != nil {
				return false, fmt.Errorf("无效数量 %q", parts[3])
			}
		}
		if err := r.desc.RemoveRange(idx, n); err != nil {
			return false, err
		}
		fmt.Printf("%s 描述: %q\n", r.id, r.desc.String())

	case "sync":
		if len(parts) < 3 {
			return false, fmt.Errorf("usage: sync <from> <to>")
		}
		src, err := pick(replicas, parts[1])
		if err != nil {
			return false, err
		}
		dst, err := pick(replicas, parts[2])
		if err != nil {
			return false, err
		}
		if err := syncInto(dst, src); err != nil {
			return false, err
		}
		fmt.Printf("%s -> %s 同步完成\n", src.id, dst.id)
		showReplica(dst)

	default:
		return false, fmt.Errorf("未知命令 %q (help 查看帮助)", cmd)
	}
	return false, nil
}

func pick(replicas map[string]*replica, name string) (*replica, error) {
	r, ok := replicas[name]
	if !ok {
		return nil, fmt.Errorf("未知副本 %q", name)
	}
	return r, nil
}

func sortedElements(r *replica) []string {
	elems := r.cart.Elements()
	sort.Strings(elems)
	return elems
}

func showReplica(r *replica) {
	fmt.Printf("[%s] 库存=%d 购物车=%v 描述=%q\n",
		r.id, r.stock.Count(), sortedElements(r), r.desc.String())
}

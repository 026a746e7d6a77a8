package filter

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/net/bpf"

	"firestige.xyz/tapstack/internal/core"
)

// etherTypeOffset is the ether-type position in an Ethernet II header.
const etherTypeOffset = 12

// EtherTypeFilter accepts frames whose ether-type is in an allow-list. The
// list is compiled to a classic BPF program and evaluated in a bpf.VM, so the
// same program can be attached to a socket.
type EtherTypeFilter struct {
	types []core.EtherType
	raw   []bpf.RawInstruction
	vm    *bpf.VM
}

// NewEtherTypeFilter compiles the allow-list.
func NewEtherTypeFilter(types ...core.EtherType) (*EtherTypeFilter, error) {
	if len(types) == 0 {
		return nil, fmt.Errorf("ether-type filter needs at least one type: %w", core.ErrConfigInvalid)
	}
	prog := compileEtherTypes(types)
	raw, err := bpf.Assemble(prog)
	if err != nil {
		return nil, fmt.Errorf("assemble ether-type filter: %w", err)
	}
	vm, err := bpf.NewVM(prog)
	if err != nil {
		return nil, fmt.Errorf("load ether-type filter: %w", err)
	}
	return &EtherTypeFilter{types: append([]core.EtherType(nil), types...), raw: raw, vm: vm}, nil
}

// compileEtherTypes emits: load the ether-type, jump to accept on any match,
// otherwise return 0.
func compileEtherTypes(types []core.EtherType) []bpf.Instruction {
	n := len(types)
	prog := make([]bpf.Instruction, 0, n+3)
	// Load ether-type (2 bytes at offset 12)
	prog = append(prog, bpf.LoadAbsolute{Off: etherTypeOffset, Size: 2})
	for i, t := range types {
		prog = append(prog, bpf.JumpIf{Cond: bpf.JumpEqual, Val: uint32(t), SkipTrue: uint8(n - i)})
	}
	// Drop
	prog = append(prog, bpf.RetConstant{Val: 0})
	// Accept the whole frame
	prog = append(prog, bpf.RetConstant{Val: 0xFFFFFFFF})
	return prog
}

// Accept reports whether the program keeps data. Frames too short to carry
// an ether-type are rejected.
func (f *EtherTypeFilter) Accept(data []byte) bool {
	n, err := f.vm.Run(data)
	return err == nil && n > 0
}

func (f *EtherTypeFilter) Filter(frame *core.Frame, chain *FilterChain) {
	if f.Accept(frame.Data) {
		chain.Filter(frame)
	}
}

// Raw returns the assembled program.
func (f *EtherTypeFilter) Raw() []bpf.RawInstruction {
	return f.raw
}

func (f *EtherTypeFilter) Types() []core.EtherType {
	return append([]core.EtherType(nil), f.types...)
}

// ParseEtherType accepts a known name (arp, ipv4, ipv6, vlan) or a number
// such as 0x0806.
func ParseEtherType(s string) (core.EtherType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "arp":
		return core.EtherTypeARP, nil
	case "ipv4", "ip":
		return core.EtherTypeIPv4, nil
	case "ipv6":
		return core.EtherTypeIPv6, nil
	case "vlan", "802.1q":
		return core.EtherTypeVLAN, nil
	}
	v, err := strconv.ParseUint(strings.TrimSpace(s), 0, 16)
	if err != nil {
		return 0, fmt.Errorf("ether-type %q: %w", s, core.ErrConfigInvalid)
	}
	return core.EtherType(v), nil
}

// ParseEtherTypes parses every entry of names.
func ParseEtherTypes(names []string) ([]core.EtherType, error) {
	out := make([]core.EtherType, 0, len(names))
	for _, name := range names {
		t, err := ParseEtherType(name)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

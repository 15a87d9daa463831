package redirect

import (
	"github.com/cilium/ebpf/asm"
)

// Stack slot for the queue index passed to the map helpers.
const queueSlot = -4

// classifier builds the XDP instruction stream that steers TCP and UDP
// traffic into sockets registered in the map behind mapFD. Everything
// else, and any queue without a registered socket, passes to the kernel
// stack untouched.
//
// Keeping the rule in assembler source rather than a compiled object
// means the policy is reviewable and patchable here, with the loader
// fixing up the map reference at load time.
func classifier(mapFD int) asm.Instructions {
	return asm.Instructions{
		// r2 = data, r3 = data_end (xdp_md fields 0 and 4).
		asm.LoadMem(asm.R2, asm.R1, 0, asm.Word),
		asm.LoadMem(asm.R3, asm.R1, 4, asm.Word),

		// Shortest frame we classify: Ethernet header plus a
		// minimal IPv4 header.
		asm.Mov.Reg(asm.R4, asm.R2),
		asm.Add.Imm(asm.R4, 34),
		asm.JGT.Reg(asm.R4, asm.R3, "pass"),

		// Ethertype, as stored on the wire.
		asm.LoadMem(asm.R5, asm.R2, 12, asm.Half),
		asm.JEq.Imm(asm.R5, 0x0008, "ipv4"),
		asm.JEq.Imm(asm.R5, 0xdd86, "ipv6"),
		asm.Ja.Label("pass"),

		asm.LoadMem(asm.R5, asm.R2, 23, asm.Byte).WithSymbol("ipv4"),
		asm.Ja.Label("proto"),
		asm.LoadMem(asm.R5, asm.R2, 20, asm.Byte).WithSymbol("ipv6"),

		asm.JEq.Imm(asm.R5, 6, "sock").WithSymbol("proto"),
		asm.JEq.Imm(asm.R5, 17, "sock"),
		asm.Ja.Label("pass"),

		// index = ctx->rx_queue_index, spilled for the helpers.
		asm.LoadMem(asm.R2, asm.R1, 16, asm.Word).WithSymbol("sock"),
		asm.StoreMem(asm.R10, queueSlot, asm.R2, asm.Word),
		asm.Mov.Reg(asm.R2, asm.R10),
		asm.Add.Imm(asm.R2, queueSlot),
		asm.LoadMapPtr(asm.R1, mapFD),
		asm.FnMapLookupElem.Call(),
		asm.JEq.Imm(asm.R0, 0, "pass"),

		asm.LoadMapPtr(asm.R1, mapFD),
		asm.LoadMem(asm.R2, asm.R10, queueSlot, asm.Word),
		asm.Mov.Imm(asm.R3, 0),
		asm.FnRedirectMap.Call(),
		asm.Return(),

		asm.Mov.Imm(asm.R0, 2).WithSymbol("pass"), // XDP_PASS
		asm.Return(),
	}
}

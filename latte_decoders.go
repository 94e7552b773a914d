// latte_decoders.go - ALU clause decomposition and operand reference decoding

package main

import (
	"encoding/binary"
	"fmt"
	"math"
)

// aluNopInst fills unused units of a decoded group so downstream logic
// can skip nil checks.
var aluNopInst = AluInst{Word0: 0x00000000, Word1: uint32(OP2_INST_NOP) << 7}

// AluInstructionGroup is one decoded ALU group: up to five co-issued
// instructions plus the group's literal pool.
type AluInstructionGroup struct {
	units    [5]*AluInst
	literals []uint32
}

// AluClauseParser splits a clause of 64-bit ALU slots into groups,
// assigning instructions to units by the documented rules and carving
// the literal pool out of the slots that follow each group.
type AluClauseParser struct {
	slots            []AluInst
	aluPreferVector  bool
	index            int
}

func newAluClauseParser(slots []AluInst, preferVector bool) *AluClauseParser {
	return &AluClauseParser{slots: slots, aluPreferVector: preferVector}
}

func (p *AluClauseParser) isEndOfClause() bool {
	return p.index >= len(p.slots)
}

// readOneGroup consumes instructions until the LAST bit, placing each
// on its unit: transcendental-only ops go to T, vector-only ops to
// their preferred unit, and everything else to the preferred unit
// unless it is taken (or the clause prefers the T pipe for a trailing
// instruction), in which case T. Unit collisions are a malformed
// program.
func (p *AluClauseParser) readOneGroup() (AluInstructionGroup, error) {
	var group AluInstructionGroup
	literalCount := uint32(0)

	for {
		if p.index >= len(p.slots) {
			return group, fmt.Errorf("ALU clause ran out of slots mid-group")
		}
		inst := &p.slots[p.index]
		p.index++

		srcCount := aluInstNumSrcs(*inst)
		if srcCount > 0 && inst.Src0Sel() == AluSrcLiteral {
			literalCount = max32(literalCount, 1+uint32(inst.Src0Chan()))
		}
		if srcCount > 1 && inst.Src1Sel() == AluSrcLiteral {
			literalCount = max32(literalCount, 1+uint32(inst.Src1Chan()))
		}
		if srcCount > 2 && inst.Src2Sel() == AluSrcLiteral {
			literalCount = max32(literalCount, 1+uint32(inst.Src2Chan()))
		}

		elem := inst.DstChan()
		isLast := inst.Last()
		flags := aluInstFlags(*inst)

		var isTrans bool
		switch {
		case isTranscendentalOnly(flags):
			isTrans = true
		case isVectorOnly(flags):
			isTrans = false
		case group.units[elem] != nil || (!p.aluPreferVector && isLast):
			isTrans = true
		default:
			isTrans = false
		}

		if isTrans {
			if group.units[ChanT] != nil {
				return group, fmt.Errorf("ALU group unit collision on unit T")
			}
			group.units[ChanT] = inst
		} else {
			if group.units[elem] != nil {
				return group, fmt.Errorf("ALU group unit collision on unit %d", elem)
			}
			group.units[elem] = inst
		}

		if isLast {
			break
		}
	}

	// The literal pool occupies whole 64-bit slots directly after the
	// last instruction of the group.
	if literalCount > 0 {
		slotCount := int(alignUp(literalCount, 2) / 2)
		if p.index+slotCount > len(p.slots) {
			return group, fmt.Errorf("ALU clause literal pool runs past the clause end")
		}
		group.literals = make([]uint32, 0, literalCount)
		for i := 0; i < slotCount; i++ {
			slot := p.slots[p.index+i]
			group.literals = append(group.literals, slot.Word0, slot.Word1)
		}
		group.literals = group.literals[:literalCount]
		p.index += slotCount
	}

	for i := range group.units {
		if group.units[i] == nil {
			group.units[i] = &aluNopInst
		}
	}
	return group, nil
}

func max32(a, b uint32) uint32 {
	if a > b {
		return a
	}
	return b
}

func alignUp(v, a uint32) uint32 {
	return (v + a - 1) &^ (a - 1)
}

// decodeAluClause reinterprets the byte range of a clause as ALU slots.
func decodeAluClause(binaryData []byte, addr, count uint32) ([]AluInst, error) {
	offset := int(addr) * 8
	end := offset + int(count)*8
	if end > len(binaryData) {
		return nil, fmt.Errorf("ALU clause at slot %d overruns the shader binary", addr)
	}
	slots := make([]AluInst, count)
	for i := range slots {
		slots[i].Word0 = binary.LittleEndian.Uint32(binaryData[offset+i*8:])
		slots[i].Word1 = binary.LittleEndian.Uint32(binaryData[offset+i*8+4:])
	}
	return slots, nil
}

func decodeTexClause(binaryData []byte, addr, count uint32) ([]TextureFetchInst, error) {
	offset := int(addr) * 8
	end := offset + int(count)*16
	if end > len(binaryData) {
		return nil, fmt.Errorf("TEX clause at slot %d overruns the shader binary", addr)
	}
	insts := make([]TextureFetchInst, count)
	for i := range insts {
		base := offset + i*16
		insts[i].Word0 = binary.LittleEndian.Uint32(binaryData[base:])
		insts[i].Word1 = binary.LittleEndian.Uint32(binaryData[base+4:])
		insts[i].Word2 = binary.LittleEndian.Uint32(binaryData[base+8:])
	}
	return insts, nil
}

func decodeVtxClause(binaryData []byte, addr, count uint32) ([]VertexFetchInst, error) {
	offset := int(addr) * 8
	end := offset + int(count)*16
	if end > len(binaryData) {
		return nil, fmt.Errorf("VTX clause at slot %d overruns the shader binary", addr)
	}
	insts := make([]VertexFetchInst, count)
	for i := range insts {
		base := offset + i*16
		insts[i].Word0 = binary.LittleEndian.Uint32(binaryData[base:])
		insts[i].Word1 = binary.LittleEndian.Uint32(binaryData[base+4:])
		insts[i].Word2 = binary.LittleEndian.Uint32(binaryData[base+8:])
	}
	return insts, nil
}

// ---------------------------------------------------------------------------
// Operand references
// ---------------------------------------------------------------------------

type GprIndexMode int

const (
	GprIndexNone GprIndexMode = iota
	GprIndexArX
	GprIndexAL
)

type CfileIndexMode int

const (
	CfileIndexNone CfileIndexMode = iota
	CfileIndexArX
	CfileIndexArY
	CfileIndexArZ
	CfileIndexArW
	CfileIndexAL
)

type VarRefType int

const (
	VarRefFloat VarRefType = iota
	VarRefInt
	VarRefUint
)

type GprRef struct {
	Number    uint32
	IndexMode GprIndexMode
}

type CfileRef struct {
	Index     uint32
	IndexMode CfileIndexMode
}

type CbufferRef struct {
	BufferID uint32
	Index    uint32
}

type GprChanRef struct {
	Gpr  GprRef
	Chan SQChan
}

type GprMaskRef struct {
	Gpr  GprRef
	Mask [4]SQSel
}

// SrcVarRef is a fully decoded ALU source operand.
type SrcVarRef struct {
	Kind srcVarKind

	GprChan    GprChanRef
	Cfile      CfileRef
	CfileChan  SQChan
	Cbuffer    CbufferRef
	CbufChan   SQChan
	PrevUnit   SQChan
	ValueBits  uint32

	ValueType  VarRefType
	IsAbsolute bool
	IsNegated  bool
}

type srcVarKind int

const (
	srcVarGpr srcVarKind = iota
	srcVarCbuffer
	srcVarCfile
	srcVarPrevRes
	srcVarValue
)

func makeGprRef(number uint32, rel SQRel, indexMode SQIndexMode) (GprRef, error) {
	gpr := GprRef{Number: number}
	if rel == RelRel {
		switch indexMode {
		case IndexARX, IndexARY, IndexARZ, IndexARW:
			gpr.IndexMode = GprIndexArX
		case IndexLoop:
			gpr.IndexMode = GprIndexAL
		default:
			return gpr, fmt.Errorf("unexpected GPR index mode %d", indexMode)
		}
	}
	return gpr, nil
}

func makeCfileRef(offset uint32, rel SQRel, indexMode SQIndexMode) (CfileRef, error) {
	cfile := CfileRef{Index: offset}
	if rel == RelRel {
		switch indexMode {
		case IndexARX:
			cfile.IndexMode = CfileIndexArX
		case IndexARY:
			cfile.IndexMode = CfileIndexArY
		case IndexARZ:
			cfile.IndexMode = CfileIndexArZ
		case IndexARW:
			cfile.IndexMode = CfileIndexArW
		case IndexLoop:
			cfile.IndexMode = CfileIndexAL
		default:
			return cfile, fmt.Errorf("unexpected constant-file index mode %d", indexMode)
		}
	}
	return cfile, nil
}

func makeCbufferRef(offset uint32, mode SQKcacheMode, bank, addr uint32) (CbufferRef, error) {
	var lockedCount uint32
	switch mode {
	case KcacheNop:
		lockedCount = 0
	case KcacheLock1:
		lockedCount = 16
	case KcacheLock2, KcacheLockLoopIndex:
		lockedCount = 32
	default:
		return CbufferRef{}, fmt.Errorf("unexpected KCACHE mode %d", mode)
	}
	if offset >= lockedCount {
		return CbufferRef{}, fmt.Errorf("KCACHE read at offset %d outside the locked window of %d", offset, lockedCount)
	}
	return CbufferRef{BufferID: bank, Index: addr*16 + offset}, nil
}

// makeSrcVar decodes one selector into a source reference, resolving
// literals against the group pool and KCACHE selectors against the CF
// word's bank locks.
func makeSrcVar(cf ControlFlowInst, group *AluInstructionGroup, selID uint32, chan_ SQChan, rel SQRel,
	abs, neg bool, indexMode SQIndexMode, valueType VarRefType) (SrcVarRef, error) {

	out := SrcVarRef{IsAbsolute: abs, IsNegated: neg, ValueType: valueType}

	switch {
	case selID < 128:
		gpr, err := makeGprRef(selID, rel, indexMode)
		if err != nil {
			return out, err
		}
		out.Kind = srcVarGpr
		out.GprChan = GprChanRef{Gpr: gpr, Chan: chan_}

	case selID >= AluSrcKcacheBank0 && selID < AluSrcKcacheBank0+32:
		if rel != RelAbs {
			return out, fmt.Errorf("relative KCACHE addressing is done at the lock level")
		}
		cbuffer, err := makeCbufferRef(selID-AluSrcKcacheBank0, cf.KcacheMode0(), cf.KcacheBank0(), cf.KcacheAddr0())
		if err != nil {
			return out, err
		}
		out.Kind = srcVarCbuffer
		out.Cbuffer = cbuffer
		out.CbufChan = chan_

	case selID >= AluSrcKcacheBank1 && selID < AluSrcKcacheBank1+32:
		if rel != RelAbs {
			return out, fmt.Errorf("relative KCACHE addressing is done at the lock level")
		}
		cbuffer, err := makeCbufferRef(selID-AluSrcKcacheBank1, cf.KcacheMode1(), cf.KcacheBank1(), cf.KcacheAddr1())
		if err != nil {
			return out, err
		}
		out.Kind = srcVarCbuffer
		out.Cbuffer = cbuffer
		out.CbufChan = chan_

	case selID >= AluSrcCfileBase && selID < AluSrcCfileBase+256:
		cfile, err := makeCfileRef(selID-AluSrcCfileBase, rel, indexMode)
		if err != nil {
			return out, err
		}
		out.Kind = srcVarCfile
		out.Cfile = cfile
		out.CfileChan = chan_

	default:
		switch selID {
		case AluSrcImm0:
			out.Kind = srcVarValue
			out.ValueBits = math.Float32bits(0.0)
		case AluSrcImm1:
			out.Kind = srcVarValue
			out.ValueBits = math.Float32bits(1.0)
		case AluSrcImm0p5:
			out.Kind = srcVarValue
			out.ValueBits = math.Float32bits(0.5)
		case AluSrcImm1Int:
			out.Kind = srcVarValue
			out.ValueBits = 1
		case AluSrcImmM1Int:
			out.Kind = srcVarValue
			out.ValueBits = 0xFFFFFFFF
		case AluSrcLiteral:
			if int(chan_) >= len(group.literals) {
				return out, fmt.Errorf("literal channel %d outside a pool of %d", chan_, len(group.literals))
			}
			out.Kind = srcVarValue
			out.ValueBits = group.literals[chan_]
		case AluSrcPV:
			out.Kind = srcVarPrevRes
			out.PrevUnit = chan_
		case AluSrcPS:
			out.Kind = srcVarPrevRes
			out.PrevUnit = ChanT
		default:
			return out, fmt.Errorf("unsupported ALU source selector %d", selID)
		}
	}

	return out, nil
}

// makeAluSrcVar decodes source operand srcIndex of an instruction,
// deriving the value type from the instruction's property flags when
// the caller does not force one.
func makeAluSrcVar(cf ControlFlowInst, group *AluInstructionGroup, inst AluInst, srcIndex uint32, valueType VarRefType) (SrcVarRef, error) {
	if inst.Encoding() == AluOp2 {
		switch srcIndex {
		case 0:
			return makeSrcVar(cf, group, inst.Src0Sel(), inst.Src0Chan(), inst.Src0Rel(),
				inst.Src0Abs(), inst.Src0Neg(), inst.IndexMode(), valueType)
		case 1:
			return makeSrcVar(cf, group, inst.Src1Sel(), inst.Src1Chan(), inst.Src1Rel(),
				inst.Src1Abs(), inst.Src1Neg(), inst.IndexMode(), valueType)
		}
	} else {
		switch srcIndex {
		case 0:
			return makeSrcVar(cf, group, inst.Src0Sel(), inst.Src0Chan(), inst.Src0Rel(),
				false, inst.Src0Neg(), inst.IndexMode(), valueType)
		case 1:
			return makeSrcVar(cf, group, inst.Src1Sel(), inst.Src1Chan(), inst.Src1Rel(),
				false, inst.Src1Neg(), inst.IndexMode(), valueType)
		case 2:
			return makeSrcVar(cf, group, inst.Src2Sel(), inst.Src2Chan(), inst.Src2Rel(),
				false, inst.Src2Neg(), inst.IndexMode(), valueType)
		}
	}
	return SrcVarRef{}, fmt.Errorf("invalid source var index %d", srcIndex)
}

func aluSrcValueType(inst AluInst) VarRefType {
	flags := aluInstFlags(inst)
	switch {
	case flags&AluFlagIntIn != 0:
		return VarRefInt
	case flags&AluFlagUintIn != 0:
		return VarRefUint
	default:
		return VarRefFloat
	}
}

// ---------------------------------------------------------------------------
// Exports
// ---------------------------------------------------------------------------

type ExportKind int

const (
	ExportKindPosition ExportKind = iota
	ExportKindParam
	ExportKindPixel
	ExportKindPixelWithFog
	ExportKindComputedZ
	ExportKindStream0Write
	ExportKindStream1Write
	ExportKindStream2Write
	ExportKindStream3Write
	ExportKindVsGsRingWrite
	ExportKindGsDcRingWrite
)

// ExportRef describes one export destination slot.
type ExportRef struct {
	Kind       ExportKind
	Index      uint32
	DataStride uint32
	ElemCount  uint32
	ArraySize  uint32
	IndexGpr   int32 // -1 when the write is not indexed
	ValueType  VarRefType
}

func makeExportRef(ty SQExportType, arrayBase uint32) (ExportRef, error) {
	out := ExportRef{ElemCount: 1, ArraySize: 1, IndexGpr: -1, ValueType: VarRefFloat}
	switch ty {
	case ExportPos:
		if arrayBase >= 60 && arrayBase <= 63 {
			out.Kind = ExportKindPosition
			out.Index = arrayBase - 60
			return out, nil
		}
		return out, fmt.Errorf("unexpected POS export index %d", arrayBase)
	case ExportParam:
		if arrayBase <= 31 {
			out.Kind = ExportKindParam
			out.Index = arrayBase
			return out, nil
		}
		return out, fmt.Errorf("unexpected PARAM export index %d", arrayBase)
	case ExportPixel:
		switch {
		case arrayBase <= 7:
			out.Kind = ExportKindPixel
			out.Index = arrayBase
		case arrayBase >= 16 && arrayBase <= 23:
			out.Kind = ExportKindPixelWithFog
			out.Index = arrayBase - 16
		case arrayBase == 61:
			out.Kind = ExportKindComputedZ
			out.Index = 0
		default:
			return out, fmt.Errorf("unexpected PIXEL export index %d", arrayBase)
		}
		return out, nil
	}
	return out, fmt.Errorf("unexpected export type %d", ty)
}

func makeMemExportRef(kind ExportKind, ty SQExportType, indexGpr, dataStride, arrayBase, arraySize, elemCount uint32) (ExportRef, error) {
	out := ExportRef{
		Kind:       kind,
		Index:      arrayBase,
		DataStride: dataStride,
		ElemCount:  elemCount,
		ArraySize:  arraySize,
		IndexGpr:   -1,
		ValueType:  VarRefFloat,
	}
	switch ty {
	case MemExportWrite:
	case MemExportWriteInd:
		out.IndexGpr = int32(indexGpr)
	default:
		return out, fmt.Errorf("unexpected memory export type %d", ty)
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Swizzle helpers
// ---------------------------------------------------------------------------

func isSwizzleFullyMasked(mask [4]SQSel) bool {
	for _, sel := range mask {
		if sel != SelMask {
			return false
		}
	}
	return true
}

func isSwizzleFullyUnmasked(mask [4]SQSel) bool {
	for _, sel := range mask {
		if sel == SelMask {
			return false
		}
	}
	return true
}

// shader_ir.go - Shader intermediate representation emitted by the translator

package main

import (
	"fmt"
	"math"
)

// IRValue is an SSA result id. Zero means "no result".
type IRValue uint32

const IRNoResult IRValue = 0

// IRType tags the value produced by an instruction.
type IRType uint8

const (
	IRTypeVoid IRType = iota
	IRTypeFloat
	IRTypeInt
	IRTypeUint
	IRTypeBool
	IRTypeFloat4
	IRTypeInt4
	IRTypeUint4
)

// IROp enumerates the IR instruction set. The translator emits a flat
// instruction stream with structured control-flow markers; the SPIR-V
// lowering turns those markers into proper blocks, and the reference
// evaluator executes them with a skip stack.
type IROp uint16

const (
	IROpNop IROp = iota

	// Constants. The payload rides in Bits.
	IROpConstFloat
	IROpConstInt
	IROpConstUint
	IROpConstBool

	// Register file and builtin state access. A/B carry immediate
	// operands (channel, unit, slot); dynamic indices arrive as Args.
	IROpLoadGprChan  // Args: gprIndex (uint); A: channel
	IROpStoreGprChan // Args: gprIndex, value; A: channel
	IROpLoadGprVec   // Args: gprIndex
	IROpStoreGprVec  // Args: gprIndex, value
	IROpLoadCfileChan
	IROpLoadCbufferChan // A: channel, B: bufferID; Args: index
	IROpLoadAR          // A: lane
	IROpLoadState
	IROpStoreState
	IROpLoadStackIndex
	IROpStoreStackIndex
	IROpLoadStackAt  // Args: index
	IROpStoreStackAt // Args: index, value
	IROpLoadPredicate
	IROpStorePredicate
	IROpLoadBuiltin     // A: builtin kind
	IROpLoadInputParam  // A: location, B: interpolation qualifier
	IROpLoadPushConst   // A: push-constant slot
	IROpLoadRingOffset
	IROpStoreRingOffset

	// Exports. A: export kind, B: index; Args: value (and index gpr
	// value for indexed memory writes).
	IROpLoadExport
	IROpStoreExport
	IROpMemExport // A: export kind; Args: value, elemOffset

	// Arithmetic and logic.
	IROpFAdd
	IROpFSub
	IROpFMul
	IROpFDiv
	IROpFMax
	IROpFMin
	IROpFNeg
	IROpFAbs
	IROpFFloor
	IROpFCeil
	IROpFTrunc
	IROpFRoundEven
	IROpFFract
	IROpFSqrt
	IROpFExp2
	IROpFLog2
	IROpFSin
	IROpFCos
	IROpFClamp
	IROpDot4
	IROpIAdd
	IROpISub
	IROpIMul
	IROpIAnd
	IROpIOr
	IROpIXor
	IROpINot
	IROpINeg
	IROpShiftLeft
	IROpShiftRightLogical
	IROpShiftRightArith
	IROpSMax
	IROpSMin
	IROpUMax
	IROpUMin
	IROpSClamp

	// Conversions.
	IROpConvertFToS
	IROpConvertFToU
	IROpConvertSToF
	IROpConvertUToF
	IROpBitcast

	// Comparisons produce bools.
	IROpFOrdEqual
	IROpFOrdNotEqual
	IROpFOrdLessThan
	IROpFOrdLessThanEqual
	IROpFOrdGreaterThan
	IROpFOrdGreaterThanEqual
	IROpIEqual
	IROpINotEqual
	IROpSLessThan
	IROpSLessThanEqual
	IROpSGreaterThan
	IROpSGreaterThanEqual
	IROpULessThan
	IROpULessThanEqual
	IROpUGreaterThan
	IROpUGreaterThanEqual
	IROpLogicalNot
	IROpSelect

	// Composites.
	IROpCompositeConstruct4
	IROpCompositeExtract // A: channel
	IROpCompositeInsert  // A: channel; Args: element, composite

	// Structured control flow.
	IROpIfBegin // Args: condition
	IROpIfElse
	IROpIfEnd
	IROpDiscard
	IROpReturn

	// Resource access.
	IROpSampleTexture // A: sample kind, B: textureID<<8|samplerID; Args: coord (+ lod/ref)
	IROpBufferFetch   // A: packed format descriptor, B: bufferID; Args: byte offset
)

// Sample kinds for IROpSampleTexture.
const (
	SampleKindNormal = iota
	SampleKindLod
	SampleKindLodZero
	SampleKindBias
	SampleKindCompare
	SampleKindCompareLodZero
	SampleKindGather4
)

// Builtin kinds for IROpLoadBuiltin.
const (
	BuiltinVertexID = iota
	BuiltinInstanceID
	BuiltinFragCoord
	BuiltinFrontFacing
)

// Push-constant slots. The layout is part of the wire contract with
// the render backend.
const (
	PushPosMulAdd = iota // vec4: xy scale, zw offset
	PushZSpaceMul        // vec4: z remap factors, vertex/instance base
	PushPointSize        // vec4: point size in x
	PushAlphaData        // uvec4-as-vec4: alpha func in bits 0-7, logic op in 8-15
	PushAlphaRef         // vec4: reference alpha in x
)

// IRInst is one IR instruction.
type IRInst struct {
	Op     IROp
	Type   IRType
	Result IRValue
	Args   []IRValue
	A, B   uint32
	Bits   uint32 // constant payload
}

// ShaderStage mirrors the guest program types.
type ShaderStage int

const (
	StageUnknown ShaderStage = iota
	StageFetch
	StageVertex
	StageGeometry
	StageDataCache
	StagePixel
)

func (s ShaderStage) String() string {
	switch s {
	case StageFetch:
		return "fetch"
	case StageVertex:
		return "vertex"
	case StageGeometry:
		return "geometry"
	case StageDataCache:
		return "data-cache"
	case StagePixel:
		return "pixel"
	}
	return "unknown"
}

// IRModule is the translated shader: a flat instruction stream plus
// usage metadata for the render backend.
type IRModule struct {
	Stage ShaderStage
	Insts []IRInst

	// TexDims mirrors the descriptor snapshot for image typing in the
	// SPIR-V lowering.
	TexDims [16]TexDim

	nextID IRValue

	SamplersUsed  map[uint32]bool
	TexturesUsed  map[uint32]bool
	CbuffersUsed  map[uint32]bool
	CfileUsed     bool
	StreamOutUsed [4]bool
	NumParamExports uint32
	PixelOutUsed  [8]bool
}

func newIRModule(stage ShaderStage) *IRModule {
	return &IRModule{
		Stage:        stage,
		SamplersUsed: make(map[uint32]bool),
		TexturesUsed: make(map[uint32]bool),
		CbuffersUsed: make(map[uint32]bool),
	}
}

func (m *IRModule) emit(inst IRInst) IRValue {
	if inst.Type != IRTypeVoid {
		m.nextID++
		inst.Result = m.nextID
	}
	m.Insts = append(m.Insts, inst)
	return inst.Result
}

// typeOf returns the result type of a previously emitted value.
func (m *IRModule) typeOf(v IRValue) IRType {
	for i := len(m.Insts) - 1; i >= 0; i-- {
		if m.Insts[i].Result == v {
			return m.Insts[i].Type
		}
	}
	return IRTypeVoid
}

// Constant helpers.

func (m *IRModule) constFloat(v float32) IRValue {
	return m.emit(IRInst{Op: IROpConstFloat, Type: IRTypeFloat, Bits: math.Float32bits(v)})
}

func (m *IRModule) constInt(v int32) IRValue {
	return m.emit(IRInst{Op: IROpConstInt, Type: IRTypeInt, Bits: uint32(v)})
}

func (m *IRModule) constUint(v uint32) IRValue {
	return m.emit(IRInst{Op: IROpConstUint, Type: IRTypeUint, Bits: v})
}

func (m *IRModule) constBool(v bool) IRValue {
	bits := uint32(0)
	if v {
		bits = 1
	}
	return m.emit(IRInst{Op: IROpConstBool, Type: IRTypeBool, Bits: bits})
}

// Op helpers.

func (m *IRModule) unaryOp(op IROp, ty IRType, a IRValue) IRValue {
	return m.emit(IRInst{Op: op, Type: ty, Args: []IRValue{a}})
}

func (m *IRModule) binOp(op IROp, ty IRType, a, b IRValue) IRValue {
	return m.emit(IRInst{Op: op, Type: ty, Args: []IRValue{a, b}})
}

func (m *IRModule) triOp(op IROp, ty IRType, a, b, c IRValue) IRValue {
	return m.emit(IRInst{Op: op, Type: ty, Args: []IRValue{a, b, c}})
}

func (m *IRModule) ifBegin(cond IRValue) {
	m.emit(IRInst{Op: IROpIfBegin, Args: []IRValue{cond}})
}

func (m *IRModule) ifElse() { m.emit(IRInst{Op: IROpIfElse}) }

func (m *IRModule) ifEnd() { m.emit(IRInst{Op: IROpIfEnd}) }

func (m *IRModule) String() string {
	return fmt.Sprintf("%s shader, %d IR instructions", m.Stage, len(m.Insts))
}

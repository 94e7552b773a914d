// shader_ir_eval.go - Reference evaluator for the shader IR

package main

import (
	"encoding/binary"
	"fmt"
	"math"
)

// evalValue is one SSA value: a scalar in lane 0 or a full vec4,
// always stored as raw bits with the IR type alongside.
type evalValue struct {
	lanes [4]uint32
	ty    IRType
}

func scalarF(v float32) evalValue {
	return evalValue{lanes: [4]uint32{math.Float32bits(v)}, ty: IRTypeFloat}
}

func scalarBits(bits uint32, ty IRType) evalValue {
	return evalValue{lanes: [4]uint32{bits}, ty: ty}
}

func (v evalValue) f() float32  { return math.Float32frombits(v.lanes[0]) }
func (v evalValue) i() int32    { return int32(v.lanes[0]) }
func (v evalValue) u() uint32   { return v.lanes[0] }
func (v evalValue) b() bool     { return v.lanes[0] != 0 }

// ExportSlot keys one export destination.
type ExportSlot struct {
	Kind  ExportKind
	Index uint32
}

// MemExportRecord captures one stream or ring write.
type MemExportRecord struct {
	Kind   ExportKind
	Index  uint32
	Offset uint32
	Value  [4]uint32
}

// TextureSampler supplies texel values to the evaluator.
type TextureSampler func(textureID, samplerID, kind uint32, coord [4]float32) [4]float32

// IREvaluator executes a translated module against explicit inputs.
// It is the reference interpreter the round-trip tests compare
// against and the debug path for validating translations without a
// GPU.
type IREvaluator struct {
	module *IRModule
	values map[IRValue]evalValue

	Gpr   [MaxShaderGprs][4]uint32
	Cfile [256][4]uint32
	Cbuf  map[uint32][][4]uint32

	State     int32
	StackIdx  int32
	Stack     [ExecStackDepth]int32
	Predicate bool
	RingOffset uint32

	PushConsts [8][4]uint32

	VertexID    int32
	InstanceID  int32
	FragCoord   [4]float32
	FrontFacing bool
	InputParams map[uint32][4]float32

	Exports    map[ExportSlot][4]uint32
	MemExports []MemExportRecord
	Discarded  bool

	Buffers map[uint32][]byte
	Sample  TextureSampler
}

func NewIREvaluator(module *IRModule) *IREvaluator {
	return &IREvaluator{
		module:      module,
		values:      make(map[IRValue]evalValue),
		Cbuf:        make(map[uint32][][4]uint32),
		InputParams: make(map[uint32][4]float32),
		Exports:     make(map[ExportSlot][4]uint32),
		Buffers:     make(map[uint32][]byte),
	}
}

// SetPushConstFloat fills one push-constant slot with four floats.
func (e *IREvaluator) SetPushConstFloat(slot int, x, y, z, w float32) {
	e.PushConsts[slot] = [4]uint32{
		math.Float32bits(x), math.Float32bits(y), math.Float32bits(z), math.Float32bits(w),
	}
}

// ExportFloat4 reads back one export slot as floats.
func (e *IREvaluator) ExportFloat4(kind ExportKind, index uint32) [4]float32 {
	bits := e.Exports[ExportSlot{Kind: kind, Index: index}]
	return [4]float32{
		math.Float32frombits(bits[0]), math.Float32frombits(bits[1]),
		math.Float32frombits(bits[2]), math.Float32frombits(bits[3]),
	}
}

// GprFloat reads back one GPR channel as a float.
func (e *IREvaluator) GprFloat(gpr, chan_ uint32) float32 {
	return math.Float32frombits(e.Gpr[gpr][chan_])
}

// SetGprFloat seeds one GPR channel.
func (e *IREvaluator) SetGprFloat(gpr, chan_ uint32, v float32) {
	e.Gpr[gpr][chan_] = math.Float32bits(v)
}

// Run executes the module to completion, a discard or a return.
func (e *IREvaluator) Run() error {
	// Each entry records whether its branch executes and whether the
	// condition was true (to resolve an else arm).
	type ifFrame struct {
		parentLive bool
		cond       bool
		live       bool
	}
	var ifStack []ifFrame
	live := func() bool {
		for _, frame := range ifStack {
			if !frame.live {
				return false
			}
		}
		return true
	}

	for idx := range e.module.Insts {
		inst := &e.module.Insts[idx]

		switch inst.Op {
		case IROpIfBegin:
			parent := live()
			cond := parent && e.values[inst.Args[0]].b()
			ifStack = append(ifStack, ifFrame{parentLive: parent, cond: cond, live: cond})
			continue
		case IROpIfElse:
			if len(ifStack) == 0 {
				return fmt.Errorf("else marker outside a conditional")
			}
			top := &ifStack[len(ifStack)-1]
			top.live = top.parentLive && !top.cond
			continue
		case IROpIfEnd:
			if len(ifStack) == 0 {
				return fmt.Errorf("end marker outside a conditional")
			}
			ifStack = ifStack[:len(ifStack)-1]
			continue
		}

		if !live() {
			continue
		}

		switch inst.Op {
		case IROpDiscard:
			e.Discarded = true
			return nil
		case IROpReturn:
			return nil
		}

		if err := e.step(inst); err != nil {
			return err
		}
	}
	return nil
}

func (e *IREvaluator) step(inst *IRInst) error {
	arg := func(i int) evalValue { return e.values[inst.Args[i]] }
	set := func(v evalValue) {
		v.ty = inst.Type
		e.values[inst.Result] = v
	}
	setF := func(v float32) { set(scalarF(v)) }
	setBits := func(bits uint32) { set(scalarBits(bits, inst.Type)) }
	setBool := func(b bool) {
		if b {
			setBits(1)
		} else {
			setBits(0)
		}
	}

	switch inst.Op {
	case IROpNop:

	case IROpConstFloat, IROpConstInt, IROpConstUint, IROpConstBool:
		setBits(inst.Bits)

	case IROpLoadGprChan:
		gpr := arg(0).u() % MaxShaderGprs
		setBits(e.Gpr[gpr][inst.A])
	case IROpStoreGprChan:
		gpr := arg(0).u() % MaxShaderGprs
		e.Gpr[gpr][inst.A] = arg(1).u()
	case IROpLoadGprVec:
		gpr := arg(0).u() % MaxShaderGprs
		set(evalValue{lanes: e.Gpr[gpr]})
	case IROpStoreGprVec:
		gpr := arg(0).u() % MaxShaderGprs
		e.Gpr[gpr] = arg(1).lanes

	case IROpLoadCfileChan:
		idx := arg(0).u() % 256
		setBits(e.Cfile[idx][inst.A])
	case IROpLoadCbufferChan:
		buf := e.Cbuf[inst.B]
		idx := arg(0).u()
		if int(idx) >= len(buf) {
			setBits(0)
		} else {
			setBits(buf[idx][inst.A])
		}

	case IROpLoadState:
		setBits(uint32(e.State))
	case IROpStoreState:
		e.State = arg(0).i()
	case IROpLoadStackIndex:
		setBits(uint32(e.StackIdx))
	case IROpStoreStackIndex:
		e.StackIdx = arg(0).i()
	case IROpLoadStackAt:
		idx := arg(0).i()
		if idx < 0 || int(idx) >= len(e.Stack) {
			return fmt.Errorf("execution stack index %d out of range", idx)
		}
		setBits(uint32(e.Stack[idx]))
	case IROpStoreStackAt:
		idx := arg(0).i()
		if idx < 0 || int(idx) >= len(e.Stack) {
			return fmt.Errorf("execution stack index %d out of range", idx)
		}
		e.Stack[idx] = arg(1).i()
	case IROpLoadPredicate:
		setBool(e.Predicate)
	case IROpStorePredicate:
		e.Predicate = arg(0).b()
	case IROpLoadRingOffset:
		setBits(e.RingOffset)
	case IROpStoreRingOffset:
		e.RingOffset = arg(0).u()

	case IROpLoadBuiltin:
		switch inst.A {
		case BuiltinVertexID:
			setBits(uint32(e.VertexID))
		case BuiltinInstanceID:
			setBits(uint32(e.InstanceID))
		case BuiltinFragCoord:
			set(evalValue{lanes: [4]uint32{
				math.Float32bits(e.FragCoord[0]), math.Float32bits(e.FragCoord[1]),
				math.Float32bits(e.FragCoord[2]), math.Float32bits(e.FragCoord[3]),
			}})
		case BuiltinFrontFacing:
			setBool(e.FrontFacing)
		default:
			return fmt.Errorf("unknown builtin %d", inst.A)
		}
	case IROpLoadInputParam:
		param := e.InputParams[inst.A]
		set(evalValue{lanes: [4]uint32{
			math.Float32bits(param[0]), math.Float32bits(param[1]),
			math.Float32bits(param[2]), math.Float32bits(param[3]),
		}})
	case IROpLoadPushConst:
		if inst.Type == IRTypeUint || inst.Type == IRTypeInt {
			setBits(e.PushConsts[inst.A][0])
		} else {
			set(evalValue{lanes: e.PushConsts[inst.A]})
		}

	case IROpLoadExport:
		set(evalValue{lanes: e.Exports[ExportSlot{Kind: ExportKind(inst.A), Index: inst.B}]})
	case IROpStoreExport:
		e.Exports[ExportSlot{Kind: ExportKind(inst.A), Index: inst.B}] = arg(0).lanes
	case IROpMemExport:
		e.MemExports = append(e.MemExports, MemExportRecord{
			Kind:   ExportKind(inst.A),
			Index:  inst.B,
			Offset: arg(1).u(),
			Value:  arg(0).lanes,
		})

	case IROpFAdd:
		setF(arg(0).f() + arg(1).f())
	case IROpFSub:
		setF(arg(0).f() - arg(1).f())
	case IROpFMul:
		setF(arg(0).f() * arg(1).f())
	case IROpFDiv:
		setF(arg(0).f() / arg(1).f())
	case IROpFMax:
		setF(float32(math.Max(float64(arg(0).f()), float64(arg(1).f()))))
	case IROpFMin:
		setF(float32(math.Min(float64(arg(0).f()), float64(arg(1).f()))))
	case IROpFNeg:
		setF(-arg(0).f())
	case IROpFAbs:
		setF(float32(math.Abs(float64(arg(0).f()))))
	case IROpFFloor:
		setF(float32(math.Floor(float64(arg(0).f()))))
	case IROpFCeil:
		setF(float32(math.Ceil(float64(arg(0).f()))))
	case IROpFTrunc:
		setF(float32(math.Trunc(float64(arg(0).f()))))
	case IROpFRoundEven:
		setF(float32(math.RoundToEven(float64(arg(0).f()))))
	case IROpFFract:
		v := float64(arg(0).f())
		setF(float32(v - math.Floor(v)))
	case IROpFSqrt:
		setF(float32(math.Sqrt(float64(arg(0).f()))))
	case IROpFExp2:
		setF(float32(math.Exp2(float64(arg(0).f()))))
	case IROpFLog2:
		setF(float32(math.Log2(float64(arg(0).f()))))
	case IROpFSin:
		setF(float32(math.Sin(float64(arg(0).f()))))
	case IROpFCos:
		setF(float32(math.Cos(float64(arg(0).f()))))
	case IROpFClamp:
		v := arg(0).f()
		lo, hi := arg(1).f(), arg(2).f()
		if v < lo {
			v = lo
		}
		if v > hi {
			v = hi
		}
		setF(v)
	case IROpDot4:
		a, b := arg(0), arg(1)
		var sum float32
		for i := 0; i < 4; i++ {
			sum += math.Float32frombits(a.lanes[i]) * math.Float32frombits(b.lanes[i])
		}
		setF(sum)

	case IROpIAdd:
		setBits(arg(0).u() + arg(1).u())
	case IROpISub:
		setBits(arg(0).u() - arg(1).u())
	case IROpIMul:
		setBits(arg(0).u() * arg(1).u())
	case IROpIAnd:
		setBits(arg(0).u() & arg(1).u())
	case IROpIOr:
		setBits(arg(0).u() | arg(1).u())
	case IROpIXor:
		setBits(arg(0).u() ^ arg(1).u())
	case IROpINot:
		setBits(^arg(0).u())
	case IROpINeg:
		setBits(uint32(-arg(0).i()))
	case IROpShiftLeft:
		setBits(arg(0).u() << (arg(1).u() & 31))
	case IROpShiftRightLogical:
		setBits(arg(0).u() >> (arg(1).u() & 31))
	case IROpShiftRightArith:
		setBits(uint32(arg(0).i() >> (arg(1).u() & 31)))
	case IROpSMax:
		setBits(uint32(maxI32(arg(0).i(), arg(1).i())))
	case IROpSMin:
		setBits(uint32(minI32(arg(0).i(), arg(1).i())))
	case IROpUMax:
		setBits(max32(arg(0).u(), arg(1).u()))
	case IROpUMin:
		if a, b := arg(0).u(), arg(1).u(); a < b {
			setBits(a)
		} else {
			setBits(b)
		}
	case IROpSClamp:
		v := arg(0).i()
		lo, hi := arg(1).i(), arg(2).i()
		if v < lo {
			v = lo
		}
		if v > hi {
			v = hi
		}
		setBits(uint32(v))

	case IROpConvertFToS:
		setBits(uint32(int32(arg(0).f())))
	case IROpConvertFToU:
		setBits(uint32(arg(0).f()))
	case IROpConvertSToF:
		setF(float32(arg(0).i()))
	case IROpConvertUToF:
		setF(float32(arg(0).u()))
	case IROpBitcast:
		set(arg(0))

	case IROpFOrdEqual:
		setBool(arg(0).f() == arg(1).f())
	case IROpFOrdNotEqual:
		a, b := arg(0).f(), arg(1).f()
		setBool(a == a && b == b && a != b)
	case IROpFOrdLessThan:
		setBool(arg(0).f() < arg(1).f())
	case IROpFOrdLessThanEqual:
		setBool(arg(0).f() <= arg(1).f())
	case IROpFOrdGreaterThan:
		setBool(arg(0).f() > arg(1).f())
	case IROpFOrdGreaterThanEqual:
		setBool(arg(0).f() >= arg(1).f())
	case IROpIEqual:
		setBool(arg(0).u() == arg(1).u())
	case IROpINotEqual:
		setBool(arg(0).u() != arg(1).u())
	case IROpSLessThan:
		setBool(arg(0).i() < arg(1).i())
	case IROpSLessThanEqual:
		setBool(arg(0).i() <= arg(1).i())
	case IROpSGreaterThan:
		setBool(arg(0).i() > arg(1).i())
	case IROpSGreaterThanEqual:
		setBool(arg(0).i() >= arg(1).i())
	case IROpULessThan:
		setBool(arg(0).u() < arg(1).u())
	case IROpULessThanEqual:
		setBool(arg(0).u() <= arg(1).u())
	case IROpUGreaterThan:
		setBool(arg(0).u() > arg(1).u())
	case IROpUGreaterThanEqual:
		setBool(arg(0).u() >= arg(1).u())
	case IROpLogicalNot:
		setBool(!arg(0).b())
	case IROpSelect:
		if arg(0).b() {
			set(arg(1))
		} else {
			set(arg(2))
		}

	case IROpCompositeConstruct4:
		set(evalValue{lanes: [4]uint32{arg(0).u(), arg(1).u(), arg(2).u(), arg(3).u()}})
	case IROpCompositeExtract:
		setBits(arg(0).lanes[inst.A])
	case IROpCompositeInsert:
		composite := arg(1)
		composite.lanes[inst.A] = arg(0).u()
		set(composite)

	case IROpSampleTexture:
		if e.Sample == nil {
			return fmt.Errorf("texture sample with no sampler bound")
		}
		coordBits := arg(0)
		coord := [4]float32{
			math.Float32frombits(coordBits.lanes[0]), math.Float32frombits(coordBits.lanes[1]),
			math.Float32frombits(coordBits.lanes[2]), math.Float32frombits(coordBits.lanes[3]),
		}
		texel := e.Sample(inst.B>>8, inst.B&0xFF, inst.A, coord)
		set(evalValue{lanes: [4]uint32{
			math.Float32bits(texel[0]), math.Float32bits(texel[1]),
			math.Float32bits(texel[2]), math.Float32bits(texel[3]),
		}})

	case IROpBufferFetch:
		value, err := e.bufferFetch(inst.B, inst.A, arg(0).u())
		if err != nil {
			return err
		}
		set(value)

	default:
		return fmt.Errorf("unimplemented IR op %d", inst.Op)
	}
	return nil
}

func maxI32(a, b int32) int32 {
	if a > b {
		return a
	}
	return b
}

func minI32(a, b int32) int32 {
	if a < b {
		return a
	}
	return b
}

// bufferFetch decodes one vertex fetch from a bound buffer using the
// packed format descriptor.
func (e *IREvaluator) bufferFetch(bufferID, desc, offset uint32) (evalValue, error) {
	buf, ok := e.Buffers[bufferID]
	if !ok {
		return evalValue{}, fmt.Errorf("vertex fetch from unbound buffer %d", bufferID)
	}

	dataFormat := desc & 0xFF
	numFormat := desc >> 8 & 0x3
	signed := desc>>10&1 != 0
	endianSwap := desc >> 11 & 0x3

	read32 := func(at uint32) uint32 {
		if int(at)+4 > len(buf) {
			return 0
		}
		v := binary.LittleEndian.Uint32(buf[at:])
		if endianSwap == 2 {
			v = v<<24 | v>>24 | (v&0xFF00)<<8 | (v>>8)&0xFF00
		}
		return v
	}
	read16 := func(at uint32) uint16 {
		if int(at)+2 > len(buf) {
			return 0
		}
		v := binary.LittleEndian.Uint16(buf[at:])
		if endianSwap != 0 {
			v = v>>8 | v<<8
		}
		return v
	}
	read8 := func(at uint32) uint8 {
		if int(at) >= len(buf) {
			return 0
		}
		return buf[at]
	}

	convert8 := func(raw uint8) uint32 {
		return convertFetchComponent(uint32(raw), 8, signed, numFormat)
	}
	convert16 := func(raw uint16) uint32 {
		return convertFetchComponent(uint32(raw), 16, signed, numFormat)
	}

	var lanes [4]uint32
	lanes[3] = math.Float32bits(1)

	switch dataFormat {
	case FMT_8:
		lanes[0] = convert8(read8(offset))
	case FMT_8_8:
		lanes[0] = convert8(read8(offset))
		lanes[1] = convert8(read8(offset + 1))
	case FMT_8_8_8_8:
		for i := uint32(0); i < 4; i++ {
			lanes[i] = convert8(read8(offset + i))
		}
	case FMT_16:
		lanes[0] = convert16(read16(offset))
	case FMT_16_16:
		lanes[0] = convert16(read16(offset))
		lanes[1] = convert16(read16(offset + 2))
	case FMT_16_16_16_16:
		for i := uint32(0); i < 4; i++ {
			lanes[i] = convert16(read16(offset + i*2))
		}
	case FMT_32, FMT_32_FLOAT:
		lanes[0] = read32(offset)
	case FMT_32_32, FMT_32_32_FLOAT:
		lanes[0] = read32(offset)
		lanes[1] = read32(offset + 4)
	case FMT_32_32_32, FMT_32_32_32_FLOAT:
		for i := uint32(0); i < 3; i++ {
			lanes[i] = read32(offset + i*4)
		}
	case FMT_32_32_32_32, FMT_32_32_32_32_FLOAT:
		for i := uint32(0); i < 4; i++ {
			lanes[i] = read32(offset + i*4)
		}
	default:
		return evalValue{}, fmt.Errorf("unimplemented vertex fetch format %d", dataFormat)
	}

	return evalValue{lanes: lanes, ty: IRTypeFloat4}, nil
}

// convertFetchComponent applies the number format to one raw
// component, returning float bits (NORM/SCALED) or integer bits.
func convertFetchComponent(raw, bits uint32, signed bool, numFormat uint32) uint32 {
	maxU := float64(uint32(1)<<bits - 1)
	switch numFormat {
	case NUM_FORMAT_NORM:
		if signed {
			v := int32(raw<<(32-bits)) >> (32 - bits)
			scaled := float64(v) / float64(uint32(1)<<(bits-1)-1)
			if scaled < -1 {
				scaled = -1
			}
			return math.Float32bits(float32(scaled))
		}
		return math.Float32bits(float32(float64(raw) / maxU))
	case NUM_FORMAT_INT:
		if signed {
			return uint32(int32(raw<<(32-bits)) >> (32 - bits))
		}
		return raw
	default: // SCALED
		if signed {
			v := int32(raw<<(32-bits)) >> (32 - bits)
			return math.Float32bits(float32(v))
		}
		return math.Float32bits(float32(raw))
	}
}

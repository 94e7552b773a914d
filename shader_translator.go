// shader_translator.go - Latte shader binary to IR translation

package main

import (
	"encoding/binary"
	"fmt"
)

const (
	MaxTextures       = 16
	MaxSamplers       = 16
	MaxUniformBlocks  = 16
	MaxStreamOutBufs  = 4
	MaxRenderTargets  = 8
	MaxShaderGprs     = 128
	ExecStackDepth    = 16
)

// Execution-mask states driven by the branching CF ops.
const (
	execStateActive = iota
	execStateInactive
	execStateInactiveBreak
	execStateInactiveContinue
)

// TexDim describes a bound texture's dimensionality.
type TexDim int

const (
	TexDim1D TexDim = iota
	TexDim1DArray
	TexDim2D
	TexDim2DArray
	TexDim2DMSAA
	TexDim3D
	TexDimCubemap
)

// ShaderDesc is the translation input: the guest binary plus the
// surrounding register snapshot the program depends on. Translation is
// a pure function of this value, which makes the output cacheable by
// fingerprint.
type ShaderDesc struct {
	Stage           ShaderStage
	Binary          []byte
	AluPreferVector bool
	TexDims         [MaxTextures]TexDim
}

// PsInputCntl mirrors one SPI_PS_INPUT_CNTL register.
type PsInputCntl struct {
	Semantic    uint8
	DefaultVal  uint8
	FlatShade   bool
	SelLinear   bool
	SelSample   bool
	SelCentroid bool
}

// VertexShaderDesc adds the vertex-stage register snapshot and the
// paired fetch shader.
type VertexShaderDesc struct {
	ShaderDesc
	FsBinary        []byte
	StreamOutStride [MaxStreamOutBufs]uint32
	UseVtxPointSize bool
	SqVtxSemantics  [32]uint8
}

// PixelShaderDesc adds the pixel-stage register snapshot.
type PixelShaderDesc struct {
	ShaderDesc
	NumInterp     uint32
	InputCntls    [32]PsInputCntl
	SpiVsOutIds   [10][4]uint8
	PositionEna   bool
	PositionAddr  uint32
	FrontFaceEna  bool
	FrontFaceAddr uint32
	FrontFaceChan uint32
	FrontFaceAllBits bool
}

// GeometryShaderDesc adds the geometry-stage inputs.
type GeometryShaderDesc struct {
	ShaderDesc
	DcBinary        []byte
	RingItemStride  uint32
	StreamOutStride [MaxStreamOutBufs]uint32
}

// shaderAbort carries a translation failure out of the recursive
// clause walk. Translate recovers it into an error; there is no
// best-effort output.
type shaderAbort struct{ err error }

func abortShader(format string, args ...any) {
	panic(shaderAbort{fmt.Errorf(format, args...)})
}

// Transpiler walks CF instructions and emits IR. One value translates
// one shader and is discarded.
type Transpiler struct {
	stage  ShaderStage
	binary []byte
	desc   *ShaderDesc
	vsDesc *VertexShaderDesc
	psDesc *PixelShaderDesc
	gsDesc *GeometryShaderDesc

	ir *IRModule

	aluPreferVector bool
	isFunction      bool
	reachedEop      bool
	cfPC            int
	groupPC         int
	texVtxPC        int

	// Previous-value forwarding: results stage into nextPrevRes and
	// swap to prevRes at each group boundary.
	prevRes     [5]IRValue
	nextPrevRes [5]IRValue

	// AR lanes stage per clause; AR is not readable in the clause that
	// wrote it.
	arRes [4]IRValue

	// GPR writes stage per group and flush at the boundary.
	groupWrites []stagedGprWrite
}

type stagedGprWrite struct {
	ref   GprChanRef
	value IRValue
}

// TranslateShader turns a guest shader binary plus register snapshot
// into an IR module. Any unimplemented instruction aborts the whole
// shader with its name.
func TranslateShader(desc *ShaderDesc) (module *IRModule, err error) {
	defer func() {
		if r := recover(); r != nil {
			if abort, ok := r.(shaderAbort); ok {
				module = nil
				err = abort.err
				return
			}
			panic(r)
		}
	}()

	t := &Transpiler{
		stage:           desc.Stage,
		binary:          desc.Binary,
		desc:            desc,
		aluPreferVector: desc.AluPreferVector,
		ir:              newIRModule(desc.Stage),
	}

	switch desc.Stage {
	case StageVertex:
		abortShader("vertex shaders translate through TranslateVertexShader")
	case StagePixel:
		abortShader("pixel shaders translate through TranslatePixelShader")
	}

	t.ir.TexDims = desc.TexDims
	t.writeGenericProlog()
	t.translate()
	return t.ir, nil
}

// TranslateVertexShader translates a vertex program and its paired
// fetch shader.
func TranslateVertexShader(desc *VertexShaderDesc) (module *IRModule, err error) {
	defer func() {
		if r := recover(); r != nil {
			if abort, ok := r.(shaderAbort); ok {
				module = nil
				err = abort.err
				return
			}
			panic(r)
		}
	}()

	desc.Stage = StageVertex
	t := &Transpiler{
		stage:           StageVertex,
		binary:          desc.Binary,
		desc:            &desc.ShaderDesc,
		vsDesc:          desc,
		aluPreferVector: desc.AluPreferVector,
		ir:              newIRModule(StageVertex),
	}
	t.ir.TexDims = desc.TexDims
	t.writeVertexProlog()
	t.translate()
	return t.ir, nil
}

// TranslateGeometryShader translates a geometry program. The ring
// offset starts at zero; MEM_RING exports advance through it.
func TranslateGeometryShader(desc *GeometryShaderDesc) (module *IRModule, err error) {
	defer func() {
		if r := recover(); r != nil {
			if abort, ok := r.(shaderAbort); ok {
				module = nil
				err = abort.err
				return
			}
			panic(r)
		}
	}()

	desc.Stage = StageGeometry
	t := &Transpiler{
		stage:           StageGeometry,
		binary:          desc.Binary,
		desc:            &desc.ShaderDesc,
		gsDesc:          desc,
		aluPreferVector: desc.AluPreferVector,
		ir:              newIRModule(StageGeometry),
	}
	t.ir.TexDims = desc.TexDims
	t.writeGenericProlog()
	t.ir.emit(IRInst{Op: IROpStoreRingOffset, Args: []IRValue{t.ir.constUint(0)}})
	t.translate()
	return t.ir, nil
}

// TranslatePixelShader translates a pixel program.
func TranslatePixelShader(desc *PixelShaderDesc) (module *IRModule, err error) {
	defer func() {
		if r := recover(); r != nil {
			if abort, ok := r.(shaderAbort); ok {
				module = nil
				err = abort.err
				return
			}
			panic(r)
		}
	}()

	desc.Stage = StagePixel
	t := &Transpiler{
		stage:           StagePixel,
		binary:          desc.Binary,
		desc:            &desc.ShaderDesc,
		psDesc:          desc,
		aluPreferVector: desc.AluPreferVector,
		ir:              newIRModule(StagePixel),
	}
	t.ir.TexDims = desc.TexDims
	t.writePixelProlog()
	t.translate()
	return t.ir, nil
}

// translate walks the CF program from offset zero until END_OF_PROGRAM.
func (t *Transpiler) translate() {
	if t.stage == StageUnknown {
		abortShader("shader stage was never set")
	}
	if len(t.binary) == 0 {
		abortShader("empty shader binary")
	}
	if t.stage == StageFetch {
		t.isFunction = true
	}

	for i := 0; i+8 <= len(t.binary) && !t.reachedEop; i += 8 {
		cf := ControlFlowInst{
			Word0: binary.LittleEndian.Uint32(t.binary[i:]),
			Word1: binary.LittleEndian.Uint32(t.binary[i+4:]),
		}
		t.translateCfInst(cf)
		t.cfPC++
	}
}

func (t *Transpiler) translateCfInst(cf ControlFlowInst) {
	switch cf.instType() {
	case cfTypeNormal:
		t.translateCfNormalInst(cf)
	case cfTypeExport:
		t.translateCfExportInst(cf)
	case cfTypeAlu:
		t.translateCfAluInst(cf)
	}
}

func (t *Transpiler) translateCfNormalInst(cf ControlFlowInst) {
	switch cf.CfInst() {
	case CF_INST_NOP:
		// Explicitly encoded NOPs carry nothing.
	case CF_INST_TEX:
		t.translateCfTex(cf)
	case CF_INST_VTX, CF_INST_VTX_TC:
		t.translateCfVtx(cf)
	case CF_INST_JUMP:
		// JUMP only short-circuits inactive work; the execution mask
		// already carries the semantics.
	case CF_INST_PUSH:
		t.pushStack()
	case CF_INST_ELSE:
		t.elseStack()
	case CF_INST_POP:
		t.popStack(int(cf.PopCount()))
	case CF_INST_CALL_FS:
		t.translateCfCallFs(cf)
	case CF_INST_RETURN:
		t.translateCfReturn(cf)
	case CF_INST_KILL:
		t.translateCfKill(cf)
	default:
		abortShader("unimplemented CF instruction %d", cf.CfInst())
	}

	if cf.CfInst() == CF_INST_RETURN {
		if !t.isFunction {
			abortShader("RETURN outside a function block")
		}
		t.reachedEop = true
	}
	if cf.EndOfProgram() {
		t.reachedEop = true
	}
}

func (t *Transpiler) translateCfExportInst(cf ControlFlowInst) {
	switch cf.CfInst() {
	case CF_INST_EXP, CF_INST_EXP_DONE:
		t.translateGenericExport(cf)
	case CF_INST_MEM_STREAM0, CF_INST_MEM_STREAM1, CF_INST_MEM_STREAM2, CF_INST_MEM_STREAM3:
		t.translateStreamExport(cf)
	case CF_INST_MEM_RING:
		t.translateRingExport(cf)
	default:
		abortShader("unimplemented CF export instruction %d", cf.CfInst())
	}
	if cf.EndOfProgram() {
		t.reachedEop = true
	}
}

func (t *Transpiler) translateCfAluInst(cf ControlFlowInst) {
	switch cf.CfAluInst() {
	case CF_INST_ALU, CF_INST_ALU_EXT:
		t.translateCfAlu(cf)
	case CF_INST_ALU_PUSH_BEFORE:
		t.pushStack()
		t.translateCfAlu(cf)
	case CF_INST_ALU_POP_AFTER:
		t.translateCfAlu(cf)
		t.popStack(1)
	case CF_INST_ALU_POP2_AFTER:
		t.translateCfAlu(cf)
		t.popStack(2)
	case CF_INST_ALU_CONTINUE:
		t.translateCfAlu(cf)
		t.downgradeInactive(execStateInactiveContinue)
	case CF_INST_ALU_BREAK:
		t.translateCfAlu(cf)
		t.downgradeInactive(execStateInactiveBreak)
	case CF_INST_ALU_ELSE_AFTER:
		t.translateCfAlu(cf)
		t.elseStack()
	default:
		abortShader("unimplemented CF ALU instruction %d", cf.CfAluInst())
	}

	// AR values written in this clause become invisible at its end.
	t.resetAr()
}

// ---------------------------------------------------------------------------
// Execution-mask state stack
// ---------------------------------------------------------------------------

func (t *Transpiler) stateActive() IRValue   { return t.ir.constInt(execStateActive) }
func (t *Transpiler) stateInactive() IRValue { return t.ir.constInt(execStateInactive) }

// startCfCondBlock opens the "state == Active" conditional every
// clause body runs under.
func (t *Transpiler) startCfCondBlock(cond SQCfCond, condConst uint32) {
	if cond != CfCondActive {
		abortShader("unsupported CF condition %d", cond)
	}
	state := t.ir.emit(IRInst{Op: IROpLoadState, Type: IRTypeInt})
	pred := t.ir.binOp(IROpIEqual, IRTypeBool, state, t.stateActive())
	t.ir.ifBegin(pred)
}

func (t *Transpiler) endCfCondBlock() {
	t.ir.ifEnd()
}

// pushStack copies the current state onto the stack and bumps the
// index.
func (t *Transpiler) pushStack() {
	ir := t.ir
	stackIdx := ir.emit(IRInst{Op: IROpLoadStackIndex, Type: IRTypeInt})
	state := ir.emit(IRInst{Op: IROpLoadState, Type: IRTypeInt})
	ir.emit(IRInst{Op: IROpStoreStackAt, Args: []IRValue{stackIdx, state}})
	newIdx := ir.binOp(IROpIAdd, IRTypeInt, stackIdx, ir.constInt(1))
	ir.emit(IRInst{Op: IROpStoreStackIndex, Args: []IRValue{newIdx}})
}

// popStack drops count entries and loads the new top into the state.
func (t *Transpiler) popStack(count int) {
	ir := t.ir
	stackIdx := ir.emit(IRInst{Op: IROpLoadStackIndex, Type: IRTypeInt})
	if count > 0 {
		stackIdx = ir.binOp(IROpISub, IRTypeInt, stackIdx, ir.constInt(int32(count)))
		ir.emit(IRInst{Op: IROpStoreStackIndex, Args: []IRValue{stackIdx}})
	}
	state := ir.emit(IRInst{Op: IROpLoadStackAt, Type: IRTypeInt, Args: []IRValue{stackIdx}})
	ir.emit(IRInst{Op: IROpStoreState, Args: []IRValue{state}})
}

// elseStack flips Active and Inactive, but only when the parent stack
// entry is Active.
func (t *Transpiler) elseStack() {
	ir := t.ir
	stackIdx := ir.emit(IRInst{Op: IROpLoadStackIndex, Type: IRTypeInt})
	parentIdx := ir.binOp(IROpISub, IRTypeInt, stackIdx, ir.constInt(1))
	parent := ir.emit(IRInst{Op: IROpLoadStackAt, Type: IRTypeInt, Args: []IRValue{parentIdx}})
	parentActive := ir.binOp(IROpIEqual, IRTypeBool, parent, t.stateActive())

	ir.ifBegin(parentActive)
	state := ir.emit(IRInst{Op: IROpLoadState, Type: IRTypeInt})
	pred := ir.binOp(IROpIEqual, IRTypeBool, state, t.stateActive())
	newState := ir.triOp(IROpSelect, IRTypeInt, pred, t.stateInactive(), t.stateActive())
	ir.emit(IRInst{Op: IROpStoreState, Args: []IRValue{newState}})
	ir.ifEnd()
}

// downgradeInactive moves any non-Active state to the given inactive
// flavour after an ALU_BREAK or ALU_CONTINUE clause.
func (t *Transpiler) downgradeInactive(to int32) {
	ir := t.ir
	state := ir.emit(IRInst{Op: IROpLoadState, Type: IRTypeInt})
	pred := ir.binOp(IROpIEqual, IRTypeBool, state, t.stateActive())
	newState := ir.triOp(IROpSelect, IRTypeInt, pred, t.stateActive(), ir.constInt(to))
	ir.emit(IRInst{Op: IROpStoreState, Args: []IRValue{newState}})
}

func (t *Transpiler) translateCfReturn(cf ControlFlowInst) {
	// RETURN is only legal inside an inlined function (the fetch
	// shader), where it marks the end of the CF walk; the caller's
	// stream continues after the call site, so nothing is emitted.
	if cf.Cond() != CfCondActive {
		abortShader("unsupported RETURN condition %d", cf.Cond())
	}
}

func (t *Transpiler) translateCfKill(cf ControlFlowInst) {
	t.startCfCondBlock(cf.Cond(), cf.CfConst())
	if t.stage == StagePixel {
		t.ir.emit(IRInst{Op: IROpDiscard})
	} else {
		t.ir.emit(IRInst{Op: IROpReturn})
	}
	t.endCfCondBlock()
}

// translateCfCallFs inlines the paired fetch shader at the call site.
func (t *Transpiler) translateCfCallFs(cf ControlFlowInst) {
	if t.vsDesc == nil || len(t.vsDesc.FsBinary) == 0 {
		abortShader("CALL_FS with no fetch shader bound")
	}

	sub := &Transpiler{
		stage:           StageFetch,
		binary:          t.vsDesc.FsBinary,
		desc:            t.desc,
		vsDesc:          t.vsDesc,
		aluPreferVector: t.aluPreferVector,
		ir:              t.ir,
		isFunction:      true,
	}
	sub.translate()
}

// ---------------------------------------------------------------------------
// ALU clauses
// ---------------------------------------------------------------------------

func (t *Transpiler) translateCfAlu(cf ControlFlowInst) {
	t.startCfCondBlock(CfCondActive, 0)
	t.translateAluClause(cf)
	t.endCfCondBlock()
}

func (t *Transpiler) translateAluClause(cf ControlFlowInst) {
	slots, err := decodeAluClause(t.binary, cf.AluAddr(), cf.AluCount())
	if err != nil {
		abortShader("%v", err)
	}

	parser := newAluClauseParser(slots, t.aluPreferVector)
	for !parser.isEndOfClause() {
		group, err := parser.readOneGroup()
		if err != nil {
			abortShader("%v", err)
		}
		t.translateAluGroup(cf, &group)
		t.groupPC++
	}
}

// translateAluGroup dispatches the group's instructions, then flushes
// the staged GPR writes and swaps the previous-value registers so the
// next group observes this group's results.
func (t *Transpiler) translateAluGroup(cf ControlFlowInst, group *AluInstructionGroup) {
	unitIdx := 0

	if isReductionInst(*group.units[0]) {
		t.checkReductionGroup(group)
		t.translateAluReduction(cf, group)
		unitIdx = 4
	}

	for ; unitIdx < 5; unitIdx++ {
		inst := group.units[unitIdx]
		if isReductionInst(*inst) {
			abortShader("reduction instruction outside a reduction group")
		}
		t.translateAluInst(cf, group, SQChan(unitIdx), *inst)
		if inst.Last() {
			break
		}
	}

	t.flushAluGroupWrites()
	t.swapPrevRes()
}

// checkReductionGroup verifies the four participating units agree on
// instruction, clamp and output modifier.
func (t *Transpiler) checkReductionGroup(group *AluInstructionGroup) {
	first := group.units[0]
	for i := 1; i < 4; i++ {
		inst := group.units[i]
		if first.Encoding() == AluOp2 {
			if inst.Op2Inst() != first.Op2Inst() {
				abortShader("every instruction in a reduction group must match")
			}
			if inst.Omod() != first.Omod() {
				abortShader("every instruction in a reduction group must share the output modifier")
			}
		} else if inst.Op3Inst() != first.Op3Inst() {
			abortShader("every instruction in a reduction group must match")
		}
		if inst.Clamp() != first.Clamp() {
			abortShader("every instruction in a reduction group must share the clamp bit")
		}
	}
}

func (t *Transpiler) translateAluInst(cf ControlFlowInst, group *AluInstructionGroup, unit SQChan, inst AluInst) {
	if inst.Encoding() == AluOp2 {
		t.translateAluOp2(cf, group, unit, inst)
	} else {
		t.translateAluOp3(cf, group, unit, inst)
	}
}

// ---------------------------------------------------------------------------
// Value staging
// ---------------------------------------------------------------------------

func (t *Transpiler) flushAluGroupWrites() {
	for _, write := range t.groupWrites {
		t.writeGprChanRef(write.ref, write.value)
	}
	t.groupWrites = t.groupWrites[:0]
}

func (t *Transpiler) swapPrevRes() {
	t.prevRes = t.nextPrevRes
	for i := range t.nextPrevRes {
		t.nextPrevRes[i] = IRNoResult
	}
}

func (t *Transpiler) resetAr() {
	for i := range t.arRes {
		t.arRes[i] = IRNoResult
	}
}

func (t *Transpiler) prevValue(unit SQChan) IRValue {
	value := t.prevRes[unit]
	if value == IRNoResult {
		abortShader("PV/PS read with no previous group result on unit %d", unit)
	}
	return value
}

// gprIndexValue resolves a GPR reference's dynamic index.
func (t *Transpiler) gprIndexValue(gpr GprRef) IRValue {
	base := t.ir.constUint(gpr.Number)
	switch gpr.IndexMode {
	case GprIndexNone:
		return base
	case GprIndexArX:
		ar := t.arRes[ChanX]
		if ar == IRNoResult {
			abortShader("AR.x read before any AR write in this clause")
		}
		return t.ir.binOp(IROpIAdd, IRTypeUint, base, ar)
	default:
		abortShader("loop-index GPR addressing is not supported")
		return IRNoResult
	}
}

func (t *Transpiler) readGprChan(ref GprChanRef) IRValue {
	idx := t.gprIndexValue(ref.Gpr)
	return t.ir.emit(IRInst{Op: IROpLoadGprChan, Type: IRTypeFloat, Args: []IRValue{idx}, A: uint32(ref.Chan)})
}

func (t *Transpiler) writeGprChanRef(ref GprChanRef, value IRValue) {
	idx := t.gprIndexValue(ref.Gpr)
	t.ir.emit(IRInst{Op: IROpStoreGprChan, Args: []IRValue{idx, value}, A: uint32(ref.Chan)})
}

func (t *Transpiler) readGprVec(gpr GprRef) IRValue {
	idx := t.gprIndexValue(gpr)
	return t.ir.emit(IRInst{Op: IROpLoadGprVec, Type: IRTypeFloat4, Args: []IRValue{idx}})
}

func (t *Transpiler) writeGprVec(gpr GprRef, value IRValue) {
	idx := t.gprIndexValue(gpr)
	t.ir.emit(IRInst{Op: IROpStoreGprVec, Args: []IRValue{idx, value}})
}

func (t *Transpiler) cfileIndexValue(cfile CfileRef) IRValue {
	base := t.ir.constUint(cfile.Index)
	switch cfile.IndexMode {
	case CfileIndexNone:
		return base
	case CfileIndexArX, CfileIndexArY, CfileIndexArZ, CfileIndexArW:
		lane := SQChan(cfile.IndexMode - CfileIndexArX)
		ar := t.arRes[lane]
		if ar == IRNoResult {
			abortShader("AR read before any AR write in this clause")
		}
		return t.ir.binOp(IROpIAdd, IRTypeUint, base, ar)
	default:
		abortShader("loop-index constant-file addressing is not supported")
		return IRNoResult
	}
}

// bitcastTo reinterprets a scalar value as the requested type.
func (t *Transpiler) bitcastTo(value IRValue, ty IRType) IRValue {
	if t.ir.typeOf(value) == ty {
		return value
	}
	return t.ir.emit(IRInst{Op: IROpBitcast, Type: ty, Args: []IRValue{value}})
}

func varRefIRType(ty VarRefType) IRType {
	switch ty {
	case VarRefInt:
		return IRTypeInt
	case VarRefUint:
		return IRTypeUint
	default:
		return IRTypeFloat
	}
}

// readSrcVarRef materializes one decoded source operand, applying the
// absolute and negate modifiers in that order.
func (t *Transpiler) readSrcVarRef(src SrcVarRef) IRValue {
	ir := t.ir
	wantType := varRefIRType(src.ValueType)

	var value IRValue
	switch src.Kind {
	case srcVarGpr:
		value = t.readGprChan(src.GprChan)
	case srcVarCfile:
		t.ir.CfileUsed = true
		idx := t.cfileIndexValue(src.Cfile)
		value = ir.emit(IRInst{Op: IROpLoadCfileChan, Type: IRTypeFloat, Args: []IRValue{idx}, A: uint32(src.CfileChan)})
	case srcVarCbuffer:
		t.ir.CbuffersUsed[src.Cbuffer.BufferID] = true
		idx := ir.constUint(src.Cbuffer.Index)
		value = ir.emit(IRInst{Op: IROpLoadCbufferChan, Type: IRTypeFloat, Args: []IRValue{idx}, A: uint32(src.CbufChan), B: src.Cbuffer.BufferID})
	case srcVarPrevRes:
		value = t.prevValue(src.PrevUnit)
	case srcVarValue:
		switch wantType {
		case IRTypeInt:
			value = ir.constInt(int32(src.ValueBits))
		case IRTypeUint:
			value = ir.constUint(src.ValueBits)
		default:
			value = ir.emit(IRInst{Op: IROpConstFloat, Type: IRTypeFloat, Bits: src.ValueBits})
		}
	}

	value = t.bitcastTo(value, wantType)

	if src.IsAbsolute {
		if wantType != IRTypeFloat {
			abortShader("absolute modifier on a non-float source")
		}
		value = ir.unaryOp(IROpFAbs, IRTypeFloat, value)
	}
	if src.IsNegated {
		switch wantType {
		case IRTypeFloat:
			value = ir.unaryOp(IROpFNeg, IRTypeFloat, value)
		case IRTypeInt:
			value = ir.unaryOp(IROpINeg, IRTypeInt, value)
		default:
			abortShader("negate modifier on an unsigned source")
		}
	}
	return value
}

// readAluInstSrc decodes and materializes operand srcIndex of an
// instruction, with an optional forced value type.
func (t *Transpiler) readAluInstSrc(cf ControlFlowInst, group *AluInstructionGroup, inst AluInst, srcIndex uint32, valueType ...VarRefType) IRValue {
	ty := aluSrcValueType(inst)
	if len(valueType) > 0 {
		ty = valueType[0]
	}
	src, err := makeAluSrcVar(cf, group, inst, srcIndex, ty)
	if err != nil {
		abortShader("%v", err)
	}
	return t.readSrcVarRef(src)
}

// readAluReducSrc gathers operand srcIndex across the four vector
// units into one vec4.
func (t *Transpiler) readAluReducSrc(cf ControlFlowInst, group *AluInstructionGroup, srcIndex uint32) IRValue {
	elems := make([]IRValue, 4)
	for i := 0; i < 4; i++ {
		src, err := makeAluSrcVar(cf, group, *group.units[i], srcIndex, VarRefFloat)
		if err != nil {
			abortShader("%v", err)
		}
		elems[i] = t.readSrcVarRef(src)
	}
	return t.ir.emit(IRInst{Op: IROpCompositeConstruct4, Type: IRTypeFloat4, Args: elems})
}

// writeAluOpDest applies the output modifier and clamp, stages the
// result into the next-group PV/PS slot, and stages the GPR write when
// the write mask allows it.
func (t *Transpiler) writeAluOpDest(cf ControlFlowInst, group *AluInstructionGroup, unit SQChan, inst AluInst, value IRValue, forAr bool) {
	ir := t.ir

	if inst.Encoding() == AluOp2 {
		switch inst.Omod() {
		case OmodD2:
			value = ir.binOp(IROpFMul, IRTypeFloat, value, ir.constFloat(0.5))
		case OmodM2:
			value = ir.binOp(IROpFMul, IRTypeFloat, value, ir.constFloat(2))
		case OmodM4:
			value = ir.binOp(IROpFMul, IRTypeFloat, value, ir.constFloat(4))
		}
	}

	if inst.Clamp() {
		value = ir.triOp(IROpFClamp, IRTypeFloat, value, ir.constFloat(0), ir.constFloat(1))
	}

	if forAr {
		// AR is staged per lane and only becomes readable in the next
		// clause.
		if unit == ChanT {
			abortShader("AR write on unit T")
		}
		t.arRes[unit] = value
	} else {
		value = t.bitcastTo(value, IRTypeFloat)
		t.nextPrevRes[unit] = value
	}

	if inst.Encoding() != AluOp2 || inst.WriteMask() {
		if forAr {
			abortShader("GPR write staged for an AR instruction")
		}
		gpr, err := makeGprRef(inst.DstGpr(), inst.DstRel(), inst.IndexMode())
		if err != nil {
			abortShader("%v", err)
		}
		t.groupWrites = append(t.groupWrites, stagedGprWrite{
			ref:   GprChanRef{Gpr: gpr, Chan: inst.DstChan()},
			value: value,
		})
	}
}

// writeAluReducDest writes a reduction result through the unit whose
// write mask is set (X by default); the value lands in PV.x either
// way.
func (t *Transpiler) writeAluReducDest(cf ControlFlowInst, group *AluInstructionGroup, value IRValue) {
	outputUnit := ChanX
	for i := 0; i < 4; i++ {
		if group.units[i].WriteMask() {
			outputUnit = SQChan(i)
			break
		}
	}
	t.writeAluOpDest(cf, group, ChanX, *group.units[outputUnit], value, false)
}

// updatePredicateAndExecuteMask applies a predicate instruction's
// UPDATE_PRED and UPDATE_EXECUTE_MASK bits.
func (t *Transpiler) updatePredicateAndExecuteMask(inst AluInst, pred IRValue) {
	ir := t.ir
	if inst.UpdatePred() {
		ir.emit(IRInst{Op: IROpStorePredicate, Args: []IRValue{pred}})
	}
	if inst.UpdateExecuteMask() {
		newState := ir.triOp(IROpSelect, IRTypeInt, pred, t.stateActive(), t.stateInactive())
		ir.emit(IRInst{Op: IROpStoreState, Args: []IRValue{newState}})
	}
}

// ---------------------------------------------------------------------------
// Prologs
// ---------------------------------------------------------------------------

// writeGenericProlog zeroes the execution-mask machinery.
func (t *Transpiler) writeGenericProlog() {
	ir := t.ir
	ir.emit(IRInst{Op: IROpStoreStackIndex, Args: []IRValue{ir.constInt(0)}})
	ir.emit(IRInst{Op: IROpStoreState, Args: []IRValue{t.stateActive()}})
}

// writeVertexProlog seeds R0 with the vertex and instance ids, both
// rebased against the draw's base values from the push constants.
func (t *Transpiler) writeVertexProlog() {
	ir := t.ir
	t.writeGenericProlog()

	zSpaceMul := ir.emit(IRInst{Op: IROpLoadPushConst, Type: IRTypeFloat4, A: PushZSpaceMul})
	vertexBaseF := ir.emit(IRInst{Op: IROpCompositeExtract, Type: IRTypeFloat, Args: []IRValue{zSpaceMul}, A: 2})
	vertexBase := t.bitcastTo(vertexBaseF, IRTypeInt)
	instanceBaseF := ir.emit(IRInst{Op: IROpCompositeExtract, Type: IRTypeFloat, Args: []IRValue{zSpaceMul}, A: 3})
	instanceBase := t.bitcastTo(instanceBaseF, IRTypeInt)

	vertexID := ir.emit(IRInst{Op: IROpLoadBuiltin, Type: IRTypeInt, A: BuiltinVertexID})
	vertexID = ir.binOp(IROpISub, IRTypeInt, vertexID, vertexBase)
	vertexIDF := t.bitcastTo(vertexID, IRTypeFloat)

	instanceID := ir.emit(IRInst{Op: IROpLoadBuiltin, Type: IRTypeInt, A: BuiltinInstanceID})
	instanceID = ir.binOp(IROpISub, IRTypeInt, instanceID, instanceBase)
	instanceIDF := t.bitcastTo(instanceID, IRTypeFloat)

	zero := ir.constFloat(0)
	r0 := ir.emit(IRInst{Op: IROpCompositeConstruct4, Type: IRTypeFloat4,
		Args: []IRValue{vertexIDF, instanceIDF, zero, zero}})
	t.writeGprVec(GprRef{Number: 0}, r0)
}

// writePixelProlog wires the interpolated vertex outputs into the
// input GPRs according to the SPI input controls.
func (t *Transpiler) writePixelProlog() {
	ir := t.ir
	desc := t.psDesc
	t.writeGenericProlog()

	for inputIdx := uint32(0); inputIdx < desc.NumInterp; inputIdx++ {
		cntl := desc.InputCntls[inputIdx]
		gpr := GprRef{Number: inputIdx}

		if desc.PositionEna && desc.PositionAddr == inputIdx {
			fragCoord := ir.emit(IRInst{Op: IROpLoadBuiltin, Type: IRTypeFloat4, A: BuiltinFragCoord})
			t.writeGprVec(gpr, fragCoord)
			continue
		}

		semLocation := -1
		for semIdx := 0; semIdx < 10 && semLocation < 0; semIdx++ {
			for part := 0; part < 4; part++ {
				if cntl.Semantic == desc.SpiVsOutIds[semIdx][part] {
					semLocation = semIdx*4 + part
					break
				}
			}
		}

		if semLocation < 0 {
			// No matching vertex output; load the register's default.
			zero := ir.constFloat(0)
			one := ir.constFloat(1)
			var w, xyz IRValue
			switch cntl.DefaultVal {
			case 0:
				xyz, w = zero, zero
			case 1:
				xyz, w = zero, one
			case 2:
				xyz, w = one, zero
			case 3:
				xyz, w = one, one
			default:
				abortShader("unexpected pixel input default value %d", cntl.DefaultVal)
			}
			defaultVal := ir.emit(IRInst{Op: IROpCompositeConstruct4, Type: IRTypeFloat4,
				Args: []IRValue{xyz, xyz, xyz, w}})
			t.writeGprVec(gpr, defaultVal)
			continue
		}

		// Interpolation qualifiers ride as metadata on the input load.
		qual := uint32(0)
		switch {
		case cntl.FlatShade:
			qual = 1
		case cntl.SelLinear:
			qual = 2
		case cntl.SelSample:
			qual = 3
		}
		if cntl.SelCentroid {
			qual |= 4
		}
		inputVal := ir.emit(IRInst{Op: IROpLoadInputParam, Type: IRTypeFloat4,
			A: uint32(semLocation), B: qual})
		t.writeGprVec(gpr, inputVal)
	}

	if desc.FrontFaceEna {
		frontFacing := ir.emit(IRInst{Op: IROpLoadBuiltin, Type: IRTypeBool, A: BuiltinFrontFacing})
		var output IRValue
		if !desc.FrontFaceAllBits {
			output = ir.triOp(IROpSelect, IRTypeFloat, frontFacing, ir.constFloat(1), ir.constFloat(-1))
		} else {
			output = ir.triOp(IROpSelect, IRTypeUint, frontFacing, ir.constUint(1), ir.constUint(0))
			output = t.bitcastTo(output, IRTypeFloat)
		}
		t.writeGprChanRef(GprChanRef{
			Gpr:  GprRef{Number: desc.FrontFaceAddr},
			Chan: SQChan(desc.FrontFaceChan),
		}, output)
	}
}

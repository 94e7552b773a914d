// spirv_dump.go - Lowering the shader IR to a SPIR-V module

package main

import (
	"encoding/binary"
	"fmt"
)

// SPIR-V opcodes used by the lowering.
const (
	spvOpExtInstImport        = 11
	spvOpExtInst              = 12
	spvOpMemoryModel          = 14
	spvOpEntryPoint           = 15
	spvOpExecutionMode        = 16
	spvOpCapability           = 17
	spvOpTypeVoid             = 19
	spvOpTypeBool             = 20
	spvOpTypeInt              = 21
	spvOpTypeFloat            = 22
	spvOpTypeVector           = 23
	spvOpTypeImage            = 25
	spvOpTypeSampler          = 26
	spvOpTypeSampledImage     = 27
	spvOpTypeArray            = 28
	spvOpTypeStruct           = 30
	spvOpTypePointer          = 32
	spvOpTypeFunction         = 33
	spvOpConstantTrue         = 41
	spvOpConstantFalse        = 42
	spvOpConstant             = 43
	spvOpFunction             = 54
	spvOpFunctionEnd          = 56
	spvOpVariable             = 59
	spvOpLoad                 = 61
	spvOpStore                = 62
	spvOpAccessChain          = 65
	spvOpDecorate             = 71
	spvOpMemberDecorate       = 72
	spvOpVectorShuffle        = 79
	spvOpCompositeConstruct   = 80
	spvOpCompositeExtract     = 81
	spvOpCompositeInsert      = 82
	spvOpSampledImage         = 86
	spvOpImageSampleImplicitLod         = 87
	spvOpImageSampleExplicitLod         = 88
	spvOpImageSampleDrefImplicitLod     = 89
	spvOpImageSampleDrefExplicitLod     = 90
	spvOpImageGather          = 96
	spvOpConvertFToU          = 109
	spvOpConvertFToS          = 110
	spvOpConvertSToF          = 111
	spvOpConvertUToF          = 112
	spvOpBitcast              = 124
	spvOpSNegate              = 126
	spvOpFNegate              = 127
	spvOpIAdd                 = 128
	spvOpFAdd                 = 129
	spvOpISub                 = 130
	spvOpFSub                 = 131
	spvOpIMul                 = 132
	spvOpFMul                 = 133
	spvOpFDiv                 = 136
	spvOpLogicalNot           = 168
	spvOpSelect               = 169
	spvOpIEqual               = 170
	spvOpINotEqual            = 171
	spvOpUGreaterThan         = 172
	spvOpSGreaterThan         = 173
	spvOpUGreaterThanEqual    = 174
	spvOpSGreaterThanEqual    = 175
	spvOpULessThan            = 176
	spvOpSLessThan            = 177
	spvOpULessThanEqual       = 178
	spvOpSLessThanEqual       = 179
	spvOpFOrdEqual            = 180
	spvOpFOrdNotEqual         = 182
	spvOpFOrdLessThan         = 184
	spvOpFOrdGreaterThan      = 186
	spvOpFOrdLessThanEqual    = 188
	spvOpFOrdGreaterThanEqual = 190
	spvOpShiftRightLogical    = 194
	spvOpShiftRightArithmetic = 195
	spvOpShiftLeftLogical     = 196
	spvOpBitwiseOr            = 197
	spvOpBitwiseXor           = 198
	spvOpBitwiseAnd           = 199
	spvOpNot                  = 200
	spvOpDot                  = 148
	spvOpLabel                = 248
	spvOpBranch               = 249
	spvOpBranchConditional    = 250
	spvOpSelectionMerge       = 247
	spvOpReturn               = 253
	spvOpKill                 = 252
)

// GLSL.std.450 extended instructions.
const (
	glslRoundEven = 2
	glslTrunc     = 3
	glslFAbs      = 4
	glslFloor     = 8
	glslCeil      = 9
	glslFract     = 10
	glslSin       = 13
	glslCos       = 14
	glslExp2      = 29
	glslLog2      = 30
	glslSqrt      = 31
	glslFMin      = 37
	glslFMax      = 40
	glslFClamp    = 43
	glslSClamp    = 45
	glslSMin      = 39
	glslSMax      = 42
	glslUMin      = 38
	glslUMax      = 41
)

// Storage classes.
const (
	spvStorageUniformConstant = 0
	spvStorageInput           = 1
	spvStorageUniform         = 2
	spvStorageOutput          = 3
	spvStoragePrivate         = 6
	spvStoragePushConstant    = 9
	spvStorageStorageBuffer   = 12
)

// Decorations and builtins.
const (
	spvDecorationBlock         = 2
	spvDecorationNoPerspective = 13
	spvDecorationFlat          = 14
	spvDecorationCentroid      = 16
	spvDecorationLocation      = 30
	spvDecorationBinding       = 33
	spvDecorationDescriptorSet = 34
	spvDecorationOffset        = 35
	spvDecorationArrayStride   = 6
	spvDecorationBuiltIn       = 11

	spvBuiltInPosition    = 0
	spvBuiltInFragDepth   = 22
	spvBuiltInFragCoord   = 15
	spvBuiltInFrontFacing = 17
	spvBuiltInVertexIndex = 42
	spvBuiltInInstanceIdx = 43
)

// spvSection is one ordered word buffer of the module.
type spvSection struct {
	words []uint32
}

func (s *spvSection) inst(op uint32, operands ...uint32) {
	s.words = append(s.words, uint32(len(operands)+1)<<16|op)
	s.words = append(s.words, operands...)
}

// spvBuilder lowers one IR module into SPIR-V words.
type spvBuilder struct {
	module *IRModule

	nextID uint32

	capabilities spvSection
	imports      spvSection
	header       spvSection
	modes        spvSection
	decorations  spvSection
	types        spvSection
	body         spvSection

	typeCache  map[string]uint32
	constCache map[[2]uint32]uint32
	values     map[IRValue]uint32
	valueTypes map[IRValue]IRType

	glslImport uint32
	entryIface []uint32

	// Lazily created variables.
	vars map[string]uint32

	blockTerminated bool
	ifStack         []spvIfFrame

	err error
}

type spvIfFrame struct {
	elseLabel  uint32
	mergeLabel uint32
	sawElse    bool
}

// DumpSPIRV lowers a translated module into a SPIR-V binary.
func DumpSPIRV(module *IRModule) ([]uint32, error) {
	b := &spvBuilder{
		module:     module,
		nextID:     1,
		typeCache:  make(map[string]uint32),
		constCache: make(map[[2]uint32]uint32),
		values:     make(map[IRValue]uint32),
		valueTypes: make(map[IRValue]IRType),
		vars:       make(map[string]uint32),
	}
	return b.build()
}

func (b *spvBuilder) id() uint32 {
	id := b.nextID
	b.nextID++
	return id
}

func (b *spvBuilder) fail(format string, args ...any) uint32 {
	if b.err == nil {
		b.err = fmt.Errorf(format, args...)
	}
	return 0
}

// ---------------------------------------------------------------------------
// Types and constants
// ---------------------------------------------------------------------------

func (b *spvBuilder) typeID(key string, emit func(id uint32)) uint32 {
	if id, ok := b.typeCache[key]; ok {
		return id
	}
	id := b.id()
	b.typeCache[key] = id
	emit(id)
	return id
}

func (b *spvBuilder) voidType() uint32 {
	return b.typeID("void", func(id uint32) { b.types.inst(spvOpTypeVoid, id) })
}

func (b *spvBuilder) boolType() uint32 {
	return b.typeID("bool", func(id uint32) { b.types.inst(spvOpTypeBool, id) })
}

func (b *spvBuilder) floatType() uint32 {
	return b.typeID("f32", func(id uint32) { b.types.inst(spvOpTypeFloat, id, 32) })
}

func (b *spvBuilder) intType() uint32 {
	return b.typeID("i32", func(id uint32) { b.types.inst(spvOpTypeInt, id, 32, 1) })
}

func (b *spvBuilder) uintType() uint32 {
	return b.typeID("u32", func(id uint32) { b.types.inst(spvOpTypeInt, id, 32, 0) })
}

func (b *spvBuilder) vec4Type(elem uint32, key string) uint32 {
	return b.typeID(key, func(id uint32) { b.types.inst(spvOpTypeVector, id, elem, 4) })
}

func (b *spvBuilder) irType(ty IRType) uint32 {
	switch ty {
	case IRTypeFloat:
		return b.floatType()
	case IRTypeInt:
		return b.intType()
	case IRTypeUint:
		return b.uintType()
	case IRTypeBool:
		return b.boolType()
	case IRTypeFloat4:
		return b.vec4Type(b.floatType(), "f32v4")
	case IRTypeInt4:
		return b.vec4Type(b.intType(), "i32v4")
	case IRTypeUint4:
		return b.vec4Type(b.uintType(), "u32v4")
	}
	return b.voidType()
}

func (b *spvBuilder) pointerType(storage, pointee uint32) uint32 {
	key := fmt.Sprintf("ptr%d_%d", storage, pointee)
	return b.typeID(key, func(id uint32) {
		b.types.inst(spvOpTypePointer, id, storage, pointee)
	})
}

func (b *spvBuilder) constant(ty uint32, bits uint32) uint32 {
	key := [2]uint32{ty, bits}
	if id, ok := b.constCache[key]; ok {
		return id
	}
	id := b.id()
	b.constCache[key] = id
	b.types.inst(spvOpConstant, ty, id, bits)
	return id
}

func (b *spvBuilder) constUint(v uint32) uint32 { return b.constant(b.uintType(), v) }
func (b *spvBuilder) constInt(v int32) uint32   { return b.constant(b.intType(), uint32(v)) }

// ---------------------------------------------------------------------------
// Variables
// ---------------------------------------------------------------------------

func (b *spvBuilder) variable(key string, storage uint32, pointee uint32, decorate func(id uint32)) uint32 {
	if id, ok := b.vars[key]; ok {
		return id
	}
	ptrType := b.pointerType(storage, pointee)
	id := b.id()
	b.vars[key] = id
	b.types.inst(spvOpVariable, ptrType, id, storage)
	if decorate != nil {
		decorate(id)
	}
	if storage == spvStorageInput || storage == spvStorageOutput {
		b.entryIface = append(b.entryIface, id)
	}
	return id
}

func (b *spvBuilder) arrayType(elem, length uint32, key string) uint32 {
	return b.typeID(key, func(id uint32) {
		b.types.inst(spvOpTypeArray, id, elem, b.constUint(length))
	})
}

func (b *spvBuilder) gprVar() uint32 {
	f4 := b.irType(IRTypeFloat4)
	arr := b.arrayType(f4, MaxShaderGprs, "gprArr")
	return b.variable("gpr", spvStoragePrivate, arr, nil)
}

func (b *spvBuilder) cfileVar() uint32 {
	f4 := b.irType(IRTypeFloat4)
	arr := b.arrayType(f4, 256, "cfileArr")
	return b.variable("cfile", spvStoragePrivate, arr, nil)
}

func (b *spvBuilder) stateVar() uint32 {
	return b.variable("state", spvStoragePrivate, b.intType(), nil)
}

func (b *spvBuilder) stackIdxVar() uint32 {
	return b.variable("stackIdx", spvStoragePrivate, b.intType(), nil)
}

func (b *spvBuilder) stackVar() uint32 {
	arr := b.arrayType(b.intType(), ExecStackDepth, "stackArr")
	return b.variable("stack", spvStoragePrivate, arr, nil)
}

func (b *spvBuilder) predicateVar() uint32 {
	return b.variable("predicate", spvStoragePrivate, b.boolType(), nil)
}

func (b *spvBuilder) ringOffsetVar() uint32 {
	return b.variable("ringOffset", spvStoragePrivate, b.uintType(), nil)
}

// pushConstVar is a block of eight vec4 slots shared by every stage.
func (b *spvBuilder) pushConstVar() uint32 {
	if id, ok := b.vars["pushConsts"]; ok {
		return id
	}
	f4 := b.irType(IRTypeFloat4)
	arr := b.arrayType(f4, 8, "pushArr")
	structType := b.typeID("pushStruct", func(id uint32) {
		b.types.inst(spvOpTypeStruct, id, arr)
		b.decorations.inst(spvOpDecorate, id, spvDecorationBlock)
		b.decorations.inst(spvOpMemberDecorate, id, 0, spvDecorationOffset, 0)
		b.decorations.inst(spvOpDecorate, arr, spvDecorationArrayStride, 16)
	})
	return b.variable("pushConsts", spvStoragePushConstant, structType, nil)
}

func (b *spvBuilder) builtinVar(key string, storage, ty, builtin uint32) uint32 {
	return b.variable(key, storage, ty, func(id uint32) {
		b.decorations.inst(spvOpDecorate, id, spvDecorationBuiltIn, builtin)
	})
}

func (b *spvBuilder) exportVar(kind ExportKind, index uint32) uint32 {
	f4 := b.irType(IRTypeFloat4)
	switch kind {
	case ExportKindPosition:
		return b.builtinVar("pos", spvStorageOutput, f4, spvBuiltInPosition)
	case ExportKindParam:
		key := fmt.Sprintf("param%d", index)
		return b.variable(key, spvStorageOutput, f4, func(id uint32) {
			b.decorations.inst(spvOpDecorate, id, spvDecorationLocation, index)
		})
	case ExportKindPixel, ExportKindPixelWithFog:
		key := fmt.Sprintf("pixel%d", index)
		return b.variable(key, spvStorageOutput, f4, func(id uint32) {
			b.decorations.inst(spvOpDecorate, id, spvDecorationLocation, index)
		})
	case ExportKindComputedZ:
		return b.builtinVar("fragDepth", spvStorageOutput, b.floatType(), spvBuiltInFragDepth)
	}
	b.fail("export kind %d has no variable form", kind)
	return 0
}

// memExportVar is one storage buffer per stream or ring target.
func (b *spvBuilder) memExportVar(kind ExportKind) uint32 {
	key := fmt.Sprintf("memExport%d", kind)
	if id, ok := b.vars[key]; ok {
		return id
	}
	f4 := b.irType(IRTypeFloat4)
	arr := b.arrayType(f4, 4096, fmt.Sprintf("memArr%d", kind))
	structType := b.typeID(key+"Struct", func(id uint32) {
		b.types.inst(spvOpTypeStruct, id, arr)
		b.decorations.inst(spvOpDecorate, id, spvDecorationBlock)
		b.decorations.inst(spvOpMemberDecorate, id, 0, spvDecorationOffset, 0)
	})
	return b.variable(key, spvStorageStorageBuffer, structType, func(id uint32) {
		b.decorations.inst(spvOpDecorate, id, spvDecorationDescriptorSet, 0)
		b.decorations.inst(spvOpDecorate, id, spvDecorationBinding, 16+uint32(kind))
	})
}

func (b *spvBuilder) samplerVar(samplerID uint32) uint32 {
	key := fmt.Sprintf("sampler%d", samplerID)
	sampler := b.typeID("samplerType", func(id uint32) { b.types.inst(spvOpTypeSampler, id) })
	return b.variable(key, spvStorageUniformConstant, sampler, func(id uint32) {
		b.decorations.inst(spvOpDecorate, id, spvDecorationDescriptorSet, 0)
		b.decorations.inst(spvOpDecorate, id, spvDecorationBinding, samplerID)
	})
}

func (b *spvBuilder) imageType(dim TexDim) uint32 {
	var spvDim, arrayed uint32
	switch dim {
	case TexDim1D, TexDim1DArray:
		spvDim = 0
	case TexDim2D, TexDim2DArray, TexDim2DMSAA:
		spvDim = 1
	case TexDim3D:
		spvDim = 2
	case TexDimCubemap:
		spvDim = 3
	}
	if dim == TexDim1DArray || dim == TexDim2DArray {
		arrayed = 1
	}
	key := fmt.Sprintf("image%d_%d", spvDim, arrayed)
	return b.typeID(key, func(id uint32) {
		b.types.inst(spvOpTypeImage, id, b.floatType(), spvDim, 0, arrayed, 0, 1, 0)
	})
}

func (b *spvBuilder) textureVar(textureID uint32, dim TexDim) (uint32, uint32) {
	key := fmt.Sprintf("texture%d", textureID)
	image := b.imageType(dim)
	return b.variable(key, spvStorageUniformConstant, image, func(id uint32) {
		b.decorations.inst(spvOpDecorate, id, spvDecorationDescriptorSet, 0)
		b.decorations.inst(spvOpDecorate, id, spvDecorationBinding, 32+textureID)
	}), image
}

func (b *spvBuilder) cbufferVar(bufferID uint32) uint32 {
	key := fmt.Sprintf("cbuffer%d", bufferID)
	if id, ok := b.vars[key]; ok {
		return id
	}
	f4 := b.irType(IRTypeFloat4)
	arr := b.arrayType(f4, 4096, fmt.Sprintf("cbufArr%d", bufferID))
	structType := b.typeID(key+"Struct", func(id uint32) {
		b.types.inst(spvOpTypeStruct, id, arr)
		b.decorations.inst(spvOpDecorate, id, spvDecorationBlock)
		b.decorations.inst(spvOpMemberDecorate, id, 0, spvDecorationOffset, 0)
	})
	return b.variable(key, spvStorageUniform, structType, func(id uint32) {
		b.decorations.inst(spvOpDecorate, id, spvDecorationDescriptorSet, 0)
		b.decorations.inst(spvOpDecorate, id, spvDecorationBinding, 48+bufferID)
	})
}

func (b *spvBuilder) inputParamVar(location, qual uint32) uint32 {
	key := fmt.Sprintf("inputParam%d", location)
	return b.variable(key, spvStorageInput, b.irType(IRTypeFloat4), func(id uint32) {
		b.decorations.inst(spvOpDecorate, id, spvDecorationLocation, location)
		switch qual & 3 {
		case 1:
			b.decorations.inst(spvOpDecorate, id, spvDecorationFlat)
		case 2:
			b.decorations.inst(spvOpDecorate, id, spvDecorationNoPerspective)
		}
		if qual&4 != 0 {
			b.decorations.inst(spvOpDecorate, id, spvDecorationCentroid)
		}
	})
}

// ---------------------------------------------------------------------------
// Body emission
// ---------------------------------------------------------------------------

func (b *spvBuilder) load(ptrStorage, pointee, ptr uint32) uint32 {
	id := b.id()
	b.body.inst(spvOpLoad, pointee, id, ptr)
	return id
}

func (b *spvBuilder) accessChain(storage, pointee, base uint32, indices ...uint32) uint32 {
	ptrType := b.pointerType(storage, pointee)
	id := b.id()
	operands := append([]uint32{ptrType, id, base}, indices...)
	b.body.inst(spvOpAccessChain, operands...)
	return id
}

func (b *spvBuilder) emitBin(op, ty uint32, a, c uint32) uint32 {
	id := b.id()
	b.body.inst(op, ty, id, a, c)
	return id
}

func (b *spvBuilder) emitExt(ext uint32, ty uint32, args ...uint32) uint32 {
	id := b.id()
	operands := append([]uint32{ty, id, b.glslImport, ext}, args...)
	b.body.inst(spvOpExtInst, operands...)
	return id
}

func (b *spvBuilder) value(v IRValue) uint32 {
	id, ok := b.values[v]
	if !ok {
		return b.fail("use of undefined IR value %d", v)
	}
	return id
}

func (b *spvBuilder) build() ([]uint32, error) {
	module := b.module

	b.capabilities.inst(spvOpCapability, 1) // Shader
	b.glslImport = b.id()
	name := encodeSpvString("GLSL.std.450")
	b.imports.words = append(b.imports.words, uint32(len(name)+2)<<16|spvOpExtInstImport, b.glslImport)
	b.imports.words = append(b.imports.words, name...)
	b.header.inst(spvOpMemoryModel, 0, 1) // Logical GLSL450

	var execModel uint32
	switch module.Stage {
	case StagePixel:
		execModel = 4 // Fragment
	case StageGeometry:
		execModel = 3
	default:
		execModel = 0 // Vertex
	}

	voidType := b.voidType()
	fnType := b.typeID("mainFn", func(id uint32) {
		b.types.inst(spvOpTypeFunction, id, voidType)
	})

	mainFn := b.id()
	entryLabel := b.id()

	// Function body: lower every IR instruction in order.
	b.body.inst(spvOpFunction, voidType, mainFn, 0, fnType)
	b.body.inst(spvOpLabel, entryLabel)

	for idx := range module.Insts {
		if b.err != nil {
			break
		}
		b.lower(&module.Insts[idx])
	}

	if b.err != nil {
		return nil, b.err
	}
	if len(b.ifStack) != 0 {
		return nil, fmt.Errorf("unbalanced structured control flow in IR stream")
	}

	if !b.blockTerminated {
		b.body.inst(spvOpReturn)
	}
	b.body.inst(spvOpFunctionEnd)

	// Entry point and execution modes come after the interface set is
	// known.
	mainName := encodeSpvString("main")
	entry := []uint32{execModel, mainFn}
	entry = append(entry, mainName...)
	entry = append(entry, b.entryIface...)
	b.header.inst(spvOpEntryPoint, entry...)
	if module.Stage == StagePixel {
		b.modes.inst(spvOpExecutionMode, mainFn, 7) // OriginUpperLeft
	}

	// Assemble: magic, version 1.3, generator, bound, schema.
	out := []uint32{0x07230203, 0x00010300, 0, b.nextID, 0}
	out = append(out, b.capabilities.words...)
	out = append(out, b.imports.words...)
	out = append(out, b.header.words...)
	out = append(out, b.modes.words...)
	out = append(out, b.decorations.words...)
	out = append(out, b.types.words...)
	out = append(out, b.body.words...)
	return out, nil
}

func encodeSpvString(s string) []uint32 {
	raw := append([]byte(s), 0)
	for len(raw)%4 != 0 {
		raw = append(raw, 0)
	}
	words := make([]uint32, len(raw)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(raw[i*4:])
	}
	return words
}

// espresso_instructions.go - Espresso (PowerPC 750CL family) instruction set tables

package main

import "fmt"

// Instruction is one 32-bit big-endian guest instruction word.
type Instruction uint32

// Primary field accessors. Bit numbering follows the architecture manual
// (bit 0 is the most significant bit of the word).
func (i Instruction) OPCD() uint32  { return uint32(i) >> 26 }
func (i Instruction) RD() uint32    { return (uint32(i) >> 21) & 0x1F }
func (i Instruction) RS() uint32    { return (uint32(i) >> 21) & 0x1F }
func (i Instruction) RA() uint32    { return (uint32(i) >> 16) & 0x1F }
func (i Instruction) RB() uint32    { return (uint32(i) >> 11) & 0x1F }
func (i Instruction) RC() uint32    { return (uint32(i) >> 6) & 0x1F }
func (i Instruction) SIMM() int32   { return int32(int16(uint32(i) & 0xFFFF)) }
func (i Instruction) UIMM() uint32  { return uint32(i) & 0xFFFF }
func (i Instruction) XO10() uint32  { return (uint32(i) >> 1) & 0x3FF }
func (i Instruction) XO5() uint32   { return (uint32(i) >> 1) & 0x1F }
func (i Instruction) OE() bool      { return (uint32(i)>>10)&1 != 0 }
func (i Instruction) Rc() bool      { return uint32(i)&1 != 0 }
func (i Instruction) LK() bool      { return uint32(i)&1 != 0 }
func (i Instruction) AA() bool      { return (uint32(i)>>1)&1 != 0 }
func (i Instruction) BO() uint32    { return (uint32(i) >> 21) & 0x1F }
func (i Instruction) BI() uint32    { return (uint32(i) >> 16) & 0x1F }
func (i Instruction) BD() int32     { return int32(int16(uint32(i) & 0xFFFC)) }
func (i Instruction) LI() int32     { return signExtend26(uint32(i) & 0x03FFFFFC) }
func (i Instruction) SH() uint32    { return (uint32(i) >> 11) & 0x1F }
func (i Instruction) MB() uint32    { return (uint32(i) >> 6) & 0x1F }
func (i Instruction) ME() uint32    { return (uint32(i) >> 1) & 0x1F }
func (i Instruction) CRFD() uint32  { return (uint32(i) >> 23) & 0x7 }
func (i Instruction) CRFS() uint32  { return (uint32(i) >> 18) & 0x7 }
func (i Instruction) CRBD() uint32  { return (uint32(i) >> 21) & 0x1F }
func (i Instruction) CRBA() uint32  { return (uint32(i) >> 16) & 0x1F }
func (i Instruction) CRBB() uint32  { return (uint32(i) >> 11) & 0x1F }
func (i Instruction) CRM() uint32   { return (uint32(i) >> 12) & 0xFF }
func (i Instruction) FM() uint32    { return (uint32(i) >> 17) & 0xFF }
func (i Instruction) L() uint32     { return (uint32(i) >> 21) & 0x1 }
func (i Instruction) TO() uint32    { return (uint32(i) >> 21) & 0x1F }
func (i Instruction) KCN() uint32   { return uint32(i) & 0x03FFFFFF }
func (i Instruction) IMMFS() uint32 { return (uint32(i) >> 12) & 0xF }

// SPR encodes its ten bits as two swapped five-bit halves.
func (i Instruction) SPR() uint32 {
	return ((uint32(i) >> 16) & 0x1F) | (((uint32(i) >> 11) & 0x1F) << 5)
}

// Paired-single quantized load/store fields.
func (i Instruction) PSD() int32  { return int32(int16(uint32(i)&0xFFF) << 4 >> 4) }
func (i Instruction) PSW() bool   { return (uint32(i)>>15)&1 != 0 }
func (i Instruction) PSI() uint32 { return (uint32(i) >> 12) & 0x7 }
func (i Instruction) PSWX() bool  { return (uint32(i)>>10)&1 != 0 }
func (i Instruction) PSIX() uint32 {
	return (uint32(i) >> 7) & 0x7
}

func signExtend26(v uint32) int32 {
	if v&0x02000000 != 0 {
		v |= 0xFC000000
	}
	return int32(v)
}

// InstructionID identifies one decoded instruction form.
type InstructionID int

const (
	InstrInvalid InstructionID = iota

	// Branch
	InstrB
	InstrBc
	InstrBcctr
	InstrBclr
	InstrSc
	InstrKc

	// Condition register
	InstrMcrf
	InstrCrand
	InstrCrandc
	InstrCreqv
	InstrCrnand
	InstrCrnor
	InstrCror
	InstrCrorc
	InstrCrxor

	// Integer arithmetic
	InstrAdd
	InstrAddc
	InstrAdde
	InstrAddi
	InstrAddic
	InstrAddicx
	InstrAddis
	InstrAddme
	InstrAddze
	InstrDivw
	InstrDivwu
	InstrMulhw
	InstrMulhwu
	InstrMulli
	InstrMullw
	InstrNeg
	InstrSubf
	InstrSubfc
	InstrSubfe
	InstrSubfic
	InstrSubfme
	InstrSubfze

	// Integer compare, logical, rotate, shift
	InstrCmp
	InstrCmpi
	InstrCmpl
	InstrCmpli
	InstrAnd
	InstrAndc
	InstrAndix
	InstrAndisx
	InstrCntlzw
	InstrEqv
	InstrExtsb
	InstrExtsh
	InstrNand
	InstrNor
	InstrOr
	InstrOrc
	InstrOri
	InstrOris
	InstrXor
	InstrXori
	InstrXoris
	InstrRlwimi
	InstrRlwinm
	InstrRlwnm
	InstrSlw
	InstrSraw
	InstrSrawi
	InstrSrw
	InstrTw
	InstrTwi

	// Load/store
	InstrLbz
	InstrLbzu
	InstrLbzux
	InstrLbzx
	InstrLha
	InstrLhau
	InstrLhaux
	InstrLhax
	InstrLhbrx
	InstrLhz
	InstrLhzu
	InstrLhzux
	InstrLhzx
	InstrLmw
	InstrLwarx
	InstrLwbrx
	InstrLwz
	InstrLwzu
	InstrLwzux
	InstrLwzx
	InstrStb
	InstrStbu
	InstrStbux
	InstrStbx
	InstrSth
	InstrSthbrx
	InstrSthu
	InstrSthux
	InstrSthx
	InstrStmw
	InstrStw
	InstrStwbrx
	InstrStwcx
	InstrStwu
	InstrStwux
	InstrStwx
	InstrLfd
	InstrLfdu
	InstrLfdux
	InstrLfdx
	InstrLfs
	InstrLfsu
	InstrLfsux
	InstrLfsx
	InstrStfd
	InstrStfdu
	InstrStfdux
	InstrStfdx
	InstrStfiwx
	InstrStfs
	InstrStfsu
	InstrStfsux
	InstrStfsx

	// Floating point
	InstrFadd
	InstrFadds
	InstrFdiv
	InstrFdivs
	InstrFmul
	InstrFmuls
	InstrFsub
	InstrFsubs
	InstrFmadd
	InstrFmadds
	InstrFmsub
	InstrFmsubs
	InstrFnmadd
	InstrFnmadds
	InstrFnmsub
	InstrFnmsubs
	InstrFres
	InstrFrsqrte
	InstrFsel
	InstrFabs
	InstrFcmpo
	InstrFcmpu
	InstrFctiw
	InstrFctiwz
	InstrFmr
	InstrFnabs
	InstrFneg
	InstrFrsp
	InstrMcrfs
	InstrMffs
	InstrMtfsb0
	InstrMtfsb1
	InstrMtfsf
	InstrMtfsfi

	// Paired single
	InstrPsAdd
	InstrPsSub
	InstrPsMul
	InstrPsDiv
	InstrPsMadd
	InstrPsMsub
	InstrPsNmadd
	InstrPsNmsub
	InstrPsSel
	InstrPsRes
	InstrPsRsqrte
	InstrPsMuls0
	InstrPsMuls1
	InstrPsMadds0
	InstrPsMadds1
	InstrPsSum0
	InstrPsSum1
	InstrPsAbs
	InstrPsNabs
	InstrPsNeg
	InstrPsMr
	InstrPsMerge00
	InstrPsMerge01
	InstrPsMerge10
	InstrPsMerge11
	InstrPsCmpu0
	InstrPsCmpo0
	InstrPsCmpu1
	InstrPsCmpo1
	InstrPsqL
	InstrPsqLu
	InstrPsqLx
	InstrPsqLux
	InstrPsqSt
	InstrPsqStu
	InstrPsqStx
	InstrPsqStux

	// System
	InstrEieio
	InstrIsync
	InstrSync
	InstrIcbi
	InstrDcbf
	InstrDcbi
	InstrDcbst
	InstrDcbt
	InstrDcbtst
	InstrDcbz
	InstrDcbzL
	InstrMfcr
	InstrMfmsr
	InstrMfspr
	InstrMftb
	InstrMtcrf
	InstrMtmsr
	InstrMtspr

	InstructionCount
)

// InstructionData describes one decoded instruction.
type InstructionData struct {
	ID   InstructionID
	Name string
}

// instruction table state, built once by initialiseInstructionSet.
var (
	sPrimaryTable [64]*InstructionData
	sTable19      map[uint32]*InstructionData
	sTable31      map[uint32]*InstructionData
	sTable59      map[uint32]*InstructionData
	sTable63      map[uint32]*InstructionData
	sTable63A     map[uint32]*InstructionData
	sTable4       map[uint32]*InstructionData
	sTable4A      map[uint32]*InstructionData
	sInstrInfo    [InstructionCount]*InstructionData
)

func regInstr(id InstructionID, name string) *InstructionData {
	data := &InstructionData{ID: id, Name: name}
	sInstrInfo[id] = data
	return data
}

func initialiseInstructionSet() {
	sTable19 = make(map[uint32]*InstructionData)
	sTable31 = make(map[uint32]*InstructionData)
	sTable59 = make(map[uint32]*InstructionData)
	sTable63 = make(map[uint32]*InstructionData)
	sTable63A = make(map[uint32]*InstructionData)
	sTable4 = make(map[uint32]*InstructionData)
	sTable4A = make(map[uint32]*InstructionData)

	prim := func(opcd uint32, id InstructionID, name string) {
		sPrimaryTable[opcd] = regInstr(id, name)
	}
	ext := func(table map[uint32]*InstructionData, xo uint32, id InstructionID, name string) {
		table[xo] = regInstr(id, name)
	}

	prim(1, InstrKc, "kc")
	prim(3, InstrTwi, "twi")
	prim(7, InstrMulli, "mulli")
	prim(8, InstrSubfic, "subfic")
	prim(10, InstrCmpli, "cmpli")
	prim(11, InstrCmpi, "cmpi")
	prim(12, InstrAddic, "addic")
	prim(13, InstrAddicx, "addic.")
	prim(14, InstrAddi, "addi")
	prim(15, InstrAddis, "addis")
	prim(16, InstrBc, "bc")
	prim(17, InstrSc, "sc")
	prim(18, InstrB, "b")
	prim(20, InstrRlwimi, "rlwimi")
	prim(21, InstrRlwinm, "rlwinm")
	prim(23, InstrRlwnm, "rlwnm")
	prim(24, InstrOri, "ori")
	prim(25, InstrOris, "oris")
	prim(26, InstrXori, "xori")
	prim(27, InstrXoris, "xoris")
	prim(28, InstrAndix, "andi.")
	prim(29, InstrAndisx, "andis.")
	prim(32, InstrLwz, "lwz")
	prim(33, InstrLwzu, "lwzu")
	prim(34, InstrLbz, "lbz")
	prim(35, InstrLbzu, "lbzu")
	prim(36, InstrStw, "stw")
	prim(37, InstrStwu, "stwu")
	prim(38, InstrStb, "stb")
	prim(39, InstrStbu, "stbu")
	prim(40, InstrLhz, "lhz")
	prim(41, InstrLhzu, "lhzu")
	prim(42, InstrLha, "lha")
	prim(43, InstrLhau, "lhau")
	prim(44, InstrSth, "sth")
	prim(45, InstrSthu, "sthu")
	prim(46, InstrLmw, "lmw")
	prim(47, InstrStmw, "stmw")
	prim(48, InstrLfs, "lfs")
	prim(49, InstrLfsu, "lfsu")
	prim(50, InstrLfd, "lfd")
	prim(51, InstrLfdu, "lfdu")
	prim(52, InstrStfs, "stfs")
	prim(53, InstrStfsu, "stfsu")
	prim(54, InstrStfd, "stfd")
	prim(55, InstrStfdu, "stfdu")
	prim(56, InstrPsqL, "psq_l")
	prim(57, InstrPsqLu, "psq_lu")
	prim(60, InstrPsqSt, "psq_st")
	prim(61, InstrPsqStu, "psq_stu")

	// Opcode 19 - condition register and branch-to-register forms
	ext(sTable19, 0, InstrMcrf, "mcrf")
	ext(sTable19, 16, InstrBclr, "bclr")
	ext(sTable19, 33, InstrCrnor, "crnor")
	ext(sTable19, 129, InstrCrandc, "crandc")
	ext(sTable19, 150, InstrIsync, "isync")
	ext(sTable19, 193, InstrCrxor, "crxor")
	ext(sTable19, 225, InstrCrnand, "crnand")
	ext(sTable19, 257, InstrCrand, "crand")
	ext(sTable19, 289, InstrCreqv, "creqv")
	ext(sTable19, 417, InstrCrorc, "crorc")
	ext(sTable19, 449, InstrCror, "cror")
	ext(sTable19, 528, InstrBcctr, "bcctr")

	// Opcode 31 - integer X/XO forms, load/store indexed, system
	ext(sTable31, 0, InstrCmp, "cmp")
	ext(sTable31, 4, InstrTw, "tw")
	ext(sTable31, 8, InstrSubfc, "subfc")
	ext(sTable31, 10, InstrAddc, "addc")
	ext(sTable31, 11, InstrMulhwu, "mulhwu")
	ext(sTable31, 19, InstrMfcr, "mfcr")
	ext(sTable31, 20, InstrLwarx, "lwarx")
	ext(sTable31, 23, InstrLwzx, "lwzx")
	ext(sTable31, 24, InstrSlw, "slw")
	ext(sTable31, 26, InstrCntlzw, "cntlzw")
	ext(sTable31, 28, InstrAnd, "and")
	ext(sTable31, 32, InstrCmpl, "cmpl")
	ext(sTable31, 40, InstrSubf, "subf")
	ext(sTable31, 54, InstrDcbst, "dcbst")
	ext(sTable31, 55, InstrLwzux, "lwzux")
	ext(sTable31, 60, InstrAndc, "andc")
	ext(sTable31, 75, InstrMulhw, "mulhw")
	ext(sTable31, 83, InstrMfmsr, "mfmsr")
	ext(sTable31, 86, InstrDcbf, "dcbf")
	ext(sTable31, 87, InstrLbzx, "lbzx")
	ext(sTable31, 104, InstrNeg, "neg")
	ext(sTable31, 119, InstrLbzux, "lbzux")
	ext(sTable31, 124, InstrNor, "nor")
	ext(sTable31, 136, InstrSubfe, "subfe")
	ext(sTable31, 138, InstrAdde, "adde")
	ext(sTable31, 144, InstrMtcrf, "mtcrf")
	ext(sTable31, 146, InstrMtmsr, "mtmsr")
	ext(sTable31, 150, InstrStwcx, "stwcx.")
	ext(sTable31, 151, InstrStwx, "stwx")
	ext(sTable31, 183, InstrStwux, "stwux")
	ext(sTable31, 200, InstrSubfze, "subfze")
	ext(sTable31, 202, InstrAddze, "addze")
	ext(sTable31, 215, InstrStbx, "stbx")
	ext(sTable31, 232, InstrSubfme, "subfme")
	ext(sTable31, 234, InstrAddme, "addme")
	ext(sTable31, 235, InstrMullw, "mullw")
	ext(sTable31, 246, InstrDcbtst, "dcbtst")
	ext(sTable31, 247, InstrStbux, "stbux")
	ext(sTable31, 266, InstrAdd, "add")
	ext(sTable31, 278, InstrDcbt, "dcbt")
	ext(sTable31, 279, InstrLhzx, "lhzx")
	ext(sTable31, 284, InstrEqv, "eqv")
	ext(sTable31, 311, InstrLhzux, "lhzux")
	ext(sTable31, 316, InstrXor, "xor")
	ext(sTable31, 339, InstrMfspr, "mfspr")
	ext(sTable31, 343, InstrLhax, "lhax")
	ext(sTable31, 371, InstrMftb, "mftb")
	ext(sTable31, 375, InstrLhaux, "lhaux")
	ext(sTable31, 407, InstrSthx, "sthx")
	ext(sTable31, 412, InstrOrc, "orc")
	ext(sTable31, 439, InstrSthux, "sthux")
	ext(sTable31, 444, InstrOr, "or")
	ext(sTable31, 459, InstrDivwu, "divwu")
	ext(sTable31, 467, InstrMtspr, "mtspr")
	ext(sTable31, 470, InstrDcbi, "dcbi")
	ext(sTable31, 476, InstrNand, "nand")
	ext(sTable31, 491, InstrDivw, "divw")
	ext(sTable31, 534, InstrLwbrx, "lwbrx")
	ext(sTable31, 535, InstrLfsx, "lfsx")
	ext(sTable31, 536, InstrSrw, "srw")
	ext(sTable31, 567, InstrLfsux, "lfsux")
	ext(sTable31, 598, InstrSync, "sync")
	ext(sTable31, 599, InstrLfdx, "lfdx")
	ext(sTable31, 631, InstrLfdux, "lfdux")
	ext(sTable31, 662, InstrStwbrx, "stwbrx")
	ext(sTable31, 663, InstrStfsx, "stfsx")
	ext(sTable31, 695, InstrStfsux, "stfsux")
	ext(sTable31, 727, InstrStfdx, "stfdx")
	ext(sTable31, 759, InstrStfdux, "stfdux")
	ext(sTable31, 790, InstrLhbrx, "lhbrx")
	ext(sTable31, 792, InstrSraw, "sraw")
	ext(sTable31, 824, InstrSrawi, "srawi")
	ext(sTable31, 854, InstrEieio, "eieio")
	ext(sTable31, 918, InstrSthbrx, "sthbrx")
	ext(sTable31, 922, InstrExtsh, "extsh")
	ext(sTable31, 954, InstrExtsb, "extsb")
	ext(sTable31, 982, InstrIcbi, "icbi")
	ext(sTable31, 983, InstrStfiwx, "stfiwx")
	ext(sTable31, 1014, InstrDcbz, "dcbz")

	// Opcode 59 - single precision arithmetic (A-form, 5-bit extended op)
	ext(sTable59, 18, InstrFdivs, "fdivs")
	ext(sTable59, 20, InstrFsubs, "fsubs")
	ext(sTable59, 21, InstrFadds, "fadds")
	ext(sTable59, 24, InstrFres, "fres")
	ext(sTable59, 25, InstrFmuls, "fmuls")
	ext(sTable59, 28, InstrFmsubs, "fmsubs")
	ext(sTable59, 29, InstrFmadds, "fmadds")
	ext(sTable59, 30, InstrFnmsubs, "fnmsubs")
	ext(sTable59, 31, InstrFnmadds, "fnmadds")

	// Opcode 63 - double precision; A-form ops decoded by the 5-bit XO
	ext(sTable63A, 18, InstrFdiv, "fdiv")
	ext(sTable63A, 20, InstrFsub, "fsub")
	ext(sTable63A, 21, InstrFadd, "fadd")
	ext(sTable63A, 23, InstrFsel, "fsel")
	ext(sTable63A, 25, InstrFmul, "fmul")
	ext(sTable63A, 26, InstrFrsqrte, "frsqrte")
	ext(sTable63A, 28, InstrFmsub, "fmsub")
	ext(sTable63A, 29, InstrFmadd, "fmadd")
	ext(sTable63A, 30, InstrFnmsub, "fnmsub")
	ext(sTable63A, 31, InstrFnmadd, "fnmadd")

	ext(sTable63, 0, InstrFcmpu, "fcmpu")
	ext(sTable63, 12, InstrFrsp, "frsp")
	ext(sTable63, 14, InstrFctiw, "fctiw")
	ext(sTable63, 15, InstrFctiwz, "fctiwz")
	ext(sTable63, 32, InstrFcmpo, "fcmpo")
	ext(sTable63, 38, InstrMtfsb1, "mtfsb1")
	ext(sTable63, 40, InstrFneg, "fneg")
	ext(sTable63, 64, InstrMcrfs, "mcrfs")
	ext(sTable63, 70, InstrMtfsb0, "mtfsb0")
	ext(sTable63, 72, InstrFmr, "fmr")
	ext(sTable63, 134, InstrMtfsfi, "mtfsfi")
	ext(sTable63, 136, InstrFnabs, "fnabs")
	ext(sTable63, 264, InstrFabs, "fabs")
	ext(sTable63, 583, InstrMffs, "mffs")
	ext(sTable63, 711, InstrMtfsf, "mtfsf")

	// Opcode 4 - paired singles; A-form by 5-bit XO, rest by 10-bit XO
	ext(sTable4A, 10, InstrPsSum0, "ps_sum0")
	ext(sTable4A, 11, InstrPsSum1, "ps_sum1")
	ext(sTable4A, 12, InstrPsMuls0, "ps_muls0")
	ext(sTable4A, 13, InstrPsMuls1, "ps_muls1")
	ext(sTable4A, 14, InstrPsMadds0, "ps_madds0")
	ext(sTable4A, 15, InstrPsMadds1, "ps_madds1")
	ext(sTable4A, 18, InstrPsDiv, "ps_div")
	ext(sTable4A, 20, InstrPsSub, "ps_sub")
	ext(sTable4A, 21, InstrPsAdd, "ps_add")
	ext(sTable4A, 23, InstrPsSel, "ps_sel")
	ext(sTable4A, 24, InstrPsRes, "ps_res")
	ext(sTable4A, 25, InstrPsMul, "ps_mul")
	ext(sTable4A, 26, InstrPsRsqrte, "ps_rsqrte")
	ext(sTable4A, 28, InstrPsMsub, "ps_msub")
	ext(sTable4A, 29, InstrPsMadd, "ps_madd")
	ext(sTable4A, 30, InstrPsNmsub, "ps_nmsub")
	ext(sTable4A, 31, InstrPsNmadd, "ps_nmadd")

	ext(sTable4, 0, InstrPsCmpu0, "ps_cmpu0")
	ext(sTable4, 6, InstrPsqLx, "psq_lx")
	ext(sTable4, 7, InstrPsqStx, "psq_stx")
	ext(sTable4, 32, InstrPsCmpo0, "ps_cmpo0")
	ext(sTable4, 38, InstrPsqLux, "psq_lux")
	ext(sTable4, 39, InstrPsqStux, "psq_stux")
	ext(sTable4, 40, InstrPsNeg, "ps_neg")
	ext(sTable4, 64, InstrPsCmpu1, "ps_cmpu1")
	ext(sTable4, 72, InstrPsMr, "ps_mr")
	ext(sTable4, 96, InstrPsCmpo1, "ps_cmpo1")
	ext(sTable4, 136, InstrPsNabs, "ps_nabs")
	ext(sTable4, 264, InstrPsAbs, "ps_abs")
	ext(sTable4, 528, InstrPsMerge00, "ps_merge00")
	ext(sTable4, 560, InstrPsMerge01, "ps_merge01")
	ext(sTable4, 592, InstrPsMerge10, "ps_merge10")
	ext(sTable4, 624, InstrPsMerge11, "ps_merge11")
	ext(sTable4, 1014, InstrDcbzL, "dcbz_l")
}

// decodeInstruction maps a raw word to its descriptor, or nil for an
// encoding the table does not cover. For opcodes 4 and 63 the five-bit
// A-form extended opcodes never collide with any registered ten-bit form
// modulo 32, so an A-form table hit is authoritative.
func decodeInstruction(instr Instruction) *InstructionData {
	opcd := instr.OPCD()
	switch opcd {
	case 4:
		if data, ok := sTable4A[instr.XO5()]; ok {
			return data
		}
		return sTable4[instr.XO10()]
	case 19:
		return sTable19[instr.XO10()]
	case 31:
		return sTable31[instr.XO10()]
	case 59:
		return sTable59[instr.XO5()]
	case 63:
		if data, ok := sTable63A[instr.XO5()]; ok {
			return data
		}
		return sTable63[instr.XO10()]
	default:
		return sPrimaryTable[opcd]
	}
}

// findInstructionInfo returns the descriptor registered for an id.
func findInstructionInfo(id InstructionID) *InstructionData {
	if id < 0 || id >= InstructionCount {
		return nil
	}
	return sInstrInfo[id]
}

// ---------------------------------------------------------------------------
// Encode helpers (used by the tests and the monitor assembler commands)
// ---------------------------------------------------------------------------

func encodeDForm(opcd, rd, ra uint32, imm uint16) Instruction {
	return Instruction(opcd<<26 | rd<<21 | ra<<16 | uint32(imm))
}

func encodeXForm(opcd, rd, ra, rb, xo uint32, rc bool) Instruction {
	v := opcd<<26 | rd<<21 | ra<<16 | rb<<11 | xo<<1
	if rc {
		v |= 1
	}
	return Instruction(v)
}

func encodeXOForm(opcd, rd, ra, rb, xo uint32, oe, rc bool) Instruction {
	v := opcd<<26 | rd<<21 | ra<<16 | rb<<11 | xo<<1
	if oe {
		v |= 1 << 10
	}
	if rc {
		v |= 1
	}
	return Instruction(v)
}

func encodeAForm(opcd, frd, fra, frb, frc, xo uint32, rc bool) Instruction {
	v := opcd<<26 | frd<<21 | fra<<16 | frb<<11 | frc<<6 | xo<<1
	if rc {
		v |= 1
	}
	return Instruction(v)
}

func encodeMForm(opcd, rs, ra, sh, mb, me uint32, rc bool) Instruction {
	v := opcd<<26 | rs<<21 | ra<<16 | sh<<11 | mb<<6 | me<<1
	if rc {
		v |= 1
	}
	return Instruction(v)
}

func encodeB(target int32, aa, lk bool) Instruction {
	v := uint32(18) << 26
	v |= uint32(target) & 0x03FFFFFC
	if aa {
		v |= 2
	}
	if lk {
		v |= 1
	}
	return Instruction(v)
}

func encodeBc(bo, bi uint32, bd int32, aa, lk bool) Instruction {
	v := uint32(16)<<26 | bo<<21 | bi<<16
	v |= uint32(bd) & 0xFFFC
	if aa {
		v |= 2
	}
	if lk {
		v |= 1
	}
	return Instruction(v)
}

func encodeBclr(bo, bi uint32, lk bool) Instruction {
	v := uint32(19)<<26 | bo<<21 | bi<<16 | 16<<1
	if lk {
		v |= 1
	}
	return Instruction(v)
}

func encodeBcctr(bo, bi uint32, lk bool) Instruction {
	v := uint32(19)<<26 | bo<<21 | bi<<16 | 528<<1
	if lk {
		v |= 1
	}
	return Instruction(v)
}

func encodeKc(id uint32) Instruction {
	return Instruction(1<<26 | id&0x03FFFFFF)
}

func encodeMfspr(rd, spr uint32) Instruction {
	return encodeXForm(31, rd, spr&0x1F, (spr>>5)&0x1F, 339, false)
}

func encodeMtspr(spr, rs uint32) Instruction {
	return encodeXForm(31, rs, spr&0x1F, (spr>>5)&0x1F, 467, false)
}

func (i Instruction) String() string {
	if data := decodeInstruction(i); data != nil {
		return fmt.Sprintf("%s[%08X]", data.Name, uint32(i))
	}
	return fmt.Sprintf("invalid[%08X]", uint32(i))
}

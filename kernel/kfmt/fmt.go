// Package kfmt implements the kernel's diagnostic output path: a minimal,
// allocation-free Printf, leveled logging on top of it and the panic/halt
// primitive used for unrecoverable conditions.
package kfmt

import (
	"io"
	"unsafe"

	"nucleus/kernel/sync"
)

// maxBufSize defines the buffer size for formatting numbers.
const maxBufSize = 32

var (
	errMissingArg   = []byte("(MISSING)")
	errWrongArgType = []byte("%!(WRONGTYPE)")
	errNoVerb       = []byte("%!(NOVERB)")
	errExtraArg     = []byte("%!(EXTRA)")
	trueValue       = []byte("true")
	falseValue      = []byte("false")

	numFmtBuf [maxBufSize + 1]byte

	// singleByte is used as a shared buffer for passing single characters
	// to doWrite.
	singleByte = []byte(" ")

	// earlyPrintBuffer stores Printf output produced before a sink has
	// been installed via SetOutputSink.
	earlyPrintBuffer ringBuffer

	// outputSink is the io.Writer where Printf sends its output. If set
	// to nil, output is redirected to the earlyPrintBuffer.
	outputSink io.Writer

	// sinkLock serializes writers of the global sink.
	sinkLock sync.Spinlock
)

// SetOutputSink installs w as the target for Printf and copies any data
// accumulated in the early print buffer to it. The sink must not block
// indefinitely and must not itself trigger a trap.
func SetOutputSink(w io.Writer) {
	sinkLock.Acquire()
	outputSink = w
	if w != nil {
		earlyPrintBuffer.WriteTo(w)
	}
	sinkLock.Release()
}

// ActiveSink returns an io.Writer that forwards to whatever sink is installed
// at the time of the write, falling back to the early print buffer.
func ActiveSink() io.Writer {
	return sinkProxy{}
}

type sinkProxy struct{}

func (sinkProxy) Write(p []byte) (int, error) {
	if outputSink != nil {
		return outputSink.Write(p)
	}
	return earlyPrintBuffer.Write(p)
}

// Printf provides a minimal Printf implementation that can be safely used
// before the Go runtime has been properly initialized and from inside trap
// handlers. This implementation does not allocate any memory.
//
// The following subset of formatting verbs is supported:
//
//	%s the uninterpreted bytes of the string or byte slice
//	%o base 8
//	%d base 10
//	%x base 16, with lower-case letters for a-f
//	%t "true" or "false"
//
// Width is specified by an optional decimal number immediately preceding the
// verb. Strings and base-10 integers are left-padded with spaces; base-8 and
// base-16 integers are left-padded with zeroes.
//
// Printf deliberately avoids reflect and the Stringer interface; touching
// either makes the compiler emit calls that allocate.
func Printf(format string, args ...interface{}) {
	sinkLock.Acquire()
	Fprintf(outputSink, format, args...)
	sinkLock.Release()
}

// Fprintf behaves exactly like Printf but it writes the formatted output to
// the specified io.Writer.
func Fprintf(w io.Writer, format string, args ...interface{}) {
	var (
		argIndex  int
		literalAt int
		padLen    int
	)

	for i := 0; i < len(format); i++ {
		if format[i] != '%' {
			continue
		}

		writeLiteral(w, format, literalAt, i)

		padLen = 0
		for i++; i < len(format) && format[i] >= '0' && format[i] <= '9'; i++ {
			padLen = padLen*10 + int(format[i]-'0')
		}

		switch {
		case i == len(format):
			doWrite(w, errNoVerb)
		case format[i] == '%':
			singleByte[0] = '%'
			doWrite(w, singleByte)
		case !isVerb(format[i]):
			doWrite(w, errNoVerb)
		case argIndex >= len(args):
			doWrite(w, errMissingArg)
		default:
			switch format[i] {
			case 'o':
				fmtInt(w, args[argIndex], 8, padLen)
			case 'd':
				fmtInt(w, args[argIndex], 10, padLen)
			case 'x':
				fmtInt(w, args[argIndex], 16, padLen)
			case 's':
				fmtString(w, args[argIndex], padLen)
			case 't':
				fmtBool(w, args[argIndex])
			}
			argIndex++
		}

		literalAt = i + 1
	}

	writeLiteral(w, format, literalAt, len(format))

	for ; argIndex < len(args); argIndex++ {
		doWrite(w, errExtraArg)
	}
}

func isVerb(ch byte) bool {
	return ch == 'd' || ch == 'x' || ch == 'o' || ch == 's' || ch == 't'
}

// writeLiteral emits format[from:to]. Slicing the format string and passing
// it to doWrite triggers a memory allocation so the bytes are copied one at a
// time through singleByte.
func writeLiteral(w io.Writer, format string, from, to int) {
	for ; from < to; from++ {
		singleByte[0] = format[from]
		doWrite(w, singleByte)
	}
}

// fmtBool prints a formatted version of boolean value v.
func fmtBool(w io.Writer, v interface{}) {
	bVal, ok := v.(bool)
	switch {
	case !ok:
		doWrite(w, errWrongArgType)
	case bVal:
		doWrite(w, trueValue)
	default:
		doWrite(w, falseValue)
	}
}

// fmtString prints a formatted version of string or []byte value v, applying
// the padding specified by padLen.
func fmtString(w io.Writer, v interface{}, padLen int) {
	switch castedVal := v.(type) {
	case string:
		fmtRepeat(w, ' ', padLen-len(castedVal))
		writeLiteral(w, castedVal, 0, len(castedVal))
	case []byte:
		fmtRepeat(w, ' ', padLen-len(castedVal))
		doWrite(w, castedVal)
	default:
		doWrite(w, errWrongArgType)
	}
}

// fmtRepeat writes count bytes with value ch.
func fmtRepeat(w io.Writer, ch byte, count int) {
	singleByte[0] = ch
	for i := 0; i < count; i++ {
		doWrite(w, singleByte)
	}
}

// fmtInt prints out a formatted version of v in the requested base, applying
// the padding specified by padLen. All built-in signed and unsigned integer
// types are supported.
func fmtInt(w io.Writer, v interface{}, base uint64, padLen int) {
	var (
		uval     uint64
		negative bool
		padCh    byte = '0'
	)

	if base == 10 {
		padCh = ' '
	}

	if padLen >= maxBufSize {
		padLen = maxBufSize - 1
	}

	switch t := v.(type) {
	case uint8:
		uval = uint64(t)
	case uint16:
		uval = uint64(t)
	case uint32:
		uval = uint64(t)
	case uint64:
		uval = t
	case uint:
		uval = uint64(t)
	case uintptr:
		uval = uint64(t)
	case int8:
		uval, negative = abs(int64(t))
	case int16:
		uval, negative = abs(int64(t))
	case int32:
		uval, negative = abs(int64(t))
	case int64:
		uval, negative = abs(t)
	case int:
		uval, negative = abs(int64(t))
	default:
		doWrite(w, errWrongArgType)
		return
	}

	// Digits are generated right-to-left starting at the end of numFmtBuf.
	pos := len(numFmtBuf)
	for {
		pos--
		digit := byte(uval % base)
		if digit < 10 {
			numFmtBuf[pos] = '0' + digit
		} else {
			numFmtBuf[pos] = 'a' + digit - 10
		}

		if uval /= base; uval == 0 {
			break
		}
	}

	// Zero padding goes between the sign and the digits; space padding
	// goes in front of the sign.
	signLen := 0
	if negative {
		signLen = 1
	}

	if padCh == '0' {
		for len(numFmtBuf)-pos+signLen < padLen {
			pos--
			numFmtBuf[pos] = '0'
		}
	}

	if negative {
		pos--
		numFmtBuf[pos] = '-'
	}

	for len(numFmtBuf)-pos < padLen {
		pos--
		numFmtBuf[pos] = padCh
	}

	doWrite(w, numFmtBuf[pos:])
}

func abs(v int64) (uint64, bool) {
	if v < 0 {
		return uint64(-v), true
	}
	return uint64(v), false
}

// doWrite is a proxy that uses the runtime.noescape hack to hide p from the
// compiler's escape analysis. Without this hack, the compiler cannot properly
// detect that p does not escape (due to the call to the yet unknown outputSink
// io.Writer) and plays it safe by flagging it as escaping. This causes all
// calls to Printf to call runtime.convT2E which triggers a memory allocation
// causing the kernel to crash if a call to Printf is made before the Go
// allocator is initialized.
func doWrite(w io.Writer, p []byte) {
	doRealWrite(w, noEscape(unsafe.Pointer(&p)))
}

func doRealWrite(w io.Writer, bufPtr unsafe.Pointer) {
	p := *(*[]byte)(bufPtr)
	if w != nil {
		w.Write(p)
	} else {
		earlyPrintBuffer.Write(p)
	}
}

// noEscape hides a pointer from escape analysis. This function is copied over
// from runtime/stubs.go
//
//go:nosplit
func noEscape(p unsafe.Pointer) unsafe.Pointer {
	x := uintptr(p)
	return unsafe.Pointer(x ^ 0)
}

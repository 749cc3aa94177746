// Package modelio 提供模型文件 / 样本缓存的逐字段编解码。
//
// 字段按写入顺序依次排列，读写两端必须使用完全一致的顺序。
// 二进制模式下每个字段是定长小端编码（字符串为 uint32 长度前缀）；
// 文本模式下每个字段一行 "name = value"，便于人工查看，读取时会校验字段名。
package modelio

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/rushteam/learnkit/core"
)

// MaxStringLen 限制二进制字符串字段的长度，防止损坏或非模型数据触发超大分配。
const MaxStringLen = 4 << 20

// Scalar 是可以作为单个字段读写的定长类型。
type Scalar interface {
	bool | uint8 | int32 | uint32 | int64 | uint64 | float32 | float64
}

// Writer 顺序写出模型字段。
type Writer struct {
	w    *bufio.Writer
	text bool
	buf  [8]byte
}

// NewWriter 创建 Writer；text 为 true 时使用可读文本模式。
func NewWriter(w io.Writer, text bool) *Writer {
	return &Writer{w: bufio.NewWriter(w), text: text}
}

// Text 返回是否为文本模式。
func (w *Writer) Text() bool { return w.text }

// Flush 把缓冲内容写入底层 io.Writer。
func (w *Writer) Flush() error { return w.w.Flush() }

// Reader 顺序读取模型字段，模式必须与写入端一致。
type Reader struct {
	r    *bufio.Reader
	text bool
	buf  [8]byte
}

// NewReader 创建 Reader。
func NewReader(r io.Reader, text bool) *Reader {
	return &Reader{r: bufio.NewReader(r), text: text}
}

// Text 返回是否为文本模式。
func (r *Reader) Text() bool { return r.text }

// WriteField 写出一个字段，返回写入的字节数。name 只在文本模式下出现在输出中。
func WriteField[T Scalar](w *Writer, v T, name string) (int, error) {
	if w.text {
		return w.writeLine(name, formatScalar(v))
	}
	b := w.buf[:0]
	switch x := any(v).(type) {
	case bool:
		if x {
			b = append(b, 1)
		} else {
			b = append(b, 0)
		}
	case uint8:
		b = append(b, x)
	case int32:
		b = binary.LittleEndian.AppendUint32(b, uint32(x))
	case uint32:
		b = binary.LittleEndian.AppendUint32(b, x)
	case int64:
		b = binary.LittleEndian.AppendUint64(b, uint64(x))
	case uint64:
		b = binary.LittleEndian.AppendUint64(b, x)
	case float32:
		b = binary.LittleEndian.AppendUint32(b, math.Float32bits(x))
	case float64:
		b = binary.LittleEndian.AppendUint64(b, math.Float64bits(x))
	}
	n, err := w.w.Write(b)
	if err != nil {
		return n, fmt.Errorf("write field %s: %w", name, err)
	}
	return n, nil
}

// WriteString 写出一个字符串字段。
func (w *Writer) WriteString(s, name string) (int, error) {
	if w.text {
		return w.writeLine(name, strconv.Quote(s))
	}
	if len(s) > MaxStringLen {
		return 0, tooLong(name, uint64(len(s)))
	}
	n, err := WriteField(w, uint32(len(s)), name+".len")
	if err != nil {
		return n, err
	}
	m, err := w.w.WriteString(s)
	if err != nil {
		return n + m, fmt.Errorf("write field %s: %w", name, err)
	}
	return n + m, nil
}

func (w *Writer) writeLine(name, value string) (int, error) {
	n, err := fmt.Fprintf(w.w, "%s = %s\n", name, value)
	if err != nil {
		return n, fmt.Errorf("write field %s: %w", name, err)
	}
	return n, nil
}

func formatScalar(v any) string {
	switch x := v.(type) {
	case bool:
		return strconv.FormatBool(x)
	case uint8:
		return strconv.FormatUint(uint64(x), 10)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case uint32:
		return strconv.FormatUint(uint64(x), 10)
	case int64:
		return strconv.FormatInt(x, 10)
	case uint64:
		return strconv.FormatUint(x, 10)
	case float32:
		return strconv.FormatFloat(float64(x), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	}
	return ""
}

// ReadField 读取一个字段到 v，返回读取的字节数。
// 文本模式下 name 必须与写入时的字段名一致。
func ReadField[T Scalar](r *Reader, v *T, name string) (int, error) {
	if r.text {
		return r.readTextField(v, name)
	}
	var size int
	switch any(*v).(type) {
	case bool, uint8:
		size = 1
	case int32, uint32, float32:
		size = 4
	default:
		size = 8
	}
	b := r.buf[:size]
	n, err := io.ReadFull(r.r, b)
	if err != nil {
		return n, truncated(name, err)
	}
	switch p := any(v).(type) {
	case *bool:
		*p = b[0] != 0
	case *uint8:
		*p = b[0]
	case *int32:
		*p = int32(binary.LittleEndian.Uint32(b))
	case *uint32:
		*p = binary.LittleEndian.Uint32(b)
	case *int64:
		*p = int64(binary.LittleEndian.Uint64(b))
	case *uint64:
		*p = binary.LittleEndian.Uint64(b)
	case *float32:
		*p = math.Float32frombits(binary.LittleEndian.Uint32(b))
	case *float64:
		*p = math.Float64frombits(binary.LittleEndian.Uint64(b))
	}
	return n, nil
}

// ReadString 读取一个字符串字段。
func (r *Reader) ReadString(name string) (string, int, error) {
	if r.text {
		value, n, err := r.readLine(name)
		if err != nil {
			return "", n, err
		}
		s, err := strconv.Unquote(value)
		if err != nil {
			return "", n, malformed(name, value, err)
		}
		return s, n, nil
	}
	var size uint32
	n, err := ReadField(r, &size, name+".len")
	if err != nil {
		return "", n, err
	}
	if size > MaxStringLen {
		return "", n, tooLong(name, uint64(size))
	}
	b := make([]byte, size)
	m, err := io.ReadFull(r.r, b)
	if err != nil {
		return "", n + m, truncated(name, err)
	}
	return string(b), n + m, nil
}

func (r *Reader) readLine(name string) (string, int, error) {
	line, err := r.r.ReadString('\n')
	n := len(line)
	if err != nil && !(err == io.EOF && line != "") {
		return "", n, truncated(name, err)
	}
	line = strings.TrimSuffix(line, "\n")
	key, value, ok := strings.Cut(line, " = ")
	if !ok {
		return "", n, malformed(name, line, nil)
	}
	if key != name {
		return "", n, core.Errorf(core.ModuleModelIO, core.ErrorCodeInvalidInput,
			"modelio: expected field %q, found %q", name, key)
	}
	return value, n, nil
}

func (r *Reader) readTextField(v any, name string) (int, error) {
	value, n, err := r.readLine(name)
	if err != nil {
		return n, err
	}
	switch p := v.(type) {
	case *bool:
		*p, err = strconv.ParseBool(value)
	case *uint8:
		var u uint64
		u, err = strconv.ParseUint(value, 10, 8)
		*p = uint8(u)
	case *int32:
		var i int64
		i, err = strconv.ParseInt(value, 10, 32)
		*p = int32(i)
	case *uint32:
		var u uint64
		u, err = strconv.ParseUint(value, 10, 32)
		*p = uint32(u)
	case *int64:
		*p, err = strconv.ParseInt(value, 10, 64)
	case *uint64:
		*p, err = strconv.ParseUint(value, 10, 64)
	case *float32:
		var f float64
		f, err = strconv.ParseFloat(value, 32)
		*p = float32(f)
	case *float64:
		*p, err = strconv.ParseFloat(value, 64)
	}
	if err != nil {
		return n, malformed(name, value, err)
	}
	return n, nil
}

func truncated(name string, err error) error {
	return fmt.Errorf("%w: %w", core.Errorf(core.ModuleModelIO, core.ErrorCodeInvalidInput,
		"modelio: truncated field %s", name), err)
}

func tooLong(name string, size uint64) error {
	return core.Errorf(core.ModuleModelIO, core.ErrorCodeInvalidInput,
		"modelio: field %s has length %d, limit %d", name, size, MaxStringLen)
}

func malformed(name, value string, err error) error {
	if err == nil {
		return core.Errorf(core.ModuleModelIO, core.ErrorCodeInvalidInput,
			"modelio: malformed field %s: %q", name, value)
	}
	return core.Errorf(core.ModuleModelIO, core.ErrorCodeInvalidInput,
		"modelio: malformed field %s: %q: %v", name, value, err)
}

package protocol

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/legamerdc/tio/internal/ring"
)

// 行协议：
//   请求  "QUERY TIME ORDER\n"（服务端大小写不敏感）
//   应答  当前时间（time.UnixDate 格式）或 "BAD ORDER"，以 '\n' 结尾
// 行尾的 '\r' 会被去掉。

const (
	QueryTimeOrder = "QUERY TIME ORDER"
	BadOrder       = "BAD ORDER"
	Delimiter      = '\n'
	TimeLayout     = time.UnixDate
)

var (
	ErrLineTooLong = errors.New("protocol: line too long")
	ErrInvalidUTF8 = errors.New("protocol: line is not valid utf-8")
)

// IsQuery 报告 order 是否为时间查询请求。
func IsQuery(order string) bool { return strings.EqualFold(order, QueryTimeOrder) }

// Answer 计算 order 的应答文本（不含分隔符）。
func Answer(order string, now time.Time) string {
	if IsQuery(order) {
		return now.Format(TimeLayout)
	}
	return BadOrder
}

// ParseTime 解析 Answer 生成的时间文本。
func ParseTime(s string) (time.Time, error) { return time.Parse(TimeLayout, s) }

// Encode 为 msg 追加分隔符。
func Encode(msg string) []byte {
	out := make([]byte, 0, len(msg)+1)
	out = append(out, msg...)
	return append(out, Delimiter)
}

// Decoder 跨多次读取累积字节，按行切分。
type Decoder struct {
	buf     *ring.Buffer
	scanned int // 已确认不含分隔符的前缀长度
}

// NewDecoder 返回解码器；maxLine>0 时限制单行（含未结束部分）的长度。
func NewDecoder(maxLine int) *Decoder {
	return &Decoder{buf: ring.New(1024, maxLine)}
}

// Feed 追加一次读取到的数据。
func (d *Decoder) Feed(p []byte) error {
	if _, err := d.buf.Write(p); err != nil {
		if errors.Is(err, ring.ErrTooLarge) {
			return ErrLineTooLong
		}
		return err
	}
	return nil
}

// Next 取出下一条完整的行；ok 为 false 表示还需要更多数据。
func (d *Decoder) Next() (line string, ok bool, err error) {
	i := d.buf.IndexByteFrom(Delimiter, d.scanned)
	if i < 0 {
		d.scanned = d.buf.Len()
		return "", false, nil
	}
	d.scanned = 0
	b := d.buf.Peek(i + 1)
	line = string(b[:i])
	d.buf.Discard(i + 1)
	line = strings.TrimSuffix(line, "\r")
	if !utf8.ValidString(line) {
		return "", false, ErrInvalidUTF8
	}
	return line, true, nil
}

// Buffered 返回尚未成行的字节数。
func (d *Decoder) Buffered() int { return d.buf.Len() }

// Rest 取出并清空未以分隔符结尾的剩余数据，用于对端关闭时的收尾。
func (d *Decoder) Rest() (string, error) {
	n := d.buf.Len()
	if n == 0 {
		return "", nil
	}
	s := strings.TrimSuffix(string(d.buf.Peek(n)), "\r")
	d.buf.Reset()
	d.scanned = 0
	if !utf8.ValidString(s) {
		return "", ErrInvalidUTF8
	}
	return s, nil
}

// Frame 是一条待发送消息的写缓冲：position 为已写出的字节数，limit 为消息长度。
// 始终满足 0 <= position <= limit <= cap。
type Frame struct {
	buf []byte
	pos int
}

func NewFrame(b []byte) *Frame { return &Frame{buf: b} }

func (f *Frame) Position() int { return f.pos }

func (f *Frame) Limit() int { return len(f.buf) }

func (f *Frame) Remaining() int { return len(f.buf) - f.pos }

// Bytes 返回尚未写出的部分。
func (f *Frame) Bytes() []byte { return f.buf[f.pos:] }

// Advance 记录写出了 n 字节。
func (f *Frame) Advance(n int) {
	if n < 0 || n > f.Remaining() {
		panic("protocol: frame advance out of range")
	}
	f.pos += n
}

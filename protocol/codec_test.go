package protocol

import (
	"strings"
	"testing"
	"time"
)

func TestAnswer(t *testing.T) {
	now := time.Date(2024, time.March, 5, 14, 7, 9, 0, time.UTC)
	cases := []struct {
		order string
		want  string
	}{
		{"QUERY TIME ORDER", "Tue Mar  5 14:07:09 UTC 2024"},
		{"query time order", "Tue Mar  5 14:07:09 UTC 2024"},
		{"Query Time Order", "Tue Mar  5 14:07:09 UTC 2024"},
		{"hello", BadOrder},
		{"", BadOrder},
		{"PING", BadOrder},
		{"QUERY TIME ORDER!", BadOrder},
		{"QUERY TIME ORDER ", BadOrder},
		{" QUERY TIME ORDER", BadOrder},
	}
	for _, c := range cases {
		if got := Answer(c.order, now); got != c.want {
			t.Errorf("Answer(%q) = %q, want %q", c.order, got, c.want)
		}
	}
}

func TestAnswerIsParseable(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	s := Answer(QueryTimeOrder, now)
	if s == "" || s == BadOrder {
		t.Fatalf("unexpected answer %q", s)
	}
	got, err := ParseTime(s)
	if err != nil {
		t.Fatalf("ParseTime(%q): %v", s, err)
	}
	if got.Unix() != now.Unix() {
		t.Fatalf("round trip = %v, want %v", got, now)
	}
}

func TestEncode(t *testing.T) {
	if got := string(Encode(BadOrder)); got != "BAD ORDER\n" {
		t.Fatalf("Encode = %q", got)
	}
}

func TestDecoderReassemblesSplitLine(t *testing.T) {
	d := NewDecoder(0)
	if err := d.Feed([]byte("QUERY TIME ")); err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if _, ok, err := d.Next(); ok || err != nil {
		t.Fatalf("half line must not decode: ok=%v err=%v", ok, err)
	}
	if err := d.Feed([]byte("ORDER\n")); err != nil {
		t.Fatalf("Feed: %v", err)
	}
	line, ok, err := d.Next()
	if err != nil || !ok {
		t.Fatalf("Next: ok=%v err=%v", ok, err)
	}
	if !IsQuery(line) {
		t.Fatalf("line = %q, want the query", line)
	}
	if d.Buffered() != 0 {
		t.Fatalf("Buffered = %d, want 0", d.Buffered())
	}
}

func TestDecoderMultipleLinesAndCRLF(t *testing.T) {
	d := NewDecoder(0)
	d.Feed([]byte("a\r\nb\n\nc"))
	var got []string
	for {
		line, ok, err := d.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if !ok {
			break
		}
		got = append(got, line)
	}
	if strings.Join(got, ",") != "a,b," {
		t.Fatalf("lines = %q", got)
	}
	rest, err := d.Rest()
	if err != nil || rest != "c" {
		t.Fatalf("Rest = %q, %v", rest, err)
	}
	if d.Buffered() != 0 {
		t.Fatalf("Rest must drain the buffer")
	}
}

func TestDecoderLimits(t *testing.T) {
	d := NewDecoder(8)
	if err := d.Feed([]byte("12345678")); err != nil {
		t.Fatalf("Feed within limit: %v", err)
	}
	if err := d.Feed([]byte("9")); err != ErrLineTooLong {
		t.Fatalf("err = %v, want ErrLineTooLong", err)
	}
}

func TestDecoderLargeLineUnbounded(t *testing.T) {
	d := NewDecoder(0)
	big := strings.Repeat("x", 10000)
	for i := 0; i < len(big); i += 1024 {
		end := min(i+1024, len(big))
		if err := d.Feed([]byte(big[i:end])); err != nil {
			t.Fatalf("Feed: %v", err)
		}
	}
	d.Feed([]byte{Delimiter})
	line, ok, err := d.Next()
	if err != nil || !ok || line != big {
		t.Fatalf("large line not decoded: ok=%v err=%v len=%d", ok, err, len(line))
	}
}

// 半包逐块到达时，每次 Next 只扫描新到的字节。
func TestDecoderScansIncrementally(t *testing.T) {
	d := NewDecoder(1 << 20)
	chunk := []byte(strings.Repeat("x", 1024))
	for i := 0; i < 1023; i++ {
		before := d.scanned
		if err := d.Feed(chunk); err != nil {
			t.Fatalf("Feed %d: %v", i, err)
		}
		if _, ok, err := d.Next(); ok || err != nil {
			t.Fatalf("Next %d: ok=%v err=%v", i, ok, err)
		}
		if before != i*len(chunk) || d.scanned != d.Buffered() {
			t.Fatalf("chunk %d: scanned %d -> %d, buffered %d", i, before, d.scanned, d.Buffered())
		}
	}
	d.Feed([]byte("\nQUERY TIME ORDER\n"))
	line, ok, err := d.Next()
	if err != nil || !ok || len(line) != 1023*1024 {
		t.Fatalf("long line: ok=%v err=%v len=%d", ok, err, len(line))
	}
	if d.scanned != 0 {
		t.Fatalf("scanned = %d after a complete line, want 0", d.scanned)
	}
	if line, ok, _ := d.Next(); !ok || !IsQuery(line) {
		t.Fatalf("second line = %q, ok=%v", line, ok)
	}
}

func TestDecoderInvalidUTF8(t *testing.T) {
	d := NewDecoder(0)
	d.Feed([]byte{0xff, 0xfe, '\n'})
	if _, _, err := d.Next(); err != ErrInvalidUTF8 {
		t.Fatalf("err = %v, want ErrInvalidUTF8", err)
	}
}

func TestFrameCursors(t *testing.T) {
	f := NewFrame(Encode("abc"))
	if f.Limit() != 4 || f.Remaining() != 4 || f.Position() != 0 {
		t.Fatalf("fresh frame: pos=%d limit=%d remaining=%d", f.Position(), f.Limit(), f.Remaining())
	}
	f.Advance(3)
	if string(f.Bytes()) != "\n" || f.Remaining() != 1 {
		t.Fatalf("after partial write: %q remaining=%d", f.Bytes(), f.Remaining())
	}
	f.Advance(1)
	if f.Remaining() != 0 {
		t.Fatalf("Remaining = %d, want 0", f.Remaining())
	}
	defer func() {
		if recover() == nil {
			t.Fatalf("Advance past limit must panic")
		}
	}()
	f.Advance(1)
}

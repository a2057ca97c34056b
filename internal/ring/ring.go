package ring

import (
	"bytes"
	"errors"
)

var ErrTooLarge = errors.New("ring: write too large")

// Buffer 是按 2 的幂扩容的环形字节缓冲，用于跨多次读累积半包。
// 不做并发控制，只在事件循环 goroutine 中使用。
type Buffer struct {
	buf      []byte
	mask     int
	readPos  int
	writePos int
	max      int // 0 表示不限
}

// New 返回初始容量为 capacity（向上取 2 的幂）的缓冲；max>0 时限制 Len 的上限。
func New(capacity, max int) *Buffer {
	c := roundPow2(capacity)
	return &Buffer{buf: make([]byte, c), mask: c - 1, max: max}
}

func roundPow2(n int) int {
	c := 1
	for c < n {
		c <<= 1
	}
	return c
}

func (b *Buffer) Cap() int { return len(b.buf) }

func (b *Buffer) Len() int { return b.writePos - b.readPos }

func (b *Buffer) Free() int { return b.Cap() - b.Len() }

// Write 追加数据，空间不足时扩容；超过 max 返回 ErrTooLarge 且不写入。
func (b *Buffer) Write(p []byte) (int, error) {
	n := len(p)
	if b.max > 0 && b.Len()+n > b.max {
		return 0, ErrTooLarge
	}
	if n > b.Free() {
		b.grow(b.Len() + n)
	}
	start := b.writePos & b.mask
	end := start + n
	if end <= len(b.buf) {
		copy(b.buf[start:end], p)
	} else {
		l := len(b.buf) - start
		copy(b.buf[start:], p[:l])
		copy(b.buf[:end-l], p[l:])
	}
	b.writePos += n
	return n, nil
}

// grow 把已有数据线性化到新数组开头。
func (b *Buffer) grow(need int) {
	c := roundPow2(need)
	nb := make([]byte, c)
	ln := b.Len()
	copy(nb, b.Peek(ln))
	b.buf = nb
	b.mask = c - 1
	b.readPos = 0
	b.writePos = ln
}

// Peek 读取最多 n 字节但不前进读指针。
func (b *Buffer) Peek(n int) []byte {
	if n <= 0 {
		return nil
	}
	ln := b.Len()
	if n > ln {
		n = ln
	}
	start := b.readPos & b.mask
	end := start + n
	if end <= len(b.buf) {
		return b.buf[start:end]
	}
	// 分段视图需要拷贝为连续切片
	buf := make([]byte, n)
	l := len(b.buf) - start
	copy(buf[:l], b.buf[start:])
	copy(buf[l:], b.buf[:end-l])
	return buf
}

// IndexByte 返回 c 在未读数据中的偏移，不存在返回 -1。
func (b *Buffer) IndexByte(c byte) int { return b.IndexByteFrom(c, 0) }

// IndexByteFrom 从未读数据的偏移 from 开始查找 c，返回相对读指针的偏移。
// 调用方记住已扫描的长度即可让半包的累计查找保持线性。
func (b *Buffer) IndexByteFrom(c byte, from int) int {
	ln := b.Len()
	if from < 0 {
		from = 0
	}
	if from >= ln {
		return -1
	}
	start := (b.readPos + from) & b.mask
	n := ln - from
	if start+n <= len(b.buf) {
		if i := bytes.IndexByte(b.buf[start:start+n], c); i >= 0 {
			return from + i
		}
		return -1
	}
	head := b.buf[start:]
	if i := bytes.IndexByte(head, c); i >= 0 {
		return from + i
	}
	if i := bytes.IndexByte(b.buf[:n-len(head)], c); i >= 0 {
		return from + len(head) + i
	}
	return -1
}

// Discard 前进读指针。
func (b *Buffer) Discard(n int) int {
	ln := b.Len()
	if n > ln {
		n = ln
	}
	b.readPos += n
	if b.readPos == b.writePos {
		b.readPos, b.writePos = 0, 0
	}
	return n
}

// Reset 丢弃全部未读数据。
func (b *Buffer) Reset() { b.readPos, b.writePos = 0, 0 }

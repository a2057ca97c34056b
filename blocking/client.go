package blocking

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"time"

	"github.com/legamerdc/tio/protocol"
)

var ErrClosedBeforeResponse = errors.New("blocking: connection closed before a response arrived")

// Query 发送一条查询并阻塞等待应答行。ctx 取消会中断连接与读取。
func Query(ctx context.Context, addr string) (string, error) {
	var d net.Dialer
	c, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return "", err
	}
	defer c.Close()
	stop := context.AfterFunc(ctx, func() { c.SetDeadline(time.Unix(1, 0)) })
	defer stop()

	if _, err := c.Write(protocol.Encode(protocol.QueryTimeOrder)); err != nil {
		return "", ctxErr(ctx, err)
	}
	line, err := bufio.NewReader(c).ReadString(protocol.Delimiter)
	if err != nil {
		if errors.Is(err, io.EOF) {
			if line == "" {
				return "", ErrClosedBeforeResponse
			}
			return strings.TrimSuffix(line, "\r"), nil
		}
		return "", ctxErr(ctx, err)
	}
	return strings.TrimSuffix(strings.TrimSuffix(line, "\n"), "\r"), nil
}

func ctxErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

package sockserv

import (
	"context"
	"fmt"
	"net"

	"github.com/dreamware/ticketd/internal/codec"
)

// Call performs one request/response exchange with the server at addr
// (same syntax as Listen). The context bounds dialing and the exchange.
func Call(ctx context.Context, addr string, req Request) (Response, error) {
	network, address := SplitAddr(addr)

	var d net.Dialer
	conn, err := d.DialContext(ctx, network, address)
	if err != nil {
		return Response{}, fmt.Errorf("dialing %s: %w", addr, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	if err := codec.NewEncoder(conn).Encode(req); err != nil {
		return Response{}, fmt.Errorf("writing request: %w", err)
	}

	var resp Response
	if err := codec.NewDecoder(conn).Decode(&resp); err != nil {
		return Response{}, fmt.Errorf("reading response: %w", err)
	}
	return resp, nil
}

package commands

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/filegrid/filegrid/pkg/wire"
)

const dialTimeout = 5 * time.Second

// call opens a connection to addr, writes req, reads exactly one reply,
// and closes the connection: one request, one response, no kept-open
// session. The write session and STREAM open their own connections since
// they exchange more than one reply.
func call(addr string, req any) (wire.Message, error) {
	conn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		return wire.Message{}, fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()

	w := wire.NewWriter(conn)
	r := wire.NewReader(conn)

	if err := w.WriteMessage(req); err != nil {
		return wire.Message{}, fmt.Errorf("send request: %w", err)
	}
	msg, err := r.ReadMessage()
	if err != nil {
		return wire.Message{}, fmt.Errorf("read reply: %w", err)
	}
	return msg, nil
}

// callNM issues req against the --nm address.
func callNM(req any) (wire.Message, error) {
	return call(Flags.NMAddr, req)
}

// route asks the NM for the SS that owns file via routeOp, returning the
// decoded route response (ssAddr builds the dialable address from it).
func route(routeOp, file string) (wire.RouteResponse, error) {
	msg, err := callNM(wire.FileOpRequest{Op: routeOp, File: file, User: Flags.User})
	if err != nil {
		return wire.RouteResponse{}, err
	}
	var resp wire.RouteResponse
	if err := msg.Decode(&resp); err != nil {
		return wire.RouteResponse{}, fmt.Errorf("decode route response: %w", err)
	}
	if resp.Status != wire.StatusOK {
		return resp, fmt.Errorf("%s: %s", routeOp, resp.Msg)
	}
	return resp, nil
}

func ssAddr(resp wire.RouteResponse) string {
	return net.JoinHostPort(resp.Host, fmt.Sprint(resp.ClientPort))
}

// statusErr turns a non-OK envelope into an error, or nil on success.
func statusErr(op string, status int, msg string) error {
	if status == wire.StatusOK {
		return nil
	}
	if msg == "" {
		msg = wire.StatusText(status)
	}
	return fmt.Errorf("%s failed: %s", op, msg)
}

// splitDelim splits a ";;"- or ","-delimited wire field into a clean slice,
// dropping empty entries produced by an empty field.
func splitDelim(s, sep string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, sep)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

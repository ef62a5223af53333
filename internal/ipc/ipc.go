// Package ipc is the local control surface: a unix socket speaking one JSON
// request and one JSON response per connection. buddy-ctl is the only
// intended client.
package ipc

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"time"
)

const DefaultSocketPath = "/tmp/buddy.sock"

type Request struct {
	Cmd  string `json:"cmd"`
	Text string `json:"text,omitempty"`
}

type Response struct {
	OK     bool            `json:"ok"`
	Error  string          `json:"error,omitempty"`
	Status json.RawMessage `json:"status,omitempty"`
}

func Ok() Response {
	return Response{OK: true}
}

func Fail(format string, args ...any) Response {
	return Response{OK: false, Error: fmt.Sprintf(format, args...)}
}

func OkStatus(v any) Response {
	data, err := json.Marshal(v)
	if err != nil {
		return Fail("marshal status: %v", err)
	}
	return Response{OK: true, Status: data}
}

type Server struct {
	ln net.Listener
}

// StartServer listens on path and serves each connection with handler.
// A stale socket file from a previous run is removed first.
func StartServer(path string, handler func(Request) Response) (*Server, error) {
	os.Remove(path)

	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", path, err)
	}

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go serveConn(conn, handler)
		}
	}()

	return &Server{ln: ln}, nil
}

func (s *Server) Close() error {
	return s.ln.Close()
}

func serveConn(conn net.Conn, handler func(Request) Response) {
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(10 * time.Second))

	var req Request
	if err := json.NewDecoder(conn).Decode(&req); err != nil {
		json.NewEncoder(conn).Encode(Fail("bad request: %v", err))
		return
	}

	json.NewEncoder(conn).Encode(handler(req))
}

// Send connects to the daemon, sends one request and reads the response.
func Send(path string, req Request) (Response, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return Response{}, fmt.Errorf("dial %s: %w", path, err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(10 * time.Second))

	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return Response{}, fmt.Errorf("send request: %w", err)
	}

	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return Response{}, fmt.Errorf("read response: %w", err)
	}
	return resp, nil
}

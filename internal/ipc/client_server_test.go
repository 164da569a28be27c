package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSendRoundTrip(t *testing.T) {
	runtimeDir := t.TempDir()
	socketPath := filepath.Join(runtimeDir, "viva.sock")

	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serveDone := make(chan error, 1)
	go func() {
		serveDone <- Serve(ctx, listener, HandlerFunc(func(_ context.Context, req Request) Response {
			require.Equal(t, "status", req.Command)
			return Response{OK: true, State: "active", Message: "ok"}
		}))
	}()

	resp, err := Send(context.Background(), socketPath, Request{Command: "status"}, 200*time.Millisecond)
	require.NoError(t, err)
	require.True(t, resp.OK)
	require.Equal(t, "active", resp.State)
	require.Equal(t, "ok", resp.Message)

	cancel()
	require.NoError(t, <-serveDone)
}

func TestSendDecodeResponseError(t *testing.T) {
	runtimeDir := t.TempDir()
	socketPath := filepath.Join(runtimeDir, "viva.sock")

	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = listener.Close() })

	go func() {
		conn, acceptErr := listener.Accept()
		if acceptErr != nil {
			return
		}
		defer conn.Close()

		reader := bufio.NewReader(conn)
		_, _ = reader.ReadBytes('\n')
		_, _ = conn.Write([]byte("not-json\n"))
	}()

	_, err = Send(context.Background(), socketPath, Request{Command: "status"}, 200*time.Millisecond)
	require.Error(t, err)
	require.Contains(t, err.Error(), "decode response")
}

func TestSendReadResponseError(t *testing.T) {
	runtimeDir := t.TempDir()
	socketPath := filepath.Join(runtimeDir, "viva.sock")

	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = listener.Close() })

	go func() {
		conn, acceptErr := listener.Accept()
		if acceptErr != nil {
			return
		}
		_ = conn.Close()
	}()

	_, err = Send(context.Background(), socketPath, Request{Command: "status"}, 200*time.Millisecond)
	require.Error(t, err)
	require.Contains(t, err.Error(), "read response")
}

func TestServeDecodeRequestErrorResponse(t *testing.T) {
	runtimeDir := t.TempDir()
	socketPath := filepath.Join(runtimeDir, "viva.sock")

	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	serveDone := make(chan error, 1)
	go func() {
		serveDone <- Serve(ctx, listener, HandlerFunc(func(_ context.Context, _ Request) Response {
			return Response{OK: true}
		}))
	}()

	conn, err := net.Dial("unix", socketPath)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("not-json\n"))
	require.NoError(t, err)

	line, err := bufio.NewReader(conn).ReadBytes('\n')
	require.NoError(t, err)

	var resp Response
	require.NoError(t, json.Unmarshal(line, &resp))
	require.False(t, resp.OK)
	require.Contains(t, resp.Error, "decode request")

	cancel()
	require.NoError(t, <-serveDone)
}

func TestProbe(t *testing.T) {
	runtimeDir := t.TempDir()
	socketPath := filepath.Join(runtimeDir, "viva.sock")

	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	serveDone := make(chan error, 1)
	go func() {
		serveDone <- Serve(ctx, listener, HandlerFunc(func(_ context.Context, req Request) Response {
			if req.Command == "status" {
				return Response{OK: true, State: "idle"}
			}
			return Response{OK: false, Error: "bad"}
		}))
	}()

	alive, probeErr := Probe(context.Background(), socketPath, 200*time.Millisecond)
	require.NoError(t, probeErr)
	require.True(t, alive)

	cancel()
	require.NoError(t, <-serveDone)

	alive, probeErr = Probe(context.Background(), socketPath, 100*time.Millisecond)
	require.NoError(t, probeErr)
	require.False(t, alive)
}

func TestStatusResponseCarriesTurnFlags(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "viva.sock")

	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	serveDone := make(chan error, 1)
	go func() {
		serveDone <- Serve(ctx, listener, HandlerFunc(func(_ context.Context, _ Request) Response {
			return Response{OK: true, State: "active", SessionID: "sess-1", Connected: true, MicrophoneLive: true, AISpeaking: true}
		}))
	}()

	resp, err := Send(context.Background(), socketPath, Request{Command: CommandStatus}, 200*time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, "sess-1", resp.SessionID)
	require.Equal(t, "interviewer", resp.Speaker())

	cancel()
	require.NoError(t, <-serveDone)
}

func TestResponseSpeaker(t *testing.T) {
	tests := []struct {
		name string
		resp Response
		want string
	}{
		{name: "disconnected", resp: Response{MicrophoneLive: true, AISpeaking: true}, want: "none"},
		{name: "interviewer", resp: Response{Connected: true, MicrophoneLive: true, AISpeaking: true}, want: "interviewer"},
		{name: "candidate", resp: Response{Connected: true, MicrophoneLive: true}, want: "candidate"},
		{name: "muted", resp: Response{Connected: true}, want: "none"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, tc.resp.Speaker())
		})
	}
}

func TestServeOneValidatesRequests(t *testing.T) {
	echo := HandlerFunc(func(_ context.Context, req Request) Response {
		return Response{OK: true, Message: req.Command}
	})

	tests := []struct {
		name    string
		input   string
		wantOK  bool
		wantMsg string
		wantErr string
	}{
		{name: "trims command", input: `{"command":" status "}` + "\n", wantOK: true, wantMsg: "status"},
		{name: "missing command", input: `{}` + "\n", wantErr: "missing command"},
		{name: "no newline", input: `{"command":"stop"}`, wantErr: "read request"},
		{name: "oversized", input: `{"command":"` + strings.Repeat("x", maxRequestBytes) + `"}` + "\n", wantErr: "exceeds"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp := serveOne(context.Background(), strings.NewReader(tc.input), echo)
			require.Equal(t, tc.wantOK, resp.OK)
			if tc.wantErr != "" {
				require.Contains(t, resp.Error, tc.wantErr)
				return
			}
			require.Equal(t, tc.wantMsg, resp.Message)
		})
	}
}

func TestServeReturnsWhenClientStaysSilent(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "viva.sock")

	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	serveDone := make(chan error, 1)
	go func() {
		serveDone <- Serve(ctx, listener, HandlerFunc(func(context.Context, Request) Response {
			return Response{OK: true}
		}))
	}()

	conn, err := net.Dial("unix", socketPath)
	require.NoError(t, err)
	defer conn.Close()

	cancel()
	select {
	case err := <-serveDone:
		require.NoError(t, err)
	case <-time.After(connTimeout + time.Second):
		t.Fatal("Serve did not return after a silent client")
	}
}

func TestIsUnreachable(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "absent.sock")
	_, err := Send(context.Background(), missing, Request{Command: CommandStatus}, 50*time.Millisecond)
	require.Error(t, err)
	require.True(t, IsUnreachable(err))

	require.False(t, IsUnreachable(nil))
	require.False(t, IsUnreachable(errors.New("decode status response: bad")))
	require.True(t, IsUnreachable(fmt.Errorf("dial: %w", syscall.ECONNREFUSED)))
}

package ipc

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"strings"
	"time"
)

const (
	dialTimeout = 300 * time.Millisecond
	callTimeout = 120 * time.Second
)

// Detect scans the port range for a resident instance. Returns the port
// and true when one answered the ping.
func Detect() (int, bool) {
	start, end := portRange()
	for port := start; port <= end; port++ {
		if pingPort(port) {
			return port, true
		}
	}
	return 0, false
}

func pingPort(port int) bool {
	conn, err := net.DialTimeout("tcp", fmt.Sprintf("%s:%d", residentHost, port), dialTimeout)
	if err != nil {
		return false
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(dialTimeout))

	if _, err := fmt.Fprintf(conn, "%s\n", pingRequest); err != nil {
		return false
	}
	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		return false
	}
	return strings.TrimSpace(line) == pongResponse
}

// Call sends one operation to the resident on the given port and waits
// for its envelope. Analysis ops can run long, so the deadline is generous.
func Call(port int, req Request) (Response, error) {
	conn, err := net.DialTimeout("tcp", fmt.Sprintf("%s:%d", residentHost, port), dialTimeout)
	if err != nil {
		return Response{}, fmt.Errorf("dial resident: %w", err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(callTimeout))

	data, err := json.Marshal(req)
	if err != nil {
		return Response{}, fmt.Errorf("encode request: %w", err)
	}
	if _, err := conn.Write(append(data, '\n')); err != nil {
		return Response{}, fmt.Errorf("send request: %w", err)
	}

	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		return Response{}, fmt.Errorf("read response: %w", err)
	}
	var resp Response
	if err := json.Unmarshal([]byte(strings.TrimSpace(line)), &resp); err != nil {
		return Response{}, fmt.Errorf("decode response: %w", err)
	}
	return resp, nil
}

package replication

import (
	"bufio"
	"fmt"
	"net"
	"strconv"

	"github.com/alwaysvivek/redis-go/internal/resp"
)

// MasterConn is an established, handshake-completed connection to a
// master server, ready to be read as a replication stream.
type MasterConn struct {
	Conn   net.Conn
	Reader *bufio.Reader
}

// DialAndHandshake connects to host:port and performs the replica side
// of the PSYNC handshake: PING, REPLCONF listening-port, REPLCONF capa
// psync2, PSYNC ? -1, then reads the FULLRESYNC line and the RDB bulk
// payload that follows it.
func DialAndHandshake(host string, port, listenPort int) (*MasterConn, []byte, error) {
	addr := fmt.Sprintf("%s:%d", host, port)
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, nil, fmt.Errorf("replication: dial master %s: %w", addr, err)
	}

	r := bufio.NewReader(conn)

	if err := sendAndExpectSimple(conn, r, []string{"PING"}); err != nil {
		conn.Close()
		return nil, nil, err
	}
	if err := sendAndExpectSimple(conn, r, []string{"REPLCONF", "listening-port", strconv.Itoa(listenPort)}); err != nil {
		conn.Close()
		return nil, nil, err
	}
	if err := sendAndExpectSimple(conn, r, []string{"REPLCONF", "capa", "psync2"}); err != nil {
		conn.Close()
		return nil, nil, err
	}

	if _, err := conn.Write(resp.EncodeCommand([]string{"PSYNC", "?", "-1"})); err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("replication: send PSYNC: %w", err)
	}
	if _, err := r.ReadString('\n'); err != nil { // +FULLRESYNC <replid> <offset>\r\n
		conn.Close()
		return nil, nil, fmt.Errorf("replication: read FULLRESYNC: %w", err)
	}

	payload, err := readRDBBulk(r)
	if err != nil {
		conn.Close()
		return nil, nil, err
	}

	return &MasterConn{Conn: conn, Reader: r}, payload, nil
}

func sendAndExpectSimple(conn net.Conn, r *bufio.Reader, args []string) error {
	if _, err := conn.Write(resp.EncodeCommand(args)); err != nil {
		return fmt.Errorf("replication: send %v: %w", args, err)
	}
	line, err := r.ReadString('\n')
	if err != nil {
		return fmt.Errorf("replication: read reply to %v: %w", args, err)
	}
	if len(line) == 0 || (line[0] != '+' && line[0] != '-') {
		return fmt.Errorf("replication: unexpected reply to %v: %q", args, line)
	}
	return nil
}

// readRDBBulk reads the raw bulk-string-framed RDB payload that
// follows +FULLRESYNC: a "$<len>\r\n" header with no trailing CRLF
// after the payload bytes themselves.
func readRDBBulk(r *bufio.Reader) ([]byte, error) {
	header, err := r.ReadString('\n')
	if err != nil {
		return nil, fmt.Errorf("replication: read RDB bulk header: %w", err)
	}
	if len(header) < 2 || header[0] != '$' {
		return nil, fmt.Errorf("replication: malformed RDB bulk header: %q", header)
	}
	n, err := strconv.Atoi(trimCRLF(header[1:]))
	if err != nil {
		return nil, fmt.Errorf("replication: bad RDB bulk length: %q", header)
	}
	buf := make([]byte, n)
	if _, err := readFull(r, buf); err != nil {
		return nil, fmt.Errorf("replication: read RDB bulk payload: %w", err)
	}
	return buf, nil
}

func readFull(r *bufio.Reader, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func trimCRLF(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}

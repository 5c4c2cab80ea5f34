package resp

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestReadCommand_Array(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"simple PING", "*1\r\n$4\r\nPING\r\n", []string{"PING"}},
		{"GET command", "*2\r\n$3\r\nGET\r\n$6\r\nmykey1\r\n", []string{"GET", "mykey1"}},
		{"SET with value", "*3\r\n$3\r\nSET\r\n$5\r\nmykey\r\n$7\r\nmyvalue\r\n", []string{"SET", "mykey", "myvalue"}},
		{"empty array", "*0\r\n", nil},
		{"null array", "*-1\r\n", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := bufio.NewReader(strings.NewReader(tt.input))
			got, err := ReadCommand(r)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("len = %d, want %d", len(got), len(tt.want))
			}
			for i, want := range tt.want {
				if string(got[i]) != want {
					t.Errorf("arg[%d] = %q, want %q", i, string(got[i]), want)
				}
			}
		})
	}
}

func TestReadCommand_Inline(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"simple PING", "PING\r\n", []string{"PING"}},
		{"inline with args", "GET mykey\r\n", []string{"GET", "mykey"}},
		{"empty line", "\r\n", nil},
		{"whitespace only", "   \r\n", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := bufio.NewReader(strings.NewReader(tt.input))
			got, err := ReadCommand(r)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("len = %d, want %d", len(got), len(tt.want))
			}
			for i, want := range tt.want {
				if string(got[i]) != want {
					t.Errorf("arg[%d] = %q, want %q", i, string(got[i]), want)
				}
			}
		})
	}
}

func TestReadCommand_Fragmented(t *testing.T) {
	full := "*2\r\n$3\r\nGET\r\n$3\r\nfoo\r\n"
	pr, pw := io.Pipe()
	go func() {
		for _, b := range []byte(full) {
			pw.Write([]byte{b})
		}
		pw.Close()
	}()
	r := bufio.NewReader(pr)
	got, err := ReadCommand(r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"GET", "foo"}
	for i, w := range want {
		if string(got[i]) != w {
			t.Errorf("arg[%d] = %q, want %q", i, string(got[i]), w)
		}
	}
}

func TestReadCommand_LimitExceeded(t *testing.T) {
	input := "*2000\r\n"
	r := bufio.NewReader(strings.NewReader(input))
	_, err := ReadCommand(r)
	if !errors.Is(err, ErrLimitExceeded) {
		t.Fatalf("expected ErrLimitExceeded, got %v", err)
	}
}

func TestReadCommand_ProtocolError(t *testing.T) {
	input := "*2\r\n$3\r\nGET\r\n$abc\r\nfoo\r\n"
	r := bufio.NewReader(strings.NewReader(input))
	_, err := ReadCommand(r)
	if !errors.Is(err, ErrProtocol) {
		t.Fatalf("expected ErrProtocol, got %v", err)
	}
}

func TestWriters(t *testing.T) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)

	WriteSimpleString(w, "OK")
	WriteError(w, "ERR boom")
	WriteInteger(w, 42)
	WriteBulkString(w, "hello")
	WriteNullBulk(w)
	WriteArrayHeader(w, 2)
	WriteBulkString(w, "a")
	WriteBulkString(w, "b")
	w.Flush()

	want := "+OK\r\n-ERR boom\r\n:42\r\n$5\r\nhello\r\n$-1\r\n*2\r\n$1\r\na\r\n$1\r\nb\r\n"
	if buf.String() != want {
		t.Fatalf("got %q, want %q", buf.String(), want)
	}
}

func TestEncodeCommand(t *testing.T) {
	got := EncodeCommand([]string{"SET", "foo", "bar"})
	want := "*3\r\n$3\r\nSET\r\n$3\r\nfoo\r\n$3\r\nbar\r\n"
	if string(got) != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestNormalizeCommandName(t *testing.T) {
	if NormalizeCommandName([]byte("get")) != "GET" {
		t.Fatal("expected lowercase to be upper-cased")
	}
	if NormalizeCommandName([]byte("SET")) != "SET" {
		t.Fatal("expected already-uppercase to be unchanged")
	}
}

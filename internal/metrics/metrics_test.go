package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRecordCommandAppearsInHandler(t *testing.T) {
	r := New()
	r.RecordCommand("GET")
	r.RecordCommand("GET")
	r.RecordCommand("SET")

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, req)

	body := rec.Body.String()
	if !strings.Contains(body, `redisgo_commands_total{command="GET"} 2`) {
		t.Fatalf("missing GET counter in output:\n%s", body)
	}
	if !strings.Contains(body, `redisgo_commands_total{command="SET"} 1`) {
		t.Fatalf("missing SET counter in output:\n%s", body)
	}
}

func TestGauges(t *testing.T) {
	r := New()
	r.ConnectedClients.Set(3)
	r.ConnectedReplicas.Set(1)
	r.ReplOffsetBytes.Set(128)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, req)

	body := rec.Body.String()
	for _, want := range []string{
		"redisgo_connected_clients 3",
		"redisgo_connected_replicas 1",
		"redisgo_repl_offset_bytes 128",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("missing %q in output:\n%s", want, body)
		}
	}
}

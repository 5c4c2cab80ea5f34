package rdb

import (
	"testing"
	"time"
)

func TestEmptyRoundTrips(t *testing.T) {
	data := Empty()
	if string(data[:5]) != "REDIS" {
		t.Fatalf("missing REDIS header")
	}
	entries, err := Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("len(entries) = %d, want 0", len(entries))
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	in := []StringEntry{
		{Key: "a", Value: "1"},
		{Key: "b", Value: "hello world"},
		{Key: "c", Value: "expires", Expiry: time.UnixMilli(1893456000000)},
	}
	out, err := Decode(Encode(in))
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != len(in) {
		t.Fatalf("len(out) = %d, want %d", len(out), len(in))
	}
	for i := range in {
		if out[i].Key != in[i].Key || out[i].Value != in[i].Value {
			t.Fatalf("entry %d = %+v, want %+v", i, out[i], in[i])
		}
		if !in[i].Expiry.IsZero() && !out[i].Expiry.Equal(in[i].Expiry) {
			t.Fatalf("entry %d expiry = %v, want %v", i, out[i].Expiry, in[i].Expiry)
		}
	}
}

func TestDecodeInvalidHeader(t *testing.T) {
	_, err := Decode([]byte("not an rdb file"))
	if err != ErrInvalidHeader {
		t.Fatalf("err = %v, want ErrInvalidHeader", err)
	}
}

func TestEncodeLongString(t *testing.T) {
	big := make([]byte, 1<<15)
	for i := range big {
		big[i] = 'x'
	}
	in := []StringEntry{{Key: "big", Value: string(big)}}
	out, err := Decode(Encode(in))
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 || out[0].Value != string(big) {
		t.Fatalf("long string did not round-trip, got len %d", len(out[0].Value))
	}
}

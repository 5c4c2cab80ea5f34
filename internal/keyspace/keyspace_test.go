package keyspace

import (
	"testing"
	"time"
)

func TestSetGet(t *testing.T) {
	ks := New()
	ks.Set("foo", "bar", SetOptions{})
	v, ok, err := ks.Get("foo")
	if err != nil || !ok || v != "bar" {
		t.Fatalf("Get = %q, %v, %v", v, ok, err)
	}
	if ks.Type("foo") != "string" {
		t.Fatalf("Type = %q, want string", ks.Type("foo"))
	}
}

func TestExpiry(t *testing.T) {
	ks := New()
	ks.Set("foo", "bar", SetOptions{HasExpiry: true, ExpireAt: time.Now().Add(10 * time.Millisecond)})
	time.Sleep(30 * time.Millisecond)
	if _, ok, _ := ks.Get("foo"); ok {
		t.Fatal("expected expired key to be absent")
	}
	if ks.Exists("foo") {
		t.Fatal("expected EXISTS to report 0 after expiry")
	}
}

func TestWrongType(t *testing.T) {
	ks := New()
	ks.Push("l", []string{"a"}, false)
	if _, _, err := ks.Get("l"); err != ErrWrongType {
		t.Fatalf("expected ErrWrongType, got %v", err)
	}
}

func TestListPushPop(t *testing.T) {
	ks := New()
	n, err := ks.Push("L", []string{"a", "b", "c"}, false)
	if err != nil || n != 3 {
		t.Fatalf("RPUSH: %d, %v", n, err)
	}
	items, _ := ks.Range("L", 0, -1)
	want := []string{"a", "b", "c"}
	for i, w := range want {
		if items[i] != w {
			t.Fatalf("Range[%d] = %q, want %q", i, items[i], w)
		}
	}
	popped, err := ks.Pop("L", 2, true)
	if err != nil || len(popped) != 2 || popped[0] != "a" || popped[1] != "b" {
		t.Fatalf("Pop = %v, %v", popped, err)
	}
	length, _ := ks.Len("L")
	if length != 1 {
		t.Fatalf("Len = %d, want 1", length)
	}
}

func TestListLPushOrder(t *testing.T) {
	ks := New()
	ks.Push("L", []string{"a", "b", "c"}, true)
	items, _ := ks.Range("L", 0, -1)
	want := []string{"c", "b", "a"}
	for i, w := range want {
		if items[i] != w {
			t.Fatalf("Range[%d] = %q, want %q", i, items[i], w)
		}
	}
}

func TestIncr(t *testing.T) {
	ks := New()
	v, err := ks.IncrBy("n", 1)
	if err != nil || v != 1 {
		t.Fatalf("IncrBy = %d, %v", v, err)
	}
	v, err = ks.IncrBy("n", 1)
	if err != nil || v != 2 {
		t.Fatalf("IncrBy = %d, %v", v, err)
	}
	s, _, _ := ks.Get("n")
	if s != "2" {
		t.Fatalf("Get = %q, want 2", s)
	}
}

func TestIncrNotInteger(t *testing.T) {
	ks := New()
	ks.Set("s", "abc", SetOptions{})
	if _, err := ks.IncrBy("s", 1); err != ErrNotInteger {
		t.Fatalf("expected ErrNotInteger, got %v", err)
	}
}

func TestXAddOrdering(t *testing.T) {
	ks := New()
	id1, err := ks.XAdd("s", "1-1", []Field{{Name: "k", Value: "v"}}, 1000)
	if err != nil || id1 != (StreamID{1, 1}) {
		t.Fatalf("XAdd: %v, %v", id1, err)
	}
	if _, err := ks.XAdd("s", "1-1", nil, 1000); err != ErrStreamIDOrder {
		t.Fatalf("expected ErrStreamIDOrder, got %v", err)
	}
	id2, err := ks.XAdd("s", "*", nil, 2000)
	if err != nil {
		t.Fatalf("XAdd *: %v", err)
	}
	if !id1.Less(id2) {
		t.Fatalf("expected %v < %v", id1, id2)
	}
}

func TestXAddZeroRejected(t *testing.T) {
	ks := New()
	if _, err := ks.XAdd("s", "0-0", nil, 1); err != ErrStreamIDZero {
		t.Fatalf("expected ErrStreamIDZero, got %v", err)
	}
}

func TestXRange(t *testing.T) {
	ks := New()
	ks.XAdd("s", "1-1", nil, 0)
	ks.XAdd("s", "2-1", nil, 0)
	ks.XAdd("s", "3-1", nil, 0)
	entries, err := ks.XRange("s", "-", "+", false)
	if err != nil || len(entries) != 3 {
		t.Fatalf("XRange: %v, %v", entries, err)
	}
	for i := 1; i < len(entries); i++ {
		if !entries[i-1].ID.Less(entries[i].ID) {
			t.Fatalf("XRange not strictly increasing at %d", i)
		}
	}
}

func TestZSetOrderingAndRank(t *testing.T) {
	ks := New()
	ks.ZAdd("z", []ZItem{{Member: "b", Score: 2}, {Member: "a", Score: 1}, {Member: "c", Score: 2}})
	items, err := ks.ZRange("z", 0, -1)
	if err != nil {
		t.Fatal(err)
	}
	wantOrder := []string{"a", "b", "c"}
	for i, w := range wantOrder {
		if items[i].Member != w {
			t.Fatalf("ZRange[%d] = %q, want %q", i, items[i].Member, w)
		}
		rank, ok, err := ks.ZRank("z", w)
		if err != nil || !ok || rank != i {
			t.Fatalf("ZRank(%q) = %d, %v, %v; want %d", w, rank, ok, err, i)
		}
	}
}

func TestZRemDeletesEmptyKey(t *testing.T) {
	ks := New()
	ks.ZAdd("z", []ZItem{{Member: "a", Score: 1}})
	n, err := ks.ZRem("z", []string{"a"})
	if err != nil || n != 1 {
		t.Fatalf("ZRem = %d, %v", n, err)
	}
	if ks.Exists("z") {
		t.Fatal("expected key to be removed once empty")
	}
}

func TestKeysGlob(t *testing.T) {
	ks := New()
	ks.Set("foo", "1", SetOptions{})
	ks.Set("foobar", "1", SetOptions{})
	ks.Set("bar", "1", SetOptions{})
	matches := ks.Keys("foo*")
	if len(matches) != 2 {
		t.Fatalf("Keys(foo*) = %v", matches)
	}
}

func TestRenameNX(t *testing.T) {
	ks := New()
	ks.Set("a", "1", SetOptions{})
	ks.Set("b", "2", SetOptions{})
	ok, err := ks.Rename("a", "b", false)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected RENAMENX to refuse existing destination")
	}
	ok, err = ks.Rename("a", "b", true)
	if err != nil || !ok {
		t.Fatalf("RENAME: %v, %v", ok, err)
	}
	if ks.Exists("a") {
		t.Fatal("expected source key to be gone after rename")
	}
	v, _, _ := ks.Get("b")
	if v != "1" {
		t.Fatalf("Get(b) = %q, want 1", v)
	}
}

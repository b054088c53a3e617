package storage

import (
	"errors"
	"fmt"
	"testing"
)

func TestPrefixDB_Isolation(t *testing.T) {
	inner := NewMemory()
	events := NewPrefixDB(inner, []byte("ev/"))
	ledger := NewPrefixDB(inner, []byte("lg/"))

	if err := events.Put([]byte("id"), []byte("event")); err != nil {
		t.Fatal(err)
	}
	if err := ledger.Put([]byte("id"), []byte("ledger")); err != nil {
		t.Fatal(err)
	}

	got, err := events.Get([]byte("id"))
	if err != nil || string(got) != "event" {
		t.Fatalf("events.Get = %q, %v", got, err)
	}
	got, err = ledger.Get([]byte("id"))
	if err != nil || string(got) != "ledger" {
		t.Fatalf("ledger.Get = %q, %v", got, err)
	}

	raw, err := inner.Get([]byte("ev/id"))
	if err != nil || string(raw) != "event" {
		t.Fatalf("inner raw key = %q, %v", raw, err)
	}
	if ok, _ := events.Has([]byte("lg/id")); ok {
		t.Fatal("namespace leaked into sibling")
	}
}

func TestPrefixDB_ForEachStripsPrefixInOrder(t *testing.T) {
	db := NewPrefixDB(NewMemory(), []byte("pre/"))
	for _, k := range []string{"b", "c", "a"} {
		db.Put([]byte(k), []byte("v"))
	}

	var keys []string
	err := db.ForEach(nil, func(key, _ []byte) error {
		keys = append(keys, string(key))
		return nil
	})
	if err != nil {
		t.Fatalf("ForEach: %v", err)
	}
	if fmt.Sprint(keys) != "[a b c]" {
		t.Fatalf("ForEach keys = %v, want [a b c]", keys)
	}
}

func TestPrefixDB_ForEachStopEarly(t *testing.T) {
	db := NewPrefixDB(NewMemory(), []byte("p/"))
	for i := 0; i < 10; i++ {
		db.Put([]byte(fmt.Sprintf("k%d", i)), []byte("v"))
	}

	count := 0
	stop := errors.New("stop")
	err := db.ForEach(nil, func(_, _ []byte) error {
		count++
		if count == 3 {
			return stop
		}
		return nil
	})
	if !errors.Is(err, stop) {
		t.Fatalf("ForEach err = %v, want stop", err)
	}
	if count != 3 {
		t.Fatalf("ForEach called %d times, want 3", count)
	}
}

func TestPrefixDB_Batch(t *testing.T) {
	inner := NewMemory()
	db := NewPrefixDB(inner, []byte("ns/"))
	db.Put([]byte("old"), []byte("x"))

	b := db.NewBatch()
	b.Put([]byte("new"), []byte("y"))
	b.Delete([]byte("old"))

	if ok, _ := db.Has([]byte("new")); ok {
		t.Fatal("batch write visible before Commit")
	}
	if err := b.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if ok, _ := inner.Has([]byte("ns/new")); !ok {
		t.Fatal("ns/new missing after Commit")
	}
	if ok, _ := db.Has([]byte("old")); ok {
		t.Fatal("old still present after Commit")
	}
}

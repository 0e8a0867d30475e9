package storage

import (
	"bytes"
	"errors"
	"testing"
)

// testDB runs the shared suite against a DB implementation.
func testDB(t *testing.T, db DB) {
	t.Helper()

	t.Run("PutAndGet", func(t *testing.T) {
		if err := db.Put([]byte("key1"), []byte("value1")); err != nil {
			t.Fatalf("Put() error: %v", err)
		}
		val, err := db.Get([]byte("key1"))
		if err != nil {
			t.Fatalf("Get() error: %v", err)
		}
		if !bytes.Equal(val, []byte("value1")) {
			t.Errorf("Get() = %q, want %q", val, "value1")
		}
	})

	t.Run("GetMissing", func(t *testing.T) {
		if _, err := db.Get([]byte("missing")); !errors.Is(err, ErrNotFound) {
			t.Errorf("Get() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("Has", func(t *testing.T) {
		if err := db.Put([]byte("exists"), []byte("yes")); err != nil {
			t.Fatal(err)
		}
		if ok, _ := db.Has([]byte("exists")); !ok {
			t.Error("Has() = false for existing key")
		}
		if ok, _ := db.Has([]byte("absent")); ok {
			t.Error("Has() = true for missing key")
		}
	})

	t.Run("Delete", func(t *testing.T) {
		if err := db.Put([]byte("del"), []byte("v")); err != nil {
			t.Fatal(err)
		}
		if err := db.Delete([]byte("del")); err != nil {
			t.Fatalf("Delete() error: %v", err)
		}
		if ok, _ := db.Has([]byte("del")); ok {
			t.Error("key should be gone after Delete()")
		}
		if err := db.Delete([]byte("never-existed")); err != nil {
			t.Errorf("Delete() of missing key error: %v", err)
		}
	})

	t.Run("ValuesAreCopied", func(t *testing.T) {
		v := []byte("abc")
		if err := db.Put([]byte("copy"), v); err != nil {
			t.Fatal(err)
		}
		v[0] = 'x'
		got, _ := db.Get([]byte("copy"))
		if string(got) != "abc" {
			t.Errorf("stored value changed with caller's slice: %q", got)
		}
	})

	t.Run("ForEachOrdered", func(t *testing.T) {
		for _, k := range []string{"p/c", "p/a", "p/b", "q/x"} {
			if err := db.Put([]byte(k), []byte(k)); err != nil {
				t.Fatal(err)
			}
		}
		var keys []string
		err := db.ForEach([]byte("p/"), func(key, _ []byte) error {
			keys = append(keys, string(key))
			return nil
		})
		if err != nil {
			t.Fatalf("ForEach() error: %v", err)
		}
		if len(keys) != 3 || keys[0] != "p/a" || keys[2] != "p/c" {
			t.Errorf("ForEach(p/) keys = %v", keys)
		}
	})

	t.Run("ForEachStops", func(t *testing.T) {
		stop := errors.New("stop")
		n := 0
		err := db.ForEach([]byte("p/"), func(_, _ []byte) error {
			n++
			return stop
		})
		if !errors.Is(err, stop) || n != 1 {
			t.Errorf("ForEach() = %v after %d calls, want stop after 1", err, n)
		}
	})
}

func TestMemoryDB(t *testing.T) {
	db := NewMemory()
	defer db.Close()
	testDB(t, db)
}

func TestMemoryDB_Batch(t *testing.T) {
	db := NewMemory()
	if err := db.Put([]byte("old"), []byte("1")); err != nil {
		t.Fatal(err)
	}

	b := db.NewBatch()
	b.Put([]byte("a"), []byte("1"))
	b.Put([]byte("b"), []byte("2"))
	b.Delete([]byte("old"))
	if ok, _ := db.Has([]byte("a")); ok {
		t.Fatal("batch writes should not be visible before Commit")
	}
	if err := b.Commit(); err != nil {
		t.Fatalf("Commit() error: %v", err)
	}
	for _, k := range []string{"a", "b"} {
		if ok, _ := db.Has([]byte(k)); !ok {
			t.Errorf("key %q missing after Commit", k)
		}
	}
	if ok, _ := db.Has([]byte("old")); ok {
		t.Error("deleted key present after Commit")
	}
}

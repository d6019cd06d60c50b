package cache

import "testing"

func TestPutGetRoundTrip(t *testing.T) {
	c, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer c.Close()

	wav := []byte("fake wav bytes")
	if _, ok := c.Get(wav); ok {
		t.Fatal("unexpected hit on empty cache")
	}

	if err := c.Put(wav, "hello there"); err != nil {
		t.Fatalf("Put: %v", err)
	}

	text, ok := c.Get(wav)
	if !ok {
		t.Fatal("expected hit after Put")
	}
	if text != "hello there" {
		t.Errorf("text = %q, want %q", text, "hello there")
	}

	// Different audio, different key.
	if _, ok := c.Get([]byte("other wav bytes")); ok {
		t.Error("unexpected hit for different audio")
	}
}

func TestPutOverwrites(t *testing.T) {
	c, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer c.Close()

	wav := []byte("chunk")
	if err := c.Put(wav, "first"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := c.Put(wav, "second"); err != nil {
		t.Fatalf("Put: %v", err)
	}

	text, ok := c.Get(wav)
	if !ok || text != "second" {
		t.Errorf("Get = %q, %v; want %q, true", text, ok, "second")
	}
}

package bufpool

import "testing"

func TestPoolGetPut(t *testing.T) {
	p := New(1024)

	buf := p.Get()
	if len(buf) != 1024 {
		t.Fatalf("expected buffer of 1024 bytes, got %d", len(buf))
	}
	p.Put(buf)

	again := p.Get()
	if len(again) != 1024 {
		t.Fatalf("expected reused buffer of 1024 bytes, got %d", len(again))
	}
}

func TestPoolDiscardsUndersized(t *testing.T) {
	p := New(1024)
	p.Put(make([]byte, 16))

	buf := p.Get()
	if len(buf) != 1024 {
		t.Fatalf("expected fresh buffer of 1024 bytes, got %d", len(buf))
	}
}

func TestPoolShortResliceIsReusable(t *testing.T) {
	p := New(64)
	buf := p.Get()
	p.Put(buf[:1])

	again := p.Get()
	if len(again) != 64 {
		t.Fatalf("expected buffer restored to 64 bytes, got %d", len(again))
	}
}

func TestNewPanicsOnInvalidSize(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for non-positive bufSize")
		}
	}()
	New(0)
}

package transfer

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestSlotSingleAssignment(t *testing.T) {
	slot := NewSlot()

	const writers = 16
	var wg sync.WaitGroup
	start := make(chan struct{})
	wins := make(chan bool, writers)

	for i := 0; i < writers; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if i%2 == 0 {
				wins <- slot.SetResult(Result{RequestID: "r1", Status: StatusCompleted})
			} else {
				wins <- slot.SetCanceled()
			}
		}()
	}

	close(start)
	wg.Wait()
	close(wins)

	winners := 0
	for won := range wins {
		if won {
			winners++
		}
	}
	if winners != 1 {
		t.Fatalf("expected exactly 1 winning settlement, got %d", winners)
	}
	if !slot.Settled() {
		t.Fatal("expected slot to be settled")
	}
}

func TestPendingResultBeforeSettlement(t *testing.T) {
	slot := NewSlot()
	pending := slot.Pending()

	if _, err := pending.Result(); !errors.Is(err, ErrNotSettled) {
		t.Fatalf("expected ErrNotSettled, got %v", err)
	}

	slot.SetResult(Result{RequestID: "r1", Status: StatusCompleted, BytesSent: 42})
	res, err := pending.Result()
	if err != nil {
		t.Fatalf("unexpected error after settlement: %v", err)
	}
	if res.BytesSent != 42 {
		t.Fatalf("expected BytesSent 42, got %d", res.BytesSent)
	}
}

func TestPendingWaitContextCanceled(t *testing.T) {
	slot := NewSlot()
	pending := slot.Pending()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := pending.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	// Abandoning the wait must not settle the slot.
	if slot.Settled() {
		t.Fatal("slot settled by an abandoned wait")
	}
}

func TestSlotLoserHasNoEffect(t *testing.T) {
	slot := NewSlot()

	if !slot.SetCanceled() {
		t.Fatal("first settlement should win")
	}
	if slot.SetResult(Result{RequestID: "r1", Status: StatusCompleted}) {
		t.Fatal("second settlement should lose")
	}

	_, err := slot.Pending().Result()
	if !errors.Is(err, ErrCanceled) {
		t.Fatalf("expected ErrCanceled to stick, got %v", err)
	}
}

func TestSlotSetFaultNil(t *testing.T) {
	slot := NewSlot()
	slot.SetFault(nil)

	_, err := slot.Pending().Result()
	var fault *Fault
	if !errors.As(err, &fault) {
		t.Fatalf("expected a Fault, got %v", err)
	}
	if fault.Code != "unknown" {
		t.Fatalf("expected code unknown, got %s", fault.Code)
	}
}

func TestProgressFraction(t *testing.T) {
	tests := []struct {
		name string
		p    Progress
		want float64
	}{
		{"half", Progress{BytesSent: 50, TotalBytes: 100}, 0.5},
		{"unknown total", Progress{BytesSent: 50, TotalBytes: 0}, 0},
		{"overshoot clamped", Progress{BytesSent: 150, TotalBytes: 100}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.p.Fraction(); got != tt.want {
				t.Errorf("Fraction() = %v, want %v", got, tt.want)
			}
		})
	}
}

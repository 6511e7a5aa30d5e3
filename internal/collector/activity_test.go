package collector

import (
	"errors"
	"testing"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/visitor-insights/pkg/errors"
)

func TestActivityCountsUntilClosed(t *testing.T) {
	a := NewActivity(time.Hour)
	defer a.Close()

	events := make(chan Kind)
	sub, err := a.Attach(events)
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}
	for _, k := range []Kind{MouseMove, MouseMove, Click, KeyPress, KeyPress, KeyPress} {
		events <- k
	}
	sub.Close()

	got := a.Counts()
	if got.MouseMovements != 2 || got.Clicks != 1 || got.KeyPresses != 3 {
		t.Errorf("counts = %+v", got)
	}
	if a.Active() != 0 {
		t.Errorf("active = %d after Close", a.Active())
	}

	select {
	case events <- Click:
		t.Fatal("closed subscription still receiving")
	default:
	}
	sub.Close()
}

func TestActivityClosedSourceEndsSubscription(t *testing.T) {
	a := NewActivity(time.Hour)
	defer a.Close()

	events := make(chan Kind, 2)
	events <- Click
	events <- Click
	close(events)

	sub, err := a.Attach(events)
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for a.Counts().Clicks < 2 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if got := a.Counts().Clicks; got != 2 {
		t.Errorf("clicks = %d, want 2", got)
	}
	// The source is drained and closed; Close must not block.
	sub.Close()
}

func TestActivityCloseTearsDownSubscriptions(t *testing.T) {
	a := NewActivity(time.Hour)
	for i := 0; i < 3; i++ {
		if _, err := a.Attach(make(chan Kind)); err != nil {
			t.Fatalf("Attach: %v", err)
		}
	}
	if a.Active() != 3 {
		t.Fatalf("active = %d", a.Active())
	}

	a.Close()
	if a.Active() != 0 {
		t.Errorf("active = %d after Close", a.Active())
	}
	if _, err := a.Attach(make(chan Kind)); !errors.Is(err, apperrors.ErrUnavailable) {
		t.Errorf("Attach after Close = %v, want ErrUnavailable", err)
	}
	a.Close()
}

func TestActivityTimeOnPage(t *testing.T) {
	a := NewActivity(5 * time.Millisecond)
	deadline := time.Now().Add(2 * time.Second)
	for a.Counts().SecondsOnPage < 2 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	a.Close()

	stopped := a.Counts().SecondsOnPage
	if stopped < 2 {
		t.Fatalf("clock did not advance, got %d", stopped)
	}
	time.Sleep(20 * time.Millisecond)
	if a.Counts().SecondsOnPage != stopped {
		t.Error("clock kept running after Close")
	}
}

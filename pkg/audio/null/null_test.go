package null_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrWong99/voxdesk/pkg/audio/null"
)

func TestCapture_DeliversSilenceUntilDetached(t *testing.T) {
	t.Parallel()

	c, err := null.Platform{}.OpenCapture(context.Background(), 160)
	if err != nil {
		t.Fatalf("OpenCapture: %v", err)
	}
	defer c.Close()

	var ticks atomic.Int32
	var wrongSize atomic.Bool
	c.SetProcessor(func(block []float32) {
		if len(block) != 160 {
			wrongSize.Store(true)
		}
		ticks.Add(1)
	})

	deadline := time.Now().Add(2 * time.Second)
	for ticks.Load() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("ticks = %d after 2s", ticks.Load())
		}
		time.Sleep(5 * time.Millisecond)
	}
	if wrongSize.Load() {
		t.Error("block size differs from frame size")
	}

	c.SetProcessor(nil)
	n := ticks.Load()
	time.Sleep(50 * time.Millisecond)
	if ticks.Load() != n {
		t.Error("processor called after detach")
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestOutput_ClockAdvancesAndPlaysOut(t *testing.T) {
	t.Parallel()

	o, err := null.Platform{}.OpenOutput(context.Background())
	if err != nil {
		t.Fatalf("OpenOutput: %v", err)
	}
	defer o.Close()

	ended := make(chan struct{})
	if _, err := o.Start(make([]int16, 480), o.Now(), func() { close(ended) }); err != nil {
		t.Fatalf("Start: %v", err)
	}
	select {
	case <-ended:
	case <-time.After(2 * time.Second):
		t.Fatal("voice never ended")
	}
	if o.Now() <= 0 {
		t.Errorf("clock = %s, want advanced", o.Now())
	}
	if err := o.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

package progress

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"polistep/internal/types"
)

func TestChannel_LogAndDone(t *testing.T) {
	c := NewChannel(8)
	c.Log("탐색 시작")
	c.Done(DoneEvent{Status: types.StatusSuccess, FinalURL: "https://example.go.kr"})

	var got []Message
	for m := range c.Messages() {
		got = append(got, m)
	}

	if len(got) != 2 {
		t.Fatalf("got %d messages", len(got))
	}
	if got[0].Type != "log" || got[0].Message != "탐색 시작" {
		t.Errorf("first = %+v", got[0])
	}
	if got[1].Type != "done" || got[1].Done.Status != types.StatusSuccess {
		t.Errorf("last = %+v", got[1])
	}
}

func TestChannel_DropNewestNeverBlocks(t *testing.T) {
	c := NewChannel(2)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			c.Log("line")
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publisher blocked on full queue")
	}
	if c.Dropped() != 98 {
		t.Errorf("dropped = %d, want 98", c.Dropped())
	}
}

func TestChannel_DoneSurvivesFullQueue(t *testing.T) {
	c := NewChannel(1)
	c.Log("fills the queue")
	c.Done(DoneEvent{Status: types.StatusFailed, Error: "timeout"})

	var last Message
	for m := range c.Messages() {
		last = m
	}
	if last.Type != "done" {
		t.Fatalf("terminal message lost, last = %+v", last)
	}
	if last.Done.Error != "timeout" {
		t.Errorf("done = %+v", last.Done)
	}
}

func TestChannel_PublishAfterDoneIgnored(t *testing.T) {
	c := NewChannel(4)
	c.Done(DoneEvent{Status: types.StatusFailed})
	// None of these may panic on the closed queue.
	c.Log("late")
	c.Frame(nil)
	c.Done(DoneEvent{})
}

type scriptedSource struct {
	mu    sync.Mutex
	calls int
	fail  int // fail this many leading calls
	frame []byte
}

func (s *scriptedSource) Screenshot() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.calls <= s.fail {
		return nil, errors.New("page detached")
	}
	return s.frame, nil
}

func TestFrameCapturer_StopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	src := &scriptedSource{frame: []byte{1, 2, 3}}
	sink := NewChannel(64)
	fc := NewFrameCapturer(src, sink, 5*time.Millisecond, 1<<20)

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		fc.Run(ctx)
		close(stopped)
	}()

	time.Sleep(40 * time.Millisecond)
	cancel()

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("capturer did not stop on cancel")
	}
	sink.Done(DoneEvent{})

	frames := 0
	for m := range sink.Messages() {
		if m.Type == "screenshot" {
			frames++
		}
	}
	if frames == 0 {
		t.Error("no frames captured")
	}
}

func TestFrameCapturer_RetriesThenRecovers(t *testing.T) {
	src := &scriptedSource{fail: 2, frame: []byte{1}}
	sink := NewChannel(64)
	fc := NewFrameCapturer(src, sink, 2*time.Millisecond, 1<<20)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	fc.Run(ctx)
	sink.Done(DoneEvent{})

	frames := 0
	for m := range sink.Messages() {
		if m.Type == "screenshot" {
			frames++
		}
	}
	if frames == 0 {
		t.Fatal("capturer never recovered after transient failures")
	}
}

func TestFrameCapturer_SizeCeiling(t *testing.T) {
	src := &scriptedSource{frame: make([]byte, 2048)}
	sink := NewChannel(64)
	fc := NewFrameCapturer(src, sink, 2*time.Millisecond, 1024)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	fc.Run(ctx)
	sink.Done(DoneEvent{})

	for m := range sink.Messages() {
		if m.Type == "screenshot" {
			t.Fatal("oversized frame published")
		}
	}
}

package session_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/p-n-ai/pai-lesson/internal/session"
)

func TestRecorder_ClientMicrophone(t *testing.T) {
	mic := session.NewClientMicrophone()
	r := session.NewRecorder(mic)

	if err := r.Write([]byte("x")); !errors.Is(err, session.ErrNotRecording) {
		t.Errorf("Write() before Start error = %v", err)
	}
	if err := r.Start(context.Background(), "sp"); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	_ = r.Write([]byte("ab"))
	_ = r.Write([]byte("cd"))

	stepID, audio, err := r.Stop()
	if err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if stepID != "sp" || string(audio) != "abcd" {
		t.Errorf("Stop() = %q, %q", stepID, audio)
	}
	if _, ok := r.Active(); ok {
		t.Error("Active() = true after Stop")
	}

	mic.SetPermission(false)
	if err := r.Start(context.Background(), "sp"); !errors.Is(err, session.ErrPermissionDenied) {
		t.Errorf("Start() denied error = %v", err)
	}
}

func TestRecorder_ReleaseDropsAudio(t *testing.T) {
	r := session.NewRecorder(session.NewClientMicrophone())
	if r.Release() {
		t.Error("Release() = true with nothing recording")
	}
	_ = r.Start(context.Background(), "sp")
	_ = r.Write([]byte("abc"))
	if !r.Release() {
		t.Error("Release() = false while recording")
	}
	if _, _, err := r.Stop(); !errors.Is(err, session.ErrNotRecording) {
		t.Errorf("Stop() after Release error = %v", err)
	}
}

func TestFakeClock_DeliversDueTicks(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := session.NewFakeClock(start)
	ticker := clock.NewTicker(time.Second)
	defer ticker.Stop()

	got := make(chan time.Time, 3)
	go func() {
		for i := 0; i < 3; i++ {
			got <- <-ticker.C()
		}
	}()
	clock.Advance(3500 * time.Millisecond)

	for i := 1; i <= 3; i++ {
		if at := <-got; !at.Equal(start.Add(time.Duration(i) * time.Second)) {
			t.Errorf("tick %d at %v", i, at)
		}
	}
	if !clock.Now().Equal(start.Add(3500 * time.Millisecond)) {
		t.Errorf("Now() = %v", clock.Now())
	}
}

func TestAudioFingerprint(t *testing.T) {
	a := session.AudioFingerprint([]byte("one"))
	if len(a) != 32 {
		t.Errorf("fingerprint length = %d, want 32", len(a))
	}
	if a == session.AudioFingerprint([]byte("two")) {
		t.Error("different audio produced the same fingerprint")
	}
	if a != session.AudioFingerprint([]byte("one")) {
		t.Error("fingerprint is not stable")
	}
}

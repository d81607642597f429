package chat

import (
	"testing"
	"time"
)

func TestTypingIndicator_AutoExpires(t *testing.T) {
	expiry := 50 * time.Millisecond
	ti := NewTypingIndicator(expiry, nil)

	ti.Trigger("chan-1")
	if !ti.Active("chan-1") {
		t.Fatal("indicator should be active right after trigger")
	}

	// The indicator must not still be on at twice the expiry.
	time.Sleep(2 * expiry)
	if ti.Active("chan-1") {
		t.Fatal("indicator still active after twice the expiry window")
	}
}

func TestTypingIndicator_RetriggerExtends(t *testing.T) {
	expiry := 60 * time.Millisecond
	ti := NewTypingIndicator(expiry, nil)

	ti.Trigger("chan-1")
	time.Sleep(expiry / 2)
	ti.Trigger("chan-1")
	time.Sleep(expiry * 3 / 4)
	if !ti.Active("chan-1") {
		t.Fatal("retrigger should have extended the indicator")
	}
}

func TestTypingIndicator_OnStopFires(t *testing.T) {
	stopped := make(chan string, 1)
	ti := NewTypingIndicator(20*time.Millisecond, func(channelID string) {
		stopped <- channelID
	})

	ti.Trigger("chan-7")
	select {
	case id := <-stopped:
		if id != "chan-7" {
			t.Fatalf("onStop got %q", id)
		}
	case <-time.After(time.Second):
		t.Fatal("onStop never fired")
	}
}

func TestTypingIndicator_StopAllSilent(t *testing.T) {
	stopped := make(chan string, 1)
	ti := NewTypingIndicator(20*time.Millisecond, func(channelID string) {
		stopped <- channelID
	})

	ti.Trigger("chan-1")
	ti.StopAll()
	if ti.Active("chan-1") {
		t.Fatal("StopAll left indicator active")
	}
	select {
	case <-stopped:
		t.Fatal("StopAll must not fire onStop")
	case <-time.After(60 * time.Millisecond):
	}
}

package systemd

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	logx "guildwatch/pkg/logx"
)

func TestNotifyWithoutSystemd(t *testing.T) {
	t.Setenv("NOTIFY_SOCKET", "")
	t.Setenv("WATCHDOG_USEC", "")
	n := NewNotifier(logx.Nop())
	if n.Ready() {
		t.Fatal("Ready reported delivery without NOTIFY_SOCKET")
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := n.Watchdog(ctx); err != nil {
		t.Fatal(err)
	}
}

func TestNotifyReadyOverSocket(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "notify.sock")
	conn, err := net.ListenUnixgram("unixgram", &net.UnixAddr{Name: sock, Net: "unixgram"})
	if err != nil {
		t.Skipf("unixgram not available: %v", err)
	}
	defer conn.Close()
	t.Setenv("NOTIFY_SOCKET", sock)

	n := NewNotifier(logx.Nop())
	if !n.Ready() {
		t.Fatal("Ready not delivered")
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 64)
	k, err := conn.Read(buf)
	if err != nil {
		t.Fatal(err)
	}
	if got := string(buf[:k]); got != "READY=1" {
		t.Fatalf("state = %q", got)
	}
}

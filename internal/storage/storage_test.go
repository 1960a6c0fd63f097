package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	logx "guildwatch/pkg/logx"
)

func TestOpenDisabled(t *testing.T) {
	for _, d := range []string{"", "none", " NONE "} {
		st, err := Open(Config{Driver: d}, logx.Nop())
		if st != nil || !errors.Is(err, ErrDisabled) {
			t.Fatalf("Open(%q) = %v, %v", d, st, err)
		}
	}
	if _, err := Open(Config{Driver: "redis"}, logx.Nop()); err == nil {
		t.Fatal("unknown driver should fail")
	}
}

func TestBackendsAppendAndRecent(t *testing.T) {
	for _, driver := range []string{"file", "sqlite"} {
		t.Run(driver, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "audit", "guildwatch.db")
			st, err := Open(Config{Driver: driver, Path: path}, logx.Nop())
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			defer st.Close()

			ctx := context.Background()
			base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
			for i := 0; i < 5; i++ {
				e := AuditEntry{
					At:     base.Add(time.Duration(i) * time.Second),
					Kind:   "kill",
					ChatID: -100,
					Text:   fmt.Sprintf("msg %d", i),
					OK:     i != 3,
				}
				if i == 3 {
					e.Error = "flood"
				}
				if err := st.AppendAudit(ctx, e); err != nil {
					t.Fatalf("AppendAudit %d: %v", i, err)
				}
			}

			got, err := st.RecentAudit(ctx, 3)
			if err != nil {
				t.Fatalf("RecentAudit: %v", err)
			}
			if len(got) != 3 {
				t.Fatalf("got %d entries, want 3", len(got))
			}
			for i, want := range []string{"msg 4", "msg 3", "msg 2"} {
				if got[i].Text != want {
					t.Fatalf("entry %d = %q, want %q", i, got[i].Text, want)
				}
				if got[i].ID == "" {
					t.Fatalf("entry %d has no id", i)
				}
			}
			if got[1].OK || got[1].Error != "flood" {
				t.Fatalf("failed entry = %+v", got[1])
			}
			if !got[0].At.Equal(base.Add(4 * time.Second)) {
				t.Fatalf("At = %v", got[0].At)
			}
		})
	}
}

func TestFileStoreClosed(t *testing.T) {
	st, err := Open(Config{Driver: "file", Path: filepath.Join(t.TempDir(), "a")}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	_ = st.Close()
	if err := st.AppendAudit(context.Background(), AuditEntry{Text: "x"}); err == nil {
		t.Fatal("append after close should fail")
	}
}

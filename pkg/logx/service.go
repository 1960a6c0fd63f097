package logx

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"guildwatch/internal/transport"
)

type Config struct {
	Level    string
	Console  bool
	File     FileConfig
	Telegram TelegramConfig
}

type FileConfig struct {
	Enabled bool
	Path    string
}

// TelegramConfig forwards lines at or above MinLevel to the operator chat.
type TelegramConfig struct {
	Enabled    bool
	ThreadID   int
	MinLevel   string
	RatePerSec int
}

const defaultLogFile = "./guildwatch.log"

// Service owns the configured outputs. Apply rebuilds them in place and every
// Logger derived from the Service picks up the new outputs on its next line.
type Service struct {
	root atomic.Pointer[zerolog.Logger]

	mu   sync.Mutex
	file *os.File
	tg   *telegramSink
}

// New builds the Service from cfg. sender may be nil, which disables the
// Telegram sink regardless of cfg.
func New(cfg Config, sender transport.Sender) (*Service, Logger) {
	s := &Service{}
	if sender != nil {
		s.tg = newTelegramSink(sender)
	}
	s.Apply(cfg)
	return s, Logger{svc: s}
}

func (s *Service) Logger() Logger { return Logger{svc: s} }

func (s *Service) current() zerolog.Logger {
	if zl := s.root.Load(); zl != nil {
		return *zl
	}
	return zerolog.Nop()
}

// SetTelegramTarget points the Telegram sink at chatID. A zero threadID keeps
// the configured one.
func (s *Service) SetTelegramTarget(chatID int64, threadID int) {
	if s.tg != nil {
		s.tg.setTarget(chatID, threadID)
	}
}

// Apply swaps outputs and level. Safe for concurrent use.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var outs []io.Writer
	if cfg.Console {
		outs = append(outs, consoleWriter(os.Stdout))
	}

	if s.file != nil {
		_ = s.file.Close()
		s.file = nil
	}
	if cfg.File.Enabled {
		if f, err := openLogFile(cfg.File.Path); err != nil {
			fmt.Fprintf(os.Stderr, "logx: %v\n", err)
		} else {
			s.file = f
			outs = append(outs, zerolog.SyncWriter(f))
		}
	}

	if s.tg != nil {
		s.tg.configure(cfg.Telegram)
		if cfg.Telegram.Enabled {
			outs = append(outs, s.tg)
			if !s.tg.hasTarget() {
				fmt.Fprintln(os.Stderr, "logx: telegram logging enabled without a target chat")
			}
		}
	}

	if len(outs) == 0 {
		outs = append(outs, consoleWriter(os.Stdout))
	}
	zl := build(zerolog.MultiLevelWriter(outs...), parseLevel(cfg.Level, LevelInfo))
	s.root.Store(&zl)
}

func openLogFile(path string) (*os.File, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = defaultLogFile
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file %q: %w", path, err)
	}
	return f, nil
}

// Close stops the Telegram worker and closes the log file.
func (s *Service) Close() error {
	s.mu.Lock()
	f := s.file
	s.file = nil
	s.mu.Unlock()

	if s.tg != nil {
		s.tg.stop()
	}
	if f != nil {
		return f.Close()
	}
	return nil
}

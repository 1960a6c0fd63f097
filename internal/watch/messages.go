package watch

import (
	"fmt"
	"html"
	"strings"
	"text/template"
)

const (
	DefaultOnlineTemplate  = "✅ guildwatch is online! Tracking {{.Members}} members."
	DefaultLevelUpTemplate = "📈 {{.Name}} leveled up! ({{.From}} → {{.To}})"
	DefaultKillTemplate    = "☠️ {{.Actor}} killed {{.Target}} (15min PZ)"
)

// OnlineData feeds the online template.
type OnlineData struct {
	Members int
	Bot     string
}

// Messages renders notification text. Templates use text/template syntax with
// LevelChange, EventRecord and OnlineData as data.
type Messages struct {
	online  *template.Template
	levelUp *template.Template
	kill    *template.Template

	// escape is applied to every scraped string before rendering.
	escape func(string) string
}

type MessageOption func(*Messages)

// WithEscaper escapes names and timestamps before they reach a template, so a
// scraped "<" or "_" cannot break the chat's markup. nil leaves them as is.
func WithEscaper(fn func(string) string) MessageOption {
	return func(m *Messages) { m.escape = fn }
}

// EscaperFor returns the escaper matching a Telegram parse mode, or nil for
// plain text.
func EscaperFor(parseMode string) func(string) string {
	switch strings.ToLower(strings.TrimSpace(parseMode)) {
	case "html":
		return html.EscapeString
	case "markdownv2":
		return markdownV2Escaper.Replace
	case "markdown":
		return markdownEscaper.Replace
	default:
		return nil
	}
}

var (
	markdownV2Escaper = strings.NewReplacer(
		`\`, `\\`, "_", `\_`, "*", `\*`, "[", `\[`, "]", `\]`, "(", `\(`, ")", `\)`,
		"~", `\~`, "`", "\\`", ">", `\>`, "#", `\#`, "+", `\+`, "-", `\-`, "=", `\=`,
		"|", `\|`, "{", `\{`, "}", `\}`, ".", `\.`, "!", `\!`,
	)
	markdownEscaper = strings.NewReplacer("_", `\_`, "*", `\*`, "`", "\\`", "[", `\[`)
)

// ParseMessages compiles the templates; empty strings select the defaults.
func ParseMessages(online, levelUp, kill string, opts ...MessageOption) (*Messages, error) {
	var m Messages
	for _, opt := range opts {
		opt(&m)
	}
	var err error
	if m.online, err = parseOne("online", online, DefaultOnlineTemplate); err != nil {
		return nil, err
	}
	if m.levelUp, err = parseOne("level_up", levelUp, DefaultLevelUpTemplate); err != nil {
		return nil, err
	}
	if m.kill, err = parseOne("kill", kill, DefaultKillTemplate); err != nil {
		return nil, err
	}
	return &m, nil
}

// DefaultMessages returns the built-in wording.
func DefaultMessages() *Messages {
	m, err := ParseMessages("", "", "")
	if err != nil {
		panic(err)
	}
	return m
}

func parseOne(name, text, def string) (*template.Template, error) {
	if strings.TrimSpace(text) == "" {
		text = def
	}
	t, err := template.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("messages.%s: %w", name, err)
	}
	// Render once with zero data so field typos fail at load time.
	var probe any
	switch name {
	case "online":
		probe = OnlineData{}
	case "level_up":
		probe = LevelChange{}
	default:
		probe = EventRecord{}
	}
	if err := t.Execute(&strings.Builder{}, probe); err != nil {
		return nil, fmt.Errorf("messages.%s: %w", name, err)
	}
	return t, nil
}

func render(t *template.Template, data any, fallback func() string) string {
	var b strings.Builder
	if err := t.Execute(&b, data); err != nil {
		return fallback()
	}
	return b.String()
}

func (m *Messages) esc(s string) string {
	if m.escape == nil {
		return s
	}
	return m.escape(s)
}

func (m *Messages) Online(d OnlineData) string {
	d.Bot = m.esc(d.Bot)
	return render(m.online, d, func() string { return "guildwatch is online" })
}

func (m *Messages) LevelUp(c LevelChange) string {
	c.Name = m.esc(c.Name)
	return render(m.levelUp, c, func() string { return fmt.Sprintf("%s: %d -> %d", c.Name, c.From, c.To) })
}

func (m *Messages) Kill(r EventRecord) string {
	r.Actor, r.Target, r.Timestamp = m.esc(r.Actor), m.esc(r.Target), m.esc(r.Timestamp)
	return render(m.kill, r, func() string { return fmt.Sprintf("%s killed %s", r.Actor, r.Target) })
}

package logging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/user"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/randomizedcoder/go-callapp/internal/charset"
)

// CategoryKey is the attribute that overrides the category column of a
// diagnostic file line. Without it the category comes from the level.
const CategoryKey = "category"

// Diagnostic file categories.
const (
	CategoryEnv    = "ENV"
	CategoryConfig = "CONFIG"
	CategoryInfo   = "INFO"
	CategoryWarn   = "WARN"
	CategoryError  = "ERROR"
	CategoryDebug  = "DEBUG"
)

// Category returns an attribute selecting the diagnostic file category.
func Category(name string) slog.Attr {
	return slog.String(CategoryKey, name)
}

// DiagFileConfig configures NewDiagFile.
type DiagFileConfig struct {
	// Dir receives the log file. Must exist.
	Dir string

	// Service names the file: <yyyyMMdd_HHmmss>_<Service>.log.
	Service string

	// Detailed appends the full wrapped-error chain to error attributes.
	Detailed bool

	// Level is the minimum level written (default: info).
	Level slog.Leveler

	// Charset encodes the file (default: UTF-8).
	Charset charset.Charset

	// Now overrides the clock (for tests).
	Now func() time.Time
}

// DiagFile is an append-only slog.Handler writing one tab-separated line
// per record. The file name is fixed when the handler is created.
// Write failures are swallowed.
type DiagFile struct {
	state  *diagState
	attrs  []slog.Attr
	groups []string
}

type diagState struct {
	mu       sync.Mutex
	path     string
	detailed bool
	level    slog.Leveler
	cs       charset.Charset
	now      func() time.Time
}

// NewDiagFile creates the handler. No file is touched until the first record.
func NewDiagFile(cfg DiagFileConfig) *DiagFile {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	level := cfg.Level
	if level == nil {
		level = slog.LevelInfo
	}
	cs := cfg.Charset
	if cs.Encoding == nil {
		cs = charset.UTF8
	}

	name := now().Format("20060102_150405") + "_" + cfg.Service + ".log"
	return &DiagFile{
		state: &diagState{
			path:     filepath.Join(cfg.Dir, name),
			detailed: cfg.Detailed,
			level:    level,
			cs:       cs,
			now:      now,
		},
	}
}

// Path returns the file the handler appends to.
func (h *DiagFile) Path() string {
	return h.state.path
}

func (h *DiagFile) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.state.level.Level()
}

func (h *DiagFile) Handle(_ context.Context, r slog.Record) error {
	category := levelCategory(r.Level)

	var b strings.Builder
	b.WriteString(r.Message)

	var chains []string
	write := func(a slog.Attr) {
		a.Value = a.Value.Resolve()
		if a.Key == CategoryKey {
			category = a.Value.String()
			return
		}
		if a.Equal(slog.Attr{}) {
			return
		}
		fmt.Fprintf(&b, " %s=%s", a.Key, a.Value.String())

		if err, ok := a.Value.Any().(error); ok && h.state.detailed {
			chains = append(chains, errorChain(err)...)
		}
	}

	for _, a := range h.attrs {
		write(a)
	}
	r.Attrs(func(a slog.Attr) bool {
		write(h.qualify(a))
		return true
	})

	h.state.write(r.Time, category, b.String())
	for _, cause := range chains {
		h.state.write(r.Time, category, "\tcaused by: "+cause)
	}
	return nil
}

func (h *DiagFile) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := *h
	c.attrs = append([]slog.Attr(nil), h.attrs...)
	for _, a := range attrs {
		c.attrs = append(c.attrs, h.qualify(a))
	}
	return &c
}

func (h *DiagFile) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	c := *h
	c.groups = append(append([]string(nil), h.groups...), name)
	return &c
}

// qualify prefixes the key with the open groups. The category key is
// never qualified.
func (h *DiagFile) qualify(a slog.Attr) slog.Attr {
	if len(h.groups) == 0 || a.Key == CategoryKey {
		return a
	}
	a.Key = strings.Join(h.groups, ".") + "." + a.Key
	return a
}

// Separator writes a dashed separator line.
func (h *DiagFile) Separator() {
	h.state.write(time.Time{}, "----", strings.Repeat("-", 56))
}

// DumpEnvironment writes the process environment (ENV lines) and the
// supplied settings (CONFIG lines, sorted by key) to the file.
func (h *DiagFile) DumpEnvironment(version string, settings map[string]string) {
	s := h.state
	now := s.now()

	h.Separator()
	s.write(now, CategoryEnv, "#START_DT\t"+now.Format("20060102_150405"))
	s.write(now, CategoryEnv, "#MACHINE_NAME\t"+strings.ToUpper(hostname()))
	s.write(now, CategoryEnv, "#USER_NAME\t"+strings.ToUpper(username()))
	s.write(now, CategoryEnv, "#USER_DOMAIN\t"+strings.ToUpper(userDomain()))
	s.write(now, CategoryEnv, "#VERSION\t"+version)
	s.write(now, "", "")
	s.write(now, CategoryConfig, "#startup settings:")

	keys := make([]string, 0, len(settings))
	for k := range settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		s.write(now, CategoryConfig, k+"\t"+settings[k])
	}
}

func (s *diagState) write(t time.Time, category, line string) {
	if t.IsZero() {
		t = s.now()
	}
	text := t.Format("15:04:05") + "\t" + category + "\t" + line + "\n"

	s.mu.Lock()
	defer s.mu.Unlock()
	_ = charset.AppendFile(s.path, s.cs, text)
}

func levelCategory(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return CategoryError
	case level >= slog.LevelWarn:
		return CategoryWarn
	case level >= slog.LevelInfo:
		return CategoryInfo
	default:
		return CategoryDebug
	}
}

// errorChain lists the wrapped causes of err, outermost first.
func errorChain(err error) []string {
	var chain []string
	for err != nil {
		if joined, ok := err.(interface{ Unwrap() []error }); ok {
			for _, e := range joined.Unwrap() {
				chain = append(chain, fmt.Sprintf("%T: %v", e, e))
				chain = append(chain, errorChain(e)...)
			}
			return chain
		}
		if err = errors.Unwrap(err); err != nil {
			chain = append(chain, fmt.Sprintf("%T: %v", err, err))
		}
	}
	return chain
}

func hostname() string {
	name, err := os.Hostname()
	if err != nil {
		return ""
	}
	return name
}

func username() string {
	if u, err := user.Current(); err == nil {
		// Windows reports DOMAIN\user.
		if i := strings.LastIndexByte(u.Username, '\\'); i >= 0 {
			return u.Username[i+1:]
		}
		return u.Username
	}
	return os.Getenv("USER")
}

func userDomain() string {
	if d := os.Getenv("USERDOMAIN"); d != "" {
		return d
	}
	if u, err := user.Current(); err == nil {
		if i := strings.LastIndexByte(u.Username, '\\'); i >= 0 {
			return u.Username[:i]
		}
	}
	return hostname()
}

// Package formatter turns raw characteristic values into display strings using
// small Lua scripts.
//
// A script defines a global function format(value) that receives the raw bytes
// as a Lua string and returns the display string:
//
//	function format(v)
//	  return string.format("%d%%", string.byte(v, 1))
//	end
//
// The helpers hex(v), uint_le(v) and int_le(v) are preloaded.
package formatter

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/aarzilli/golua/lua"
	"github.com/sirupsen/logrus"
)

// EntryPoint is the global function every script must define.
const EntryPoint = "format"

// Error describes a failed script load or call.
type Error struct {
	Type    string // "syntax", "runtime", "api"
	Message string
	Line    int
	Source  string
}

func (e *Error) Error() string {
	parts := []string{}
	if e.Source != "" {
		parts = append(parts, fmt.Sprintf("in %s", e.Source))
	}
	if e.Line > 0 {
		parts = append(parts, fmt.Sprintf("line %d", e.Line))
	}
	prefix := "Lua error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("Lua %s error (%s)", e.Type, strings.Join(parts, ", "))
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Type == t.Type
	}
	return false
}

var (
	ErrSyntax  = &Error{Type: "syntax"}
	ErrRuntime = &Error{Type: "runtime"}
	ErrAPI     = &Error{Type: "api"}
)

// Formatter owns one Lua state. It is safe for concurrent use; calls are serialized.
type Formatter struct {
	mu     sync.Mutex
	state  *lua.State
	name   string
	logger *logrus.Logger
}

// Compile loads a script and checks that it defines the entry point.
func Compile(name, script string, logger *logrus.Logger) (*Formatter, error) {
	if logger == nil {
		logger = logrus.New()
	}
	if strings.TrimSpace(script) == "" {
		return nil, &Error{Type: "api", Message: "empty script", Source: name}
	}

	L := lua.NewState()
	L.OpenLibs()
	registerHelpers(L)

	if status := L.LoadString(script); status != 0 {
		err := popError(L, "syntax", name)
		L.Close()
		return nil, err
	}
	if err := L.Call(0, 0); err != nil {
		L.Close()
		return nil, &Error{Type: "runtime", Message: err.Error(), Source: name}
	}

	L.GetGlobal(EntryPoint)
	isFn := L.IsFunction(-1)
	L.Pop(1)
	if !isFn {
		L.Close()
		return nil, &Error{Type: "api", Message: fmt.Sprintf("script does not define %s(value)", EntryPoint), Source: name}
	}

	logger.WithField("formatter", name).Debug("Lua formatter compiled")
	return &Formatter{state: L, name: name, logger: logger}, nil
}

// CompileFile reads and compiles a script file.
func CompileFile(path string, logger *logrus.Logger) (*Formatter, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read formatter script %s: %w", path, err)
	}
	return Compile(path, string(content), logger)
}

// Name returns the script name used in error messages.
func (f *Formatter) Name() string {
	return f.name
}

// Format runs format(value) and returns its string result.
func (f *Formatter) Format(value []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state == nil {
		return "", &Error{Type: "api", Message: "formatter is closed", Source: f.name}
	}
	L := f.state
	top := L.GetTop()
	defer L.SetTop(top)

	L.GetGlobal(EntryPoint)
	L.PushString(string(value))
	if err := L.Call(1, 1); err != nil {
		f.logger.WithFields(logrus.Fields{
			"formatter": f.name,
			"error":     err,
		}).Debug("Lua formatter failed")
		return "", &Error{Type: "runtime", Message: err.Error(), Source: f.name}
	}

	if !L.IsString(-1) {
		return "", &Error{Type: "api", Message: fmt.Sprintf("%s must return a string", EntryPoint), Source: f.name}
	}
	return L.ToString(-1), nil
}

// Func adapts the formatter to a plain value formatter function.
func (f *Formatter) Func() func([]byte) (string, error) {
	return f.Format
}

// Close releases the Lua state.
func (f *Formatter) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != nil {
		f.state.Close()
		f.state = nil
	}
}

func popError(L *lua.State, errType, source string) *Error {
	if L.GetTop() == 0 {
		return &Error{Type: errType, Message: "unknown Lua error", Source: source}
	}
	msg := "non-string error object"
	if L.IsString(-1) {
		msg = L.ToString(-1)
	}
	L.Pop(1)

	// messages look like `[string "..."]:3: unexpected symbol`
	line := 0
	message := msg
	if parts := strings.SplitN(msg, ":", 3); len(parts) == 3 {
		if n, err := fmt.Sscanf(strings.TrimSpace(parts[1]), "%d", &line); err == nil && n == 1 {
			message = strings.TrimSpace(parts[2])
		}
	}
	return &Error{Type: errType, Message: message, Line: line, Source: source}
}

func registerHelpers(L *lua.State) {
	L.PushGoFunction(func(L *lua.State) int {
		L.PushString(hex.EncodeToString([]byte(L.ToString(1))))
		return 1
	})
	L.SetGlobal("hex")

	L.PushGoFunction(func(L *lua.State) int {
		L.PushInteger(int64(decodeLE(L.ToString(1))))
		return 1
	})
	L.SetGlobal("uint_le")

	L.PushGoFunction(func(L *lua.State) int {
		b := L.ToString(1)
		v := decodeLE(b)
		if n := len(b); n > 0 && n < 8 && b[n-1]&0x80 != 0 {
			v -= 1 << (8 * uint(n))
		}
		L.PushInteger(int64(v))
		return 1
	})
	L.SetGlobal("int_le")
}

// decodeLE reads up to 8 bytes as a little-endian integer
func decodeLE(s string) uint64 {
	var v uint64
	for i := 0; i < len(s) && i < 8; i++ {
		v |= uint64(s[i]) << (8 * uint(i))
	}
	return v
}

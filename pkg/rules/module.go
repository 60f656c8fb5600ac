package rules

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/auto-mdf/mdfctl/pkg/bridge"
	"github.com/dop251/goja"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var ErrNoRegister = errors.New("rules: script did not call register()")
var ErrHookTimeout = errors.New("rules: js hook timeout")

// Module is one JS rule file. A Module is not safe for concurrent use; the
// goja runtime is single-threaded.
type Module struct {
	vm     *goja.Runtime
	config *goja.Object
	source string

	name        string
	classifyFn  goja.Callable
	initFn      goja.Callable
	onErrorFn   goja.Callable
	hookTimeout time.Duration

	state *goja.Object
	stats Stats
}

type Options struct {
	HookTimeout time.Duration
}

func LoadFromFile(ctx context.Context, path string, opts Options) (*Module, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read rule script")
	}
	return LoadSource(ctx, path, string(b), opts)
}

func LoadBuiltin(ctx context.Context, opts Options) (*Module, error) {
	return LoadSource(ctx, "rules:builtin", builtinJS, opts)
}

func LoadSource(ctx context.Context, name, src string, opts Options) (*Module, error) {
	_ = ctx

	m := &Module{vm: goja.New(), source: name, hookTimeout: opts.HookTimeout}
	enableConsole(m.vm, name)
	m.state = m.vm.NewObject()

	if err := m.vm.Set("register", func(config goja.Value) error {
		if m.config != nil {
			return errors.New("register() called more than once")
		}
		if isNullish(config) {
			return errors.New("register(config) requires a config object")
		}
		m.config = config.ToObject(m.vm)
		return nil
	}); err != nil {
		return nil, errors.Wrap(err, "set register")
	}

	if _, err := m.vm.RunScript("rules:helpers", helpersJS); err != nil {
		return nil, errors.Wrap(err, "load helpers")
	}
	if err := injectGoHelpers(m); err != nil {
		return nil, err
	}

	prog, err := goja.Compile(name, src, false)
	if err != nil {
		return nil, errors.Wrap(err, "compile rule script")
	}
	if _, err := m.vm.RunProgram(prog); err != nil {
		return nil, errors.Wrap(err, "run rule script")
	}
	if m.config == nil {
		return nil, ErrNoRegister
	}

	nameVal := m.config.Get("name")
	if isNullish(nameVal) || strings.TrimSpace(nameVal.String()) == "" {
		return nil, errors.New("register({ name: string, ... }): name is required")
	}
	m.name = nameVal.String()

	fn, ok := goja.AssertFunction(m.config.Get("classify"))
	if !ok {
		return nil, errors.New("register({ classify: function(line, ctx), ... }): classify is required")
	}
	m.classifyFn = fn
	if fn, ok := goja.AssertFunction(m.config.Get("init")); ok {
		m.initFn = fn
	}
	if fn, ok := goja.AssertFunction(m.config.Get("onError")); ok {
		m.onErrorFn = fn
	}

	if m.initFn != nil {
		ctxObj := m.buildContext("init")
		if _, err := m.callHook(m.initFn, ctxObj); err != nil {
			m.stats.HookErrors++
			m.callOnError("init", err, goja.Undefined(), ctxObj)
		}
	}
	return m, nil
}

func (m *Module) Name() string   { return m.name }
func (m *Module) Source() string { return m.source }
func (m *Module) Stats() Stats   { return m.stats }

// Classify runs the rule against one output line. A nil match means the rule
// did not recognize it.
func (m *Module) Classify(line string) (*Match, *ErrorRecord) {
	m.stats.LinesSeen++
	line = strings.TrimRight(line, "\r\n")
	ctxObj := m.buildContext("classify")

	v, err := m.callHook(m.classifyFn, m.vm.ToValue(line), ctxObj)
	if err != nil {
		m.stats.HookErrors++
		m.callOnError("classify", err, m.vm.ToValue(line), ctxObj)
		return nil, m.newErrorRecord("classify", err, line)
	}
	match, err := m.normalize(v, line)
	if err != nil {
		m.stats.HookErrors++
		return nil, m.newErrorRecord("classify", err, line)
	}
	if match != nil {
		m.stats.Matches++
	}
	return match, nil
}

func (m *Module) normalize(v goja.Value, raw string) (*Match, error) {
	if isNullish(v) {
		return nil, nil
	}
	out := &Match{Rule: m.name, Level: "INFO", Message: raw, Raw: raw}

	// shorthand: a string is the level
	if s, ok := v.Export().(string); ok {
		if strings.TrimSpace(s) == "" {
			return nil, nil
		}
		out.Level = strings.ToUpper(s)
		return out, nil
	}
	obj, ok := v.(*goja.Object)
	if !ok {
		if b, ok := v.Export().(bool); ok {
			if !b {
				return nil, nil
			}
			return out, nil
		}
		return nil, errors.Errorf("classify must return an object, string or null, got %T", v.Export())
	}

	if lv := obj.Get("level"); !isNullish(lv) {
		out.Level = strings.ToUpper(lv.String())
	}
	if mv := obj.Get("message"); !isNullish(mv) {
		out.Message = mv.String()
	}
	if dv := obj.Get("detail"); !isNullish(dv) {
		out.Detail = dv.String()
	}
	if sv := obj.Get("signal"); !isNullish(sv) {
		kind := bridge.SignalKind(sv.String())
		if !kind.Valid() {
			return nil, errors.Errorf("unknown signal %q", sv.String())
		}
		out.Signal = kind
		if out.Detail == "" {
			out.Detail = raw
		}
	}
	if tv := obj.Get("at"); !isNullish(tv) {
		if t, ok := tv.Export().(time.Time); ok {
			out.At = &t
		} else if t, err := dateparse.ParseAny(tv.String()); err == nil {
			out.At = &t
		}
	}
	return out, nil
}

func (m *Module) buildContext(hook string) *goja.Object {
	obj := m.vm.NewObject()
	_ = obj.Set("hook", hook)
	_ = obj.Set("rule", m.name)
	_ = obj.Set("state", m.state)
	_ = obj.Set("now", m.newDate(time.Now().UTC()))
	return obj
}

func (m *Module) newDate(t time.Time) goja.Value {
	o, err := m.vm.New(m.vm.Get("Date"), m.vm.ToValue(t.UnixMilli()))
	if err != nil {
		return goja.Undefined()
	}
	return o
}

func (m *Module) callHook(fn goja.Callable, args ...goja.Value) (goja.Value, error) {
	if m.hookTimeout > 0 {
		timer := time.AfterFunc(m.hookTimeout, func() {
			m.vm.Interrupt(ErrHookTimeout)
		})
		defer timer.Stop()
		defer m.vm.ClearInterrupt()
	}
	v, err := fn(goja.Undefined(), args...)
	if err != nil {
		if isInterruptedByTimeout(err) {
			m.stats.HookTimeouts++
		}
		return nil, err
	}
	return v, nil
}

func (m *Module) callOnError(hook string, err error, payload goja.Value, ctxObj *goja.Object) {
	if m.onErrorFn == nil {
		return
	}
	_ = ctxObj.Set("hook", hook)
	_, _ = m.onErrorFn(goja.Undefined(), m.vm.ToValue(err.Error()), payload, ctxObj)
}

func (m *Module) newErrorRecord(hook string, err error, raw string) *ErrorRecord {
	return &ErrorRecord{
		Rule:    m.name,
		Hook:    hook,
		Timeout: isInterruptedByTimeout(err),
		Message: err.Error(),
		Raw:     raw,
	}
}

// console output goes to the host log; stdout may be a bridge channel.
func enableConsole(vm *goja.Runtime, source string) {
	obj := vm.NewObject()
	logAt := func(level string) func(goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			parts := make([]string, 0, len(call.Arguments))
			for _, a := range call.Arguments {
				parts = append(parts, a.String())
			}
			msg := strings.Join(parts, " ")
			switch level {
			case "warn":
				log.Warn().Str("rule", source).Msg(msg)
			case "error":
				log.Error().Str("rule", source).Msg(msg)
			default:
				log.Info().Str("rule", source).Msg(msg)
			}
			return goja.Undefined()
		}
	}
	_ = obj.Set("log", logAt("log"))
	_ = obj.Set("warn", logAt("warn"))
	_ = obj.Set("error", logAt("error"))
	_ = vm.Set("console", obj)
}

func isNullish(v goja.Value) bool {
	if v == nil {
		return true
	}
	return goja.IsUndefined(v) || goja.IsNull(v)
}

func isInterruptedByTimeout(err error) bool {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		if v, ok := interrupted.Value().(error); ok && errors.Is(v, ErrHookTimeout) {
			return true
		}
	}
	return errors.Is(err, ErrHookTimeout)
}

func injectGoHelpers(m *Module) error {
	rulesVal := m.vm.Get("rules")
	if isNullish(rulesVal) {
		return errors.New("rules: helpers did not define globalThis.rules")
	}
	obj := rulesVal.ToObject(m.vm)

	// rules.parseTimestamp(value) -> Date | null
	if err := obj.Set("parseTimestamp", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) == 0 || isNullish(call.Arguments[0]) {
			return goja.Null()
		}
		s := strings.TrimSpace(call.Arguments[0].String())
		if s == "" {
			return goja.Null()
		}
		t, err := dateparse.ParseAny(s)
		if err != nil {
			return goja.Null()
		}
		return m.newDate(t.UTC())
	}); err != nil {
		return errors.Wrap(err, "set rules.parseTimestamp")
	}
	return nil
}

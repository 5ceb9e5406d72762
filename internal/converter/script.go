package converter

import (
	"context"
	"strings"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/ginjaninja78/edi-ingest/internal/expr"
	"github.com/ginjaninja78/edi-ingest/internal/logging"
)

// DefaultScriptTimeout bounds one SCRIPT evaluation.
const DefaultScriptTimeout = 200 * time.Millisecond

// ScriptRunner evaluates SCRIPT field mappings in a sandboxed Lua state.
// Each call gets a fresh state with only the base, string, table and math
// libraries, and these globals:
//
//	value    resolved source path, or nil
//	record   columns produced so far for the current row
//	context  partnerId, fileName, ediType, timestamp and additional values
//
// A script that parses as an expression is evaluated as one; anything else
// runs as a statement block.
type ScriptRunner struct {
	timeout time.Duration
	logger  logging.Logger
}

// NewScriptRunner creates a runner. A non-positive timeout disables the limit.
func NewScriptRunner(timeout time.Duration, logger logging.Logger) *ScriptRunner {
	return &ScriptRunner{timeout: timeout, logger: logging.OrNop(logger)}
}

// Run evaluates tc.Field.Script. Errors and timeouts are logged and yield nil.
func (s *ScriptRunner) Run(tc *TransformContext) any {
	code := strings.TrimSpace(tc.Field.Script)
	if code == "" {
		s.logger.Warn("SCRIPT field %s has no script", tc.Field.Name)
		return nil
	}

	L := newSandboxState()
	defer L.Close()

	ctx := tc.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	L.SetContext(ctx)

	if v, ok := tc.StringValue(tc.Field.Source); ok {
		L.SetGlobal("value", lua.LString(v))
	} else {
		L.SetGlobal("value", lua.LNil)
	}
	L.SetGlobal("record", recordTable(L, tc))
	L.SetGlobal("context", contextTable(L, tc))

	fn, err := compileScript(L, code)
	if err != nil {
		s.logger.Warn("SCRIPT field %s does not compile: %v", tc.Field.Name, err)
		return nil
	}
	L.Push(fn)
	if err := L.PCall(0, 1, nil); err != nil {
		s.logger.Warn("SCRIPT field %s failed: %v", tc.Field.Name, err)
		return nil
	}

	ret := L.Get(-1)
	L.Pop(1)
	return fromLValue(ret)
}

// compileScript loads code as an expression first and falls back to a
// statement block, so a string literal containing "return" still evaluates
// as an expression.
func compileScript(L *lua.LState, code string) (*lua.LFunction, error) {
	if fn, err := L.LoadString("return (" + code + ")"); err == nil {
		return fn, nil
	}
	return L.LoadString(code)
}

func newSandboxState() *lua.LState {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	for _, lib := range []struct {
		name string
		open lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.StringLibName, lua.OpenString},
		{lua.TabLibName, lua.OpenTable},
		{lua.MathLibName, lua.OpenMath},
	} {
		L.Push(L.NewFunction(lib.open))
		L.Push(lua.LString(lib.name))
		L.Call(1, 0)
	}
	return L
}

func recordTable(L *lua.LState, tc *TransformContext) *lua.LTable {
	t := L.NewTable()
	if tc.Output == nil {
		return t
	}
	for _, k := range tc.Output.Keys() {
		t.RawSetString(k, toLValue(tc.Output.Value(k)))
	}
	return t
}

func contextTable(L *lua.LState, tc *TransformContext) *lua.LTable {
	t := L.NewTable()
	c := tc.Context
	if c == nil {
		return t
	}
	t.RawSetString("partnerId", lua.LString(c.PartnerID))
	t.RawSetString("fileName", lua.LString(c.FileName))
	t.RawSetString("ediType", lua.LString(c.EDIType))
	if !c.Timestamp.IsZero() {
		t.RawSetString("timestamp", lua.LString(c.Timestamp.Format(expr.TimestampLayout)))
	}
	for k, v := range c.Additional {
		t.RawSetString(k, toLValue(v))
	}
	return t
}

// toLValue converts a record value to a Lua scalar. Values without a Lua
// counterpart are passed as text.
func toLValue(v any) lua.LValue {
	switch val := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(val)
	case int:
		return lua.LNumber(val)
	case int64:
		return lua.LNumber(val)
	case float64:
		return lua.LNumber(val)
	case string:
		return lua.LString(val)
	default:
		return lua.LString(expr.Stringify(val))
	}
}

// fromLValue converts a script result. Whole numbers become int so they
// coerce cleanly to INTEGER columns; tables are not valid field values.
func fromLValue(v lua.LValue) any {
	switch v.Type() {
	case lua.LTNil:
		return nil
	case lua.LTBool:
		return lua.LVAsBool(v)
	case lua.LTNumber:
		n := float64(v.(lua.LNumber))
		if n == float64(int64(n)) {
			return int(n)
		}
		return n
	case lua.LTString:
		return v.String()
	default:
		return nil
	}
}

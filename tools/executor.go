// Sandboxed script execution for user-authored tool bodies, on the goja
// JavaScript interpreter.
//
// The body runs in an isolated call scope with exactly two injected
// capabilities: the decoded argument mapping and a network-fetch primitive.
// No other ambient environment is reachable. Capability limiting is the
// sandbox model; additionally a wall-clock interrupt bounds runaway scripts,
// since an untrusted `while(true)` would otherwise wedge the process.

package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dop251/goja"
)

// ExecutionError is the single typed failure a tool body can produce. Every
// exception or rejected result inside the script is converted into one;
// Message carries the script's original error message so it can be fed back
// to the model in-band.
type ExecutionError struct {
	Tool    string
	Message string
}

func (e *ExecutionError) Error() string {
	return e.Message
}

// Executor runs tool bodies. Safe for concurrent use; each execution gets a
// fresh interpreter.
type Executor struct {
	timeout    time.Duration
	httpClient *http.Client
}

// DefaultTimeout bounds one tool execution.
const DefaultTimeout = 30 * time.Second

// NewExecutor creates an executor with the default timeout.
func NewExecutor() *Executor {
	return NewExecutorWithTimeout(DefaultTimeout)
}

// NewExecutorWithTimeout creates an executor with a custom timeout.
func NewExecutorWithTimeout(timeout time.Duration) *Executor {
	return &Executor{
		timeout:    timeout,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Execute runs the tool's code body against args and returns the
// JSON-serialized result. Any failure inside the body is returned as an
// *ExecutionError, never allowed to propagate as an unhandled fault.
func (e *Executor) Execute(ctx context.Context, tool Tool, args map[string]any) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	vm := goja.New()
	if args == nil {
		args = map[string]any{}
	}
	if err := vm.Set("__args", args); err != nil {
		return "", &ExecutionError{Tool: tool.Name, Message: err.Error()}
	}
	if err := vm.Set("__fetch", e.fetchFunc(ctx, vm)); err != nil {
		return "", &ExecutionError{Tool: tool.Name, Message: err.Error()}
	}

	// Interrupt the interpreter when the deadline passes.
	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-ctx.Done():
			vm.Interrupt("tool execution timed out")
		case <-watchDone:
		}
	}()

	// The body runs as a function scope so `return` works and nothing leaks
	// into the global object.
	src := "(function(args, fetch) {\n" + tool.Code + "\n})(__args, __fetch);"
	value, err := vm.RunString(src)
	if err != nil {
		return "", &ExecutionError{Tool: tool.Name, Message: scriptErrorMessage(err)}
	}

	return serializeResult(value), nil
}

// serializeResult renders the script's return value as JSON.
func serializeResult(value goja.Value) string {
	if value == nil || goja.IsUndefined(value) || goja.IsNull(value) {
		return "null"
	}
	exported := value.Export()
	b, err := json.Marshal(exported)
	if err != nil {
		return fmt.Sprintf("%q", fmt.Sprint(exported))
	}
	return string(b)
}

// scriptErrorMessage extracts the original message from an interpreter
// failure: the thrown value's message for Error objects, the value itself
// for bare throws.
func scriptErrorMessage(err error) string {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		return "tool execution timed out"
	}

	var exception *goja.Exception
	if errors.As(err, &exception) {
		v := exception.Value()
		if obj, ok := v.(*goja.Object); ok {
			if msg := obj.Get("message"); msg != nil && !goja.IsUndefined(msg) {
				return msg.String()
			}
		}
		if v != nil {
			return v.String()
		}
	}
	return err.Error()
}

// fetchFunc builds the network-fetch primitive injected into the script
// scope. It supports GET and POST with an optional {method, body, headers}
// options object, and returns {status, ok, body, json()}.
func (e *Executor) fetchFunc(ctx context.Context, vm *goja.Runtime) func(call goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		url := call.Argument(0).String()
		if url == "" || goja.IsUndefined(call.Argument(0)) {
			panic(vm.ToValue("fetch: url is required"))
		}

		method := http.MethodGet
		var body io.Reader
		headers := map[string]string{}

		if opts, ok := call.Argument(1).Export().(map[string]any); ok {
			if m, ok := opts["method"].(string); ok && m != "" {
				method = strings.ToUpper(m)
			}
			if b, ok := opts["body"].(string); ok {
				body = strings.NewReader(b)
			}
			if hdrs, ok := opts["headers"].(map[string]any); ok {
				for k, v := range hdrs {
					if s, ok := v.(string); ok {
						headers[k] = s
					}
				}
			}
		}

		req, err := http.NewRequestWithContext(ctx, method, url, body)
		if err != nil {
			panic(vm.ToValue(fmt.Sprintf("fetch %s: %v", url, err)))
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := e.httpClient.Do(req)
		if err != nil {
			panic(vm.ToValue(fmt.Sprintf("fetch %s: %v", url, err)))
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			panic(vm.ToValue(fmt.Sprintf("fetch %s: reading body: %v", url, err)))
		}
		text := string(raw)

		result := vm.NewObject()
		_ = result.Set("status", resp.StatusCode)
		_ = result.Set("ok", resp.StatusCode >= 200 && resp.StatusCode < 300)
		_ = result.Set("body", text)
		_ = result.Set("json", func() goja.Value {
			var parsed any
			if err := json.Unmarshal(raw, &parsed); err != nil {
				panic(vm.ToValue(fmt.Sprintf("fetch %s: invalid json: %v", url, err)))
			}
			return vm.ToValue(parsed)
		})
		return result
	}
}

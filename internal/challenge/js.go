package challenge

import (
	"fmt"
	"time"

	"github.com/dop251/goja"

	"github.com/zboralski/xemu/internal/emulator"
	"github.com/zboralski/xemu/internal/loader"
)

const jsPrefix = "js:"

// jsTimeout bounds a single expression.
var jsTimeout = time.Second

// evalJS evaluates a JavaScript answer expression. The expression sees
// stdout, stderr, exit_code and exports (name to address), plus hex(n)
// which formats an address like the export answers do.
func evalJS(src string, exec *emulator.Execution, exports loader.Exports) (string, error) {
	vm := goja.New()

	table := make(map[string]interface{}, len(exports))
	for name, addr := range exports {
		table[name] = int64(addr)
	}
	globals := map[string]interface{}{
		"stdout":    exec.Stdout,
		"stderr":    exec.Stderr,
		"exit_code": int64(exec.ExitCode),
		"exports":   table,
		"hex": func(call goja.FunctionCall) goja.Value {
			arg := call.Argument(0)
			if goja.IsUndefined(arg) || goja.IsNull(arg) {
				panic(vm.NewTypeError("hex: missing value"))
			}
			return vm.ToValue(fmt.Sprintf("0x%x", uint64(arg.ToInteger())))
		},
	}
	for name, v := range globals {
		if err := vm.Set(name, v); err != nil {
			return "", err
		}
	}

	timer := time.AfterFunc(jsTimeout, func() {
		vm.Interrupt("timeout")
	})
	defer timer.Stop()

	v, err := vm.RunString(src)
	if err != nil {
		return "", fmt.Errorf("js %q: %w", src, err)
	}
	if v == nil || goja.IsUndefined(v) {
		return "", fmt.Errorf("js %q: no value", src)
	}
	return v.String(), nil
}

package config

import (
	"strings"
	"testing"
)

func TestSandboxLuaVM(t *testing.T) {
	tests := []struct {
		name    string
		code    string
		wantErr bool
		errMsg  string
	}{
		{name: "string library", code: `x = string.format("%s:%d", "host", 5678)`},
		{name: "table library", code: `t = {}; table.insert(t, "a")`},
		{name: "math library", code: `x = math.floor(5678.9)`},
		{name: "os blocked", code: `os.execute("true")`, wantErr: true, errMsg: "attempt to index"},
		{name: "io blocked", code: `io.open("/etc/hosts")`, wantErr: true, errMsg: "attempt to index"},
		{name: "require blocked", code: `require("socket")`, wantErr: true, errMsg: "attempt to call"},
		{name: "dofile blocked", code: `dofile("/tmp/x.lua")`, wantErr: true, errMsg: "attempt to call"},
		{name: "loadstring blocked", code: `loadstring("return 1")()`, wantErr: true, errMsg: "attempt to call"},
		{name: "debug blocked", code: `debug.getinfo(1)`, wantErr: true, errMsg: "attempt to index"},
		{name: "package hidden", code: `package.loaded.string = nil`, wantErr: true, errMsg: "attempt to index"},
		{name: "load hidden", code: `load(function() return nil end)`, wantErr: true, errMsg: "attempt to call"},
		{name: "runaway recursion", code: `local function f(n) return 1 + f(n + 1) end f(1)`, wantErr: true, errMsg: "stack overflow"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			L := newSandboxedVM()
			defer L.Close()

			err := L.DoString(tt.code)
			if (err != nil) != tt.wantErr {
				t.Fatalf("DoString() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("error = %q, want it to contain %q", err.Error(), tt.errMsg)
			}
		})
	}
}

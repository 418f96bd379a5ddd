package config

import (
	lua "github.com/yuin/gopher-lua"
)

// launcherLibs are the only standard libraries a launcher.lua may use.
// The package library is opened so modules register, then hidden.
var launcherLibs = []struct {
	name string
	open lua.LGFunction
}{
	{lua.LoadLibName, lua.OpenPackage},
	{lua.BaseLibName, lua.OpenBase},
	{lua.TabLibName, lua.OpenTable},
	{lua.StringLibName, lua.OpenString},
	{lua.MathLibName, lua.OpenMath},
}

// hiddenGlobals load or run code from outside the config file.
var hiddenGlobals = []string{"require", "package", "dofile", "loadfile", "load", "loadstring", "module"}

const (
	callStackSize = 64
	registrySize  = 16 * 1024
)

// sandboxLuaVM hides globals that could reach outside the config file.
// os, io and debug are never opened.
func sandboxLuaVM(L *lua.LState) {
	for _, name := range hiddenGlobals {
		L.SetGlobal(name, lua.LNil)
	}
}

// newSandboxedVM opens the allowlisted libraries into a small VM.
func newSandboxedVM() *lua.LState {
	L := lua.NewState(lua.Options{
		SkipOpenLibs:  true,
		CallStackSize: callStackSize,
		RegistrySize:  registrySize,
	})
	for _, lib := range launcherLibs {
		L.Push(L.NewFunction(lib.open))
		L.Push(lua.LString(lib.name))
		L.Call(1, 0)
	}
	sandboxLuaVM(L)
	return L
}

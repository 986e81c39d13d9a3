package ducky

import "sort"

// Built-in operating systems with hard-coded quick scripts.
const (
	OSWindows = "Windows"
	OSMacOS   = "MacOS"
	OSLinux   = "Linux"
)

func launcher(open, program string) string {
	return open + "\nDELAY 500\nSTRING " + program + "\nENTER"
}

var quickScripts = map[string]map[string]string{
	OSWindows: {
		"editor":     launcher("GUI r", "notepad"),
		"terminal":   launcher("GUI r", "cmd"),
		"calculator": launcher("GUI r", "calc"),
		"browser":    launcher("GUI r", "chrome"),
	},
	OSMacOS: {
		"editor":     launcher("GUI SPACE", "textedit"),
		"terminal":   launcher("GUI SPACE", "terminal"),
		"calculator": launcher("GUI SPACE", "calculator"),
		"browser":    launcher("GUI SPACE", "safari"),
	},
	OSLinux: {
		"editor":     "CTRL ALT T\nDELAY 1000\nSTRING gedit\nENTER",
		"terminal":   "CTRL ALT T",
		"calculator": launcher("GUI", "calc"),
		"browser":    launcher("GUI", "firefox"),
	},
}

// QuickScript returns the built-in script for name on os, or "" if there is none.
func QuickScript(name, os string) string {
	return quickScripts[os][name]
}

// QuickScriptNames lists the built-in script names for os, sorted.
func QuickScriptNames(os string) []string {
	names := make([]string, 0, len(quickScripts[os]))
	for name := range quickScripts[os] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// BuiltinOS reports whether os has built-in quick scripts.
func BuiltinOS(os string) bool {
	_, ok := quickScripts[os]
	return ok
}

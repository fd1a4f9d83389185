package ui

import (
	"io"

	"github.com/pterm/pterm"
)

// SetDebug toggles printing of Debug messages.
func SetDebug(enabled bool) {
	pterm.PrintDebugMessages = enabled
}

// SetOutput redirects all log prefixes to w and drops styling.
func SetOutput(w io.Writer) {
	pterm.SetDefaultOutput(w)
	pterm.DisableStyling()
}

func Printfln(format string, a ...interface{}) {
	pterm.Printfln(format, a...)
}

func Debug(format string, a ...interface{}) {
	pterm.Debug.Printfln(format, a...)
}

func Info(format string, a ...interface{}) {
	pterm.Info.Printfln(format, a...)
}

func Warning(format string, a ...interface{}) {
	pterm.Warning.Printfln(format, a...)
}

func Error(format string, a ...interface{}) {
	pterm.Error.Printfln(format, a...)
}

func Fatal(format string, a ...interface{}) {
	pterm.Fatal.Printfln(format, a...)
}

package console

import (
	"fmt"
	"strings"
	"time"

	"github.com/ericogr/heatingpad/pkg/heatingpad"
	"github.com/ericogr/heatingpad/pkg/output"
)

type ConsoleOutput struct{}

func NewConsole() output.Output { return &ConsoleOutput{} }

func (c *ConsoleOutput) Publish(st heatingpad.Status) error {
	fmt.Println(formatStatus(st))
	return nil
}

func (c *ConsoleOutput) Close() error { return nil }

func formatStatus(st heatingpad.Status) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s target=%d temperature=%.2f gate=%s",
		st.Timestamp.Format(time.RFC3339), st.Target, st.Temperature, gateName(st.Heating()))
	for _, r := range st.Readings {
		if r.Condition == heatingpad.Absent {
			continue
		}
		fmt.Fprintf(&b, " sensor%d=%.2f(%s)", r.Index, r.Raw, r.Condition)
	}
	return b.String()
}

func gateName(on bool) string {
	if on {
		return "on"
	}
	return "off"
}

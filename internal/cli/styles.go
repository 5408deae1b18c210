package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/qvm-dev/qvm/internal/vm"
	"github.com/qvm-dev/qvm/pkg/api"
)

// Minimal color palette - orange accent, bright readable text
var (
	orange  = lipgloss.Color("#ff8800")
	white   = lipgloss.Color("#ffffff")
	midGray = lipgloss.Color("#cccccc")
	dimGray = lipgloss.Color("#888888")
	red     = lipgloss.Color("#ff6b6b")
)

var (
	headerStyle = lipgloss.NewStyle().
			Foreground(white).
			Bold(true)

	labelStyle = lipgloss.NewStyle().
			Foreground(midGray)

	valueStyle = lipgloss.NewStyle().
			Foreground(white)

	runningStyle = lipgloss.NewStyle().
			Foreground(orange)

	stoppedStyle = lipgloss.NewStyle().
			Foreground(dimGray)

	brokenStyle = lipgloss.NewStyle().
			Foreground(red)
)

func stateStyle(s vm.State) lipgloss.Style {
	switch s {
	case vm.StateRunning:
		return runningStyle
	case vm.StateBroken:
		return brokenStyle
	default:
		return stoppedStyle
	}
}

// column pads s to width before styling so escape codes do not skew
// alignment.
func column(style lipgloss.Style, s string, width int) string {
	return style.Render(fmt.Sprintf("%-*s", width, s))
}

func describeDisplay(d api.Display) string {
	switch b := d.Backend.(type) {
	case api.VNCDisplay:
		if b.UseUnix {
			return fmt.Sprintf("vnc (unix:%s)", b.Sock)
		}
		return fmt.Sprintf("vnc (%s:%d, port %d)", b.Host, b.Display, 5900+int(b.Display))
	case api.SpiceDisplay:
		if b.UseUnix {
			return fmt.Sprintf("spice (unix:%s)", b.Sock)
		}
		return fmt.Sprintf("spice (%s:%d)", b.Addr, b.Port)
	case nil:
		return "-"
	default:
		return string(b.Mode())
	}
}

func describeNetwork(n api.Network) string {
	if n.Backend == nil {
		return "-"
	}
	s := string(n.Backend.Mode())
	if b, ok := n.Backend.(api.BridgedNetwork); ok {
		s += " (" + b.Interface + ")"
	}
	if len(n.Forwards) == 0 {
		return s
	}
	names := make([]string, 0, len(n.Forwards))
	for name := range n.Forwards {
		names = append(names, name)
	}
	sort.Strings(names)
	fwds := make([]string, 0, len(names))
	for _, name := range names {
		f := n.Forwards[name]
		fwds = append(fwds, fmt.Sprintf("%s=%s:%d:%d", name, f.Proto, f.Host, f.Guest))
	}
	return s + " [" + strings.Join(fwds, ", ") + "]"
}

package observability

import (
	"fmt"
	"os"
	"runtime"
	"strings"

	"golang.org/x/term"
)

const (
	colorReset = "\033[0m"
	colorCyan  = "\033[36m"
	colorBold  = "\033[1m"
)

func termWidth() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		return 80
	}
	return w
}

// PrintBanner prints the startup banner. Colors and the rule line are
// only used when stdout is a terminal.
func PrintBanner(name, address string) {
	interactive := term.IsTerminal(int(os.Stdout.Fd()))
	if !interactive {
		fmt.Printf("%s listening on %s (%s, %s/%s)\n",
			name, address, runtime.Version(), runtime.GOOS, runtime.GOARCH)
		return
	}

	width := termWidth()
	if width > 72 {
		width = 72
	}
	rule := strings.Repeat("─", width)

	fmt.Println(colorCyan + rule + colorReset)
	fmt.Printf("%s%s%s  listening on %s\n", colorBold, name, colorReset, address)
	fmt.Printf("%s, %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
	fmt.Println(colorCyan + rule + colorReset)
}

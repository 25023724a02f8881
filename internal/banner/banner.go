package banner

import (
	"fmt"
	"io"
	"strings"
)

const banner = `
   __ _ _      _           _
  / _(_) | ___| |__   ___ | |_
 | |_| | |/ _ \ '_ \ / _ \| __|
 |  _| | |  __/ |_) | (_) | |_
 |_| |_|_|\___|_.__/ \___/ \__|
`

type StartupInfo struct {
	Version      string
	Addr         string
	Bot          string
	Webhook      string
	Database     string
	CleanupAfter string
}

func PrintBanner(w io.Writer, info StartupInfo) {
	fmt.Fprint(w, banner)
	fmt.Fprintf(w, "                        v%s\n\n", info.Version)

	width := 50
	fmt.Fprintf(w, "  %s\n", strings.Repeat("─", width))
	fmt.Fprintf(w, "  → Address:  http://%s\n", formatAddr(info.Addr))
	if info.Bot != "" {
		fmt.Fprintf(w, "  → Bot:      @%s\n", info.Bot)
	}
	fmt.Fprintf(w, "  → Webhook:  %s\n", orNone(info.Webhook))
	fmt.Fprintf(w, "  → Database: %s\n", info.Database)
	fmt.Fprintf(w, "  → Cleanup:  %s\n", info.CleanupAfter)
	fmt.Fprintf(w, "  %s\n", strings.Repeat("─", width))
	fmt.Fprintln(w)
}

func orNone(s string) string {
	if s == "" {
		return "not set"
	}
	return s
}

func formatAddr(addr string) string {
	if strings.HasPrefix(addr, ":") {
		return "localhost" + addr
	}
	return addr
}

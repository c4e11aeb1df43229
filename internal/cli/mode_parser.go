package cli

import (
	"flag"
	"fmt"
	"io"
	"strings"
)

const (
	ModeWeb    = "web-service"
	ModeRelay  = "crm-relay"
	ModePoller = "crm-poller"
)

// isKnownMode checks if the provided mode name is known.
func isKnownMode(s string) (string, bool) {
	switch s {
	case ModeWeb, "web":
		return ModeWeb, true
	case ModeRelay, "relay":
		return ModeRelay, true
	case ModePoller, "poller":
		return ModePoller, true
	default:
		return "", false
	}
}

// ParseMode supports:
//
//	--mode=<value>
//	<value> (subcommand shorthand), e.g., `web-service --port=3000`
func ParseMode(args []string) (string, []string, error) {
	var mode string
	var out []string

	for i := 0; i < len(args); i++ {
		arg := args[i]
		if strings.HasPrefix(arg, "--mode=") {
			mode = strings.TrimPrefix(arg, "--mode=")
			continue
		}

		if mode == "" {
			if m, ok := isKnownMode(arg); ok {
				mode = m
				continue
			}
		}
		out = append(out, arg)
	}

	if mode == "" {
		return "", out, nil
	}

	m, ok := isKnownMode(mode)
	if !ok {
		return "", out, fmt.Errorf("unknown mode %q", mode)
	}

	return m, out, nil
}

// PrintUsage prints the usage information with examples.
func PrintUsage(w io.Writer) {
	fmt.Fprintln(w, `Usage:
  ./bookstore-orders --mode=<service> [flags]

Services (modes):
  web-service    HTTP API for orders, SSE notifications, and DLQ remediation
  crm-relay      RabbitMQ consumer that pushes new orders to the CRM
  crm-poller     Worker that polls the CRM for status changes

Examples:
  ./bookstore-orders --mode=web-service --port=3000
  ./bookstore-orders --mode=crm-relay
  ./bookstore-orders --mode=crm-poller`)
}

func AttachUsage(fs *flag.FlagSet, mode string) {
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: ./bookstore-orders --mode=%s [flags]\n", mode)
		fs.PrintDefaults()
	}
}

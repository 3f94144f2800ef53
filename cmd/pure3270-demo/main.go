// Command pure3270-demo connects to a TN3270 host, waits for the first
// non-empty screen, prints its text to stdout once, sends one key (Enter by
// default), and, with --trace, prints the recorded trace events before
// exiting.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/go3270/pure3270"
)

func main() {
	host := pflag.StringP("host", "h", "localhost", "TN3270 host to connect to.")
	port := pflag.IntP("port", "p", 23, "Port to connect to.")
	model := pflag.StringP("model", "m", "3278-2", "Terminal model to present.")
	luName := pflag.StringP("lu", "l", "", "Specific LU name to request.")
	trace := pflag.Bool("trace", false, "Print negotiation/parse trace events on exit.")
	key := pflag.StringP("key", "k", "Enter", "Key to send after the first screen arrives.")
	help := pflag.Bool("help", false, "Display help text.")

	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: pure3270-demo [flags]\n\n")
		pflag.PrintDefaults()
	}
	pflag.Parse()
	if *help {
		pflag.Usage()
		os.Exit(0)
	}

	cfg, err := pure3270.NewConfig(pure3270.Config{
		Host:                 *host,
		Port:                 *port,
		TerminalModel:        *model,
		LUName:               *luName,
		Trace:                *trace,
		AsciiFallbackAllowed: true,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}

	sess := pure3270.New(cfg)
	defer sess.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := sess.Connect(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "connect failed:", err)
		os.Exit(1)
	}

	res := sess.NegotiationResult()
	fmt.Printf("negotiated state=%s device=%s ascii=%v\n", res.State, res.DeviceType, res.AsciiMode)

	if err := sess.WaitFor(ctx, func(text string) bool { return text != "" }, 5*time.Second); err != nil {
		fmt.Fprintln(os.Stderr, "waiting for first screen:", err)
		os.Exit(1)
	}

	text, err := sess.ReadScreen(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read_screen failed:", err)
		os.Exit(1)
	}
	fmt.Println(text)

	if err := sess.Key(ctx, pure3270.Key(*key)); err != nil {
		fmt.Fprintln(os.Stderr, "key", *key, "failed:", err)
	}

	if *trace {
		for _, ev := range sess.TraceEvents() {
			fmt.Printf("trace: %s %v\n", ev.Kind, ev.Fields)
		}
	}
}

// Command gorz receives files over a serial-style byte stream using
// Xmodem, Ymodem, Zmodem, or Kermit, adapted from the teacher's
// lrz-workalike (cmd/grz) onto the transfer façade.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dlamine/goxfer/session"
	"github.com/dlamine/goxfer/transfer"
	"github.com/dlamine/goxfer/wire"
)

var (
	verbose = flag.Bool("v", false, "verbose mode")
	quiet   = flag.Bool("q", false, "quiet mode")
	debug   = flag.Bool("d", false, "debug logging")
	timeout = flag.Int("t", 100, "per-read timeout in tenths of seconds")
	help    = flag.Bool("h", false, "show help")
	version = flag.Bool("version", false, "show version")

	xmodemFlag = flag.Bool("xmodem", false, "use the Xmodem protocol")
	ymodemFlag = flag.Bool("ymodem", false, "use the Ymodem protocol")
	zmodemFlag = flag.Bool("zmodem", false, "use the Zmodem protocol (default)")
	kermitFlag = flag.Bool("kermit", false, "use the Kermit protocol")

	oneK    = flag.Bool("1k", false, "Xmodem-1K: 1024-byte blocks")
	crc     = flag.Bool("crc", false, "Xmodem/Ymodem: CRC-16 block trailer")
	g       = flag.Bool("g", false, "Ymodem-G / Xmodem-G: streaming, no per-block ACK")
	vanilla = flag.Bool("vanilla", false, "Zmodem: 16-bit CRC instead of 32-bit")
)

const versionString = "gorz version 0.1.0"

func main() {
	flag.Parse()

	if *help {
		showUsage(0)
	}
	if *version {
		fmt.Println(versionString)
		os.Exit(0)
	}

	target := "."
	switch flag.NArg() {
	case 0:
	case 1:
		target = flag.Arg(0)
	default:
		fmt.Fprintln(os.Stderr, "gorz: at most one destination (file for Xmodem, directory otherwise) may be given")
		showUsage(1)
	}

	protocol, err := selectProtocol()
	if err != nil {
		fmt.Fprintf(os.Stderr, "gorz: %v\n", err)
		os.Exit(1)
	}
	flavor := selectFlavor(protocol)

	if protocol == session.Xmodem && flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "gorz: Xmodem has no filename on the wire; a destination file path is required")
		showUsage(1)
	}
	if protocol != session.Xmodem {
		if err := os.MkdirAll(target, 0755); err != nil {
			fmt.Fprintf(os.Stderr, "gorz: %v\n", err)
			os.Exit(3)
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	ctx, cancel := signalContext(sigChan)
	defer cancel()

	logger := session.NewSlogLogger(*debug)
	ch := wire.NewSerialChannel(&stdinReaderWrapper{reader: os.Stdin}, os.Stdout, *timeout)

	tr, err := transfer.New(protocol, flavor, session.Download, nil, target, ch,
		session.WithLogger(logger))
	if err != nil {
		fmt.Fprintf(os.Stderr, "gorz: %v\n", err)
		os.Exit(1)
	}

	go func() {
		<-sigChan
		tr.Cancel(false)
	}()

	if !*quiet {
		go reportProgress(tr.Session(), *verbose)
	}

	state, err := tr.Run(ctx)
	if err != nil {
		if !*quiet {
			fmt.Fprintf(os.Stderr, "gorz: %v\n", err)
		}
		os.Exit(exitCode(err))
	}
	if !*quiet {
		fmt.Fprintf(os.Stderr, "gorz: %s, %d file(s) received\n", state, len(tr.Session().Files()))
	}
}

func selectProtocol() (session.Protocol, error) {
	chosen := 0
	p := session.Zmodem
	if *xmodemFlag {
		chosen++
		p = session.Xmodem
	}
	if *ymodemFlag {
		chosen++
		p = session.Ymodem
	}
	if *zmodemFlag {
		chosen++
		p = session.Zmodem
	}
	if *kermitFlag {
		chosen++
		p = session.Kermit
	}
	if chosen > 1 {
		return 0, fmt.Errorf("only one of --xmodem/--ymodem/--zmodem/--kermit may be given")
	}
	return p, nil
}

func selectFlavor(protocol session.Protocol) string {
	switch protocol {
	case session.Xmodem:
		switch {
		case *g:
			return "1k-g"
		case *oneK:
			return "1k"
		case *crc:
			return "crc"
		default:
			return "vanilla"
		}
	case session.Ymodem:
		switch {
		case *g:
			return "g"
		default:
			return "standard"
		}
	case session.Zmodem:
		if *vanilla {
			return "vanilla"
		}
		return "crc32"
	default:
		return ""
	}
}

func exitCode(err error) int {
	var te *session.TransferError
	if !errors.As(err, &te) {
		return 2
	}
	switch te.Kind {
	case session.ErrLocalCancel:
		return 4
	case session.ErrIO, session.ErrFile:
		return 3
	default:
		return 2
	}
}

func reportProgress(sn *session.Session, verbose bool) {
	for snap := range sn.Subscribe() {
		if !verbose {
			continue
		}
		fmt.Fprintf(os.Stderr, "\r%s: %s %.1f%%", snap.CurrentFile, snap.State, snap.PercentComplete)
		if snap.State.Terminal() {
			fmt.Fprintln(os.Stderr)
			return
		}
	}
}

// stdinReaderWrapper wraps os.Stdin to implement wire.ReaderWithDeadline.
type stdinReaderWrapper struct {
	reader *os.File
}

func (r *stdinReaderWrapper) Read(p []byte) (int, error) { return r.reader.Read(p) }
func (r *stdinReaderWrapper) SetReadDeadline(t time.Time) error {
	return r.reader.SetReadDeadline(t)
}

func signalContext(sigChan chan os.Signal) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-sigChan
		cancel()
	}()
	return ctx, cancel
}

func showUsage(exitcode int) {
	fmt.Fprintf(os.Stderr, `%s - receive files with Xmodem/Ymodem/Zmodem/Kermit

Usage: %s [options] [destination]

destination is the target file for Xmodem (which carries no filename on
the wire) or the target directory for Ymodem/Zmodem/Kermit (default ".").

Protocol selection:
  --xmodem         use Xmodem (destination is a file path)
  --ymodem         use Ymodem
  --zmodem         use Zmodem (default)
  --kermit         use Kermit

Flavor selection:
  --1k             Xmodem-1K
  --crc            Xmodem/Ymodem CRC-16 trailer
  --g              streaming variant (Xmodem-G / Ymodem-G)
  --vanilla        Zmodem with a 16-bit CRC instead of 32-bit

Options:
  -d               debug logging
  -h, --help       show this help message
  -q, --quiet      quiet mode, minimal output
  -t N             per-read timeout in tenths of seconds (default: 100)
  -v, --verbose    verbose mode
  --version        show version

Exit codes: 0 success, 1 usage error, 2 protocol abort, 3 I/O error, 4 user cancel
`, versionString, os.Args[0])
	os.Exit(exitcode)
}

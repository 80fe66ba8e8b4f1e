package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/drunlade/go-xmodem/xmodem"
	"github.com/rs/zerolog"
	"golang.org/x/term"
)

var (
	verbose    = flag.Bool("v", false, "verbose mode")
	quiet      = flag.Bool("q", false, "quiet mode")
	port       = flag.String("port", "", "serial port (default: stdin/stdout)")
	baud       = flag.Int("baud", xmodem.DefaultBaudRate, "serial baud rate")
	configFile = flag.String("config", "", "TOML configuration file")
	logFile    = flag.String("log", "", "protocol log file (for debugging)")
	help       = flag.Bool("h", false, "show help")
	version    = flag.Bool("version", false, "show version")
)

const versionString = "gsx version 0.1.0"

func main() {
	flag.Parse()

	if *help {
		showUsage(0)
	}

	if *version {
		fmt.Println(versionString)
		os.Exit(0)
	}

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "%s: exactly one file required\n", os.Args[0])
		showUsage(1)
	}
	filename := flag.Arg(0)

	config := xmodem.DefaultConfig()
	if *configFile != "" {
		c, err := xmodem.LoadConfig(*configFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		config = c
	}
	if *logFile != "" {
		config.LogFile = *logFile
	}

	logger, closeLog, err := openLogger(config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening log: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()
	config.Logger = logger

	file, err := os.Open(filename)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if info.IsDir() {
		fmt.Fprintf(os.Stderr, "Error: %s is a directory\n", filename)
		os.Exit(1)
	}

	rw, closeTransport, err := openTransport()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer closeTransport()

	// Set up signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	ctx, cancel := signalContext(sigChan, closeTransport)
	defer cancel()
	if config.LogFile != "" {
		rw = xmodem.NewLoggingReadWriter(rw, logger, "wire")
	}

	trace, err := xmodem.NewCommandTrace(64)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	tracker := xmodem.NewProgressTracker(func(transferred int64, rate float64) {
		if *quiet || !*verbose {
			return
		}
		percent := float64(0)
		if info.Size() > 0 {
			percent = float64(transferred) / float64(info.Size()) * 100
			if percent > 100 {
				percent = 100
			}
		}
		fmt.Fprintf(os.Stderr, "\r%s: %.1f%% (%.0f bytes/s)", filename, percent, rate)
	}, config.ProgressInterval)

	opts := []xmodem.Option{
		xmodem.WithConfig(config),
		xmodem.WithContext(ctx),
		xmodem.WithSubscriber(xmodem.EventStatus, tracker.Handler()),
		xmodem.WithSubscriber(xmodem.EventCommand, trace.Handler()),
	}
	if *verbose && !*quiet {
		opts = append(opts, xmodem.WithSubscriber(xmodem.EventLog, func(args ...interface{}) {
			fmt.Fprintf(os.Stderr, "%s: %v\r\n", time.Now().Format("15:04:05.000"), args[0])
		}))
	}

	session := xmodem.NewSession(rw, opts...)

	if *verbose && !*quiet {
		fmt.Fprintf(os.Stderr, "Sending: %s (%d bytes)\r\n", filename, info.Size())
	}

	if err := session.SendFile(ctx, file); err != nil {
		if !*quiet {
			fmt.Fprintf(os.Stderr, "\r\nError: %v\r\n", err)
			fmt.Fprintf(os.Stderr, "Last control bytes: %s\r\n", trace)
		}
		closeTransport()
		os.Exit(1)
	}

	duration := tracker.Complete()
	if !*quiet {
		if *verbose {
			fmt.Fprintf(os.Stderr, "\r\nCompleted: %s (%d bytes in %v)\r\n", filename, info.Size(), duration)
		} else {
			fmt.Fprintf(os.Stderr, "%s\r\n", filename)
		}
	}
}

// openTransport returns the serial port named by -port, or stdin/stdout. A
// terminal on stdin is switched to raw mode for the transfer. The returned
// close function may be called more than once.
func openTransport() (io.ReadWriter, func(), error) {
	if *port != "" {
		p, err := xmodem.OpenSerial(xmodem.SerialConfig{Port: *port, BaudRate: *baud})
		if err != nil {
			return nil, nil, err
		}
		return p, onceFunc(func() { p.Close() }), nil
	}

	rw := stdio{Reader: os.Stdin, Writer: os.Stdout}

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return rw, onceFunc(func() { os.Stdin.Close() }), nil
	}
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return nil, nil, err
	}
	return rw, onceFunc(func() {
		term.Restore(fd, oldState)
		os.Stdin.Close()
	}), nil
}

func onceFunc(f func()) func() {
	var once sync.Once
	return func() { once.Do(f) }
}

type stdio struct {
	io.Reader
	io.Writer
}

func openLogger(config *xmodem.Config) (xmodem.Logger, func(), error) {
	if config.LogFile != "" {
		l, err := xmodem.NewFileLogger(config.LogFile)
		if err != nil {
			return nil, nil, err
		}
		return l, func() { l.Close() }, nil
	}
	if *verbose && *port != "" {
		// stdout is free when the transfer runs over a serial port
		return xmodem.NewConsoleLogger(os.Stdout, "gsx", zerolog.DebugLevel), func() {}, nil
	}
	return xmodem.NoopLogger{}, func() {}, nil
}

// signalContext cancels the returned context on the first signal and then
// closes the transport, since a read already blocked on it does not watch
// the context.
func signalContext(sigChan <-chan os.Signal, closeTransport func()) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-sigChan:
			cancel()
			closeTransport()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

func showUsage(exitcode int) {
	fmt.Fprintf(os.Stderr, `%s - send a file with XMODEM protocol

Usage: %s [options] file

Options:
  -baud N          serial baud rate (default: 38400)
  -config FILE     TOML configuration file
  -h               show this help message
  -log FILE        protocol log file
  -port DEV        serial port (default: stdin/stdout)
  -q               quiet mode, minimal output
  -v               verbose mode
  -version         show version

Examples:
  %s file.bin                          # Send over stdin/stdout
  %s -port /dev/ttyUSB0 -v file.bin    # Send over a serial line

`, versionString, os.Args[0], os.Args[0], os.Args[0])
	os.Exit(exitcode)
}

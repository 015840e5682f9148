// Package play runs an interactive story session on a terminal.
package play

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"

	"github.com/louisbranch/talespin/internal/cmd/storyenv"
	platformcmd "github.com/louisbranch/talespin/internal/platform/cmd"
	"github.com/louisbranch/talespin/internal/platform/timeouts"
	"github.com/louisbranch/talespin/internal/services/playws"
	storyplay "github.com/louisbranch/talespin/internal/story/play"
	"github.com/louisbranch/talespin/internal/story/script"
	"github.com/louisbranch/talespin/internal/story/storage"
)

// Config holds play command configuration.
type Config struct {
	Script string `env:"TALESPIN_PLAY_SCRIPT"`
	// Load names a slot to restore before the first frame.
	Load    string `env:"TALESPIN_PLAY_LOAD"`
	Verbose bool   `env:"TALESPIN_PLAY_VERBOSE"`
	// Serve, when set, serves sessions over WebSocket on this address
	// instead of reading the terminal.
	Serve string `env:"TALESPIN_PLAY_SERVE_ADDR"`
	Story storyenv.Config
}

// ParseConfig parses environment and flags into a Config. A positional
// argument names the script when -script is not set.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := platformcmd.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.Script, "script", cfg.Script, "path to the story script JSON")
	fs.StringVar(&cfg.Load, "load", cfg.Load, "slot to load before playing (number or quick)")
	fs.BoolVar(&cfg.Verbose, "verbose", cfg.Verbose, "log session errors to stderr")
	fs.StringVar(&cfg.Serve, "serve", cfg.Serve, "serve play sessions over WebSocket on this address")
	cfg.Story.Bind(fs)
	if err := platformcmd.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	if cfg.Script == "" && fs.NArg() > 0 {
		cfg.Script = fs.Arg(0)
	}
	return cfg, nil
}

// Run compiles the script and plays it from in until EOF or :quit.
func Run(ctx context.Context, cfg Config, in io.Reader, out io.Writer, errOut io.Writer) error {
	if out == nil {
		out = io.Discard
	}
	if errOut == nil {
		errOut = io.Discard
	}
	if cfg.Script == "" {
		return errors.New("script path is required")
	}
	logger := log.New(io.Discard, "", 0)
	if cfg.Verbose {
		logger = log.New(errOut, "", 0)
	}

	rt, err := cfg.Story.Open(logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			logger.Printf("close slot store: %v", err)
		}
	}()

	data, err := os.ReadFile(cfg.Script)
	if err != nil {
		return fmt.Errorf("read script: %w", err)
	}
	compiled, err := script.Compile(data, rt.Policy)
	if err != nil {
		return fmt.Errorf("compile %s: %w", cfg.Script, err)
	}
	if cfg.Serve != "" {
		return serve(ctx, cfg.Serve, playws.Options{Script: compiled, Session: rt.Session, Logger: logger}, errOut)
	}
	session, err := storyplay.NewSession(compiled, rt.Session)
	if err != nil {
		return err
	}
	if cfg.Load != "" {
		slot, err := storage.ParseSlot(cfg.Load)
		if err != nil {
			return err
		}
		if _, err := session.LoadSlot(ctx, slot); err != nil {
			return fmt.Errorf("load slot %s: %w", slot, err)
		}
	}
	return storyplay.Run(ctx, session, in, out, cfg.Story.Locale)
}

var listenTCP = net.Listen

// serve runs the WebSocket play server until ctx ends.
func serve(ctx context.Context, addr string, opts playws.Options, errOut io.Writer) error {
	listener, err := listenTCP("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	httpServer := &http.Server{
		Handler:           playws.NewHandler(opts),
		ReadHeaderTimeout: timeouts.ReadHeader,
	}
	fmt.Fprintf(errOut, "serving play sessions on ws://%s/ws\n", listener.Addr())

	errChan := make(chan error, 1)
	go func() {
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown play server: %w", err)
		}
		return nil
	case err := <-errChan:
		return fmt.Errorf("play server: %w", err)
	}
}

// Command spritectl talks to a sprite server from the terminal.
//
//	spritectl [flags] dims
//	spritectl [flags] create X Y
//	spritectl [flags] list
//	spritectl [flags] watch
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/zeusync/spriteserver/internal/core/models"
	"github.com/zeusync/spriteserver/internal/core/observability/log"
	"github.com/zeusync/spriteserver/internal/core/protocol"
	"github.com/zeusync/spriteserver/sdk/go/client"
)

var errUsage = errors.New("usage: spritectl [-addr host:port] [-transport websocket|quic] [-json|-color] dims | create X Y | list | watch")

// format selects how results are printed.
type format int

const (
	formatText format = iota
	// formatColor paints each sprite line in its own color with 24-bit ANSI
	// escapes.
	formatColor
	formatJSON
)

func main() {
	addr := flag.String("addr", "localhost:8089", "server address")
	transport := flag.String("transport", string(client.TransportWebSocket), "websocket or quic")
	asJSON := flag.Bool("json", false, "print JSON instead of text")
	colored := flag.Bool("color", false, "paint sprites in their colors")
	timeout := flag.Duration("timeout", 5*time.Second, "per call timeout")
	flag.Parse()

	cfg := client.DefaultClientConfig()
	cfg.ServerAddr = *addr
	cfg.Transport = client.Transport(*transport)
	cfg.CallTimeout = *timeout

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	f := formatText
	switch {
	case *asJSON:
		f = formatJSON
	case *colored:
		f = formatColor
	}

	if err := run(ctx, cfg, f, flag.Args(), os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "spritectl:", err)
		if errors.Is(err, errUsage) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg client.Config, f format, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}

	c := client.NewClientWithLogger(cfg, log.New(log.LevelWarn))
	if err := c.Connect(ctx); err != nil {
		return err
	}
	defer c.Close()

	switch args[0] {
	case "dims":
		w, err := c.Width(ctx)
		if err != nil {
			return err
		}
		h, err := c.Height(ctx)
		if err != nil {
			return err
		}
		if f == formatJSON {
			return json.NewEncoder(out).Encode(map[string]int{"width": w, "height": h})
		}
		_, err = fmt.Fprintf(out, "%dx%d\n", w, h)
		return err

	case "create":
		if len(args) != 3 {
			return errUsage
		}
		x, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("%w: bad x: %v", errUsage, err)
		}
		y, err := strconv.Atoi(args[2])
		if err != nil {
			return fmt.Errorf("%w: bad y: %v", errUsage, err)
		}
		return c.CreateEntity(ctx, x, y)

	case "list":
		snap, err := c.Snapshot(ctx)
		if err != nil {
			return err
		}
		return printSnapshot(out, snap, f)

	case "watch":
		done := c.Done()
		snaps := make(chan protocol.SnapshotResult, 1)
		err := c.Watch(ctx, func(s protocol.SnapshotResult) {
			select {
			case snaps <- s:
			default:
			}
		})
		if err != nil {
			return err
		}
		for {
			select {
			case s := <-snaps:
				if err = printSnapshot(out, s, f); err != nil {
					return err
				}
			case <-done:
				return errors.New("connection closed by server")
			case <-ctx.Done():
				return nil
			}
		}

	default:
		return errUsage
	}
}

func printSnapshot(out io.Writer, snap protocol.SnapshotResult, f format) error {
	if f == formatJSON {
		return json.NewEncoder(out).Encode(snap)
	}

	counts := make(map[models.Color]int, len(models.Palette))
	for _, sp := range snap.Sprites {
		counts[sp.Color]++
	}
	header := fmt.Sprintf("tick %d, %d sprites", snap.Tick, len(snap.Sprites))
	for i, c := range models.Palette {
		sep := ", "
		if i == 0 {
			sep = " ("
		}
		header += fmt.Sprintf("%s%s %d", sep, c, counts[c])
	}
	if _, err := fmt.Fprintln(out, header+")"); err != nil {
		return err
	}

	for _, sp := range snap.Sprites {
		line := "  " + sp.String()
		if f == formatColor {
			r, g, b := sp.Color.RGB()
			line = fmt.Sprintf("\x1b[38;2;%d;%d;%dm%s\x1b[0m", r, g, b, line)
		}
		if _, err := fmt.Fprintln(out, line); err != nil {
			return err
		}
	}
	return nil
}

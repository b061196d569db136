// Copyright (c) 2026 Castellan Team
// Castellan - custodial SSH access client
// This source code is licensed under the MIT license found in the LICENSE file.

package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/castellan-dev/castellan/internal/i18n"
	"github.com/castellan-dev/castellan/internal/model"
	"github.com/castellan-dev/castellan/internal/session"
)

// resizePollInterval is how often the terminal size is compared against the
// last forwarded geometry. Polling keeps resize handling portable; SIGWINCH
// does not exist everywhere.
const resizePollInterval = time.Second

func newShellCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shell <user@host[:port]>",
		Short: "Opens an interactive shell on the target host",
		Long: `Connects to the target through the WebSocket relay, authenticates via
the custody network and attaches the local terminal to the remote shell.
The remote host must already be trusted; see 'castellan trust-host'.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := parseTarget(args[0])
			if err != nil {
				return err
			}
			sess, err := newSession(appConfig, t)
			if err != nil {
				return err
			}
			return runShell(cmd.Context(), sess, t)
		},
	}
}

// runShell drives one interactive session: raw terminal, stdin pump,
// output sink and resize forwarding, until the session ends.
func runShell(ctx context.Context, sess *session.Session, t target) error {
	fmt.Println(i18n.T("shell.connecting", t.User, t.Addr()))

	fd := int(os.Stdin.Fd())
	interactive := term.IsTerminal(fd)

	// Report the real geometry before connecting so the remote PTY opens
	// at the right size instead of resizing right after.
	if interactive {
		if cols, rows, err := term.GetSize(fd); err == nil {
			sess.SetDimensions(cols, rows)
		}
	}

	statusCh := sess.Subscribe()
	defer sess.Unsubscribe(statusCh)
	sess.AttachSink(func(chunk []byte) { _, _ = os.Stdout.Write(chunk) })
	defer sess.DetachSink()

	if err := sess.Connect(ctx); err != nil {
		return err
	}
	fmt.Println(i18n.T("shell.connected"))

	var restore func()
	if interactive {
		oldState, err := term.MakeRaw(fd)
		if err != nil {
			sess.Disconnect()
			return fmt.Errorf("could not put terminal into raw mode: %w", err)
		}
		restore = func() { _ = term.Restore(fd, oldState) }
		defer restore()
	}

	// Pump stdin into the session. EOF (Ctrl-D at an empty prompt with a
	// cooked local terminal, or a closed pipe) ends the session.
	go func() {
		buf := make([]byte, 1024)
		for {
			n, err := os.Stdin.Read(buf)
			if n > 0 {
				sess.Send(buf[:n])
			}
			if err != nil {
				sess.Disconnect()
				return
			}
		}
	}()

	ticker := time.NewTicker(resizePollInterval)
	defer ticker.Stop()
	lastCols, lastRows := 0, 0
	if interactive {
		lastCols, lastRows, _ = term.GetSize(fd)
	}

	for {
		select {
		case st := <-statusCh:
			if st != model.StatusDisconnected && st != model.StatusError {
				continue
			}
			if restore != nil {
				restore()
			}
			fmt.Println()
			fmt.Println(i18n.T("shell.session_ended", sess.LastReason()))
			if st == model.StatusError {
				return errors.New(sess.LastReason())
			}
			return nil
		case <-ticker.C:
			if !interactive {
				continue
			}
			if cols, rows, err := term.GetSize(fd); err == nil && (cols != lastCols || rows != lastRows) {
				lastCols, lastRows = cols, rows
				sess.Resize(cols, rows)
			}
		case <-ctx.Done():
			sess.Disconnect()
			return ctx.Err()
		}
	}
}

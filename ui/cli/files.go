// Copyright (c) 2026 Castellan Team
// Castellan - custodial SSH access client
// This source code is licensed under the MIT license found in the LICENSE file.

package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pkg/sftp"
	"github.com/spf13/cobra"

	"github.com/castellan-dev/castellan/internal/fileops"
	"github.com/castellan-dev/castellan/internal/i18n"
	"github.com/castellan-dev/castellan/internal/logging"
	"github.com/castellan-dev/castellan/internal/model"
	"github.com/castellan-dev/castellan/internal/session"
)

func newFilesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "files",
		Short: "Remote file operations over an authenticated session",
		Long: `Performs file operations on the target host. The SFTP subsystem is used
when the server offers it; otherwise the operations fall back to shell
commands over execution channels. Every operation is logged with the
backend that performed it.`,
	}
	cmd.AddCommand(
		newFilesLsCmd(),
		newFilesGetCmd(),
		newFilesPutCmd(),
		newFilesRmCmd(),
		newFilesMvCmd(),
		newFilesMkdirCmd(),
		newFilesChmodCmd(),
	)
	return cmd
}

// connectFiles opens a session to the target and selects the best file
// backend available over it. The caller must Disconnect the session.
func connectFiles(cmd *cobra.Command, targetArg string) (*session.Session, *fileops.Manager, error) {
	t, err := parseTarget(targetArg)
	if err != nil {
		return nil, nil, err
	}
	sess, err := newSession(appConfig, t)
	if err != nil {
		return nil, nil, err
	}
	if err := sess.Connect(cmd.Context()); err != nil {
		return nil, nil, err
	}

	conn := sess.Client().Conn()
	var backend fileops.Backend
	if sftpClient, sftpErr := sftp.NewClient(conn); sftpErr == nil {
		backend = fileops.NewSFTPBackend(sftpClient)
	} else {
		logging.Debugf("files: sftp subsystem unavailable, using exec fallback: %v", sftpErr)
		backend = fileops.SelectBackend(nil, &fileops.SSHRunner{Client: conn})
	}

	mgr := fileops.NewManager(backend, logFileEvent)
	return sess, mgr, nil
}

// logFileEvent is the audit sink for CLI file operations.
func logFileEvent(ev model.FileOperationEvent) {
	if ev.Status == model.EventStatusSuccess {
		logging.Debugf("files: %s %s ok (%s backend)", ev.Operation, ev.Path, ev.Backend)
		return
	}
	logging.Warnf("files: %s %s failed (%s backend): %s", ev.Operation, ev.Path, ev.Backend, ev.ErrorMessage)
}

func newFilesLsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls <user@host[:port]> [path]",
		Short: "Lists a remote directory",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, mgr, err := connectFiles(cmd, args[0])
			if err != nil {
				return err
			}
			defer sess.Disconnect()

			dir := "."
			if len(args) > 1 {
				dir = args[1]
			}
			if err := mgr.NavigateTo(cmd.Context(), dir); err != nil {
				return err
			}

			fmt.Println(i18n.T("files.listing", mgr.CurrentPath(), mgr.BackendName()))
			for _, e := range mgr.Entries() {
				modified := ""
				if !e.ModifiedAt.IsZero() {
					modified = e.ModifiedAt.Format("2006-01-02 15:04")
				}
				fmt.Printf("%s  %8s %-8s %10d  %16s  %s\n",
					e.Permissions, e.Owner, e.Group, e.Size, modified, e.Name)
			}
			return nil
		},
	}
}

func newFilesGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <user@host[:port]> <remote-path> [local-path]",
		Short: "Downloads a remote file",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, mgr, err := connectFiles(cmd, args[0])
			if err != nil {
				return err
			}
			defer sess.Disconnect()

			remote := args[1]
			local := filepath.Base(remote)
			if len(args) > 2 {
				local = args[2]
			}

			data, err := mgr.Download(cmd.Context(), remote)
			if err != nil {
				return err
			}
			if err := os.WriteFile(local, data, 0o644); err != nil {
				return fmt.Errorf("could not write %s: %w", local, err)
			}
			fmt.Println(i18n.T("files.downloaded", remote, len(data), local))
			return nil
		},
	}
}

func newFilesPutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "put <user@host[:port]> <local-path> [remote-path]",
		Short: "Uploads a local file",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, mgr, err := connectFiles(cmd, args[0])
			if err != nil {
				return err
			}
			defer sess.Disconnect()

			local := args[1]
			data, err := os.ReadFile(local)
			if err != nil {
				return fmt.Errorf("could not read %s: %w", local, err)
			}

			remote := ""
			if len(args) > 2 {
				remote = args[2]
			}
			// An empty destination lands the file in the remote home
			// directory under its own name.
			if remote == "" {
				if err := mgr.NavigateTo(cmd.Context(), "~"); err != nil {
					return err
				}
			}
			if err := mgr.Upload(cmd.Context(), filepath.Base(local), data, remote); err != nil {
				return err
			}
			if remote == "" {
				remote = filepath.Base(local)
			}
			fmt.Println(i18n.T("files.uploaded", local, len(data), remote))
			return nil
		},
	}
}

func newFilesRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <user@host[:port]> <path>",
		Short: "Removes a remote file or directory",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, mgr, err := connectFiles(cmd, args[0])
			if err != nil {
				return err
			}
			defer sess.Disconnect()

			if err := mgr.Remove(cmd.Context(), args[1]); err != nil {
				return err
			}
			fmt.Println(i18n.T("files.removed", args[1]))
			return nil
		},
	}
}

func newFilesMvCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mv <user@host[:port]> <old-path> <new-path>",
		Short: "Renames or moves a remote file",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, mgr, err := connectFiles(cmd, args[0])
			if err != nil {
				return err
			}
			defer sess.Disconnect()

			if err := mgr.Rename(cmd.Context(), args[1], args[2]); err != nil {
				return err
			}
			fmt.Println(i18n.T("files.renamed", args[1], args[2]))
			return nil
		},
	}
}

func newFilesMkdirCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mkdir <user@host[:port]> <path>",
		Short: "Creates a remote directory",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, mgr, err := connectFiles(cmd, args[0])
			if err != nil {
				return err
			}
			defer sess.Disconnect()

			if err := mgr.Mkdir(cmd.Context(), args[1]); err != nil {
				return err
			}
			fmt.Println(i18n.T("files.mkdir", args[1]))
			return nil
		},
	}
}

func newFilesChmodCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chmod <user@host[:port]> <octal-mode> <path>",
		Short: "Changes the permission bits of a remote path",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := strconv.ParseUint(args[1], 8, 32)
			if err != nil || mode > 0o7777 {
				return fmt.Errorf("invalid octal mode %q", args[1])
			}

			sess, mgr, err := connectFiles(cmd, args[0])
			if err != nil {
				return err
			}
			defer sess.Disconnect()

			if err := mgr.Chmod(cmd.Context(), args[2], uint32(mode)); err != nil {
				return err
			}
			fmt.Println(i18n.T("files.chmod", args[2], mode))
			return nil
		},
	}
}

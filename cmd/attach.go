package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"go.olrik.dev/sshmcp/internal/core"
	"go.olrik.dev/sshmcp/internal/rpc"
)

// NewAttachCommand opens an interactive terminal onto a session by upgrading
// the daemon connection into a full-duplex rpc.MethodAttach stream: a replay
// snapshot, then live output entries, while local stdin is forwarded as
// input frames. It is the CLI's stand-in for a true observer client.
func NewAttachCommand() *cobra.Command {
	attachCmd := &cobra.Command{
		Use:               "attach <name>",
		Short:             "Attach an interactive terminal to a session",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: activeSessionCompletionFunc,
		RunE: func(cmd *cobra.Command, args []string) error {
			rpc.CheckVersionMismatch()
			return runAttach(args[0])
		},
	}

	return attachCmd
}

func runAttach(name string) error {
	conn, err := net.Dial("unix", core.GetSocketPath())
	if err != nil {
		return fmt.Errorf("failed to connect to daemon: %w", err)
	}
	defer conn.Close()

	params, err := json.Marshal(rpc.NameParams{Name: name})
	if err != nil {
		return err
	}
	req := rpc.Request{Method: rpc.MethodAttach, Params: params}
	reqData, err := json.Marshal(req)
	if err != nil {
		return err
	}
	if _, err := conn.Write(append(reqData, '\n')); err != nil {
		return fmt.Errorf("failed to send attach request: %w", err)
	}

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var first rpc.AttachFrame
	if !scanner.Scan() {
		return fmt.Errorf("daemon closed the connection before sending a snapshot")
	}
	if err := json.Unmarshal(scanner.Bytes(), &first); err != nil {
		return fmt.Errorf("malformed attach response: %w", err)
	}
	if first.Type == "error" {
		return fmt.Errorf("attach failed: %s", first.Error)
	}
	for _, entry := range first.Entries {
		fmt.Print(entry.NormalizedText)
	}

	stdinFd := int(os.Stdin.Fd())
	interactive := term.IsTerminal(stdinFd)

	var oldState *term.State
	if interactive {
		oldState, err = term.MakeRaw(stdinFd)
		if err != nil {
			return fmt.Errorf("failed to set raw mode: %w", err)
		}
		defer term.Restore(stdinFd, oldState)

		if cols, rows, err := term.GetSize(stdinFd); err == nil {
			sendAttachFrame(conn, rpc.AttachFrame{Type: "resize", Cols: cols, Rows: rows})
		}
	}

	var writeMu sync.Mutex
	sendFrame := func(frame rpc.AttachFrame) {
		writeMu.Lock()
		defer writeMu.Unlock()
		sendAttachFrame(conn, frame)
	}

	done := make(chan struct{})

	if interactive {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGWINCH)
		go func() {
			for {
				select {
				case <-sigCh:
					if cols, rows, err := term.GetSize(stdinFd); err == nil {
						sendFrame(rpc.AttachFrame{Type: "resize", Cols: cols, Rows: rows})
					}
				case <-done:
					return
				}
			}
		}()
	}

	go func() {
		defer close(done)
		buf := make([]byte, 4096)
		for {
			n, err := os.Stdin.Read(buf)
			if n > 0 {
				text := string(buf[:n])
				if !interactive && strings.TrimSpace(text) == "" {
					continue
				}
				sendFrame(rpc.AttachFrame{Type: "input", Text: text})
			}
			if err != nil {
				return
			}
		}
	}()

	for scanner.Scan() {
		var frame rpc.AttachFrame
		if err := json.Unmarshal(scanner.Bytes(), &frame); err != nil {
			continue
		}
		switch frame.Type {
		case "entry":
			if frame.Entry != nil {
				fmt.Print(frame.Entry.NormalizedText)
			}
		case "error":
			fmt.Fprintf(os.Stderr, "\nattach error: %s\n", frame.Error)
			return nil
		}
	}
	if err := scanner.Err(); err != nil && err != io.EOF {
		return fmt.Errorf("attach stream closed: %w", err)
	}

	return nil
}

func sendAttachFrame(conn net.Conn, frame rpc.AttachFrame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	_, err = conn.Write(append(data, '\n'))
	return err
}

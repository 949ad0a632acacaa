package rpc

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"go.olrik.dev/sshmcp/internal/core"
)

var (
	versionCheckOnce sync.Once
)

// Call sends one request to the daemon and returns its (final) response.
func Call(method string, params any) (Response, error) {
	response := Response{}

	conn, err := net.Dial("unix", core.GetSocketPath())
	if err != nil {
		return response, err
	}
	defer conn.Close()

	if err := writeRequest(conn, method, params); err != nil {
		return response, err
	}

	data, err := io.ReadAll(conn)
	if err != nil {
		return response, fmt.Errorf("failed to read response from daemon: %w", err)
	}
	if err := json.Unmarshal(data, &response); err != nil {
		return response, fmt.Errorf("failed to parse response from daemon: %w", err)
	}
	return response, nil
}

// callWithTimeout is Call with a connect+read deadline, used by the startup
// poll loop so a half-initialized socket cannot hang the CLI.
func callWithTimeout(method string, params any, timeout time.Duration) (Response, error) {
	response := Response{}

	conn, err := net.DialTimeout("unix", core.GetSocketPath(), timeout)
	if err != nil {
		return response, err
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(timeout))

	if err := writeRequest(conn, method, params); err != nil {
		return response, err
	}

	data, err := io.ReadAll(conn)
	if err != nil {
		return response, fmt.Errorf("failed to read response from daemon: %w", err)
	}
	if err := json.Unmarshal(data, &response); err != nil {
		return response, fmt.Errorf("failed to parse response from daemon: %w", err)
	}
	return response, nil
}

// CallStreaming sends one request and logs each progress message as it
// arrives, for methods (like createSession) that report dial progress.
func CallStreaming(method string, params any) (Response, error) {
	final := Response{}

	conn, err := net.Dial("unix", core.GetSocketPath())
	if err != nil {
		return final, err
	}
	defer conn.Close()

	if err := writeRequest(conn, method, params); err != nil {
		return final, err
	}

	reader := bufio.NewReader(conn)
	for {
		line, err := reader.ReadBytes('\n')
		if len(line) > 1 {
			var msg ResponseMessage
			if jsonErr := json.Unmarshal(line, &msg); jsonErr == nil && msg.Message != "" {
				switch msg.Status {
				case "INFO":
					slog.Info(msg.Message)
				case "WARN":
					slog.Warn(msg.Message)
				case "ERROR":
					slog.Error(msg.Message)
				default:
					slog.Info(msg.Message)
				}
				if err == io.EOF {
					break
				}
				continue
			}
			// Not a bare ResponseMessage: this is the final Response object.
			if jsonErr := json.Unmarshal(line, &final); jsonErr == nil {
				return final, nil
			}
		}
		if err != nil {
			if err == io.EOF {
				return final, nil
			}
			return final, fmt.Errorf("failed to read response from daemon: %w", err)
		}
	}
	return final, nil
}

func writeRequest(conn net.Conn, method string, params any) error {
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("failed to encode params: %w", err)
	}
	req := Request{Method: method, Params: paramsJSON}
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	if _, err := conn.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to send request to daemon: %w", err)
	}
	return nil
}

// EnsureDaemonIsRunning starts the daemon in the background if it is not
// already reachable, then blocks until its socket is ready.
func EnsureDaemonIsRunning() {
	if _, err := Call(MethodStatus, struct{}{}); err == nil {
		return
	}

	slog.Info("daemon not running, starting it now")
	cmd, err := StartDaemon()
	if err != nil {
		slog.Error(fmt.Sprintf("fatal: %v", err))
		os.Exit(1)
	}
	slog.Info(fmt.Sprintf("daemon process launched with PID: %d", cmd.Process.Pid))

	if err := WaitForDaemon(cmd); err != nil {
		slog.Error(fmt.Sprintf("fatal: %v", err))
		os.Exit(1)
	}
	slog.Info("daemon is ready")
}

// CheckVersionMismatch warns once per process if the client and daemon
// binaries disagree on version.
func CheckVersionMismatch() {
	versionCheckOnce.Do(func() {
		resp, err := Call(MethodVersion, struct{}{})
		if err != nil {
			return
		}
		dataMap, ok := resp.Data.(map[string]interface{})
		if !ok {
			return
		}
		daemonVersion, ok := dataMap["version"].(string)
		if !ok {
			return
		}
		if daemonVersion != core.Version {
			slog.Warn(fmt.Sprintf("version mismatch: client %s, daemon %s",
				core.FormatVersion(core.Version), core.FormatVersion(daemonVersion)))
			slog.Warn("the daemon may be running an outdated version; run 'sshmcp disconnect --all' and restart it")
		}
	})
}

// StartDaemon forks the daemon as a background child of the current binary.
func StartDaemon() (*exec.Cmd, error) {
	cmd := exec.Command(os.Args[0], "daemon")

	stderrFile, err := os.CreateTemp("", "sshmcp-daemon-stderr-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create stderr capture file: %w", err)
	}
	cmd.Stderr = stderrFile

	if err := cmd.Start(); err != nil {
		stderrFile.Close()
		os.Remove(stderrFile.Name())
		return nil, fmt.Errorf("could not fork daemon process: %w", err)
	}
	return cmd, nil
}

// WaitForDaemon polls until the daemon socket answers or the child process
// exits early, in which case its captured stderr is surfaced in the error.
func WaitForDaemon(cmd *exec.Cmd) error {
	defer func() {
		if f, ok := cmd.Stderr.(*os.File); ok {
			name := f.Name()
			f.Close()
			os.Remove(name)
		}
	}()

	exited := make(chan error, 1)
	go func() { exited <- cmd.Wait() }()

	for range 50 {
		time.Sleep(100 * time.Millisecond)

		select {
		case err := <-exited:
			stderr := ""
			if f, ok := cmd.Stderr.(*os.File); ok {
				f.Seek(0, 0)
				data, _ := io.ReadAll(f)
				stderr = strings.TrimSpace(string(data))
			}
			if stderr != "" {
				return fmt.Errorf("daemon crashed during startup (%v):\n%s", err, stderr)
			}
			return fmt.Errorf("daemon crashed during startup (%v); run 'sshmcp daemon' to see the error output", err)
		default:
		}

		if _, err := callWithTimeout(MethodStatus, struct{}{}, 500*time.Millisecond); err == nil {
			return nil
		}
	}

	return fmt.Errorf("daemon was launched but socket was not created in time")
}

// WaitForDaemonStop polls until the daemon socket stops answering.
func WaitForDaemonStop() error {
	for range 20 {
		time.Sleep(100 * time.Millisecond)
		if _, err := Call(MethodStatus, struct{}{}); err != nil {
			return nil
		}
	}
	return fmt.Errorf("daemon did not stop in time")
}

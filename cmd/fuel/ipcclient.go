package main

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/ashleyhindle/fuel-sub006/internal/ipc"
	"github.com/ashleyhindle/fuel-sub006/internal/lifecycle"
)

// sendDaemonCommand dials the running consume daemon's IPC port (read from
// .fuel/consume-runner.pid, per §4.H/§6) and sends a single command
// envelope. Used by verbs that need the live Scheduler to act on a
// running process (pause/unpause/health:reset) rather than the
// ones that only need to mutate the Store directly.
func sendDaemonCommand(cwd, cmdType string, payload any) error {
	dir, err := fuelDir(cwd)
	if err != nil {
		return err
	}
	pidPath := filepath.Join(dir, "consume-runner.pid")
	data, err := os.ReadFile(pidPath)
	if err != nil {
		return fmt.Errorf("no running consume daemon found for %s: %w", cwd, err)
	}
	var pf lifecycle.PIDFile
	if err := json.Unmarshal(data, &pf); err != nil {
		return fmt.Errorf("corrupt pid file: %w", err)
	}

	conn, err := net.DialTimeout("tcp", fmt.Sprintf("127.0.0.1:%d", pf.Port), 2*time.Second)
	if err != nil {
		return fmt.Errorf("connect to daemon: %w", err)
	}
	defer conn.Close()

	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	env := ipc.Envelope{Type: cmdType, RequestID: uuid.NewString(), Payload: b}
	out, err := json.Marshal(env)
	if err != nil {
		return err
	}
	if _, err := conn.Write(append(out, '\n')); err != nil {
		return fmt.Errorf("write command: %w", err)
	}
	return nil
}

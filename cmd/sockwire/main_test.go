package main

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// testConfig writes a loopback-only configuration and returns its path.
func testConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "listen:\n  address: 127.0.0.1\nretry:\n  interval: 50ms\n  attempts: 40\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func run(t *testing.T, out io.Writer, args ...string) error {
	t.Helper()
	return execute(testConfig(t), out, args...)
}

func execute(cfg string, out io.Writer, args ...string) error {
	cmd := newRootCmd()
	cmd.SetArgs(append([]string{"--config", cfg}, args...))
	cmd.SetIn(strings.NewReader(""))
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	return cmd.ExecuteContext(context.Background())
}

func TestVersion(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run(t, &out, "version"))
	assert.Equal(t, fmt.Sprintf("sockwire version %s (%s/%s)\n", sockwireVersion, runtime.GOOS, runtime.GOARCH), out.String())
}

func TestStats(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run(t, &out, "stats"))
	assert.Contains(t, out.String(), "debug.handles.open")

	out.Reset()
	require.NoError(t, run(t, &out, "stats", "--yaml"))
	var stats map[string]any
	require.NoError(t, yaml.Unmarshal(out.Bytes(), &stats))
	assert.Contains(t, stats, "debug.runtime.goroutines")
}

func TestBadArguments(t *testing.T) {
	err := run(t, io.Discard, "chat-server", "99999")
	assert.ErrorContains(t, err, "invalid port")

	err = run(t, io.Discard, "send-file", "127.0.0.1", filepath.Join(t.TempDir(), "missing"))
	assert.ErrorContains(t, err, "file not found")

	err = run(t, io.Discard, "--log-level", "loud", "version")
	assert.ErrorContains(t, err, "log level")

	err = run(t, io.Discard, "chat-client", "127.0.0.1", "1")
	assert.ErrorContains(t, err, "name is required")
}

func TestFileTransfer(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.bin")
	dst := filepath.Join(dir, "dst.bin")
	payload := bytes.Repeat([]byte("sockwire "), 20000)
	require.NoError(t, os.WriteFile(src, payload, 0o600))

	cfg := testConfig(t)
	pr, pw := io.Pipe()
	done := make(chan error, 1)
	go func() {
		err := execute(cfg, pw, "recv-file", "--port", "0", dst)
		pw.CloseWithError(err)
		done <- err
	}()

	lines := make(chan string, 16)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(pr)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	line := <-lines
	require.True(t, strings.HasPrefix(line, "Server is at 127.0.0.1 (port "), line)
	port := strings.TrimSuffix(strings.TrimPrefix(line, "Server is at 127.0.0.1 (port "), ")")
	_, err := strconv.ParseUint(port, 10, 16)
	require.NoError(t, err)

	var sent bytes.Buffer
	require.NoError(t, run(t, &sent, "send-file", "--port", port, "127.0.0.1", src))
	assert.Contains(t, sent.String(), "Uploaded "+src)

	var rest []string
	for l := range lines {
		rest = append(rest, l)
	}
	require.NoError(t, <-done)
	assert.Contains(t, rest, fmt.Sprintf("Downloaded %d bytes to %s", len(payload), dst))

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestParsePort(t *testing.T) {
	p, err := parsePort("20050")
	require.NoError(t, err)
	assert.EqualValues(t, 20050, p)
	_, err = parsePort("-1")
	assert.Error(t, err)
}

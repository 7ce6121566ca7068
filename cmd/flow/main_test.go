package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func execute(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func lines(s string) []string {
	return strings.Split(strings.TrimSpace(s), "\n")
}

func TestCp(t *testing.T) {
	dir := t.TempDir()
	source, dest := filepath.Join(dir, "source"), filepath.Join(dir, "dest")
	content := bytes.Repeat([]byte("flow"), 2500)
	require.NoError(t, os.WriteFile(source, content, 0o644))

	code, stdout, _ := execute(t, "cp", source, dest)
	assert.Equal(t, successExitCode, code)
	result, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, content, result)
	// an update for every buffer and one on the end of stream.
	updates := lines(stdout)
	assert.Len(t, updates, 4)
	assert.Equal(t, "stats [3 10000]", updates[3])
}

func TestCpFailure(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		description string
		args        []string
	}{
		{description: "no arguments", args: []string{"cp"}},
		{description: "single argument", args: []string{"cp", filepath.Join(dir, "source")}},
		{description: "missing source", args: []string{"cp", filepath.Join(dir, "missing"), filepath.Join(dir, "dest")}},
		{description: "missing dest dir", args: []string{"cp", os.Args[0], filepath.Join(dir, "no", "dest")}},
	}
	for _, test := range tests {
		t.Run(test.description, func(t *testing.T) {
			code, _, stderr := execute(t, test.args...)
			assert.Equal(t, setupExitCode, code)
			assert.NotEmpty(t, stderr)
		})
	}
}

func TestF2F(t *testing.T) {
	tests := []struct {
		args     []string
		handoffs int
	}{
		{args: []string{"f2f"}, handoffs: 20},
		{args: []string{"f2f", "-n", "3"}, handoffs: 6},
		{args: []string{"f2f", "--num-buffers", "0"}, handoffs: 0},
	}
	for _, test := range tests {
		t.Run(strings.Join(test.args, " "), func(t *testing.T) {
			code, stdout, _ := execute(t, test.args...)
			assert.Equal(t, successExitCode, code)
			if test.handoffs == 0 {
				assert.Empty(t, stdout)
				return
			}
			handoffs := lines(stdout)
			assert.Len(t, handoffs, test.handoffs)
			assert.True(t, strings.HasPrefix(handoffs[0], "src "), handoffs[0])
			assert.True(t, strings.HasPrefix(handoffs[1], "sink "), handoffs[1])
		})
	}
}

func TestLaunch(t *testing.T) {
	dir := t.TempDir()
	write := func(name, data string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
		return path
	}
	tests := []struct {
		description string
		args        []string
		code        int
	}{
		{
			description: "success",
			args: []string{"launch", "--metrics", write("ok.yaml", `
elements:
  - {type: fakesrc, properties: {num_buffers: 3}}
  - {type: queue}
  - {type: fakesink}
`)},
			code: successExitCode,
		},
		{
			description: "runtime failure",
			args: []string{"launch", write("fail.yaml", `
elements:
  - {type: fakesrc, properties: {num_buffers: 3}}
  - {type: identity, properties: {error_after: 1}}
  - {type: fakesink}
`)},
			code: errorExitCode,
		},
		{
			description: "invalid description",
			args:        []string{"launch", write("invalid.yaml", "elements: []")},
			code:        setupExitCode,
		},
		{
			description: "missing file",
			args:        []string{"launch", filepath.Join(dir, "missing.yaml")},
			code:        setupExitCode,
		},
	}
	for _, test := range tests {
		t.Run(test.description, func(t *testing.T) {
			code, _, _ := execute(t, test.args...)
			assert.Equal(t, test.code, code)
		})
	}
}

func TestInspect(t *testing.T) {
	code, stdout, _ := execute(t, "inspect")
	assert.Equal(t, successExitCode, code)
	assert.Contains(t, stdout, "fakesrc")
	assert.Contains(t, stdout, "wavsink")

	code, stdout, _ = execute(t, "inspect", "queue")
	assert.Equal(t, successExitCode, code)
	assert.Contains(t, stdout, "max_size_buffers")
	assert.Contains(t, stdout, "overrun")

	code, _, _ = execute(t, "inspect", "nosuchsrc")
	assert.Equal(t, setupExitCode, code)
}

func TestUnknownCommand(t *testing.T) {
	code, _, stderr := execute(t, "play")
	assert.Equal(t, setupExitCode, code)
	assert.Contains(t, stderr, "unknown command")
}

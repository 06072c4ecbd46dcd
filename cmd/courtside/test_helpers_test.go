package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"courtside/internal/config"
	"courtside/internal/pipeline/pipelinetest"
	"courtside/internal/testsupport"
)

const testToken = "secret"

type cliTestEnv struct {
	cfg        *config.Config
	server     *pipelinetest.Server
	configPath string
	baseDir    string
}

func setupCLITestEnv(t *testing.T, opts ...testsupport.ConfigOption) *cliTestEnv {
	t.Helper()

	server := pipelinetest.NewServer(t, pipelinetest.WithToken(testToken))

	homeDir := filepath.Join(t.TempDir(), "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)
	t.Setenv("COURTSIDE_API_URL", "")
	t.Setenv("COURTSIDE_API_TOKEN", "")
	t.Setenv("COURTSIDE_NTFY_TOPIC", "")
	t.Setenv("COURTSIDE_NATS_URL", "")

	base := []testsupport.ConfigOption{
		testsupport.WithBaseURL(server.URL),
		testsupport.WithToken(testToken),
	}
	cfg := testsupport.NewConfig(t, append(base, opts...)...)
	cfg.Upload.MaxBytes = 1 << 20

	env := &cliTestEnv{
		cfg:        cfg,
		server:     server,
		configPath: filepath.Join(testsupport.BaseDir(cfg), "courtside.toml"),
		baseDir:    testsupport.BaseDir(cfg),
	}
	env.writeConfig(t)
	return env
}

func (e *cliTestEnv) writeConfig(t *testing.T) {
	t.Helper()
	data, err := toml.Marshal(e.cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(e.configPath, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func (e *cliTestEnv) run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	return runCLI(t, args, e.configPath)
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

// writeScript writes an executable shell script into the env's bin directory.
func (e *cliTestEnv) writeScript(t *testing.T, name, body string) string {
	t.Helper()
	dir := filepath.Join(e.baseDir, "scripts")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir scripts: %v", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("write script %s: %v", name, err)
	}
	return path
}

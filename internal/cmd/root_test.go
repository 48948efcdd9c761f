package cmd

import (
	"bytes"
	"strings"
	"testing"
)

func TestRootCommand_Help(t *testing.T) {
	var stdout bytes.Buffer

	cmd := rootCmd
	cmd.SetOut(&stdout)
	cmd.SetErr(&stdout)
	cmd.SetArgs([]string{"--help"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("root command --help returned error: %v", err)
	}

	output := stdout.String()
	expectedStrings := []string{
		"privd",
		"127.0.0.1",
		"Usage:",
		"Available Commands:",
		"daemon",
		"exec",
		"token",
	}

	for _, expected := range expectedStrings {
		if !strings.Contains(output, expected) {
			t.Errorf("help output missing expected string %q\nGot: %s", expected, output)
		}
	}
}

func TestRootCommand_Version(t *testing.T) {
	var stdout bytes.Buffer

	cmd := rootCmd
	cmd.SetOut(&stdout)
	cmd.SetErr(&stdout)
	cmd.SetArgs([]string{"--version"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("root command --version returned error: %v", err)
	}

	if !strings.Contains(stdout.String(), "privd") {
		t.Errorf("version output missing 'privd'\nGot: %s", stdout.String())
	}
}

func TestDaemonCmd_HasSubcommands(t *testing.T) {
	want := map[string]bool{"run": false, "stop": false, "status": false}
	for _, c := range daemonCmd.Commands() {
		want[c.Name()] = true
	}
	for name, found := range want {
		if !found {
			t.Errorf("daemon missing subcommand %q", name)
		}
	}
}

/*
Copyright Attestra Labs. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package runcmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunCmdWithSyntheticSubjects(t *testing.T) {
	cmd := Cmd()

	var buf bytes.Buffer

	cmd.SetOut(&buf)
	cmd.SetArgs([]string{
		"--authenticators", "password",
		"--subject-count", "2",
		"--concurrency", "2",
		"--challenge-ttl", "10000",
	})

	err := cmd.Execute()
	require.NoError(t, err)

	out := buf.String()
	require.Contains(t, out, "AUTHENTICATOR")
	require.Contains(t, out, "password")
	require.Contains(t, out, "100.0%")
}

func TestRunCmdWithSubjectsFile(t *testing.T) {
	subjectsPath := filepath.Join(t.TempDir(), "subjects.json")

	subjects := `[
		{"id": "alice", "secret": "pw-1", "attributes": {"age": 30}},
		{"id": "bob", "secret": "pw-2"}
	]`

	err := os.WriteFile(subjectsPath, []byte(subjects), 0o600)
	require.NoError(t, err)

	cmd := Cmd()

	var buf bytes.Buffer

	cmd.SetOut(&buf)
	cmd.SetArgs([]string{
		"--subjects", subjectsPath,
		"--authenticators", "password",
	})

	err = cmd.Execute()
	require.NoError(t, err)

	out := buf.String()
	require.Contains(t, out, "password")
	require.Contains(t, out, "100.0%")
}

func TestRunCmdWithConfigFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")

	config := `
authenticators:
  - password
maxConcurrency: 2
challengeTTLms: 10000
`

	err := os.WriteFile(configPath, []byte(config), 0o600)
	require.NoError(t, err)

	cmd := Cmd()

	var buf bytes.Buffer

	cmd.SetOut(&buf)
	cmd.SetArgs([]string{
		"--config", configPath,
		"--subject-count", "2",
	})

	err = cmd.Execute()
	require.NoError(t, err)

	out := buf.String()
	require.Contains(t, out, "password")
	require.NotContains(t, out, "assertion")
}

func TestRunCmdWithEnvVariables(t *testing.T) {
	t.Setenv(authenticatorsEnvKey, "password")
	t.Setenv(subjectCountEnvKey, "2")

	cmd := Cmd()

	var buf bytes.Buffer

	cmd.SetOut(&buf)
	cmd.SetArgs([]string{})

	err := cmd.Execute()
	require.NoError(t, err)

	out := buf.String()
	require.Contains(t, out, "password")
	require.NotContains(t, out, "disclosure")
}

func TestRunCmdInvalidArgs(t *testing.T) {
	tests := []struct {
		name   string
		args   []string
		errMsg string
	}{
		{
			name:   "unknown authenticator kind",
			args:   []string{"--authenticators", "retina-scan"},
			errMsg: "unknown authenticator kind",
		},
		{
			name:   "non numeric concurrency",
			args:   []string{"--concurrency", "many"},
			errMsg: "invalid concurrency",
		},
		{
			name:   "non numeric challenge ttl",
			args:   []string{"--challenge-ttl", "soon"},
			errMsg: "invalid challenge TTL",
		},
		{
			name:   "non numeric subject count",
			args:   []string{"--subject-count", "lots"},
			errMsg: "invalid subject count",
		},
		{
			name:   "zero subject count",
			args:   []string{"--subject-count", "0", "--authenticators", "password"},
			errMsg: "subject count must be positive",
		},
		{
			name:   "missing subjects file",
			args:   []string{"--subjects", filepath.Join(t.TempDir(), "missing.json")},
			errMsg: "read subjects file",
		},
		{
			name:   "missing config file",
			args:   []string{"--config", filepath.Join(t.TempDir(), "missing.yaml")},
			errMsg: "read config file",
		},
		{
			name:   "invalid log level",
			args:   []string{"--log-level", "noisy", "--authenticators", "password", "--subject-count", "1"},
			errMsg: "failed to parse log level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := Cmd()

			cmd.SetOut(&bytes.Buffer{})
			cmd.SetErr(&bytes.Buffer{})
			cmd.SetArgs(tt.args)

			err := cmd.Execute()
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestRunCmdMalformedFiles(t *testing.T) {
	t.Run("subjects file is not a list", func(t *testing.T) {
		subjectsPath := filepath.Join(t.TempDir(), "subjects.json")

		err := os.WriteFile(subjectsPath, []byte(`{"not": "a list"}`), 0o600)
		require.NoError(t, err)

		cmd := Cmd()

		cmd.SetOut(&bytes.Buffer{})
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs([]string{"--subjects", subjectsPath})

		err = cmd.Execute()
		require.Error(t, err)
		require.Contains(t, err.Error(), "decode subjects")
	})

	t.Run("empty subject list", func(t *testing.T) {
		subjectsPath := filepath.Join(t.TempDir(), "subjects.json")

		err := os.WriteFile(subjectsPath, []byte(`[]`), 0o600)
		require.NoError(t, err)

		cmd := Cmd()

		cmd.SetOut(&bytes.Buffer{})
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs([]string{"--subjects", subjectsPath})

		err = cmd.Execute()
		require.Error(t, err)
		require.Contains(t, err.Error(), "subject list is empty")
	})

	t.Run("malformed config file", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.yaml")

		err := os.WriteFile(configPath, []byte("challengeTTLms: [unclosed"), 0o600)
		require.NoError(t, err)

		cmd := Cmd()

		cmd.SetOut(&bytes.Buffer{})
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs([]string{"--config", configPath})

		err = cmd.Execute()
		require.Error(t, err)
		require.Contains(t, err.Error(), "parse config")
	})

	t.Run("config with unknown authenticator kind", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.yaml")

		err := os.WriteFile(configPath, []byte("authenticators:\n  - retina-scan\n"), 0o600)
		require.NoError(t, err)

		cmd := Cmd()

		cmd.SetOut(&bytes.Buffer{})
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs([]string{"--config", configPath})

		err = cmd.Execute()
		require.Error(t, err)
		require.Contains(t, err.Error(), "unknown authenticator kind")
	})
}

func TestGetUserSetVar(t *testing.T) {
	t.Run("missing mandatory value", func(t *testing.T) {
		cmd := Cmd()

		_, err := getUserSetVar(cmd, "missing-flag", "MISSING_ENV", false)
		require.Error(t, err)
		require.Contains(t, err.Error(),
			"Neither missing-flag (command line flag) nor MISSING_ENV (environment variable) have been set.")
	})

	t.Run("missing mandatory values", func(t *testing.T) {
		cmd := Cmd()

		_, err := getUserSetVars(cmd, "missing-flag", "MISSING_ENV", false)
		require.Error(t, err)
		require.Contains(t, err.Error(), "missing-flag not set")
	})

	t.Run("environment variable fallback", func(t *testing.T) {
		t.Setenv("AUTHBENCH_TEST_VALUE", "from-env")

		cmd := Cmd()

		value, err := getUserSetVar(cmd, "missing-flag", "AUTHBENCH_TEST_VALUE", false)
		require.NoError(t, err)
		require.Equal(t, "from-env", value)
	})

	t.Run("csv environment variable fallback", func(t *testing.T) {
		t.Setenv("AUTHBENCH_TEST_VALUES", "password,assertion")

		cmd := Cmd()

		values, err := getUserSetVars(cmd, "missing-flag", "AUTHBENCH_TEST_VALUES", false)
		require.NoError(t, err)
		require.Equal(t, []string{"password", "assertion"}, values)
	})
}

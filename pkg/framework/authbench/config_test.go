/*
Copyright Attestra Labs. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package authbench_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/attestra/authbench/pkg/authenticator"
	"github.com/attestra/authbench/pkg/framework/authbench"
)

func TestParseConfig(t *testing.T) {
	t.Run("yaml", func(t *testing.T) {
		cfg, err := authbench.ParseConfig([]byte(`
challengeTTLms: 2500
sessionTTLms: 7000
authenticators:
  - password
  - disclosure
maxConcurrency: 8
logLevel: DEBUG
`))
		require.NoError(t, err)
		require.Equal(t, 2500, cfg.ChallengeTTLMS)
		require.Equal(t, 7000, cfg.SessionTTLMS)
		require.Equal(t, []string{"password", "disclosure"}, cfg.Authenticators)
		require.Equal(t, 8, cfg.MaxConcurrency)
		require.Equal(t, "DEBUG", cfg.LogLevel)
	})

	t.Run("json parses as yaml", func(t *testing.T) {
		cfg, err := authbench.ParseConfig([]byte(
			`{"challengeTTLms": 1500, "authenticators": ["assertion"]}`))
		require.NoError(t, err)
		require.Equal(t, 1500, cfg.ChallengeTTLMS)
		require.Equal(t, []string{"assertion"}, cfg.Authenticators)
	})

	t.Run("weakly typed scalars", func(t *testing.T) {
		cfg, err := authbench.ParseConfig([]byte(`challengeTTLms: "3000"`))
		require.NoError(t, err)
		require.Equal(t, 3000, cfg.ChallengeTTLMS)
	})

	t.Run("empty document", func(t *testing.T) {
		cfg, err := authbench.ParseConfig(nil)
		require.NoError(t, err)
		require.Zero(t, cfg.ChallengeTTLMS)
		require.Empty(t, cfg.Authenticators)
	})

	t.Run("malformed document", func(t *testing.T) {
		cfg, err := authbench.ParseConfig([]byte("challengeTTLms: [unclosed"))
		require.Error(t, err)
		require.Contains(t, err.Error(), "parse config")
		require.Nil(t, cfg)
	})
}

func TestConfig_Options(t *testing.T) {
	t.Run("full config builds the framework", func(t *testing.T) {
		cfg := &authbench.Config{
			ChallengeTTLMS: 2500,
			SessionTTLMS:   7000,
			Authenticators: []string{"password", "possession"},
			MaxConcurrency: 2,
		}

		opts, err := cfg.Options()
		require.NoError(t, err)
		require.Len(t, opts, 4)

		framework, err := authbench.New(opts...)
		require.NoError(t, err)

		t.Cleanup(func() { require.NoError(t, framework.Close()) })

		ctx, err := framework.Context()
		require.NoError(t, err)
		require.Equal(t, []authenticator.Kind{authenticator.KindPassword, authenticator.KindPossession},
			ctx.AuthenticatorRegistry().Kinds())
	})

	t.Run("zero config applies defaults only", func(t *testing.T) {
		opts, err := (&authbench.Config{}).Options()
		require.NoError(t, err)
		require.Empty(t, opts)
	})

	t.Run("unknown authenticator name", func(t *testing.T) {
		opts, err := (&authbench.Config{Authenticators: []string{"retina-scan"}}).Options()
		require.Error(t, err)
		require.Contains(t, err.Error(), "unknown authenticator kind")
		require.Nil(t, opts)
	})
}

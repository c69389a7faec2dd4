/*
Copyright Attestra Labs. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package authbench_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/attestra/authbench/pkg/authenticator"
	"github.com/attestra/authbench/pkg/experiment"
	"github.com/attestra/authbench/pkg/framework/authbench"
	mockstorage "github.com/attestra/authbench/pkg/mock/storage"
)

func TestNew(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		framework, err := authbench.New()
		require.NoError(t, err)

		t.Cleanup(func() { require.NoError(t, framework.Close()) })

		require.True(t, strings.HasPrefix(framework.IssuerDID(), "did:key:"))

		ctx, err := framework.Context()
		require.NoError(t, err)
		require.NotNil(t, ctx.StorageProvider())
		require.NotNil(t, ctx.KMS())
		require.NotNil(t, ctx.Crypto())
		require.NotNil(t, ctx.IdentityRegistry())
		require.NotNil(t, ctx.CredentialStore())
		require.NotNil(t, ctx.ProofEngine())
		require.NotNil(t, ctx.Sessions())
		require.Equal(t, framework.IssuerDID(), ctx.IssuerDID())
		require.Equal(t, authenticator.AllKinds(), ctx.AuthenticatorRegistry().Kinds())
	})

	t.Run("subset of authenticators", func(t *testing.T) {
		framework, err := authbench.New(
			authbench.WithAuthenticators(authenticator.KindPassword, authenticator.KindAssertion))
		require.NoError(t, err)

		t.Cleanup(func() { require.NoError(t, framework.Close()) })

		ctx, err := framework.Context()
		require.NoError(t, err)
		require.Equal(t, []authenticator.Kind{authenticator.KindAssertion, authenticator.KindPassword},
			ctx.AuthenticatorRegistry().Kinds())
	})

	t.Run("issuer is registered with a BBS+ key", func(t *testing.T) {
		framework, err := authbench.New()
		require.NoError(t, err)

		t.Cleanup(func() { require.NoError(t, framework.Close()) })

		ctx, err := framework.Context()
		require.NoError(t, err)

		issuer, err := ctx.CredentialStore().Issuer(framework.IssuerDID())
		require.NoError(t, err)
		require.NotEmpty(t, issuer.PublicKey)
		require.NotEmpty(t, issuer.BBSPublicKey)
	})

	t.Run("invalid options", func(t *testing.T) {
		tests := []struct {
			name    string
			option  authbench.Option
			wantErr string
		}{
			{"zero challenge ttl", authbench.WithChallengeTTL(0), "challenge TTL must be positive"},
			{"negative session ttl", authbench.WithSessionTTL(-time.Second), "session TTL must be positive"},
			{"zero concurrency", authbench.WithMaxConcurrency(0), "max concurrency must be positive"},
			{"no authenticators", authbench.WithAuthenticators(), "at least one authenticator kind"},
			{"unknown authenticator", authbench.WithAuthenticators("retina-scan"), "unknown authenticator kind"},
			{"bad log level", authbench.WithLogLevel("noisy"), "failed to parse log level"},
		}

		for _, tc := range tests {
			tc := tc

			t.Run(tc.name, func(t *testing.T) {
				framework, err := authbench.New(tc.option)
				require.Error(t, err)
				require.Contains(t, err.Error(), tc.wantErr)
				require.Nil(t, framework)
			})
		}
	})

	t.Run("failing storage provider", func(t *testing.T) {
		provider := mockstorage.NewMockStoreProvider()
		provider.ErrOpenStoreHandle = errors.New("open error")

		framework, err := authbench.New(authbench.WithStorageProvider(provider))
		require.Error(t, err)
		require.Contains(t, err.Error(), "open error")
		require.Nil(t, framework)
	})
}

func TestFramework_Runner(t *testing.T) {
	framework, err := authbench.New(
		authbench.WithMaxConcurrency(2),
		authbench.WithChallengeTTL(10*time.Second),
		authbench.WithSessionTTL(10*time.Second))
	require.NoError(t, err)

	t.Cleanup(func() { require.NoError(t, framework.Close()) })

	runner, err := framework.Runner()
	require.NoError(t, err)

	subjects, err := experiment.SynthesizeSubjects(2)
	require.NoError(t, err)

	report, err := runner.Run(context.Background(), subjects)
	require.NoError(t, err)
	require.Len(t, report.Outcomes, 2*len(authenticator.AllKinds()))

	for _, outcome := range report.Outcomes {
		require.Truef(t, outcome.Success, "subject %s via %s: %v",
			outcome.SubjectID, outcome.Kind, outcome.Err)
	}
}

func TestFramework_Close(t *testing.T) {
	framework, err := authbench.New()
	require.NoError(t, err)

	require.NoError(t, framework.Close())
	require.NoError(t, framework.Close())
}

/*
Copyright Attestra Labs. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package authbench

import (
	"github.com/attestra/authbench/pkg/authenticator"
	"github.com/attestra/authbench/pkg/experiment"
	"github.com/attestra/authbench/pkg/proof"
	"github.com/attestra/authbench/pkg/storage/mem"
)

// defFrameworkOpts provides default framework options.
func defFrameworkOpts(frameworkOpts *Authbench) error {
	if frameworkOpts.storeProvider == nil {
		frameworkOpts.storeProvider = mem.NewProvider()
	}

	if len(frameworkOpts.kinds) == 0 {
		frameworkOpts.kinds = authenticator.AllKinds()
	}

	if frameworkOpts.challengeTTL == 0 {
		frameworkOpts.challengeTTL = proof.DefaultChallengeTTL
	}

	if frameworkOpts.sessionTTL == 0 {
		frameworkOpts.sessionTTL = authenticator.DefaultSessionTTL
	}

	if frameworkOpts.maxConcurrency == 0 {
		frameworkOpts.maxConcurrency = experiment.DefaultMaxConcurrency
	}

	return nil
}

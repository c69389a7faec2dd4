/*
Copyright Attestra Labs. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package authbench benchmarks credential based authentication flows built on
// self-sovereign identity primitives.
//
// Packages for end developer usage
//
// pkg/framework/authbench: The main package of the benchmark framework. This package assembles the
// identity registry, credential store, proof engine and authenticator backends based on provider
// options, and hands out an experiment runner.
//
// pkg/authenticator: The authenticator backends (password, assertion, possession, disclosure) and
// the shared session machine they drive.
//
// pkg/experiment: The experiment runner and metrics collector that execute authentication attempts
// and aggregate the results into a report.
//
// Basic workflow
//
//      1) Instantiate a framework instance using provider options.
//      2) Obtain a runner from your framework instance.
//      3) Run a batch of subjects through the configured authenticators.
//      4) Render the aggregated report.
//      5) Call framework.Close() to release resources.
package authbench

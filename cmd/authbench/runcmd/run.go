/*
Copyright Attestra Labs. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package runcmd

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/attestra/authbench/pkg/authenticator"
	"github.com/attestra/authbench/pkg/common/log"
	"github.com/attestra/authbench/pkg/experiment"
	"github.com/attestra/authbench/pkg/framework/authbench"
)

const (
	configFlagName      = "config"
	configEnvKey        = "AUTHBENCH_CONFIG"
	configFlagShorthand = "c"
	configFlagUsage     = "Path to a YAML or JSON framework config file." +
		" Alternatively, this can be set with the following environment variable: " + configEnvKey

	subjectsFlagName      = "subjects"
	subjectsEnvKey        = "AUTHBENCH_SUBJECTS"
	subjectsFlagShorthand = "s"
	subjectsFlagUsage     = "Path to a JSON file with subject records." +
		" Synthetic subjects are generated when not set." +
		" Alternatively, this can be set with the following environment variable: " + subjectsEnvKey

	subjectCountFlagName  = "subject-count"
	subjectCountEnvKey    = "AUTHBENCH_SUBJECT_COUNT"
	subjectCountFlagUsage = "Number of synthetic subjects to generate when no subject file is given." +
		" Defaults to " + subjectCountDefault + " if not set." +
		" Alternatively, this can be set with the following environment variable: " + subjectCountEnvKey
	subjectCountDefault = "10"

	authenticatorsFlagName      = "authenticators"
	authenticatorsEnvKey        = "AUTHBENCH_AUTHENTICATORS"
	authenticatorsFlagShorthand = "a"
	authenticatorsFlagUsage     = "Authenticator kinds to benchmark. This flag can be repeated." +
		" Possible values [password] [assertion] [possession] [disclosure]. Defaults to all four if not set." +
		" Alternatively, this can be set with the following environment variable (in CSV format): " +
		authenticatorsEnvKey

	concurrencyFlagName  = "concurrency"
	concurrencyEnvKey    = "AUTHBENCH_CONCURRENCY"
	concurrencyFlagUsage = "Number of attempts run in parallel." +
		" Alternatively, this can be set with the following environment variable: " + concurrencyEnvKey

	challengeTTLFlagName  = "challenge-ttl"
	challengeTTLEnvKey    = "AUTHBENCH_CHALLENGE_TTL"
	challengeTTLFlagUsage = "Challenge time to live in milliseconds." +
		" Alternatively, this can be set with the following environment variable: " + challengeTTLEnvKey

	logLevelFlagName  = "log-level"
	logLevelEnvKey    = "AUTHBENCH_LOG_LEVEL"
	logLevelFlagUsage = "Log level." +
		" Possible values [INFO] [DEBUG] [ERROR] [WARNING] [CRITICAL]. Defaults to INFO if not set." +
		" Alternatively, this can be set with the following environment variable: " + logLevelEnvKey
)

var logger = log.New("authbench/run")

type runParameters struct {
	options  []authbench.Option
	subjects []experiment.Subject
}

// Cmd returns the "run" command.
func Cmd() *cobra.Command {
	runCmd := createRunCmd()

	createFlags(runCmd)

	return runCmd
}

func createRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the authentication benchmark",
		Long: "Run a batch of authentication attempts across the configured authenticator backends" +
			" and print the aggregated report",
		RunE: func(cmd *cobra.Command, args []string) error {
			parameters, err := getRunParameters(cmd)
			if err != nil {
				return err
			}

			return runBenchmark(cmd, parameters)
		},
	}
}

func createFlags(runCmd *cobra.Command) {
	runCmd.Flags().StringP(configFlagName, configFlagShorthand, "", configFlagUsage)
	runCmd.Flags().StringP(subjectsFlagName, subjectsFlagShorthand, "", subjectsFlagUsage)
	runCmd.Flags().String(subjectCountFlagName, "", subjectCountFlagUsage)
	runCmd.Flags().StringSliceP(authenticatorsFlagName, authenticatorsFlagShorthand, nil,
		authenticatorsFlagUsage)
	runCmd.Flags().String(concurrencyFlagName, "", concurrencyFlagUsage)
	runCmd.Flags().String(challengeTTLFlagName, "", challengeTTLFlagUsage)
	runCmd.Flags().String(logLevelFlagName, "", logLevelFlagUsage)
}

// getRunParameters resolves the framework options and the subject batch. Config
// file options apply first, so explicit flags override the file.
func getRunParameters(cmd *cobra.Command) (*runParameters, error) {
	var opts []authbench.Option

	configPath, err := getUserSetVar(cmd, configFlagName, configEnvKey, true)
	if err != nil {
		return nil, err
	}

	if configPath != "" {
		configOpts, err := loadConfigOptions(configPath)
		if err != nil {
			return nil, err
		}

		opts = append(opts, configOpts...)
	}

	logLevel, err := getUserSetVar(cmd, logLevelFlagName, logLevelEnvKey, true)
	if err != nil {
		return nil, err
	}

	if logLevel != "" {
		opts = append(opts, authbench.WithLogLevel(logLevel))
	}

	kindNames, err := getUserSetVars(cmd, authenticatorsFlagName, authenticatorsEnvKey, true)
	if err != nil {
		return nil, err
	}

	if len(kindNames) > 0 {
		kinds := make([]authenticator.Kind, 0, len(kindNames))

		for _, name := range kindNames {
			kind, err := authenticator.ParseKind(name)
			if err != nil {
				return nil, err
			}

			kinds = append(kinds, kind)
		}

		opts = append(opts, authbench.WithAuthenticators(kinds...))
	}

	concurrency, err := getUserSetVar(cmd, concurrencyFlagName, concurrencyEnvKey, true)
	if err != nil {
		return nil, err
	}

	if concurrency != "" {
		n, err := strconv.Atoi(concurrency)
		if err != nil {
			return nil, fmt.Errorf("invalid concurrency %q: %w", concurrency, err)
		}

		opts = append(opts, authbench.WithMaxConcurrency(n))
	}

	challengeTTL, err := getUserSetVar(cmd, challengeTTLFlagName, challengeTTLEnvKey, true)
	if err != nil {
		return nil, err
	}

	if challengeTTL != "" {
		ms, err := strconv.Atoi(challengeTTL)
		if err != nil {
			return nil, fmt.Errorf("invalid challenge TTL %q: %w", challengeTTL, err)
		}

		opts = append(opts, authbench.WithChallengeTTL(time.Duration(ms)*time.Millisecond))
	}

	subjects, err := getSubjects(cmd)
	if err != nil {
		return nil, err
	}

	return &runParameters{options: opts, subjects: subjects}, nil
}

func loadConfigOptions(path string) ([]authbench.Option, error) {
	data, err := os.ReadFile(path) //nolint: gosec // config path comes from the operator
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg, err := authbench.ParseConfig(data)
	if err != nil {
		return nil, err
	}

	return cfg.Options()
}

func getSubjects(cmd *cobra.Command) ([]experiment.Subject, error) {
	subjectsPath, err := getUserSetVar(cmd, subjectsFlagName, subjectsEnvKey, true)
	if err != nil {
		return nil, err
	}

	if subjectsPath != "" {
		data, err := os.ReadFile(subjectsPath) //nolint: gosec // subject path comes from the operator
		if err != nil {
			return nil, fmt.Errorf("read subjects file: %w", err)
		}

		return experiment.LoadSubjects(bytes.NewReader(data))
	}

	countVar, err := getUserSetVar(cmd, subjectCountFlagName, subjectCountEnvKey, true)
	if err != nil {
		return nil, err
	}

	if countVar == "" {
		countVar = subjectCountDefault
	}

	count, err := strconv.Atoi(countVar)
	if err != nil {
		return nil, fmt.Errorf("invalid subject count %q: %w", countVar, err)
	}

	return experiment.SynthesizeSubjects(count)
}

func runBenchmark(cmd *cobra.Command, parameters *runParameters) error {
	framework, err := authbench.New(parameters.options...)
	if err != nil {
		return fmt.Errorf("initialize framework: %w", err)
	}

	defer func() {
		if err := framework.Close(); err != nil {
			logger.Errorf("framework close: %s", err)
		}
	}()

	runner, err := framework.Runner()
	if err != nil {
		return err
	}

	report, err := runner.Run(cmd.Context(), parameters.subjects)
	if err != nil {
		return fmt.Errorf("run benchmark: %w", err)
	}

	logger.Infof("benchmark finished: %d outcomes", len(report.Outcomes))

	return report.Render(cmd.OutOrStdout())
}

func getUserSetVar(cmd *cobra.Command, flagName, envKey string, isOptional bool) (string, error) {
	if cmd.Flags().Changed(flagName) {
		value, err := cmd.Flags().GetString(flagName)
		if err != nil {
			return "", fmt.Errorf(flagName+" flag not found: %s", err)
		}

		return value, nil
	}

	value, isSet := os.LookupEnv(envKey)

	if isOptional || isSet {
		return value, nil
	}

	return "", errors.New("Neither " + flagName + " (command line flag) nor " + envKey +
		" (environment variable) have been set.")
}

func getUserSetVars(cmd *cobra.Command, flagName, envKey string, isOptional bool) ([]string, error) {
	if cmd.Flags().Changed(flagName) {
		value, err := cmd.Flags().GetStringSlice(flagName)
		if err != nil {
			return nil, fmt.Errorf(flagName+" flag not found: %s", err)
		}

		return value, nil
	}

	value, isSet := os.LookupEnv(envKey)

	var values []string

	if isSet {
		values = strings.Split(value, ",")
	}

	if isOptional || isSet {
		return values, nil
	}

	return nil, fmt.Errorf(" %s not set. "+
		"It must be set via either command line or environment variable", flagName)
}

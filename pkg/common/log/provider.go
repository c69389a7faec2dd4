/*
Copyright Attestra Labs. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package log provides module-scoped, leveled logging for the framework. Loggers are
// created per module with New and resolve their backing implementation lazily, so a
// custom provider installed through Initialize takes over all output as long as it is
// installed before the first log line.
package log

import (
	"sync"

	"github.com/attestra/authbench/pkg/internal/common/logging/modlog"
	spilog "github.com/attestra/authbench/spi/log"
)

//nolint:lll
const (
	loggerNotInitializedMsg = "Default logger initialized (please call log.Initialize() if you wish to use a custom logger)"
	loggerModule            = "authbench/common"
)

// loggerProviderInstance is the logger factory singleton - access only via loggerProvider().
//
//nolint:gochecknoglobals
var (
	loggerProviderInstance spilog.LoggerProvider
	loggerProviderOnce     sync.Once
)

// Initialize sets a new custom logging provider which takes over logging operations.
// It is required to call this function before making any log lines for the custom
// provider to be used.
func Initialize(l spilog.LoggerProvider) {
	loggerProviderOnce.Do(func() {
		loggerProviderInstance = &modlogProvider{custom: l}
		logger := loggerProviderInstance.GetLogger(loggerModule)
		logger.Debugf("Logger provider initialized")
	})
}

func loggerProvider() spilog.LoggerProvider {
	loggerProviderOnce.Do(func() {
		// a custom logger must be initialized prior to the first log output,
		// otherwise the built-in logger is used
		loggerProviderInstance = &modlogProvider{}
		logger := loggerProviderInstance.GetLogger(loggerModule)
		logger.Debugf(loggerNotInitializedMsg)
	})

	return loggerProviderInstance
}

// modlogProvider is a module-based logger provider wrapped on a given custom logging
// provider. If no custom provider is given, the default logger is used.
type modlogProvider struct {
	custom spilog.LoggerProvider
}

// GetLogger returns a moduled logger implementation.
func (p *modlogProvider) GetLogger(module string) spilog.Logger {
	var logger spilog.Logger
	if p.custom != nil {
		logger = p.custom.GetLogger(module)
	} else {
		logger = modlog.NewDefLog(module)
	}

	return modlog.NewModLog(logger, module)
}

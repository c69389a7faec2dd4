/*
Copyright Attestra Labs. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package modlog provides the default logger implementation and the module-level
// filtering wrapper applied to every logger handed out by pkg/common/log.
package modlog

import (
	"github.com/attestra/authbench/pkg/internal/common/logging/metadata"
	spilog "github.com/attestra/authbench/spi/log"
)

// NewModLog returns a moduled wrapper over the given logger implementation.
// It adds module-based level filtering on top of the provided logger.
func NewModLog(logger spilog.Logger, module string) *ModLog {
	return &ModLog{logger: logger, module: module}
}

// ModLog is a moduled wrapper for an underlying logger implementation.
type ModLog struct {
	logger spilog.Logger
	module string
}

// Fatalf calls the underlying logger.Fatalf.
func (m *ModLog) Fatalf(format string, args ...interface{}) {
	m.logger.Fatalf(format, args...)
}

// Panicf calls the underlying logger.Panicf.
func (m *ModLog) Panicf(format string, args ...interface{}) {
	m.logger.Panicf(format, args...)
}

// Debugf calls the underlying logger.Debugf if DEBUG is enabled for the module.
func (m *ModLog) Debugf(format string, args ...interface{}) {
	if !metadata.IsEnabledFor(m.module, spilog.DEBUG) {
		return
	}

	m.logger.Debugf(format, args...)
}

// Infof calls the underlying logger.Infof if INFO is enabled for the module.
func (m *ModLog) Infof(format string, args ...interface{}) {
	if !metadata.IsEnabledFor(m.module, spilog.INFO) {
		return
	}

	m.logger.Infof(format, args...)
}

// Warnf calls the underlying logger.Warnf if WARNING is enabled for the module.
func (m *ModLog) Warnf(format string, args ...interface{}) {
	if !metadata.IsEnabledFor(m.module, spilog.WARNING) {
		return
	}

	m.logger.Warnf(format, args...)
}

// Errorf calls the underlying logger.Errorf if ERROR is enabled for the module.
func (m *ModLog) Errorf(format string, args ...interface{}) {
	if !metadata.IsEnabledFor(m.module, spilog.ERROR) {
		return
	}

	m.logger.Errorf(format, args...)
}

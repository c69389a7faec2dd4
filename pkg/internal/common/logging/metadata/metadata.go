/*
Copyright Attestra Labs. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package metadata

import (
	"errors"
	"strings"
	"sync"

	"github.com/attestra/authbench/spi/log"
)

const defaultModuleName = ""

// levelNames - log level names in string.
var levelNames = []string{ //nolint:gochecknoglobals
	"CRITICAL",
	"ERROR",
	"WARNING",
	"INFO",
	"DEBUG",
}

//nolint:gochecknoglobals
var (
	rwmutex      = &sync.RWMutex{}
	moduleLevels = &moduleLevelsStore{levels: make(map[string]log.Level)}
	callerInfos  = &callerInfoStore{}
)

// SetLevel sets the log level for given module.
func SetLevel(module string, level log.Level) {
	rwmutex.Lock()
	defer rwmutex.Unlock()

	moduleLevels.setLevel(module, level)
}

// GetLevel returns the log level for given module.
func GetLevel(module string) log.Level {
	rwmutex.RLock()
	defer rwmutex.RUnlock()

	return moduleLevels.getLevel(module)
}

// IsEnabledFor returns true if logging is enabled for given module and level.
func IsEnabledFor(module string, level log.Level) bool {
	rwmutex.RLock()
	defer rwmutex.RUnlock()

	return level <= moduleLevels.getLevel(module)
}

// ParseLevel returns the log level from a string representation.
func ParseLevel(level string) (log.Level, error) {
	for i, name := range levelNames {
		if strings.EqualFold(name, level) {
			return log.Level(i), nil
		}
	}

	return log.ERROR, errors.New("logger: invalid log level")
}

// ParseString returns string representation of given log level.
func ParseString(level log.Level) string {
	return levelNames[level]
}

// ShowCallerInfo enables caller info in log lines for given module and level.
func ShowCallerInfo(module string, level log.Level) {
	rwmutex.Lock()
	defer rwmutex.Unlock()

	callerInfos.show(module, level)
}

// HideCallerInfo disables caller info in log lines for given module and level.
func HideCallerInfo(module string, level log.Level) {
	rwmutex.Lock()
	defer rwmutex.Unlock()

	callerInfos.hide(module, level)
}

// IsCallerInfoEnabled returns true if caller info is enabled for given module and level.
func IsCallerInfoEnabled(module string, level log.Level) bool {
	rwmutex.RLock()
	defer rwmutex.RUnlock()

	return callerInfos.isEnabled(module, level)
}

// moduleLevelsStore maintains log levels based on modules.
type moduleLevelsStore struct {
	levels map[string]log.Level
}

func (l *moduleLevelsStore) getLevel(module string) log.Level {
	level, exists := l.levels[module]
	if !exists {
		level, exists = l.levels[defaultModuleName]
		// no configuration exists, default to info
		if !exists {
			return log.INFO
		}
	}

	return level
}

func (l *moduleLevelsStore) setLevel(module string, level log.Level) {
	l.levels[module] = level
}

type callerInfoKey struct {
	module string
	level  log.Level
}

// callerInfoStore maintains module-level based settings to show or hide caller info.
type callerInfoStore struct {
	showcaller map[callerInfoKey]bool
}

func (l *callerInfoStore) show(module string, level log.Level) {
	l.init()
	l.showcaller[callerInfoKey{module, level}] = true
}

func (l *callerInfoStore) hide(module string, level log.Level) {
	l.init()
	l.showcaller[callerInfoKey{module, level}] = false
}

func (l *callerInfoStore) isEnabled(module string, level log.Level) bool {
	l.init()

	enabled, exists := l.showcaller[callerInfoKey{module, level}]
	if !exists {
		// no callerinfo setting exists for given module, fall back to the default
		return l.showcaller[callerInfoKey{defaultModuleName, level}]
	}

	return enabled
}

func (l *callerInfoStore) init() {
	if l.showcaller == nil {
		l.showcaller = map[callerInfoKey]bool{
			{defaultModuleName, log.CRITICAL}: true,
			{defaultModuleName, log.ERROR}:    true,
			{defaultModuleName, log.WARNING}:  true,
			{defaultModuleName, log.INFO}:     true,
			{defaultModuleName, log.DEBUG}:    true,
		}
	}
}

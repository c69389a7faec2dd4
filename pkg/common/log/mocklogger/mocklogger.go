/*
Copyright Attestra Labs. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package mocklogger provides a buffer-backed logger for tests.
package mocklogger

import (
	"bytes"
	"fmt"
	"sync"

	spilog "github.com/attestra/authbench/spi/log"
)

// MockLogger is a mocked logger that records every formatted line for inspection.
type MockLogger struct {
	buf  bytes.Buffer
	lock sync.Mutex

	// FatalPanics makes Fatalf panic instead of exiting, so tests can assert on it.
	FatalPanics bool
}

// Fatalf records a CRITICAL line. It panics rather than exiting when FatalPanics is set.
func (l *MockLogger) Fatalf(msg string, args ...interface{}) {
	l.record("CRITICAL", msg, args...)

	if l.FatalPanics {
		panic(fmt.Sprintf(msg, args...))
	}
}

// Panicf records a CRITICAL line and panics.
func (l *MockLogger) Panicf(msg string, args ...interface{}) {
	l.record("CRITICAL", msg, args...)
	panic(fmt.Sprintf(msg, args...))
}

// Errorf records an ERROR line.
func (l *MockLogger) Errorf(msg string, args ...interface{}) {
	l.record("ERROR", msg, args...)
}

// Warnf records a WARNING line.
func (l *MockLogger) Warnf(msg string, args ...interface{}) {
	l.record("WARNING", msg, args...)
}

// Infof records an INFO line.
func (l *MockLogger) Infof(msg string, args ...interface{}) {
	l.record("INFO", msg, args...)
}

// Debugf records a DEBUG line.
func (l *MockLogger) Debugf(msg string, args ...interface{}) {
	l.record("DEBUG", msg, args...)
}

// GetAllLogs returns everything logged so far.
func (l *MockLogger) GetAllLogs() string {
	l.lock.Lock()
	defer l.lock.Unlock()

	return l.buf.String()
}

func (l *MockLogger) record(level, msg string, args ...interface{}) {
	l.lock.Lock()
	defer l.lock.Unlock()

	fmt.Fprintf(&l.buf, level+" "+msg+"\n", args...)
}

// Provider is a mock logger provider for tests. All modules share one MockLogger.
type Provider struct {
	MockLogger *MockLogger
}

// NewProvider returns a Provider backed by a fresh MockLogger.
func NewProvider() *Provider {
	return &Provider{MockLogger: &MockLogger{}}
}

// GetLogger returns the shared mock logger.
func (p *Provider) GetLogger(string) spilog.Logger {
	return p.MockLogger
}

/*
 *
 * Copyright 2026 CoreRPC Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 */

// Package chanlog defines the logging facade used throughout the channel
// runtime, mirroring google.golang.org/grpc/grpclog: a swappable backend
// (LoggerV2) behind component-scoped, verbosity-gated loggers.
package chanlog

import (
	"fmt"
	"log"
	"os"
	"sync"
)

// LoggerV2 is the interface a logging backend must implement to be
// installed via SetLoggerV2. chanlog/glog implements this over glog, the
// way grpclog/glogger implements grpclog.LoggerV2 over glog.
type LoggerV2 interface {
	Info(args ...any)
	Infof(format string, args ...any)
	Warning(args ...any)
	Warningf(format string, args ...any)
	Error(args ...any)
	Errorf(format string, args ...any)
	V(l int) bool
}

var (
	mu      sync.RWMutex
	logger  LoggerV2 = newDefaultLogger()
)

// SetLoggerV2 installs l as the backend for every PrefixLogger. Packages
// wishing to use a particular backend should call this from an init()
// function, as chanlog/glog does.
func SetLoggerV2(l LoggerV2) {
	mu.Lock()
	defer mu.Unlock()
	logger = l
}

func current() LoggerV2 {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// defaultLogger is the fallback backend, used until a package like
// chanlog/glog installs a real one. It writes to stderr via the standard
// library logger, unlike every other component in this module, because it
// exists specifically to have no dependency on anything this module could
// fail to initialize.
type defaultLogger struct {
	l        *log.Logger
	verbosity int
}

func newDefaultLogger() *defaultLogger {
	v := 0
	return &defaultLogger{l: log.New(os.Stderr, "", log.LstdFlags), verbosity: v}
}

func (d *defaultLogger) Info(args ...any)                  { d.l.Print(args...) }
func (d *defaultLogger) Infof(format string, args ...any)   { d.l.Printf(format, args...) }
func (d *defaultLogger) Warning(args ...any)                { d.l.Print(args...) }
func (d *defaultLogger) Warningf(format string, args ...any) { d.l.Printf(format, args...) }
func (d *defaultLogger) Error(args ...any)                  { d.l.Print(args...) }
func (d *defaultLogger) Errorf(format string, args ...any)   { d.l.Printf(format, args...) }
func (d *defaultLogger) V(l int) bool                        { return l <= d.verbosity }

// PrefixLogger decorates every line logged through it with a component
// prefix, mirroring grpclog's Component loggers.
type PrefixLogger struct {
	prefix string
}

// Component returns a PrefixLogger scoped to name, e.g.
// chanlog.Component("pick-first-lb").
func Component(name string) *PrefixLogger {
	return &PrefixLogger{prefix: "[" + name + "] "}
}

// NewPrefixLogger returns a PrefixLogger with an arbitrary, already
// formatted prefix, mirroring internal/grpclog.NewPrefixLogger (used by
// the teacher's pickfirst balancer to embed a %p balancer pointer in the
// prefix).
func NewPrefixLogger(prefix string) *PrefixLogger {
	return &PrefixLogger{prefix: prefix}
}

func (p *PrefixLogger) Infof(format string, args ...any) {
	current().Infof(p.prefix+format, args...)
}

func (p *PrefixLogger) Warningf(format string, args ...any) {
	current().Warningf(p.prefix+format, args...)
}

func (p *PrefixLogger) Errorf(format string, args ...any) {
	current().Errorf(p.prefix+format, args...)
}

// V reports whether logging at verbosity level l is enabled for the
// current backend, mirroring grpclog's V() gate used pervasively as
// `if logger.V(2) { logger.Infof(...) }` to avoid formatting cost when a
// log line is disabled.
func (p *PrefixLogger) V(l int) bool {
	return current().V(l)
}

// Infoln and friends exist for call sites that build their message with
// fmt.Sprint-style concatenation instead of a format string.
func (p *PrefixLogger) Infoln(args ...any) {
	current().Infof("%s%s", p.prefix, fmt.Sprint(args...))
}

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

// Package glog installs glog as the logging backend for chanlog. Importing
// this package for its side effect switches every chanlog.PrefixLogger to
// write through github.com/golang/glog, mirroring how importing
// google.golang.org/grpc/grpclog/glogger installs glog for grpclog.
package glog

import (
	"fmt"

	gglog "github.com/golang/glog"

	"github.com/corerpc/corerpc/chanlog"
)

const depth = 2

func init() {
	chanlog.SetLoggerV2(&logger{})
}

type logger struct{}

func (g *logger) Info(args ...any) { gglog.InfoDepth(depth, args...) }
func (g *logger) Infof(format string, args ...any) {
	gglog.InfoDepth(depth, fmt.Sprintf(format, args...))
}
func (g *logger) Warning(args ...any) { gglog.WarningDepth(depth, args...) }
func (g *logger) Warningf(format string, args ...any) {
	gglog.WarningDepth(depth, fmt.Sprintf(format, args...))
}
func (g *logger) Error(args ...any) { gglog.ErrorDepth(depth, args...) }
func (g *logger) Errorf(format string, args ...any) {
	gglog.ErrorDepth(depth, fmt.Sprintf(format, args...))
}
func (g *logger) V(l int) bool { return bool(gglog.V(gglog.Level(l))) }

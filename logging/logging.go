/*
 *    Copyright 2024 Locatible
 *
 *    Licensed under the Apache License, Version 2.0 (the "License");
 *    you may not use this file except in compliance with the License.
 *    You may obtain a copy of the License at
 *
 *        http://www.apache.org/licenses/LICENSE-2.0
 *
 *    Unless required by applicable law or agreed to in writing, software
 *    distributed under the License is distributed on an "AS IS" BASIS,
 *    WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 *    See the License for the specific language governing permissions and
 *    limitations under the License.
 *
 */

// Package logging builds the two log sinks: one file per monitor worker and
// one file per job-manager process. Lines are level-prefixed console output,
// teed to stderr so operators can follow a worker live.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const fileStampFormat = "060102_150405"

func encoder() zapcore.Encoder {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05.000000")
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	return zapcore.NewConsoleEncoder(encCfg)
}

func newLogger(path string, level zapcore.Level) (*zap.SugaredLogger, func(), error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("creating log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file %s: %w", path, err)
	}

	sink := zapcore.NewMultiWriteSyncer(zapcore.AddSync(f), zapcore.AddSync(os.Stderr))
	core := zapcore.NewCore(encoder(), sink, level)
	logger := zap.New(core)

	cleanup := func() {
		_ = logger.Sync()
		_ = f.Close()
	}
	return logger.Sugar(), cleanup, nil
}

// NewMonitorLogger opens the per-worker sink
// <dir>/<prefix>_<ts>_T<truck>_J<job>.log. Prefix is "JM" for the monitor
// itself and "DB" for its store handle.
func NewMonitorLogger(dir, prefix string, jobID, truckID int) (*zap.SugaredLogger, func(), error) {
	name := fmt.Sprintf("%s_%s_T%d_J%d.log",
		prefix, time.Now().Format(fileStampFormat), truckID, jobID)
	return newLogger(filepath.Join(dir, name), zapcore.InfoLevel)
}

// NewManagerLogger opens the per-dispatcher sink <dir>/job_manager/<ts>.log.
func NewManagerLogger(dir string) (*zap.SugaredLogger, func(), error) {
	name := fmt.Sprintf("%s.log", time.Now().Format(fileStampFormat))
	return newLogger(filepath.Join(dir, "job_manager", name), zapcore.InfoLevel)
}

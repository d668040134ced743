// Copyright 2026 The rvos Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"rvos.dev/rvos/pkg/log"
)

// ErrorLogger is where error messages should be written to. These messages are
// consumed by the caller of rvos, so they go to stderr and are duplicated
// here if set.
var ErrorLogger io.Writer

// Errorf writes an error message to the log and to the ErrorLogger.
func Errorf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	log.Warningf(format, args...)
	writeError(format, args...)
}

// Fatalf logs the same way as Errorf, then exits the process.
func Fatalf(format string, args ...any) {
	Errorf(format, args...)
	// Return an error that is unlikely to be used by the workload.
	os.Exit(128)
}

func writeError(format string, args ...any) {
	if ErrorLogger == nil {
		return
	}
	// Use the same format as the log.JSONEmitter, so a single file can hold
	// both error messages and debug logs.
	msg := struct {
		Msg   string    `json:"msg"`
		Level string    `json:"level"`
		Time  time.Time `json:"time"`
	}{
		Msg:   fmt.Sprintf(format, args...),
		Level: "error",
		Time:  time.Now(),
	}
	if b, err := json.Marshal(&msg); err == nil {
		_, _ = ErrorLogger.Write(append(b, '\n'))
	}
}

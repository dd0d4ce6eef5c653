// Copyright 2024 Google LLC. All Rights Reserved.
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

// emulator runs one boot attempt of the bootloader on a simulated board.
//
// The board and its boot media are described by a YAML file; see
// internal/config for the format.
//
// Usage:
//   go run ./cmd/emulator --logtostderr --board=board.yaml
//   go run ./cmd/emulator --logtostderr --flash=flash.bin
package main

import (
	"flag"

	"github.com/badgeteam/badgeboot/cmd/emulator/impl"
	"github.com/golang/glog"
)

var (
	board = flag.String("board", "", "YAML board description; the ESP32-C6 defaults are used if unset")
	flash = flag.String("flash", "", "Flash image to boot from, replacing the board's media")
)

func main() {
	flag.Parse()

	if err := impl.Main(impl.EmulatorOpts{
		Board: *board,
		Flash: *flash,
	}); err != nil {
		glog.Exit(err.Error())
	}
}

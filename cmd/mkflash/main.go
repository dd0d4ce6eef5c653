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

// mkflash builds a flash image holding an ESP partition table, raw app
// images and AppFS partitions, as described by a YAML manifest.
//
// Usage:
//   go run ./cmd/mkflash --logtostderr --manifest=flash.yaml --output=flash.bin
package main

import (
	"flag"

	"github.com/badgeteam/badgeboot/cmd/mkflash/impl"
	"github.com/golang/glog"
)

var (
	manifest = flag.String("manifest", "", "YAML file describing the flash layout")
	output   = flag.String("output", "", "File to write the flash image to")
	quiet    = flag.Bool("quiet", false, "Don't show a progress bar")
)

func main() {
	flag.Parse()

	if err := impl.Main(impl.MkflashOpts{
		Manifest: *manifest,
		Output:   *output,
		Quiet:    *quiet,
	}); err != nil {
		glog.Exit(err.Error())
	}
}

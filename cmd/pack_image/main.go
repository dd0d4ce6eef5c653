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

// pack_image pads a raw ESP image and appends its checksum byte so that the
// bootloader will accept it.
//
// Usage:
//   go run ./cmd/pack_image --logtostderr --input=app.raw --output=app.bin
package main

import (
	"flag"

	"github.com/badgeteam/badgeboot/cmd/pack_image/impl"
	"github.com/golang/glog"
)

var (
	input  = flag.String("input", "", "Raw image: header and segments without checksum")
	output = flag.String("output", "", "File to write the packed image to")
)

func main() {
	flag.Parse()

	if err := impl.Main(impl.PackOpts{
		Input:  *input,
		Output: *output,
	}); err != nil {
		glog.Exit(err.Error())
	}
}

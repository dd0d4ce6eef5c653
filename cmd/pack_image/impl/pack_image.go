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

// Package impl is the implementation of the pack_image tool.
package impl

import (
	"errors"
	"fmt"
	"os"

	"github.com/badgeteam/badgeboot/internal/format"
	"github.com/golang/glog"
)

// PackOpts encapsulates pack_image parameters.
type PackOpts struct {
	Input  string
	Output string
}

// Main packs the image at opts.Input into opts.Output.
func Main(opts PackOpts) error {
	if opts.Input == "" || opts.Output == "" {
		return errors.New("input and output must be set")
	}
	raw, err := os.ReadFile(opts.Input)
	if err != nil {
		return fmt.Errorf("failed to read image: %w", err)
	}
	img, err := format.AppendChecksum(raw)
	if err != nil {
		return fmt.Errorf("failed to pack %q: %w", opts.Input, err)
	}
	if err := os.WriteFile(opts.Output, img, 0o644); err != nil {
		return fmt.Errorf("failed to write image: %w", err)
	}
	glog.Infof("Packed %d bytes into %q with checksum %#02x", len(raw), opts.Output, img[len(img)-1])
	return nil
}

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

// Package platform describes the board the bootloader runs on: its memory
// layout and the primitives needed to hand control to a loaded image.
package platform

import "fmt"

// Platform provides the board operations used while booting.
type Platform interface {
	// WriteRAM copies p to the physical RAM at addr.
	WriteRAM(addr uint32, p []byte) error
	// PreHandover masks interrupts ahead of the jump into the image.
	// It returns false if the board cannot be quiesced.
	PreHandover() bool
	// Jump transfers control to entry. On hardware it does not return.
	Jump(entry uint32)
	// Halt parks the CPU in a low-power wait. On hardware it does not
	// return.
	Halt()
}

// Window is a range of the address space.
type Window struct {
	Base uint32
	Size uint32
}

// Contains reports whether [addr, addr+length) lies entirely within w.
func (w Window) Contains(addr, length uint32) bool {
	return addr >= w.Base && uint64(addr)+uint64(length) <= uint64(w.Base)+uint64(w.Size)
}

func (w Window) String() string {
	return fmt.Sprintf("%#x-%#x", w.Base, uint64(w.Base)+uint64(w.Size)-1)
}

// Layout lists the address windows images may be loaded to.
type Layout struct {
	// XIP is the window backed by the XIP MMU.
	XIP Window
	// RAM is the SRAM available to loaded images.
	RAM Window
}

// ESP32C6 is the layout of the ESP32-C6.
var ESP32C6 = Layout{
	XIP: Window{Base: 0x42000000, Size: 0x01000000},
	RAM: Window{Base: 0x40800000, Size: 0x00080000},
}

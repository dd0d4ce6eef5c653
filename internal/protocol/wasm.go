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

package protocol

import (
	"bytes"
	"fmt"
	"time"

	"github.com/badgeteam/badgeboot/internal/filesys"
	"github.com/golang/glog"
	"github.com/perlin-network/life/exec"
	wasm_validation "github.com/perlin-network/life/wasm-validation"
)

var wasmMagic = []byte{0x00, 'a', 's', 'm', 0x01, 0x00, 0x00, 0x00}

// WASM runs WebAssembly images in an interpreter. It lets the emulator boot
// portable test payloads on the host.
type WASM struct {
	// EntryPoint names the exported function to run. If it is missing the
	// first function is run instead.
	EntryPoint string
	// Ret receives the entry function's return value.
	Ret int64
}

var _ Protocol = &WASM{}

// Identify implements Protocol.
func (w *WASM) Identify(f *filesys.File) bool {
	b := make([]byte, len(wasmMagic))
	if _, err := f.ReadAt(b, 0); err != nil {
		return false
	}
	return bytes.Equal(b, wasmMagic)
}

// Boot implements Protocol.
func (w *WASM) Boot(f *filesys.File) error {
	input := make([]byte, f.Size())
	if _, err := f.ReadAt(input, 0); err != nil {
		return fmt.Errorf("reading %s: %w", f.Name, err)
	}
	if err := wasm_validation.ValidateWasm(input); err != nil {
		return fmt.Errorf("invalid WebAssembly module: %w", err)
	}

	vm, err := exec.NewVirtualMachine(input, exec.VMConfig{
		DefaultMemoryPages:   128,
		DefaultTableSize:     65536,
		DisableFloatingPoint: false,
	}, new(Resolver), nil)
	if err != nil {
		return fmt.Errorf("instantiating module: %w", err)
	}

	entryID, ok := vm.GetFunctionExport(w.EntryPoint)
	if !ok {
		glog.Warningf("Entry function %q not found; starting from 0", w.EntryPoint)
		entryID = 0
	}

	start := time.Now()
	if vm.Module.Base.Start != nil {
		if _, err := vm.Run(int(vm.Module.Base.Start.Index)); err != nil {
			vm.PrintStackTrace()
			return fmt.Errorf("start function: %w", err)
		}
	}
	glog.Infof("Jumping to WebAssembly function %d", entryID)
	ret, err := vm.Run(entryID)
	if err != nil {
		vm.PrintStackTrace()
		return fmt.Errorf("entry function: %w", err)
	}
	w.Ret = ret
	glog.Infof("return value = %d, duration = %v", ret, time.Since(start))
	return nil
}

// Resolver defines imports for WebAssembly images.
type Resolver struct{}

// ResolveFunc defines the functions an image may import from the "env" module.
func (r *Resolver) ResolveFunc(module, field string) exec.FunctionImport {
	if module != "env" {
		panic(fmt.Errorf("unknown module: %s", module))
	}
	switch field {
	case "__life_log":
		return func(vm *exec.VirtualMachine) int64 {
			ptr := int(uint32(vm.GetCurrentFrame().Locals[0]))
			msgLen := int(uint32(vm.GetCurrentFrame().Locals[1]))
			glog.Infof("[app] %s", vm.Memory[ptr:ptr+msgLen])
			return 0
		}
	case "print_i64":
		return func(vm *exec.VirtualMachine) int64 {
			glog.Infof("[app] print_i64: %d", vm.GetCurrentFrame().Locals[0])
			return 0
		}
	case "print":
		return func(vm *exec.VirtualMachine) int64 {
			ptr := int(uint32(vm.GetCurrentFrame().Locals[0]))
			end := bytes.IndexByte(vm.Memory[ptr:], 0)
			if end < 0 {
				end = len(vm.Memory) - ptr
			}
			glog.Infof("[app] print: %s", vm.Memory[ptr:ptr+end])
			return 0
		}
	default:
		panic(fmt.Errorf("unknown field: %s", field))
	}
}

// ResolveGlobal defines the globals an image may import.
func (r *Resolver) ResolveGlobal(module, field string) int64 {
	panic(fmt.Errorf("unknown global: %s.%s", module, field))
}

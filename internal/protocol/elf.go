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
	"debug/elf"
	"fmt"
	"io"

	"github.com/badgeteam/badgeboot/internal/filesys"
	"github.com/golang/glog"
)

// ELF boots bare-metal 32-bit RISC-V ELF executables.
//
// Only PT_LOAD program headers are honoured; sections and symbols are
// ignored.
type ELF struct {
	Env
}

var _ Protocol = &ELF{}

func open(f *filesys.File) (*elf.File, error) {
	return elf.NewFile(io.NewSectionReader(f, 0, f.Size()))
}

// Identify implements Protocol.
func (e *ELF) Identify(f *filesys.File) bool {
	magic := make([]byte, len(elf.ELFMAG))
	if _, err := f.ReadAt(magic, 0); err != nil || string(magic) != elf.ELFMAG {
		return false
	}
	ef, err := open(f)
	if err != nil {
		glog.V(1).Infof("%s: bad ELF: %v", f.Name, err)
		return false
	}
	return ef.Class == elf.ELFCLASS32 && ef.Machine == elf.EM_RISCV && ef.Type == elf.ET_EXEC
}

// Boot implements Protocol.
func (e *ELF) Boot(f *filesys.File) error {
	ef, err := open(f)
	if err != nil {
		return fmt.Errorf("parsing ELF: %w", err)
	}

	var mapped []placement
	var zeroed []placement
	for idx, prg := range ef.Progs {
		if prg.Type != elf.PT_LOAD || prg.Memsz == 0 {
			continue
		}
		if prg.Filesz > prg.Memsz {
			return fmt.Errorf("LOAD segment %d has file size %#x beyond memory size %#x", idx, prg.Filesz, prg.Memsz)
		}
		if prg.Off+prg.Filesz > uint64(f.Size()) {
			return fmt.Errorf("LOAD segment %d runs past end of file", idx)
		}
		glog.Infof("Segment %d: load %#x bytes from %#x to %#x", idx, prg.Filesz, prg.Off, prg.Paddr)
		p := placement{fileOff: int64(prg.Off), length: int64(prg.Filesz), addr: uint32(prg.Paddr)}
		if prg.Memsz > prg.Filesz {
			if e.Layout.XIP.Contains(uint32(prg.Paddr), uint32(prg.Memsz)) {
				return fmt.Errorf("LOAD segment %d needs zero fill in the read-only XIP window", idx)
			}
			zeroed = append(zeroed, placement{length: int64(prg.Memsz - prg.Filesz), addr: uint32(prg.Paddr + prg.Filesz)})
		}
		if p.length > 0 {
			mapped = append(mapped, p)
		}
	}
	if len(mapped) == 0 && len(zeroed) == 0 {
		return fmt.Errorf("%s has no loadable segments", f.Name)
	}

	if err := e.setPageSize(f, mapped); err != nil {
		return err
	}
	if err := e.place(f, mapped); err != nil {
		return err
	}
	for _, z := range zeroed {
		if !e.Layout.RAM.Contains(z.addr, uint32(z.length)) {
			return fmt.Errorf("zero fill at %#x outside RAM", z.addr)
		}
		if err := e.Platform.WriteRAM(z.addr, make([]byte, z.length)); err != nil {
			return err
		}
	}
	return e.handover(uint32(ef.Entry))
}

// Copyright (c) 2020 Ozan Hacıbekiroğlu.
// Use of this source code is governed by a MIT License
// that can be found in the LICENSE file.

package tir

import (
	"fmt"
	"strconv"
)

// VirtualRegister is a storage slot of a single code object. Type is the
// static type of the value stored in it, if known.
type VirtualRegister struct {
	ID   int
	Type fmt.Stringer
}

func (r *VirtualRegister) String() string {
	return "r" + strconv.Itoa(r.ID)
}

// VirtualRegisters allocates registers monotonically. Registers are never
// reused or renumbered.
type VirtualRegisters struct {
	regs []*VirtualRegister
}

// Allocate returns a new register.
func (vr *VirtualRegisters) Allocate(typ fmt.Stringer) *VirtualRegister {
	r := &VirtualRegister{ID: len(vr.regs), Type: typ}
	vr.regs = append(vr.regs, r)
	return r
}

// Len returns the number of allocated registers.
func (vr *VirtualRegisters) Len() int {
	return len(vr.regs)
}

// Get returns the register with the given ID or nil.
func (vr *VirtualRegisters) Get(id int) *VirtualRegister {
	if id < 0 || id >= len(vr.regs) {
		return nil
	}
	return vr.regs[id]
}

// Contains reports whether r was allocated by this pool.
func (vr *VirtualRegisters) Contains(r *VirtualRegister) bool {
	return r != nil && vr.Get(r.ID) == r
}

// Copyright 2014 Quoc-Viet Nguyen. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD license. See the LICENSE file for details.

//go:build darwin || dragonfly || freebsd || linux || netbsd || openbsd || solaris
// +build darwin dragonfly freebsd linux netbsd openbsd solaris

// Package devicesim simulates a tmon sensor device over a pseudo-terminal,
// so the collector's serial link can be exercised in tests without a real
// RS-485 bus.
package devicesim

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/creack/pty"
)

// ptyPair holds both ends of a pseudo-terminal. The collector under test
// opens SlavePath as its serial device; the simulator reads and writes
// the Master end to play the part of the device on the other end of the
// bus.
type ptyPair struct {
	mu     sync.Mutex
	master *os.File
	slave  *os.File

	SlavePath string
}

func openPtyPair() (*ptyPair, error) {
	master, slave, err := pty.Open()
	if err != nil {
		return nil, fmt.Errorf("devicesim: open pty: %w", err)
	}
	return &ptyPair{master: master, slave: slave, SlavePath: slave.Name()}, nil
}

func (p *ptyPair) Read(b []byte) (int, error) {
	p.mu.Lock()
	master := p.master
	p.mu.Unlock()
	if master == nil {
		return 0, os.ErrClosed
	}
	return master.Read(b)
}

func (p *ptyPair) Write(b []byte) (int, error) {
	p.mu.Lock()
	master := p.master
	p.mu.Unlock()
	if master == nil {
		return 0, os.ErrClosed
	}
	return master.Write(b)
}

func (p *ptyPair) SetReadDeadline(t time.Time) error {
	p.mu.Lock()
	master := p.master
	p.mu.Unlock()
	if master == nil {
		return os.ErrClosed
	}
	return master.SetReadDeadline(t)
}

func (p *ptyPair) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var err error
	if p.master != nil {
		if e := p.master.Close(); e != nil && err == nil {
			err = e
		}
		p.master = nil
	}
	if p.slave != nil {
		if e := p.slave.Close(); e != nil && err == nil {
			err = e
		}
		p.slave = nil
	}
	return err
}

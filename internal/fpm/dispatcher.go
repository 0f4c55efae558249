// SPDX-License-Identifier:Apache-2.0

package fpm

import (
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"syscall"
)

// A Handler consumes netlink messages of the kinds it registered for.
type Handler interface {
	HandleNetlinkMessage(msg syscall.NetlinkMessage)
}

// Dispatcher routes netlink messages to handlers by message kind. The
// mapping is built at construction time; messages of unregistered kinds are
// dropped.
type Dispatcher struct {
	logger   log.Logger
	handlers map[uint16]Handler
}

func NewDispatcher(logger log.Logger) *Dispatcher {
	return &Dispatcher{
		logger:   logger,
		handlers: map[uint16]Handler{},
	}
}

// Register binds a message kind (RTM_NEWROUTE, RTM_DELLINK, ...) to a
// handler, replacing any previous binding.
func (d *Dispatcher) Register(msgType uint16, h Handler) {
	d.handlers[msgType] = h
}

func (d *Dispatcher) Dispatch(msg syscall.NetlinkMessage) {
	h, ok := d.handlers[msg.Header.Type]
	if !ok {
		level.Debug(d.logger).Log("op", "dispatch", "type", msg.Header.Type, "msg", "no handler for message kind, dropping")
		return
	}
	h.HandleNetlinkMessage(msg)
}

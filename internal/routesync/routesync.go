// SPDX-License-Identifier:Apache-2.0

// Package routesync translates netlink route and link updates from the
// routing stack into route-table writes on the application database, and
// tracks the state that has to outlive a single upstream connection: the
// warm-restart progress and the fib-suppression bookkeeping.
package routesync

import (
	"fmt"
	"net"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/vishvananda/netlink"
	"github.com/vishvananda/netlink/nl"
	"syscall"

	"golang.org/x/sys/unix"
)

// Pipeline is the buffered write path into the route table. The translator
// only enqueues; flushing is the event loop's business.
type Pipeline interface {
	Hset(key string, fieldValues map[string]string)
	Del(key string)
}

// StateWriter is a direct (unbuffered) view over one datastore table.
type StateWriter interface {
	Hset(key, field, value string) error
	Del(key string) error
}

// RouteSync is the route translator. All methods are called from the single
// event-loop goroutine.
type RouteSync struct {
	logger   log.Logger
	pipeline Pipeline
	warm     *WarmRestartHelper

	ifaces map[int]string

	suppressionEnabled bool
	// Routes written while suppression is on, still waiting for an offload
	// confirmation on the response channel.
	pendingOffload map[string]struct{}
}

func New(logger log.Logger, pipeline Pipeline, warm *WarmRestartHelper) *RouteSync {
	return &RouteSync{
		logger:         logger,
		pipeline:       pipeline,
		warm:           warm,
		ifaces:         map[int]string{},
		pendingOffload: map[string]struct{}{},
	}
}

// HandleNetlinkMessage consumes one netlink message from the FPM channel.
func (rs *RouteSync) HandleNetlinkMessage(msg syscall.NetlinkMessage) {
	switch msg.Header.Type {
	case unix.RTM_NEWROUTE, unix.RTM_DELROUTE:
		rs.onRouteMsg(msg.Header.Type, msg.Data)
	case unix.RTM_NEWLINK, unix.RTM_DELLINK:
		rs.onLinkMsg(msg.Header.Type, msg.Data)
	}
}

func (rs *RouteSync) onRouteMsg(msgType uint16, data []byte) {
	if len(data) < unix.SizeofRtMsg {
		level.Warn(rs.logger).Log("op", "route", "msg", "truncated route message")
		return
	}
	rtm := nl.DeserializeRtMsg(data)
	if rtm.Table != unix.RT_TABLE_MAIN {
		return
	}
	attrs, err := nl.ParseRouteAttr(data[unix.SizeofRtMsg:])
	if err != nil {
		level.Warn(rs.logger).Log("op", "route", "error", err, "msg", "unparseable route attributes")
		return
	}

	var (
		dst      net.IP
		nexthops []string
	)
	var gw net.IP
	var oif int
	for _, attr := range attrs {
		switch attr.Attr.Type {
		case unix.RTA_DST:
			dst = net.IP(attr.Value)
		case unix.RTA_GATEWAY:
			gw = net.IP(attr.Value)
		case unix.RTA_OIF:
			oif = int(nl.NativeEndian().Uint32(attr.Value))
		case unix.RTA_MULTIPATH:
			nexthops = rs.parseMultipath(attr.Value)
		}
	}

	key := routeKey(rtm.Family, rtm.Dst_len, dst)

	if msgType == unix.RTM_DELROUTE {
		rs.pipeline.Del(key)
		delete(rs.pendingOffload, key)
		stats.routes.WithLabelValues("del").Inc()
		return
	}

	if len(nexthops) == 0 {
		nexthops = []string{rs.nexthop(gw, oif)}
	}
	rs.pipeline.Hset(key, map[string]string{
		"nexthop":  joinNexthops(nexthops),
		"protocol": rtProtocol(rtm.Protocol),
	})
	rs.warm.RecordSeen(key)
	if rs.suppressionEnabled {
		rs.pendingOffload[key] = struct{}{}
	}
	stats.routes.WithLabelValues("set").Inc()
}

// parseMultipath walks the rtnexthop array of an RTA_MULTIPATH attribute.
func (rs *RouteSync) parseMultipath(data []byte) []string {
	var hops []string
	for len(data) >= unix.SizeofRtNexthop {
		nh := nl.DeserializeRtNexthop(data)
		hopLen := int(nh.RtNexthop.Len)
		if hopLen < unix.SizeofRtNexthop || hopLen > len(data) {
			break
		}
		var gw net.IP
		attrs, err := nl.ParseRouteAttr(data[unix.SizeofRtNexthop:hopLen])
		if err == nil {
			for _, attr := range attrs {
				if attr.Attr.Type == unix.RTA_GATEWAY {
					gw = net.IP(attr.Value)
				}
			}
		}
		hops = append(hops, rs.nexthop(gw, int(nh.RtNexthop.Ifindex)))
		data = data[nlaAlign(hopLen):]
	}
	return hops
}

func (rs *RouteSync) nexthop(gw net.IP, oif int) string {
	ifname := rs.ifaces[oif]
	if ifname == "" {
		ifname = fmt.Sprintf("if%d", oif)
	}
	if gw == nil {
		return ifname
	}
	return gw.String() + "@" + ifname
}

func (rs *RouteSync) onLinkMsg(msgType uint16, data []byte) {
	if len(data) < unix.SizeofIfInfomsg {
		level.Warn(rs.logger).Log("op", "link", "msg", "truncated link message")
		return
	}
	ifi := nl.DeserializeIfInfomsg(data)
	attrs, err := nl.ParseRouteAttr(data[unix.SizeofIfInfomsg:])
	if err != nil {
		level.Warn(rs.logger).Log("op", "link", "error", err, "msg", "unparseable link attributes")
		return
	}
	var name string
	for _, attr := range attrs {
		if attr.Attr.Type == unix.IFLA_IFNAME {
			name = unpadString(attr.Value)
		}
	}
	rs.setLink(msgType, int(ifi.Index), name)
}

// HandleLinkUpdate consumes one link update from the kernel notifier.
func (rs *RouteSync) HandleLinkUpdate(u netlink.LinkUpdate) {
	rs.setLink(u.Header.Type, int(u.Index), u.Link.Attrs().Name)
}

func (rs *RouteSync) setLink(msgType uint16, index int, name string) {
	if msgType == unix.RTM_DELLINK {
		delete(rs.ifaces, index)
		level.Debug(rs.logger).Log("event", "linkDel", "ifindex", index)
		return
	}
	if name != "" {
		rs.ifaces[index] = name
		level.Debug(rs.logger).Log("event", "linkSet", "ifindex", index, "ifname", name)
	}
}

func routeKey(family uint8, prefixLen uint8, dst net.IP) string {
	if dst == nil {
		if family == unix.AF_INET6 {
			return "::/0"
		}
		return "0.0.0.0/0"
	}
	return fmt.Sprintf("%s/%d", dst.String(), prefixLen)
}

func joinNexthops(hops []string) string {
	out := hops[0]
	for _, h := range hops[1:] {
		out += "," + h
	}
	return out
}

func rtProtocol(proto uint8) string {
	switch proto {
	case unix.RTPROT_KERNEL:
		return "kernel"
	case unix.RTPROT_STATIC:
		return "static"
	case unix.RTPROT_ZEBRA:
		return "zebra"
	case unix.RTPROT_BGP:
		return "bgp"
	case unix.RTPROT_OSPF:
		return "ospf"
	default:
		return fmt.Sprintf("%d", proto)
	}
}

func unpadString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

func nlaAlign(n int) int {
	return (n + 3) &^ 3
}

// SPDX-License-Identifier:Apache-2.0

package syncd

import (
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"

	"github.com/openrouting/fpmbridge/internal/routesync"
	"github.com/openrouting/fpmbridge/internal/selector"
	"github.com/openrouting/fpmbridge/internal/swss"
)

const (
	deviceMetadataKey = "localhost"
	suppressField     = "suppress-fib-pending"
	suppressEnabled   = "enabled"
)

// suppressionController owns the runtime fib-suppression toggle and the
// response channel that exists exactly while suppression is on.
type suppressionController struct {
	logger     log.Logger
	sync       Translator
	routeTable routesync.StateWriter
	newChannel func() (ResponseChannel, error)

	// resp is non-nil iff suppression is enabled; it is registered with the
	// session's selector iff non-nil.
	resp ResponseChannel
}

// attach registers the response channel with a fresh session's selector,
// creating it first if suppression was enabled before this session started.
func (c *suppressionController) attach(sel *selector.Selector) error {
	if !c.sync.IsSuppressionEnabled() {
		return nil
	}
	if c.resp == nil {
		resp, err := c.newChannel()
		if err != nil {
			return errors.Wrap(err, "creating route response channel")
		}
		c.resp = resp
	}
	sel.Add(c.resp)
	stats.suppression.Set(1)
	return nil
}

// handleConfig applies a batch of device metadata changes. Only "set"
// operations on the localhost entry's suppress-fib-pending field matter;
// everything else in the stream is someone else's configuration.
func (c *suppressionController) handleConfig(sel *selector.Selector, entries []swss.KeyOpFieldsValues) error {
	for _, entry := range entries {
		if entry.Op != swss.SetOp || entry.Key != deviceMetadataKey {
			continue
		}
		value, ok := entry.FieldValues[suppressField]
		if !ok {
			continue
		}
		if err := c.toggle(sel, value == suppressEnabled); err != nil {
			return err
		}
	}
	return nil
}

func (c *suppressionController) toggle(sel *selector.Selector, enable bool) error {
	switch {
	case enable && !c.sync.IsSuppressionEnabled():
		resp, err := c.newChannel()
		if err != nil {
			return errors.Wrap(err, "creating route response channel")
		}
		c.resp = resp
		c.sync.SetSuppressionEnabled(true)
		sel.Add(c.resp)
		stats.suppression.Set(1)

	case !enable && c.sync.IsSuppressionEnabled():
		// Responses may be in flight for routes still marked pending;
		// resolve everything before the channel disappears so none of them
		// is stranded suppressed.
		if err := c.sync.MarkRoutesResolved(c.routeTable); err != nil {
			return err
		}
		c.sync.SetSuppressionEnabled(false)
		sel.Remove(c.resp)
		if err := c.resp.Close(); err != nil {
			level.Warn(c.logger).Log("op", "suppressDisable", "error", err, "msg", "closing response channel")
		}
		c.resp = nil
		stats.suppression.Set(0)
	}
	return nil
}

func (c *suppressionController) owns(s selector.Selectable) bool {
	return c.resp != nil && s == c.resp
}

// handleResponses forwards all pending route-programming responses to the
// translator, in arrival order.
func (c *suppressionController) handleResponses() {
	for _, n := range c.resp.Pops() {
		c.sync.OnRouteResponse(n.Key, n.FieldValues)
	}
}

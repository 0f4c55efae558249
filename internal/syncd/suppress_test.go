// SPDX-License-Identifier:Apache-2.0

package syncd

import (
	"testing"

	"github.com/go-kit/log"
	"github.com/google/go-cmp/cmp"

	"github.com/openrouting/fpmbridge/internal/selector"
	"github.com/openrouting/fpmbridge/internal/swss"
)

type fakeChannel struct {
	events        chan struct{}
	notifications []swss.Notification
	closed        bool
	calls         *[]string
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{events: make(chan struct{}, 1)}
}

func (c *fakeChannel) Events() <-chan struct{} { return c.events }
func (c *fakeChannel) Readable() bool          { return len(c.notifications) > 0 }
func (c *fakeChannel) Priority() int           { return 0 }

func (c *fakeChannel) Pops() []swss.Notification {
	n := c.notifications
	c.notifications = nil
	return n
}

func (c *fakeChannel) Close() error {
	c.closed = true
	if c.calls != nil {
		*c.calls = append(*c.calls, "close")
	}
	return nil
}

type suppressionHarness struct {
	ctl     *suppressionController
	sync    *fakeTranslator
	sel     *selector.Selector
	created int
	channel *fakeChannel
	calls   []string
}

func newSuppressionHarness() *suppressionHarness {
	h := &suppressionHarness{
		sync: &fakeTranslator{},
		sel:  selector.New(),
	}
	h.sync.calls = &h.calls
	h.ctl = &suppressionController{
		logger:     log.NewNopLogger(),
		sync:       h.sync,
		routeTable: &fakeStateTable{},
		newChannel: func() (ResponseChannel, error) {
			h.created++
			h.channel = newFakeChannel()
			h.channel.calls = &h.calls
			return h.channel, nil
		},
	}
	return h
}

func metadataEntry(op, key string, fieldValues map[string]string) swss.KeyOpFieldsValues {
	return swss.KeyOpFieldsValues{Key: key, Op: op, FieldValues: fieldValues}
}

func TestSuppressionEnable(t *testing.T) {
	h := newSuppressionHarness()

	entries := []swss.KeyOpFieldsValues{
		metadataEntry(swss.SetOp, "localhost", map[string]string{"suppress-fib-pending": "enabled"}),
	}
	if err := h.ctl.handleConfig(h.sel, entries); err != nil {
		t.Fatalf("handleConfig: %v", err)
	}

	if h.created != 1 {
		t.Fatalf("got %d channels created, want 1", h.created)
	}
	if !h.sync.suppressed {
		t.Error("suppression must be enabled on the translator")
	}
	if !h.sel.Registered(h.channel) {
		t.Error("response channel must be registered")
	}

	// The same value arriving again must not rebuild the channel.
	if err := h.ctl.handleConfig(h.sel, entries); err != nil {
		t.Fatalf("handleConfig: %v", err)
	}
	if h.created != 1 {
		t.Errorf("got %d channels created after repeat, want 1", h.created)
	}
}

func TestSuppressionDisableResolvesBeforeClose(t *testing.T) {
	h := newSuppressionHarness()

	enable := []swss.KeyOpFieldsValues{
		metadataEntry(swss.SetOp, "localhost", map[string]string{"suppress-fib-pending": "enabled"}),
	}
	if err := h.ctl.handleConfig(h.sel, enable); err != nil {
		t.Fatalf("handleConfig enable: %v", err)
	}
	ch := h.channel

	disable := []swss.KeyOpFieldsValues{
		metadataEntry(swss.SetOp, "localhost", map[string]string{"suppress-fib-pending": "disabled"}),
	}
	if err := h.ctl.handleConfig(h.sel, disable); err != nil {
		t.Fatalf("handleConfig disable: %v", err)
	}

	if diff := cmp.Diff([]string{"resolve", "close"}, h.calls); diff != "" {
		t.Errorf("unexpected teardown order (-want +got)\n%s", diff)
	}
	if h.sync.suppressed {
		t.Error("suppression must be disabled on the translator")
	}
	if h.sel.Registered(ch) {
		t.Error("response channel must be deregistered")
	}
	if h.ctl.resp != nil {
		t.Error("controller must forget the closed channel")
	}
}

func TestSuppressionIgnoresUnrelatedConfig(t *testing.T) {
	h := newSuppressionHarness()

	entries := []swss.KeyOpFieldsValues{
		metadataEntry(swss.DelOp, "localhost", map[string]string{"suppress-fib-pending": "enabled"}),
		metadataEntry(swss.SetOp, "eth0", map[string]string{"suppress-fib-pending": "enabled"}),
		metadataEntry(swss.SetOp, "localhost", map[string]string{"hostname": "switch1"}),
	}
	if err := h.ctl.handleConfig(h.sel, entries); err != nil {
		t.Fatalf("handleConfig: %v", err)
	}

	if h.created != 0 {
		t.Errorf("got %d channels created, want 0", h.created)
	}
	if h.sync.suppressed {
		t.Error("suppression must stay disabled")
	}
}

func TestAttachRecreatesChannelForNewSession(t *testing.T) {
	h := newSuppressionHarness()
	h.sync.suppressed = true

	if err := h.ctl.attach(h.sel); err != nil {
		t.Fatalf("attach: %v", err)
	}

	if h.created != 1 {
		t.Fatalf("got %d channels created, want 1", h.created)
	}
	if !h.sel.Registered(h.channel) {
		t.Error("response channel must be registered with the new session")
	}

	// A second session reuses the surviving channel.
	sel2 := selector.New()
	if err := h.ctl.attach(sel2); err != nil {
		t.Fatalf("attach: %v", err)
	}
	if h.created != 1 {
		t.Errorf("got %d channels created after reattach, want 1", h.created)
	}
	if !sel2.Registered(h.channel) {
		t.Error("response channel must be registered with the second session")
	}
}

func TestResponsesForwardedInOrder(t *testing.T) {
	h := newSuppressionHarness()
	h.sync.suppressed = true
	if err := h.ctl.attach(h.sel); err != nil {
		t.Fatalf("attach: %v", err)
	}

	h.channel.notifications = []swss.Notification{
		{Key: "10.0.0.0/24", FieldValues: map[string]string{"err_str": "SWSS_RC_SUCCESS"}},
		{Key: "10.0.1.0/24", FieldValues: map[string]string{"err_str": "SWSS_RC_SUCCESS"}},
		{Key: "2001:db8::/64", FieldValues: map[string]string{"err_str": "SWSS_RC_SUCCESS"}},
	}
	h.ctl.handleResponses()

	want := []string{"10.0.0.0/24", "10.0.1.0/24", "2001:db8::/64"}
	if diff := cmp.Diff(want, h.sync.responses); diff != "" {
		t.Errorf("unexpected response order (-want +got)\n%s", diff)
	}
}

package app

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/voxdesk-ai/voxdesk/internal/telephony"
	telmock "github.com/voxdesk-ai/voxdesk/internal/telephony/mock"
)

func TestAwaitStart(t *testing.T) {
	t.Parallel()

	carrier := telmock.NewCarrier()
	carrier.Push(telephony.InboundEvent{Event: telephony.EventConnected})
	carrier.Push(telephony.InboundEvent{
		Event: telephony.EventStart,
		Start: &telephony.StartInfo{
			StreamSID: "MZ1",
			CallSID:   "CA1",
			CustomParameters: map[string]string{
				"tenant": "acme-plumb",
			},
		},
	})

	info, err := awaitStart(context.Background(), carrier)
	if err != nil {
		t.Fatalf("awaitStart: %v", err)
	}
	if info.CallSID != "CA1" || info.StreamSID != "MZ1" {
		t.Errorf("info = %+v", info)
	}
}

func TestAwaitStartRejectsProtocolViolation(t *testing.T) {
	t.Parallel()

	carrier := telmock.NewCarrier()
	carrier.PushMedia([]byte{0x00})

	if _, err := awaitStart(context.Background(), carrier); err == nil {
		t.Fatal("awaitStart accepted media before start")
	}
}

func TestAwaitStartTimesOut(t *testing.T) {
	t.Parallel()

	carrier := telmock.NewCarrier()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	if _, err := awaitStart(ctx, carrier); err == nil {
		t.Fatal("awaitStart returned without a start event")
	}
}

func TestTenantKeyPrecedence(t *testing.T) {
	t.Parallel()

	info := &telephony.StartInfo{
		CustomParameters: map[string]string{
			"tenant": "from-params",
			"to":     "+61280001000",
		},
	}

	r := httptest.NewRequest("GET", "/stream/ws?tenant=from-url", nil)
	if got := tenantKey(r, info); got != "from-url" {
		t.Errorf("tenantKey with URL param = %q", got)
	}

	r = httptest.NewRequest("GET", "/stream/ws", nil)
	if got := tenantKey(r, info); got != "from-params" {
		t.Errorf("tenantKey from custom parameters = %q", got)
	}

	delete(info.CustomParameters, "tenant")
	if got := tenantKey(r, info); got != "+61280001000" {
		t.Errorf("tenantKey fallback = %q", got)
	}
}

func TestCallerPhone(t *testing.T) {
	t.Parallel()

	info := &telephony.StartInfo{
		CustomParameters: map[string]string{"from": "+61400000001"},
	}
	if got := callerPhone(info); got != "+61400000001" {
		t.Errorf("callerPhone = %q", got)
	}

	info.CustomParameters["caller"] = "+61400000002"
	if got := callerPhone(info); got != "+61400000002" {
		t.Errorf("callerPhone prefers caller = %q", got)
	}

	if got := callerPhone(&telephony.StartInfo{}); got != "" {
		t.Errorf("callerPhone with no parameters = %q", got)
	}
}

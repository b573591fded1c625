package iptrack

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSingleIPMatch(t *testing.T) {
	wl := FromList([]string{"192.168.1.1"})
	assert.NoError(t, wl.Check("192.168.1.1"))
	assert.Error(t, wl.Check("192.168.1.2"))
}

func TestCIDRMatch8(t *testing.T) {
	wl := FromList([]string{"10.0.0.0/8"})
	assert.NoError(t, wl.Check("10.1.2.3"))
	assert.NoError(t, wl.Check("10.255.255.255"))
	assert.Error(t, wl.Check("11.0.0.1"))
}

func TestCIDRMatch24(t *testing.T) {
	wl := FromList([]string{"192.168.1.0/24"})
	assert.NoError(t, wl.Check("192.168.1.0"))
	assert.NoError(t, wl.Check("192.168.1.255"))
	assert.Error(t, wl.Check("192.168.2.0"))
}

func TestFromText(t *testing.T) {
	wl := FromText("10.0.0.0/8\n192.168.1.1\n\n  203.0.113.0/24  ")
	assert.NoError(t, wl.Check("10.5.5.5"))
	assert.NoError(t, wl.Check("192.168.1.1"))
	assert.NoError(t, wl.Check("203.0.113.50"))
	assert.Error(t, wl.Check("8.8.8.8"))
}

func TestEmptyListAllowsAll(t *testing.T) {
	wl := FromList(nil)
	assert.True(t, wl.IsEmpty())
	assert.NoError(t, wl.Check("1.2.3.4"))
}

func TestEmptyTextAllowsAll(t *testing.T) {
	wl := FromText("")
	assert.True(t, wl.IsEmpty())
	assert.NoError(t, wl.Check("1.2.3.4"))
}

func TestInvalidEntrySkippedNotFatal(t *testing.T) {
	wl := FromList([]string{"not-an-ip", "10.0.0.0/8"})
	assert.False(t, wl.IsEmpty())
	assert.NoError(t, wl.Check("10.0.0.1"))
}

func TestIPv6CIDR(t *testing.T) {
	wl := FromList([]string{"2001:db8::/32"})
	assert.NoError(t, wl.Check("2001:db8::1"))
	assert.Error(t, wl.Check("2001:db9::1"))
}

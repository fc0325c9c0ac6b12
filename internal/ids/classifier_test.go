package ids

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRecord(t *testing.T) {
	line := `{"timestamp":"2024-05-01T10:00:00.000000+0000","event_type":"alert","src_ip":"10.0.0.5",` +
		`"dest_ip":"192.168.1.10","proto":"TCP","alert":{"signature":"ET SCAN","signature_id":2001219,"severity":2,"category":"Attempted Information Leak"}}`

	rec, err := ParseRecord(line)
	require.NoError(t, err)
	assert.Equal(t, "alert", rec.EventType)
	assert.Equal(t, "10.0.0.5", rec.SourceAddress)
	assert.True(t, rec.HasSource)
	assert.Equal(t, "ET SCAN", rec.Signature)
	assert.Equal(t, int64(2001219), rec.SignatureID)
	assert.Equal(t, 2, rec.Severity)
	assert.Equal(t, "192.168.1.10", rec.DestAddress)
	assert.Equal(t, "TCP", rec.Proto)
	assert.Equal(t, line, rec.Raw)
}

func TestParseRecord_SignatureDefault(t *testing.T) {
	for _, line := range []string{
		`{"event_type":"alert","src_ip":"10.0.0.5"}`,
		`{"event_type":"alert","src_ip":"10.0.0.5","alert":{}}`,
		`{"event_type":"alert","src_ip":"10.0.0.5","alert":{"signature":""}}`,
	} {
		rec, err := ParseRecord(line)
		require.NoError(t, err, line)
		assert.Equal(t, SignatureUnknown, rec.Signature, line)
	}
}

func TestParseRecord_Errors(t *testing.T) {
	for _, line := range []string{
		``,
		`   `,
		`not json at all`,
		`[1,2,3]`,
		`"alert"`,
		`42`,
		`null`,
		`{"event_type":"alert",`,
		`{"event_type":7}`,
		`{"event_type":"alert","src_ip":["10.0.0.5"]}`,
	} {
		_, err := ParseRecord(line)
		assert.Error(t, err, line)
	}
}

func mustWhitelist(t *testing.T, entries ...string) *Whitelist {
	t.Helper()
	w, err := NewWhitelist(entries)
	require.NoError(t, err)
	return w
}

func TestClassify(t *testing.T) {
	whitelist := mustWhitelist(t, "127.0.0.1", "192.168.50.0/24", "2001:db8::1")
	blocked := NewBlockedSet()
	blocked.Add(netip.MustParseAddr("10.0.0.9"))

	tests := []struct {
		name      string
		line      string
		want      Result
		address   string
		signature string
	}{
		{
			name:      "actionable",
			line:      `{"event_type":"alert","src_ip":"10.0.0.5","alert":{"signature":"ET SCAN"}}`,
			want:      Actionable,
			address:   "10.0.0.5",
			signature: "ET SCAN",
		},
		{
			name:      "actionable without signature",
			line:      `{"event_type":"alert","src_ip":"10.0.0.6"}`,
			want:      Actionable,
			address:   "10.0.0.6",
			signature: "N/A",
		},
		{
			name:    "actionable ipv6",
			line:    `{"event_type":"alert","src_ip":"2001:db8::5"}`,
			want:    Actionable,
			address: "2001:db8::5",
		},
		{name: "malformed", line: `--> not json`, want: MalformedInput},
		{name: "invalid src_ip", line: `{"event_type":"alert","src_ip":"bad!addr"}`, want: MalformedInput},
		{name: "flow event", line: `{"event_type":"flow","src_ip":"10.0.0.5"}`, want: NotAnAlert},
		{name: "dns event", line: `{"event_type":"dns"}`, want: NotAnAlert},
		{name: "alert without src_ip", line: `{"event_type":"alert","alert":{"signature":"x"}}`, want: NotAnAlert},
		{name: "alert with empty src_ip", line: `{"event_type":"alert","src_ip":""}`, want: NotAnAlert},
		{
			name:    "whitelisted exact",
			line:    `{"event_type":"alert","src_ip":"127.0.0.1"}`,
			want:    Whitelisted,
			address: "127.0.0.1",
		},
		{
			name:    "whitelisted by prefix",
			line:    `{"event_type":"alert","src_ip":"192.168.50.77"}`,
			want:    Whitelisted,
			address: "192.168.50.77",
		},
		{
			name:    "whitelisted ipv6",
			line:    `{"event_type":"alert","src_ip":"2001:db8::1"}`,
			want:    Whitelisted,
			address: "2001:db8::1",
		},
		{
			name:    "mapped address matches ipv4 whitelist",
			line:    `{"event_type":"alert","src_ip":"::ffff:127.0.0.1"}`,
			want:    Whitelisted,
			address: "127.0.0.1",
		},
		{
			name:    "duplicate",
			line:    `{"event_type":"alert","src_ip":"10.0.0.9"}`,
			want:    DuplicateSuppressed,
			address: "10.0.0.9",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Classify(tt.line, whitelist, blocked)
			assert.Equal(t, tt.want, c.Result, c.Result.String())
			if tt.address != "" {
				assert.Equal(t, tt.address, c.Address.String())
			}
			if tt.signature != "" {
				assert.Equal(t, tt.signature, c.Signature)
			}
			if tt.want == MalformedInput {
				assert.Error(t, c.Err)
			}
		})
	}
}

func TestClassify_WhitelistBeatsDuplicate(t *testing.T) {
	whitelist := mustWhitelist(t, "10.1.1.1")
	blocked := NewBlockedSet()
	blocked.Add(netip.MustParseAddr("10.1.1.1"))

	c := Classify(`{"event_type":"alert","src_ip":"10.1.1.1"}`, whitelist, blocked)
	assert.Equal(t, Whitelisted, c.Result)
}

func TestClassify_DoesNotMutateBlockedSet(t *testing.T) {
	blocked := NewBlockedSet()
	Classify(`{"event_type":"alert","src_ip":"10.0.0.5"}`, nil, blocked)
	assert.Equal(t, 0, blocked.Len())
}

func TestClassify_NilSets(t *testing.T) {
	var wl *Whitelist
	c := Classify(`{"event_type":"alert","src_ip":"10.0.0.5"}`, wl, nil)
	assert.Equal(t, Actionable, c.Result)
}

func TestNewWhitelist_Invalid(t *testing.T) {
	_, err := NewWhitelist([]string{"127.0.0.1", "not-an-ip"})
	assert.Error(t, err)
}

func TestWhitelist_Entries(t *testing.T) {
	w := mustWhitelist(t, " 10.0.0.1 ", "10.2.3.4/16", "10.9.9.9/32")
	assert.Equal(t, []string{"10.0.0.1", "10.2.0.0/16", "10.9.9.9"}, w.Entries())
	assert.True(t, w.Contains(netip.MustParseAddr("10.9.9.9")))
	assert.True(t, w.Contains(netip.MustParseAddr("10.2.200.1")))
	assert.False(t, w.Contains(netip.MustParseAddr("10.3.0.1")))
}

func TestBlockedSet(t *testing.T) {
	b := NewBlockedSet()
	a := netip.MustParseAddr("10.0.0.2")

	assert.False(t, b.Contains(a))
	assert.True(t, b.Add(a))
	assert.False(t, b.Add(a))
	assert.True(t, b.Add(netip.MustParseAddr("10.0.0.1")))
	assert.True(t, b.Contains(netip.MustParseAddr("::ffff:10.0.0.2")))
	assert.Equal(t, 2, b.Len())

	assert.Equal(t, []netip.Addr{netip.MustParseAddr("10.0.0.1"), a}, b.Snapshot())
}

func TestResult_String(t *testing.T) {
	assert.Equal(t, "actionable", Actionable.String())
	assert.Equal(t, "duplicate_suppressed", DuplicateSuppressed.String())
	assert.Equal(t, "result(99)", Result(99).String())
}

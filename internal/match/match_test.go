package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/crm-pulse/internal/crm"
)

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"plain ten digits", "9876543210", "9876543210"},
		{"country code stripped", "+91 98765 43210", "9876543210"},
		{"zero prefix stripped", "09876543210", "9876543210"},
		{"punctuation removed", "(987) 654-3210", "9876543210"},
		{"short number kept as-is", "43210", "43210"},
		{"no digits", "call me maybe", ""},
		{"empty", "", ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, NormalizePhone(tc.raw))
		})
	}
}

func TestExtractPhoneFromSubject(t *testing.T) {
	tests := []struct {
		name    string
		subject string
		want    string
	}{
		{"trailing number", "Outgoing call to 9876543210", "9876543210"},
		{"formatted number", "Call with +91 98765-43210", "9876543210"},
		{"last token wins", "Transfer 1234567890 then 9876543210", "9876543210"},
		{"no phone token", "Weekly sync", ""},
		{"short digit run ignored", "Order 12345", ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ExtractPhoneFromSubject(tc.subject))
		})
	}
}

func TestCallPhonePrefersStructuredField(t *testing.T) {
	c := crm.Call{DialedPhone: "+919876543210", Subject: "Call to 1112223334"}
	assert.Equal(t, "9876543210", CallPhone(c))

	c = crm.Call{Subject: "Call to 1112223334"}
	assert.Equal(t, "1112223334", CallPhone(c))

	c = crm.Call{Subject: "no number here"}
	assert.Equal(t, "", CallPhone(c))
}

func TestKindForGroupSize(t *testing.T) {
	assert.Equal(t, ContactNew, KindForGroupSize(0))
	assert.Equal(t, ContactNew, KindForGroupSize(1))
	assert.Equal(t, ContactReturning, KindForGroupSize(2))
	assert.Equal(t, ContactRepeat, KindForGroupSize(3))
	assert.Equal(t, ContactRepeat, KindForGroupSize(7))
}

func TestBuildIndex(t *testing.T) {
	leads := []crm.Lead{
		{ID: "l1", NormalizedPhone: "9876543210", Name: "First"},
		{ID: "l2", NormalizedPhone: "9876543210", Name: "Second"},
		{ID: "l3", NormalizedPhone: "1112223334", Name: "Other"},
		{ID: "l4", Name: "No phone"},
	}
	calls := []crm.Call{
		{DialedPhone: "9876543210"},
		{Subject: "Follow up 5556667778"},
	}

	idx := BuildIndex(leads, calls)

	require.Len(t, idx.PhoneToLeads["9876543210"], 2)
	assert.Equal(t, "First", idx.PhoneToLeads["9876543210"][0].Name)

	// Last lead sharing a phone wins the direct lookup.
	assert.Equal(t, "Second", idx.LeadByPhone["9876543210"].Name)

	assert.Equal(t, "No phone", idx.LeadByID["l4"].Name)
	assert.NotContains(t, idx.PhoneToLeads, "")

	assert.Contains(t, idx.CallPhones, "9876543210")
	assert.Contains(t, idx.CallPhones, "5556667778")
	assert.Len(t, idx.CallPhones, 2)
}

func TestResolveLead(t *testing.T) {
	leads := []crm.Lead{
		{ID: "l1", NormalizedPhone: "9876543210", Name: "Phone match"},
		{ID: "l2", NormalizedPhone: "1112223334", Name: "Related match"},
	}
	idx := BuildIndex(leads, nil)

	l, ok := idx.ResolveLead(crm.Call{RelatedID: "l2"})
	require.True(t, ok)
	assert.Equal(t, "Related match", l.Name)

	// Relation id takes precedence over the dialed phone.
	l, ok = idx.ResolveLead(crm.Call{RelatedID: "l2", DialedPhone: "9876543210"})
	require.True(t, ok)
	assert.Equal(t, "Related match", l.Name)

	l, ok = idx.ResolveLead(crm.Call{DialedPhone: "987-654-3210"})
	require.True(t, ok)
	assert.Equal(t, "Phone match", l.Name)

	// Unknown relation id falls through to the phone.
	l, ok = idx.ResolveLead(crm.Call{RelatedID: "missing", DialedPhone: "9876543210"})
	require.True(t, ok)
	assert.Equal(t, "Phone match", l.Name)

	_, ok = idx.ResolveLead(crm.Call{DialedPhone: "0000000000"})
	assert.False(t, ok)
}

func TestIndexKind(t *testing.T) {
	leads := []crm.Lead{
		{ID: "a", NormalizedPhone: "1111111111"},
		{ID: "b", NormalizedPhone: "2222222222"},
		{ID: "c", NormalizedPhone: "2222222222"},
	}
	idx := BuildIndex(leads, nil)

	assert.Equal(t, ContactNew, idx.Kind(leads[0]))
	assert.Equal(t, ContactReturning, idx.Kind(leads[1]))
	assert.Equal(t, ContactNew, idx.Kind(crm.Lead{ID: "d"}))
}

func TestStatusContains(t *testing.T) {
	l := crm.Lead{LeadStatus: "Rejected", LeadSubStatus: "Price Too High"}
	assert.True(t, StatusContains(l, "reject"))
	assert.True(t, StatusContains(l, "price"))
	assert.False(t, StatusContains(l, "converted"))
}

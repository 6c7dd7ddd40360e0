package api

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNetworkLedger_CountsPerHost(t *testing.T) {
	n := newNetworkLedger()
	n.Record("https://models.example.com/speech.bin")
	n.Record("https://models.example.com/visual.bin")
	n.RecordBlocked("https://models.example.com/face.bin")

	rep := n.report()
	assert.Equal(t, 2, rep.TotalRequests)
	assert.Equal(t, 1, rep.TotalBlocked)
	assert.Equal(t, "models.example.com", rep.Hosts[0].Host)
	assert.Equal(t, 2, rep.Hosts[0].Count)
}

// A fresh ledger shows zero sent and zero blocked requests.
func TestNetworkLedger_StartsEmpty(t *testing.T) {
	rep := newNetworkLedger().report()
	assert.Zero(t, rep.TotalRequests)
	assert.Zero(t, rep.TotalBlocked)
	assert.Empty(t, rep.Hosts)
}

func TestNetworkLedger_UnparseableURL(t *testing.T) {
	n := newNetworkLedger()
	n.Record("::not-a-url::")
	rep := n.report()
	assert.Equal(t, 1, rep.TotalRequests)
	assert.Equal(t, "unknown", rep.Hosts[0].Host)
}

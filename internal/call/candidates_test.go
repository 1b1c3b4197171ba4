package call

import (
	"errors"
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
)

func TestCandidateBufferHoldsUntilReady(t *testing.T) {
	b := NewCandidateBuffer()
	b.Offer(webrtc.ICECandidateInit{Candidate: "one"})
	b.Offer(webrtc.ICECandidateInit{Candidate: "two"})

	var sent []string
	b.DrainIfReady(false, func(ci webrtc.ICECandidateInit) error {
		sent = append(sent, ci.Candidate)
		return nil
	})
	assert.Empty(t, sent)
	assert.Equal(t, 2, b.Len())
}

func TestCandidateBufferDrainsInOrder(t *testing.T) {
	b := NewCandidateBuffer()
	b.Offer(webrtc.ICECandidateInit{Candidate: "one"})
	b.Offer(webrtc.ICECandidateInit{Candidate: "two"})
	b.Offer(webrtc.ICECandidateInit{Candidate: "three"})

	var sent []string
	b.DrainIfReady(true, func(ci webrtc.ICECandidateInit) error {
		sent = append(sent, ci.Candidate)
		return nil
	})
	assert.Equal(t, []string{"one", "two", "three"}, sent)
	assert.Equal(t, 0, b.Len())
}

func TestCandidateBufferDrainsAtMostOnce(t *testing.T) {
	b := NewCandidateBuffer()
	b.Offer(webrtc.ICECandidateInit{Candidate: "one"})

	calls := 0
	send := func(ci webrtc.ICECandidateInit) error {
		calls++
		return nil
	}
	b.DrainIfReady(true, send)
	b.DrainIfReady(true, send)
	assert.Equal(t, 1, calls)
}

func TestCandidateBufferBestEffortPerCandidate(t *testing.T) {
	b := NewCandidateBuffer()
	b.Offer(webrtc.ICECandidateInit{Candidate: "one"})
	b.Offer(webrtc.ICECandidateInit{Candidate: "two"})
	b.Offer(webrtc.ICECandidateInit{Candidate: "three"})

	var sent []string
	b.DrainIfReady(true, func(ci webrtc.ICECandidateInit) error {
		if ci.Candidate == "two" {
			return errors.New("send failed")
		}
		sent = append(sent, ci.Candidate)
		return nil
	})
	// One failed send must not abort the rest.
	assert.Equal(t, []string{"one", "three"}, sent)
	assert.Equal(t, 0, b.Len())
}

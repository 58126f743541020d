// Package dispatcher turns "start campaign X" into a fully executed, fully
// recorded send operation across every contact in that campaign.
package dispatcher

import "errors"

var (
	// ErrCampaignNotDispatchable rejects a start request for a campaign
	// that is not in the draft or paused state. This is what prevents
	// double-dispatch of a campaign already sending.
	ErrCampaignNotDispatchable = errors.New("dispatcher: campaign is not in a dispatchable state")

	// ErrNoCredential aborts dispatch before anything is sent.
	ErrNoCredential = errors.New("dispatcher: no messaging credential available")

	// ErrCampaignNotActive is returned by Pause for a campaign with no
	// running dispatch.
	ErrCampaignNotActive = errors.New("dispatcher: campaign has no active dispatch")

	// ErrDispatchInProgress is returned when a dispatch run for the
	// campaign already exists in this process.
	ErrDispatchInProgress = errors.New("dispatcher: dispatch already in progress")
)

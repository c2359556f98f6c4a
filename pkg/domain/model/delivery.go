package model

import "time"

// HookProvider identifies which Git hosting provider delivered a webhook
type HookProvider string

const (
	ProviderGitHub    HookProvider = "github"
	ProviderGitLab    HookProvider = "gitlab"
	ProviderBitbucket HookProvider = "bitbucket"
	ProviderUnknown   HookProvider = "unknown"
)

// HookDelivery is a webhook delivery from a provisioned repository,
// normalized across provider header conventions
type HookDelivery struct {
	ID         string       // Provider delivery/request identifier
	Provider   HookProvider // Which provider sent it
	Event      HookEvent    // Normalized event kind
	Repository string       // Repository full name if present in payload
	ReceivedAt time.Time    // Time when the delivery was received
	RawPayload []byte       // Raw JSON payload
}

// IsSubscribedEvent reports whether the delivery matches an event kind
// catapult registers hooks for
func (d *HookDelivery) IsSubscribedEvent() bool {
	switch d.Event {
	case HookEventPush, HookEventMergeRequests, HookEventIssues:
		return true
	default:
		return false
	}
}

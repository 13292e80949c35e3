package stripewebhook

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/angelmondragon/tablerewards-backend/internal/subscriptions"
	"github.com/google/uuid"
)

// providerRef is an object reference that may arrive as a bare id, an
// expanded object or null.
type providerRef string

func (r *providerRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*r = ""
		return nil
	}
	if data[0] == '"' {
		var id string
		if err := json.Unmarshal(data, &id); err != nil {
			return err
		}
		*r = providerRef(strings.TrimSpace(id))
		return nil
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*r = providerRef(strings.TrimSpace(obj.ID))
	return nil
}

type invoicePeriod struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

type invoiceLine struct {
	Period       invoicePeriod     `json:"period"`
	Metadata     map[string]string `json:"metadata"`
	Subscription providerRef       `json:"subscription"`
}

type subscriptionDetails struct {
	Subscription providerRef       `json:"subscription"`
	Metadata     map[string]string `json:"metadata"`
}

// invoicePayload covers both the legacy top-level subscription field and the
// parent.subscription_details shape used by newer API versions.
type invoicePayload struct {
	ID           string      `json:"id"`
	AmountPaid   int64       `json:"amount_paid"`
	Currency     string      `json:"currency"`
	PeriodStart  int64       `json:"period_start"`
	PeriodEnd    int64       `json:"period_end"`
	Customer     providerRef `json:"customer"`
	Subscription providerRef `json:"subscription"`
	Parent       *struct {
		SubscriptionDetails *subscriptionDetails `json:"subscription_details"`
	} `json:"parent"`
	StatusTransitions struct {
		PaidAt int64 `json:"paid_at"`
	} `json:"status_transitions"`
	Lines struct {
		Data []invoiceLine `json:"data"`
	} `json:"lines"`
}

func (p *invoicePayload) firstLine() *invoiceLine {
	if len(p.Lines.Data) == 0 {
		return nil
	}
	return &p.Lines.Data[0]
}

func (p *invoicePayload) subscriptionDetails() *subscriptionDetails {
	if p.Parent == nil {
		return nil
	}
	return p.Parent.SubscriptionDetails
}

func (p *invoicePayload) subscriptionID() string {
	if p.Subscription != "" {
		return string(p.Subscription)
	}
	if details := p.subscriptionDetails(); details != nil && details.Subscription != "" {
		return string(details.Subscription)
	}
	if line := p.firstLine(); line != nil {
		return string(line.Subscription)
	}
	return ""
}

// ownerIDs reads userId/planId from the first line item, then from the
// subscription details snapshot.
func (p *invoicePayload) ownerIDs() (uuid.UUID, uuid.UUID, bool) {
	sources := make([]map[string]string, 0, 2)
	if line := p.firstLine(); line != nil {
		sources = append(sources, line.Metadata)
	}
	if details := p.subscriptionDetails(); details != nil {
		sources = append(sources, details.Metadata)
	}
	for _, metadata := range sources {
		userID, userErr := subscriptions.UUIDFromMetadata(metadata, subscriptions.MetadataUserID)
		planID, planErr := subscriptions.UUIDFromMetadata(metadata, subscriptions.MetadataPlanID)
		if userErr == nil && planErr == nil {
			return userID, planID, true
		}
	}
	return uuid.Nil, uuid.Nil, false
}

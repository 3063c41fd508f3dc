package service

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/smallbiznis/opensmile/internal/webhook/domain"
)

type fieldData struct {
	Name   string   `json:"name"`
	Values []string `json:"values"`
}

type metaLeadPayload struct {
	LeadID      string          `json:"leadId"`
	CampaignID  string          `json:"campaignId"`
	CreatedTime json.RawMessage `json:"created_time"`
	FieldData   []fieldData     `json:"field_data"`
}

// parseMetaLead validates the provider shape. Every violation is the same
// error so callers cannot probe which field failed.
func parseMetaLead(body []byte) (*metaLeadPayload, error) {
	var p metaLeadPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, domain.ErrInvalidPayload
	}
	if strings.TrimSpace(p.LeadID) == "" || strings.TrimSpace(p.CampaignID) == "" {
		return nil, domain.ErrInvalidPayload
	}
	if !isStringOrNumber(p.CreatedTime) {
		return nil, domain.ErrInvalidPayload
	}
	if p.FieldData == nil {
		return nil, domain.ErrInvalidPayload
	}
	for _, f := range p.FieldData {
		if f.Values == nil {
			return nil, domain.ErrInvalidPayload
		}
	}
	return &p, nil
}

func isStringOrNumber(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return false
	}
	switch c := raw[0]; {
	case c == '"':
		var s string
		return json.Unmarshal(raw, &s) == nil
	case c == '-' || (c >= '0' && c <= '9'):
		var n json.Number
		return json.Unmarshal(raw, &n) == nil
	default:
		return false
	}
}

// field returns the first value of the named field group.
func (p *metaLeadPayload) field(name string) (string, bool) {
	for _, f := range p.FieldData {
		if f.Name != name {
			continue
		}
		if len(f.Values) == 0 {
			return "", false
		}
		return f.Values[0], true
	}
	return "", false
}

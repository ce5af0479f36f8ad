package authcourier

import (
	"bytes"

	json "github.com/goccy/go-json"
)

// UserIdentity is the CloudTrail identity block of an authentication event
type UserIdentity struct {
	UserName  *string `json:"userName"`
	AccountID *string `json:"accountId"`
}

// AuthenticationEvent holds the CloudTrail fields kept from an SSO
// authentication. Fields absent from the message stay nil.
type AuthenticationEvent struct {
	EventTime       *string       `json:"eventTime"`
	EventSource     *string       `json:"eventSource"`
	EventName       *string       `json:"eventName"`
	SourceIPAddress *string       `json:"sourceIPAddress"`
	UserIdentity    *UserIdentity `json:"userIdentity"`
}

// AuthRecord is the row persisted per username. Username is the only key:
// a later record for the same user replaces the earlier one.
type AuthRecord struct {
	Username *string `json:"username,omitempty" dynamodbav:"username,omitempty"`
	Account  *string `json:"account,omitempty" dynamodbav:"account,omitempty"`
	Time     *string `json:"time,omitempty" dynamodbav:"time,omitempty"`
	Source   *string `json:"source,omitempty" dynamodbav:"source,omitempty"`
	Event    *string `json:"event,omitempty" dynamodbav:"event,omitempty"`
	SourceIP *string `json:"sourceIp,omitempty" dynamodbav:"sourceIp,omitempty"`
}

type rawAuthenticationEvent struct {
	EventTime       json.RawMessage `json:"eventTime"`
	EventSource     json.RawMessage `json:"eventSource"`
	EventName       json.RawMessage `json:"eventName"`
	SourceIPAddress json.RawMessage `json:"sourceIPAddress"`
	UserIdentity    json.RawMessage `json:"userIdentity"`
}

type rawUserIdentity struct {
	UserName  json.RawMessage `json:"userName"`
	AccountID json.RawMessage `json:"accountId"`
}

// ParseEvent parses the message of a log event. The message must be a JSON
// object; its fields are read best-effort: strings as is, other values as
// their JSON text, null or absent as nil. A userIdentity that is not an
// object is ignored.
func ParseEvent(message string) (*AuthenticationEvent, error) {
	var raw rawAuthenticationEvent
	if err := json.Unmarshal([]byte(message), &raw); err != nil {
		return nil, err
	}

	event := &AuthenticationEvent{
		EventTime:       fieldText(raw.EventTime),
		EventSource:     fieldText(raw.EventSource),
		EventName:       fieldText(raw.EventName),
		SourceIPAddress: fieldText(raw.SourceIPAddress),
	}

	if identity := bytes.TrimSpace(raw.UserIdentity); len(identity) > 0 && identity[0] == '{' {
		var rawIdentity rawUserIdentity
		if err := json.Unmarshal(identity, &rawIdentity); err != nil {
			return nil, err
		}
		event.UserIdentity = &UserIdentity{
			UserName:  fieldText(rawIdentity.UserName),
			AccountID: fieldText(rawIdentity.AccountID),
		}
	}

	return event, nil
}

func fieldText(raw json.RawMessage) *string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return &s
		}
	}
	text := string(raw)
	return &text
}

// NewAuthRecord projects an authentication event onto an auth record
func NewAuthRecord(event *AuthenticationEvent) AuthRecord {
	record := AuthRecord{
		Time:     event.EventTime,
		Source:   event.EventSource,
		Event:    event.EventName,
		SourceIP: event.SourceIPAddress,
	}
	if event.UserIdentity != nil {
		record.Username = event.UserIdentity.UserName
		record.Account = event.UserIdentity.AccountID
	}
	return record
}

// UsernameOrEmpty returns the record key, or "" when the event had none
func (r AuthRecord) UsernameOrEmpty() string {
	if r.Username == nil {
		return ""
	}
	return *r.Username
}

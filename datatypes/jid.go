package datatypes

import (
	"errors"
	"regexp"
	"strings"
)

var jidRegex = regexp.MustCompile(`^([^@/\s]+)@([^@/\s]+)(?:/(.+))?$`)

// A chat address, local@domain with an optional resource.
type Jid struct {
	LocalPart string
	Domain    string
	Resource  string
}

// The address without the resource.
func (jid Jid) Bare() string {
	return jid.LocalPart + "@" + jid.Domain
}

func (jid Jid) String() string {
	if jid.Resource == "" {
		return jid.Bare()
	}
	return jid.Bare() + "/" + jid.Resource
}

// Reports whether other refers to the same account, ignoring resource and case.
func (jid Jid) SameAccount(other Jid) bool {
	return strings.EqualFold(jid.Bare(), other.Bare())
}

func ParseJid(jid string) (*Jid, error) {
	match := jidRegex.FindStringSubmatch(jid)
	if match == nil {
		return nil, errors.New("Invalid JID " + jid)
	}
	return &Jid{
		LocalPart: match[1],
		Domain:    match[2],
		Resource:  match[3],
	}, nil
}

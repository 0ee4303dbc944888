package domain

import "fmt"

type PartyType string

const (
	PartyTraveler PartyType = "TRAVELER"
	PartyAgency   PartyType = "AGENCY"
)

func (t PartyType) IsValid() bool {
	return t == PartyTraveler || t == PartyAgency
}

func ParsePartyType(s string) (PartyType, error) {
	t := PartyType(s)
	if !t.IsValid() {
		return "", fmt.Errorf("%w: unknown party type %q", ErrInvalidInput, s)
	}
	return t, nil
}

// Party identifies a caller or a notification participant. The identity is
// verified upstream and trusted as-is.
type Party struct {
	Type PartyType `json:"type"`
	ID   string    `json:"id"`
}

func Traveler(id string) Party { return Party{Type: PartyTraveler, ID: id} }

func Agency(id string) Party { return Party{Type: PartyAgency, ID: id} }

func (p Party) IsTraveler() bool { return p.Type == PartyTraveler }

func (p Party) IsAgency() bool { return p.Type == PartyAgency }

func (p Party) String() string {
	return fmt.Sprintf("%s:%s", p.Type, p.ID)
}

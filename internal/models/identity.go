package models

import "fmt"

type IdentityType string

const (
	IdentityCandidate  IdentityType = "candidate"
	IdentityEnterprise IdentityType = "enterprise"
)

// Identity is either a Candidate or an Enterprise. The interface is sealed;
// branch on it with a type switch.
type Identity interface {
	identity()
	Type() IdentityType
	Subject() string
}

type Candidate struct {
	ID string
}

type Enterprise struct {
	ID string
}

func (Candidate) identity()  {}
func (Enterprise) identity() {}

func (Candidate) Type() IdentityType  { return IdentityCandidate }
func (Enterprise) Type() IdentityType { return IdentityEnterprise }

func (c Candidate) Subject() string  { return c.ID }
func (e Enterprise) Subject() string { return e.ID }

func NewIdentity(kind IdentityType, id string) (Identity, error) {
	if id == "" {
		return nil, fmt.Errorf("identity id is empty")
	}
	switch kind {
	case IdentityCandidate:
		return Candidate{ID: id}, nil
	case IdentityEnterprise:
		return Enterprise{ID: id}, nil
	default:
		return nil, fmt.Errorf("unknown identity type %q", kind)
	}
}

package models

// Principal is the authenticated identity making a request.
// It is built per request and never mutated afterwards.
type Principal struct {
	ID              string     `json:"id"`
	Email           string     `json:"email"`
	DisplayName     string     `json:"display_name"`
	GlobalRole      GlobalRole `json:"global_role"`
	IssuerSubjectID string     `json:"issuer_subject_id,omitempty"`
}

// IsAnonymous returns true for the empty principal produced by optional authentication
func (p *Principal) IsAnonymous() bool {
	return p == nil || p.ID == ""
}

// HasAnyRole returns true if the principal's global role is in roles
func (p *Principal) HasAnyRole(roles ...GlobalRole) bool {
	if p.IsAnonymous() {
		return false
	}
	for _, r := range roles {
		if p.GlobalRole == r {
			return true
		}
	}
	return false
}

// PrincipalFromUser builds a principal for a persisted user
func PrincipalFromUser(u *User) Principal {
	return Principal{
		ID:          u.ID.String(),
		Email:       u.Email,
		DisplayName: u.DisplayName,
		GlobalRole:  u.Role,
	}
}

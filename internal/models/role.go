package models

// Role is the privilege a room session holds
type Role string

// Role constants
const (
	RoleObserver Role = "observer"
	RoleBidder   Role = "bidder"
	RoleAdmin    Role = "admin"
)

func (r Role) rank() int {
	switch r {
	case RoleObserver:
		return 1
	case RoleBidder:
		return 2
	case RoleAdmin:
		return 3
	}
	return 0
}

// Valid reports whether r is a known role
func (r Role) Valid() bool {
	return r.rank() > 0
}

// Downgrade returns requested when it is no more privileged than r,
// otherwise r. An empty or unknown request keeps r.
func (r Role) Downgrade(requested Role) Role {
	if requested.Valid() && requested.rank() <= r.rank() {
		return requested
	}
	return r
}

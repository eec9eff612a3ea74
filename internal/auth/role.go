package auth

import (
	"fmt"
	"strings"
)

type Role string

const (
	RoleAdmin       Role = "admin"
	RoleManager     Role = "manager"
	RoleCoordinator Role = "coordinator"
	RoleTechnician  Role = "technician"
	RoleUser        Role = "user"
)

// AllRoles lists the roles from most to least privileged.
var AllRoles = []Role{RoleAdmin, RoleManager, RoleCoordinator, RoleTechnician, RoleUser}

// directIncludes is the static hierarchy:
// admin ⊇ manager ⊇ {coordinator, technician} ⊇ user.
var directIncludes = map[Role][]Role{
	RoleAdmin:       {RoleManager},
	RoleManager:     {RoleCoordinator, RoleTechnician},
	RoleCoordinator: {RoleUser},
	RoleTechnician:  {RoleUser},
	RoleUser:        nil,
}

// RoleSet is an immutable set of roles.
type RoleSet uint8

var (
	roleBits  = map[Role]RoleSet{}
	effective = map[Role]RoleSet{}
)

func init() {
	for i, r := range AllRoles {
		roleBits[r] = 1 << uint(i)
	}
	for _, r := range AllRoles {
		effective[r] = closure(r)
	}
}

func closure(r Role) RoleSet {
	set := roleBits[r]
	for _, child := range directIncludes[r] {
		set |= closure(child)
	}
	return set
}

// EffectiveRoles returns every role r may act as, r included. Unknown roles
// get the empty set.
func EffectiveRoles(r Role) RoleSet {
	return effective[r]
}

func (s RoleSet) Contains(r Role) bool {
	bit, ok := roleBits[r]
	return ok && s&bit != 0
}

func (s RoleSet) Roles() []Role {
	var out []Role
	for _, r := range AllRoles {
		if s.Contains(r) {
			out = append(out, r)
		}
	}
	return out
}

func (s RoleSet) Len() int {
	return len(s.Roles())
}

// Includes reports whether r may act as required. All role checks go
// through here.
func (r Role) Includes(required Role) bool {
	return EffectiveRoles(r).Contains(required)
}

func (r Role) Valid() bool {
	_, ok := roleBits[r]
	return ok
}

func (r Role) String() string {
	return string(r)
}

func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

func (r *Role) UnmarshalText(text []byte) error {
	parsed, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// RoleFromGroups maps directory group memberships to the most privileged
// matching role, defaulting to user.
func RoleFromGroups(groups []string) Role {
	best := RoleUser
	for _, g := range groups {
		r, err := ParseRole(g)
		if err != nil {
			continue
		}
		if EffectiveRoles(r).Len() > EffectiveRoles(best).Len() {
			best = r
		}
	}
	return best
}

package enums

// UserRole is the platform role carried in access tokens. Requester and
// vendor are per-order relationships, not roles.
type UserRole string

const (
	UserRoleUser  UserRole = "user"
	UserRoleAdmin UserRole = "admin"
)

var userRoles = newValueSet("user role", UserRoleUser, UserRoleAdmin)

func ParseUserRole(value string) (UserRole, error) { return userRoles.parse(value) }

func (r UserRole) String() string { return string(r) }

func (r UserRole) IsValid() bool { return userRoles.has(r) }

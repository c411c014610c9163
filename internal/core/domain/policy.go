package domain

// Action names an operation subject to access control.
type Action string

const (
	ActionViewUser   Action = "view_user"
	ActionViewByRole Action = "view_by_role"
	ActionDeleteUser Action = "delete_user"
)

// Decision is the outcome of an access check. Reason is set only on denial.
type Decision struct {
	Allowed bool
	Reason  error
}

func allow() Decision { return Decision{Allowed: true} }

func deny(reason error) Decision { return Decision{Reason: reason} }

// Err returns nil for an allowed decision and the denial reason otherwise.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return d.Reason
}

// AuthorizeRole evaluates the role-class rules for action. It never looks at a
// target, so it can run before the target is resolved.
func AuthorizeRole(role Role, action Action) Decision {
	if !role.Valid() {
		return deny(ErrInsufficientRole)
	}
	switch action {
	case ActionViewUser, ActionViewByRole:
		return allow()
	case ActionDeleteUser:
		if role == RoleAdmin {
			return allow()
		}
		return deny(ErrInsufficientRole)
	default:
		return deny(ErrInsufficientRole)
	}
}

// Authorize evaluates the full decision table for actor performing action on
// target. Rules are checked in order and the first match wins:
//
//  1. viewing a user or a role listing is open to every role
//  2. deleting requires the ADMIN role
//  3. an ADMIN target can never be deleted, including by itself
//  4. otherwise the deletion is allowed
//
// A nil actor is denied as unauthenticated. A nil target on delete is treated
// as not yet resolved and only the role-class rules apply.
func Authorize(actor *User, action Action, target *User) Decision {
	if actor == nil {
		return deny(ErrAuthMissing)
	}
	d := AuthorizeRole(actor.Role, action)
	if !d.Allowed || action != ActionDeleteUser || target == nil {
		return d
	}
	if target.IsAdmin() {
		return deny(ErrProtectedTarget)
	}
	return allow()
}

package consent

import (
	"storyledger/internal/story"
	domainerrors "storyledger/pkg/domain-errors"
)

// operation names one guarded ledger mutation.
type operation string

const (
	opGrant    operation = "grant"
	opWithdraw operation = "withdraw"
	opVerify   operation = "verify"
)

// rule is one row of the authorization table. ownerOnly requires the actor to
// be the story's storyteller or author; roles, when set, is an allow-list.
type rule struct {
	ownerOnly bool
	roles     []Role
}

// policies is the single authorization table for ledger mutations. Grants are
// open to any authenticated actor; withdrawal belongs to the owner alone, not
// even admins; verification is a reviewer decision.
var policies = map[operation]rule{
	opGrant:    {},
	opWithdraw: {ownerOnly: true},
	opVerify:   {roles: []Role{RoleReviewer, RoleAdmin}},
}

func authorize(op operation, actor Actor, st *story.Story) error {
	if actor.ID == "" {
		return domainerrors.New(domainerrors.CodeForbidden, "authentication required")
	}
	r := policies[op]
	if r.ownerOnly && !st.OwnedBy(actor.ID) {
		return domainerrors.New(domainerrors.CodeForbidden, "only the storyteller or author may do this")
	}
	if len(r.roles) > 0 && !roleAllowed(r.roles, actor.Role) {
		return domainerrors.Newf(domainerrors.CodeForbidden, "role %s may not %s consent", actor.Role, op)
	}
	return nil
}

func roleAllowed(allowed []Role, r Role) bool {
	for _, a := range allowed {
		if a == r {
			return true
		}
	}
	return false
}

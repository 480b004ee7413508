package policy

import "inkpress/common"

// DenyReason says why Authorize refused.
type DenyReason int

const (
	// ReasonNone accompanies an allow decision.
	ReasonNone DenyReason = iota

	// ReasonUnauthenticated means the action needs a signed-in principal.
	ReasonUnauthenticated

	// ReasonNotOwner means only the author or an admin may do this.
	ReasonNotOwner

	// ReasonNotAdmin means only staff or admins may do this.
	ReasonNotAdmin

	// ReasonNotPermitted means nobody may do this to the resource.
	ReasonNotPermitted
)

func (r DenyReason) String() string {
	switch r {
	case ReasonNone:
		return "allowed"
	case ReasonUnauthenticated:
		return "Authentication credentials were not provided."
	case ReasonNotOwner:
		return "You do not have permission to modify this resource."
	case ReasonNotAdmin:
		return "You do not have permission to perform this action."
	case ReasonNotPermitted:
		return "This action is not permitted."
	}
	return "unknown"
}

// Decision is the outcome of Authorize.
type Decision struct {
	Allowed bool
	Reason  DenyReason
}

var allow = Decision{Allowed: true}

func deny(r DenyReason) Decision { return Decision{Reason: r} }

// Err converts a denial into the matching classified error, or nil.
func (d Decision) Err() error {
	switch {
	case d.Allowed:
		return nil
	case d.Reason == ReasonUnauthenticated:
		return common.Unauthenticated(d.Reason.String())
	}
	return common.Forbidden(d.Reason.String())
}

// Authorize evaluates the permission table. Row visibility for reads is
// not decided here; see PostScopeFor and CommentScopeFor.
func Authorize(p Principal, a Action, r Resource) Decision {
	switch r.Kind {
	case PostKind:
		switch a {
		case List, Retrieve, View:
			return allow
		case Create, Engage:
			return authenticated(p)
		case Update, Delete:
			return ownerOrAdmin(p, r)
		case Moderate, Administer:
			return admin(p)
		}

	case CommentKind:
		switch a {
		case List, Retrieve:
			return allow
		case Create:
			if r.GuestWritable {
				return allow
			}
			return authenticated(p)
		case Engage:
			return authenticated(p)
		case Update, Delete:
			return ownerOrAdmin(p, r)
		case Moderate, Administer:
			return admin(p)
		}

	case CategoryKind, TagKind:
		switch a {
		case List, Retrieve:
			return allow
		case Create, Update, Delete, Administer:
			return admin(p)
		}

	case UserKind:
		switch a {
		case Retrieve, Update:
			return ownerOrAdmin(p, r)
		case List, Delete, Administer:
			return admin(p)
		}

	case ContactKind:
		switch a {
		case Create:
			return allow
		case List, Retrieve, Delete, Administer:
			return admin(p)
		}

	case NewsletterKind:
		switch a {
		case Create, Update:
			// subscribe and unsubscribe
			return allow
		case List, Retrieve, Delete, Administer:
			return admin(p)
		}

	case SettingsKind:
		switch a {
		case List, Retrieve:
			return allow
		case Create, Update, Administer:
			return admin(p)
		}

	case AnalyticsKind:
		switch a {
		case List, Retrieve, Administer:
			return admin(p)
		}
	}
	return deny(ReasonNotPermitted)
}

func authenticated(p Principal) Decision {
	if !p.Authenticated {
		return deny(ReasonUnauthenticated)
	}
	return allow
}

func admin(p Principal) Decision {
	if !p.Authenticated {
		return deny(ReasonUnauthenticated)
	}
	if !p.IsAdmin() {
		return deny(ReasonNotAdmin)
	}
	return allow
}

func ownerOrAdmin(p Principal, r Resource) Decision {
	if !p.Authenticated {
		return deny(ReasonUnauthenticated)
	}
	if p.IsAdmin() || (r.OwnerID != 0 && r.OwnerID == p.UserID) {
		return allow
	}
	return deny(ReasonNotOwner)
}

// Check is Authorize followed by Err.
func Check(p Principal, a Action, r Resource) error {
	return Authorize(p, a, r).Err()
}

// PostScope is the set of post rows a principal may read.
type PostScope int

const (
	PublishedPosts PostScope = iota
	AllPosts
)

func PostScopeFor(p Principal) PostScope {
	if p.IsAdmin() {
		return AllPosts
	}
	return PublishedPosts
}

// CommentScope is the set of comment rows a principal may read.
type CommentScope int

const (
	VisibleComments CommentScope = iota
	AllComments
)

func CommentScopeFor(p Principal) CommentScope {
	if p.IsAdmin() {
		return AllComments
	}
	return VisibleComments
}

// Package policy decides who may do what to which content.
//
// Authorize is a pure function over (principal, action, resource). It holds
// one ownership relation (the resource's author is the principal) and one
// privilege escalation (staff or the admin role), checked the same way for
// every resource kind. The row filters PostScope and CommentScope tell the
// store which rows a principal may see when listing.
package policy

import "inkpress/models"

// Principal is the actor behind a request. The zero value is anonymous.
type Principal struct {
	UserID        uint
	Role          models.Role
	IsStaff       bool
	Authenticated bool
}

// Anonymous returns the unauthenticated principal.
func Anonymous() Principal { return Principal{} }

// FromUser builds the principal for an authenticated user.
func FromUser(u *models.User) Principal {
	return Principal{
		UserID:        u.ID,
		Role:          u.Role,
		IsStaff:       u.IsStaff,
		Authenticated: true,
	}
}

// IsAdmin reports staff or admin-role principals.
func (p Principal) IsAdmin() bool {
	return p.Authenticated && (p.IsStaff || p.Role == models.RoleAdmin)
}

type Action int

const (
	List Action = iota
	Retrieve
	Create
	Update
	Delete
	// Moderate covers comment approval and spam marking.
	Moderate
	// Administer covers analytics, user administration, settings
	// configuration and the subscriber and contact inboxes.
	Administer
	// Engage covers liking and unliking.
	Engage
	// View covers the anonymous view counter.
	View
)

var actionNames = [...]string{
	List:       "list",
	Retrieve:   "retrieve",
	Create:     "create",
	Update:     "update",
	Delete:     "delete",
	Moderate:   "moderate",
	Administer: "administer",
	Engage:     "engage",
	View:       "view",
}

func (a Action) String() string {
	if int(a) < len(actionNames) {
		return actionNames[a]
	}
	return "unknown"
}

// Read reports list and retrieve.
func (a Action) Read() bool { return a == List || a == Retrieve }

type Kind int

const (
	PostKind Kind = iota
	CommentKind
	CategoryKind
	TagKind
	UserKind
	ContactKind
	NewsletterKind
	SettingsKind
	AnalyticsKind
)

var kindNames = [...]string{
	PostKind:       "post",
	CommentKind:    "comment",
	CategoryKind:   "category",
	TagKind:        "tag",
	UserKind:       "user",
	ContactKind:    "contact",
	NewsletterKind: "newsletter",
	SettingsKind:   "settings",
	AnalyticsKind:  "analytics",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Resource describes the target of an action. OwnerID is zero for
// collection-level checks and for rows without an author.
type Resource struct {
	Kind    Kind
	OwnerID uint
	// GuestWritable marks a comment collection that accepts anonymous
	// submissions (guest comments switched on in site settings).
	GuestWritable bool
}

// On is shorthand for a collection-level resource.
func On(kind Kind) Resource { return Resource{Kind: kind} }

// Owned is shorthand for an object-level resource with an author.
func Owned(kind Kind, ownerID uint) Resource {
	return Resource{Kind: kind, OwnerID: ownerID}
}

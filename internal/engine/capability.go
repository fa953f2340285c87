package engine

import "strings"

const (
	ActionCreate     = "create"
	ActionRead       = "read"
	ActionUpdate     = "update"
	ActionDelete     = "delete"
	ActionSoftDelete = "soft-delete"
)

// Capabilities declares which actions a controller performs. The zero value
// permits nothing.
type Capabilities struct {
	Create     bool
	Read       bool
	Update     bool
	Delete     bool
	SoftDelete bool
}

// AllCapabilities permits create, read, update and hard delete.
func AllCapabilities() Capabilities {
	return Capabilities{Create: true, Read: true, Update: true, Delete: true}
}

// Allows looks an action up by its first letter (c, r, u, d). Soft delete is
// its own flag and is matched by name.
func (c Capabilities) Allows(action string) bool {
	action = strings.ToLower(strings.TrimSpace(action))
	switch action {
	case "soft-delete", "soft_delete", "softdelete":
		return c.SoftDelete
	case "":
		return false
	}
	switch action[0] {
	case 'c':
		return c.Create
	case 'r':
		return c.Read
	case 'u':
		return c.Update
	case 'd':
		return c.Delete
	}
	return false
}

// Verbs lists the HTTP methods the capabilities enable. HEAD and OPTIONS are
// always present; DELETE is present for hard or soft delete.
func (c Capabilities) Verbs() []string {
	verbs := []string{"HEAD", "OPTIONS"}
	if c.Create {
		verbs = append(verbs, "POST")
	}
	if c.Read {
		verbs = append(verbs, "GET")
	}
	if c.Update {
		verbs = append(verbs, "PUT")
	}
	if c.Delete || c.SoftDelete {
		verbs = append(verbs, "DELETE")
	}
	return verbs
}

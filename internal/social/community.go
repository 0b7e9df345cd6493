package social

import "fmt"

// Community is a named broadcast group. Name and owner are immutable once
// created; the owner is a member from the start.
type Community struct {
	name        string
	owner       string
	description string
	members     *orderedSet
}

// NewCommunity creates a community whose owner is its first member.
func NewCommunity(owner, name, description string) *Community {
	c := &Community{
		name:        name,
		owner:       owner,
		description: description,
		members:     newOrderedSet(),
	}
	c.members.add(owner)
	return c
}

func (c *Community) Name() string        { return c.name }
func (c *Community) Owner() string       { return c.owner }
func (c *Community) Description() string { return c.description }

// Members returns member logins in join order.
func (c *Community) Members() []string { return c.members.all() }

// HasMember reports membership.
func (c *Community) HasMember(login string) bool { return c.members.contains(login) }

// AddMember admits a login once.
func (c *Community) AddMember(login string) error {
	if c.members.contains(login) {
		return fmt.Errorf("%w: %s is already in %s", ErrDuplicateMember, login, c.name)
	}
	c.members.add(login)
	return nil
}

// RemoveMember drops a login; absent logins are an error.
func (c *Community) RemoveMember(login string) error {
	if !c.members.contains(login) {
		return fmt.Errorf("%w: %s is not in %s", ErrMemberNotFound, login, c.name)
	}
	c.members.remove(login)
	return nil
}

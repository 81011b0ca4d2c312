package api

import (
	"context"
	"fmt"
)

const opFamilyMembers = "fetch family members"

// FamilyMember is one entry of the family directory.
type FamilyMember struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// FullName joins the member's name parts, tolerating blanks.
func (m FamilyMember) FullName() string {
	return joinNameParts(m.FirstName, m.LastName)
}

// FamilyMembers fetches the member directory for a family.
func (c *Client) FamilyMembers(ctx context.Context, familyID string) ([]FamilyMember, error) {
	var members []FamilyMember
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&members).
		Get("/family/" + familyID + "/members")
	if err != nil {
		return nil, fmt.Errorf("api: %s: %w", opFamilyMembers, err)
	}
	if resp.IsError() {
		return nil, statusError(opFamilyMembers, resp)
	}
	return members, nil
}

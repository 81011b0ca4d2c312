package api

import (
	"context"
	"fmt"
	"strings"
)

const (
	opLogin     = "login"
	opFetchUser = "fetch user"
)

// UserRecord is the backend's user entity as returned by the user endpoints.
type UserRecord struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	FamilyID  string `json:"familyId"`
}

// FullName joins the user's name parts, tolerating blanks.
func (u UserRecord) FullName() string {
	return joinNameParts(u.FirstName, u.LastName)
}

// The user endpoints wrap their payload in a success envelope.
type userEnvelope struct {
	Success bool       `json:"success"`
	Message string     `json:"message"`
	User    UserRecord `json:"user"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login authenticates with email and password and returns the user record,
// including the family identifier the sync scopes to.
func (c *Client) Login(ctx context.Context, email, password string) (UserRecord, error) {
	var envelope userEnvelope
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(loginRequest{Email: email, Password: password}).
		SetResult(&envelope).
		Post("/user/login")
	if err != nil {
		return UserRecord{}, fmt.Errorf("api: %s: %w", opLogin, err)
	}
	if resp.IsError() {
		return UserRecord{}, statusError(opLogin, resp)
	}
	if !envelope.Success || envelope.User.ID == "" {
		return UserRecord{}, fmt.Errorf("api: %s: rejected: %s", opLogin, envelope.Message)
	}
	return envelope.User, nil
}

// User fetches one user by identifier.
func (c *Client) User(ctx context.Context, userID string) (UserRecord, error) {
	var envelope userEnvelope
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&envelope).
		Get("/user/" + userID)
	if err != nil {
		return UserRecord{}, fmt.Errorf("api: %s: %w", opFetchUser, err)
	}
	if resp.IsError() {
		return UserRecord{}, statusError(opFetchUser, resp)
	}
	if envelope.User.ID == "" {
		return UserRecord{}, fmt.Errorf("api: %s: user %s not found", opFetchUser, userID)
	}
	return envelope.User, nil
}

func joinNameParts(first, last string) string {
	first = strings.TrimSpace(first)
	last = strings.TrimSpace(last)
	switch {
	case first == "":
		return last
	case last == "":
		return first
	}
	return first + " " + last
}

package api

import "context"

// AuthAPI wraps the /api/auth endpoints.
type AuthAPI struct {
	c *Client
}

// LoginResult carries the issued token and the authenticated user.
type LoginResult struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// Login exchanges credentials for a session token. The token is installed on
// the client so subsequent requests are authenticated.
func (a *AuthAPI) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	var res LoginResult
	err := a.c.postJSON(ctx, "/api/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, &res)
	if err != nil {
		return nil, err
	}
	a.c.SetToken(res.Token)
	return &res, nil
}

// Register creates a new account. The backend logs the user in on success.
func (a *AuthAPI) Register(ctx context.Context, firstName, lastName, email, password string) (*LoginResult, error) {
	var res LoginResult
	err := a.c.postJSON(ctx, "/api/auth/register", map[string]string{
		"firstName": firstName,
		"lastName":  lastName,
		"email":     email,
		"password":  password,
	}, &res)
	if err != nil {
		return nil, err
	}
	a.c.SetToken(res.Token)
	return &res, nil
}

// Me returns the user the current token belongs to.
func (a *AuthAPI) Me(ctx context.Context) (*User, error) {
	var u User
	if err := a.c.getJSON(ctx, "/api/auth/me", &u); err != nil {
		return nil, err
	}
	return &u, nil
}

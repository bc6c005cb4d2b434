package api

import "context"

// TeamAPI wraps the /api/teams endpoints.
type TeamAPI struct {
	c *Client
}

// Mine returns the signed-in user's team with its member roster, or nil
// when the user is not in a team yet.
func (a *TeamAPI) Mine(ctx context.Context) (*Team, error) {
	var res struct {
		Team *Team `json:"team"`
	}
	if err := a.c.getJSON(ctx, "/api/teams/user", &res); err != nil {
		return nil, err
	}
	return res.Team, nil
}

package api

import (
	"context"
	"fmt"
)

// WikiAPI wraps the /api/wiki endpoints.
type WikiAPI struct {
	c *Client
}

// Categories lists wiki categories.
func (a *WikiAPI) Categories(ctx context.Context) ([]WikiCategory, error) {
	var res struct {
		Categories []WikiCategory `json:"categories"`
	}
	if err := a.c.getJSON(ctx, "/api/wiki/categories", &res); err != nil {
		return nil, err
	}
	return res.Categories, nil
}

// Articles lists the articles of one category (bodies omitted).
func (a *WikiAPI) Articles(ctx context.Context, categoryID ID) ([]WikiArticle, error) {
	var res struct {
		Articles []WikiArticle `json:"articles"`
	}
	path := fmt.Sprintf("/api/wiki/categories/%s/articles", categoryID)
	if err := a.c.getJSON(ctx, path, &res); err != nil {
		return nil, err
	}
	return res.Articles, nil
}

// Article returns one article with its markdown body.
func (a *WikiAPI) Article(ctx context.Context, articleID ID) (*WikiArticle, error) {
	var art WikiArticle
	if err := a.c.getJSON(ctx, fmt.Sprintf("/api/wiki/articles/%s", articleID), &art); err != nil {
		return nil, err
	}
	return &art, nil
}

// SaveArticle creates (empty id) or updates an article.
func (a *WikiAPI) SaveArticle(ctx context.Context, art WikiArticle) (*WikiArticle, error) {
	var res struct {
		Article WikiArticle `json:"article"`
	}
	if art.ID == "" {
		if err := a.c.postJSON(ctx, "/api/wiki/articles", art, &res); err != nil {
			return nil, err
		}
	} else {
		path := fmt.Sprintf("/api/wiki/articles/%s", art.ID)
		if err := a.c.putJSON(ctx, path, art, &res); err != nil {
			return nil, err
		}
	}
	return &res.Article, nil
}

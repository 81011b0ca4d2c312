package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/harmonichat/hcsync/internal/wall"
)

const (
	opUserPublications   = "fetch user publications"
	opFamilyPublications = "fetch family publications"
	opCreatePublication  = "create publication"
	opDeletePublication  = "delete publication"
)

type publicationRequest struct {
	Description   string   `json:"description"`
	Location      string   `json:"location"`
	UserID        string   `json:"userId"`
	FamilyID      string   `json:"familyId"`
	TaggedUserIDs []string `json:"taggedUserIds"`
}

// NewPublication carries the fields of a post about to be created.
type NewPublication struct {
	Description   string
	Location      string
	UserID        string
	FamilyID      string
	TaggedUserIDs []string
	File          []byte
	FileName      string
}

// UserPublications fetches the posts authored by one user.
func (c *Client) UserPublications(ctx context.Context, userID string) ([]wall.Post, error) {
	return c.fetchPublications(ctx, opUserPublications, "/publications/user/"+userID)
}

// FamilyPublications fetches the posts visible to one family.
func (c *Client) FamilyPublications(ctx context.Context, familyID string) ([]wall.Post, error) {
	return c.fetchPublications(ctx, opFamilyPublications, "/publications/family/"+familyID)
}

func (c *Client) fetchPublications(ctx context.Context, operation, path string) ([]wall.Post, error) {
	var raw []wall.BackendPost
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&raw).
		Get(path)
	if err != nil {
		return nil, fmt.Errorf("api: %s: %w", operation, err)
	}
	if resp.IsError() {
		return nil, statusError(operation, resp)
	}

	posts := make([]wall.Post, 0, len(raw))
	for _, entry := range raw {
		posts = append(posts, wall.NormalizePost(entry, c.loc))
	}
	return posts, nil
}

// CreatePublication posts a new publication. The endpoint takes a multipart
// form: the post as a JSON part named "post", plus an optional attachment.
func (c *Client) CreatePublication(ctx context.Context, publication NewPublication) (wall.Post, error) {
	payload, err := json.Marshal(publicationRequest{
		Description:   publication.Description,
		Location:      publication.Location,
		UserID:        publication.UserID,
		FamilyID:      publication.FamilyID,
		TaggedUserIDs: publication.TaggedUserIDs,
	})
	if err != nil {
		return wall.Post{}, fmt.Errorf("api: %s: %w", opCreatePublication, err)
	}

	request := c.http.R().
		SetContext(ctx).
		SetMultipartField("post", "", "application/json", bytes.NewReader(payload))
	if len(publication.File) > 0 {
		request.SetFileReader("file", publication.FileName, bytes.NewReader(publication.File))
	}

	var created wall.BackendPost
	resp, err := request.SetResult(&created).Post("/publications/new")
	if err != nil {
		return wall.Post{}, fmt.Errorf("api: %s: %w", opCreatePublication, err)
	}
	if resp.IsError() {
		return wall.Post{}, statusError(opCreatePublication, resp)
	}

	post := wall.NormalizePost(created, c.loc)
	if post.ID == "" {
		return wall.Post{}, fmt.Errorf("api: %s: response carried no post id", opCreatePublication)
	}
	return post, nil
}

// DeletePublication removes a post by identifier.
func (c *Client) DeletePublication(ctx context.Context, postID string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		Delete("/publications/delete/" + postID)
	if err != nil {
		return fmt.Errorf("api: %s: %w", opDeletePublication, err)
	}
	if resp.IsError() {
		return statusError(opDeletePublication, resp)
	}
	return nil
}

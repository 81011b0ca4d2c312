package api

import (
	"context"
	"fmt"
)

const (
	opFamilyAlbums    = "fetch family albums"
	opCreateAlbum     = "create album"
	opDeleteAlbum     = "delete album"
	opAlbumPhotos     = "fetch album photos"
	opAddAlbumPosts   = "add posts to album"
	opSetAlbumCover   = "set album cover"
	opAvailablePhotos = "fetch available posts"
)

// Album is one family photo album.
type Album struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	Description   string `json:"description"`
	CoverImageURL string `json:"coverImageUrl"`
	PhotoCount    int    `json:"photoCount"`
}

// AlbumPhoto is one photo inside an album, backed by a wall post.
type AlbumPhoto struct {
	ID       string `json:"id"`
	PostID   string `json:"postId"`
	FileURL  string `json:"fileUrl"`
	Location string `json:"location"`
}

// FamilyAlbums fetches the albums belonging to a family.
func (c *Client) FamilyAlbums(ctx context.Context, familyID string) ([]Album, error) {
	var albums []Album
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&albums).
		Get("/albums/family/" + familyID)
	if err != nil {
		return nil, fmt.Errorf("api: %s: %w", opFamilyAlbums, err)
	}
	if resp.IsError() {
		return nil, statusError(opFamilyAlbums, resp)
	}
	return albums, nil
}

// CreateAlbum creates a manual album seeded with the given post identifiers.
// Title, description and family travel as query parameters, the post set as
// the JSON body.
func (c *Client) CreateAlbum(ctx context.Context, familyID, title, description string, postIDs []string) (Album, error) {
	if postIDs == nil {
		postIDs = []string{}
	}
	var created Album
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"title":       title,
			"description": description,
			"familyId":    familyID,
		}).
		SetBody(postIDs).
		SetResult(&created).
		Post("/albums/create")
	if err != nil {
		return Album{}, fmt.Errorf("api: %s: %w", opCreateAlbum, err)
	}
	if resp.IsError() {
		return Album{}, statusError(opCreateAlbum, resp)
	}
	return created, nil
}

// DeleteAlbum removes an album by identifier.
func (c *Client) DeleteAlbum(ctx context.Context, albumID string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		Delete("/albums/delete/" + albumID)
	if err != nil {
		return fmt.Errorf("api: %s: %w", opDeleteAlbum, err)
	}
	if resp.IsError() {
		return statusError(opDeleteAlbum, resp)
	}
	return nil
}

// AlbumPhotos fetches the photos inside an album.
func (c *Client) AlbumPhotos(ctx context.Context, albumID string) ([]AlbumPhoto, error) {
	return c.fetchAlbumPhotos(ctx, opAlbumPhotos, "/albums/"+albumID+"/photos")
}

// AvailablePosts fetches the family posts not yet part of the album.
func (c *Client) AvailablePosts(ctx context.Context, albumID string) ([]AlbumPhoto, error) {
	return c.fetchAlbumPhotos(ctx, opAvailablePhotos, "/albums/"+albumID+"/available-posts")
}

func (c *Client) fetchAlbumPhotos(ctx context.Context, operation, path string) ([]AlbumPhoto, error) {
	var photos []AlbumPhoto
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&photos).
		Get(path)
	if err != nil {
		return nil, fmt.Errorf("api: %s: %w", operation, err)
	}
	if resp.IsError() {
		return nil, statusError(operation, resp)
	}
	return photos, nil
}

// AddPostsToAlbum attaches existing posts to an album.
func (c *Client) AddPostsToAlbum(ctx context.Context, albumID string, postIDs []string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string][]string{"postIds": postIDs}).
		Post("/albums/" + albumID + "/add-posts")
	if err != nil {
		return fmt.Errorf("api: %s: %w", opAddAlbumPosts, err)
	}
	if resp.IsError() {
		return statusError(opAddAlbumPosts, resp)
	}
	return nil
}

// SetAlbumCover sets the album's cover image.
func (c *Client) SetAlbumCover(ctx context.Context, albumID, coverImageURL string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"coverImageUrl": coverImageURL}).
		Put("/albums/" + albumID + "/cover")
	if err != nil {
		return fmt.Errorf("api: %s: %w", opSetAlbumCover, err)
	}
	if resp.IsError() {
		return statusError(opSetAlbumCover, resp)
	}
	return nil
}

package meural

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
)

// Item is a single photo as known to the vendor.
type Item struct {
	ID            int    `json:"id"`
	Name          string `json:"name"`
	Description   string `json:"description"`
	Image         string `json:"image"`
	OriginalImage string `json:"originalImage"`
}

func (c *Client) GetUser(ctx context.Context) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/user", nil, nil, "", &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// ListItems returns the vendor's paginated item listing untouched, for
// passthrough to the dashboard.
func (c *Client) ListItems(ctx context.Context, page, count int) (json.RawMessage, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("count", strconv.Itoa(count))

	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/user/items", q, nil, "", &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func (c *Client) GetItem(ctx context.Context, id int) (*Item, error) {
	var item Item
	if err := c.do(ctx, http.MethodGet, "/items/"+strconv.Itoa(id), nil, nil, "", &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// UploadItem posts image bytes as a multipart form (field "image") and
// returns the created item with its vendor-assigned id.
func (c *Client) UploadItem(ctx context.Context, filename string, data []byte) (*Item, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("image", filename)
	if err != nil {
		return nil, err
	}
	if _, err := fw.Write(data); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	var item Item
	if err := c.do(ctx, http.MethodPost, "/items", nil, buf.Bytes(), mw.FormDataContentType(), &item); err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, fmt.Errorf("upload %s: vendor returned no item id", filename)
	}
	return &item, nil
}

func (c *Client) DeleteItem(ctx context.Context, id int) error {
	return c.do(ctx, http.MethodDelete, "/items/"+strconv.Itoa(id), nil, nil, "", nil)
}

// UpdateItem sets the item's name and description.
func (c *Client) UpdateItem(ctx context.Context, id int, name, description string) (*Item, error) {
	body, err := json.Marshal(map[string]string{"name": name, "description": description})
	if err != nil {
		return nil, err
	}
	var item Item
	if err := c.do(ctx, http.MethodPut, "/items/"+strconv.Itoa(id), nil, body, "application/json", &item); err != nil {
		return nil, err
	}
	return &item, nil
}

func (c *Client) ListGalleries(ctx context.Context) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/user/galleries", nil, nil, "", &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func (c *Client) CreateGallery(ctx context.Context, name, description string) (json.RawMessage, error) {
	body, err := json.Marshal(map[string]string{"name": name, "description": description})
	if err != nil {
		return nil, err
	}
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodPost, "/galleries", nil, body, "application/json", &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func (c *Client) UpdateGallery(ctx context.Context, id int, name, description string) (json.RawMessage, error) {
	body, err := json.Marshal(map[string]string{"name": name, "description": description})
	if err != nil {
		return nil, err
	}
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodPut, "/galleries/"+strconv.Itoa(id), nil, body, "application/json", &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func (c *Client) DeleteGallery(ctx context.Context, id int) error {
	return c.do(ctx, http.MethodDelete, "/galleries/"+strconv.Itoa(id), nil, nil, "", nil)
}

func (c *Client) AddItemToGallery(ctx context.Context, galleryID, itemID int) error {
	path := fmt.Sprintf("/galleries/%d/items/%d", galleryID, itemID)
	return c.do(ctx, http.MethodPost, path, nil, nil, "", nil)
}

func (c *Client) RemoveItemFromGallery(ctx context.Context, galleryID, itemID int) error {
	path := fmt.Sprintf("/galleries/%d/items/%d", galleryID, itemID)
	return c.do(ctx, http.MethodDelete, path, nil, nil, "", nil)
}

func (c *Client) ListDevices(ctx context.Context) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/user/devices", nil, nil, "", &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func (c *Client) AssignGalleryToDevice(ctx context.Context, deviceID, galleryID int) error {
	path := fmt.Sprintf("/devices/%d/galleries/%d", deviceID, galleryID)
	return c.do(ctx, http.MethodPost, path, nil, nil, "", nil)
}

// FetchImage downloads an item's image from its (unauthenticated) CDN URL.
// Returns the bytes and the reported content type.
func (c *Client) FetchImage(ctx context.Context, imageURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", &APIError{Status: resp.StatusCode, Body: "image fetch failed"}
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("fetch image: %w", err)
	}
	return data, resp.Header.Get("Content-Type"), nil
}

package supabase

import (
	"bytes"
	"context"
	"net/http"
	"net/url"
	"strings"
)

// Upload stores data at path inside bucket. Existing objects are not
// overwritten.
func (c *Client) Upload(ctx context.Context, bucket, objectPath, contentType string, data []byte) error {
	return c.do(ctx, request{
		method:      http.MethodPost,
		path:        "/storage/v1/object/" + escapePath(bucket) + "/" + escapePath(objectPath),
		bearer:      c.storageKey(),
		contentType: contentType,
		body:        bytes.NewReader(data),
		headers:     map[string]string{"x-upsert": "false", "Cache-Control": "max-age=3600"},
	}, nil)
}

// Remove deletes the objects at paths from bucket in one call.
func (c *Client) Remove(ctx context.Context, bucket string, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	body, err := jsonBody(map[string][]string{"prefixes": paths})
	if err != nil {
		return err
	}
	return c.do(ctx, request{
		method:      http.MethodDelete,
		path:        "/storage/v1/object/" + escapePath(bucket),
		bearer:      c.storageKey(),
		contentType: "application/json",
		body:        body,
	}, nil)
}

// PublicURL returns the public address of an object in a public bucket.
func (c *Client) PublicURL(bucket, objectPath string) string {
	return c.baseURL + "/storage/v1/object/public/" + escapePath(bucket) + "/" + escapePath(objectPath)
}

func (c *Client) storageKey() string {
	if c.serviceKey != "" {
		return c.serviceKey
	}
	return c.anonKey
}

func escapePath(value string) string {
	segments := strings.Split(strings.Trim(value, "/"), "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return strings.Join(segments, "/")
}

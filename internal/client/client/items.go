package client

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/praylist/internal/common"
	"github.com/dmitrijs2005/praylist/internal/wire"
)

// Chunk splits items into consecutive slices of at most size elements.
func Chunk[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = common.BatchChunkSize
	}
	var out [][]T
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		out = append(out, items[start:end])
	}
	return out
}

// FetchSince returns every record of the account. Records unchanged since
// *since come back partial (id only). The returned timestamp is what to
// pass as since next time. A nil since fetches everything in full.
func (c *HTTPClient) FetchSince(ctx context.Context, since *int64) ([]wire.Item, int64, error) {
	q := url.Values{}
	if since != nil {
		q.Set("since", strconv.FormatInt(*since, 10))
	}

	var resp wire.ItemsResponse
	_, err := c.do(ctx, request{op: "fetch items", method: http.MethodGet, path: c.accountPath("/items"), query: q, authed: true}, &resp)
	if err != nil {
		return nil, 0, err
	}
	return resp.Items, resp.Timestamp, nil
}

// FetchByIDs returns the full records for ids, fetched chunk by chunk.
// Unknown ids are simply absent from the result.
func (c *HTTPClient) FetchByIDs(ctx context.Context, ids []string) ([]wire.Item, error) {
	var out []wire.Item
	for _, part := range Chunk(ids, common.BatchChunkSize) {
		q := url.Values{}
		q.Set("ids", strings.Join(part, ","))

		var resp wire.ItemsResponse
		_, err := c.do(ctx, request{op: "fetch items by id", method: http.MethodGet, path: c.accountPath("/items"), query: q, authed: true}, &resp)
		if err != nil {
			return nil, err
		}
		out = append(out, resp.Items...)
	}
	return out, nil
}

// Put writes a single record. A rejected write is reported as a
// *common.BatchError with one failure so callers handle both paths alike.
func (c *HTTPClient) Put(ctx context.Context, item wire.Item) error {
	var resp wire.StatusResponse
	status, err := c.do(ctx, request{
		op:     "put item",
		method: http.MethodPut,
		path:   c.accountPath("/items/" + url.PathEscape(item.ID)),
		body:   item,
		authed: true,
	}, &resp)
	if err != nil {
		return err
	}
	if status == http.StatusConflict || !resp.Success {
		return &common.BatchError{
			Op:       "put",
			Total:    1,
			Failures: []common.ItemFailure{{ID: item.ID, Detail: resp.Error}},
		}
	}
	return nil
}

// PutMany writes items in sequential chunks and reports every failed item
// of every chunk in one *common.BatchError.
func (c *HTTPClient) PutMany(ctx context.Context, items []wire.Item) error {
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	return c.batch(ctx, "put", ids, func(lo, hi int) request {
		return request{op: "put items", method: http.MethodPut, path: c.accountPath("/items"), body: items[lo:hi], authed: true}
	})
}

// Delete removes one record.
func (c *HTTPClient) Delete(ctx context.Context, id string) error {
	var resp wire.StatusResponse
	status, err := c.do(ctx, request{
		op:     "delete item",
		method: http.MethodDelete,
		path:   c.accountPath("/items/" + url.PathEscape(id)),
		authed: true,
	}, &resp)
	if err != nil {
		return err
	}
	if status == http.StatusConflict || !resp.Success {
		return &common.BatchError{Op: "delete", Total: 1, Failures: []common.ItemFailure{{ID: id, Detail: resp.Error}}}
	}
	return nil
}

// DeleteMany removes ids in sequential chunks; same error contract as PutMany.
func (c *HTTPClient) DeleteMany(ctx context.Context, ids []string) error {
	return c.batch(ctx, "delete", ids, func(lo, hi int) request {
		return request{op: "delete items", method: http.MethodDelete, path: c.accountPath("/items"), body: ids[lo:hi], authed: true}
	})
}

func (c *HTTPClient) batch(ctx context.Context, op string, ids []string, build func(lo, hi int) request) error {
	berr := &common.BatchError{Op: op, Total: len(ids)}

	for lo := 0; lo < len(ids); lo += common.BatchChunkSize {
		hi := min(lo+common.BatchChunkSize, len(ids))
		chunkIDs := ids[lo:hi]

		var resp wire.BatchResponse
		if _, err := c.do(ctx, build(lo, hi), &resp); err != nil {
			if ctx.Err() != nil || isSessionExpired(err) || errors.Is(err, common.ErrNotInitialised) {
				return err
			}
			for _, id := range chunkIDs {
				berr.Failures = append(berr.Failures, common.ItemFailure{ID: id, Detail: err.Error()})
			}
			continue
		}

		seen := make(map[string]struct{}, len(resp.Details))
		for _, d := range resp.Details {
			seen[d.Item] = struct{}{}
			if d.Success {
				berr.Succeeded = append(berr.Succeeded, d.Item)
				continue
			}
			berr.Failures = append(berr.Failures, common.ItemFailure{ID: d.Item, Detail: d.Error})
		}
		for _, id := range chunkIDs {
			if _, ok := seen[id]; !ok {
				berr.Failures = append(berr.Failures, common.ItemFailure{ID: id, Detail: "missing from server response"})
			}
		}
	}

	if len(berr.Failures) > 0 {
		c.log.Warn(ctx, "batch partially failed", "op", op, "failed", len(berr.Failures), "total", berr.Total)
		return berr
	}
	return nil
}

func isSessionExpired(err error) bool {
	var se *common.SessionExpiredError
	return errors.As(err, &se)
}

// SetMetadata stores the account metadata blob with a proposed version.
// A version conflict comes back as a one-item *common.BatchError.
func (c *HTTPClient) SetMetadata(ctx context.Context, metadata []byte, version int64) error {
	var resp wire.StatusResponse
	status, err := c.do(ctx, request{
		op:     "set metadata",
		method: http.MethodPatch,
		path:   c.accountPath(""),
		body:   wire.MetadataRequest{Metadata: metadata, Version: version},
		authed: true,
	}, &resp)
	if err != nil {
		return err
	}
	if status == http.StatusConflict || !resp.Success {
		return &common.BatchError{Op: "set metadata", Total: 1, Failures: []common.ItemFailure{{ID: "metadata", Detail: resp.Error}}}
	}
	return nil
}

// GetMetadata returns the raw metadata blob and its version. An account
// that never stored metadata yields (nil, 0, nil).
func (c *HTTPClient) GetMetadata(ctx context.Context) ([]byte, int64, error) {
	var resp wire.MetadataResponse
	if _, err := c.do(ctx, request{op: "get metadata", method: http.MethodGet, path: c.accountPath(""), authed: true}, &resp); err != nil {
		return nil, 0, err
	}
	if len(resp.Metadata) == 0 || string(resp.Metadata) == "null" {
		return nil, resp.Version, nil
	}
	return resp.Metadata, resp.Version, nil
}

// Backup asks the server to export the account's ciphertext and returns
// the object key of the export.
func (c *HTTPClient) Backup(ctx context.Context) (string, error) {
	var resp wire.BackupResponse
	if _, err := c.do(ctx, request{op: "backup", method: http.MethodPost, path: c.accountPath("/backup"), authed: true}, &resp); err != nil {
		return "", err
	}
	if !resp.Success {
		return "", badResponse("backup")
	}
	return resp.Key, nil
}

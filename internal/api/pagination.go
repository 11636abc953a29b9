package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	nethttp "net/http"
	"net/url"
	"strconv"

	"github.com/jmorrison-juniper/misthelper/internal/constants"
	"github.com/jmorrison-juniper/misthelper/internal/models"
)

// searchPage is the body of Mist search and stats endpoints.
type searchPage struct {
	Results []models.Record `json:"results"`
	Next    *string         `json:"next"`
	Total   int             `json:"total"`
	Limit   int             `json:"limit"`
}

// GetAll fetches every page of a list or search endpoint.
//
// Two pagination styles are handled:
//   - search endpoints return {"results": [...], "next": "/api/v1/..."} and are
//     followed link by link
//   - list endpoints return a bare array with X-Page-Total, X-Page-Limit and
//     X-Page-Page headers and are walked with the page parameter
//
// An object body without "results" is returned as a single record.
func (c *Client) GetAll(ctx context.Context, path string, query url.Values) ([]models.Record, error) {
	q := url.Values{}
	for k, v := range query {
		q[k] = append([]string(nil), v...)
	}
	if q.Get("limit") == "" {
		q.Set("limit", strconv.Itoa(constants.DefaultPageLimit))
	}

	var all []models.Record
	nextPath := path
	page := 1

	for pageCount := 0; nextPath != ""; pageCount++ {
		if pageCount >= constants.MaxPaginationPages {
			c.logger.Warn().Str("path", path).Int("pages", pageCount).Msg("pagination limit reached, results truncated")
			break
		}

		resp, err := c.doRequest(ctx, "GET", nextPath, q, nil)
		if err != nil {
			return nil, err
		}
		data, err := readPage(resp, path)
		if err != nil {
			return nil, err
		}

		trimmed := bytes.TrimSpace(data)
		if len(trimmed) == 0 {
			break
		}

		if trimmed[0] == '[' {
			var batch []models.Record
			if err := json.Unmarshal(trimmed, &batch); err != nil {
				return nil, fmt.Errorf("failed to decode %s response: %w", path, err)
			}
			all = append(all, batch...)

			if len(batch) == 0 || !hasMorePages(resp.Header, page) {
				nextPath = ""
				continue
			}
			page++
			q.Set("page", strconv.Itoa(page))
			continue
		}

		var result searchPage
		if err := json.Unmarshal(trimmed, &result); err != nil {
			return nil, fmt.Errorf("failed to decode %s response: %w", path, err)
		}
		if result.Results == nil {
			var single models.Record
			if err := json.Unmarshal(trimmed, &single); err != nil {
				return nil, fmt.Errorf("failed to decode %s response: %w", path, err)
			}
			return append(all, single), nil
		}
		all = append(all, result.Results...)

		if result.Next == nil || *result.Next == "" || len(result.Results) == 0 {
			nextPath = ""
			continue
		}
		next, err := url.Parse(*result.Next)
		if err != nil {
			return nil, fmt.Errorf("invalid next link %q: %w", *result.Next, err)
		}
		// The next link carries its own query (limit, start, end, search_after)
		nextPath = next.Path
		q = next.Query()
	}

	return all, nil
}

func readPage(resp *nethttp.Response, path string) ([]byte, error) {
	defer resp.Body.Close()
	if resp.StatusCode != nethttp.StatusOK {
		return nil, newAPIError("list "+path, resp)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s response: %w", path, err)
	}
	return data, nil
}

// hasMorePages inspects the X-Page-* headers of a list response.
func hasMorePages(h nethttp.Header, page int) bool {
	total, err1 := strconv.Atoi(h.Get("X-Page-Total"))
	limit, err2 := strconv.Atoi(h.Get("X-Page-Limit"))
	if err1 != nil || err2 != nil || limit <= 0 {
		return false
	}
	if p, err := strconv.Atoi(h.Get("X-Page-Page")); err == nil && p > 0 {
		page = p
	}
	return page*limit < total
}

package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/praylist/internal/common"
	"github.com/dmitrijs2005/praylist/internal/wire"
	"github.com/go-chi/chi/v5"
)

func (s *HTTPServer) handleGetItems(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	account := accountFromContext(ctx)
	q := r.URL.Query()

	var (
		items     []wire.Item
		timestamp int64
		err       error
	)
	switch {
	case q.Has("ids"):
		items, timestamp, err = s.records.FetchByIDs(ctx, account, splitIDs(q.Get("ids")))
	case q.Get("since") != "":
		since, perr := strconv.ParseInt(q.Get("since"), 10, 64)
		if perr != nil {
			failErr(w, &common.ValidationError{Field: "since", Reason: "must be a millisecond timestamp"})
			return
		}
		items, timestamp, err = s.records.Fetch(ctx, account, &since)
	default:
		items, timestamp, err = s.records.Fetch(ctx, account, nil)
	}
	if err != nil {
		failErr(w, err)
		return
	}

	if items == nil {
		items = []wire.Item{}
	}
	writeJSON(w, http.StatusOK, wire.ItemsResponse{Items: items, Timestamp: timestamp})
}

func splitIDs(csv string) []string {
	var ids []string
	for _, id := range strings.Split(csv, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

func (s *HTTPServer) handlePutItem(w http.ResponseWriter, r *http.Request) {
	var item wire.Item
	if err := decodeBody(w, r, s.maxBody, &item); err != nil {
		failErr(w, err)
		return
	}

	id := chi.URLParam(r, "id")
	if item.ID == "" {
		item.ID = id
	}
	if item.ID != id {
		failErr(w, &common.ValidationError{Field: "id", Reason: "does not match the path"})
		return
	}

	if err := s.records.Put(r.Context(), accountFromContext(r.Context()), item); err != nil {
		failErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusOK())
}

func (s *HTTPServer) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	if err := s.records.Delete(r.Context(), accountFromContext(r.Context()), chi.URLParam(r, "id")); err != nil {
		failErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusOK())
}

func (s *HTTPServer) handlePutItems(w http.ResponseWriter, r *http.Request) {
	var items []wire.Item
	if err := decodeBody(w, r, s.maxBody, &items); err != nil {
		failErr(w, err)
		return
	}

	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	errs := s.records.PutMany(r.Context(), accountFromContext(r.Context()), items)
	writeBatch(w, ids, errs)
}

func (s *HTTPServer) handleDeleteItems(w http.ResponseWriter, r *http.Request) {
	var ids []string
	if err := decodeBody(w, r, s.maxBody, &ids); err != nil {
		failErr(w, err)
		return
	}

	errs := s.records.DeleteMany(r.Context(), accountFromContext(r.Context()), ids)
	writeBatch(w, ids, errs)
}

// writeBatch answers 409 when any item hit a version conflict and 200
// otherwise. Per-item outcomes are always in the details.
func writeBatch(w http.ResponseWriter, ids []string, errs []error) {
	resp := wire.BatchResponse{Success: true, Details: make([]wire.ItemDetail, len(ids))}
	code := http.StatusOK

	for i, id := range ids {
		d := wire.ItemDetail{Item: id, Success: errs[i] == nil}
		if errs[i] != nil {
			resp.Success = false
			d.Error = itemError(errs[i])
			if errors.Is(errs[i], common.ErrVersionConflict) {
				code = http.StatusConflict
			}
		}
		resp.Details[i] = d
	}

	writeJSON(w, code, resp)
}

func (s *HTTPServer) handleGetSubscription(w http.ResponseWriter, r *http.Request) {
	data, err := s.records.GetSubscription(r.Context(), accountFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		failErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wire.SubscriptionResponse{Success: true, Subscription: data})
}

func (s *HTTPServer) handlePutSubscription(w http.ResponseWriter, r *http.Request) {
	var req wire.SubscriptionRequest
	if err := decodeBody(w, r, s.maxBody, &req); err != nil {
		failErr(w, err)
		return
	}

	err := s.records.PutSubscription(r.Context(), accountFromContext(r.Context()), chi.URLParam(r, "id"), req.Subscription)
	if err != nil {
		failErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusOK())
}

func (s *HTTPServer) handleDeleteSubscription(w http.ResponseWriter, r *http.Request) {
	if err := s.records.DeleteSubscription(r.Context(), accountFromContext(r.Context()), chi.URLParam(r, "id")); err != nil {
		failErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusOK())
}

package internal

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewServer builds the CRUD API. Route names are verbs rather than REST
// resources; IDs travel as query parameters on reads and deletes and in
// the JSON body on writes.
func NewServer(store *Store, reg *prometheus.Registry) http.Handler {
	h := &handler{store: store}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	r.Post("/createBook", h.createBook)
	r.Post("/updateBook", h.updateBook)
	r.Get("/getBook", h.getBook)
	r.Get("/listBooks", h.listBooks)
	r.Delete("/deleteBook", h.deleteBook)

	r.Post("/createChapter", h.createChapter)
	r.Post("/updateChapter", h.updateChapter)
	r.Get("/getChapter", h.getChapter)
	r.Get("/listChapters", h.listChapters)
	r.Delete("/deleteChapter", h.deleteChapter)

	r.Post("/createSubscriber", h.createSubscriber)
	r.Post("/updateSubscriber", h.updateSubscriber)
	r.Get("/getSubscriber", h.getSubscriber)
	r.Get("/listSubscribers", h.listSubscribers)
	r.Delete("/deleteSubscriber", h.deleteSubscriber)

	r.Post("/createSubscription", h.createSubscription)
	r.Post("/updateSubscription", h.updateSubscription)
	r.Get("/getSubscription", h.getSubscription)
	r.Get("/listSubscriptions", h.listSubscriptions)
	r.Delete("/deleteSubscription", h.deleteSubscription)

	return instrument(reg, r)
}

// requestLogger scopes the context logger to the request ID.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		ctx = CtxWithLog(ctx, Log(ctx).With("request", middleware.GetReqID(ctx)))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type handler struct {
	store *Store
}

// writeErr maps not-found to a 404 and invalid input to a 400, both with a
// useful message. Everything else is logged and surfaces as a generic 500.
func writeErr(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, errNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if errors.Is(err, errBadRequest) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	Log(r.Context()).Warn("problem handling request", "path", r.URL.Path, "err", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, r *http.Request, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		Log(r.Context()).Warn("problem encoding response", "err", err)
	}
}

func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.Join(errBadRequest, err)
	}
	return nil
}

func queryID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(r.URL.Query().Get("id"))
	if err != nil {
		return uuid.Nil, errors.Join(errBadRequest, err)
	}
	return id, nil
}

// Wire representations. Field names are camelCase; metadata travels as the
// same tagged-union JSON the store persists.

type bookJSON struct {
	ID        uuid.UUID       `json:"id"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
	Title     string          `json:"title"`
	Author    string          `json:"author"`
	Metadata  json.RawMessage `json:"metadata"`
}

func toBookJSON(book *Book) (bookJSON, error) {
	md, err := marshalBookMetadata(book.Metadata)
	if err != nil {
		return bookJSON{}, err
	}
	return bookJSON{
		ID:        book.ID,
		CreatedAt: book.CreatedAt,
		UpdatedAt: book.UpdatedAt,
		Title:     book.Title,
		Author:    book.Author,
		Metadata:  md,
	}, nil
}

type chapterJSON struct {
	ID          uuid.UUID       `json:"id"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
	BookID      uuid.UUID       `json:"bookId"`
	Title       string          `json:"title"`
	Metadata    json.RawMessage `json:"metadata"`
	HTML        *string         `json:"html"`
	EPUB        []byte          `json:"epub"`
	PublishedAt *time.Time      `json:"publishedAt"`
}

func toChapterJSON(chapter *Chapter) (chapterJSON, error) {
	md, err := marshalChapterMetadata(chapter.Metadata)
	if err != nil {
		return chapterJSON{}, err
	}
	return chapterJSON{
		ID:          chapter.ID,
		CreatedAt:   chapter.CreatedAt,
		UpdatedAt:   chapter.UpdatedAt,
		BookID:      chapter.BookID,
		Title:       chapter.Title,
		Metadata:    md,
		HTML:        chapter.HTML,
		EPUB:        chapter.EPUB,
		PublishedAt: chapter.PublishedAt,
	}, nil
}

type subscriberJSON struct {
	ID          uuid.UUID `json:"id"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
	Name        string    `json:"name"`
	KindleEmail *string   `json:"kindleEmail"`
	PushoverKey *string   `json:"pushoverKey"`
}

func toSubscriberJSON(sub *Subscriber) subscriberJSON {
	return subscriberJSON{
		ID:          sub.ID,
		CreatedAt:   sub.CreatedAt,
		UpdatedAt:   sub.UpdatedAt,
		Name:        sub.Name,
		KindleEmail: sub.KindleEmail,
		PushoverKey: sub.PushoverKey,
	}
}

type subscriptionJSON struct {
	ID                            uuid.UUID  `json:"id"`
	CreatedAt                     time.Time  `json:"createdAt"`
	UpdatedAt                     time.Time  `json:"updatedAt"`
	SubscriberID                  uuid.UUID  `json:"subscriberId"`
	BookID                        uuid.UUID  `json:"bookId"`
	ChunkSize                     int        `json:"chunkSize"`
	LastDeliveredChapterID        *uuid.UUID `json:"lastDeliveredChapterId"`
	LastDeliveredChapterCreatedAt *time.Time `json:"lastDeliveredChapterCreatedAt"`
}

func toSubscriptionJSON(sub *Subscription) subscriptionJSON {
	return subscriptionJSON{
		ID:                            sub.ID,
		CreatedAt:                     sub.CreatedAt,
		UpdatedAt:                     sub.UpdatedAt,
		SubscriberID:                  sub.SubscriberID,
		BookID:                        sub.BookID,
		ChunkSize:                     sub.ChunkSize,
		LastDeliveredChapterID:        sub.LastDeliveredChapterID,
		LastDeliveredChapterCreatedAt: sub.LastDeliveredChapterCreatedAt,
	}
}

func (h *handler) createBook(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title    string          `json:"title"`
		Author   string          `json:"author"`
		Metadata json.RawMessage `json:"metadata"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeErr(w, r, err)
		return
	}
	md, err := unmarshalBookMetadata(req.Metadata)
	if err != nil {
		writeErr(w, r, errors.Join(errBadRequest, err))
		return
	}
	book, err := h.store.CreateBook(r.Context(), req.Title, req.Author, md)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	resp, err := toBookJSON(book)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, r, resp)
}

func (h *handler) updateBook(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID       uuid.UUID       `json:"id"`
		Title    *string         `json:"title"`
		Author   *string         `json:"author"`
		Metadata json.RawMessage `json:"metadata"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeErr(w, r, err)
		return
	}
	var md BookMetadata
	if len(req.Metadata) > 0 {
		var err error
		if md, err = unmarshalBookMetadata(req.Metadata); err != nil {
			writeErr(w, r, errors.Join(errBadRequest, err))
			return
		}
	}
	book, err := h.store.UpdateBook(r.Context(), req.ID, req.Title, req.Author, md)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	resp, err := toBookJSON(book)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, r, resp)
}

func (h *handler) getBook(w http.ResponseWriter, r *http.Request) {
	id, err := queryID(r)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	book, err := h.store.GetBook(r.Context(), id)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	resp, err := toBookJSON(book)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, r, resp)
}

func (h *handler) listBooks(w http.ResponseWriter, r *http.Request) {
	books, err := h.store.ListBooks(r.Context())
	if err != nil {
		writeErr(w, r, err)
		return
	}
	resp := make([]bookJSON, 0, len(books))
	for _, book := range books {
		bj, err := toBookJSON(book)
		if err != nil {
			writeErr(w, r, err)
			return
		}
		resp = append(resp, bj)
	}
	writeJSON(w, r, resp)
}

func (h *handler) deleteBook(w http.ResponseWriter, r *http.Request) {
	id, err := queryID(r)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	if err := h.store.DeleteBook(r.Context(), id); err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, r, struct{}{})
}

func (h *handler) createChapter(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BookID      uuid.UUID       `json:"bookId"`
		Title       string          `json:"title"`
		Metadata    json.RawMessage `json:"metadata"`
		HTML        *string         `json:"html"`
		PublishedAt *time.Time      `json:"publishedAt"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeErr(w, r, err)
		return
	}
	md, err := unmarshalChapterMetadata(req.Metadata)
	if err != nil {
		writeErr(w, r, errors.Join(errBadRequest, err))
		return
	}
	chapter, err := h.store.CreateChapter(r.Context(), req.BookID, NewChapter{
		Title:       req.Title,
		Metadata:    md,
		HTML:        req.HTML,
		PublishedAt: req.PublishedAt,
	})
	if err != nil {
		writeErr(w, r, err)
		return
	}
	resp, err := toChapterJSON(chapter)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, r, resp)
}

func (h *handler) updateChapter(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID          uuid.UUID  `json:"id"`
		Title       *string    `json:"title"`
		HTML        *string    `json:"html"`
		EPUB        []byte     `json:"epub"`
		PublishedAt *time.Time `json:"publishedAt"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeErr(w, r, err)
		return
	}
	chapter, err := h.store.UpdateChapter(r.Context(), req.ID, ChapterPatch{
		Title:       req.Title,
		HTML:        req.HTML,
		EPUB:        req.EPUB,
		PublishedAt: req.PublishedAt,
	})
	if err != nil {
		writeErr(w, r, err)
		return
	}
	resp, err := toChapterJSON(chapter)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, r, resp)
}

func (h *handler) getChapter(w http.ResponseWriter, r *http.Request) {
	id, err := queryID(r)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	chapter, err := h.store.GetChapter(r.Context(), id)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	resp, err := toChapterJSON(chapter)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, r, resp)
}

func (h *handler) listChapters(w http.ResponseWriter, r *http.Request) {
	bookID, err := uuid.Parse(r.URL.Query().Get("bookId"))
	if err != nil {
		writeErr(w, r, errors.Join(errBadRequest, err))
		return
	}
	chapters, err := h.store.ListChapters(r.Context(), bookID)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	resp := make([]chapterJSON, 0, len(chapters))
	for _, chapter := range chapters {
		cj, err := toChapterJSON(chapter)
		if err != nil {
			writeErr(w, r, err)
			return
		}
		resp = append(resp, cj)
	}
	writeJSON(w, r, resp)
}

func (h *handler) deleteChapter(w http.ResponseWriter, r *http.Request) {
	id, err := queryID(r)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	if err := h.store.DeleteChapter(r.Context(), id); err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, r, struct{}{})
}

func (h *handler) createSubscriber(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string  `json:"name"`
		KindleEmail *string `json:"kindleEmail"`
		PushoverKey *string `json:"pushoverKey"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeErr(w, r, err)
		return
	}
	sub, err := h.store.CreateSubscriber(r.Context(), req.Name, req.KindleEmail, req.PushoverKey)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, r, toSubscriberJSON(sub))
}

func (h *handler) updateSubscriber(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID          uuid.UUID `json:"id"`
		Name        *string   `json:"name"`
		KindleEmail *string   `json:"kindleEmail"`
		PushoverKey *string   `json:"pushoverKey"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeErr(w, r, err)
		return
	}
	sub, err := h.store.UpdateSubscriber(r.Context(), req.ID, req.Name, req.KindleEmail, req.PushoverKey)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, r, toSubscriberJSON(sub))
}

func (h *handler) getSubscriber(w http.ResponseWriter, r *http.Request) {
	id, err := queryID(r)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	sub, err := h.store.GetSubscriber(r.Context(), id)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, r, toSubscriberJSON(sub))
}

func (h *handler) listSubscribers(w http.ResponseWriter, r *http.Request) {
	subs, err := h.store.ListSubscribers(r.Context())
	if err != nil {
		writeErr(w, r, err)
		return
	}
	resp := make([]subscriberJSON, 0, len(subs))
	for _, sub := range subs {
		resp = append(resp, toSubscriberJSON(sub))
	}
	writeJSON(w, r, resp)
}

func (h *handler) deleteSubscriber(w http.ResponseWriter, r *http.Request) {
	id, err := queryID(r)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	if err := h.store.DeleteSubscriber(r.Context(), id); err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, r, struct{}{})
}

func (h *handler) createSubscription(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SubscriberID           uuid.UUID  `json:"subscriberId"`
		BookID                 uuid.UUID  `json:"bookId"`
		ChunkSize              *int       `json:"chunkSize"`
		LastDeliveredChapterID *uuid.UUID `json:"lastDeliveredChapterId"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeErr(w, r, err)
		return
	}
	sub, err := h.store.CreateSubscription(r.Context(), req.SubscriberID, req.BookID, req.ChunkSize, req.LastDeliveredChapterID)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, r, toSubscriptionJSON(sub))
}

func (h *handler) updateSubscription(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID        uuid.UUID `json:"id"`
		ChunkSize *int      `json:"chunkSize"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeErr(w, r, err)
		return
	}
	if req.ChunkSize == nil {
		writeErr(w, r, errBadRequest)
		return
	}
	sub, err := h.store.UpdateSubscription(r.Context(), req.ID, *req.ChunkSize)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, r, toSubscriptionJSON(sub))
}

func (h *handler) getSubscription(w http.ResponseWriter, r *http.Request) {
	id, err := queryID(r)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	sub, err := h.store.GetSubscription(r.Context(), id)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, r, toSubscriptionJSON(sub))
}

func (h *handler) listSubscriptions(w http.ResponseWriter, r *http.Request) {
	subscriberID, err := uuid.Parse(r.URL.Query().Get("subscriberId"))
	if err != nil {
		writeErr(w, r, errors.Join(errBadRequest, err))
		return
	}
	subs, err := h.store.ListSubscriptions(r.Context(), subscriberID)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	resp := make([]subscriptionJSON, 0, len(subs))
	for _, sub := range subs {
		resp = append(resp, toSubscriptionJSON(sub))
	}
	writeJSON(w, r, resp)
}

func (h *handler) deleteSubscription(w http.ResponseWriter, r *http.Request) {
	id, err := queryID(r)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	if err := h.store.DeleteSubscription(r.Context(), id); err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, r, struct{}{})
}

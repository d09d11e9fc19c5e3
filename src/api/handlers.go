package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/projectai397/sakshi-platform-sub002/src/catalog"
	"github.com/projectai397/sakshi-platform-sub002/src/recommend"
	"github.com/projectai397/sakshi-platform-sub002/src/seva"
)

func onHealth(w http.ResponseWriter, r *http.Request, app *App) {
	writeResponse(w, "health", map[string]string{"status": "ok", "version": app.Version})
}

func onItems(w http.ResponseWriter, r *http.Request, app *App) {
	kind := catalog.Kind(r.URL.Query().Get("kind"))
	if kind != "" && !catalog.ValidKind(kind) {
		writeError(w, "Incorrect 'kind' parameter", http.StatusBadRequest)
		return
	}
	items, err := app.Catalog.List(r.Context(), kind)
	if err != nil {
		failWith(w, r, err, http.StatusInternalServerError)
		return
	}
	if items == nil {
		items = []catalog.Item{}
	}
	writeResponse(w, "items", items)
}

func onItem(w http.ResponseWriter, r *http.Request, app *App) {
	it, err := app.Catalog.View(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		failWith(w, r, err, http.StatusInternalServerError)
		return
	}
	writeResponse(w, "item", it)
}

func onUpsertItem(w http.ResponseWriter, r *http.Request, app *App) {
	var req catalog.Item
	usage := `{'id': 'golden-milk', 'kind': 'cafe|thrift', 'name': '..', 'fairPriceCents': 450, 'stock': 10}`
	if !decodeBody(w, r, &req, usage) {
		return
	}
	it, err := app.Catalog.Upsert(r.Context(), req)
	if err != nil {
		failWith(w, r, err, http.StatusBadRequest)
		return
	}
	writeResponse(w, "upsert-item", it)
}

func onFavourite(w http.ResponseWriter, r *http.Request, app *App) {
	id := identityFrom(r.Context())
	on, err := app.Catalog.Favourite(r.Context(), chi.URLParam(r, "id"), id.UserID)
	if err != nil {
		failWith(w, r, err, http.StatusInternalServerError)
		return
	}
	writeResponse(w, "favourite", map[string]bool{"favourite": on})
}

func onItemPrices(w http.ResponseWriter, r *http.Request, app *App) {
	it, err := app.Catalog.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		failWith(w, r, err, http.StatusInternalServerError)
		return
	}
	writeResponse(w, "prices", app.Pricing.Prices(it))
}

func onQuote(w http.ResponseWriter, r *http.Request, app *App) {
	var req APIQuotePayload
	usage := `{'lines': [{'itemId': 'golden-milk', 'qty': 2}], 'tier': 'community|fair|supporter', 'seva': 0}`
	if !decodeBody(w, r, &req, usage) {
		return
	}
	q, err := app.Pricing.Quote(r.Context(), app.Catalog, req.Lines, req.Tier, req.Seva)
	if err != nil {
		failWith(w, r, err, http.StatusBadRequest)
		return
	}
	writeResponse(w, "quote", q)
}

func onPriceAdvice(w http.ResponseWriter, r *http.Request, app *App) {
	it, err := app.Catalog.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		failWith(w, r, err, http.StatusInternalServerError)
		return
	}
	adv, err := app.Recommend.AdvisePrice(r.Context(), it)
	if err != nil {
		failWith(w, r, err, http.StatusBadRequest)
		return
	}
	writeResponse(w, "price-advice", adv)
}

func onRecommendations(w http.ResponseWriter, r *http.Request, app *App) {
	kind := catalog.Kind(r.URL.Query().Get("kind"))
	if kind != "" && !catalog.ValidKind(kind) {
		writeError(w, "Incorrect 'kind' parameter", http.StatusBadRequest)
		return
	}
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	id := identityFrom(r.Context())
	recs, err := app.Recommend.Recommend(r.Context(), id.UserID, kind, limit)
	if err != nil {
		failWith(w, r, err, http.StatusInternalServerError)
		return
	}
	if recs == nil {
		recs = []recommend.Recommendation{}
	}
	writeResponse(w, "recommendations", recs)
}

func onGetProfile(w http.ResponseWriter, r *http.Request, app *App) {
	id := identityFrom(r.Context())
	p, err := app.Recommend.GetProfile(r.Context(), id.UserID)
	if err != nil {
		failWith(w, r, err, http.StatusInternalServerError)
		return
	}
	writeResponse(w, "profile", p)
}

func onPutProfile(w http.ResponseWriter, r *http.Request, app *App) {
	var req recommend.Profile
	usage := `{'primaryDosha': 'vata|pitta|kapha', 'secondaryDosha': '', 'dietary': ['vegan'], 'preferences': ['tea']}`
	if !decodeBody(w, r, &req, usage) {
		return
	}
	req.UserID = identityFrom(r.Context()).UserID
	p, err := app.Recommend.SaveProfile(r.Context(), req)
	if err != nil {
		failWith(w, r, err, http.StatusBadRequest)
		return
	}
	writeResponse(w, "profile", p)
}

func onSevaBalance(w http.ResponseWriter, r *http.Request, app *App) {
	id := identityFrom(r.Context())
	bal, err := app.Seva.Balance(r.Context(), id.UserID)
	if err != nil {
		failWith(w, r, err, http.StatusInternalServerError)
		return
	}
	writeResponse(w, "seva-balance", map[string]interface{}{"userId": id.UserID, "balance": bal})
}

func onSevaHistory(w http.ResponseWriter, r *http.Request, app *App) {
	limit, err := queryInt(r, "limit", seva.DefaultHistoryLimit)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	id := identityFrom(r.Context())
	hist, err := app.Seva.History(r.Context(), id.UserID, limit)
	if err != nil {
		failWith(w, r, err, http.StatusInternalServerError)
		return
	}
	if hist == nil {
		hist = []seva.Entry{}
	}
	writeResponse(w, "seva-history", hist)
}

func onSevaEarn(w http.ResponseWriter, r *http.Request, app *App) {
	var req APISevaEarnPayload
	usage := `{'userId': '..', 'activity': 'volunteer_hour', 'quantity': 2, 'ref': 'event-12', 'idempotencyKey': '..'}`
	if !decodeBody(w, r, &req, usage) {
		return
	}
	if req.UserID == "" {
		writeError(w, "missing userId", http.StatusBadRequest)
		return
	}
	e, err := app.Seva.Earn(r.Context(), req.UserID, req.Activity, req.Quantity, req.Ref, req.IdempotencyKey)
	if err != nil {
		failWith(w, r, err, http.StatusInternalServerError)
		return
	}
	writeResponse(w, "seva-earn", e)
}

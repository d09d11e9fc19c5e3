package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/projectai397/sakshi-platform-sub002/src/orders"
)

func onPlaceOrder(w http.ResponseWriter, r *http.Request, app *App) {
	var req APIQuotePayload
	usage := `{'lines': [{'itemId': 'golden-milk', 'qty': 2}], 'tier': 'community|fair|supporter', 'seva': 0}`
	if !decodeBody(w, r, &req, usage) {
		return
	}
	id := identityFrom(r.Context())
	o, err := app.Orders.Place(r.Context(), id.UserID, req.Lines, req.Tier, req.Seva)
	if err != nil {
		failWith(w, r, err, http.StatusBadRequest)
		return
	}
	writeResponseStatus(w, http.StatusCreated, "order", o)
}

func onMyOrders(w http.ResponseWriter, r *http.Request, app *App) {
	id := identityFrom(r.Context())
	list, err := app.Orders.List(r.Context(), id.UserID)
	if err != nil {
		failWith(w, r, err, http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []orders.Order{}
	}
	writeResponse(w, "orders", list)
}

func onGetOrder(w http.ResponseWriter, r *http.Request, app *App) {
	id := identityFrom(r.Context())
	o, err := app.Orders.Get(r.Context(), chi.URLParam(r, "id"), id.UserID, id.Admin)
	if err != nil {
		failWith(w, r, err, http.StatusInternalServerError)
		return
	}
	writeResponse(w, "order", o)
}

func onOrderPaid(w http.ResponseWriter, r *http.Request, app *App) {
	o, err := app.Orders.MarkPaid(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		failWith(w, r, err, http.StatusInternalServerError)
		return
	}
	writeResponse(w, "order", o)
}

func onOrderFulfil(w http.ResponseWriter, r *http.Request, app *App) {
	o, err := app.Orders.Fulfil(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		failWith(w, r, err, http.StatusInternalServerError)
		return
	}
	writeResponse(w, "order", o)
}

func onCancelOrder(w http.ResponseWriter, r *http.Request, app *App) {
	id := identityFrom(r.Context())
	o, err := app.Orders.Cancel(r.Context(), chi.URLParam(r, "id"), id.UserID, id.Admin)
	if err != nil {
		failWith(w, r, err, http.StatusInternalServerError)
		return
	}
	writeResponse(w, "order", o)
}

package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/projectai397/sakshi-platform-sub002/src/catalog"
	"github.com/projectai397/sakshi-platform-sub002/src/orders"
	"github.com/projectai397/sakshi-platform-sub002/src/passport"
	"github.com/projectai397/sakshi-platform-sub002/src/pricing"
	"github.com/projectai397/sakshi-platform-sub002/src/recommend"
	"github.com/projectai397/sakshi-platform-sub002/src/rewards"
	"github.com/projectai397/sakshi-platform-sub002/src/seva"
)

// maximal accepted request body
const maxBody = 1 << 20

func formatError(errorMsg string) []byte {
	response := struct {
		Error string `json:"error"`
	}{Error: errorMsg}
	jsonResponse, err := json.Marshal(response)
	if err != nil {
		return []byte(`{"error":"unavailable"}`)
	}
	return jsonResponse
}

func writeError(w http.ResponseWriter, msg string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(formatError(msg))
}

// errStatus maps domain errors to http status codes, fallback is used
// for everything else
func errStatus(err error, fallback int) int {
	switch {
	case errors.Is(err, catalog.ErrNotFound),
		errors.Is(err, orders.ErrNotFound),
		errors.Is(err, passport.ErrNotFound),
		errors.Is(err, recommend.ErrNoProfile),
		errors.Is(err, rewards.ErrNoWallet):
		return http.StatusNotFound
	case errors.Is(err, orders.ErrForbidden),
		errors.Is(err, passport.ErrNotOwner):
		return http.StatusForbidden
	case errors.Is(err, orders.ErrOutOfStock),
		errors.Is(err, orders.ErrIllegalTransition),
		errors.Is(err, seva.ErrInsufficient),
		errors.Is(err, seva.ErrKeyReused),
		errors.Is(err, passport.ErrAlreadyMinted),
		errors.Is(err, passport.ErrMintPending),
		errors.Is(err, passport.ErrConflict),
		errors.Is(err, rewards.ErrWalletTaken),
		errors.Is(err, rewards.ErrBatchRunning):
		return http.StatusConflict
	case errors.Is(err, pricing.ErrInvalidTier),
		errors.Is(err, seva.ErrUnknownActivity),
		errors.Is(err, seva.ErrInvalidAmount),
		errors.Is(err, rewards.ErrInvalidPayload):
		return http.StatusBadRequest
	case errors.Is(err, rewards.ErrDisabled),
		errors.Is(err, passport.ErrMintDisabled):
		return http.StatusServiceUnavailable
	}
	return fallback
}

// failWith writes the error with its mapped status, internal errors are
// logged and not shown to the caller
func failWith(w http.ResponseWriter, r *http.Request, err error, fallback int) {
	status := errStatus(err, fallback)
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		zap.L().Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		writeError(w, "Unavailable", status)
		return
	}
	writeError(w, err.Error(), status)
}

func writeResponse(w http.ResponseWriter, typ string, data interface{}) {
	writeResponseStatus(w, http.StatusOK, typ, data)
}

func writeResponseStatus(w http.ResponseWriter, status int, typ string, data interface{}) {
	jsonResponse, err := json.Marshal(APIResponse{Type: typ, Data: data})
	if err != nil {
		zap.L().Error("unable to marshal response", zap.String("type", typ), zap.Error(err))
		writeError(w, "Unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(jsonResponse)
}

// decodeBody reads the JSON request body into v and answers 400 with the
// usage string if that fails
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}, usage string) bool {
	var jsonData []byte
	if r.Body != nil {
		defer r.Body.Close()
		jsonData, _ = io.ReadAll(io.LimitReader(r.Body, maxBody))
	}
	if err := json.Unmarshal(jsonData, v); err != nil {
		writeError(w, "Wrong argument types. Usage: "+usage, http.StatusBadRequest)
		return false
	}
	return true
}

// queryInt reads an integer query parameter, def if absent
func queryInt(r *http.Request, name string, def int) (int, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return def, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, errors.Errorf("incorrect '%s' parameter", name)
	}
	return v, nil
}

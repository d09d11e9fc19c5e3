package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/projectai397/sakshi-platform-sub002/src/passport"
	"github.com/projectai397/sakshi-platform-sub002/src/rewards"
)

func onTokenInfo(w http.ResponseWriter, r *http.Request, app *App) {
	info, err := app.Rewards.TokenInfo(r.Context())
	if err != nil {
		failWith(w, r, err, http.StatusInternalServerError)
		return
	}
	writeResponse(w, "token-info", info)
}

func onLinkWallet(w http.ResponseWriter, r *http.Request, app *App) {
	var req rewards.WalletLinkPayload
	usage := `{'userId': '..', 'walletAddr': '0xaCFe...', 'createdOn': 1696166434, 'signature': '0xABCE...'}`
	if !decodeBody(w, r, &req, usage) {
		return
	}
	if !rewards.IsValidEvmAddr(req.WalletAddr) {
		writeError(w, "invalid address", http.StatusBadRequest)
		return
	}
	id := identityFrom(r.Context())
	link, err := app.Rewards.LinkWallet(r.Context(), id.UserID, req)
	if err != nil {
		failWith(w, r, err, http.StatusInternalServerError)
		return
	}
	writeResponse(w, "wallet-link", link)
}

func onEarnings(w http.ResponseWriter, r *http.Request, app *App) {
	id := identityFrom(r.Context())
	res, err := app.Rewards.Earnings(r.Context(), id.UserID)
	if err != nil {
		failWith(w, r, err, http.StatusInternalServerError)
		return
	}
	if res == nil {
		res = []rewards.Earning{}
	}
	writeResponse(w, "earnings", res)
}

func onOpenCredits(w http.ResponseWriter, r *http.Request, app *App) {
	id := identityFrom(r.Context())
	res, err := app.Rewards.OpenCredits(r.Context(), id.UserID)
	if err != nil {
		failWith(w, r, err, http.StatusInternalServerError)
		return
	}
	writeResponse(w, "open-credits", res)
}

func actorFrom(r *http.Request) passport.Actor {
	id := identityFrom(r.Context())
	return passport.Actor{ID: id.UserID, Admin: id.Admin}
}

func onCreatePassport(w http.ResponseWriter, r *http.Request, app *App) {
	var req APIPassportCreatePayload
	if !decodeBody(w, r, &req, `{'itemId': 'denim-jacket', 'ownerId': '..'}`) {
		return
	}
	actor := actorFrom(r)
	owner := req.OwnerID
	if owner == "" {
		owner = actor.ID
	}
	if owner != actor.ID && !actor.Admin {
		writeError(w, "only admins issue passports for other users", http.StatusForbidden)
		return
	}
	p, err := app.Passports.Create(r.Context(), req.ItemID, owner)
	if err != nil {
		failWith(w, r, err, http.StatusBadRequest)
		return
	}
	writeResponseStatus(w, http.StatusCreated, "passport", p)
}

func onGetPassport(w http.ResponseWriter, r *http.Request, app *App) {
	p, err := app.Passports.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		failWith(w, r, err, http.StatusInternalServerError)
		return
	}
	writeResponse(w, "passport", p)
}

func onVerifyPassport(w http.ResponseWriter, r *http.Request, app *App) {
	res, err := app.Passports.Verify(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		failWith(w, r, err, http.StatusInternalServerError)
		return
	}
	writeResponse(w, "passport-verify", res)
}

func onRepairPassport(w http.ResponseWriter, r *http.Request, app *App) {
	var req APIRepairPayload
	if !decodeBody(w, r, &req, `{'notes': 'new zipper', 'costCents': 1200}`) {
		return
	}
	p, err := app.Passports.RecordRepair(r.Context(), chi.URLParam(r, "id"), actorFrom(r), req.Notes, req.CostCents)
	if err != nil {
		failWith(w, r, err, http.StatusBadRequest)
		return
	}
	writeResponse(w, "passport", p)
}

func onTransferPassport(w http.ResponseWriter, r *http.Request, app *App) {
	var req APITransferPayload
	if !decodeBody(w, r, &req, `{'newOwnerId': '..', 'priceCents': 0}`) {
		return
	}
	p, err := app.Passports.Transfer(r.Context(), chi.URLParam(r, "id"), actorFrom(r), req.NewOwnerID, req.PriceCents)
	if err != nil {
		failWith(w, r, err, http.StatusBadRequest)
		return
	}
	writeResponse(w, "passport", p)
}

func onMintPassport(w http.ResponseWriter, r *http.Request, app *App) {
	p, err := app.Passports.Mint(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		failWith(w, r, err, http.StatusBadGateway)
		return
	}
	writeResponse(w, "passport", p)
}

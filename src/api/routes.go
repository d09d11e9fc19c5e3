package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all API routes of the platform
func RegisterRoutes(router chi.Router, app *App) {

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		onHealth(w, r, app)
	})

	// Endpoint: /token-info
	router.Get("/token-info", func(w http.ResponseWriter, r *http.Request) {
		onTokenInfo(w, r, app)
	})

	// Endpoint: /items?kind=thrift
	router.Get("/items", func(w http.ResponseWriter, r *http.Request) {
		onItems(w, r, app)
	})

	router.Get("/items/{id}", func(w http.ResponseWriter, r *http.Request) {
		onItem(w, r, app)
	})

	router.Get("/items/{id}/prices", func(w http.ResponseWriter, r *http.Request) {
		onItemPrices(w, r, app)
	})

	router.Post("/quote", func(w http.ResponseWriter, r *http.Request) {
		onQuote(w, r, app)
	})

	// everything below needs a bearer token
	router.Group(func(router chi.Router) {
		router.Use(app.Auth.Authenticate)

		router.Post("/items/{id}/favourite", func(w http.ResponseWriter, r *http.Request) {
			onFavourite(w, r, app)
		})

		// Endpoint: /recommendations?kind=cafe&limit=10
		router.Get("/recommendations", func(w http.ResponseWriter, r *http.Request) {
			onRecommendations(w, r, app)
		})

		router.Get("/profile", func(w http.ResponseWriter, r *http.Request) {
			onGetProfile(w, r, app)
		})

		router.Put("/profile", func(w http.ResponseWriter, r *http.Request) {
			onPutProfile(w, r, app)
		})

		router.Get("/seva/balance", func(w http.ResponseWriter, r *http.Request) {
			onSevaBalance(w, r, app)
		})

		// Endpoint: /seva/history?limit=50
		router.Get("/seva/history", func(w http.ResponseWriter, r *http.Request) {
			onSevaHistory(w, r, app)
		})

		router.Get("/orders", func(w http.ResponseWriter, r *http.Request) {
			onMyOrders(w, r, app)
		})

		router.Post("/orders", func(w http.ResponseWriter, r *http.Request) {
			onPlaceOrder(w, r, app)
		})

		router.Get("/orders/{id}", func(w http.ResponseWriter, r *http.Request) {
			onGetOrder(w, r, app)
		})

		router.Post("/orders/{id}/cancel", func(w http.ResponseWriter, r *http.Request) {
			onCancelOrder(w, r, app)
		})

		router.Post("/wallet/link", func(w http.ResponseWriter, r *http.Request) {
			onLinkWallet(w, r, app)
		})

		router.Get("/rewards/earnings", func(w http.ResponseWriter, r *http.Request) {
			onEarnings(w, r, app)
		})

		router.Get("/rewards/open", func(w http.ResponseWriter, r *http.Request) {
			onOpenCredits(w, r, app)
		})

		router.Post("/passports", func(w http.ResponseWriter, r *http.Request) {
			onCreatePassport(w, r, app)
		})

		router.Get("/passports/{id}", func(w http.ResponseWriter, r *http.Request) {
			onGetPassport(w, r, app)
		})

		router.Get("/passports/{id}/verify", func(w http.ResponseWriter, r *http.Request) {
			onVerifyPassport(w, r, app)
		})

		router.Post("/passports/{id}/repair", func(w http.ResponseWriter, r *http.Request) {
			onRepairPassport(w, r, app)
		})

		router.Post("/passports/{id}/transfer", func(w http.ResponseWriter, r *http.Request) {
			onTransferPassport(w, r, app)
		})

		router.Group(func(router chi.Router) {
			router.Use(RequireAdmin)

			router.Post("/items", func(w http.ResponseWriter, r *http.Request) {
				onUpsertItem(w, r, app)
			})

			router.Get("/items/{id}/price-advice", func(w http.ResponseWriter, r *http.Request) {
				onPriceAdvice(w, r, app)
			})

			router.Post("/seva/earn", func(w http.ResponseWriter, r *http.Request) {
				onSevaEarn(w, r, app)
			})

			router.Post("/orders/{id}/paid", func(w http.ResponseWriter, r *http.Request) {
				onOrderPaid(w, r, app)
			})

			router.Post("/orders/{id}/fulfil", func(w http.ResponseWriter, r *http.Request) {
				onOrderFulfil(w, r, app)
			})

			router.Post("/passports/{id}/mint", func(w http.ResponseWriter, r *http.Request) {
				onMintPassport(w, r, app)
			})
		})
	})
}

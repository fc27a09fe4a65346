package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/jalanin/wallet-backend/internal/api/handlers"
	"github.com/jalanin/wallet-backend/internal/api/httpx"
	"github.com/jalanin/wallet-backend/internal/api/validate"
	"github.com/jalanin/wallet-backend/internal/config"
	"github.com/jalanin/wallet-backend/internal/metrics"
	"github.com/jalanin/wallet-backend/internal/middleware"
	"github.com/jalanin/wallet-backend/internal/models"
	"github.com/jalanin/wallet-backend/internal/services"
)

type RouterDeps struct {
	Cfg       config.Config
	Auth      *handlers.AuthHandler
	AuthMW    *middleware.AuthMiddleware
	UserSvc   *services.UserService
	WalletSvc *services.WalletService
	IncomeSvc *services.IncomeService
}

type walletOpReq struct {
	UserID      string  `json:"user_id"`
	Amount      int64   `json:"amount"`
	Source      string  `json:"source"`
	Description string  `json:"description"`
	RelatedUser *string `json:"related_user_id,omitempty"`
	ServiceType *string `json:"service_type,omitempty"`
	RentalID    *string `json:"rental_id,omitempty"`
	VehicleID   *string `json:"vehicle_id,omitempty"`
}

func (req walletOpReq) toOp() services.WalletOp {
	return services.WalletOp{
		UserID:      req.UserID,
		Amount:      req.Amount,
		Source:      models.EntrySource(req.Source),
		Description: req.Description,
		RelatedUser: req.RelatedUser,
		ServiceType: serviceType(req.ServiceType),
		RentalID:    req.RentalID,
		VehicleID:   req.VehicleID,
	}
}

func serviceType(s *string) *models.ServiceType {
	if s == nil {
		return nil
	}
	st := models.ServiceType(*s)
	return &st
}

func NewRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recover, middleware.HTTPMetrics, middleware.RateLimit(d.Cfg.RateRPS))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	}))

	// health & metrics
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("ok")) })
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// ---------- auth ----------
		r.Post("/auth/register", d.Auth.Register)
		r.Post("/auth/login", d.Auth.Login)
		r.Post("/auth/refresh", d.Auth.Refresh)

		// ---------- authenticated ----------
		r.Group(func(r chi.Router) {
			r.Use(d.AuthMW.Auth)

			// users (admin only)
			r.With(middleware.RequireRole(models.RoleAdmin)).
				Get("/users", func(w http.ResponseWriter, r *http.Request) {
					users, err := d.UserSvc.List(r.Context())
					if err != nil {
						httpx.WriteError(w, http.StatusInternalServerError, "internal_error", err.Error(), nil)
						return
					}
					httpx.WriteJSON(w, http.StatusOK, users)
				})

			// ---------- wallets ----------
			r.Get("/wallets/current", func(w http.ResponseWriter, r *http.Request) {
				uid := callerOr(r, r.URL.Query().Get("user_id"))
				b, err := d.WalletSvc.Balance(r.Context(), uid)
				if err != nil {
					writeWalletErr(w, err)
					return
				}
				httpx.WriteJSON(w, http.StatusOK, b)
			})

			r.Post("/wallets/initialize", func(w http.ResponseWriter, r *http.Request) {
				var req struct {
					UserID string `json:"user_id"`
				}
				if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
					httpx.WriteError(w, http.StatusBadRequest, "bad_request", "invalid body", nil)
					return
				}
				b, err := d.WalletSvc.Initialize(r.Context(), callerOr(r, req.UserID))
				if err != nil {
					writeWalletErr(w, err)
					return
				}
				httpx.WriteJSON(w, http.StatusOK, b)
			})

			r.Get("/wallets/{user_id}/entries", func(w http.ResponseWriter, r *http.Request) {
				uid := chi.URLParam(r, "user_id")
				limit, offset := pagination(r, 50)
				entries, err := d.WalletSvc.History(r.Context(), uid, limit, offset)
				if err != nil {
					httpx.WriteError(w, http.StatusInternalServerError, "internal_error", err.Error(), nil)
					return
				}
				httpx.WriteJSON(w, http.StatusOK, entries)
			})

			r.Post("/wallets/debit", func(w http.ResponseWriter, r *http.Request) {
				req, ok := decodeWalletOp(w, r)
				if !ok {
					return
				}
				if err := d.WalletSvc.Debit(r.Context(), req.toOp()); err != nil {
					writeWalletErr(w, err)
					return
				}
				httpx.WriteJSON(w, http.StatusOK, map[string]bool{"ok": true})
			})

			r.Post("/wallets/credit", func(w http.ResponseWriter, r *http.Request) {
				req, ok := decodeWalletOp(w, r)
				if !ok {
					return
				}
				if err := d.WalletSvc.Credit(r.Context(), req.toOp()); err != nil {
					writeWalletErr(w, err)
					return
				}
				httpx.WriteJSON(w, http.StatusOK, map[string]bool{"ok": true})
			})

			r.Post("/wallets/transfer", func(w http.ResponseWriter, r *http.Request) {
				var req struct {
					FromUserID  string  `json:"from_user_id"`
					ToUserID    string  `json:"to_user_id"`
					Amount      int64   `json:"amount"`
					Source      string  `json:"source"`
					Description string  `json:"description"`
					ServiceType *string `json:"service_type,omitempty"`
					RentalID    *string `json:"rental_id,omitempty"`
					VehicleID   *string `json:"vehicle_id,omitempty"`
				}
				if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
					httpx.WriteError(w, http.StatusBadRequest, "bad_request", "invalid body", nil)
					return
				}
				if err := validate.Collect(
					validate.Required("from_user_id", req.FromUserID),
					validate.Required("to_user_id", req.ToUserID),
					validate.Positive("amount", req.Amount),
					validate.Required("source", req.Source),
				); err != nil {
					httpx.WriteError(w, http.StatusBadRequest, "validation", err.Error(), err)
					return
				}
				err := d.WalletSvc.Transfer(r.Context(), services.TransferOp{
					FromUserID:  req.FromUserID,
					ToUserID:    req.ToUserID,
					Amount:      req.Amount,
					Source:      models.EntrySource(req.Source),
					Description: req.Description,
					ServiceType: serviceType(req.ServiceType),
					RentalID:    req.RentalID,
					VehicleID:   req.VehicleID,
				})
				if err != nil {
					writeWalletErr(w, err)
					return
				}
				httpx.WriteJSON(w, http.StatusOK, map[string]bool{"ok": true})
			})

			// ---------- incomes ----------
			r.Post("/incomes", func(w http.ResponseWriter, r *http.Request) {
				var req struct {
					RecipientID string  `json:"recipient_id"`
					Amount      int64   `json:"amount"`
					Status      string  `json:"status"`
					ServiceType *string `json:"service_type,omitempty"`
					RentalID    *string `json:"rental_id,omitempty"`
					VehicleID   *string `json:"vehicle_id,omitempty"`
					Description string  `json:"description"`
				}
				if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
					httpx.WriteError(w, http.StatusBadRequest, "bad_request", "invalid body", nil)
					return
				}
				rec, err := d.IncomeSvc.Record(r.Context(), models.IncomeRecord{
					RecipientID: req.RecipientID,
					Amount:      req.Amount,
					Status:      models.IncomeStatus(req.Status),
					ServiceType: serviceType(req.ServiceType),
					RentalID:    req.RentalID,
					VehicleID:   req.VehicleID,
					Description: req.Description,
				})
				if err != nil {
					writeWalletErr(w, err)
					return
				}
				httpx.WriteJSON(w, http.StatusCreated, rec)
			})

			r.Post("/incomes/reconcile", func(w http.ResponseWriter, r *http.Request) {
				var req struct {
					UserID string `json:"user_id"`
				}
				if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
					httpx.WriteError(w, http.StatusBadRequest, "bad_request", "invalid body", nil)
					return
				}
				n, err := d.IncomeSvc.Reconcile(r.Context(), callerOr(r, req.UserID))
				if err != nil {
					writeWalletErr(w, err)
					return
				}
				httpx.WriteJSON(w, http.StatusOK, map[string]int{"processed": n})
			})
		})
	})

	return r
}

func decodeWalletOp(w http.ResponseWriter, r *http.Request) (walletOpReq, bool) {
	var req walletOpReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "bad_request", "invalid body", nil)
		return req, false
	}
	if err := validate.Collect(
		validate.Required("user_id", req.UserID),
		validate.Positive("amount", req.Amount),
		validate.Required("source", req.Source),
	); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "validation", err.Error(), err)
		return req, false
	}
	return req, true
}

// callerOr falls back to the authenticated user when the request names no
// explicit user id.
func callerOr(r *http.Request, uid string) string {
	if uid != "" {
		return uid
	}
	if u, ok := middleware.FromCtx(r.Context()); ok {
		return u.UserID
	}
	return ""
}

func pagination(r *http.Request, defLimit int) (int, int) {
	limit := defLimit
	offset := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}

func writeWalletErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrInvalidAmount):
		httpx.WriteError(w, http.StatusBadRequest, "invalid_amount", err.Error(), nil)
	case errors.Is(err, services.ErrInsufficientFunds):
		httpx.WriteError(w, http.StatusUnprocessableEntity, "insufficient_balance", err.Error(), nil)
	case errors.Is(err, services.ErrSelfTransfer):
		httpx.WriteError(w, http.StatusBadRequest, "self_transfer", err.Error(), nil)
	case errors.Is(err, services.ErrUserNotFound), errors.Is(err, services.ErrWalletNotFound):
		httpx.WriteError(w, http.StatusNotFound, "not_found", err.Error(), nil)
	default:
		httpx.WriteError(w, http.StatusInternalServerError, "internal_error", err.Error(), nil)
	}
}

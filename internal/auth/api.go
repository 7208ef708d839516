package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/rfpdesk/rfpdesk/internal/identity"
	"github.com/rfpdesk/rfpdesk/internal/platform/httpx"
	"github.com/rfpdesk/rfpdesk/internal/users"
)

// API serves the token based JSON interface used by rfpctl and other
// non-browser clients.
type API struct {
	logger       *slog.Logger
	service      *Service
	tokenLimit   int
	tokenWindow  time.Duration
	clientMetaFn func(*http.Request) ClientMeta
}

// NewAPI constructs an API. tokenLimit requests per minute are allowed on
// the token endpoint per client IP.
func NewAPI(logger *slog.Logger, service *Service, tokenLimit int) *API {
	if tokenLimit <= 0 {
		tokenLimit = 10
	}
	return &API{logger: logger, service: service, tokenLimit: tokenLimit, tokenWindow: time.Minute, clientMetaFn: clientMeta}
}

// MountRoutes registers the API under the caller's prefix.
func (a *API) MountRoutes(r chi.Router) {
	r.Post("/signup", a.signUp)
	r.With(httprate.LimitByIP(a.tokenLimit, a.tokenWindow)).Post("/token", a.token)
	r.Post("/recover", a.recover)
	r.Post("/logout", a.logout)
	r.Group(func(r chi.Router) {
		r.Use(a.RequireBearer)
		r.Get("/user", a.getUser)
		r.Put("/user", a.updateUser)
		r.Get("/profile", a.getProfile)
		r.Put("/profile", a.updateProfile)
	})
}

type bearerContextKey struct{}

// RequireBearer authenticates the Authorization header and attaches the
// identity and raw token to the request context.
func (a *API) RequireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		user, err := a.service.GetUser(r.Context(), token)
		if err != nil {
			a.problem(w, err)
			return
		}
		id, _, err := a.service.Identity(r.Context(), user)
		if err != nil {
			a.problem(w, err)
			return
		}
		ctx := identity.WithIdentity(r.Context(), id)
		ctx = context.WithValue(ctx, bearerContextKey{}, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}

func tokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(bearerContextKey{}).(string)
	return token
}

func (a *API) signUp(w http.ResponseWriter, r *http.Request) {
	var req SignUpRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	user, err := a.service.SignUp(r.Context(), req)
	if err != nil {
		a.problem(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"user": user})
}

type tokenRequest struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	RefreshToken string `json:"refresh_token"`
}

func (a *API) token(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	var (
		sess identity.Session
		err  error
	)
	switch grant := r.URL.Query().Get("grant_type"); grant {
	case "password":
		login := LoginRequest{Email: req.Email, Password: req.Password}
		if verr := a.service.validate.Struct(login); verr != nil {
			a.problem(w, NewValidationError(verr))
			return
		}
		sess, err = a.service.SignInWithPassword(r.Context(), login.Email, login.Password, a.clientMetaFn(r))
	case "refresh_token":
		sess, err = a.service.RefreshSession(r.Context(), req.RefreshToken)
	default:
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "unsupported grant_type "+grant)
		return
	}
	if err != nil {
		a.problem(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sess)
}

func (a *API) logout(w http.ResponseWriter, r *http.Request) {
	if err := a.service.SignOut(r.Context(), bearerToken(r)); err != nil {
		a.problem(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) getUser(w http.ResponseWriter, r *http.Request) {
	id, _ := identity.FromContext(r.Context())
	httpx.JSON(w, http.StatusOK, id)
}

func (a *API) updateUser(w http.ResponseWriter, r *http.Request) {
	var attrs UserAttributes
	if err := httpx.DecodeJSON(w, r, &attrs); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	user, err := a.service.UpdateUser(r.Context(), tokenFromContext(r.Context()), attrs)
	if err != nil {
		a.problem(w, err)
		return
	}
	id, _, err := a.service.Identity(r.Context(), user)
	if err != nil {
		a.problem(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, id)
}

type recoverRequest struct {
	Email      string `json:"email"`
	RedirectTo string `json:"redirect_to"`
}

func (a *API) recover(w http.ResponseWriter, r *http.Request) {
	var req recoverRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	if err := a.service.ResetPasswordForEmail(r.Context(), req.Email, req.RedirectTo); err != nil {
		a.problem(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{})
}

func (a *API) getProfile(w http.ResponseWriter, r *http.Request) {
	id, _ := identity.FromContext(r.Context())
	httpx.JSON(w, http.StatusOK, id)
}

func (a *API) updateProfile(w http.ResponseWriter, r *http.Request) {
	var upd users.ProfileUpdate
	if err := httpx.DecodeJSON(w, r, &upd); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	id, err := a.service.UpdateProfile(r.Context(), tokenFromContext(r.Context()), upd)
	if err != nil {
		a.problem(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, id)
}

func (a *API) problem(w http.ResponseWriter, err error) {
	var verr *ValidationError
	if errors.As(err, &verr) {
		httpx.ProblemWithCode(w, http.StatusBadRequest, "Validation Failed", verr.Error(), "VALIDATION_ERROR", verr.Fields)
		return
	}
	var authErr *Error
	if !errors.As(MapError(err), &authErr) {
		authErr = ErrUnknown
	}
	status := HTTPStatus(authErr.Code)
	if status >= http.StatusInternalServerError && a.logger != nil {
		a.logger.Error("auth api failure", slog.Any("error", err))
	}
	detail := authErr.Message
	if authErr.Code == CodeUnknownError {
		detail = ErrUnknown.Message
	}
	httpx.ProblemWithCode(w, status, http.StatusText(status), detail, string(authErr.Code), nil)
}

func clientMeta(r *http.Request) ClientMeta {
	return ClientMeta{IP: r.RemoteAddr, UserAgent: r.UserAgent()}
}

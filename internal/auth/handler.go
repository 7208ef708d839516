package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/rfpdesk/rfpdesk/internal/authz"
	"github.com/rfpdesk/rfpdesk/internal/shared"
	"github.com/rfpdesk/rfpdesk/internal/view"
)

// Handler wires HTTP endpoints for browser authentication flows.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	templates *view.Engine
	csrf      *shared.CSRFManager
	policy    authz.RoutePolicy
	cookies   CookieOptions
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, csrf *shared.CSRFManager, policy authz.RoutePolicy, cookies CookieOptions) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		templates: templates,
		csrf:      csrf,
		policy:    policy,
		cookies:   cookies,
	}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/login", h.showLogin)
	r.Post("/login", h.handleLogin)
	r.Get("/signup", h.showSignUp)
	r.Post("/signup", h.handleSignUp)
	r.Post("/logout", h.handleLogout)
	r.Get("/auth/callback", h.handleCallback)
	r.Get("/auth/reset-password", h.showResetPassword)
	r.Post("/auth/reset-password", h.handleResetPassword)
	r.Get("/auth/update-password", h.showUpdatePassword)
	r.Post("/auth/update-password", h.handleUpdatePassword)
	r.Get(h.policy.ForbiddenPath, h.showForbidden)
}

// MountSettingsRoutes registers the signed-in password change under /settings.
func (h *Handler) MountSettingsRoutes(r chi.Router) {
	r.Get("/profile/change-password", h.showChangePassword)
	r.Post("/profile/change-password", h.handleChangePassword)
}

type loginPageData struct {
	Form   LoginRequest
	From   string
	Errors map[string]string
}

func (h *Handler) showLogin(w http.ResponseWriter, r *http.Request) {
	data := loginPageData{From: r.URL.Query().Get("from"), Errors: map[string]string{}}
	h.render(w, r, http.StatusOK, "pages/login.html", "Sign in", data)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := LoginRequest{
		Email:    strings.TrimSpace(r.PostFormValue("email")),
		Password: r.PostFormValue("password"),
	}
	data := loginPageData{Form: form, From: r.PostFormValue("from"), Errors: map[string]string{}}
	if err := h.service.validate.Struct(form); err != nil {
		data.Errors = shared.FieldErrors(err)
		data.Form.Password = ""
		h.render(w, r, http.StatusBadRequest, "pages/login.html", "Sign in", data)
		return
	}

	sess, err := h.service.SignInWithPassword(r.Context(), form.Email, form.Password, clientMeta(r))
	if err != nil {
		h.logger.Info("sign in failed", slog.String("code", string(CodeOf(err))))
		data.Errors["general"] = userMessage(err)
		data.Form.Password = ""
		h.render(w, r, http.StatusBadRequest, "pages/login.html", "Sign in", data)
		return
	}
	SetSessionCookies(w, sess, h.cookies)
	h.redirectWithFlash(w, r, h.safeRedirect(data.From), shared.FlashSuccess, "Welcome back, "+sess.Identity.Name)
}

type signUpPageData struct {
	Form     SignUpRequest
	Strength Strength
	Errors   map[string]string
}

func (h *Handler) showSignUp(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "pages/signup.html", "Create account", signUpPageData{Errors: map[string]string{}})
}

func (h *Handler) handleSignUp(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := SignUpRequest{
		Email:           r.PostFormValue("email"),
		Password:        r.PostFormValue("password"),
		PasswordConfirm: r.PostFormValue("password_confirm"),
		Name:            r.PostFormValue("name"),
		TermsAccepted:   r.PostFormValue("terms_accepted") != "",
	}
	_, err := h.service.SignUp(r.Context(), form)
	if err != nil {
		data := signUpPageData{Form: form, Strength: PasswordStrength(form.Password), Errors: formErrors(err)}
		data.Form.Password, data.Form.PasswordConfirm = "", ""
		h.render(w, r, http.StatusBadRequest, "pages/signup.html", "Create account", data)
		return
	}
	h.redirectWithFlash(w, r, h.policy.LoginPath, shared.FlashSuccess, "Account created. Check your inbox to confirm your email address.")
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	access, _ := TokensFromRequest(r)
	if err := h.service.SignOut(r.Context(), access); err != nil {
		h.logger.Warn("sign out", slog.Any("error", err))
	}
	ClearSessionCookies(w, h.cookies)
	h.redirectWithFlash(w, r, h.policy.LoginPath, shared.FlashSuccess, "You have been signed out")
}

func (h *Handler) handleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	token := q.Get("token")
	switch q.Get("type") {
	case "recovery":
		http.Redirect(w, r, "/auth/update-password?"+url.Values{"token": {token}}.Encode(), http.StatusSeeOther)
		return
	default:
		if _, err := h.service.ConfirmEmail(r.Context(), token); err != nil {
			h.logger.Info("email confirmation failed", slog.String("code", string(CodeOf(err))))
			h.redirectWithFlash(w, r, h.policy.LoginPath, shared.FlashError, "The confirmation link is invalid or has expired")
			return
		}
		h.redirectWithFlash(w, r, h.policy.LoginPath, shared.FlashSuccess, "Email confirmed. You can sign in now.")
	}
}

type emailPageData struct {
	Form   ResetPasswordRequest
	Sent   bool
	Errors map[string]string
}

func (h *Handler) showResetPassword(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "pages/reset_password.html", "Reset password", emailPageData{Errors: map[string]string{}})
}

func (h *Handler) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := ResetPasswordRequest{Email: r.PostFormValue("email")}
	if err := h.service.ResetPasswordForEmail(r.Context(), form.Email, ""); err != nil {
		h.render(w, r, http.StatusBadRequest, "pages/reset_password.html", "Reset password", emailPageData{Form: form, Errors: formErrors(err)})
		return
	}
	h.render(w, r, http.StatusOK, "pages/reset_password.html", "Reset password", emailPageData{Form: form, Sent: true, Errors: map[string]string{}})
}

type passwordPageData struct {
	Token  string
	Errors map[string]string
}

func (h *Handler) showUpdatePassword(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		h.redirectWithFlash(w, r, "/auth/reset-password", shared.FlashError, "The reset link is invalid or has expired")
		return
	}
	h.render(w, r, http.StatusOK, "pages/update_password.html", "Choose a new password", passwordPageData{Token: token, Errors: map[string]string{}})
}

func (h *Handler) handleUpdatePassword(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := RecoveryPasswordRequest{
		Token:           r.PostFormValue("token"),
		Password:        r.PostFormValue("password"),
		PasswordConfirm: r.PostFormValue("password_confirm"),
	}
	if err := h.service.UpdatePasswordWithRecovery(r.Context(), form); err != nil {
		if errors.Is(err, ErrSessionExpired) {
			h.redirectWithFlash(w, r, "/auth/reset-password", shared.FlashError, "The reset link is invalid or has expired")
			return
		}
		h.render(w, r, http.StatusBadRequest, "pages/update_password.html", "Choose a new password", passwordPageData{Token: form.Token, Errors: formErrors(err)})
		return
	}
	ClearSessionCookies(w, h.cookies)
	h.redirectWithFlash(w, r, h.policy.LoginPath, shared.FlashSuccess, "Password updated. Sign in with your new password.")
}

func (h *Handler) showChangePassword(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "pages/change_password.html", "Change password", passwordPageData{Errors: map[string]string{}})
}

func (h *Handler) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := UpdatePasswordRequest{
		CurrentPassword:    r.PostFormValue("current_password"),
		NewPassword:        r.PostFormValue("new_password"),
		NewPasswordConfirm: r.PostFormValue("new_password_confirm"),
	}
	access, _ := TokensFromRequest(r)
	if err := h.service.ChangePassword(r.Context(), access, form); err != nil {
		if errors.Is(err, ErrSessionExpired) {
			ClearSessionCookies(w, h.cookies)
			http.Redirect(w, r, h.policy.LoginPath, http.StatusSeeOther)
			return
		}
		errs := formErrors(err)
		if errors.Is(err, ErrInvalidCredentials) {
			errs = map[string]string{"current_password": "Current password is incorrect"}
		}
		h.render(w, r, http.StatusBadRequest, "pages/change_password.html", "Change password", passwordPageData{Errors: errs})
		return
	}
	h.redirectWithFlash(w, r, "/settings/profile", shared.FlashSuccess, "Password changed")
}

func (h *Handler) showForbidden(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusForbidden, "pages/forbidden.html", "Access denied", nil)
}

// safeRedirect accepts only local absolute paths.
func (h *Handler) safeRedirect(from string) string {
	if from == "" || !strings.HasPrefix(from, "/") || strings.HasPrefix(from, "//") || strings.HasPrefix(from, "/\\") {
		return h.policy.LandingPath
	}
	if h.policy.Classify(pathOnly(from)) == authz.PathAuthOnly {
		return h.policy.LandingPath
	}
	return from
}

func pathOnly(target string) string {
	if i := strings.IndexAny(target, "?#"); i >= 0 {
		return target[:i]
	}
	return target
}

func formErrors(err error) map[string]string {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr.Fields
	}
	var authErr *Error
	if errors.As(err, &authErr) && authErr.Code == CodeWeakPassword {
		return map[string]string{"password": authErr.Message, "new_password": authErr.Message}
	}
	return map[string]string{"general": userMessage(err)}
}

func userMessage(err error) string {
	var authErr *Error
	if errors.As(MapError(err), &authErr) && authErr.Code != CodeUnknownError {
		return authErr.Message
	}
	return "Something went wrong, please try again"
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, name, title string, data any) {
	viewData := view.BaseData(r, h.csrf, title)
	viewData.Data = data
	if err := h.templates.RenderStatus(w, status, name, viewData); err != nil {
		h.logger.Error("render auth page", slog.String("template", name), slog.Any("error", err))
	}
}

func (h *Handler) redirectWithFlash(w http.ResponseWriter, r *http.Request, location, kind, message string) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: kind, Message: message})
	}
	http.Redirect(w, r, location, http.StatusSeeOther)
}

// ShowLoginForTest exposes the GET handler for tests.
func (h *Handler) ShowLoginForTest(w http.ResponseWriter, r *http.Request) {
	h.showLogin(w, r)
}

// HandleLoginForTest exposes the POST handler for tests.
func (h *Handler) HandleLoginForTest(w http.ResponseWriter, r *http.Request) {
	h.handleLogin(w, r)
}

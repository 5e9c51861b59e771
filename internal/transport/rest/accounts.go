package rest

import (
	"encoding/json"
	"io"
	"net/http"

	"debtster/internal/domain"
	"debtster/internal/service"
	"debtster/internal/transport/auth"
)

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	req, err := ValidateRegisterRequest(r)
	if err != nil {
		if _, ok := err.(*ValidationError); ok {
			ErrorBadRequest(w, err.Error())
			return
		}
		ErrorBadRequest(w, "invalid JSON")
		return
	}

	user, err := h.accounts.Register(r.Context(), service.RegisterInput{
		Username: req.Username,
		Password: req.Password,
		FullName: req.FullName,
		Email:    req.Email,
		Role:     domain.Role(req.Role),
	})
	if err != nil {
		ErrorFrom(w, err)
		return
	}

	SuccessCreated(w, "account created", toUserJSON(user))
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	req, err := ValidateLoginRequest(r)
	if err != nil {
		if _, ok := err.(*ValidationError); ok {
			ErrorBadRequest(w, err.Error())
			return
		}
		ErrorBadRequest(w, "invalid JSON")
		return
	}

	user, token, err := h.accounts.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		// credential failures read as 401 rather than a field error
		if domain.IsKind(err, domain.KindValidation) {
			ErrorUnauthorized(w, "invalid username or password")
			return
		}
		ErrorFrom(w, err)
		return
	}

	h.admin.LogLogin(r.Context(), user.ID, requestMeta(r))

	Success(w, "logged in", map[string]interface{}{
		"user":  toUserJSON(user),
		"token": token,
	})
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	tokenID, err := auth.GetTokenID(r.Context())
	if err != nil {
		ErrorUnauthorized(w, "Unauthorized")
		return
	}

	if err := h.accounts.Logout(r.Context(), tokenID); err != nil {
		ErrorFrom(w, err)
		return
	}

	Success(w, "logged out", nil)
}

func (h *Handler) getProfile(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.GetUserID(r.Context())
	if err != nil {
		ErrorUnauthorized(w, "Unauthorized")
		return
	}

	profile, err := h.accounts.Profile(r.Context(), userID)
	if err != nil {
		ErrorFrom(w, err)
		return
	}

	Success(w, "", profileJSON(profile))
}

type updateProfileRequest struct {
	FullName string  `json:"full_name"`
	Email    *string `json:"email"`
	Summary  *string `json:"profile_summary"`
}

func (h *Handler) updateProfile(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.GetUserID(r.Context())
	if err != nil {
		ErrorUnauthorized(w, "Unauthorized")
		return
	}

	var req updateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		ErrorBadRequest(w, "invalid JSON")
		return
	}

	user, err := h.accounts.UpdateProfile(r.Context(), userID, service.UpdateProfileInput{
		FullName: req.FullName,
		Email:    req.Email,
		Summary:  req.Summary,
	})
	if err != nil {
		ErrorFrom(w, err)
		return
	}

	Success(w, "profile updated", toUserJSON(user))
}

package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"

	"github.com/shopflow/shopflow/internal/domain/user"
)

// UserService is the user store as used by the HTTP layer.
type UserService interface {
	FindByUsername(ctx context.Context, username string) (*user.User, error)
	FindByID(ctx context.Context, id int64) (*user.User, error)
	CheckPermission(ctx context.Context, username string) (bool, error)
	Register(ctx context.Context, req user.RegisterRequest) (*user.Session, error)
	Login(ctx context.Context, username, password string) (*user.Session, error)
	UpdateProfile(ctx context.Context, username string, p user.Profile) (*user.User, error)
}

// UserHandler serves the user service API.
type UserHandler struct {
	users UserService
}

// NewUserHandler returns a UserHandler backed by svc.
func NewUserHandler(svc UserService) *UserHandler {
	return &UserHandler{users: svc}
}

// Routes registers the user endpoints on r.
func (h *UserHandler) Routes(r chi.Router) {
	r.Route("/api/users", func(r chi.Router) {
		r.Post("/register", h.register)
		r.Post("/login", h.login)
		r.Put("/updateInfo", h.updateInfo)
		r.Get("/id/{id}", h.getByID)
		r.Get("/{username}", h.getByUsername)
		r.Get("/{username}/check", h.checkPermission)
	})
}

// userResponse never carries the password hash.
type userResponse struct {
	ID        int64      `json:"id"`
	Username  string     `json:"username"`
	Email     string     `json:"email"`
	FullName  string     `json:"fullName"`
	Phone     string     `json:"phone"`
	Address   string     `json:"address"`
	Role      string     `json:"role"`
	Active    bool       `json:"active"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	LastLogin *time.Time `json:"lastLogin"`
	Token     string     `json:"token,omitempty"`
}

func toUserResponse(u *user.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		FullName:  u.FullName,
		Phone:     u.Phone,
		Address:   u.Address,
		Role:      u.Role,
		Active:    u.Active,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
		LastLogin: u.LastLogin,
	}
}

func toSessionResponse(s *user.Session) userResponse {
	resp := toUserResponse(s.User)
	resp.Token = s.Token
	return resp
}

type registerRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email"`
	FullName string `json:"fullName"`
	Phone    string `json:"phone"`
	Address  string `json:"address"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type updateInfoRequest struct {
	Username string `json:"username"`
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Address  string `json:"address"`
}

func (h *UserHandler) getByUsername(w http.ResponseWriter, r *http.Request) {
	u, err := h.users.FindByUsername(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(u))
}

func (h *UserHandler) getByID(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeMessage(w, http.StatusBadRequest, "invalid user id")
		return
	}
	u, err := h.users.FindByID(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(u))
}

func (h *UserHandler) checkPermission(w http.ResponseWriter, r *http.Request) {
	ok, err := h.users.CheckPermission(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ok)
}

func (h *UserHandler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	s, err := h.users.Register(r.Context(), user.RegisterRequest{
		Username: req.Username,
		Password: req.Password,
		Email:    req.Email,
		FullName: req.FullName,
		Phone:    req.Phone,
		Address:  req.Address,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSessionResponse(s))
}

func (h *UserHandler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	s, err := h.users.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(s))
}

func (h *UserHandler) updateInfo(w http.ResponseWriter, r *http.Request) {
	var req updateInfoRequest
	if err := decodeJSON(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	u, err := h.users.UpdateProfile(r.Context(), req.Username, user.Profile{
		FullName: req.FullName,
		Email:    req.Email,
		Phone:    req.Phone,
		Address:  req.Address,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(u))
}

// writeError maps user store errors to HTTP responses.
func (h *UserHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, user.ErrNotFound):
		writeMessage(w, http.StatusNotFound, err.Error())
	case errors.Is(err, user.ErrUsernameTaken),
		errors.Is(err, user.ErrUsernameRequired),
		errors.Is(err, user.ErrPasswordRequired),
		errors.Is(err, user.ErrPasswordTooLong):
		writeMessage(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, user.ErrInvalidCredentials):
		writeMessage(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, user.ErrAccountDisabled):
		writeMessage(w, http.StatusForbidden, err.Error())
	default:
		writeInternal(w, r, "internal server error", err)
	}
}

package client

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/shopflow/shopflow/internal/domain/order"
)

var (
	_ order.UserClient   = (*UserClient)(nil)
	_ order.ProfileSaver = (*UserClient)(nil)
)

// UserClient calls the user service.
type UserClient struct {
	e endpoint
}

// NewUserClient returns a UserClient for the user service at baseURL.
func NewUserClient(baseURL string, hc *http.Client) *UserClient {
	return &UserClient{e: newEndpoint(baseURL, hc)}
}

type userResponse struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	FullName string `json:"fullName"`
	Phone    string `json:"phone"`
	Address  string `json:"address"`
	Active   bool   `json:"active"`
}

type updateInfoRequest struct {
	Username string `json:"username"`
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Address  string `json:"address"`
}

// GetByID looks a user up by id.
func (c *UserClient) GetByID(ctx context.Context, id int64) (*order.UserInfo, error) {
	return c.get(ctx, "/api/users/id/"+strconv.FormatInt(id, 10))
}

// GetByUsername looks a user up by username.
func (c *UserClient) GetByUsername(ctx context.Context, username string) (*order.UserInfo, error) {
	return c.get(ctx, "/api/users/"+url.PathEscape(username))
}

func (c *UserClient) get(ctx context.Context, path string) (*order.UserInfo, error) {
	var u userResponse
	if _, err := c.e.do(ctx, http.MethodGet, path, nil, nil, &u); err != nil {
		if statusOf(err) == http.StatusNotFound {
			return nil, order.ErrUserNotFound
		}
		return nil, err
	}
	return &order.UserInfo{
		ID:       u.ID,
		Username: u.Username,
		Email:    u.Email,
		FullName: u.FullName,
		Phone:    u.Phone,
		Address:  u.Address,
		Active:   u.Active,
	}, nil
}

// SaveCustomerInfo replaces the contact fields of username's profile.
func (c *UserClient) SaveCustomerInfo(ctx context.Context, username string, info order.CustomerInfo) error {
	req := updateInfoRequest{
		Username: username,
		FullName: info.FullName,
		Email:    info.Email,
		Phone:    info.Phone,
		Address:  info.Address,
	}
	_, err := c.e.do(ctx, http.MethodPut, "/api/users/updateInfo", nil, req, nil)
	return err
}

// CheckPermission reports whether username may place orders.
func (c *UserClient) CheckPermission(ctx context.Context, username string) (bool, error) {
	var ok bool
	if _, err := c.e.do(ctx, http.MethodGet, "/api/users/"+url.PathEscape(username)+"/check", nil, nil, &ok); err != nil {
		return false, err
	}
	return ok, nil
}

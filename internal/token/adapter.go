package token

import "immigo/pkg/platform/middleware/auth"

// MiddlewareAdapter bridges the token service to the auth middleware's
// validator interface so the middleware package stays free of JWT internals.
type MiddlewareAdapter struct {
	service *Service
}

func NewMiddlewareAdapter(service *Service) *MiddlewareAdapter {
	return &MiddlewareAdapter{service: service}
}

func (a *MiddlewareAdapter) Validate(tokenString string) (*auth.Claims, error) {
	claims, err := a.service.Validate(tokenString)
	if err != nil {
		return nil, err
	}
	return &auth.Claims{UserID: claims.UserID}, nil
}

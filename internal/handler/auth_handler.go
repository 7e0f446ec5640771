package handler

import (
	"net/http"

	"github.com/boddenberg/cadastro-clientes-pf-go/internal/domain"
	"github.com/boddenberg/cadastro-clientes-pf-go/internal/service"

	"go.uber.org/zap"
)

// ============================================================
// Autenticação: POST /auth/login
// ============================================================

// loginHandler reads username and password from the form body or the
// query string and answers with the bare token as text/plain.
func loginHandler(authSvc *service.AuthService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /auth/login")
		defer span.End()

		if err := r.ParseForm(); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		req := domain.LoginRequest{
			Username: r.Form.Get("username"),
			Password: r.Form.Get("password"),
		}

		token, err := authSvc.Authenticate(ctx, req.Username, req.Password)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeText(w, http.StatusOK, token)
	}
}

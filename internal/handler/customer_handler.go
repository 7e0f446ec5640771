package handler

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/boddenberg/cadastro-clientes-pf-go/internal/domain"
	"github.com/boddenberg/cadastro-clientes-pf-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Clientes: CRUD
// ============================================================

func createCustomerHandler(svc *service.CustomerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /customers")
		defer span.End()

		var req domain.CustomerInput
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		resp, err := svc.Register(ctx, req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		w.Header().Set("Location", fmt.Sprintf("/customers/%d", resp.ID))
		writeJSON(w, http.StatusCreated, resp)
	}
}

func updateCustomerHandler(svc *service.CustomerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /customers/{id}")
		defer span.End()

		id, err := customerIDParam(r)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		span.SetAttributes(attribute.Int64("customer.id", id))

		var req domain.CustomerInput
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		resp, err := svc.Update(ctx, id, req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func deleteCustomerHandler(svc *service.CustomerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /customers/{id}")
		defer span.End()

		id, err := customerIDParam(r)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		span.SetAttributes(attribute.Int64("customer.id", id))

		if err := svc.Delete(ctx, id); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		logger.Info("customer removed via API",
			zap.Int64("customer_id", id),
			zap.String("requested_by", SubjectFromContext(ctx)),
		)
		w.WriteHeader(http.StatusNoContent)
	}
}

func getCustomerHandler(svc *service.CustomerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /customers/{id}")
		defer span.End()

		id, err := customerIDParam(r)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		span.SetAttributes(attribute.Int64("customer.id", id))

		resp, err := svc.GetByID(ctx, id)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// ============================================================
// Clientes: listagem e busca
// ============================================================

func listCustomersHandler(svc *service.CustomerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /customers")
		defer span.End()

		page, err := svc.List(ctx, parsePagination(r))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, page)
	}
}

func searchCustomersHandler(svc *service.CustomerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /customers/search")
		defer span.End()

		page, err := svc.SearchByName(ctx, r.URL.Query().Get("name"), parsePagination(r))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, page)
	}
}

func getCustomerByCPFHandler(svc *service.CustomerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /customers/national_id/{nationalId}")
		defer span.End()

		cpf := chi.URLParam(r, "nationalId")
		resp, found, err := svc.FindByCPF(ctx, cpf)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		if !found {
			writeError(w, http.StatusNotFound, "Cliente não encontrado")
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func getCustomerByEmailHandler(svc *service.CustomerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /customers/email/{email}")
		defer span.End()

		email := chi.URLParam(r, "email")
		resp, found, err := svc.FindByEmail(ctx, email)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		if !found {
			writeError(w, http.StatusNotFound, "Cliente não encontrado")
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/loyalty-orders/internal/domain/auth"
	"github.com/xenking/loyalty-orders/internal/domain/customer"
	"github.com/xenking/loyalty-orders/internal/domain/order"
	"github.com/xenking/loyalty-orders/internal/domain/validation"
)

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("code", func(e *jx.Encoder) { e.Int(code) })
			e.Field("message", func(e *jx.Encoder) { e.Str(msg) })
		})
	})
}

// fail maps a service error to a response. Unknown errors are logged and
// hidden behind a generic 500.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	if ve, ok := validation.As(err); ok {
		writeError(w, http.StatusBadRequest, ve.Message)
		return
	}
	switch {
	case errors.Is(err, customer.ErrNotFound), errors.Is(err, order.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, customer.ErrDuplicateEmail):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, auth.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "unauthorized")
	default:
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

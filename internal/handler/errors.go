package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/platter/internal/domain/apperr"
	"github.com/xenking/platter/internal/domain/coupon"
	"github.com/xenking/platter/pkg/httpmiddleware"
)

// statusOf maps an error category to its HTTP status.
func statusOf(kind apperr.Kind) int {
	switch kind {
	case apperr.NotFound:
		return http.StatusNotFound
	case apperr.InvalidTransition:
		return http.StatusConflict
	case apperr.Unavailable,
		apperr.InvalidSelection,
		apperr.StoreMismatch,
		apperr.CouponInvalid,
		apperr.EmptyCart,
		apperr.MissingStore,
		apperr.InvalidInput:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err as {"code","error","message"}. Internal failures are
// logged here, once, and answered without detail.
func writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	var bad *badRequestError
	if errors.As(err, &bad) {
		writeMessage(w, http.StatusBadRequest, bad.Error())
		return
	}

	if !apperr.IsExpected(err) {
		zctx.From(r.Context()).Error("Request failed",
			zap.String("op", op),
			zap.String("customer_id", r.Header.Get(CustomerIDHeader)),
			zap.String("request_id", httpmiddleware.RequestIDFromContext(r.Context())),
			zap.Error(err),
		)
		writeMessage(w, http.StatusInternalServerError, "internal error")
		return
	}

	kind := apperr.KindOf(err)
	status := statusOf(kind)

	writeJSON(w, status, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("code", func(e *jx.Encoder) { e.Int(status) })
			e.Field("error", func(e *jx.Encoder) { e.Str(kind.String()) })
			e.Field("message", func(e *jx.Encoder) { e.Str(err.Error()) })
			var invalid *coupon.InvalidError
			if errors.As(err, &invalid) {
				e.Field("reason", func(e *jx.Encoder) { e.Str(string(invalid.Reason)) })
			}
		})
	})
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("code", func(e *jx.Encoder) { e.Int(status) })
			e.Field("message", func(e *jx.Encoder) { e.Str(msg) })
		})
	})
}

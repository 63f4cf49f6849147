package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/wassimD28/store-go/internal/domain/promotion"
)

// writeError maps err to a status code by its promotion.Kind and writes
// {"code":..,"kind":..,"message":..}. Ineligible errors also carry the
// actions the shopper can take.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := promotion.KindOf(err)
	status := http.StatusInternalServerError
	message := "internal error"

	switch kind {
	case promotion.KindValidation:
		status, message = http.StatusBadRequest, err.Error()
	case promotion.KindNotFound:
		status, message = http.StatusNotFound, err.Error()
	case promotion.KindIneligible:
		status, message = http.StatusUnprocessableEntity, err.Error()
	case promotion.KindUsageLimit:
		status, message = http.StatusConflict, "promotion usage limit reached"
	case promotion.KindUnsupportedType:
		zctx.From(r.Context()).Error("Promotion data mismatch", zap.Error(err))
	default:
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
	}

	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("code")
	e.Int(status)
	e.FieldStart("kind")
	e.Str(kind.String())
	e.FieldStart("message")
	e.Str(message)
	var ineligible *promotion.IneligibleError
	if errors.As(err, &ineligible) {
		e.FieldStart("requiredActions")
		encodeRequiredActions(&e, ineligible.Result.RequiredActions)
	}
	e.ObjEnd()

	writeJSON(w, status, e.Bytes())
}

// writeBadRequest reports an undecodable request body.
func writeBadRequest(w http.ResponseWriter, err error) {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("code")
	e.Int(http.StatusBadRequest)
	e.FieldStart("kind")
	e.Str(promotion.KindValidation.String())
	e.FieldStart("message")
	e.Str("invalid request body: " + err.Error())
	e.ObjEnd()

	writeJSON(w, http.StatusBadRequest, e.Bytes())
}

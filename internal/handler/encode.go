package handler

import (
	"context"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/ozsapka/shop-api/internal/domain/basket"
	"github.com/ozsapka/shop-api/internal/domain/product"
	"github.com/ozsapka/shop-api/internal/domain/user"
)

// writeJSON encodes a response body with jx and writes it with the given
// status code.
func writeJSON(w http.ResponseWriter, status int, encode func(e *jx.Encoder)) {
	var e jx.Encoder
	encode(&e)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

// writeError writes a {code, message} payload. Server-side failures are
// logged through the contextual logger.
func writeError(ctx context.Context, w http.ResponseWriter, status int, message string) {
	if status >= http.StatusInternalServerError {
		zctx.From(ctx).Error("Request failed",
			zap.Int("status", status),
			zap.String("message", message),
		)
	}
	writeJSON(w, status, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("code")
		e.Int(status)
		e.FieldStart("message")
		e.Str(message)
		e.ObjEnd()
	})
}

// writeDomainError maps a domain error to its HTTP representation.
func writeDomainError(ctx context.Context, w http.ResponseWriter, err error) {
	var (
		iqErr  *basket.InvalidQuantityError
		pnfErr *basket.ProductNotFoundError
		lnfErr *basket.LineNotFoundError
		qlErr  *basket.QuantityLimitExceededError
		istErr *basket.InvalidStateTransitionError
	)

	switch {
	case errors.As(err, &iqErr),
		errors.As(err, &pnfErr),
		errors.As(err, &qlErr),
		errors.Is(err, basket.ErrEmptyBasket):
		writeError(ctx, w, http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &lnfErr),
		errors.Is(err, basket.ErrOrderNotFound),
		errors.Is(err, product.ErrNotFound),
		errors.Is(err, user.ErrNotFound):
		writeError(ctx, w, http.StatusNotFound, err.Error())
	case errors.As(err, &istErr):
		writeError(ctx, w, http.StatusConflict, err.Error())
	case errors.Is(err, basket.ErrPersistenceUnavailable):
		writeError(ctx, w, http.StatusServiceUnavailable, "persistence unavailable")
	default:
		zctx.From(ctx).Error("Unhandled error", zap.Error(err))
		writeError(ctx, w, http.StatusInternalServerError, "internal error")
	}
}

func encodeProduct(e *jx.Encoder, p product.Product) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(p.ID)
	e.FieldStart("name")
	e.Str(p.Name)
	e.FieldStart("color")
	e.Str(p.Color)
	e.FieldStart("category")
	e.Str(p.Category)
	e.FieldStart("price")
	e.Float64(p.Price.InexactFloat64())
	e.ObjEnd()
}

func encodeLine(e *jx.Encoder, l basket.Line) {
	e.ObjStart()
	e.FieldStart("productId")
	e.Str(l.ProductID)
	e.FieldStart("quantity")
	e.Int(l.Quantity)
	e.FieldStart("unitPrice")
	e.Float64(l.UnitPrice.InexactFloat64())
	e.FieldStart("total")
	e.Float64(l.Total().InexactFloat64())
	e.ObjEnd()
}

// encodeOrder writes an order. A nil order encodes as the empty-basket
// shape so "no basket yet" responses stay uniform for clients.
func encodeOrder(e *jx.Encoder, o *basket.Order) {
	e.ObjStart()
	if o == nil {
		e.FieldStart("status")
		e.Str(string(basket.StatusBasket))
		e.FieldStart("total")
		e.Float64(0)
		e.FieldStart("lines")
		e.ArrStart()
		e.ArrEnd()
		e.ObjEnd()
		return
	}

	e.FieldStart("id")
	e.Str(o.ID)
	e.FieldStart("userId")
	e.Str(o.UserID)
	e.FieldStart("status")
	e.Str(string(o.Status))
	e.FieldStart("total")
	e.Float64(o.Total.InexactFloat64())
	e.FieldStart("createdAt")
	e.Str(o.CreatedAt.Format("2006-01-02T15:04:05Z07:00"))
	e.FieldStart("lines")
	e.ArrStart()
	for _, l := range o.Lines {
		encodeLine(e, l)
	}
	e.ArrEnd()
	e.ObjEnd()
}

func encodeUser(e *jx.Encoder, u user.User) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(u.ID)
	e.FieldStart("name")
	e.Str(u.Name)
	e.FieldStart("surname")
	e.Str(u.Surname)
	e.FieldStart("email")
	e.Str(u.Email)
	e.FieldStart("address")
	e.Str(u.Address)
	e.FieldStart("genderId")
	e.Str(u.GenderID)
	e.FieldStart("cityId")
	e.Str(u.CityID)
	e.ObjEnd()
}

func encodeNamed(e *jx.Encoder, id, name string) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(id)
	e.FieldStart("name")
	e.Str(name)
	e.ObjEnd()
}

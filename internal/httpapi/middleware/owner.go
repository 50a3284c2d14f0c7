package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/hamed0406/pulsewatch/internal/domain"
)

// OwnerHeader carries the account id resolved by the identity layer in
// front of this API.
const OwnerHeader = "X-Owner-ID"

const maxOwnerLen = 128

type ownerKey struct{}

// RequireOwner rejects requests without an owner id and stores it in the
// request context.
func RequireOwner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		owner := strings.TrimSpace(r.Header.Get(OwnerHeader))
		if owner == "" || len(owner) > maxOwnerLen {
			deny(w, http.StatusBadRequest, "missing or invalid X-Owner-ID")
			return
		}
		ctx := context.WithValue(r.Context(), ownerKey{}, domain.OwnerID(owner))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// OwnerFrom returns the owner stored by RequireOwner.
func OwnerFrom(ctx context.Context) domain.OwnerID {
	o, _ := ctx.Value(ownerKey{}).(domain.OwnerID)
	return o
}

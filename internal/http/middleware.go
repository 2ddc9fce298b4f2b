package http

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"

	"ledger/internal/core"
	"ledger/internal/log"
)

// OwnerHeader names the request owner when multi-user mode is on.
const OwnerHeader = "X-Ledger-Owner"

// recoverMiddleware turns a handler panic into a logged 500.
func recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			ctx := r.Context()
			log.FromContext(ctx).ErrorContext(ctx, "Handler panicked",
				log.FieldError, fmt.Sprint(rec),
				log.FieldMethod, r.Method,
				log.FieldPath, r.URL.Path,
				"stack", string(debug.Stack()))
			InternalServerError().Write(w)
		}()
		next.ServeHTTP(w, r)
	})
}

// ownerMiddleware stores the request owner in the context. In single-user
// mode every request belongs to the default owner and the header is ignored.
func ownerMiddleware(multiUser bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !multiUser {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			owner, err := parseOwner(r.Header.Get(OwnerHeader))
			if err != nil {
				BadRequestError(core.PublicMessage(err, err.Error())).Write(w)
				return
			}
			ctx := core.WithOwner(r.Context(), owner)
			logger := log.FromContext(ctx).With(log.FieldOwnerID, int64(owner))
			next.ServeHTTP(w, r.WithContext(log.WithLogger(ctx, logger)))
		})
	}
}

func parseOwner(raw string) (core.OwnerID, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, core.Invalid(OwnerHeader + " must be a positive integer.")
	}
	return core.OwnerID(id), nil
}

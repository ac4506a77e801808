package api

import (
	"net/http"

	"github.com/example/ec-order-sync/internal/api/middleware"
	"github.com/example/ec-order-sync/internal/identity"
	"github.com/example/ec-order-sync/internal/model"
	"go.uber.org/zap"
)

// NewOrderRouter wires the order service API. Every route except the health
// check requires a token the identity service accepts.
func NewOrderRouter(handlers *Handlers, verifier identity.Verifier, logger *zap.Logger) http.Handler {
	mux := http.NewServeMux()
	verified := middleware.VerifyMiddleware(verifier, logger)

	mux.HandleFunc("/healthz", Healthz)

	// Orders
	mux.Handle("/order", verified(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			handlers.CreateOrder(w, r)
		default:
			methodNotAllowed(w)
		}
	})))

	mux.Handle("/order/", verified(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			handlers.GetOrder(w, r)
		default:
			methodNotAllowed(w)
		}
	})))

	mux.Handle("/orders", verified(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			handlers.ListOrders(w, r)
		default:
			methodNotAllowed(w)
		}
	})))

	mux.Handle("/update_order/", verified(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPut:
			handlers.UpdateOrder(w, r)
		default:
			methodNotAllowed(w)
		}
	})))

	mux.Handle("/delete_order/", verified(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodDelete:
			handlers.DeleteOrder(w, r)
		default:
			methodNotAllowed(w)
		}
	})))

	// Products
	mux.Handle("/products", verified(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			handlers.GetProducts(w, r)
		default:
			methodNotAllowed(w)
		}
	})))

	return withMiddleware(mux, logger)
}

// NewIdentityRouter wires the identity service API. The service verifies
// its own tokens in-process.
func NewIdentityRouter(handlers *AuthHandlers, verifier identity.Verifier, logger *zap.Logger) http.Handler {
	mux := http.NewServeMux()
	verified := middleware.VerifyMiddleware(verifier, logger)
	adminOnly := middleware.RequireRole(model.RoleAdmin)

	mux.HandleFunc("/healthz", Healthz)

	// Auth
	mux.HandleFunc("/auth/register", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			handlers.Register(w, r)
		default:
			methodNotAllowed(w)
		}
	})

	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			handlers.Login(w, r)
		default:
			methodNotAllowed(w)
		}
	})

	mux.HandleFunc("/auth/verify", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			handlers.Verify(w, r)
		default:
			methodNotAllowed(w)
		}
	})

	// Users
	mux.Handle("/users/me", verified(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			handlers.Me(w, r)
		default:
			methodNotAllowed(w)
		}
	})))

	mux.Handle("/users/", verified(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPut:
			handlers.UpdateUser(w, r)
		case http.MethodDelete:
			adminOnly(http.HandlerFunc(handlers.DeleteUser)).ServeHTTP(w, r)
		default:
			methodNotAllowed(w)
		}
	})))

	return withMiddleware(mux, logger)
}

// NewCatalogRouter wires the catalog service API.
func NewCatalogRouter(handlers *CatalogHandlers, verifier identity.Verifier, logger *zap.Logger) http.Handler {
	mux := http.NewServeMux()
	verified := middleware.VerifyMiddleware(verifier, logger)
	adminOnly := middleware.RequireRole(model.RoleAdmin)

	mux.HandleFunc("/healthz", Healthz)

	mux.Handle("/product", verified(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			adminOnly(http.HandlerFunc(handlers.CreateProduct)).ServeHTTP(w, r)
		default:
			methodNotAllowed(w)
		}
	})))

	mux.HandleFunc("/products", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			handlers.ListProducts(w, r)
		default:
			methodNotAllowed(w)
		}
	})

	return withMiddleware(mux, logger)
}

func withMiddleware(next http.Handler, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return middleware.RequestID(middleware.Logging(logger)(next))
}

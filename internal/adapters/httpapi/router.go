// Package httpapi is the inbound HTTP adapter, grounded on the teacher's
// internal/adapters/handler package: stdlib net/http.ServeMux method-pattern
// routing, a shared APIResponse envelope, and go-playground/validator for
// request bodies.
package httpapi

import "net/http"

// Router bundles every registered handler group so main can build the mux
// in one call, mirroring the teacher's cmd/gateway/main.go composition.
type Router struct {
	Transactions *TransactionHandler
	DeadLetter   *DeadLetterHandler
	Webhooks     *WebhookHandler
}

func NewRouter(tx *TransactionHandler, dlq *DeadLetterHandler, wh *WebhookHandler) *Router {
	return &Router{Transactions: tx, DeadLetter: dlq, Webhooks: wh}
}

func (r *Router) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	r.Transactions.RegisterRoutes(mux)
	r.DeadLetter.RegisterRoutes(mux)
	r.Webhooks.RegisterRoutes(mux)
	return mux
}

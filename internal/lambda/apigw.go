package lambda

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	chiadapter "github.com/awslabs/aws-lambda-go-api-proxy/chi"
	"github.com/go-chi/chi/v5"
)

// API serves API Gateway REST proxy events through the HTTP router.
type API struct {
	adapter *chiadapter.ChiLambda
	logger  *slog.Logger
}

// NewAPI wraps r for proxy events.
func NewAPI(r *chi.Mux, logger *slog.Logger) *API {
	if logger == nil {
		logger = slog.Default()
	}
	return &API{adapter: chiadapter.New(r), logger: logger}
}

// Serve runs ev through the router. An event that cannot be converted into
// a request, such as one with a body that is not valid base64, gets a 400.
func (a *API) Serve(ctx context.Context, ev events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	resp, err := a.adapter.ProxyWithContext(ctx, ev)
	if err != nil {
		a.logger.WarnContext(ctx, "proxy event rejected", "method", ev.HTTPMethod, "path", ev.Path, "error", err)
		return events.APIGatewayProxyResponse{
			StatusCode: http.StatusBadRequest,
			Headers:    map[string]string{"Content-Type": "application/json"},
			Body:       `{"error":"malformed request"}`,
		}, nil
	}
	return resp, nil
}

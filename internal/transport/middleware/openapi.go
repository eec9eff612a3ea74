package middleware

import (
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/legacy"

	"github.com/frahmantamala/facilities-maintenance/internal"
	"github.com/frahmantamala/facilities-maintenance/internal/transport"
)

// RequestValidator checks request bodies against the OpenAPI document
// before they reach a handler. Paths in the document are relative to
// prefix.
type RequestValidator struct {
	router routers.Router
	prefix string
	base   *transport.BaseHandler
}

func NewRequestValidator(specPath, prefix string, logger *slog.Logger) (*RequestValidator, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromFile(specPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load OpenAPI document: %w", err)
	}
	// Matching is done on the path below prefix.
	doc.Servers = nil

	router, err := legacy.NewRouter(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to build OpenAPI router: %w", err)
	}

	return &RequestValidator{
		router: router,
		prefix: strings.TrimRight(prefix, "/"),
		base:   transport.NewBaseHandler(logger),
	}, nil
}

func (v *RequestValidator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body == nil || r.ContentLength == 0 || r.Method == http.MethodGet {
			next.ServeHTTP(w, r)
			return
		}

		probe := r.Clone(r.Context())
		probe.URL.Path = strings.TrimPrefix(r.URL.Path, v.prefix)
		if probe.URL.Path == "" {
			probe.URL.Path = "/"
		}

		route, pathParams, err := v.router.FindRoute(probe)
		if err != nil {
			var routeErr *routers.RouteError
			if stderrors.As(err, &routeErr) {
				// Unknown to the document; chi decides.
				next.ServeHTTP(w, r)
				return
			}
			v.base.WriteAppError(w, err)
			return
		}

		input := &openapi3filter.RequestValidationInput{
			Request:    r,
			PathParams: pathParams,
			Route:      route,
			Options: &openapi3filter.Options{
				AuthenticationFunc:        openapi3filter.NoopAuthenticationFunc,
				ExcludeRequestQueryParams: true,
			},
		}
		if err := openapi3filter.ValidateRequest(r.Context(), input); err != nil {
			v.base.Logger.Debug("request rejected by OpenAPI validation", "path", r.URL.Path, "error", err)
			v.base.WriteAppError(w, internal.NewValidationFieldError("body", requestErrorMessage(err), internal.ErrCodeInvalidValue))
			return
		}

		next.ServeHTTP(w, r)
	})
}

func requestErrorMessage(err error) string {
	var reqErr *openapi3filter.RequestError
	if stderrors.As(err, &reqErr) {
		if reqErr.Err != nil {
			return reqErr.Err.Error()
		}
		return reqErr.Reason
	}
	return err.Error()
}

package rest_test

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"testing"

	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/tnyamukapa/rentpay/internal/catalog"
	"github.com/tnyamukapa/rentpay/internal/escrow"
	"github.com/tnyamukapa/rentpay/internal/fees"
	"github.com/tnyamukapa/rentpay/internal/payment"
	"github.com/tnyamukapa/rentpay/internal/refund"
	"github.com/tnyamukapa/rentpay/internal/transport"
	"github.com/tnyamukapa/rentpay/internal/transport/rest"
	"github.com/tnyamukapa/rentpay/internal/transport/swagger"
)

func TestRestTransport(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Rest Transport Suite")
}

const contractPath = "../../../api/openapi.yml"

// normalizeRoute maps chi's walk output onto OpenAPI path templates:
// subrouter roots come back with a trailing slash.
func normalizeRoute(route string) string {
	if len(route) > 1 && strings.HasSuffix(route, "/") {
		return strings.TrimSuffix(route, "/")
	}
	return route
}

func isContractRoute(route string) bool {
	return strings.HasPrefix(route, "/api/v1") || strings.HasPrefix(route, "/webhook")
}

var _ = Describe("Route registration", func() {
	var (
		router *chi.Mux
		lg     *slog.Logger
		mux    map[string]map[string]bool // path -> method -> mounted
	)

	BeforeEach(func() {
		lg = slog.Default()
		router = chi.NewRouter()

		base := transport.NewBaseHandler(lg)
		err := rest.RegisterAllRoutes(
			router,
			nil,
			nil,
			contractPath,
			"*",
			catalog.NewHandler(nil),
			fees.NewHandler(nil, nil),
			payment.NewHandler(nil, lg),
			payment.NewWebhookHandler(base, nil, nil, lg),
			escrow.NewHandler(nil, lg),
			refund.NewHandler(nil, lg),
			lg,
		)
		Expect(err).NotTo(HaveOccurred())

		mux = make(map[string]map[string]bool)
		err = chi.Walk(router, func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
			route = normalizeRoute(route)
			if mux[route] == nil {
				mux[route] = make(map[string]bool)
			}
			mux[route][method] = true
			return nil
		})
		Expect(err).NotTo(HaveOccurred())
	})

	It("mounts every API route the contract documents", func() {
		doc, err := swagger.LoadContract(context.Background(), contractPath)
		Expect(err).NotTo(HaveOccurred())

		for path, item := range doc.Paths.Map() {
			if !isContractRoute(path) {
				continue
			}
			methods, ok := mux[path]
			Expect(ok).To(BeTrue(), "documented path %s is not mounted", path)
			for method := range item.Operations() {
				Expect(methods[method]).To(BeTrue(),
					"documented operation %s %s is not mounted", method, path)
			}
		}
	})

	It("documents every mounted API route", func() {
		doc, err := swagger.LoadContract(context.Background(), contractPath)
		Expect(err).NotTo(HaveOccurred())

		for route, methods := range mux {
			if !isContractRoute(route) {
				continue
			}
			item := doc.Paths.Find(route)
			Expect(item).NotTo(BeNil(), "mounted route %s is missing from the contract", route)
			for method := range methods {
				Expect(item.GetOperation(method)).NotTo(BeNil(),
					"mounted operation %s %s is missing from the contract", method, route)
			}
		}
	})

	It("rejects a contract path that does not exist", func() {
		router := chi.NewRouter()
		err := rest.RegisterAllRoutes(
			router, nil, nil, "testdata/missing.yml", "*",
			nil, nil, nil, nil, nil, nil, lg,
		)
		Expect(err).To(HaveOccurred())
	})

	It("serves the raw contract and health endpoints outside the API prefix", func() {
		Expect(mux["/openapi.yml"][http.MethodGet]).To(BeTrue())
		Expect(mux["/health"][http.MethodGet]).To(BeTrue())
		Expect(mux["/ping"][http.MethodGet]).To(BeTrue())
	})
})

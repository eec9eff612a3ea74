package calltype_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/frahmantamala/facilities-maintenance/internal/calltype"
	calltypePostgres "github.com/frahmantamala/facilities-maintenance/internal/calltype/postgres"
	calltypeDatamodel "github.com/frahmantamala/facilities-maintenance/internal/core/datamodel/calltype"
	"github.com/frahmantamala/facilities-maintenance/internal/transport"
)

var _ = Describe("Call Type Handler Integration", func() {
	var (
		db      *gorm.DB
		handler *calltype.Handler
	)

	BeforeEach(func() {
		var err error
		slogger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

		db, err = gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(db.AutoMigrate(&calltypeDatamodel.CallType{})).To(Succeed())

		repo := calltypePostgres.NewCallTypeRepository(db)
		service := calltype.NewService(repo, slogger)
		handler = calltype.NewHandler(&transport.BaseHandler{Logger: slogger}, service)

		ctx := context.Background()
		_, err = service.Create(ctx, "plumbing", "Leaks, blockages and geysers")
		Expect(err).NotTo(HaveOccurred())
		_, err = service.Create(ctx, "electrical", "Power, lighting and sockets")
		Expect(err).NotTo(HaveOccurred())
		_, err = service.Create(ctx, "telex", "Retired")
		Expect(err).NotTo(HaveOccurred())
		Expect(repo.Deactivate(ctx, "telex")).To(Succeed())
	})

	It("should list the active catalog on GET /call-types", func() {
		req := httptest.NewRequest(http.MethodGet, "/call-types", nil)
		w := httptest.NewRecorder()

		handler.GetCallTypes(w, req)

		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(w.Header().Get("Content-Type")).To(ContainSubstring("application/json"))

		var response calltype.CallTypesResponse
		Expect(json.NewDecoder(w.Body).Decode(&response)).To(Succeed())

		names := make([]string, len(response.CallTypes))
		for i, ct := range response.CallTypes {
			names[i] = ct.Name
		}
		Expect(names).To(Equal([]string{"electrical", "plumbing"}))
	})
})

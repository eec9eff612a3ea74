package directory_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/frahmantamala/facilities-maintenance/internal/auth"
	"github.com/frahmantamala/facilities-maintenance/internal/auth/directory"
	userDatamodel "github.com/frahmantamala/facilities-maintenance/internal/core/datamodel/user"
)

var _ = Describe("Local directory", func() {
	var (
		db  *gorm.DB
		dir *directory.Local
	)

	BeforeEach(func() {
		var err error
		db, err = gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		Expect(err).NotTo(HaveOccurred())
		sqlDB, err := db.DB()
		Expect(err).NotTo(HaveOccurred())
		sqlDB.SetMaxOpenConns(1)
		Expect(db.AutoMigrate(&userDatamodel.Identity{})).To(Succeed())

		hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
		Expect(err).NotTo(HaveOccurred())
		Expect(db.Create(&userDatamodel.Identity{
			Username:     "thandi",
			DisplayName:  "Thandi Mokoena",
			Email:        "thandi@example.org",
			Role:         string(auth.RoleCoordinator),
			Status:       "active",
			PasswordHash: string(hash),
		}).Error).To(Succeed())
		Expect(db.Create(&userDatamodel.Identity{
			Username:    "jit.only",
			DisplayName: "No Password",
			Role:        string(auth.RoleUser),
			Status:      "active",
		}).Error).To(Succeed())

		dir = directory.NewLocal(db)
	})

	Describe("Authenticate", func() {
		It("verifies a matching password regardless of username case", func() {
			identity, err := dir.Authenticate(context.Background(), "  Thandi ", "s3cret")
			Expect(err).NotTo(HaveOccurred())
			Expect(identity.Username).To(Equal("thandi"))
			Expect(identity.Groups).To(ConsistOf(string(auth.RoleCoordinator)))
		})

		It("rejects a wrong password", func() {
			_, err := dir.Authenticate(context.Background(), "thandi", "nope")
			Expect(err).To(MatchError(auth.ErrBadCredentials))
		})

		It("reports an unknown username as bad credentials", func() {
			_, err := dir.Authenticate(context.Background(), "nobody", "s3cret")
			Expect(err).To(MatchError(auth.ErrBadCredentials))
		})

		It("rejects identities without a local password", func() {
			_, err := dir.Authenticate(context.Background(), "jit.only", "")
			Expect(err).To(MatchError(auth.ErrBadCredentials))
		})

		It("reports a broken store as unreachable", func() {
			sqlDB, err := db.DB()
			Expect(err).NotTo(HaveOccurred())
			Expect(sqlDB.Close()).To(Succeed())

			_, err = dir.Authenticate(context.Background(), "thandi", "s3cret")
			Expect(errors.Is(err, auth.ErrDirectoryUnreachable)).To(BeTrue())
		})
	})

	Describe("Lookup", func() {
		It("returns the stored record", func() {
			record, err := dir.Lookup(context.Background(), "THANDI")
			Expect(err).NotTo(HaveOccurred())
			Expect(record.Email).To(Equal("thandi@example.org"))
		})

		It("maps a missing row to not found", func() {
			_, err := dir.Lookup(context.Background(), "ghost")
			Expect(err).To(MatchError(auth.ErrDirectoryNotFound))
		})
	})
})

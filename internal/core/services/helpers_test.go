package services

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/vncsmyrnk/devicesession/internal/adapters/repository/memory"
	"github.com/vncsmyrnk/devicesession/internal/core/domain"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

const testPassword = "s3cret-password"

func seedUser(repo *memory.UserRepository, email string) *domain.User {
	tenant := domain.Tenant{ID: uuid.New(), Name: "Acme", Status: domain.TenantStatusActive}
	repo.AddTenant(tenant)

	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	if err != nil {
		panic(err)
	}
	return repo.AddUser(domain.User{
		Email:        email,
		Name:         "Test",
		PasswordHash: string(hash),
		Status:       domain.UserStatusActive,
		Role:         domain.RoleManager,
		TenantID:     &tenant.ID,
	})
}

func testDevice(id string) domain.DeviceInfo {
	return domain.DeviceInfo{DeviceID: id, Platform: "android", Name: "Pixel", AppVersion: "3.1.0"}
}

package memory

import (
	"context"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"bengkelpos/internal/domain"
	"bengkelpos/internal/store"
	"bengkelpos/internal/xid"
)

// Store is an in-process implementation of store.Repository. A single
// mutex stands in for the conditional writes the postgres store uses;
// the observable semantics are the same.
type Store struct {
	mu            sync.RWMutex
	stockByKey    map[string]*domain.StockRecord
	stockByID     map[string]*domain.StockRecord
	movements     []domain.StockMovement
	transfersByID map[string]*domain.StockTransfer
	salesByID     map[string]*domain.SalesOrder
	servicesByID  map[string]*domain.ServiceOrder
	usersByName   map[string]domain.UserAccount
	productsByID  map[string]domain.Product
}

func New() *Store {
	return &Store{
		stockByKey:    make(map[string]*domain.StockRecord),
		stockByID:     make(map[string]*domain.StockRecord),
		movements:     make([]domain.StockMovement, 0, 128),
		transfersByID: make(map[string]*domain.StockTransfer),
		salesByID:     make(map[string]*domain.SalesOrder),
		servicesByID:  make(map[string]*domain.ServiceOrder),
		usersByName:   make(map[string]domain.UserAccount),
		productsByID:  make(map[string]domain.Product),
	}
}

// PutProduct registers a catalog entry. The engines treat the catalog as
// read-only; this exists for seeding and tests.
func (s *Store) PutProduct(p domain.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.productsByID[p.ID] = p
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.productsByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

// seedUsers builds the initial accounts for dev/demo mode. Credentials
// come from SEED_ADMIN_PASSWORD / SEED_SALES_PASSWORD / SEED_MECHANIC_PASSWORD;
// hardcoded dev defaults are used with a warning when unset. Production
// deployments use PostgreSQL and never hit this path.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	salesPwd := envOr("SEED_SALES_PASSWORD", "sales123")
	mechanicPwd := envOr("SEED_MECHANIC_PASSWORD", "mechanic123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_SALES_PASSWORD") == "" || os.Getenv("SEED_MECHANIC_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD, SEED_SALES_PASSWORD and SEED_MECHANIC_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
		branchID string
	}{
		{"admin", adminPwd, domain.RoleAdmin, ""},
		{"sales", salesPwd, domain.RoleSalesperson, "branch-main"},
		{"mechanic", mechanicPwd, domain.RoleMechanic, "branch-main"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			ID:        xid.New("usr"),
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			BranchID:  u.branchID,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// NewSeeded returns a store pre-loaded with demo stock across two
// branches, used when no DATABASE_URL is configured.
func NewSeeded() *Store {
	s := New()
	s.usersByName = seedUsers()

	for _, p := range []domain.Product{
		{ID: "prd-oil-filter", SKU: "FLT-001", Name: "Oil Filter", Category: "filters", Active: true},
		{ID: "prd-brake-pad", SKU: "BRK-014", Name: "Brake Pad Set", Category: "brakes", Active: true},
		{ID: "prd-spark-plug", SKU: "IGN-062", Name: "Spark Plug", Category: "ignition", Active: true},
		{ID: "prd-engine-oil", SKU: "LUB-110", Name: "Engine Oil 1L", Category: "lubricants", Active: true},
	} {
		s.productsByID[p.ID] = p
	}

	now := time.Now().UTC()
	seed := []struct {
		productID    string
		branchID     string
		quantity     int
		costPrice    int64
		sellingPrice int64
		reorderPoint int
	}{
		{"prd-oil-filter", "branch-main", 40, 35000, 55000, 10},
		{"prd-brake-pad", "branch-main", 24, 120000, 185000, 6},
		{"prd-spark-plug", "branch-main", 80, 18000, 30000, 20},
		{"prd-engine-oil", "branch-main", 60, 65000, 95000, 15},
		{"prd-oil-filter", "branch-north", 12, 35000, 56000, 8},
		{"prd-engine-oil", "branch-north", 20, 65000, 98000, 10},
	}
	for _, item := range seed {
		rec := &domain.StockRecord{
			ID:           xid.New("stk"),
			ProductID:    item.productID,
			BranchID:     item.branchID,
			Quantity:     item.quantity,
			CostPrice:    decimal.NewFromInt(item.costPrice),
			SellingPrice: decimal.NewFromInt(item.sellingPrice),
			ReorderPoint: item.reorderPoint,
			ReorderQty:   item.reorderPoint * 2,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		s.stockByKey[stockKey(item.productID, item.branchID)] = rec
		s.stockByID[rec.ID] = rec
		s.movements = append(s.movements, domain.StockMovement{
			ID:             xid.New("mov"),
			StockRecordID:  rec.ID,
			ProductID:      rec.ProductID,
			BranchID:       rec.BranchID,
			Type:           domain.MovementInitial,
			QuantityChange: rec.Quantity,
			QuantityBefore: 0,
			QuantityAfter:  rec.Quantity,
			PerformedBy:    "seed",
			CreatedAt:      now,
		})
	}
	return s
}

func stockKey(productID, branchID string) string {
	return productID + "|" + branchID
}

func (s *Store) CreateUser(_ context.Context, u domain.UserAccount) error {
	u.Username = strings.ToLower(strings.TrimSpace(u.Username))
	if u.Username == "" || strings.TrimSpace(u.Password) == "" {
		return store.ErrValidation
	}
	if u.ID == "" {
		u.ID = xid.New("usr")
	}
	if u.Role == "" {
		u.Role = domain.RoleSalesperson
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.usersByName[u.Username]; exists {
		return store.ErrDuplicate
	}
	s.usersByName[u.Username] = u
	return nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (*domain.UserAccount, error) {
	username = strings.ToLower(strings.TrimSpace(username))

	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.usersByName[username]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := u
	return &copied, nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByName))
	for _, u := range s.usersByName {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users, nil
}

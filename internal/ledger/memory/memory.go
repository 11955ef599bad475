package memory

import (
	"context"
	"fmt"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/ekameshwar10/Laundry-track/internal/domain"
	"github.com/ekameshwar10/Laundry-track/internal/ledger"
	"github.com/ekameshwar10/Laundry-track/internal/xid"
)

// Store is the authoritative in-memory record log. Records live in a slice in
// insertion order; a single RWMutex serializes writes so the delivery pool
// check and the verification transition are atomic with their commits.
type Store struct {
	mu              sync.RWMutex
	records         []*domain.Record
	recordsByID     map[string]*domain.Record
	usersByUsername map[string]domain.UserAccount
}

// seedUsers builds the initial user accounts for dev/demo mode. Credentials
// are read from SEED_COLLECTOR1_PASSWORD, SEED_COLLECTOR2_PASSWORD and
// SEED_FACTORY_PASSWORD environment variables. If unset, hardcoded dev
// defaults are used with a warning printed to stdout.
func seedUsers() map[string]domain.UserAccount {
	collector1Pwd := envOr("SEED_COLLECTOR1_PASSWORD", "collect123")
	collector2Pwd := envOr("SEED_COLLECTOR2_PASSWORD", "collect456")
	factoryPwd := envOr("SEED_FACTORY_PASSWORD", "factory123")
	if os.Getenv("SEED_COLLECTOR1_PASSWORD") == "" || os.Getenv("SEED_COLLECTOR2_PASSWORD") == "" || os.Getenv("SEED_FACTORY_PASSWORD") == "" {
		log.Println("[memory-ledger] WARNING: using default dev credentials. Set SEED_COLLECTOR1_PASSWORD, SEED_COLLECTOR2_PASSWORD and SEED_FACTORY_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username    string
		password    string
		displayName string
		role        string
	}{
		{"collector1", collector1Pwd, "Collector One", domain.RoleCollector},
		{"collector2", collector2Pwd, "Collector Two", domain.RoleCollector},
		{"factory", factoryPwd, "Factory Manager", domain.RoleReceiver},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-ledger] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:    u.username,
			Password:    string(hash),
			DisplayName: u.displayName,
			Role:        u.role,
			Active:      true,
			CreatedAt:   now,
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

func New() *Store {
	return &Store{
		records:         make([]*domain.Record, 0, 128),
		recordsByID:     make(map[string]*domain.Record),
		usersByUsername: make(map[string]domain.UserAccount),
	}
}

func NewSeeded() *Store {
	s := New()
	s.usersByUsername = seedUsers()
	return s
}

// Restore replaces the log with records loaded from an archiver. Intended for
// startup rehydration only, before the store is serving requests.
func (s *Store) Restore(records []domain.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = make([]*domain.Record, 0, len(records))
	s.recordsByID = make(map[string]*domain.Record, len(records))
	for i := range records {
		rec := cloneRecord(&records[i])
		s.records = append(s.records, rec)
		s.recordsByID[rec.ID] = rec
	}
}

func (s *Store) AppendRecord(_ context.Context, rec domain.Record) (*domain.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec.Customer = strings.TrimSpace(rec.Customer)
	rec.InCharge = strings.TrimSpace(rec.InCharge)

	if !domain.IsKnownCustomer(rec.Customer) {
		return nil, fmt.Errorf("%w: unknown customer %q", ledger.ErrInvalidRecord, rec.Customer)
	}
	if rec.Type != domain.TypeCollection && rec.Type != domain.TypeDelivery {
		return nil, fmt.Errorf("%w: unknown type %q", ledger.ErrInvalidRecord, rec.Type)
	}
	if rec.CollectorID == "" {
		return nil, fmt.Errorf("%w: collector required", ledger.ErrInvalidRecord)
	}
	if rec.InCharge == "" {
		return nil, fmt.Errorf("%w: in-charge name required", ledger.ErrInvalidRecord)
	}
	lines, err := normalizeLines(rec.Items)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: at least one item with positive quantity required", ledger.ErrInvalidRecord)
	}
	rec.Items = lines

	// Deliveries are revalidated against the verified pool here, under the
	// same lock that commits the record.
	if rec.Type == domain.TypeDelivery {
		for _, line := range rec.Items {
			available := s.netAvailableLocked(rec.Customer, line.Name)
			if line.Qty > available {
				return nil, fmt.Errorf("%w: %s for %s (requested %d, available %d)",
					ledger.ErrPoolExceeded, line.Name, rec.Customer, line.Qty, available)
			}
		}
	}

	if rec.ID == "" {
		rec.ID = xid.New("rec")
	}
	if _, exists := s.recordsByID[rec.ID]; exists {
		return nil, fmt.Errorf("%w: duplicate id %s", ledger.ErrInvalidRecord, rec.ID)
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	rec.VerificationStatus = domain.StatusPending
	rec.VerifiedItems = nil
	rec.VerifiedBy = ""
	rec.VerifiedAt = nil
	rec.Remark = ""

	stored := cloneRecord(&rec)
	s.records = append(s.records, stored)
	s.recordsByID[stored.ID] = stored

	return cloneRecord(stored), nil
}

func (s *Store) ApplyVerification(_ context.Context, id string, verifiedItems []domain.ItemLine, remark string, verifiedBy string, at time.Time) (*domain.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.recordsByID[id]
	if !ok {
		return nil, ledger.ErrNotFound
	}
	if rec.VerificationStatus != domain.StatusPending {
		return nil, fmt.Errorf("%w: record %s is %s", ledger.ErrInvalidTransition, id, rec.VerificationStatus)
	}

	lines, err := normalizeLines(verifiedItems)
	if err != nil {
		return nil, err
	}
	remark = strings.TrimSpace(remark)

	status := domain.StatusApproved
	if ledger.HasDeviation(rec.Items, lines) {
		if remark == "" {
			return nil, ledger.ErrMissingRemark
		}
		status = domain.StatusDeviated
	}

	// All overlay fields land together; nothing is written before this point.
	if at.IsZero() {
		at = time.Now().UTC()
	}
	verifiedAt := at.UTC()
	rec.VerificationStatus = status
	rec.VerifiedItems = lines
	rec.VerifiedBy = verifiedBy
	rec.VerifiedAt = &verifiedAt
	rec.Remark = remark

	return cloneRecord(rec), nil
}

func (s *Store) GetRecordByID(_ context.Context, id string) (*domain.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.recordsByID[id]
	if !ok {
		return nil, ledger.ErrNotFound
	}
	return cloneRecord(rec), nil
}

func (s *Store) ListRecords(_ context.Context, filter domain.RecordListFilter) ([]domain.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Record, 0, len(s.records))
	for _, rec := range s.records {
		if filter.CollectorID != "" && rec.CollectorID != filter.CollectorID {
			continue
		}
		if filter.Customer != "" && rec.Customer != filter.Customer {
			continue
		}
		if filter.Type != "" && rec.Type != filter.Type {
			continue
		}
		if filter.Status != "" && rec.VerificationStatus != filter.Status {
			continue
		}
		if filter.From != nil && rec.CreatedAt.Before(*filter.From) {
			continue
		}
		if filter.To != nil && rec.CreatedAt.After(*filter.To) {
			continue
		}
		out = append(out, *cloneRecord(rec))
	}
	return out, nil
}

func (s *Store) NetAvailable(_ context.Context, customer string, item string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.netAvailableLocked(customer, item), nil
}

// netAvailableLocked requires at least a read lock held by the caller.
func (s *Store) netAvailableLocked(customer string, item string) int {
	collected := 0
	delivered := 0
	for _, rec := range s.records {
		if rec.Customer != customer || !domain.IsVerified(rec.VerificationStatus) {
			continue
		}
		for _, line := range ledger.EffectiveItems(*rec) {
			if line.Name != item {
				continue
			}
			switch rec.Type {
			case domain.TypeCollection:
				collected += line.Qty
			case domain.TypeDelivery:
				delivered += line.Qty
			}
		}
	}
	if collected <= delivered {
		return 0
	}
	return collected - delivered
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return ledger.ErrInvalidRecord
	}
	if _, exists := s.usersByUsername[username]; exists {
		return ledger.ErrInvalidRecord
	}
	user.Username = username
	if user.Role == "" {
		user.Role = domain.RoleCollector
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmpString(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return ledger.ErrInvalidRecord
	}
	user, exists := s.usersByUsername[username]
	if !exists {
		return ledger.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

// normalizeLines validates item names against the catalog and drops
// zero-quantity lines, merging duplicates by name.
func normalizeLines(lines []domain.ItemLine) ([]domain.ItemLine, error) {
	byName := make(map[string]int, len(lines))
	order := make([]string, 0, len(lines))
	for _, line := range lines {
		name := strings.TrimSpace(line.Name)
		if !domain.IsKnownItem(name) {
			return nil, fmt.Errorf("%w: unknown item %q", ledger.ErrInvalidRecord, line.Name)
		}
		if line.Qty < 0 {
			return nil, fmt.Errorf("%w: negative quantity for %s", ledger.ErrInvalidRecord, name)
		}
		if line.Qty == 0 {
			continue
		}
		if _, seen := byName[name]; !seen {
			order = append(order, name)
		}
		byName[name] += line.Qty
	}
	out := make([]domain.ItemLine, 0, len(order))
	for _, name := range order {
		out = append(out, domain.ItemLine{Name: name, Qty: byName[name]})
	}
	return out, nil
}

func cmpString(a string, b string) int {
	if a == b {
		return 0
	}
	if a < b {
		return -1
	}
	return 1
}

func cloneRecord(src *domain.Record) *domain.Record {
	if src == nil {
		return nil
	}
	dup := *src
	items := make([]domain.ItemLine, len(src.Items))
	copy(items, src.Items)
	dup.Items = items
	if src.VerifiedItems != nil {
		verified := make([]domain.ItemLine, len(src.VerifiedItems))
		copy(verified, src.VerifiedItems)
		dup.VerifiedItems = verified
	}
	if src.VerifiedAt != nil {
		at := *src.VerifiedAt
		dup.VerifiedAt = &at
	}
	return &dup
}

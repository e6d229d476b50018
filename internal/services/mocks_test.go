package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/Faisal-Alqabbani/BUILD-SAUDI/internal/config"
	"github.com/Faisal-Alqabbani/BUILD-SAUDI/internal/db"
	"github.com/Faisal-Alqabbani/BUILD-SAUDI/internal/models"
	"github.com/Faisal-Alqabbani/BUILD-SAUDI/internal/repository"
	"github.com/Faisal-Alqabbani/BUILD-SAUDI/internal/tasks"
)

var fixedNow = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

func testConfig() *config.Config {
	return &config.Config{
		JwtSecret:        "test-secret",
		JwtTTL:           time.Hour,
		PasswordRegexp:   "^.{8,}$",
		ListLimit:        100,
		MaxUploadImages:  10,
		ImageMaxSizeMB:   5,
		AllowAdminSignup: false,
	}
}

// pngBytes is enough of a PNG header for content sniffing.
var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

func pngUpload(name string) Upload {
	return Upload{Filename: name, ContentType: "image/png", Data: pngBytes}
}

// --- Transactions ---

// passThroughTx runs fn directly and counts the calls.
type passThroughTx struct {
	calls int
}

func (t *passThroughTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	t.calls++
	return fn(ctx)
}

// --- In-memory repositories ---

type memPropertyRepo struct {
	mu         sync.Mutex
	docs       map[primitive.ObjectID]*models.Property
	lastFilter bson.M
	replaceErr error
	// beforeReplace runs ahead of ReplaceIfUnchanged, outside the lock.
	beforeReplace func()
}

func newMemPropertyRepo(props ...*models.Property) *memPropertyRepo {
	r := &memPropertyRepo{docs: map[primitive.ObjectID]*models.Property{}}
	for _, p := range props {
		r.docs[p.ID] = p.Clone()
	}
	return r
}

func (r *memPropertyRepo) get(id primitive.ObjectID) *models.Property {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.docs[id]; ok {
		return p.Clone()
	}
	return nil
}

func (r *memPropertyRepo) Insert(_ context.Context, p *models.Property) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p.GenIDIfEmpty()
	r.docs[p.ID] = p.Clone()
	return nil
}

func (r *memPropertyRepo) FindByID(_ context.Context, id primitive.ObjectID) (*models.Property, error) {
	if p := r.get(id); p != nil {
		return p, nil
	}
	return nil, repository.ErrNotFound
}

func (r *memPropertyRepo) Find(_ context.Context, filter bson.M, _ int64) ([]models.Property, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastFilter = filter
	out := []models.Property{}
	for _, p := range r.docs {
		out = append(out, *p.Clone())
	}
	return out, nil
}

func (r *memPropertyRepo) ReplaceIfUnchanged(_ context.Context, p *models.Property, before *models.Property) error {
	if r.beforeReplace != nil {
		r.beforeReplace()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.replaceErr != nil {
		return r.replaceErr
	}
	cur, ok := r.docs[p.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if cur.Status != before.Status || !cur.UpdatedAt.Equal(before.UpdatedAt) {
		return repository.ErrStale
	}
	r.docs[p.ID] = p.Clone()
	return nil
}

func (r *memPropertyRepo) AppendImages(_ context.Context, id primitive.ObjectID, images []models.PropertyImage, terminal []models.PropertyStatus, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.docs[id]
	if !ok {
		return repository.ErrNotFound
	}
	for _, s := range terminal {
		if cur.Status == s {
			return repository.ErrStale
		}
	}
	cur.Images = append(cur.Images, images...)
	cur.UpdatedAt = now
	return nil
}

type memOfferRepo struct {
	mu   sync.Mutex
	docs map[primitive.ObjectID]*models.PriceOffer
	// beforeInsert runs ahead of Insert, outside the lock.
	beforeInsert func()
}

func newMemOfferRepo(offers ...*models.PriceOffer) *memOfferRepo {
	r := &memOfferRepo{docs: map[primitive.ObjectID]*models.PriceOffer{}}
	for _, o := range offers {
		c := *o
		r.docs[o.ID] = &c
	}
	return r
}

func (r *memOfferRepo) get(id primitive.ObjectID) models.PriceOffer {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.docs[id]
}

func (r *memOfferRepo) Insert(_ context.Context, o *models.PriceOffer) error {
	if r.beforeInsert != nil {
		r.beforeInsert()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, cur := range r.docs {
		if o.Status == models.OfferPending && cur.Status == models.OfferPending &&
			cur.Property == o.Property && cur.Contractor == o.Contractor {
			return &repository.DuplicateError{Field: db.OnePendingOfferIndex}
		}
	}
	o.GenIDIfEmpty()
	c := *o
	r.docs[o.ID] = &c
	return nil
}

func (r *memOfferRepo) FindByID(_ context.Context, id primitive.ObjectID) (*models.PriceOffer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.docs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *o
	return &c, nil
}

func (r *memOfferRepo) Find(_ context.Context, filter bson.M, _ int64) ([]models.PriceOffer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []models.PriceOffer{}
	for _, o := range r.docs {
		if v, ok := filter["property"]; ok && v != o.Property {
			continue
		}
		if v, ok := filter["contractor"]; ok && v != o.Contractor {
			continue
		}
		if v, ok := filter["homeowner"]; ok && v != o.Homeowner {
			continue
		}
		if v, ok := filter["status"]; ok && v != o.Status {
			continue
		}
		out = append(out, *o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProposedAt.After(out[j].ProposedAt) })
	return out, nil
}

func (r *memOfferRepo) HasPending(_ context.Context, propertyID, contractorID primitive.ObjectID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.docs {
		if o.Property == propertyID && o.Contractor == contractorID && o.Status == models.OfferPending {
			return true, nil
		}
	}
	return false, nil
}

func (r *memOfferRepo) Decide(_ context.Context, id primitive.ObjectID, status models.OfferStatus, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.docs[id]
	if !ok {
		return repository.ErrNotFound
	}
	if o.Status != models.OfferPending {
		return repository.ErrStale
	}
	o.Status = status
	o.DecidedAt = &at
	o.UpdatedAt = at
	return nil
}

func (r *memOfferRepo) RejectOtherPending(_ context.Context, propertyID, keep primitive.ObjectID, at time.Time) ([]models.PriceOffer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	losing := []models.PriceOffer{}
	for id, o := range r.docs {
		if id == keep || o.Property != propertyID || o.Status != models.OfferPending {
			continue
		}
		o.Status = models.OfferRejected
		decided := at
		o.DecidedAt = &decided
		o.UpdatedAt = at
		losing = append(losing, *o)
	}
	return losing, nil
}

type memTransitionRepo struct {
	mu      sync.Mutex
	records []models.TransitionRecord
}

func (r *memTransitionRepo) Insert(_ context.Context, rec *models.TransitionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec.ID.IsZero() {
		rec.ID = primitive.NewObjectID()
	}
	r.records = append(r.records, *rec)
	return nil
}

func (r *memTransitionRepo) ListByProperty(_ context.Context, propertyID primitive.ObjectID) ([]models.TransitionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []models.TransitionRecord{}
	for _, rec := range r.records {
		if rec.Property == propertyID {
			out = append(out, rec)
		}
	}
	return out, nil
}

type memCompletionRepo struct {
	mu        sync.Mutex
	images    []models.CompletionImage
	insertErr error
}

func (r *memCompletionRepo) InsertMany(_ context.Context, images []models.CompletionImage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.insertErr != nil {
		return r.insertErr
	}
	r.images = append(r.images, images...)
	return nil
}

func (r *memCompletionRepo) ListByProperty(_ context.Context, propertyID primitive.ObjectID) ([]models.CompletionImage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []models.CompletionImage{}
	for _, img := range r.images {
		if img.Property == propertyID {
			out = append(out, img)
		}
	}
	return out, nil
}

type memUserRepo struct {
	mu    sync.Mutex
	users map[primitive.ObjectID]*models.User
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: map[primitive.ObjectID]*models.User{}}
}

func (r *memUserRepo) Insert(_ context.Context, u *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if existing.Username == u.Username {
			return &repository.DuplicateError{Field: "username"}
		}
		if existing.Email == u.Email {
			return &repository.DuplicateError{Field: "email"}
		}
	}
	u.GenIDIfEmpty()
	c := *u
	r.users[u.ID] = &c
	return nil
}

func (r *memUserRepo) FindByID(_ context.Context, id primitive.ObjectID) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		c := *u
		return &c, nil
	}
	return nil, repository.ErrNotFound
}

func (r *memUserRepo) FindByUsername(_ context.Context, username string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Username == username {
			c := *u
			return &c, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memUserRepo) SetContractorID(_ context.Context, userID, contractorID primitive.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return repository.ErrNotFound
	}
	u.ContractorID = &contractorID
	return nil
}

type memContractorRepo struct {
	mu          sync.Mutex
	contractors map[primitive.ObjectID]*models.Contractor
}

func newMemContractorRepo() *memContractorRepo {
	return &memContractorRepo{contractors: map[primitive.ObjectID]*models.Contractor{}}
}

func (r *memContractorRepo) Insert(_ context.Context, c *models.Contractor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c.GenIDIfEmpty()
	cp := *c
	r.contractors[c.ID] = &cp
	return nil
}

func (r *memContractorRepo) FindByID(_ context.Context, id primitive.ObjectID) (*models.Contractor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.contractors[id]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, repository.ErrNotFound
}

func (r *memContractorRepo) FindByIDs(ctx context.Context, ids []primitive.ObjectID) ([]models.Contractor, error) {
	out := []models.Contractor{}
	for _, id := range ids {
		if c, err := r.FindByID(ctx, id); err == nil {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (r *memContractorRepo) List(_ context.Context, limit int64) ([]models.Contractor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []models.Contractor{}
	for _, c := range r.contractors {
		if limit > 0 && int64(len(out)) >= limit {
			break
		}
		out = append(out, *c)
	}
	return out, nil
}

// --- Mocks ---

type MockDispatcher struct {
	mock.Mock
}

func (m *MockDispatcher) Notify(ctx context.Context, n tasks.Notification) error {
	return m.Called(ctx, n).Error(0)
}

func (m *MockDispatcher) ProcessImage(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

type MockStorage struct {
	mock.Mock
}

func (m *MockStorage) Upload(ctx context.Context, prefix string, data []byte, contentType string) (string, error) {
	args := m.Called(ctx, prefix, data, contentType)
	return args.String(0), args.Error(1)
}

func (m *MockStorage) Download(ctx context.Context, key string) ([]byte, string, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, "", args.Error(2)
	}
	return args.Get(0).([]byte), args.String(1), args.Error(2)
}

func (m *MockStorage) Put(ctx context.Context, key string, data []byte, contentType string) error {
	return m.Called(ctx, key, data, contentType).Error(0)
}

func (m *MockStorage) Delete(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

func (m *MockStorage) URL(key string) string {
	return "https://cdn.example.com/" + key
}

type MockPropertyCache struct {
	mock.Mock
}

func (m *MockPropertyCache) Get(ctx context.Context, id primitive.ObjectID) (*models.Property, bool) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Bool(1)
	}
	return args.Get(0).(*models.Property), args.Bool(1)
}

func (m *MockPropertyCache) Set(ctx context.Context, p *models.Property) {
	m.Called(ctx, p)
}

func (m *MockPropertyCache) Invalidate(ctx context.Context, id primitive.ObjectID) {
	m.Called(ctx, id)
}

type MockTokenStore struct {
	mock.Mock
}

func (m *MockTokenStore) Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error {
	return m.Called(ctx, tokenID, expiresAt).Error(0)
}

func (m *MockTokenStore) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	args := m.Called(ctx, tokenID)
	return args.Bool(0), args.Error(1)
}

// --- Fixtures ---

type fixture struct {
	homeowner   models.Actor
	otherOwner  models.Actor
	admin       models.Actor
	contractor1 models.Actor
	contractor2 models.Actor
}

func newFixture() fixture {
	return fixture{
		homeowner:   models.Actor{UserID: primitive.NewObjectID(), Role: models.RoleHomeowner},
		otherOwner:  models.Actor{UserID: primitive.NewObjectID(), Role: models.RoleHomeowner},
		admin:       models.Actor{UserID: primitive.NewObjectID(), Role: models.RoleAdmin},
		contractor1: models.Actor{UserID: primitive.NewObjectID(), Role: models.RoleContractor, ContractorID: primitive.NewObjectID()},
		contractor2: models.Actor{UserID: primitive.NewObjectID(), Role: models.RoleContractor, ContractorID: primitive.NewObjectID()},
	}
}

func newProperty(owner models.Actor, status models.PropertyStatus, assigned *models.Actor) *models.Property {
	p := &models.Property{
		Base:         models.NewBase(fixedNow.Add(-48 * time.Hour)),
		Title:        "Villa renovation",
		Description:  "Kitchen and roof",
		Address:      "King Fahd Rd",
		City:         "Riyadh",
		PlotNumber:   "P-12",
		PropertyType: models.PropertyTypeHouse,
		Size:         320,
		Condition:    models.ConditionFair,
		Status:       status,
		Homeowner:    owner.UserID,
		Images:       []models.PropertyImage{},
	}
	if assigned != nil {
		id := assigned.ContractorID
		p.AssignedContractor = &id
	}
	return p
}

func newOffer(p *models.Property, contractor models.Actor, amount float64, proposedAt time.Time) *models.PriceOffer {
	return &models.PriceOffer{
		Base:        models.NewBase(proposedAt),
		Property:    p.ID,
		Contractor:  contractor.ContractorID,
		Homeowner:   p.Homeowner,
		Amount:      amount,
		Description: fmt.Sprintf("bid of %.0f", amount),
		ProposedAt:  proposedAt,
		Status:      models.OfferPending,
	}
}

// notifiedKinds collects the kinds passed to a dispatcher mock.
func notifiedKinds(t *testing.T, d *MockDispatcher) []tasks.NotificationKind {
	t.Helper()
	var kinds []tasks.NotificationKind
	for _, call := range d.Calls {
		if call.Method == "Notify" {
			kinds = append(kinds, call.Arguments.Get(1).(tasks.Notification).Kind)
		}
	}
	return kinds
}

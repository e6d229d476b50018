package tasks_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/Faisal-Alqabbani/BUILD-SAUDI/internal/config"
	"github.com/Faisal-Alqabbani/BUILD-SAUDI/internal/email"
	"github.com/Faisal-Alqabbani/BUILD-SAUDI/internal/models"
	"github.com/Faisal-Alqabbani/BUILD-SAUDI/internal/repository"
	"github.com/Faisal-Alqabbani/BUILD-SAUDI/internal/storage"
	"github.com/Faisal-Alqabbani/BUILD-SAUDI/internal/tasks"
)

// --- Mocks ---

type MockEmailSender struct {
	mock.Mock
}

func (m *MockEmailSender) Send(ctx context.Context, to []string, subject string, rawMessage []byte) error {
	return m.Called(ctx, to, subject, rawMessage).Error(0)
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

type MockUserRepo struct {
	mock.Mock
}

func (m *MockUserRepo) Insert(ctx context.Context, u *models.User) error {
	return m.Called(ctx, u).Error(0)
}
func (m *MockUserRepo) FindByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}
func (m *MockUserRepo) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	args := m.Called(ctx, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}
func (m *MockUserRepo) SetContractorID(ctx context.Context, userID, contractorID primitive.ObjectID) error {
	return m.Called(ctx, userID, contractorID).Error(0)
}

type MockContractorRepo struct {
	mock.Mock
}

func (m *MockContractorRepo) Insert(ctx context.Context, c *models.Contractor) error {
	return m.Called(ctx, c).Error(0)
}
func (m *MockContractorRepo) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Contractor, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Contractor), args.Error(1)
}
func (m *MockContractorRepo) FindByIDs(ctx context.Context, ids []primitive.ObjectID) ([]models.Contractor, error) {
	args := m.Called(ctx, ids)
	return args.Get(0).([]models.Contractor), args.Error(1)
}
func (m *MockContractorRepo) List(ctx context.Context, limit int64) ([]models.Contractor, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]models.Contractor), args.Error(1)
}

type MockPropertyRepo struct {
	mock.Mock
}

func (m *MockPropertyRepo) Insert(ctx context.Context, p *models.Property) error {
	return m.Called(ctx, p).Error(0)
}
func (m *MockPropertyRepo) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Property, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Property), args.Error(1)
}
func (m *MockPropertyRepo) Find(ctx context.Context, filter bson.M, limit int64) ([]models.Property, error) {
	args := m.Called(ctx, filter, limit)
	return args.Get(0).([]models.Property), args.Error(1)
}
func (m *MockPropertyRepo) ReplaceIfUnchanged(ctx context.Context, p *models.Property, before *models.Property) error {
	return m.Called(ctx, p, before).Error(0)
}
func (m *MockPropertyRepo) AppendImages(ctx context.Context, id primitive.ObjectID, images []models.PropertyImage, terminal []models.PropertyStatus, now time.Time) error {
	return m.Called(ctx, id, images, terminal, now).Error(0)
}

type MockEnqueuer struct {
	mock.Mock
}

func (m *MockEnqueuer) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	args := m.Called(ctx, task)
	return &asynq.TaskInfo{}, args.Error(0)
}

type fixture struct {
	sender      *MockEmailSender
	storage     *MockStorage
	users       *MockUserRepo
	contractors *MockContractorRepo
	properties  *MockPropertyRepo
	processor   *tasks.TaskProcessor
}

func newFixture() *fixture {
	f := &fixture{
		sender:      new(MockEmailSender),
		storage:     new(MockStorage),
		users:       new(MockUserRepo),
		contractors: new(MockContractorRepo),
		properties:  new(MockPropertyRepo),
	}
	cfg := &config.Config{AppName: "Build Saudi", SmtpFromAddress: "noreply@example.com", ImageMaxDimension: 64, ImageMaxSizeMB: 1}
	f.processor = tasks.NewTaskProcessor(cfg, f.sender, f.storage, f.users, f.contractors, f.properties)
	return f
}

func notificationTask(t *testing.T, n tasks.Notification) *asynq.Task {
	payload, err := json.Marshal(n)
	require.NoError(t, err)
	return asynq.NewTask(tasks.TypeNotification, payload)
}

// --- Tests ---

func TestHandleNotificationTask_OfferAcceptedGoesToContractor(t *testing.T) {
	f := newFixture()
	propertyID := primitive.NewObjectID()
	contractorID := primitive.NewObjectID()
	userID := primitive.NewObjectID()

	f.properties.On("FindByID", mock.Anything, propertyID).Return(&models.Property{Title: "Desert villa"}, nil)
	f.contractors.On("FindByID", mock.Anything, contractorID).Return(&models.Contractor{UserID: userID}, nil)
	f.users.On("FindByID", mock.Anything, userID).Return(&models.User{Username: "c1", FirstName: "Omar", Email: "omar@example.com"}, nil)

	f.sender.On("Send", mock.Anything, []string{"omar@example.com"}, `Your offer on "Desert villa" was accepted`,
		mock.MatchedBy(func(raw []byte) bool {
			s := string(raw)
			return strings.Contains(s, "Hello Omar,") &&
				strings.Contains(s, "offer of 100") &&
				strings.Contains(s, email.KindHeader+": offer_accepted")
		})).Return(nil)

	err := f.processor.HandleNotificationTask(context.Background(), notificationTask(t, tasks.Notification{
		Kind:          tasks.NotifyOfferAccepted,
		PropertyID:    propertyID.Hex(),
		ContractorIDs: []string{contractorID.Hex()},
		Data:          map[string]interface{}{"Amount": 100},
	}))
	assert.NoError(t, err)
	f.sender.AssertExpectations(t)
}

func TestHandleNotificationTask_UnknownKindSkipsRetry(t *testing.T) {
	f := newFixture()
	err := f.processor.HandleNotificationTask(context.Background(), notificationTask(t, tasks.Notification{Kind: "nope"}))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestHandleNotificationTask_SendFailureIsRetried(t *testing.T) {
	f := newFixture()
	userID := primitive.NewObjectID()
	f.users.On("FindByID", mock.Anything, userID).Return(&models.User{Username: "h", Email: "h@example.com"}, nil)
	f.sender.On("Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("smtp down"))

	err := f.processor.HandleNotificationTask(context.Background(), notificationTask(t, tasks.Notification{
		Kind:    tasks.NotifyPropertyRejected,
		UserIDs: []string{userID.Hex()},
	}))
	require.Error(t, err)
	assert.NotErrorIs(t, err, asynq.SkipRetry)
}

func TestHandleNotificationTask_MissingUserIsSkipped(t *testing.T) {
	f := newFixture()
	userID := primitive.NewObjectID()
	f.users.On("FindByID", mock.Anything, userID).Return(nil, repository.ErrNotFound)

	err := f.processor.HandleNotificationTask(context.Background(), notificationTask(t, tasks.Notification{
		Kind:    tasks.NotifyPropertyApproved,
		UserIDs: []string{userID.Hex()},
	}))
	assert.NoError(t, err)
	f.sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func pngOf(t *testing.T, w, h int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, x%h, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func imageTask(t *testing.T, key string) *asynq.Task {
	payload, err := json.Marshal(tasks.ImageTaskPayload{Key: key})
	require.NoError(t, err)
	return asynq.NewTask(tasks.TypeImageProcess, payload)
}

func TestHandleImageProcessTask_ResizesLargeImage(t *testing.T) {
	f := newFixture()
	f.storage.On("Download", mock.Anything, "completions/p/a.png").Return(pngOf(t, 256, 128), "image/png", nil)
	f.storage.On("Put", mock.Anything, "completions/p/a.png", mock.MatchedBy(func(data []byte) bool {
		img, format, err := image.Decode(bytes.NewReader(data))
		return err == nil && format == "jpeg" && img.Bounds().Dx() == 64 && img.Bounds().Dy() == 32
	}), "image/jpeg").Return(nil)

	assert.NoError(t, f.processor.HandleImageProcessTask(context.Background(), imageTask(t, "completions/p/a.png")))
	f.storage.AssertExpectations(t)
}

func TestHandleImageProcessTask_SmallImageUntouched(t *testing.T) {
	f := newFixture()
	f.storage.On("Download", mock.Anything, "k").Return(pngOf(t, 32, 32), "image/png", nil)

	assert.NoError(t, f.processor.HandleImageProcessTask(context.Background(), imageTask(t, "k")))
	f.storage.AssertNotCalled(t, "Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleImageProcessTask_MissingAndCorrupt(t *testing.T) {
	f := newFixture()
	f.storage.On("Download", mock.Anything, "gone").Return(nil, "", storage.ErrObjectNotFound)
	f.storage.On("Download", mock.Anything, "junk").Return([]byte("not an image"), "image/png", nil)

	assert.ErrorIs(t, f.processor.HandleImageProcessTask(context.Background(), imageTask(t, "gone")), asynq.SkipRetry)
	assert.ErrorIs(t, f.processor.HandleImageProcessTask(context.Background(), imageTask(t, "junk")), asynq.SkipRetry)
}

func TestDispatcher(t *testing.T) {
	q := new(MockEnqueuer)
	d := tasks.NewDispatcher(q)

	q.On("EnqueueContext", mock.Anything, mock.MatchedBy(func(task *asynq.Task) bool {
		var n tasks.Notification
		return task.Type() == tasks.TypeNotification &&
			json.Unmarshal(task.Payload(), &n) == nil && n.Kind == tasks.NotifyOfferSubmitted
	})).Return(nil)
	q.On("EnqueueContext", mock.Anything, mock.MatchedBy(func(task *asynq.Task) bool {
		return task.Type() == tasks.TypeImageProcess
	})).Return(errors.New("redis down"))

	assert.NoError(t, d.Notify(context.Background(), tasks.Notification{Kind: tasks.NotifyOfferSubmitted}))
	assert.Error(t, d.ProcessImage(context.Background(), "k"))
	q.AssertExpectations(t)
}

func TestSetupServer_Routing(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	processor := tasks.NewTaskProcessor(&config.Config{}, nil, nil, nil, nil, nil)

	_, mux := tasks.SetupServer(rdb, processor, false)
	_, pattern := mux.Handler(asynq.NewTask(tasks.TypeNotification, nil))
	assert.Equal(t, tasks.TypeNotification, pattern)
	_, pattern = mux.Handler(asynq.NewTask(tasks.TypeImageProcess, nil))
	assert.Equal(t, tasks.TypeImageProcess, pattern)

	_, mux = tasks.SetupServer(rdb, processor, true)
	_, pattern = mux.Handler(asynq.NewTask(tasks.TypeNotification, nil))
	assert.Empty(t, pattern)
	_, pattern = mux.Handler(asynq.NewTask(tasks.TypeImageProcess, nil))
	assert.Equal(t, tasks.TypeImageProcess, pattern)
}

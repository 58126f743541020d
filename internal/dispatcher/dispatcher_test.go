package dispatcher_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/develper21/kyvro/internal/config"
	"github.com/develper21/kyvro/internal/dispatcher"
	"github.com/develper21/kyvro/internal/models"
	"github.com/develper21/kyvro/internal/repository"
	"github.com/develper21/kyvro/internal/secrets"
	"github.com/develper21/kyvro/internal/whatsapp"
)

// fakeRepo is a thread-safe in-memory state store. Concurrent queue tasks
// hit it the same way they hit PostgreSQL in production.
type fakeRepo struct {
	mu            sync.Mutex
	campaigns     map[int64]*models.Campaign
	contacts      map[int64][]*models.Contact
	messages      map[int64]*models.Message
	nextMessageID int64
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		campaigns: make(map[int64]*models.Campaign),
		contacts:  make(map[int64][]*models.Contact),
		messages:  make(map[int64]*models.Message),
	}
}

func (r *fakeRepo) Ping() error { return nil }
func (r *fakeRepo) Campaign() repository.CampaignRepository { return r }
func (r *fakeRepo) Contact() repository.ContactRepository { return r }
func (r *fakeRepo) Message() repository.MessageRepository { return r }

func (r *fakeRepo) GetCampaign(id int64) (*models.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	campaign, ok := r.campaigns[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *campaign
	return &copied, nil
}

func (r *fakeRepo) UpdateCampaignStatus(id int64, status models.CampaignStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	campaign, ok := r.campaigns[id]
	if !ok {
		return repository.ErrNotFound
	}
	campaign.Status = status
	return nil
}

func (r *fakeRepo) IncrementCampaignCounts(id int64, sentDelta, deliveredDelta, failedDelta int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	campaign, ok := r.campaigns[id]
	if !ok {
		return repository.ErrNotFound
	}
	campaign.SentCount += sentDelta
	campaign.DeliveredCount += deliveredDelta
	campaign.FailedCount += failedDelta
	return nil
}

func (r *fakeRepo) SetTotalContacts(id int64, total int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	campaign, ok := r.campaigns[id]
	if !ok {
		return repository.ErrNotFound
	}
	campaign.TotalContacts = total
	return nil
}

func (r *fakeRepo) ListCampaignsByStatus(status models.CampaignStatus) ([]*models.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Campaign
	for _, campaign := range r.campaigns {
		if campaign.Status == status {
			copied := *campaign
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *fakeRepo) GetContactsByCampaign(campaignID int64) ([]*models.Contact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.contacts[campaignID], nil
}

func (r *fakeRepo) CreateMessage(msg *models.Message) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextMessageID++
	copied := *msg
	copied.ID = r.nextMessageID
	if copied.Status == "" {
		copied.Status = models.MessageStatusPending
	}
	r.messages[copied.ID] = &copied
	return copied.ID, nil
}

func (r *fakeRepo) GetMessage(id int64) (*models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	msg, ok := r.messages[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *msg
	return &copied, nil
}

func (r *fakeRepo) UpdateMessageStatus(id int64, status models.MessageStatus, providerMessageID *string, errorMsg *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	msg, ok := r.messages[id]
	if !ok {
		return repository.ErrNotFound
	}
	msg.Status = status
	if providerMessageID != nil {
		msg.ProviderMessageID.String = *providerMessageID
		msg.ProviderMessageID.Valid = true
	}
	if errorMsg != nil {
		msg.Error.String = *errorMsg
		msg.Error.Valid = true
	}
	return nil
}

func (r *fakeRepo) GetMessagesByCampaign(campaignID int64) ([]*models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Message
	for _, msg := range r.messages {
		if msg.CampaignID == campaignID {
			copied := *msg
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *fakeRepo) ListMessages(campaignID int64, limit, offset int) ([]*models.Message, int, error) {
	all, err := r.GetMessagesByCampaign(campaignID)
	if err != nil {
		return nil, 0, err
	}
	if offset >= len(all) {
		return nil, len(all), nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], len(all), nil
}

func (r *fakeRepo) GetSentWithoutDelivery(sentBefore time.Time) ([]*models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Message
	for _, msg := range r.messages {
		if msg.Status == models.MessageStatusSent {
			copied := *msg
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *fakeRepo) GetPendingMessages(campaignID int64) ([]*models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Message
	for _, msg := range r.messages {
		if msg.CampaignID == campaignID && msg.Status == models.MessageStatusPending {
			copied := *msg
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *fakeRepo) GetMessageByProviderID(providerMessageID string) (*models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, msg := range r.messages {
		if msg.ProviderMessageID.Valid && msg.ProviderMessageID.String == providerMessageID {
			copied := *msg
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeRepo) messageStatuses(campaignID int64) map[models.MessageStatus]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[models.MessageStatus]int)
	for _, msg := range r.messages {
		if msg.CampaignID == campaignID {
			counts[msg.Status]++
		}
	}
	return counts
}

// senderFunc adapts a function to the whatsapp.Sender seam.
type senderFunc func(ctx context.Context, req whatsapp.SendRequest) whatsapp.SendResult

func (f senderFunc) SendTemplate(ctx context.Context, req whatsapp.SendRequest) whatsapp.SendResult {
	return f(ctx, req)
}

// recordingNotifier captures lifecycle events for assertions.
type recordingNotifier struct {
	mu        sync.Mutex
	progress  []dispatcher.ProgressEvent
	failed    []dispatcher.MessageFailedEvent
	completed []dispatcher.CompletedEvent
}

func (n *recordingNotifier) CampaignProgress(event dispatcher.ProgressEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.progress = append(n.progress, event)
}

func (n *recordingNotifier) MessageFailed(event dispatcher.MessageFailedEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failed = append(n.failed, event)
}

func (n *recordingNotifier) CampaignCompleted(event dispatcher.CompletedEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.completed = append(n.completed, event)
}

func (n *recordingNotifier) failedEvents() []dispatcher.MessageFailedEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]dispatcher.MessageFailedEvent(nil), n.failed...)
}

func (n *recordingNotifier) completedEvents() []dispatcher.CompletedEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]dispatcher.CompletedEvent(nil), n.completed...)
}

func (n *recordingNotifier) progressEvents() []dispatcher.ProgressEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]dispatcher.ProgressEvent(nil), n.progress...)
}

func testConfig() *config.Config {
	return &config.Config{
		WhatsApp: config.WhatsAppConfig{
			DefaultCountryCode: "1",
			CircuitBreaker: config.CircuitBreakerConfig{
				MaxRequests:      100,
				Interval:         60,
				Timeout:          60,
				FailureRatio:     0.99,
				ConsecutiveFails: 100000,
			},
		},
		Dispatch: config.DispatchConfig{
			Concurrency:   2,
			RatePerSecond: 1000,
			MaxAttempts:   3,
			RetryDelayMs:  1,
			ProgressStep:  25,
		},
	}
}

func seedCampaign(repo *fakeRepo, id int64, status models.CampaignStatus, contactCount int) {
	repo.campaigns[id] = &models.Campaign{
		ID:               id,
		Name:             "spring-sale",
		TemplateName:     "order_update",
		TemplateLanguage: "en_US",
		Status:           status,
	}
	for i := 0; i < contactCount; i++ {
		repo.contacts[id] = append(repo.contacts[id], &models.Contact{
			ID:          int64(100 + i),
			Name:        "Contact",
			PhoneNumber: "15551230000",
		})
	}
}

func newDispatcher(cfg *config.Config, repo *fakeRepo, sender whatsapp.Sender, notifier dispatcher.Notifier) *dispatcher.Dispatcher {
	store := &secrets.StaticStore{Credential: &secrets.Credential{
		AccountID:     "acct",
		PhoneNumberID: "phone",
		AccessToken:   "token",
	}}
	return dispatcher.New(cfg, repo, sender, store, nil, notifier, zap.NewNop())
}

func waitForStatus(t *testing.T, repo *fakeRepo, campaignID int64, status models.CampaignStatus) *models.Campaign {
	t.Helper()
	var campaign *models.Campaign
	require.Eventually(t, func() bool {
		c, err := repo.GetCampaign(campaignID)
		if err != nil {
			return false
		}
		campaign = c
		return c.Status == status
	}, 5*time.Second, 5*time.Millisecond)
	return campaign
}

func TestDispatcher_Start_AllSucceed(t *testing.T) {
	repo := newFakeRepo()
	seedCampaign(repo, 1, models.CampaignStatusDraft, 5)
	notifier := &recordingNotifier{}

	var calls int64
	sender := senderFunc(func(ctx context.Context, req whatsapp.SendRequest) whatsapp.SendResult {
		n := atomic.AddInt64(&calls, 1)
		return whatsapp.SendResult{OK: true, ProviderMessageID: "wamid." + req.RecipientPhone + "-" + string(rune('a'+n))}
	})

	d := newDispatcher(testConfig(), repo, sender, notifier)
	require.NoError(t, d.Start(context.Background(), 1))

	campaign := waitForStatus(t, repo, 1, models.CampaignStatusCompleted)
	assert.Equal(t, 5, campaign.SentCount)
	assert.Equal(t, 0, campaign.FailedCount)
	assert.Equal(t, 5, campaign.TotalContacts)
	assert.Equal(t, int64(5), atomic.LoadInt64(&calls))

	statuses := repo.messageStatuses(1)
	assert.Equal(t, 5, statuses[models.MessageStatusSent])

	completed := notifier.completedEvents()
	require.Len(t, completed, 1)
	assert.Equal(t, int64(1), completed[0].CampaignID)
	assert.Equal(t, 5, completed[0].SentCount)
	assert.Equal(t, 0, completed[0].FailedCount)
	assert.NotEmpty(t, notifier.progressEvents())
}

func TestDispatcher_Start_InvalidRequestIsNotRetried(t *testing.T) {
	repo := newFakeRepo()
	seedCampaign(repo, 1, models.CampaignStatusDraft, 3)
	// Single bad phone number among three contacts.
	repo.contacts[1][1].PhoneNumber = "15550000bad"
	notifier := &recordingNotifier{}

	var badAttempts int64
	sender := senderFunc(func(ctx context.Context, req whatsapp.SendRequest) whatsapp.SendResult {
		if req.RecipientPhone == "15550000" {
			atomic.AddInt64(&badAttempts, 1)
			return whatsapp.SendResult{Kind: whatsapp.KindInvalidRequest, Message: "invalid recipient"}
		}
		return whatsapp.SendResult{OK: true, ProviderMessageID: "wamid." + req.RecipientPhone}
	})

	d := newDispatcher(testConfig(), repo, sender, notifier)
	require.NoError(t, d.Start(context.Background(), 1))

	campaign := waitForStatus(t, repo, 1, models.CampaignStatusCompleted)
	assert.Equal(t, 2, campaign.SentCount)
	assert.Equal(t, 1, campaign.FailedCount)

	// A non-retryable error settles on the first attempt.
	assert.Equal(t, int64(1), atomic.LoadInt64(&badAttempts))

	failed := notifier.failedEvents()
	require.Len(t, failed, 1)
	assert.Equal(t, whatsapp.KindInvalidRequest, failed[0].ErrorKind)

	statuses := repo.messageStatuses(1)
	assert.Equal(t, 2, statuses[models.MessageStatusSent])
	assert.Equal(t, 1, statuses[models.MessageStatusFailed])
}

func TestDispatcher_Start_RetryWorthyErrorRecovers(t *testing.T) {
	repo := newFakeRepo()
	seedCampaign(repo, 1, models.CampaignStatusDraft, 1)
	notifier := &recordingNotifier{}

	var attempts int64
	sender := senderFunc(func(ctx context.Context, req whatsapp.SendRequest) whatsapp.SendResult {
		if atomic.AddInt64(&attempts, 1) < 3 {
			return whatsapp.SendResult{Kind: whatsapp.KindProviderInternal, Message: "upstream hiccup"}
		}
		return whatsapp.SendResult{OK: true, ProviderMessageID: "wamid.recovered"}
	})

	d := newDispatcher(testConfig(), repo, sender, notifier)
	require.NoError(t, d.Start(context.Background(), 1))

	campaign := waitForStatus(t, repo, 1, models.CampaignStatusCompleted)
	assert.Equal(t, 1, campaign.SentCount)
	assert.Equal(t, 0, campaign.FailedCount)
	assert.Equal(t, int64(3), atomic.LoadInt64(&attempts))
}

func TestDispatcher_Start_RetryBudgetExhausted(t *testing.T) {
	repo := newFakeRepo()
	seedCampaign(repo, 1, models.CampaignStatusDraft, 1)
	notifier := &recordingNotifier{}

	var attempts int64
	sender := senderFunc(func(ctx context.Context, req whatsapp.SendRequest) whatsapp.SendResult {
		atomic.AddInt64(&attempts, 1)
		return whatsapp.SendResult{Kind: whatsapp.KindNetworkUnreachable, Message: "no route"}
	})

	d := newDispatcher(testConfig(), repo, sender, notifier)
	require.NoError(t, d.Start(context.Background(), 1))

	campaign := waitForStatus(t, repo, 1, models.CampaignStatusCompleted)
	assert.Equal(t, 0, campaign.SentCount)
	assert.Equal(t, 1, campaign.FailedCount)
	assert.Equal(t, int64(3), atomic.LoadInt64(&attempts), "attempts bounded by max_attempts")

	failed := notifier.failedEvents()
	require.Len(t, failed, 1)
	assert.Equal(t, whatsapp.KindNetworkUnreachable, failed[0].ErrorKind)
}

func TestDispatcher_Start_NoCredential(t *testing.T) {
	repo := newFakeRepo()
	seedCampaign(repo, 1, models.CampaignStatusDraft, 2)
	notifier := &recordingNotifier{}

	var calls int64
	sender := senderFunc(func(ctx context.Context, req whatsapp.SendRequest) whatsapp.SendResult {
		atomic.AddInt64(&calls, 1)
		return whatsapp.SendResult{OK: true}
	})

	cfg := testConfig()
	d := dispatcher.New(cfg, repo, sender, &secrets.StaticStore{}, nil, notifier, zap.NewNop())

	err := d.Start(context.Background(), 1)
	assert.ErrorIs(t, err, dispatcher.ErrNoCredential)

	campaign, getErr := repo.GetCampaign(1)
	require.NoError(t, getErr)
	assert.Equal(t, models.CampaignStatusFailed, campaign.Status)
	assert.Equal(t, int64(0), atomic.LoadInt64(&calls), "nothing is sent without a credential")
}

func TestDispatcher_Start_RejectsNonDispatchableStatus(t *testing.T) {
	tests := []struct {
		name   string
		status models.CampaignStatus
	}{
		{"already sending", models.CampaignStatusSending},
		{"completed", models.CampaignStatusCompleted},
		{"failed", models.CampaignStatusFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newFakeRepo()
			seedCampaign(repo, 1, tt.status, 1)

			d := newDispatcher(testConfig(), repo, senderFunc(func(ctx context.Context, req whatsapp.SendRequest) whatsapp.SendResult {
				return whatsapp.SendResult{OK: true}
			}), &recordingNotifier{})

			err := d.Start(context.Background(), 1)
			assert.ErrorIs(t, err, dispatcher.ErrCampaignNotDispatchable)
		})
	}
}

func TestDispatcher_PauseDiscardsInFlightOutcome(t *testing.T) {
	repo := newFakeRepo()
	seedCampaign(repo, 1, models.CampaignStatusDraft, 3)
	notifier := &recordingNotifier{}

	cfg := testConfig()
	cfg.Dispatch.Concurrency = 1

	started := make(chan struct{}, 3)
	release := make(chan struct{})
	sender := senderFunc(func(ctx context.Context, req whatsapp.SendRequest) whatsapp.SendResult {
		started <- struct{}{}
		<-release
		return whatsapp.SendResult{OK: true, ProviderMessageID: "wamid.late"}
	})

	d := newDispatcher(cfg, repo, sender, notifier)
	require.NoError(t, d.Start(context.Background(), 1))

	// One send on the wire, two tasks still queued.
	<-started
	require.NoError(t, d.Pause(1))
	close(release)

	waitForStatus(t, repo, 1, models.CampaignStatusPaused)
	require.Eventually(t, func() bool {
		_, err := d.Stats(1)
		return err != nil
	}, 5*time.Second, 5*time.Millisecond, "dispatch run should wind down")

	// The in-flight result lands after the pause and must not be
	// persisted; queued messages stay pending.
	statuses := repo.messageStatuses(1)
	assert.Equal(t, 3, statuses[models.MessageStatusPending])
	campaign, err := repo.GetCampaign(1)
	require.NoError(t, err)
	assert.Equal(t, 0, campaign.SentCount)
	assert.Equal(t, 0, campaign.FailedCount)
	assert.Empty(t, notifier.completedEvents())
}

func TestDispatcher_ShutdownKeepsCampaignSending(t *testing.T) {
	repo := newFakeRepo()
	seedCampaign(repo, 1, models.CampaignStatusDraft, 3)
	notifier := &recordingNotifier{}

	cfg := testConfig()
	cfg.Dispatch.Concurrency = 1

	started := make(chan struct{}, 3)
	release := make(chan struct{})
	sender := senderFunc(func(ctx context.Context, req whatsapp.SendRequest) whatsapp.SendResult {
		started <- struct{}{}
		<-release
		return whatsapp.SendResult{OK: true, ProviderMessageID: "wamid.inflight"}
	})

	d := newDispatcher(cfg, repo, sender, notifier)
	require.NoError(t, d.Start(context.Background(), 1))

	// One send on the wire, two tasks still queued.
	<-started
	d.Shutdown()
	close(release)

	require.Eventually(t, func() bool {
		_, err := d.Stats(1)
		return err != nil
	}, 5*time.Second, 5*time.Millisecond, "dispatch run should wind down")

	// The campaign is not done: it must stay sending so the recovery loop
	// resumes it, and no completion may be announced.
	campaign, err := repo.GetCampaign(1)
	require.NoError(t, err)
	assert.Equal(t, models.CampaignStatusSending, campaign.Status)
	assert.Empty(t, notifier.completedEvents())

	statuses := repo.messageStatuses(1)
	assert.Equal(t, 1, statuses[models.MessageStatusSent], "in-flight send still counts")
	assert.Equal(t, 2, statuses[models.MessageStatusPending])

	// Recovery after a restart finishes the interrupted campaign.
	require.NoError(t, d.RecoverStuckCampaigns(context.Background()))
	campaign = waitForStatus(t, repo, 1, models.CampaignStatusCompleted)
	assert.Equal(t, 3, campaign.SentCount)
}

// slowStore delays credential resolution until released, holding dispatch
// startup open for the duration.
type slowStore struct {
	release chan struct{}
	entered chan struct{}
}

func (s *slowStore) GetCredential(ctx context.Context) (*secrets.Credential, error) {
	close(s.entered)
	<-s.release
	return &secrets.Credential{AccountID: "acct", PhoneNumberID: "phone", AccessToken: "token"}, nil
}

func TestDispatcher_StatsDuringStartup(t *testing.T) {
	repo := newFakeRepo()
	seedCampaign(repo, 1, models.CampaignStatusDraft, 1)

	store := &slowStore{release: make(chan struct{}), entered: make(chan struct{})}
	cfg := testConfig()
	d := dispatcher.New(cfg, repo, senderFunc(func(ctx context.Context, req whatsapp.SendRequest) whatsapp.SendResult {
		return whatsapp.SendResult{OK: true, ProviderMessageID: "wamid.ok"}
	}), store, nil, &recordingNotifier{}, zap.NewNop())

	done := make(chan error, 1)
	go func() { done <- d.Start(context.Background(), 1) }()

	// The run is registered while the credential lookup is still blocked;
	// inspecting or pausing it in that window must not panic.
	<-store.entered
	stats, err := d.Stats(1)
	require.NoError(t, err)
	assert.Equal(t, cfg.Dispatch.Concurrency, stats.Concurrency)
	assert.Zero(t, stats.Depth)

	close(store.release)
	require.NoError(t, <-done)
	waitForStatus(t, repo, 1, models.CampaignStatusCompleted)
}

func TestDispatcher_PauseWithNothingOnTheWire(t *testing.T) {
	repo := newFakeRepo()
	seedCampaign(repo, 1, models.CampaignStatusDraft, 2)
	notifier := &recordingNotifier{}

	// Rate cap of one start per second: the first send finishes instantly
	// and the second task sits queued in the rate window.
	cfg := testConfig()
	cfg.Dispatch.RatePerSecond = 1

	sender := senderFunc(func(ctx context.Context, req whatsapp.SendRequest) whatsapp.SendResult {
		return whatsapp.SendResult{OK: true, ProviderMessageID: "wamid.first"}
	})

	d := newDispatcher(cfg, repo, sender, notifier)
	require.NoError(t, d.Start(context.Background(), 1))

	// Wait until the first outcome is persisted so nothing is running or
	// settling when the pause lands.
	require.Eventually(t, func() bool {
		return repo.messageStatuses(1)[models.MessageStatusSent] == 1
	}, 5*time.Second, time.Millisecond)
	require.NoError(t, d.Pause(1))

	require.Eventually(t, func() bool {
		_, err := d.Stats(1)
		return err != nil
	}, 5*time.Second, 5*time.Millisecond, "dispatch run should wind down")

	// Clearing an idle queue settles everything at once; the paused status
	// written beforehand must survive the run's wind-down.
	campaign, err := repo.GetCampaign(1)
	require.NoError(t, err)
	assert.Equal(t, models.CampaignStatusPaused, campaign.Status)
	assert.Empty(t, notifier.completedEvents())

	statuses := repo.messageStatuses(1)
	assert.Equal(t, 1, statuses[models.MessageStatusSent])
	assert.Equal(t, 1, statuses[models.MessageStatusPending])
}

func TestDispatcher_ResumeSubmitsOnlyPendingMessages(t *testing.T) {
	repo := newFakeRepo()
	seedCampaign(repo, 1, models.CampaignStatusPaused, 3)
	repo.campaigns[1].SentCount = 1
	repo.campaigns[1].FailedCount = 1
	repo.campaigns[1].TotalContacts = 3

	// Prior run: contact 100 sent, contact 101 failed, contact 102 pending.
	seedMessage := func(contactID int64, status models.MessageStatus) {
		id, err := repo.CreateMessage(&models.Message{
			CampaignID:       1,
			ContactID:        contactID,
			PhoneNumber:      "15551230000",
			TemplateName:     "order_update",
			TemplateLanguage: "en_US",
			Variables:        `["Contact"]`,
			Status:           models.MessageStatusPending,
		})
		require.NoError(t, err)
		if status != models.MessageStatusPending {
			require.NoError(t, repo.UpdateMessageStatus(id, status, nil, nil))
		}
	}
	seedMessage(100, models.MessageStatusSent)
	seedMessage(101, models.MessageStatusFailed)
	seedMessage(102, models.MessageStatusPending)

	var calls int64
	sender := senderFunc(func(ctx context.Context, req whatsapp.SendRequest) whatsapp.SendResult {
		atomic.AddInt64(&calls, 1)
		return whatsapp.SendResult{OK: true, ProviderMessageID: "wamid.resumed"}
	})

	d := newDispatcher(testConfig(), repo, sender, &recordingNotifier{})
	require.NoError(t, d.Resume(context.Background(), 1))

	campaign := waitForStatus(t, repo, 1, models.CampaignStatusCompleted)
	assert.Equal(t, int64(1), atomic.LoadInt64(&calls), "only the pending message is resubmitted")
	assert.Equal(t, 2, campaign.SentCount)
	assert.Equal(t, 1, campaign.FailedCount)

	statuses := repo.messageStatuses(1)
	assert.Equal(t, 2, statuses[models.MessageStatusSent])
	assert.Equal(t, 1, statuses[models.MessageStatusFailed])
	assert.Equal(t, 0, statuses[models.MessageStatusPending])
}

func TestDispatcher_Pause_NotActive(t *testing.T) {
	d := newDispatcher(testConfig(), newFakeRepo(), senderFunc(func(ctx context.Context, req whatsapp.SendRequest) whatsapp.SendResult {
		return whatsapp.SendResult{OK: true}
	}), &recordingNotifier{})

	assert.ErrorIs(t, d.Pause(42), dispatcher.ErrCampaignNotActive)
}

func TestDispatcher_RecoverStuckCampaigns(t *testing.T) {
	repo := newFakeRepo()
	seedCampaign(repo, 1, models.CampaignStatusSending, 2)
	repo.campaigns[1].TotalContacts = 2

	// Crash left both messages pending and the campaign sending.
	for _, contactID := range []int64{100, 101} {
		_, err := repo.CreateMessage(&models.Message{
			CampaignID:       1,
			ContactID:        contactID,
			PhoneNumber:      "15551230000",
			TemplateName:     "order_update",
			TemplateLanguage: "en_US",
			Variables:        `["Contact"]`,
			Status:           models.MessageStatusPending,
		})
		require.NoError(t, err)
	}

	sender := senderFunc(func(ctx context.Context, req whatsapp.SendRequest) whatsapp.SendResult {
		return whatsapp.SendResult{OK: true, ProviderMessageID: "wamid.recovered"}
	})

	d := newDispatcher(testConfig(), repo, sender, &recordingNotifier{})
	require.NoError(t, d.RecoverStuckCampaigns(context.Background()))

	campaign := waitForStatus(t, repo, 1, models.CampaignStatusCompleted)
	assert.Equal(t, 2, campaign.SentCount)
}

func TestDispatcher_StatsWhileActive(t *testing.T) {
	repo := newFakeRepo()
	seedCampaign(repo, 1, models.CampaignStatusDraft, 2)

	release := make(chan struct{})
	sender := senderFunc(func(ctx context.Context, req whatsapp.SendRequest) whatsapp.SendResult {
		<-release
		return whatsapp.SendResult{OK: true}
	})

	cfg := testConfig()
	cfg.Dispatch.Concurrency = 1
	d := newDispatcher(cfg, repo, sender, &recordingNotifier{})
	require.NoError(t, d.Start(context.Background(), 1))

	stats, err := d.Stats(1)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Concurrency)
	assert.Contains(t, d.ActiveCampaigns(), int64(1))

	close(release)
	waitForStatus(t, repo, 1, models.CampaignStatusCompleted)
}
